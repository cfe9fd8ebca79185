// Package zctx implements the process-scoped root context: the ownership
// tree root, the I/O thread pool, the live-socket registry and the
// endpoint registries every socket binds and connects through.
package zctx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/tobi-tobsen/netmq/iothread"
	"github.com/tobi-tobsen/netmq/mailbox"
	"github.com/tobi-tobsen/netmq/own"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/transport"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// Option identifies a context option key.
type Option int

const (
	OptIOThreads Option = iota
	OptMaxSockets
	OptLinger
)

// maxIOThreads caps what OptIOThreads will accept; more reactor threads
// than this is a configuration error, not a workload.
const maxIOThreads = 64

// Options configures a Context before its thread pool starts.
type Options struct {
	IOThreads  int
	MaxSockets int

	// Linger is the drain budget handed to every socket at context
	// termination. Zero tears down immediately.
	Linger time.Duration

	Logger *zerolog.Logger
}

// DefaultOptions mirrors the conventional defaults: one I/O thread, 1024
// sockets, immediate teardown.
var DefaultOptions = Options{
	IOThreads:  1,
	MaxSockets: 1024,
	Linger:     0,
}

type boundListener struct {
	l *transport.Listener
	s *socket.Socket
}

type boundConnector struct {
	c *transport.Connector
	s *socket.Socket
}

// Context is the root of the ownership tree. All sockets are its children;
// Terminate returns only once every one of them has fully torn down.
type Context struct {
	own.Own

	Logger *zerolog.Logger

	opts Options

	ctx    context.Context
	cancel context.CancelCauseFunc

	startOnce  sync.Once
	threads    []*iothread.Thread
	nextThread atomic.Uint32

	sockets  *xsync.MapOf[*socket.Socket, struct{}]
	nsockets atomic.Int32

	terminating atomic.Bool

	inprocMu      sync.Mutex
	inprocBound   map[string]*socket.Socket
	inprocPending map[string][]*socket.Socket

	epMu       sync.Mutex
	listeners  map[string]boundListener
	connectors []boundConnector
}

// New returns a Context with DefaultOptions.
func New() *Context { return NewWithOptions(DefaultOptions) }

// NewWithOptions returns a Context with the given options; zero fields
// fall back to defaults.
func NewWithOptions(opts Options) *Context {
	if opts.IOThreads <= 0 {
		opts.IOThreads = DefaultOptions.IOThreads
	}
	if opts.MaxSockets <= 0 {
		opts.MaxSockets = DefaultOptions.MaxSockets
	}
	if opts.Logger == nil {
		l := zerolog.Nop()
		opts.Logger = &l
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Context{
		Logger:        opts.Logger,
		opts:          opts,
		ctx:           ctx,
		cancel:        cancel,
		sockets:       xsync.NewMapOf[*socket.Socket, struct{}](),
		inprocBound:   make(map[string]*socket.Socket),
		inprocPending: make(map[string][]*socket.Socket),
		listeners:     make(map[string]boundListener),
	}
	c.Own.Init(c)
	return c
}

// SetOption applies a context option. Options affecting the thread pool
// must be set before the first socket is created.
func (c *Context) SetOption(opt Option, value any) error {
	switch opt {
	case OptIOThreads:
		n, err := cast.ToIntE(value)
		if err != nil {
			return zmqerr.Wrap(zmqerr.EINVAL, "zctx.SetOption", err)
		}
		if n < 1 || n > maxIOThreads {
			return zmqerr.New(zmqerr.EMTHREAD, "zctx.SetOption", "IO_THREADS out of range")
		}
		if len(c.threads) > 0 {
			return zmqerr.New(zmqerr.EINVAL, "zctx.SetOption", "thread pool already started")
		}
		c.opts.IOThreads = n
	case OptMaxSockets:
		n, err := cast.ToIntE(value)
		if err != nil {
			return zmqerr.Wrap(zmqerr.EINVAL, "zctx.SetOption", err)
		}
		if n < 1 {
			return zmqerr.New(zmqerr.EINVAL, "zctx.SetOption", "MAX_SOCKETS out of range")
		}
		c.opts.MaxSockets = n
	case OptLinger:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return zmqerr.Wrap(zmqerr.EINVAL, "zctx.SetOption", err)
		}
		c.opts.Linger = d
	default:
		return zmqerr.New(zmqerr.EINVAL, "zctx.SetOption", "unknown option")
	}
	return nil
}

// Done is closed when the context begins terminating. Pollers and devices
// do not watch it: they stop once their sockets are terminating.
func (c *Context) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Context) start() {
	c.startOnce.Do(func() {
		for i := 0; i < c.opts.IOThreads; i++ {
			t := iothread.New(i, c.Logger)
			t.Start()
			c.threads = append(c.threads, t)
		}
	})
}

func (c *Context) pickThread() *iothread.Thread {
	c.start()
	return c.threads[int(c.nextThread.Add(1))%len(c.threads)]
}

// runOn executes fn on the given reactor's goroutine and waits for it,
// posting it as a mailbox command: bind/connect never mutate reactor state
// from a user thread directly.
func (c *Context) runOn(t *iothread.Thread, typ mailbox.CmdType, fn func()) error {
	done := make(chan struct{})
	ok := t.Mailbox().Send(mailbox.Cmd{Type: typ, Arg: func() {
		fn()
		close(done)
	}})
	if !ok {
		return zmqerr.New(zmqerr.ETERM, "zctx.runOn", "io thread stopped")
	}
	<-done
	return nil
}

// NewSocket creates a socket of the given pattern owned by this context.
func (c *Context) NewSocket(kind socket.Kind) (*socket.Socket, error) {
	if c.terminating.Load() {
		return nil, zmqerr.New(zmqerr.ETERM, "zctx.NewSocket", "")
	}
	if int(c.nsockets.Load()) >= c.opts.MaxSockets {
		return nil, zmqerr.New(zmqerr.EINVAL, "zctx.NewSocket", "MAX_SOCKETS limit reached")
	}
	c.start()

	s := socket.New(kind, c)
	if s == nil {
		return nil, zmqerr.New(zmqerr.EINVAL, "zctx.NewSocket", "unknown socket type")
	}
	s.Logger = c.Logger

	c.LaunchChild(&s.Own)
	c.sockets.Store(s, struct{}{})
	c.nsockets.Add(1)
	return s, nil
}

// Terminate tears the whole context down: every socket is asked to
// terminate with the context's linger budget, every blocked call observes
// ETERM, and the call returns only once all of them are destroyed.
// Calling it again is a no-op that still waits.
func (c *Context) Terminate() {
	if c.terminating.Swap(true) {
		c.Own.Wait()
		return
	}

	c.cancel(zmqerr.New(zmqerr.ETERM, "zctx.Terminate", ""))

	// stop accepting and dialing first so no new sessions appear while
	// the sockets drain
	c.epMu.Lock()
	listeners := make([]boundListener, 0, len(c.listeners))
	for _, bl := range c.listeners {
		listeners = append(listeners, bl)
	}
	c.listeners = make(map[string]boundListener)
	connectors := c.connectors
	c.connectors = nil
	c.epMu.Unlock()

	for _, bl := range listeners {
		bl.l.Close()
	}
	for _, bc := range connectors {
		bc.c.Close()
	}

	c.Own.Term(c.opts.Linger)
	c.Own.Wait()
}

// ProcessTerm implements own.Terminee: by the time it runs every socket
// has acked, so only the thread pool is left.
func (c *Context) ProcessTerm(time.Duration) {
	for _, t := range c.threads {
		t.Stop()
	}
}

// Terminating implements socket.Hooks.
func (c *Context) Terminating() bool { return c.terminating.Load() }

// Unregister implements socket.Hooks: drops a closed socket from the
// registry and closes any endpoints it still holds.
func (c *Context) Unregister(s *socket.Socket) {
	if _, loaded := c.sockets.LoadAndDelete(s); loaded {
		c.nsockets.Add(-1)
	}

	c.inprocMu.Lock()
	for name, b := range c.inprocBound {
		if b == s {
			delete(c.inprocBound, name)
		}
	}
	for name, pending := range c.inprocPending {
		kept := pending[:0]
		for _, p := range pending {
			if p != s {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(c.inprocPending, name)
		} else {
			c.inprocPending[name] = kept
		}
	}
	c.inprocMu.Unlock()

	c.epMu.Lock()
	for ep, bl := range c.listeners {
		if bl.s == s {
			delete(c.listeners, ep)
			go bl.l.Close()
		}
	}
	kept := c.connectors[:0]
	for _, bc := range c.connectors {
		if bc.s == s {
			go bc.c.Close()
		} else {
			kept = append(kept, bc)
		}
	}
	c.connectors = kept
	c.epMu.Unlock()
}
