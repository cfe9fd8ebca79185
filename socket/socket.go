// Package socket implements the socket state machines for every pattern
// plus the generic
// sequencing of user calls against a socket's pipe set.
package socket

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tobi-tobsen/netmq/clock"
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/own"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// Kind identifies a socket's messaging pattern.
type Kind byte

const (
	REQ Kind = iota
	REP
	DEALER
	ROUTER
	PUB
	SUB
	XPUB
	XSUB
	PUSH
	PULL
	PAIR
)

func (k Kind) String() string {
	switch k {
	case REQ:
		return "REQ"
	case REP:
		return "REP"
	case DEALER:
		return "DEALER"
	case ROUTER:
		return "ROUTER"
	case PUB:
		return "PUB"
	case SUB:
		return "SUB"
	case XPUB:
		return "XPUB"
	case XSUB:
		return "XSUB"
	case PUSH:
		return "PUSH"
	case PULL:
		return "PULL"
	case PAIR:
		return "PAIR"
	default:
		return "UNKNOWN"
	}
}

// Flags control Send/Recv behavior.
type Flags byte

const (
	// DontWait fails with EAGAIN instead of suspending.
	DontWait Flags = 1 << iota
	// SndMore indicates another frame of the same logical message follows.
	SndMore
)

// Pattern is the per-socket-type hook set dispatched by Socket: a tagged
// socket kind plus a small dispatch table instead of one subtype per
// pattern.
type Pattern interface {
	// XAttachPipe is called once, right after a new pipe joins the pipe set.
	XAttachPipe(p *pipe.Pipe, identity []byte)

	// XTerminated is called once a pipe has left the set.
	XTerminated(p *pipe.Pipe)

	// XSend attempts to enqueue m, per this pattern's state machine and
	// routing rules. Returns zmqerr.EAGAIN if it would block.
	XSend(s *Socket, m *msg.Msg, flags Flags) error

	// XRecv attempts to dequeue the next message for this pattern.
	XRecv(s *Socket, flags Flags) (*msg.Msg, error)

	XHasIn() bool
	XHasOut() bool

	XReadActivated(p *pipe.Pipe)
	XWriteActivated(p *pipe.Pipe)
}

// Hooks lets a Socket delegate endpoint resolution to its owning context
// without socket importing the context package.
type Hooks interface {
	BindInproc(name string, s *Socket) error
	ConnectInproc(name string, s *Socket) error
	BindTCP(addr string, s *Socket) (resolved string, err error)
	ConnectTCP(addr string, s *Socket) error
	Unbind(endpoint string, s *Socket)
	Unregister(s *Socket)
	Terminating() bool
}

// endpointRecord is one bind/connect call's resolved state.
type endpointRecord struct {
	raw     string // as given by the caller
	scheme  string
	address string
	bound   bool // true for bind, false for connect
}

// Socket is the user-facing, single-thread-at-a-time object bound to
// exactly one messaging pattern.
type Socket struct {
	own.Own

	Kind    Kind
	Options Options
	Logger  *zerolog.Logger

	pattern Pattern
	hooks   Hooks

	Pipes *PipeSet

	mu        sync.Mutex
	endpoints []endpointRecord
	closed    bool
	rcvMore   bool // last Recv'd frame had MORE set (RCVMORE option)

	// recv-ready / send-ready capability callbacks for the poller, invoked
	// synchronously from whichever goroutine observes the transition.
	onRecvReady func()
	onSendReady func()
}

// newSocket constructs the common Socket state; pattern implementations'
// New*() constructors call this and then set s.pattern.
func newSocket(kind Kind, hooks Hooks) *Socket {
	s := &Socket{
		Kind:    kind,
		Options: DefaultOptions,
		Pipes:   NewPipeSet(),
		hooks:   hooks,
	}
	l := zerolog.Nop()
	s.Logger = &l
	s.Own.Init(s)
	return s
}

// ProcessTerm implements own.Terminee: gives outbound frames the linger
// budget to drain, then terminates every pipe and unregisters from the
// owning context.
func (s *Socket) ProcessTerm(linger time.Duration) {
	if linger != 0 {
		deadline := clock.Now().Add(linger)
		for !s.drained() {
			if linger > 0 && !clock.Now().Before(deadline) {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	s.Pipes.Each(func(p *pipe.Pipe, _ []byte) {
		p.Terminate(true)
	})

	if s.hooks != nil {
		s.hooks.Unregister(s)
	}
}

// drained reports whether every outbound frame on every pipe has been
// consumed by its peer.
func (s *Socket) drained() bool {
	ok := true
	s.Pipes.Each(func(p *pipe.Pipe, _ []byte) {
		if !p.Drained() {
			ok = false
		}
	})
	return ok
}

// SetOnRecvReady/SetOnSendReady install the poller capability callbacks.
func (s *Socket) SetOnRecvReady(f func()) { s.onRecvReady = f }
func (s *Socket) SetOnSendReady(f func()) { s.onSendReady = f }

func (s *Socket) fireRecvReady() {
	if s.onRecvReady != nil {
		s.onRecvReady()
	}
}
func (s *Socket) fireSendReady() {
	if s.onSendReady != nil {
		s.onSendReady()
	}
}

// AttachPipe registers a newly-created pipe with the pattern and pipe set,
// and wires its activation callbacks so fair-queue/load-balance wake the
// poller.
func (s *Socket) AttachPipe(p *pipe.Pipe, identity []byte) {
	p.SetActivateCallbacks(
		func() { s.pattern.XReadActivated(p); s.fireRecvReady() },
		func() { s.pattern.XWriteActivated(p); s.fireSendReady() },
	)
	s.Pipes.Add(p, identity)
	s.pattern.XAttachPipe(p, identity)
}

// DetachPipe removes a pipe from the set and notifies the pattern. The
// session calls it right after starting termination of both pipe ends,
// without waiting for the termination handshake to complete.
func (s *Socket) DetachPipe(p *pipe.Pipe) {
	s.Pipes.Remove(p)
	s.pattern.XTerminated(p)
}

// parseEndpoint splits "scheme://address".
func parseEndpoint(endpoint string) (scheme, address string, err error) {
	i := strings.Index(endpoint, "://")
	if i < 0 {
		return "", "", zmqerr.New(zmqerr.EINVAL, "socket.parseEndpoint", endpoint)
	}
	return endpoint[:i], endpoint[i+3:], nil
}

// Bind starts listening/registering on endpoint.
func (s *Socket) Bind(endpoint string) error {
	if s.Terminating() {
		return zmqerr.New(zmqerr.ETERM, "socket.Bind", "")
	}
	scheme, address, err := parseEndpoint(endpoint)
	if err != nil {
		return err
	}

	switch scheme {
	case "inproc":
		if err := s.hooks.BindInproc(address, s); err != nil {
			return err
		}
		s.recordEndpoint(endpoint, scheme, address, true)
		s.setLastEndpoint(endpoint)
		return nil
	case "tcp", "ipc":
		resolved, err := s.hooks.BindTCP(endpoint, s)
		if err != nil {
			return err
		}
		s.recordEndpoint(resolved, scheme, address, true)
		s.setLastEndpoint(resolved)
		return nil
	case "pgm", "epgm":
		return zmqerr.New(zmqerr.ENOTSUP, "socket.Bind", scheme+" transport not implemented")
	default:
		return zmqerr.New(zmqerr.EINVAL, "socket.Bind", "unknown scheme "+scheme)
	}
}

// Connect resolves endpoint to a peer and attaches a pipe (possibly
// asynchronously, once a TCP dial/reconnect succeeds).
func (s *Socket) Connect(endpoint string) error {
	if s.Terminating() {
		return zmqerr.New(zmqerr.ETERM, "socket.Connect", "")
	}
	scheme, address, err := parseEndpoint(endpoint)
	if err != nil {
		return err
	}

	switch scheme {
	case "inproc":
		if err := s.hooks.ConnectInproc(address, s); err != nil {
			return err
		}
		s.recordEndpoint(endpoint, scheme, address, false)
		return nil
	case "tcp", "ipc":
		if err := s.hooks.ConnectTCP(endpoint, s); err != nil {
			return err
		}
		s.recordEndpoint(endpoint, scheme, address, false)
		return nil
	case "pgm", "epgm":
		return zmqerr.New(zmqerr.ENOTSUP, "socket.Connect", scheme+" transport not implemented")
	default:
		return zmqerr.New(zmqerr.EINVAL, "socket.Connect", "unknown scheme "+scheme)
	}
}

// Unbind stops listening on a previously bound endpoint.
func (s *Socket) Unbind(endpoint string) error {
	s.mu.Lock()
	for i, e := range s.endpoints {
		if e.raw == endpoint && e.bound {
			s.endpoints = append(s.endpoints[:i], s.endpoints[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.hooks.Unbind(endpoint, s)
	return nil
}

// Disconnect tears down a previously connected endpoint's pipe.
func (s *Socket) Disconnect(endpoint string) error {
	s.mu.Lock()
	for i, e := range s.endpoints {
		if e.raw == endpoint && !e.bound {
			s.endpoints = append(s.endpoints[:i], s.endpoints[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Socket) recordEndpoint(raw, scheme, address string, bound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = append(s.endpoints, endpointRecord{raw: raw, scheme: scheme, address: address, bound: bound})
}

func (s *Socket) setLastEndpoint(ep string) {
	s.mu.Lock()
	s.Options.LastEndpoint = ep
	s.mu.Unlock()
}

// Send validates generic pattern rules, then dispatches to the pattern
// hook. Suspends (briefly polling) on EAGAIN unless DontWait or a
// zero SndTimeo is set; a positive SndTimeo bounds the suspension.
func (s *Socket) Send(m *msg.Msg, flags Flags) error {
	if s.Terminating() {
		return zmqerr.New(zmqerr.ETERM, "socket.Send", "")
	}

	if flags&SndMore != 0 {
		m.SetMore(true)
	}

	err := s.pattern.XSend(s, m, flags)
	if err == nil {
		return nil
	}
	if !zmqerrIsEAGAIN(err) || flags&DontWait != 0 {
		return err
	}

	return s.suspendUntil(s.Options.SndTimeo, func() error {
		return s.pattern.XSend(s, m, flags)
	})
}

// Recv dispatches to the pattern hook, suspending on EAGAIN the same way
// as Send unless DontWait is set.
func (s *Socket) Recv(flags Flags) (*msg.Msg, error) {
	if s.Terminating() {
		return nil, zmqerr.New(zmqerr.ETERM, "socket.Recv", "")
	}

	m, err := s.pattern.XRecv(s, flags)
	if err == nil {
		s.rcvMore = m.HasMore()
		return m, nil
	}
	if !zmqerrIsEAGAIN(err) || flags&DontWait != 0 {
		return nil, err
	}

	var out *msg.Msg
	serr := s.suspendUntil(s.Options.RcvTimeo, func() error {
		var e error
		out, e = s.pattern.XRecv(s, flags)
		return e
	})
	if serr == nil {
		s.rcvMore = out.HasMore()
	}
	return out, serr
}

// suspendUntil polls fn until it stops returning EAGAIN, the socket
// terminates, or timeo elapses (timeo<0 means forever). Suspension is one
// of the only three points a user call may block.
func (s *Socket) suspendUntil(timeo time.Duration, fn func() error) error {
	var deadline time.Time
	if timeo >= 0 {
		deadline = clock.Now().Add(timeo)
	}
	for {
		if s.Terminating() {
			return zmqerr.New(zmqerr.ETERM, "socket.suspend", "")
		}
		err := fn()
		if err == nil || !zmqerrIsEAGAIN(err) {
			return err
		}
		if timeo >= 0 && !clock.Now().Before(deadline) {
			return err
		}
		time.Sleep(time.Millisecond)
	}
}

func zmqerrIsEAGAIN(err error) bool {
	return zmqerr.Is(err, zmqerr.EAGAIN)
}

// Close initiates termination.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.Own.Term(s.Options.Linger)
}

// HasIn/HasOut back the poller's readiness queries.
func (s *Socket) HasIn() bool  { return s.pattern.XHasIn() }
func (s *Socket) HasOut() bool { return s.pattern.XHasOut() }
