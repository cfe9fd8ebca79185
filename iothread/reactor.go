// Package iothread implements the I/O-thread reactor: a single goroutine
// that owns a mailbox of cross-thread commands plus a tickless timer set,
// the in-process analogue of libzmq's io_thread_t/poller_t pairing.
package iothread

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tobi-tobsen/netmq/mailbox"
)

// Thread runs one reactor loop. A Context (see package zctx) owns a small,
// configurable pool of these and assigns each new session/engine to one
// round-robin, mirroring ZMQ_IO_THREADS.
type Thread struct {
	ID int

	mailbox *mailbox.Mailbox
	logger  *zerolog.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pollErr map[any]int
}

// New constructs a reactor thread; call Start to launch its goroutine.
func New(id int, logger *zerolog.Logger) *Thread {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Thread{
		ID:      id,
		mailbox: mailbox.New(64),
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		ctx:     ctx,
		cancel:  cancel,
		pollErr: make(map[any]int),
	}
}

// Mailbox exposes the thread's command queue for posting bind/connect/term/
// activate commands from user goroutines.
func (t *Thread) Mailbox() *mailbox.Mailbox { return t.mailbox }

// Start launches the reactor loop.
func (t *Thread) Start() {
	t.wg.Add(1)
	go t.run()
}

// Stop cancels the reactor and waits for its goroutine to exit.
func (t *Thread) Stop() {
	t.cancel(nil)
	t.mailbox.Close()
	t.wg.Wait()
}

func (t *Thread) run() {
	defer t.wg.Done()
	for {
		select {
		case cmd, ok := <-t.mailbox.Chan():
			if !ok {
				return
			}
			t.dispatch(cmd)
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *Thread) dispatch(cmd mailbox.Cmd) {
	if fn, ok := cmd.Arg.(func()); ok {
		fn()
	}
}

// Schedule runs fn on this reactor's goroutine after d elapses (the
// tickless timer: a plain time.AfterFunc posting back onto the mailbox,
// since Go's runtime timer heap already gives us the "only wake for the
// next deadline" property libzmq's timer list provides by hand).
func (t *Thread) Schedule(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		t.mailbox.TrySend(mailbox.Cmd{Type: mailbox.CmdCustom, Arg: fn})
	})
}

// ReportPollError records a poll/read error against key (typically the
// *pipe.Pipe or connection handle it occurred on). On the second
// consecutive report it logs once (rate-limited) and invokes terminate;
// the error is not propagated to blocked callers, who instead observe
// the connection's pipe leaving their socket's pipe set.
func (t *Thread) ReportPollError(key any, detail string, terminate func()) {
	t.mu.Lock()
	n := t.pollErr[key] + 1
	t.pollErr[key] = n
	t.mu.Unlock()

	if n < 2 {
		return
	}
	if t.limiter.Allow() {
		t.logger.Warn().Int("io_thread", t.ID).Str("detail", detail).Msg("repeated poll error, terminating connection")
	}
	t.mu.Lock()
	delete(t.pollErr, key)
	t.mu.Unlock()
	terminate()
}

// ClearPollError drops the error count for key, e.g. once a read succeeds.
func (t *Thread) ClearPollError(key any) {
	t.mu.Lock()
	delete(t.pollErr, key)
	t.mu.Unlock()
}
