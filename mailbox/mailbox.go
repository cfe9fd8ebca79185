// Package mailbox implements the cross-thread command queue used to carry
// control actions (bind, connect, term, activate-read/write, ...) between
// user threads and I/O-thread reactors. No shared object is ever mutated
// directly across threads; every cross-thread effect flows through here.
package mailbox

import "sync"

// CmdType identifies the kind of command carried by a Cmd.
type CmdType byte

const (
	CmdPlug CmdType = iota + 1
	CmdOwn
	CmdTermReq
	CmdTerm
	CmdTermAck
	CmdActivateRead
	CmdActivateWrite
	CmdAttachPipe
	CmdBind
	CmdConnect
	CmdStop
	CmdCustom
)

// Cmd is a single command addressed to a destination object, mirroring
// the ZObject command set plus the I/O-thread bind/connect/stop
// control actions.
type Cmd struct {
	Type CmdType
	Dest any // the object the command targets; interpreted by the receiver
	Arg  any // payload: *linger value, a pipe handle, an endpoint string, ...
}

// Mailbox is a single-reader, multi-writer command queue signalled by a
// channel so the owning reactor wakes promptly (the in-process analogue of
// an eventfd/self-pipe). Safe for concurrent Send/TrySend from many
// goroutines and for Close from any goroutine; the owning reactor
// goroutine is the only reader of Chan.
type Mailbox struct {
	mu     sync.Mutex
	closed bool
	ch     chan Cmd
}

// New returns a Mailbox with the given buffer depth. A depth of 0 makes
// Send block until the reactor receives from Chan, which is rarely what callers
// of a reactor mailbox want; most callers should pick a small buffer.
func New(depth int) *Mailbox {
	return &Mailbox{ch: make(chan Cmd, depth)}
}

// Send enqueues cmd, blocking if the mailbox is full. Returns false if the
// mailbox has been closed (the destination reactor has shut down).
func (m *Mailbox) Send(cmd Cmd) (ok bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	m.ch <- cmd
	return true
}

// TrySend enqueues cmd without blocking, returning false if the mailbox is
// full or closed.
func (m *Mailbox) TrySend(cmd Cmd) (ok bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case m.ch <- cmd:
		return true
	default:
		return false
	}
}

// Chan exposes the underlying channel for use in a reactor's select loop
// alongside poll readiness and timers.
func (m *Mailbox) Chan() <-chan Cmd { return m.ch }

// Close closes the mailbox. Idempotent. After Close, Send/TrySend return false.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}
