// Package pipe implements the bounded, single-producer/single-consumer
// message channel between two socket endpoints.
//
// Each endpoint of a pipe sees only its own half (ends[0] or ends[1]); the
// two halves are created together by NewPair so their HWM/LWM accounting
// and termination state stay consistent without either side reaching
// into the other's fields directly: each side touches disjoint fields
// except through atomic publication.
package pipe

import (
	"sync"
	"sync/atomic"

	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// state is the termination sub-state of one pipe half.
type state int32

const (
	stateActive state = iota
	stateDelimiterSent
	statePending
	stateTerminating
	stateTerminated
)

// ActivateFunc is called when a blocked writer should be woken because the
// reader's credit rose back past LWM, or when a reader should be woken
// because new data arrived: the in-process stand-in for the reactor
// "activate-write"/"activate-read" mailbox commands.
type ActivateFunc func()

// Pipe is one endpoint's view of a bidirectional queue pair. Reads come
// from this endpoint's inbound queue (filled by the peer's writes); writes
// go out through the shared queue the peer reads from.
type Pipe struct {
	hwm int // this end's receive high-water mark
	lwm int // low-water mark re-enabling the peer's writer

	in     chan *msg.Msg // messages the peer wrote, for us to Read
	credit chan struct{} // signalled when we publish read credit to the peer

	peer *Pipe // the other half, for write/flush/credit bookkeeping

	pending   []*msg.Msg // buffered outbound frames awaiting Flush
	readCount atomic.Int64

	st          atomic.Int32 // state
	ackReceived atomic.Bool
	ackSent     atomic.Bool

	onReaderIdle  ActivateFunc // set by the owning socket, called when the peer flushes a frame to us and on Hiccup
	onWriterReady ActivateFunc // called when our peer's credit frees up our writes

	mu sync.Mutex // guards pending and terminate bookkeeping
}

// NewPair creates the two ends of a pipe atomically, with independent HWMs
// for each direction (end A receives with hwmA, end B receives with hwmB).
// lwm is expressed as a message count below which a stalled writer resumes;
// a zero lwm defaults to hwm/2 (rounded up), analogous to libzmq's default.
func NewPair(hwmA, hwmB, lwm int) (a, b *Pipe) {
	if lwm <= 0 {
		lwm = (max(hwmA, hwmB) + 1) / 2
	}

	a = &Pipe{hwm: hwmA, lwm: lwm, in: make(chan *msg.Msg, maxCap(hwmA)), credit: make(chan struct{}, 1)}
	b = &Pipe{hwm: hwmB, lwm: lwm, in: make(chan *msg.Msg, maxCap(hwmB)), credit: make(chan struct{}, 1)}
	a.peer = b
	b.peer = a
	return a, b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// maxCap turns a zero/negative HWM (meaning "unbounded") into a generous
// channel capacity; true unbounded queueing is not meaningful for a Go
// channel, so an unbounded pipe gets a large finite buffer instead.
func maxCap(hwm int) int {
	if hwm <= 0 {
		return 1 << 16
	}
	return hwm
}

// SetActivateCallbacks wires the socket-level wake hooks; called once by
// the owning socket right after NewPair.
func (p *Pipe) SetActivateCallbacks(onReaderIdle, onWriterReady ActivateFunc) {
	p.onReaderIdle = onReaderIdle
	p.onWriterReady = onWriterReady
}

// CheckRead reports whether Read would return a message immediately.
func (p *Pipe) CheckRead() bool {
	return len(p.in) > 0
}

// Read pops the next message for this endpoint, or returns false if none
// is queued right now (the caller should suspend, or return EAGAIN under
// DONTWAIT).
func (p *Pipe) Read(out **msg.Msg) bool {
	select {
	case m, ok := <-p.in:
		if !ok {
			return false
		}
		*out = m
		p.publishCredit()
		return true
	default:
		return false
	}
}

// publishCredit increments our read counter and, once it has advanced
// enough to cross the peer's LWM since the last notification, wakes the
// peer's blocked writer.
func (p *Pipe) publishCredit() {
	n := p.readCount.Add(1)
	if p.hwm > 0 && n%int64(max(1, p.lwm)) == 0 {
		select {
		case p.credit <- struct{}{}:
		default:
		}
		if p.peer != nil && p.peer.onWriterReady != nil {
			p.peer.onWriterReady()
		}
	}
}

// Write enqueues msg for the peer to Read, returning false if the peer's
// HWM is currently exhausted (the producer must then suspend, or return
// EAGAIN under DONTWAIT). Frames of one logical message must be written in
// order without interleaving another message on the same pipe;
// Write does not itself enforce this; the socket layer serializes calls.
func (p *Pipe) Write(m *msg.Msg) bool {
	if state(p.st.Load()) >= stateTerminating {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peer.hwm > 0 && len(p.peer.in) >= p.peer.hwm {
		return false
	}

	p.pending = append(p.pending, m)
	return true
}

// Flush publishes buffered writes to the peer, making them visible to its
// Read. Returns the number of frames flushed.
func (p *Pipe) Flush() int {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	n := 0
	for _, m := range batch {
		select {
		case p.peer.in <- m:
			n++
			if p.peer.onReaderIdle != nil {
				p.peer.onReaderIdle()
			}
		default:
			// peer's channel buffer (sized from HWM) is momentarily full;
			// put back for the next Flush rather than drop or block.
			p.mu.Lock()
			p.pending = append([]*msg.Msg{m}, p.pending...)
			p.mu.Unlock()
			return n
		}
	}
	return n
}

// Rollback discards any buffered-but-not-yet-flushed frames of the current
// partial outbound message (REP's malformed-backtrace recovery path).
func (p *Pipe) Rollback() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.pending {
		m.Close()
	}
	p.pending = nil
}

// Hiccup signals that the peer pipe was replaced (e.g. after a reconnect);
// implementations that cache "is this pipe still good" state should recheck.
func (p *Pipe) Hiccup() {
	if p.onReaderIdle != nil {
		p.onReaderIdle()
	}
}

// Terminate begins the termination handshake for this end. If delaySends is
// true, a delimiter is enqueued first so already-buffered frames are still
// delivered before the peer observes end-of-stream.
func (p *Pipe) Terminate(delaySends bool) {
	for {
		cur := state(p.st.Load())
		if cur >= stateTerminating {
			return // idempotent: already converging
		}
		if p.st.CompareAndSwap(int32(cur), int32(stateTerminating)) {
			break
		}
	}

	if delaySends {
		p.mu.Lock()
		p.pending = append(p.pending, msg.NewDelimiter())
		p.mu.Unlock()
		p.Flush()
	}

	p.sendTermAck()
}

func (p *Pipe) sendTermAck() {
	if p.ackSent.Swap(true) {
		return
	}
	close(p.credit) // wakes anything still waiting on credit
	p.checkTerminated()
}

// OnPeerTermAck must be invoked (by the owning socket/session glue) when
// the peer's term-ack is observed, completing the handshake on this side.
func (p *Pipe) OnPeerTermAck() {
	p.ackReceived.Store(true)
	p.checkTerminated()
}

func (p *Pipe) checkTerminated() {
	if p.ackSent.Load() && p.ackReceived.Load() {
		p.st.Store(int32(stateTerminated))
	}
}

// Terminated reports whether both sides of the handshake completed.
func (p *Pipe) Terminated() bool {
	return state(p.st.Load()) == stateTerminated
}

// Drained reports whether every frame written through this end has been
// consumed by the peer: nothing pending an un-flushed batch, nothing still
// sitting unread in the peer's inbound queue. Socket linger waits on this.
func (p *Pipe) Drained() bool {
	p.mu.Lock()
	pending := len(p.pending)
	p.mu.Unlock()
	return pending == 0 && len(p.peer.in) == 0
}

// SendErr is a convenience for callers that want a typed error instead of
// a bare false from Write when the pipe is already terminating.
func (p *Pipe) SendErr(wrote bool) error {
	if wrote {
		return nil
	}
	if state(p.st.Load()) >= stateTerminating {
		return zmqerr.New(zmqerr.ETERM, "pipe.Write", "pipe terminating")
	}
	return zmqerr.New(zmqerr.EAGAIN, "pipe.Write", "high-water mark reached")
}
