// Package poller multiplexes readiness across sockets and timers in the
// caller's thread and drives user callbacks on ReceiveReady/SendReady
// transitions.
package poller

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tobi-tobsen/netmq/clock"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// Item is one socket's entry in a Poll call. Events is what the caller
// waits for; Ready is what Poll observed.
type Item struct {
	Socket *socket.Socket
	Events socket.PollEvents
	Ready  socket.PollEvents
}

// Poll blocks until at least one item is ready or timeout elapses
// (timeout < 0 waits forever), returning the number of ready items. A
// terminating socket reports PollErr. Zero ready items means timeout.
func Poll(items []Item, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = clock.Now().Add(timeout)
	}
	for {
		ready := 0
		for i := range items {
			items[i].Ready = 0
			s := items[i].Socket
			if s == nil {
				continue
			}
			if s.Terminating() {
				items[i].Ready |= socket.PollErr
			}
			if items[i].Events&socket.PollIn != 0 && s.HasIn() {
				items[i].Ready |= socket.PollIn
			}
			if items[i].Events&socket.PollOut != 0 && s.HasOut() {
				items[i].Ready |= socket.PollOut
			}
			if items[i].Ready != 0 {
				ready++
			}
		}
		if ready > 0 {
			return ready, nil
		}
		if timeout >= 0 && !clock.Now().Before(deadline) {
			return 0, zmqerr.New(zmqerr.EAGAIN, "poller.Poll", "timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

// Handler is a socket readiness callback, invoked synchronously inside
// the poller's loop.
type Handler func(s *socket.Socket)

type pollItem struct {
	sock     *socket.Socket
	onRecv   Handler
	onSend   Handler
	sendable bool // last observed HasOut, for edge-triggered SendReady
}

type timer struct {
	interval time.Duration
	fn       func()
	deadline clock.Deadline
	enabled  atomic.Bool
}

// Poller runs a loop dispatching ReceiveReady/SendReady callbacks and
// timer callbacks until Stop. ReceiveReady is level-triggered (fires as
// long as a message is readable, so the callback can consume one per
// pass); SendReady fires on the not-writable -> writable edge.
type Poller struct {
	mu     sync.Mutex
	items  []*pollItem
	timers []*timer

	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool
	stopped atomic.Bool
}

func New() *Poller {
	return &Poller{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Add registers a socket with its readiness callbacks; either may be nil.
func (p *Poller) Add(s *socket.Socket, onRecv, onSend Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, &pollItem{sock: s, onRecv: onRecv, onSend: onSend})
}

// Remove drops a socket from the loop.
func (p *Poller) Remove(s *socket.Socket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, it := range p.items {
		if it.sock == s {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return
		}
	}
}

// AddTimer schedules fn every interval while the poller runs, returning a
// disable function. The first fire is one interval from now.
func (p *Poller) AddTimer(interval time.Duration, fn func()) (cancel func()) {
	t := &timer{interval: interval, fn: fn}
	t.deadline.Arm(interval)
	t.enabled.Store(true)
	p.mu.Lock()
	p.timers = append(p.timers, t)
	p.mu.Unlock()
	return func() { t.enabled.Store(false) }
}

// Run executes the loop on the calling goroutine until Stop is called or
// every registered socket is terminating (so a context teardown unblocks
// a poller nobody explicitly stopped). Call it from exactly one goroutine.
func (p *Poller) Run() {
	if p.running.Swap(true) {
		return
	}
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		p.mu.Lock()
		items := append([]*pollItem(nil), p.items...)
		timers := append([]*timer(nil), p.timers...)
		p.mu.Unlock()

		alive := len(items) == 0 // a pure-timer poller stays alive
		for _, it := range items {
			if it.sock.Terminating() {
				continue
			}
			alive = true
			if it.onRecv != nil && it.sock.HasIn() {
				it.onRecv(it.sock)
			}
			if it.onSend != nil {
				writable := it.sock.HasOut()
				if writable && !it.sendable {
					it.onSend(it.sock)
				}
				it.sendable = writable
			}
		}
		if !alive {
			return
		}

		for _, t := range timers {
			if t.enabled.Load() && t.deadline.Due() {
				t.fn()
				if t.enabled.Load() {
					t.deadline.Arm(t.interval)
				}
			}
		}

		time.Sleep(time.Millisecond)
	}
}

// Stop cancels the loop cooperatively; with wait it blocks until the loop
// has exited. Safe to call more than once and before Run.
func (p *Poller) Stop(wait bool) {
	if !p.stopped.Swap(true) {
		close(p.stop)
	}
	if wait && p.running.Load() {
		<-p.done
	}
}
