package socket

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tobi-tobsen/netmq/pipe"
)

// peerPipe pairs a pipe end with the peer identity ROUTER/SUB need.
type peerPipe struct {
	p        *pipe.Pipe
	identity []byte // ROUTER: assigned or generated identity of the peer on this pipe
}

// PipeSet holds every pipe currently attached to a socket and implements
// the fair-queue (read) and load-balance (write) round-robin cursors. The
// read cursor skips pipes with nothing ready and resumes just past the
// last one served; the write cursor hands out pipes in strict rotation and
// does not skip pipes whose HWM is exhausted. ROUTER's identity lookup
// is backed by an xsync.MapOf so a busy ROUTER's Send doesn't contend the
// cursor mutex against concurrent identity resolution.
type PipeSet struct {
	mu    sync.Mutex
	pipes []*peerPipe

	readCursor  int
	writeCursor int

	byIdentity *xsync.MapOf[string, *pipe.Pipe]
}

func NewPipeSet() *PipeSet {
	return &PipeSet{byIdentity: xsync.NewMapOf[string, *pipe.Pipe]()}
}

func (ps *PipeSet) Add(p *pipe.Pipe, identity []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pipes = append(ps.pipes, &peerPipe{p: p, identity: identity})
	if len(identity) > 0 {
		ps.byIdentity.Store(string(identity), p)
	}
}

// SetIdentity records the peer identity generated after Add (ROUTER
// assigns an identity only once it knows the peer didn't supply one).
func (ps *PipeSet) SetIdentity(p *pipe.Pipe, identity []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, pr := range ps.pipes {
		if pr.p == p {
			pr.identity = identity
			break
		}
	}
	ps.byIdentity.Store(string(identity), p)
}

func (ps *PipeSet) Remove(p *pipe.Pipe) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for i, pp := range ps.pipes {
		if pp.p == p {
			ps.pipes = append(ps.pipes[:i], ps.pipes[i+1:]...)
			if len(pp.identity) > 0 {
				ps.byIdentity.Delete(string(pp.identity))
			}
			if ps.readCursor > i {
				ps.readCursor--
			}
			if ps.writeCursor > i {
				ps.writeCursor--
			}
			return
		}
	}
}

func (ps *PipeSet) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.pipes)
}

// Each calls fn for every attached pipe, in attach order. fn must not call
// back into PipeSet.
func (ps *PipeSet) Each(fn func(p *pipe.Pipe, identity []byte)) {
	ps.mu.Lock()
	snap := append([]*peerPipe(nil), ps.pipes...)
	ps.mu.Unlock()
	for _, pp := range snap {
		fn(pp.p, pp.identity)
	}
}

// ByIdentity finds the pipe attached with the given ROUTER identity.
func (ps *PipeSet) ByIdentity(identity []byte) *pipe.Pipe {
	if p, ok := ps.byIdentity.Load(string(identity)); ok {
		return p
	}
	return nil
}

// NextReadable returns the next pipe (in round-robin order, starting just
// past the last one served) that currently has a message ready, advancing
// the cursor past it. Returns nil if none are ready.
func (ps *PipeSet) NextReadable() (*pipe.Pipe, []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	n := len(ps.pipes)
	if n == 0 {
		return nil, nil
	}
	for i := 0; i < n; i++ {
		idx := (ps.readCursor + i) % n
		pp := ps.pipes[idx]
		if pp.p.CheckRead() {
			ps.readCursor = (idx + 1) % n
			return pp.p, pp.identity
		}
	}
	return nil, nil
}

// NextWritable returns the next pipe for a load-balanced send, round-robin
// starting just past the last one served. It does not check whether the
// pipe can accept a write: a Write to a pipe at its HWM then fails, and no
// other pipe is tried for that frame.
func (ps *PipeSet) NextWritable() *pipe.Pipe {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	n := len(ps.pipes)
	if n == 0 {
		return nil
	}
	idx := ps.writeCursor % n
	ps.writeCursor = (idx + 1) % n
	return ps.pipes[idx].p
}

// AllFromCursor returns a snapshot of every attached pipe in rotation
// order starting at the write cursor, and advances the cursor by one.
func (ps *PipeSet) AllFromCursor() []*pipe.Pipe {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	n := len(ps.pipes)
	out := make([]*pipe.Pipe, n)
	for i := 0; i < n; i++ {
		out[i] = ps.pipes[(ps.writeCursor+i)%n].p
	}
	if n > 0 {
		ps.writeCursor = (ps.writeCursor + 1) % n
	}
	return out
}
