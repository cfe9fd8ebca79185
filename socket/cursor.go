package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
)

// loadBalanceWriter sticks to one pipe across the frames of a single
// logical message (so MORE-chained frames never split across peers),
// picking a fresh pipe via the PipeSet's round-robin cursor only when
// starting a new message.
type loadBalanceWriter struct {
	pipe *pipe.Pipe
}

func (w *loadBalanceWriter) write(ps *PipeSet, m *msg.Msg) bool {
	if w.pipe == nil {
		w.pipe = ps.NextWritable()
		if w.pipe == nil {
			return false
		}
	}
	if !w.pipe.Write(m) {
		return false
	}
	w.pipe.Flush()
	if !m.HasMore() {
		w.pipe = nil
	}
	return true
}

// fairQueueReader mirrors loadBalanceWriter for the receive side: it keeps
// reading from the same pipe across a partial message, only consulting the
// fair-queue cursor when starting a fresh one.
type fairQueueReader struct {
	pipe *pipe.Pipe
}

func (r *fairQueueReader) read(ps *PipeSet) (*msg.Msg, bool) {
	if r.pipe == nil {
		p, _ := ps.NextReadable()
		if p == nil {
			return nil, false
		}
		r.pipe = p
	}
	var m *msg.Msg
	if !r.pipe.Read(&m) {
		return nil, false
	}
	if !m.HasMore() {
		r.pipe = nil
	}
	return m, true
}
