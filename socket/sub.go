package socket

import (
	"bytes"
	"sync"

	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// subPattern maintains a local topic filter and keeps every upstream pipe
// informed of it via subscribe/unsubscribe command frames, fair-queuing
// only the messages that pass the local filter.
type subPattern struct {
	sock *Socket
	r    fairQueueReader

	// filter decisions are made on a message's first (topic) frame and
	// carried across the rest of its frames
	accepting bool
	dropping  bool

	mu     sync.Mutex
	topics [][]byte
}

func NewSub(hooks Hooks) *Socket {
	s := newSocket(SUB, hooks)
	s.pattern = &subPattern{sock: s}
	return s
}

func (p *subPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {
	p.mu.Lock()
	topics := append([][]byte(nil), p.topics...)
	p.mu.Unlock()
	for _, t := range topics {
		sendSubscribeCmd(pp, true, t)
	}
}

func (p *subPattern) XTerminated(pp *pipe.Pipe) {
	if p.r.pipe == pp {
		p.r.pipe = nil
		p.accepting = false
		p.dropping = false
	}
}

func sendSubscribeCmd(pp *pipe.Pipe, subscribe bool, topic []byte) {
	cmd := make([]byte, 1+len(topic))
	if subscribe {
		cmd[0] = 1
	}
	copy(cmd[1:], topic)
	m := msg.NewBuffer(cmd, true)
	m.SetFlags(msg.COMMAND)
	if pp.Write(m) {
		pp.Flush()
	}
}

func (p *subPattern) subscribe(topic []byte) error {
	t := append([]byte(nil), topic...)
	p.mu.Lock()
	p.topics = append(p.topics, t)
	p.mu.Unlock()
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) { sendSubscribeCmd(pp, true, t) })
	return nil
}

func (p *subPattern) unsubscribe(topic []byte) error {
	p.mu.Lock()
	for i, t := range p.topics {
		if bytes.Equal(t, topic) {
			p.topics = append(p.topics[:i], p.topics[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) { sendSubscribeCmd(pp, false, topic) })
	return nil
}

func (p *subPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	return zmqerr.New(zmqerr.ENOTSUP, "sub.Send", "use Subscribe/Unsubscribe")
}

func (p *subPattern) matchesLocal(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.topics) == 0 {
		return false
	}
	for _, t := range p.topics {
		if bytes.HasPrefix(data, t) {
			return true
		}
	}
	return false
}

func (p *subPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	for {
		m, ok := p.r.read(s.Pipes)
		if !ok {
			return nil, zmqerr.New(zmqerr.EAGAIN, "sub.Recv", "")
		}

		// later frames of a message already accepted or rejected on its
		// topic frame
		if p.accepting {
			if !m.HasMore() {
				p.accepting = false
			}
			return m, nil
		}
		if p.dropping {
			if !m.HasMore() {
				p.dropping = false
			}
			m.Close()
			continue
		}

		if p.matchesLocal(m.Data()) {
			p.accepting = m.HasMore()
			return m, nil
		}
		p.dropping = m.HasMore()
		m.Close()
	}
}

func (p *subPattern) XHasIn() bool {
	ok := false
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.CheckRead() {
			ok = true
		}
	})
	return ok
}
func (p *subPattern) XHasOut() bool { return false }

func (p *subPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *subPattern) XWriteActivated(pp *pipe.Pipe) {}
