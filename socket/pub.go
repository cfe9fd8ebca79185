package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// pubPattern broadcasts every published message to every pipe whose
// subscription set matches its leading topic frame; it never blocks and
// silently drops to slow or non-matching subscribers.
type pubPattern struct {
	sock *Socket
	subs *subStore

	active     bool
	recipients []*pipe.Pipe
}

func NewPub(hooks Hooks) *Socket {
	s := newSocket(PUB, hooks)
	s.pattern = &pubPattern{sock: s, subs: newSubStore()}
	return s
}

func (p *pubPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) { p.subs.attach(pp) }
func (p *pubPattern) XTerminated(pp *pipe.Pipe)                  { p.subs.detach(pp) }

func (p *pubPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if !p.active {
		p.recipients = p.subs.recipients(s.Pipes, m.Data())
		p.active = true
	}
	for _, pp := range p.recipients {
		if pp.Write(m.Copy()) {
			pp.Flush()
		}
	}
	more := m.HasMore()
	m.Close()
	if !more {
		p.active = false
		p.recipients = nil
	}
	return nil
}

func (p *pubPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	return nil, zmqerr.New(zmqerr.ENOTSUP, "pub.Recv", "PUB sockets do not receive")
}

func (p *pubPattern) XHasIn() bool  { return false }
func (p *pubPattern) XHasOut() bool { return true }

// XReadActivated drains and applies subscribe/unsubscribe command frames
// arriving from downstream SUB/XSUB peers; these never surface to the user.
func (p *pubPattern) XReadActivated(pp *pipe.Pipe) {
	for {
		var m *msg.Msg
		if !pp.Read(&m) {
			return
		}
		if m.IsCommand() {
			p.subs.apply(pp, m.Data())
		}
		m.Close()
	}
}

func (p *pubPattern) XWriteActivated(pp *pipe.Pipe) {}
