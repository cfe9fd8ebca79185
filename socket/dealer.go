package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// dealerPattern sends and receives unrestricted multipart messages,
// load-balancing writes and fair-queuing reads across its pipes with no
// envelope handling of its own.
type dealerPattern struct {
	sock *Socket
	w    loadBalanceWriter
	r    fairQueueReader
}

func NewDealer(hooks Hooks) *Socket {
	s := newSocket(DEALER, hooks)
	s.pattern = &dealerPattern{sock: s}
	return s
}

func (p *dealerPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {}
func (p *dealerPattern) XTerminated(pp *pipe.Pipe) {
	if p.w.pipe == pp {
		p.w.pipe = nil
	}
	if p.r.pipe == pp {
		p.r.pipe = nil
	}
}

func (p *dealerPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if !p.w.write(s.Pipes, m) {
		return zmqerr.New(zmqerr.EAGAIN, "dealer.Send", "")
	}
	return nil
}

func (p *dealerPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	m, ok := p.r.read(s.Pipes)
	if !ok {
		return nil, zmqerr.New(zmqerr.EAGAIN, "dealer.Recv", "")
	}
	return m, nil
}

func (p *dealerPattern) XHasIn() bool {
	ok := false
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.CheckRead() {
			ok = true
		}
	})
	return ok
}
func (p *dealerPattern) XHasOut() bool { return p.sock.Pipes.Len() > 0 }

func (p *dealerPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *dealerPattern) XWriteActivated(pp *pipe.Pipe) {}
