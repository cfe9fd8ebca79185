package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// pullPattern is receive-only, fair-queuing across every attached
// pipe. Send is not supported.
type pullPattern struct {
	sock *Socket
	r    fairQueueReader
}

func NewPull(hooks Hooks) *Socket {
	s := newSocket(PULL, hooks)
	s.pattern = &pullPattern{sock: s}
	return s
}

func (p *pullPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {}
func (p *pullPattern) XTerminated(pp *pipe.Pipe) {
	if p.r.pipe == pp {
		p.r.pipe = nil
	}
}

func (p *pullPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	return zmqerr.New(zmqerr.ENOTSUP, "pull.Send", "PULL sockets do not send")
}

func (p *pullPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	m, ok := p.r.read(s.Pipes)
	if !ok {
		return nil, zmqerr.New(zmqerr.EAGAIN, "pull.Recv", "")
	}
	return m, nil
}

func (p *pullPattern) XHasIn() bool {
	ok := false
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.CheckRead() {
			ok = true
		}
	})
	return ok
}
func (p *pullPattern) XHasOut() bool { return false }

func (p *pullPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *pullPattern) XWriteActivated(pp *pipe.Pipe) {}
