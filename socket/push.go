package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// pushPattern is send-only, load-balancing across every attached
// pipe. Recv is not supported.
type pushPattern struct {
	sock *Socket
	w    loadBalanceWriter
}

func NewPush(hooks Hooks) *Socket {
	s := newSocket(PUSH, hooks)
	s.pattern = &pushPattern{sock: s}
	return s
}

func (p *pushPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {}
func (p *pushPattern) XTerminated(pp *pipe.Pipe) {
	if p.w.pipe == pp {
		p.w.pipe = nil
	}
}

func (p *pushPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if !p.w.write(s.Pipes, m) {
		return zmqerr.New(zmqerr.EAGAIN, "push.Send", "")
	}
	return nil
}

func (p *pushPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	return nil, zmqerr.New(zmqerr.ENOTSUP, "push.Recv", "PUSH sockets do not receive")
}

func (p *pushPattern) XHasIn() bool  { return false }
func (p *pushPattern) XHasOut() bool { return p.sock.Pipes.Len() > 0 }

func (p *pushPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *pushPattern) XWriteActivated(pp *pipe.Pipe) {}
