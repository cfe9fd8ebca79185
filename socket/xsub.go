package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// xsubPattern is SUB without the Subscribe/Unsubscribe convenience API: the
// caller builds the raw subscribe/cancel command frame itself and Sends it,
// and XSUB broadcasts that frame to every attached pipe so it reaches every
// upstream XPUB. Ordinary published messages are fair-queued straight
// through with no local filtering.
type xsubPattern struct {
	sock *Socket
	r    fairQueueReader
}

func NewXSub(hooks Hooks) *Socket {
	s := newSocket(XSUB, hooks)
	s.pattern = &xsubPattern{sock: s}
	return s
}

func (p *xsubPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {}
func (p *xsubPattern) XTerminated(pp *pipe.Pipe) {
	if p.r.pipe == pp {
		p.r.pipe = nil
	}
}

func (p *xsubPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if !m.IsCommand() {
		m.Close()
		return zmqerr.New(zmqerr.ENOTSUP, "xsub.Send", "only subscribe/cancel command frames may be sent")
	}
	s.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.Write(m.Copy()) {
			pp.Flush()
		}
	})
	m.Close()
	return nil
}

func (p *xsubPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	m, ok := p.r.read(s.Pipes)
	if !ok {
		return nil, zmqerr.New(zmqerr.EAGAIN, "xsub.Recv", "")
	}
	return m, nil
}

func (p *xsubPattern) XHasIn() bool {
	ok := false
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.CheckRead() {
			ok = true
		}
	})
	return ok
}
func (p *xsubPattern) XHasOut() bool { return true }

func (p *xsubPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *xsubPattern) XWriteActivated(pp *pipe.Pipe) {}
