package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// pairPattern connects to exactly one peer bidirectionally.
// A second pipe attaching while one is already live is rejected outright.
type pairPattern struct {
	peer *pipe.Pipe
}

func NewPair(hooks Hooks) *Socket {
	s := newSocket(PAIR, hooks)
	s.pattern = &pairPattern{}
	return s
}

func (p *pairPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {
	if p.peer != nil {
		pp.Terminate(false)
		return
	}
	p.peer = pp
}

func (p *pairPattern) XTerminated(pp *pipe.Pipe) {
	if p.peer == pp {
		p.peer = nil
	}
}

func (p *pairPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if p.peer == nil {
		return zmqerr.New(zmqerr.EAGAIN, "pair.Send", "no peer attached")
	}
	if !p.peer.Write(m) {
		return p.peer.SendErr(false)
	}
	p.peer.Flush()
	return nil
}

func (p *pairPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	if p.peer == nil {
		return nil, zmqerr.New(zmqerr.EAGAIN, "pair.Recv", "no peer attached")
	}
	var m *msg.Msg
	if !p.peer.Read(&m) {
		return nil, zmqerr.New(zmqerr.EAGAIN, "pair.Recv", "")
	}
	return m, nil
}

func (p *pairPattern) XHasIn() bool  { return p.peer != nil && p.peer.CheckRead() }
func (p *pairPattern) XHasOut() bool { return p.peer != nil }

func (p *pairPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *pairPattern) XWriteActivated(pp *pipe.Pipe) {}
