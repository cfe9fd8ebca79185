package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

type reqState int

const (
	reqSendRequest reqState = iota
	reqRecvReply
)

// reqPattern enforces strict send/recv alternation, injecting an empty
// delimiter frame ahead of every request and stripping the matching
// delimiter out of the reply before handing frames to the caller.
type reqPattern struct {
	sock *Socket

	state reqState
	pipe  *pipe.Pipe

	started  bool // a request is partway through being written
	inReply  bool // delimiter already consumed for the in-flight reply
}

func NewReq(hooks Hooks) *Socket {
	s := newSocket(REQ, hooks)
	s.pattern = &reqPattern{sock: s}
	return s
}

func (p *reqPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {}
func (p *reqPattern) XTerminated(pp *pipe.Pipe) {
	if p.pipe == pp {
		p.pipe = nil
		p.started = false
		p.inReply = false
		p.state = reqSendRequest
	}
}

func (p *reqPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if p.state != reqSendRequest {
		return zmqerr.New(zmqerr.EFSM, "req.Send", "a reply is still pending")
	}
	if !p.started {
		pp := s.Pipes.NextWritable()
		if pp == nil {
			return zmqerr.New(zmqerr.EAGAIN, "req.Send", "no peer attached")
		}
		delim := msg.NewDelimiter()
		delim.SetMore(true)
		if !pp.Write(delim) {
			return pp.SendErr(false)
		}
		p.pipe = pp
		p.started = true
	}
	if !p.pipe.Write(m) {
		return p.pipe.SendErr(false)
	}
	p.pipe.Flush()
	if !m.HasMore() {
		p.started = false
		p.state = reqRecvReply
	}
	return nil
}

func (p *reqPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	if p.state != reqRecvReply {
		return nil, zmqerr.New(zmqerr.EFSM, "req.Recv", "no request is outstanding")
	}
	if p.pipe == nil {
		return nil, zmqerr.New(zmqerr.EAGAIN, "req.Recv", "")
	}

	if !p.inReply {
		for {
			var m *msg.Msg
			if !p.pipe.Read(&m) {
				return nil, zmqerr.New(zmqerr.EAGAIN, "req.Recv", "")
			}
			if m.IsDelimiter() {
				p.inReply = true
				break
			}
			m.Close() // malformed prefix ahead of the delimiter: discard and keep looking
		}
	}

	var m *msg.Msg
	if !p.pipe.Read(&m) {
		return nil, zmqerr.New(zmqerr.EAGAIN, "req.Recv", "")
	}
	if !m.HasMore() {
		p.inReply = false
		p.state = reqSendRequest
	}
	return m, nil
}

func (p *reqPattern) XHasIn() bool  { return p.state == reqRecvReply && p.pipe != nil && p.pipe.CheckRead() }
func (p *reqPattern) XHasOut() bool { return p.state == reqSendRequest && p.sock.Pipes.Len() > 0 }

func (p *reqPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *reqPattern) XWriteActivated(pp *pipe.Pipe) {}
