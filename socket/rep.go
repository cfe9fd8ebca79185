package socket

import (
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

type repState int

const (
	repRecvRequest repState = iota
	repSendReply
)

// repPattern accumulates the routing frames (labels through the empty
// delimiter) of an incoming request and replays them as the prefix of the
// eventual reply, so the reply retraces the request's path through any
// intervening ROUTER hops.
type repPattern struct {
	sock *Socket

	state repState
	pipe  *pipe.Pipe

	collecting bool
	backtrace  []*msg.Msg

	replayed  bool
	replayIdx int
}

func NewRep(hooks Hooks) *Socket {
	s := newSocket(REP, hooks)
	s.pattern = &repPattern{sock: s}
	return s
}

func (p *repPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {}
func (p *repPattern) XTerminated(pp *pipe.Pipe) {
	if p.pipe == pp {
		p.resetRequest()
	}
}

func (p *repPattern) resetRequest() {
	for _, f := range p.backtrace {
		f.Close()
	}
	p.pipe = nil
	p.backtrace = nil
	p.collecting = false
	p.replayed = false
	p.replayIdx = 0
	p.state = repRecvRequest
}

func (p *repPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	if p.state != repRecvRequest {
		return nil, zmqerr.New(zmqerr.EFSM, "rep.Recv", "a reply is still pending")
	}

	for {
		if p.pipe == nil {
			pp, _ := s.Pipes.NextReadable()
			if pp == nil {
				return nil, zmqerr.New(zmqerr.EAGAIN, "rep.Recv", "")
			}
			p.pipe = pp
			p.collecting = true
			p.backtrace = nil
		}

		if p.collecting {
			var m *msg.Msg
			if !p.pipe.Read(&m) {
				return nil, zmqerr.New(zmqerr.EAGAIN, "rep.Recv", "")
			}
			p.backtrace = append(p.backtrace, m)
			if m.IsDelimiter() {
				p.collecting = false
				continue
			}
			if !m.HasMore() {
				// ran out of frames without ever finding a delimiter: garbage
				// from this peer, drop it and try the next ready pipe
				for _, f := range p.backtrace {
					f.Close()
				}
				p.backtrace = nil
				p.pipe = nil
				continue
			}
			continue
		}

		var m *msg.Msg
		if !p.pipe.Read(&m) {
			return nil, zmqerr.New(zmqerr.EAGAIN, "rep.Recv", "")
		}
		if !m.HasMore() {
			p.state = repSendReply
		}
		return m, nil
	}
}

func (p *repPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	if p.state != repSendReply {
		return zmqerr.New(zmqerr.EFSM, "rep.Send", "no request is outstanding")
	}

	if !p.replayed {
		for ; p.replayIdx < len(p.backtrace); p.replayIdx++ {
			if !p.pipe.Write(p.backtrace[p.replayIdx]) {
				return p.pipe.SendErr(false)
			}
		}
		p.replayed = true
	}

	if !p.pipe.Write(m) {
		return p.pipe.SendErr(false)
	}
	p.pipe.Flush()

	if !m.HasMore() {
		p.backtrace = nil
		p.pipe = nil
		p.collecting = false
		p.replayed = false
		p.replayIdx = 0
		p.state = repRecvRequest
	}
	return nil
}

func (p *repPattern) XHasIn() bool {
	if p.state != repRecvRequest {
		return false
	}
	if p.pipe != nil {
		return p.pipe.CheckRead()
	}
	ok := false
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.CheckRead() {
			ok = true
		}
	})
	return ok
}
func (p *repPattern) XHasOut() bool { return p.state == repSendReply }

func (p *repPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *repPattern) XWriteActivated(pp *pipe.Pipe) {}
