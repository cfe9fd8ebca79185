package socket

import (
	"crypto/rand"

	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// routerWritePhase tracks where a multi-frame outbound message sits
// relative to its leading identity-selector frame.
type routerWritePhase int

const (
	routerSelectID routerWritePhase = iota
	routerForwarding
	routerDropping
)

type routerWriter struct {
	pipe  *pipe.Pipe
	phase routerWritePhase
}

type routerReader struct {
	pipe            *pipe.Pipe
	identity        []byte
	identityPending bool
}

// routerPattern prefixes every received message with the originating peer's
// identity and routes an outbound message's first frame (the identity) to
// that peer's pipe.
type routerPattern struct {
	sock *Socket
	w    routerWriter
	r    routerReader
}

func NewRouter(hooks Hooks) *Socket {
	s := newSocket(ROUTER, hooks)
	s.pattern = &routerPattern{sock: s}
	return s
}

func generateIdentity() []byte {
	id := make([]byte, 6)
	id[0] = 0 // 0x00-prefixed, reserved for library-generated identities
	rand.Read(id[1:])
	return id
}

func (p *routerPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) {
	if len(identity) == 0 {
		p.sock.Pipes.SetIdentity(pp, generateIdentity())
	}
}

func (p *routerPattern) XTerminated(pp *pipe.Pipe) {
	if p.w.pipe == pp {
		p.w.pipe = nil
		p.w.phase = routerSelectID
	}
	if p.r.pipe == pp {
		p.r.pipe = nil
	}
}

func (p *routerPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
	switch p.w.phase {
	case routerSelectID:
		id := append([]byte(nil), m.Data()...)
		m.Close()
		if dest := s.Pipes.ByIdentity(id); dest != nil {
			p.w.pipe = dest
			p.w.phase = routerForwarding
		} else if s.Options.RouterMandatory {
			return zmqerr.New(zmqerr.EHOSTUNREACH, "router.Send", "no peer with that identity")
		} else {
			p.w.phase = routerDropping
		}
		return nil
	case routerForwarding:
		if !p.w.pipe.Write(m) {
			return p.w.pipe.SendErr(false)
		}
		p.w.pipe.Flush()
		if !m.HasMore() {
			p.w.pipe = nil
			p.w.phase = routerSelectID
		}
		return nil
	default: // routerDropping
		more := m.HasMore()
		m.Close()
		if !more {
			p.w.phase = routerSelectID
		}
		return nil
	}
}

func (p *routerPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	if p.r.pipe == nil {
		pp, id := s.Pipes.NextReadable()
		if pp == nil {
			return nil, zmqerr.New(zmqerr.EAGAIN, "router.Recv", "")
		}
		p.r.pipe = pp
		p.r.identity = id
		p.r.identityPending = true
	}
	if p.r.identityPending {
		p.r.identityPending = false
		idm := msg.NewBuffer(p.r.identity, true)
		idm.SetFlags(msg.IDENTITY | msg.MORE)
		return idm, nil
	}
	var m *msg.Msg
	if !p.r.pipe.Read(&m) {
		return nil, zmqerr.New(zmqerr.EAGAIN, "router.Recv", "")
	}
	if !m.HasMore() {
		p.r.pipe = nil
	}
	return m, nil
}

func (p *routerPattern) XHasIn() bool {
	if p.r.pipe != nil {
		return true // mid-message, or identity frame still pending
	}
	ok := false
	p.sock.Pipes.Each(func(pp *pipe.Pipe, _ []byte) {
		if pp.CheckRead() {
			ok = true
		}
	})
	return ok
}
func (p *routerPattern) XHasOut() bool { return p.sock.Pipes.Len() > 0 }

func (p *routerPattern) XReadActivated(pp *pipe.Pipe)  {}
func (p *routerPattern) XWriteActivated(pp *pipe.Pipe) {}
