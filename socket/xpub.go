package socket

import (
	"sync"

	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// xpubPattern is PUB with its subscription traffic surfaced to the user
// instead of consumed silently: each subscribe/unsubscribe command frame
// received from a downstream peer is queued for XRecv. By default only the
// first subscriber to a topic (and the last to leave it) is reported;
// XPUB_VERBOSE reports every individual command.
type xpubPattern struct {
	sock *Socket
	subs *subStore
	refs *topicRefCounts

	active     bool
	recipients []*pipe.Pipe

	mu      sync.Mutex
	pending []*msg.Msg
}

func NewXPub(hooks Hooks) *Socket {
	s := newSocket(XPUB, hooks)
	s.pattern = &xpubPattern{sock: s, subs: newSubStore(), refs: newTopicRefCounts()}
	return s
}

func (p *xpubPattern) XAttachPipe(pp *pipe.Pipe, identity []byte) { p.subs.attach(pp) }
func (p *xpubPattern) XTerminated(pp *pipe.Pipe)                  { p.subs.detach(pp) }

func (p *xpubPattern) XSend(s *Socket, m *msg.Msg, flags Flags) error {
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

func (p *xpubPattern) XRecv(s *Socket, flags Flags) (*msg.Msg, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, zmqerr.New(zmqerr.EAGAIN, "xpub.Recv", "")
	}
	m := p.pending[0]
	p.pending = p.pending[1:]
	return m, nil
}

func (p *xpubPattern) XReadActivated(pp *pipe.Pipe) {
	for {
		var m *msg.Msg
		if !pp.Read(&m) {
			return
		}
		if !m.IsCommand() {
			m.Close()
			continue
		}
		subscribe, topic := p.subs.apply(pp, m.Data())
		report := p.sock.Options.XPubVerbose
		if subscribe && p.refs.subscribe(topic) {
			report = true
		} else if !subscribe && p.refs.unsubscribe(topic) {
			report = true
		}
		if report {
			p.mu.Lock()
			p.pending = append(p.pending, m)
			p.mu.Unlock()
			p.sock.fireRecvReady()
		} else {
			m.Close()
		}
	}
}

func (p *xpubPattern) XWriteActivated(pp *pipe.Pipe) {}

func (p *xpubPattern) XHasIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) > 0
}
func (p *xpubPattern) XHasOut() bool { return true }
