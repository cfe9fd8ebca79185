package zctx

import (
	"strings"

	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// BindInproc implements socket.Hooks: registers s as the bound peer for
// name and attaches any connectors that arrived first (connect-before-bind
// is legal for inproc; the pipes appear once the binder shows up).
func (c *Context) BindInproc(name string, s *socket.Socket) error {
	c.inprocMu.Lock()
	if _, dup := c.inprocBound[name]; dup {
		c.inprocMu.Unlock()
		return zmqerr.New(zmqerr.EADDRINUSE, "zctx.BindInproc", "inproc://"+name)
	}
	c.inprocBound[name] = s
	pending := c.inprocPending[name]
	delete(c.inprocPending, name)
	c.inprocMu.Unlock()

	for _, conn := range pending {
		attachInprocPair(s, conn)
	}
	return nil
}

// ConnectInproc implements socket.Hooks: attaches a pipe pair to the bound
// peer immediately, or queues s until one binds.
func (c *Context) ConnectInproc(name string, s *socket.Socket) error {
	c.inprocMu.Lock()
	bound := c.inprocBound[name]
	if bound == nil {
		c.inprocPending[name] = append(c.inprocPending[name], s)
		c.inprocMu.Unlock()
		return nil
	}
	c.inprocMu.Unlock()

	attachInprocPair(bound, s)
	return nil
}

// Unbind implements socket.Hooks for every scheme: inproc drops the name
// registration, tcp/ipc closes the listener recorded at bind time.
func (c *Context) Unbind(endpoint string, s *socket.Socket) {
	if name, ok := strings.CutPrefix(endpoint, "inproc://"); ok {
		c.inprocMu.Lock()
		if c.inprocBound[name] == s {
			delete(c.inprocBound, name)
		}
		c.inprocMu.Unlock()
		return
	}

	c.epMu.Lock()
	bl, ok := c.listeners[endpoint]
	if ok {
		delete(c.listeners, endpoint)
	}
	c.epMu.Unlock()
	if ok {
		bl.l.Close()
	}
}

// attachInprocPair creates the pipe pair between a bound and a connecting
// socket. Each direction's capacity is the sum of the writer's SNDHWM and
// the reader's RCVHWM; if both are zero the direction is unbounded.
func attachInprocPair(bound, conn *socket.Socket) {
	intoBound := combineHWM(conn.Options.SndHWM, bound.Options.RcvHWM)
	intoConn := combineHWM(bound.Options.SndHWM, conn.Options.RcvHWM)

	a, b := pipe.NewPair(intoBound, intoConn, 0)
	bound.AttachPipe(a, conn.Options.Identity)
	conn.AttachPipe(b, bound.Options.Identity)
}

func combineHWM(snd, rcv int) int {
	if snd < 0 {
		snd = 0
	}
	if rcv < 0 {
		rcv = 0
	}
	return snd + rcv
}
