package zctx

import (
	"net"
	"strings"

	"github.com/tobi-tobsen/netmq/mailbox"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/transport"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// resolveNetAddr turns a tcp:// or ipc:// endpoint string into the
// network/address pair the net package wants, mapping the "*" wildcards.
func resolveNetAddr(endpoint string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(endpoint, "tcp://"):
		addr := strings.TrimPrefix(endpoint, "tcp://")
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return "", "", zmqerr.Wrap(zmqerr.EINVAL, "zctx.resolveNetAddr", err)
		}
		if host == "*" {
			host = ""
		}
		if port == "*" {
			port = "0"
		}
		return "tcp", net.JoinHostPort(host, port), nil
	case strings.HasPrefix(endpoint, "ipc://"):
		return "unix", strings.TrimPrefix(endpoint, "ipc://"), nil
	default:
		return "", "", zmqerr.New(zmqerr.EINVAL, "zctx.resolveNetAddr", endpoint)
	}
}

// BindTCP implements socket.Hooks for tcp:// and ipc:// binds: the
// listener is created on an I/O thread via its mailbox and the resolved
// endpoint (wildcard port filled in) is returned for LAST_ENDPOINT.
func (c *Context) BindTCP(endpoint string, s *socket.Socket) (string, error) {
	network, address, err := resolveNetAddr(endpoint)
	if err != nil {
		return "", err
	}

	t := c.pickThread()
	var (
		l    *transport.Listener
		lerr error
	)
	if err := c.runOn(t, mailbox.CmdBind, func() {
		l, lerr = transport.Listen(network, address, s, t, c.Logger)
	}); err != nil {
		return "", err
	}
	if lerr != nil {
		return "", lerr
	}

	resolved := l.Resolved()
	c.epMu.Lock()
	c.listeners[endpoint] = boundListener{l: l, s: s}
	c.listeners[resolved] = boundListener{l: l, s: s}
	c.epMu.Unlock()
	return resolved, nil
}

// ConnectTCP implements socket.Hooks for tcp:// and ipc:// connects: the
// connector starts dialing from an I/O thread and keeps redialing per the
// socket's reconnect schedule.
func (c *Context) ConnectTCP(endpoint string, s *socket.Socket) error {
	network, address, err := resolveNetAddr(endpoint)
	if err != nil {
		return err
	}

	t := c.pickThread()
	var conn *transport.Connector
	if err := c.runOn(t, mailbox.CmdConnect, func() {
		conn = transport.Connect(network, address, s, t, c.Logger)
	}); err != nil {
		return err
	}

	c.epMu.Lock()
	c.connectors = append(c.connectors, boundConnector{c: conn, s: s})
	c.epMu.Unlock()
	return nil
}
