package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tobi-tobsen/netmq/iothread"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// Listener accepts connections for a bound socket, spawning a session per
// accepted conn. One Listener per bound tcp/ipc endpoint.
type Listener struct {
	ln      net.Listener
	network string
	sock    *socket.Socket
	thread  *iothread.Thread
	logger  *zerolog.Logger

	mu       sync.Mutex
	sessions []*Session
	closed   atomic.Bool
}

// Listen binds network ("tcp" or "unix") on address and starts accepting.
// thread owns the error-streak bookkeeping for every accepted session.
func Listen(network, address string, sock *socket.Socket, thread *iothread.Thread, logger *zerolog.Logger) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, wrapNetErr("transport.Listen", err)
	}
	l := &Listener{ln: ln, network: network, sock: sock, thread: thread, logger: logger}
	go l.acceptLoop()
	return l, nil
}

// Resolved returns the endpoint string actually bound, with any wildcard
// port replaced by the one the kernel assigned.
func (l *Listener) Resolved() string {
	if l.network == "unix" {
		return "ipc://" + l.ln.Addr().String()
	}
	return "tcp://" + l.ln.Addr().String()
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return // listener closed
		}
		if l.closed.Load() {
			conn.Close()
			return
		}
		sess := newSession(conn, l.sock, l.thread, l.logger, nil)
		l.mu.Lock()
		l.sessions = append(l.sessions, sess)
		l.mu.Unlock()
		sess.start()
	}
}

// Close stops accepting and closes every session spawned so far.
func (l *Listener) Close() {
	if l.closed.Swap(true) {
		return
	}
	l.ln.Close()
	l.mu.Lock()
	sessions := append([]*Session(nil), l.sessions...)
	l.mu.Unlock()
	for _, s := range sessions {
		s.close(nil)
	}
}

func wrapNetErr(op string, err error) error {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return zmqerr.Wrap(zmqerr.EADDRINUSE, op, err)
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return zmqerr.Wrap(zmqerr.EADDRNOTAVAIL, op, err)
	default:
		return zmqerr.Wrap(zmqerr.EINVAL, op, err)
	}
}
