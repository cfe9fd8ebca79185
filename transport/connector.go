package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tobi-tobsen/netmq/clock"
	"github.com/tobi-tobsen/netmq/iothread"
	"github.com/tobi-tobsen/netmq/socket"
)

// Connector dials a remote endpoint for a connecting socket, re-dialing on
// a RECONNECT_IVL/RECONNECT_IVL_MAX backoff schedule driven by the owning
// I/O thread's timers rather than a dedicated goroutine per endpoint.
type Connector struct {
	network string
	address string
	sock    *socket.Socket
	thread  *iothread.Thread
	logger  *zerolog.Logger

	attempt atomic.Int32
	closed  atomic.Bool

	mu   sync.Mutex
	sess *Session
}

// Connect starts dialing network//address on behalf of sock. The returned
// Connector keeps redialing after failures and disconnects until Close.
func Connect(network, address string, sock *socket.Socket, thread *iothread.Thread, logger *zerolog.Logger) *Connector {
	c := &Connector{
		network: network,
		address: address,
		sock:    sock,
		thread:  thread,
		logger:  logger,
	}
	c.dial()
	return c
}

func (c *Connector) dial() {
	if c.closed.Load() || c.sock.Terminating() {
		return
	}
	go func() {
		conn, err := net.Dial(c.network, c.address)
		if err != nil {
			c.retry()
			return
		}
		if c.closed.Load() || c.sock.Terminating() {
			conn.Close()
			return
		}
		c.attempt.Store(0)
		sess := newSession(conn, c.sock, c.thread, c.logger, c.sessionClosed)
		c.mu.Lock()
		c.sess = sess
		c.mu.Unlock()
		sess.start()
	}()
}

func (c *Connector) retry() {
	iv := clock.Backoff(c.sock.Options.ReconnectIvl, c.sock.Options.ReconnectIvlMax, int(c.attempt.Load()))
	c.attempt.Add(1)
	if iv <= 0 {
		iv = 100 * time.Millisecond
	}
	c.thread.Schedule(iv, c.dial)
}

func (c *Connector) sessionClosed() {
	if !c.closed.Load() {
		c.retry()
	}
}

// Close stops redialing and closes the live session, if any.
func (c *Connector) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		sess.close(nil)
	}
}
