package transport

import (
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tobi-tobsen/netmq/iothread"
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/socket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func recvData(t *testing.T, s *socket.Socket) []byte {
	t.Helper()
	var out []byte
	waitFor(t, "message", func() bool {
		m, err := s.Recv(socket.DontWait)
		if err != nil {
			return false
		}
		out = append([]byte(nil), m.Data()...)
		m.Close()
		return true
	})
	return out
}

func TestSessionPairOverTCP(t *testing.T) {
	bound := socket.NewPair(nil)
	peer := socket.NewPair(nil)

	th := iothread.New(0, nil)
	th.Start()
	defer th.Stop()

	l, err := Listen("tcp", "127.0.0.1:0", bound, th, nil)
	require.NoError(t, err)
	defer l.Close()

	addr := strings.TrimPrefix(l.Resolved(), "tcp://")
	c := Connect("tcp", addr, peer, th, nil)
	defer c.Close()

	waitFor(t, "handshake", func() bool {
		return bound.Pipes.Len() == 1 && peer.Pipes.Len() == 1
	})

	require.NoError(t, peer.Send(msg.NewBuffer([]byte("over the wire"), true), socket.DontWait))
	require.Equal(t, []byte("over the wire"), recvData(t, bound))

	require.NoError(t, bound.Send(msg.NewBuffer([]byte("and back"), true), socket.DontWait))
	require.Equal(t, []byte("and back"), recvData(t, peer))
}

func TestSessionMultiFrameOverTCP(t *testing.T) {
	bound := socket.NewPair(nil)
	peer := socket.NewPair(nil)

	th := iothread.New(0, nil)
	th.Start()
	defer th.Stop()

	l, err := Listen("tcp", "127.0.0.1:0", bound, th, nil)
	require.NoError(t, err)
	defer l.Close()

	c := Connect("tcp", strings.TrimPrefix(l.Resolved(), "tcp://"), peer, th, nil)
	defer c.Close()

	waitFor(t, "handshake", func() bool {
		return bound.Pipes.Len() == 1 && peer.Pipes.Len() == 1
	})

	require.NoError(t, peer.Send(msg.NewBuffer([]byte("part1"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, peer.Send(msg.NewBuffer([]byte("part2"), true), socket.DontWait))

	require.Equal(t, []byte("part1"), recvData(t, bound))
	require.True(t, bound.RcvMore())
	require.Equal(t, []byte("part2"), recvData(t, bound))
	require.False(t, bound.RcvMore())
}

// flakyConn injects a single read failure when armed, then passes reads
// through again.
type flakyConn struct {
	net.Conn
	armed atomic.Bool
}

func (f *flakyConn) Read(p []byte) (int, error) {
	if f.armed.Swap(false) {
		return 0, errors.New("transient read fault")
	}
	return f.Conn.Read(p)
}

func TestSingleReadErrorIsOnlyAStrike(t *testing.T) {
	th := iothread.New(0, nil)
	th.Start()
	defer th.Stop()

	a := socket.NewPair(nil)
	b := socket.NewPair(nil)

	ca, cb := net.Pipe()
	flaky := &flakyConn{Conn: ca}
	sa := newSession(flaky, a, th, nil, nil)
	sb := newSession(cb, b, th, nil, nil)
	sa.start()
	sb.start()

	waitFor(t, "handshake", func() bool {
		return a.Pipes.Len() == 1 && b.Pipes.Len() == 1
	})

	// the read loop is parked inside Read, so the fault fires on the
	// read that follows the next message's frames
	flaky.armed.Store(true)
	require.NoError(t, b.Send(msg.NewBuffer([]byte("one"), true), socket.DontWait))
	require.Equal(t, []byte("one"), recvData(t, a))

	// a successful read cleared the streak; the session is still up
	require.NoError(t, b.Send(msg.NewBuffer([]byte("two"), true), socket.DontWait))
	require.Equal(t, []byte("two"), recvData(t, a))
	require.Equal(t, 1, a.Pipes.Len())

	sa.close(nil)
	sb.close(nil)
}

func TestRepeatedReadErrorsRemoveConnection(t *testing.T) {
	bound := socket.NewPair(nil)
	peer := socket.NewPair(nil)

	th := iothread.New(0, nil)
	th.Start()
	defer th.Stop()

	l, err := Listen("tcp", "127.0.0.1:0", bound, th, nil)
	require.NoError(t, err)
	defer l.Close()

	c := Connect("tcp", strings.TrimPrefix(l.Resolved(), "tcp://"), peer, th, nil)

	waitFor(t, "handshake", func() bool {
		return bound.Pipes.Len() == 1 && peer.Pipes.Len() == 1
	})

	// the peer goes away for good: the bound session reads EOF twice in a
	// row and removes the connection
	c.Close()
	waitFor(t, "connection removal", func() bool {
		return bound.Pipes.Len() == 0
	})
}
