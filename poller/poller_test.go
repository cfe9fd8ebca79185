package poller

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

func pushPullPair() (push, pull *socket.Socket) {
	push = socket.NewPush(nil)
	pull = socket.NewPull(nil)
	a, b := pipe.NewPair(10, 10, 0)
	push.AttachPipe(a, nil)
	pull.AttachPipe(b, nil)
	return push, pull
}

func TestPollTimeout(t *testing.T) {
	_, pull := pushPullPair()
	items := []Item{{Socket: pull, Events: socket.PollIn}}

	n, err := Poll(items, 10*time.Millisecond)
	require.Equal(t, 0, n)
	require.True(t, zmqerr.Is(err, zmqerr.EAGAIN))
}

func TestPollReadable(t *testing.T) {
	push, pull := pushPullPair()
	require.NoError(t, push.Send(msg.NewBuffer([]byte("x"), true), socket.DontWait))

	items := []Item{{Socket: pull, Events: socket.PollIn | socket.PollOut}}
	n, err := Poll(items, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NotZero(t, items[0].Ready&socket.PollIn)
	require.Zero(t, items[0].Ready&socket.PollOut, "PULL is never writable")
}

func TestPollerDispatchesReceiveReady(t *testing.T) {
	push, pull := pushPullPair()

	var got atomic.Int32
	p := New()
	p.Add(pull, func(s *socket.Socket) {
		if m, err := s.Recv(socket.DontWait); err == nil {
			m.Close()
			got.Add(1)
		}
	}, nil)
	go p.Run()
	defer p.Stop(true)

	for i := 0; i < 5; i++ {
		require.NoError(t, push.Send(msg.NewBuffer([]byte{byte(i)}, true), socket.DontWait))
	}

	deadline := time.Now().Add(5 * time.Second)
	for got.Load() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("poller delivered %d of 5", got.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPollerTimer(t *testing.T) {
	var fired atomic.Int32
	p := New()
	cancel := p.AddTimer(5*time.Millisecond, func() { fired.Add(1) })
	go p.Run()
	defer p.Stop(true)

	deadline := time.Now().Add(5 * time.Second)
	for fired.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("timer never fired three times")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	n := fired.Load()
	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, fired.Load(), n+1, "cancelled timer kept firing")
}

func TestPollerStopWaits(t *testing.T) {
	_, pull := pushPullPair()
	p := New()
	p.Add(pull, func(*socket.Socket) {}, nil)
	go p.Run()

	time.Sleep(5 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		p.Stop(true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop(wait) never returned")
	}
}
