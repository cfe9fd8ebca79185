package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zctx"
	"github.com/tobi-tobsen/netmq/zmqerr"
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
	waitFor(t, "message on "+s.Kind.String(), func() bool {
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

func TestQueueDeviceRoundTrip(t *testing.T) {
	ctx := zctx.New()
	defer ctx.Terminate()

	dev, err := NewQueue(ctx, "inproc://qf", "inproc://qb", Threaded)
	require.NoError(t, err)
	dev.Start()
	defer dev.Stop(true)

	rep, err := ctx.NewSocket(socket.REP)
	require.NoError(t, err)
	require.NoError(t, rep.Connect("inproc://qb"))

	req, err := ctx.NewSocket(socket.REQ)
	require.NoError(t, err)
	require.NoError(t, req.Connect("inproc://qf"))

	require.NoError(t, req.Send(msg.NewBuffer([]byte("ping"), true), socket.DontWait))
	require.Equal(t, []byte("ping"), recvData(t, rep))
	require.NoError(t, rep.Send(msg.NewBuffer([]byte("pong"), true), socket.DontWait))
	require.Equal(t, []byte("pong"), recvData(t, req))

	// a second full round trip through the same identity path
	require.NoError(t, req.Send(msg.NewBuffer([]byte("ping2"), true), socket.DontWait))
	require.Equal(t, []byte("ping2"), recvData(t, rep))
	require.NoError(t, rep.Send(msg.NewBuffer([]byte("pong2"), true), socket.DontWait))
	require.Equal(t, []byte("pong2"), recvData(t, req))
}

func TestForwarderDeviceFilters(t *testing.T) {
	ctx := zctx.New()
	defer ctx.Terminate()

	dev, err := NewForwarder(ctx, "inproc://df", "inproc://db", Threaded)
	require.NoError(t, err)
	dev.Start()
	defer dev.Stop(true)

	pub, err := ctx.NewSocket(socket.PUB)
	require.NoError(t, err)
	require.NoError(t, pub.Connect("inproc://df"))

	sub, err := ctx.NewSocket(socket.SUB)
	require.NoError(t, err)
	require.NoError(t, sub.Connect("inproc://db"))
	require.NoError(t, sub.Subscribe([]byte("T")))

	// the subscription propagates asynchronously through the device;
	// publish until the first delivery proves it arrived
	waitFor(t, "subscription propagation", func() bool {
		require.NoError(t, pub.Send(msg.NewBuffer([]byte("T"), true), socket.SndMore|socket.DontWait))
		require.NoError(t, pub.Send(msg.NewBuffer([]byte("warmup"), true), socket.DontWait))
		m, err := sub.Recv(socket.DontWait)
		if err != nil {
			return false
		}
		m.Close()
		return true
	})

	// drain the warmup backlog
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if m, err := sub.Recv(socket.DontWait); err == nil {
			m.Close()
			deadline = time.Now().Add(50 * time.Millisecond)
		} else {
			time.Sleep(time.Millisecond)
		}
	}

	require.NoError(t, pub.Send(msg.NewBuffer([]byte("U"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, pub.Send(msg.NewBuffer([]byte("msg"), true), socket.DontWait))
	require.NoError(t, pub.Send(msg.NewBuffer([]byte("T"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, pub.Send(msg.NewBuffer([]byte("msg"), true), socket.DontWait))

	// only the "T" message crosses the device to this subscriber
	require.Equal(t, []byte("T"), recvData(t, sub))
	require.Equal(t, []byte("msg"), recvData(t, sub))
	_, err = sub.Recv(socket.DontWait)
	require.True(t, zmqerr.Is(err, zmqerr.EAGAIN))
}

func TestStreamerDevicePasses(t *testing.T) {
	ctx := zctx.New()
	defer ctx.Terminate()

	dev, err := NewStreamer(ctx, "inproc://sf", "inproc://sb", Threaded)
	require.NoError(t, err)
	dev.Start()
	defer dev.Stop(true)

	push, err := ctx.NewSocket(socket.PUSH)
	require.NoError(t, err)
	require.NoError(t, push.Connect("inproc://sf"))

	pull, err := ctx.NewSocket(socket.PULL)
	require.NoError(t, err)
	require.NoError(t, pull.Connect("inproc://sb"))

	for i := 0; i < 10; i++ {
		require.NoError(t, push.Send(msg.NewBuffer([]byte{byte(i)}, true), socket.DontWait))
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, []byte{byte(i)}, recvData(t, pull))
	}
}

// Terminating the context while a device is still running must stop the
// device's loop rather than hang.
func TestTerminateWithRunningForwarder(t *testing.T) {
	ctx := zctx.New()

	dev, err := NewForwarder(ctx, "inproc://s6f", "inproc://s6b", Threaded)
	require.NoError(t, err)
	dev.Start()

	sub, err := ctx.NewSocket(socket.SUB)
	require.NoError(t, err)
	require.NoError(t, sub.Connect("inproc://s6b"))
	require.NoError(t, sub.Subscribe([]byte("x")))

	done := make(chan struct{})
	go func() {
		ctx.Terminate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate hung with a running device")
	}

	// the device loop exited on its own
	select {
	case <-dev.done:
	case <-time.After(5 * time.Second):
		t.Fatal("device loop still running after Terminate")
	}
}
