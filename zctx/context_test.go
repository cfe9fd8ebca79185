package zctx

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/socket"
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

// recvData blocks (bounded) until one frame arrives, returning its payload.
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

func TestReqRepEchoInproc(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	rep, err := ctx.NewSocket(socket.REP)
	require.NoError(t, err)
	require.NoError(t, rep.Bind("inproc://s1"))

	req, err := ctx.NewSocket(socket.REQ)
	require.NoError(t, err)
	require.NoError(t, req.Connect("inproc://s1"))

	require.NoError(t, req.Send(msg.NewBuffer([]byte("Hello"), true), socket.DontWait))
	require.Equal(t, []byte("Hello"), recvData(t, rep))
	require.NoError(t, rep.Send(msg.NewBuffer([]byte("World"), true), socket.DontWait))
	require.Equal(t, []byte("World"), recvData(t, req))

	// a second send without receiving the reply first violates the REQ
	// state machine
	require.NoError(t, req.Send(msg.NewBuffer([]byte("again"), true), socket.DontWait))
	err = req.Send(msg.NewBuffer([]byte("twice"), true), socket.DontWait)
	require.True(t, zmqerr.Is(err, zmqerr.EFSM))
}

func TestPubSubFilterInproc(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	pub, err := ctx.NewSocket(socket.PUB)
	require.NoError(t, err)
	require.NoError(t, pub.Bind("inproc://s2"))

	sub, err := ctx.NewSocket(socket.SUB)
	require.NoError(t, err)
	require.NoError(t, sub.Connect("inproc://s2"))
	require.NoError(t, sub.Subscribe([]byte("A")))

	require.NoError(t, pub.Send(msg.NewBuffer([]byte("A"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, pub.Send(msg.NewBuffer([]byte("payload1"), true), socket.DontWait))
	require.NoError(t, pub.Send(msg.NewBuffer([]byte("B"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, pub.Send(msg.NewBuffer([]byte("payload2"), true), socket.DontWait))

	require.Equal(t, []byte("A"), recvData(t, sub))
	require.True(t, sub.RcvMore())
	require.Equal(t, []byte("payload1"), recvData(t, sub))
	require.False(t, sub.RcvMore())

	// the "B" message was filtered out entirely
	_, err = sub.Recv(socket.DontWait)
	require.True(t, zmqerr.Is(err, zmqerr.EAGAIN))
}

func TestRouterDealerIdentitiesInproc(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	router, err := ctx.NewSocket(socket.ROUTER)
	require.NoError(t, err)
	require.NoError(t, router.Bind("inproc://s4"))

	mkDealer := func(id string) *socket.Socket {
		d, err := ctx.NewSocket(socket.DEALER)
		require.NoError(t, err)
		require.NoError(t, d.SetOption(socket.OptIdentity, id))
		require.NoError(t, d.Connect("inproc://s4"))
		return d
	}
	da := mkDealer("A")
	db := mkDealer("B")

	require.NoError(t, da.Send(msg.NewBuffer([]byte("hi"), true), socket.DontWait))
	require.NoError(t, db.Send(msg.NewBuffer([]byte("hi"), true), socket.DontWait))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		id := recvData(t, router)
		require.True(t, router.RcvMore())
		body := recvData(t, router)
		require.Equal(t, []byte("hi"), body)
		seen[string(id)] = true
	}
	require.True(t, seen["A"] && seen["B"])

	require.NoError(t, router.Send(msg.NewBuffer([]byte("A"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, router.Send(msg.NewBuffer([]byte("1"), true), socket.DontWait))
	require.NoError(t, router.Send(msg.NewBuffer([]byte("B"), true), socket.SndMore|socket.DontWait))
	require.NoError(t, router.Send(msg.NewBuffer([]byte("2"), true), socket.DontWait))

	require.Equal(t, []byte("1"), recvData(t, da))
	require.Equal(t, []byte("2"), recvData(t, db))
}

func TestPushPullBalanceTCP(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	push, err := ctx.NewSocket(socket.PUSH)
	require.NoError(t, err)
	require.NoError(t, push.Bind("tcp://127.0.0.1:0"))

	// the wildcard port was resolved and recorded
	epAny, err := push.GetOption(socket.OptLastEndpoint)
	require.NoError(t, err)
	endpoint := epAny.(string)
	require.Contains(t, endpoint, "tcp://127.0.0.1:")
	require.NotContains(t, endpoint, ":0")

	const npull = 3
	const total = 300
	pulls := make([]*socket.Socket, npull)
	for i := range pulls {
		p, err := ctx.NewSocket(socket.PULL)
		require.NoError(t, err)
		require.NoError(t, p.Connect(endpoint))
		pulls[i] = p
	}

	waitFor(t, "all pulls connected", func() bool { return push.Pipes.Len() == npull })

	for i := 0; i < total; i++ {
		require.NoError(t, push.Send(msg.NewBuffer([]byte(fmt.Sprintf("%d", i)), true), 0))
	}

	seen := map[string]bool{}
	for _, p := range pulls {
		for i := 0; i < total/npull; i++ {
			seen[string(recvData(t, p))] = true
		}
		// exactly its share: nothing extra is waiting
		_, err := p.Recv(socket.DontWait)
		require.True(t, zmqerr.Is(err, zmqerr.EAGAIN))
	}
	require.Len(t, seen, total)
}

func TestHWMBackpressureInproc(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	push, err := ctx.NewSocket(socket.PUSH)
	require.NoError(t, err)
	require.NoError(t, push.SetOption(socket.OptSndHWM, 4))
	require.NoError(t, push.Bind("inproc://hwm"))

	pull, err := ctx.NewSocket(socket.PULL)
	require.NoError(t, err)
	require.NoError(t, pull.SetOption(socket.OptRcvHWM, 0))
	require.NoError(t, pull.Connect("inproc://hwm"))

	for i := 0; i < 4; i++ {
		require.NoError(t, push.Send(msg.NewBuffer([]byte{byte(i)}, true), socket.DontWait))
	}
	err = push.Send(msg.NewBuffer([]byte{9}, true), socket.DontWait)
	require.True(t, zmqerr.Is(err, zmqerr.EAGAIN), "send past HWM must fail with EAGAIN")

	// draining one message reopens the window
	m, err := pull.Recv(socket.DontWait)
	require.NoError(t, err)
	m.Close()
	require.NoError(t, push.Send(msg.NewBuffer([]byte{9}, true), socket.DontWait))
}

func TestTerminateUnblocksRecv(t *testing.T) {
	ctx := New()

	pull, err := ctx.NewSocket(socket.PULL)
	require.NoError(t, err)
	require.NoError(t, pull.Bind("inproc://term"))

	errCh := make(chan error, 1)
	go func() {
		_, err := pull.Recv(0) // blocks: nothing will ever arrive
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		ctx.Terminate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not return")
	}

	select {
	case err := <-errCh:
		require.True(t, zmqerr.Is(err, zmqerr.ETERM))
	case <-time.After(5 * time.Second):
		t.Fatal("blocked Recv was not unblocked")
	}

	// double-terminate is a no-op
	ctx.Terminate()
}

func TestNewSocketAfterTerminate(t *testing.T) {
	ctx := New()
	ctx.Terminate()

	_, err := ctx.NewSocket(socket.PAIR)
	require.True(t, zmqerr.Is(err, zmqerr.ETERM))
}

func TestIOThreadsOptionRange(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	err := ctx.SetOption(OptIOThreads, 1000)
	require.True(t, zmqerr.Is(err, zmqerr.EMTHREAD))
	require.NoError(t, ctx.SetOption(OptIOThreads, 2))
}

func TestBindCollisionInproc(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	a, err := ctx.NewSocket(socket.PAIR)
	require.NoError(t, err)
	require.NoError(t, a.Bind("inproc://dup"))

	b, err := ctx.NewSocket(socket.PAIR)
	require.NoError(t, err)
	err = b.Bind("inproc://dup")
	require.True(t, zmqerr.Is(err, zmqerr.EADDRINUSE))
}

func TestPgmNotSupported(t *testing.T) {
	ctx := New()
	defer ctx.Terminate()

	s, err := ctx.NewSocket(socket.PUB)
	require.NoError(t, err)
	err = s.Bind("pgm://eth0;239.192.1.1:5555")
	require.True(t, zmqerr.Is(err, zmqerr.ENOTSUP))
}
