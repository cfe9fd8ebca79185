// Package device wires two sockets of complementary patterns together and
// pumps whole logical messages between them: Queue (ROUTER/DEALER),
// Forwarder (XSUB/XPUB) and Streamer (PULL/PUSH).
package device

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/poller"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zctx"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// Mode selects where the pump loop runs.
type Mode int

const (
	// InProc runs the pump on the caller's goroutine; Start blocks until
	// the device stops.
	InProc Mode = iota

	// Threaded spawns a dedicated goroutine; Start returns immediately.
	Threaded
)

// Device owns a frontend and backend socket and a poller pumping frames
// between them. It stops when Stop is called or when its context
// terminates: context teardown unblocks the pump loop, so disposing a
// context without stopping its devices first cannot hang.
type Device struct {
	Front *socket.Socket
	Back  *socket.Socket

	name   string
	mode   Mode
	logger *zerolog.Logger
	poller *poller.Poller

	started atomic.Bool
	done    chan struct{}
}

// NewQueue builds a Queue device: ROUTER frontend, DEALER backend. The
// identity prefix is preserved in both directions.
func NewQueue(ctx *zctx.Context, frontend, backend string, mode Mode) (*Device, error) {
	return build(ctx, "queue", socket.ROUTER, socket.DEALER, frontend, backend, mode)
}

// NewForwarder builds a Forwarder device: XSUB frontend, XPUB backend.
// Published messages flow front to back; subscriptions propagate back to
// front.
func NewForwarder(ctx *zctx.Context, frontend, backend string, mode Mode) (*Device, error) {
	return build(ctx, "forwarder", socket.XSUB, socket.XPUB, frontend, backend, mode)
}

// NewStreamer builds a Streamer device: PULL frontend, PUSH backend.
func NewStreamer(ctx *zctx.Context, frontend, backend string, mode Mode) (*Device, error) {
	return build(ctx, "streamer", socket.PULL, socket.PUSH, frontend, backend, mode)
}

func build(ctx *zctx.Context, name string, fkind, bkind socket.Kind, frontend, backend string, mode Mode) (*Device, error) {
	f, err := ctx.NewSocket(fkind)
	if err != nil {
		return nil, err
	}
	b, err := ctx.NewSocket(bkind)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Bind(frontend); err != nil {
		f.Close()
		b.Close()
		return nil, err
	}
	if err := b.Bind(backend); err != nil {
		f.Close()
		b.Close()
		return nil, err
	}

	d := &Device{
		Front:  f,
		Back:   b,
		name:   name,
		mode:   mode,
		logger: ctx.Logger,
		poller: poller.New(),
		done:   make(chan struct{}),
	}
	d.poller.Add(f, func(*socket.Socket) { d.pump(f, b) }, nil)
	d.poller.Add(b, func(*socket.Socket) { d.pump(b, f) }, nil)
	return d, nil
}

// Start runs the device. InProc blocks the caller until the device stops;
// Threaded returns immediately.
func (d *Device) Start() {
	if d.started.Swap(true) {
		return
	}
	if d.mode == Threaded {
		go d.run()
	} else {
		d.run()
	}
}

func (d *Device) run() {
	defer close(d.done)
	d.poller.Run()
	d.Front.Close()
	d.Back.Close()
}

// Stop cancels the pump; with wait it blocks until the loop has exited and
// both sockets are closing.
func (d *Device) Stop(wait bool) {
	d.poller.Stop(false)
	if wait && d.started.Load() {
		<-d.done
	}
}

// pump moves exactly one logical message from src to dst, keeping frame
// boundaries intact.
func (d *Device) pump(src, dst *socket.Socket) {
	m, err := src.Recv(socket.DontWait)
	if err != nil {
		return
	}
	for {
		more := m.HasMore()
		d.trace(m)
		if !d.send(dst, m) {
			return
		}
		if !more {
			return
		}
		if m = d.recvNext(src); m == nil {
			return
		}
	}
}

// recvNext waits briefly for the rest of a partially-delivered message;
// frames of one message are never interleaved with another, so the
// next frame on src is ours.
func (d *Device) recvNext(src *socket.Socket) *msg.Msg {
	for {
		m, err := src.Recv(socket.DontWait)
		if err == nil {
			return m
		}
		if !zmqerr.Is(err, zmqerr.EAGAIN) || src.Terminating() {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *Device) send(dst *socket.Socket, m *msg.Msg) bool {
	for {
		err := dst.Send(m, socket.DontWait)
		if err == nil {
			return true
		}
		if !zmqerr.Is(err, zmqerr.EAGAIN) || dst.Terminating() {
			m.Close()
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *Device) trace(m *msg.Msg) {
	if e := d.logger.Trace(); e.Enabled() {
		e.Str("device", d.name).RawJSON("frame", m.ToJSON(nil)).Msg("pump")
	}
}
