package transport

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tobi-tobsen/netmq/iothread"
	"github.com/tobi-tobsen/netmq/msg"
	"github.com/tobi-tobsen/netmq/pipe"
	"github.com/tobi-tobsen/netmq/socket"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// Session is the per-connection state living in an I/O thread: it owns the
// engine and the pipe pair bridging the connection to its socket. The
// first frame each side sends is its identity (possibly empty);
// everything after is application traffic.
type Session struct {
	sock   *socket.Socket
	thread *iothread.Thread
	eng    *Engine
	logger *zerolog.Logger

	sockEnd *pipe.Pipe // attached to the socket's pipe set
	sessEnd *pipe.Pipe // our end: outbound frames from the socket

	wake     chan struct{}
	done     chan struct{}
	closed   atomic.Bool
	attached atomic.Bool

	onClosed func()
}

func newSession(conn net.Conn, sock *socket.Socket, thread *iothread.Thread, logger *zerolog.Logger, onClosed func()) *Session {
	s := &Session{
		sock:     sock,
		thread:   thread,
		eng:      NewEngine(conn),
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onClosed: onClosed,
	}
	s.sockEnd, s.sessEnd = pipe.NewPair(sock.Options.RcvHWM, sock.Options.SndHWM, sock.Options.LWM)
	return s
}

func (s *Session) start() { go s.run() }

func (s *Session) run() {
	// our identity goes out while the peer's is read, so the exchange does
	// not stall on a connection without buffering
	werr := make(chan error, 1)
	go func() {
		idm := msg.NewBuffer(s.sock.Options.Identity, true)
		idm.SetFlags(msg.IDENTITY)
		err := s.eng.WriteFrame(idm)
		idm.Close()
		if err == nil {
			err = s.eng.Flush()
		}
		werr <- err
	}()

	peer, err := s.eng.ReadFrame()
	if err != nil {
		s.close(err)
		return
	}
	if err := <-werr; err != nil {
		peer.Close()
		s.close(err)
		return
	}
	peerID := append([]byte(nil), peer.Data()...)
	peer.Close()

	s.sessEnd.SetActivateCallbacks(s.wakeWriter, nil)
	s.sock.AttachPipe(s.sockEnd, peerID)
	s.attached.Store(true)

	go s.writeLoop()
	s.readLoop()
}

func (s *Session) wakeWriter() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// reportErr counts one I/O error against this session on its owning
// thread's streak counter; the second consecutive strike closes the
// session. Returns true once the session is closed.
func (s *Session) reportErr(err error) bool {
	s.thread.ReportPollError(s, err.Error(), func() { s.close(err) })
	return s.closed.Load()
}

// readLoop pulls frames off the wire into the socket's inbound pipe. When
// the socket's HWM is exhausted it stops reading, which backpressures the
// peer through the kernel socket buffers. A single read error is only a
// strike; two in a row remove the connection.
func (s *Session) readLoop() {
	for {
		m, err := s.eng.ReadFrame()
		if err != nil {
			if s.reportErr(err) {
				return
			}
			continue
		}
		s.thread.ClearPollError(s)
		for !s.sessEnd.Write(m) {
			if werr := s.sessEnd.SendErr(false); zmqerr.Is(werr, zmqerr.ETERM) {
				m.Close()
				s.close(nil)
				return
			}
			time.Sleep(time.Millisecond)
		}
		s.sessEnd.Flush()
	}
}

// writeLoop drains the socket's outbound pipe onto the wire, sleeping on
// the wake channel between bursts. Write errors count strikes the same
// way read errors do; the frame that hit the error is dropped.
func (s *Session) writeLoop() {
	for {
		for {
			var m *msg.Msg
			if !s.sessEnd.Read(&m) {
				break
			}
			err := s.eng.WriteFrame(m)
			m.Close()
			if err != nil {
				if s.reportErr(err) {
					return
				}
				continue
			}
			s.thread.ClearPollError(s)
		}
		if err := s.eng.Flush(); err != nil {
			if s.reportErr(err) {
				return
			}
		}
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// close tears the session down: engine first so both loops unblock, then
// the pipe termination handshake, then detach from the socket. Idempotent.
func (s *Session) close(err error) {
	if s.closed.Swap(true) {
		return
	}
	if err != nil && s.logger != nil {
		s.logger.Debug().Err(err).Str("peer", s.eng.RemoteAddr()).Msg("session closed")
	}
	s.thread.ClearPollError(s)
	s.eng.Close()
	close(s.done)

	s.sessEnd.Terminate(false)
	if s.attached.Load() {
		s.sockEnd.Terminate(false)
		s.sock.DetachPipe(s.sockEnd)
	}

	if s.onClosed != nil {
		s.onClosed()
	}
}
