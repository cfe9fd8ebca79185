package socket

import (
	"time"

	"github.com/tobi-tobsen/netmq/clock"
	"github.com/tobi-tobsen/netmq/zmqerr"
)

// PollEvents is the readiness mask used by Socket.Poll and the poller layer.
type PollEvents byte

const (
	PollIn PollEvents = 1 << iota
	PollOut
	PollErr
)

// SetOption applies a value to a named option. Subscribe/Unsubscribe are
// routed to the SUB pattern; everything else lands in the flat Options
// record.
func (s *Socket) SetOption(opt Option, value any) error {
	switch opt {
	case OptSubscribe:
		return s.Subscribe(toBytes(value))
	case OptUnsubscribe:
		return s.Unsubscribe(toBytes(value))
	case OptType, OptRcvMore, OptLastEndpoint:
		return zmqerr.New(zmqerr.EINVAL, "socket.SetOption", "option is read-only")
	default:
		if err := s.Options.Set(opt, value); err != nil {
			return zmqerr.Wrap(zmqerr.EINVAL, "socket.SetOption", err)
		}
		return nil
	}
}

func toBytes(v any) []byte {
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		return nil
	}
}

// GetOption reads an option by key. RCVMORE and TYPE are socket state, not
// Options fields, hence the accessor lives here rather than on Options.
func (s *Socket) GetOption(opt Option) (any, error) {
	switch opt {
	case OptType:
		return s.Kind, nil
	case OptRcvMore:
		return s.rcvMore, nil
	case OptLastEndpoint:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.Options.LastEndpoint, nil
	case OptIdentity:
		return s.Options.Identity, nil
	case OptLinger:
		return s.Options.Linger, nil
	case OptSndHWM:
		return s.Options.SndHWM, nil
	case OptRcvHWM:
		return s.Options.RcvHWM, nil
	case OptReconnectIvl:
		return s.Options.ReconnectIvl, nil
	case OptReconnectIvlMax:
		return s.Options.ReconnectIvlMax, nil
	case OptBacklog:
		return s.Options.Backlog, nil
	case OptSndBuf:
		return s.Options.SndBuf, nil
	case OptRcvBuf:
		return s.Options.RcvBuf, nil
	case OptRouterMandatory:
		return s.Options.RouterMandatory, nil
	case OptIPv6:
		return s.Options.IPv6, nil
	case OptXPubVerbose:
		return s.Options.XPubVerbose, nil
	case OptSndTimeo:
		return s.Options.SndTimeo, nil
	case OptRcvTimeo:
		return s.Options.RcvTimeo, nil
	default:
		return nil, zmqerr.New(zmqerr.EINVAL, "socket.GetOption", "unknown option")
	}
}

// RcvMore reports whether the most recently received frame was part of a
// still-incomplete logical message.
func (s *Socket) RcvMore() bool { return s.rcvMore }

// Poll waits until the socket is ready for any of the requested events or
// timeout elapses (timeout < 0 waits forever), returning the subset that is
// ready. PollErr reports termination.
func (s *Socket) Poll(events PollEvents, timeout time.Duration) (PollEvents, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = clock.Now().Add(timeout)
	}
	for {
		var ready PollEvents
		if s.Terminating() {
			ready |= PollErr
		}
		if events&PollIn != 0 && s.HasIn() {
			ready |= PollIn
		}
		if events&PollOut != 0 && s.HasOut() {
			ready |= PollOut
		}
		if ready != 0 {
			return ready, nil
		}
		if timeout >= 0 && !clock.Now().Before(deadline) {
			return 0, zmqerr.New(zmqerr.EAGAIN, "socket.Poll", "timeout")
		}
		time.Sleep(time.Millisecond)
	}
}
