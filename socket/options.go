package socket

import (
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Option identifies a socket option key.
type Option int

const (
	OptIdentity Option = iota
	OptLinger
	OptSndHWM
	OptRcvHWM
	OptReconnectIvl
	OptReconnectIvlMax
	OptBacklog
	OptSndBuf
	OptRcvBuf
	OptRcvMore
	OptSubscribe
	OptUnsubscribe
	OptRouterMandatory
	OptType
	OptIPv6
	OptSndTimeo
	OptRcvTimeo
	OptLastEndpoint
	OptXPubVerbose
)

// Options is the flat option record backing a socket.
type Options struct {
	Identity []byte

	Linger time.Duration // -1 = infinite

	SndHWM, RcvHWM int
	LWM            int // 0 = derive from HWM

	ReconnectIvl, ReconnectIvlMax time.Duration
	Backlog                       int
	SndBuf, RcvBuf                int

	RouterMandatory bool
	IPv6            bool
	XPubVerbose     bool

	SndTimeo, RcvTimeo time.Duration // 0 = return EAGAIN immediately in non-blocking mode; <0 = block forever

	LastEndpoint string // recorded after a wildcard bind resolves
}

// DefaultOptions mirrors libzmq's defaults for the options this library implements.
var DefaultOptions = Options{
	Linger:            30 * time.Second,
	SndHWM:            1000,
	RcvHWM:            1000,
	ReconnectIvl:      100 * time.Millisecond,
	ReconnectIvlMax:   0,
	Backlog:           100,
	RouterMandatory:   false,
	XPubVerbose:       false,
	SndTimeo:          -1,
	RcvTimeo:          -1,
}

// Set applies a value to a named option, coercing via cast the way an
// embedding application's loosely-typed config would supply it (string
// durations, numeric strings, ...).
func (o *Options) Set(opt Option, value any) error {
	switch opt {
	case OptIdentity:
		switch v := value.(type) {
		case []byte:
			if len(v) > 255 {
				return fmt.Errorf("identity too long")
			}
			o.Identity = v
		case string:
			o.Identity = []byte(v)
		default:
			return fmt.Errorf("invalid identity value")
		}
	case OptLinger:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return err
		}
		o.Linger = d
	case OptSndHWM:
		n, err := cast.ToIntE(value)
		if err != nil {
			return err
		}
		o.SndHWM = n
	case OptRcvHWM:
		n, err := cast.ToIntE(value)
		if err != nil {
			return err
		}
		o.RcvHWM = n
	case OptReconnectIvl:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return err
		}
		o.ReconnectIvl = d
	case OptReconnectIvlMax:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return err
		}
		o.ReconnectIvlMax = d
	case OptBacklog:
		n, err := cast.ToIntE(value)
		if err != nil {
			return err
		}
		o.Backlog = n
	case OptSndBuf:
		n, err := cast.ToIntE(value)
		if err != nil {
			return err
		}
		o.SndBuf = n
	case OptRcvBuf:
		n, err := cast.ToIntE(value)
		if err != nil {
			return err
		}
		o.RcvBuf = n
	case OptRouterMandatory:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		o.RouterMandatory = b
	case OptIPv6:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		o.IPv6 = b
	case OptXPubVerbose:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		o.XPubVerbose = b
	case OptSndTimeo:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return err
		}
		o.SndTimeo = d
	case OptRcvTimeo:
		d, err := cast.ToDurationE(value)
		if err != nil {
			return err
		}
		o.RcvTimeo = d
	default:
		return fmt.Errorf("option not settable")
	}
	return nil
}
