package socket

import "github.com/tobi-tobsen/netmq/zmqerr"

// subscriber is implemented by patterns that expose the Subscribe/
// Unsubscribe convenience API (SUB only; XSUB requires the caller to
// build and send the raw command frame itself).
type subscriber interface {
	subscribe(topic []byte) error
	unsubscribe(topic []byte) error
}

// Subscribe adds topic to a SUB socket's local filter and forwards a
// subscribe command to every currently attached (and future) pipe.
func (s *Socket) Subscribe(topic []byte) error {
	sub, ok := s.pattern.(subscriber)
	if !ok {
		return zmqerr.New(zmqerr.ENOTSUP, "socket.Subscribe", "not a SUB socket")
	}
	return sub.subscribe(topic)
}

// Unsubscribe removes topic from a SUB socket's local filter.
func (s *Socket) Unsubscribe(topic []byte) error {
	sub, ok := s.pattern.(subscriber)
	if !ok {
		return zmqerr.New(zmqerr.ENOTSUP, "socket.Unsubscribe", "not a SUB socket")
	}
	return sub.unsubscribe(topic)
}
