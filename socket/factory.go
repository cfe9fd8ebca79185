package socket

// New constructs a Socket of the given kind bound to hooks, dispatching to
// the pattern-specific constructor.
func New(kind Kind, hooks Hooks) *Socket {
	switch kind {
	case REQ:
		return NewReq(hooks)
	case REP:
		return NewRep(hooks)
	case DEALER:
		return NewDealer(hooks)
	case ROUTER:
		return NewRouter(hooks)
	case PUB:
		return NewPub(hooks)
	case SUB:
		return NewSub(hooks)
	case XPUB:
		return NewXPub(hooks)
	case XSUB:
		return NewXSub(hooks)
	case PUSH:
		return NewPush(hooks)
	case PULL:
		return NewPull(hooks)
	case PAIR:
		return NewPair(hooks)
	default:
		return nil
	}
}
