// Package msg represents a single message frame exchanged over a socket.
//
// A logical message is a sequence of frames terminated by a frame whose
// MORE flag is clear. Frames below a small inline threshold are stored in
// place; larger frames reference a shared, refcounted heap buffer so that
// Copy never duplicates bytes.
package msg

import (
	"sync/atomic"
)

// Flag bits carried alongside a frame.
type Flag byte

const (
	// MORE indicates that another frame follows in the same logical message.
	MORE Flag = 1 << iota

	// IDENTITY marks the first frame as a peer-selected routing identity,
	// as prefixed by ROUTER on receive.
	IDENTITY

	// COMMAND marks an internal subscribe/cancel/ping control frame. PUB
	// consumes these itself; XPUB hands received ones to the application
	// through Recv.
	COMMAND
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// inlineMax is the largest frame size stored without a heap allocation,
// mirroring the "small message" optimization of the wire family this
// library is compatible with.
const inlineMax = 29

// shared is a refcounted heap buffer, possibly referenced by more than one
// Msg after Copy.
type shared struct {
	refs atomic.Int32
	buf  []byte
}

func newShared(b []byte) *shared {
	s := &shared{buf: b}
	s.refs.Store(1)
	return s
}

func (s *shared) incref() { s.refs.Add(1) }

// decref releases one reference, returning true if the buffer was freed.
func (s *shared) decref() bool {
	return s.refs.Add(-1) == 0
}

// Msg is a single frame: either small and inline, or large and backed by a
// shared buffer. A zero Msg is a valid empty (size 0) frame.
type Msg struct {
	flags Flag

	small    [inlineMax]byte
	smallLen int
	isSmall  bool

	large *shared

	// delimiter marks an empty frame that terminates a REQ/REP backtrace,
	// distinct from an ordinary empty frame only in that Copy of a
	// delimiter is always a delimiter (data() is identical either way).
	delimiter bool

	closed bool
}

// New returns an empty frame of the given size, ready to be filled via Data().
func New(size int) *Msg {
	m := &Msg{}
	m.init(size)
	return m
}

// NewBuffer returns a frame wrapping buf. If copy is false, the frame
// references buf directly (the caller must not mutate buf afterwards);
// if copy is true, buf is copied into the frame's own memory.
func NewBuffer(buf []byte, copy bool) *Msg {
	m := &Msg{}
	m.initBuffer(buf, copy)
	return m
}

// NewDelimiter returns a new empty delimiter frame, used to mark the bottom
// of a REQ/REP backtrace and the end of in-flight pipe data on termination.
func NewDelimiter() *Msg {
	m := &Msg{delimiter: true, isSmall: true}
	return m
}

func (m *Msg) init(size int) {
	*m = Msg{}
	if size <= inlineMax {
		m.isSmall = true
		m.smallLen = size
		return
	}
	m.large = newShared(make([]byte, size))
}

func (m *Msg) initBuffer(buf []byte, mustCopy bool) {
	*m = Msg{}
	switch {
	case len(buf) <= inlineMax && mustCopy:
		m.isSmall = true
		m.smallLen = copy(m.small[:], buf)
	case mustCopy:
		cp := make([]byte, len(buf))
		copy(cp, buf)
		m.large = newShared(cp)
	default:
		m.large = newShared(buf)
	}
}

// Size returns the number of data bytes in the frame.
func (m *Msg) Size() int {
	if m.isSmall {
		return m.smallLen
	} else if m.large != nil {
		return len(m.large.buf)
	}
	return 0
}

// Data returns the frame bytes. Valid between init (New/NewBuffer/...) and Close.
// The slice must not be retained past Close, nor mutated if the frame might be shared.
func (m *Msg) Data() []byte {
	if m.isSmall {
		return m.small[:m.smallLen]
	} else if m.large != nil {
		return m.large.buf
	}
	return nil
}

// SetData overwrites the frame's bytes in place, resizing as needed.
func (m *Msg) SetData(buf []byte) {
	delim := m.delimiter
	flags := m.flags
	m.Close()
	m.initBuffer(buf, true)
	m.delimiter = delim
	m.flags = flags
}

// HasMore reports whether the MORE flag is set.
func (m *Msg) HasMore() bool { return m.flags.Has(MORE) }

// SetMore sets or clears the MORE flag. Setting MORE on what is meant to be
// the last frame of a message is a caller error the socket layer rejects.
func (m *Msg) SetMore(v bool) {
	if v {
		m.flags |= MORE
	} else {
		m.flags &^= MORE
	}
}

// Flags returns the full flag set.
func (m *Msg) Flags() Flag { return m.flags }

// SetFlags overwrites the full flag set.
func (m *Msg) SetFlags(f Flag) { m.flags = f }

// IsDelimiter reports whether this is an empty delimiter frame.
func (m *Msg) IsDelimiter() bool { return m.delimiter }

// IsCommand reports whether the COMMAND flag is set.
func (m *Msg) IsCommand() bool { return m.flags.Has(COMMAND) }

// Copy returns a shallow copy of m: for a large frame this bumps the shared
// refcount rather than duplicating bytes; for a small frame or delimiter it
// copies the (tiny) inline bytes. A copy of a delimiter is a delimiter.
func (m *Msg) Copy() *Msg {
	c := &Msg{
		flags:     m.flags,
		delimiter: m.delimiter,
		isSmall:   m.isSmall,
		smallLen:  m.smallLen,
	}
	c.small = m.small
	if m.large != nil {
		m.large.incref()
		c.large = m.large
	}
	return c
}

// Move transfers ownership of m's contents to a new Msg and resets m to empty.
// m must not be used again except via a fresh init.
func (m *Msg) Move() *Msg {
	c := &Msg{
		flags:     m.flags,
		delimiter: m.delimiter,
		isSmall:   m.isSmall,
		smallLen:  m.smallLen,
		small:     m.small,
		large:     m.large,
	}
	m.large = nil
	m.isSmall = true
	m.smallLen = 0
	m.flags = 0
	m.delimiter = false
	return c
}

// Close releases m's resources, freeing the shared buffer at zero refcount.
// After Close the frame is inert; calling Close again is a no-op.
func (m *Msg) Close() {
	if m.closed {
		return
	}
	m.closed = true
	if m.large != nil {
		if m.large.decref() {
			m.large.buf = nil
		}
		m.large = nil
	}
}

// Reset clears m back to an empty small frame, for pool reuse.
func (m *Msg) Reset() {
	m.Close()
	*m = Msg{isSmall: true}
}
