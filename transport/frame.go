// Package transport carries frames over real connections: a minimal
// ZMTP-shaped length+flags codec plus the listener, connector
// and per-connection session/engine machinery that feeds socket pipes
// from an I/O thread.
package transport

import (
	"errors"
	"io"

	"github.com/tobi-tobsen/netmq/binary"
	"github.com/tobi-tobsen/netmq/msg"
)

// Wire flag bits, one byte ahead of every frame's length.
const (
	frameMore      byte = 1 << 0
	frameLong      byte = 1 << 1 // 8-byte length follows instead of 1-byte
	frameCommand   byte = 1 << 2
	frameDelimiter byte = 1 << 3
)

// maxFrameSize bounds what a peer can make us allocate from one length field.
const maxFrameSize = 1 << 30

var ErrFrameTooBig = errors.New("frame exceeds maximum size")

// WriteFrame encodes m as flags + length + data.
func WriteFrame(w io.Writer, m *msg.Msg) error {
	var flags byte
	if m.HasMore() {
		flags |= frameMore
	}
	if m.IsCommand() {
		flags |= frameCommand
	}
	if m.IsDelimiter() {
		flags |= frameDelimiter
	}

	data := m.Data()
	long := len(data) > 255
	if long {
		flags |= frameLong
	}

	if _, err := binary.Msb.WriteUint8(w, flags); err != nil {
		return err
	}
	if long {
		if _, err := binary.Msb.WriteUint64(w, uint64(len(data))); err != nil {
			return err
		}
	} else {
		if _, err := binary.Msb.WriteUint8(w, uint8(len(data))); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// ReadFrame decodes one frame from r, allocating its payload.
func ReadFrame(r io.Reader) (*msg.Msg, error) {
	flags, err := binary.Msb.ReadUint8(r)
	if err != nil {
		return nil, err
	}

	var size uint64
	if flags&frameLong != 0 {
		size, err = binary.Msb.ReadUint64(r)
	} else {
		var s8 uint8
		s8, err = binary.Msb.ReadUint8(r)
		size = uint64(s8)
	}
	if err != nil {
		return nil, err
	}
	if size > maxFrameSize {
		return nil, ErrFrameTooBig
	}

	var m *msg.Msg
	if flags&frameDelimiter != 0 {
		// a delimiter carries no payload; any advertised size is skipped
		if size > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return nil, err
			}
		}
		m = msg.NewDelimiter()
	} else {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		m = msg.NewBuffer(buf, false)
	}

	var mf msg.Flag
	if flags&frameMore != 0 {
		mf |= msg.MORE
	}
	if flags&frameCommand != 0 {
		mf |= msg.COMMAND
	}
	m.SetFlags(mf)
	return m, nil
}
