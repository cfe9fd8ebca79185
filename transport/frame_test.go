package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tobi-tobsen/netmq/msg"
)

func roundTrip(t *testing.T, m *msg.Msg) *msg.Msg {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, m))
	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	return out
}

func TestFrameRoundTripShort(t *testing.T) {
	m := msg.NewBuffer([]byte("hello"), true)
	m.SetMore(true)

	out := roundTrip(t, m)
	require.Equal(t, []byte("hello"), out.Data())
	require.True(t, out.HasMore())
	require.False(t, out.IsCommand())
	require.False(t, out.IsDelimiter())
}

func TestFrameRoundTripLong(t *testing.T) {
	big := make([]byte, 70000)
	for i := range big {
		big[i] = byte(i)
	}
	out := roundTrip(t, msg.NewBuffer(big, false))
	require.Equal(t, big, out.Data())
	require.False(t, out.HasMore())
}

func TestFrameRoundTripCommand(t *testing.T) {
	m := msg.NewBuffer([]byte{1, 'T'}, true)
	m.SetFlags(msg.COMMAND)

	out := roundTrip(t, m)
	require.True(t, out.IsCommand())
	require.Equal(t, []byte{1, 'T'}, out.Data())
}

func TestFrameRoundTripDelimiter(t *testing.T) {
	d := msg.NewDelimiter()
	d.SetMore(true)

	out := roundTrip(t, d)
	require.True(t, out.IsDelimiter())
	require.True(t, out.HasMore())
	require.Equal(t, 0, out.Size())
}

func TestFrameSequencePreservesBoundaries(t *testing.T) {
	var buf bytes.Buffer
	frames := [][]byte{[]byte("first"), []byte("second"), []byte("last")}
	for i, f := range frames {
		m := msg.NewBuffer(f, true)
		m.SetMore(i < len(frames)-1)
		require.NoError(t, WriteFrame(&buf, m))
	}

	for i, f := range frames {
		out, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.Equal(t, f, out.Data())
		require.Equal(t, i < len(frames)-1, out.HasMore())
	}
}
