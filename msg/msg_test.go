package msg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSmallFrame(t *testing.T) {
	m := NewBuffer([]byte("hello"), true)
	require.Equal(t, 5, m.Size())
	require.Equal(t, []byte("hello"), m.Data())
	require.False(t, m.HasMore())
	m.Close()
}

func TestLargeFrameCopySharesBuffer(t *testing.T) {
	big := make([]byte, inlineMax+100)
	for i := range big {
		big[i] = byte(i)
	}
	m := NewBuffer(big, false)
	c := m.Copy()
	require.Equal(t, m.Data(), c.Data())

	// mutate through one reference, visible through the other: same backing array.
	m.Data()[0] = 0xff
	require.Equal(t, byte(0xff), c.Data()[0])

	m.Close()
	require.NotNil(t, c.Data(), "c must still be valid after m.Close while refs remain")
	c.Close()
}

func TestMoveEmptiesSource(t *testing.T) {
	m := NewBuffer([]byte("payload"), true)
	c := m.Move()
	require.Equal(t, 0, m.Size())
	require.Equal(t, []byte("payload"), c.Data())
	c.Close()
}

func TestDelimiterCopyIsDelimiter(t *testing.T) {
	d := NewDelimiter()
	require.True(t, d.IsDelimiter())
	require.Equal(t, 0, d.Size())

	c := d.Copy()
	require.True(t, c.IsDelimiter())
}

func TestMoreFlag(t *testing.T) {
	m := New(0)
	require.False(t, m.HasMore())
	m.SetMore(true)
	require.True(t, m.HasMore())
	m.SetMore(false)
	require.False(t, m.HasMore())
}

func TestResetReusesFrame(t *testing.T) {
	m := NewBuffer([]byte("x"), true)
	m.SetMore(true)
	m.Reset()
	require.Equal(t, 0, m.Size())
	require.False(t, m.HasMore())
}
