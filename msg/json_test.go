package msg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	m := NewBuffer([]byte{0xde, 0xad, 0xbe, 0xef}, true)
	m.SetMore(true)

	js := m.ToJSON(nil)
	require.Contains(t, string(js), `"data":"0xdeadbeef"`)

	var out Msg
	require.NoError(t, out.FromJSON(js))
	require.Equal(t, m.Data(), out.Data())
	require.True(t, out.HasMore())
	require.False(t, out.IsDelimiter())
}

func TestJSONDelimiter(t *testing.T) {
	d := NewDelimiter()
	js := d.ToJSON(nil)

	var out Msg
	require.NoError(t, out.FromJSON(js))
	require.True(t, out.IsDelimiter())
	require.Equal(t, 0, out.Size())
}
