package mailbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendRecvOrder(t *testing.T) {
	mb := New(8)
	require.True(t, mb.Send(Cmd{Type: CmdBind}))
	require.True(t, mb.Send(Cmd{Type: CmdConnect}))

	c := <-mb.Chan()
	require.Equal(t, CmdBind, c.Type)
	c = <-mb.Chan()
	require.Equal(t, CmdConnect, c.Type)
}

func TestTrySendFull(t *testing.T) {
	mb := New(1)
	require.True(t, mb.TrySend(Cmd{Type: CmdStop}))
	require.False(t, mb.TrySend(Cmd{Type: CmdStop}), "second TrySend must fail on a full mailbox")
}

func TestSendAfterClose(t *testing.T) {
	mb := New(1)
	mb.Close()
	mb.Close() // idempotent
	require.False(t, mb.Send(Cmd{Type: CmdTerm}))
	require.False(t, mb.TrySend(Cmd{Type: CmdTerm}))

	_, ok := <-mb.Chan()
	require.False(t, ok, "channel must be closed")
}
