package iothread

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tobi-tobsen/netmq/mailbox"
)

func TestDispatchRunsPostedCommands(t *testing.T) {
	th := New(0, nil)
	th.Start()
	defer th.Stop()

	var ran atomic.Int32
	done := make(chan struct{})
	ok := th.Mailbox().Send(mailbox.Cmd{Type: mailbox.CmdCustom, Arg: func() {
		ran.Add(1)
		close(done)
	}})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("command never ran on the reactor")
	}
	require.Equal(t, int32(1), ran.Load())
}

func TestScheduleFiresOnReactor(t *testing.T) {
	th := New(0, nil)
	th.Start()
	defer th.Stop()

	fired := make(chan struct{})
	th.Schedule(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled timer never fired")
	}
}

func TestReportPollErrorTerminatesOnSecond(t *testing.T) {
	th := New(0, nil)
	th.Start()
	defer th.Stop()

	var terminated atomic.Bool
	key := "conn-1"
	term := func() { terminated.Store(true) }

	th.ReportPollError(key, "read failed", term)
	require.False(t, terminated.Load(), "first error must not terminate")

	th.ReportPollError(key, "read failed", term)
	require.True(t, terminated.Load(), "second consecutive error must terminate")

	// the counter reset: the next error starts a fresh streak
	terminated.Store(false)
	th.ReportPollError(key, "read failed", term)
	require.False(t, terminated.Load())
}

func TestClearPollErrorResetsStreak(t *testing.T) {
	th := New(0, nil)
	th.Start()
	defer th.Stop()

	var terminated atomic.Bool
	th.ReportPollError("c", "x", func() { terminated.Store(true) })
	th.ClearPollError("c")
	th.ReportPollError("c", "x", func() { terminated.Store(true) })
	require.False(t, terminated.Load())
}
