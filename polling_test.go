package taskpulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolling_FailureCeilingGivesUpQuietly(t *testing.T) {
	st := newFakeStatus() // nothing scripted: every fetch errors
	c := NewCoordinator(nil, st, quietOpts(
		PollInterval(5*time.Millisecond),
		MaxPollFailures(3),
	)...)
	c.Start()
	defer c.Stop()

	_, err := c.Track("a", "k")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := c.Status("a")
		return snap != nil && snap.Message == lostConnectionMessage
	}, waitFor, tick)

	// losing observability never fails the task
	snap, err := c.Status("a")
	require.NoError(t, err)
	require.False(t, snap.State.Terminal())
	require.Equal(t, 3, snap.RetryCount)
	require.NotEmpty(t, snap.LastError)

	// and the loop really is gone
	for _, d := range c.Diagnostics().Tasks {
		require.False(t, d.Polling)
	}
	time.Sleep(30 * time.Millisecond)
	n := st.statusCalls("a")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, st.statusCalls("a"))
}

func TestPolling_ForgetStopsFetches(t *testing.T) {
	st := newFakeStatus()
	st.push("a", running(10))
	c := NewCoordinator(nil, st, quietOpts(PollInterval(5*time.Millisecond))...)
	c.Start()
	defer c.Stop()

	_, err := c.Track("a", "k")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return st.statusCalls("a") >= 2
	}, waitFor, tick)

	require.NoError(t, c.Forget("a"))

	// allow any tick already in flight to drain, then demand silence
	time.Sleep(20 * time.Millisecond)
	n := st.statusCalls("a")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, st.statusCalls("a"))

	_, err = c.Status("a")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestPolling_SuccessResetsFailureCount(t *testing.T) {
	st := newFakeStatus()
	c := NewCoordinator(nil, st, quietOpts(
		PollInterval(5*time.Millisecond),
		MaxPollFailures(50),
	)...)
	c.Start()
	defer c.Stop()

	_, err := c.Track("a", "k")
	require.NoError(t, err)

	// let a few fetches fail before the backend starts answering
	require.Eventually(t, func() bool {
		snap, _ := c.Status("a")
		return snap != nil && snap.RetryCount >= 2
	}, waitFor, tick)

	st.push("a", running(20))
	require.Eventually(t, func() bool {
		snap, _ := c.Status("a")
		return snap != nil && snap.Progress == 20 && snap.RetryCount == 0
	}, waitFor, tick)

	snap, err := c.Status("a")
	require.NoError(t, err)
	require.Equal(t, StateRunning, snap.State)
}

func TestPolling_TerminalStopsLoop(t *testing.T) {
	st := newFakeStatus()
	st.push("a", running(50), &StatusResponse{Status: "completed"})
	c := NewCoordinator(nil, st, quietOpts(PollInterval(5*time.Millisecond))...)
	c.Start()
	defer c.Stop()

	_, err := c.Track("a", "k")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := c.Status("a")
		return snap != nil && snap.State == StateCompleted
	}, waitFor, tick)

	time.Sleep(20 * time.Millisecond)
	n := st.statusCalls("a")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, n, st.statusCalls("a"))
}
