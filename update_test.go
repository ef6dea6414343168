package taskpulse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeWireEvent(t *testing.T) {
	enc := &JSONEncoder{}

	u, err := decodeWireEvent(enc, KindProgress, []byte(`{
		"task_id": "a",
		"progress": 42.5,
		"message": "encoding",
		"stats": {"fps": 24},
		"timestamp": 1700000000000
	}`))
	require.NoError(t, err)
	require.Equal(t, "a", u.TaskID)
	require.Equal(t, KindProgress, u.Kind)
	require.True(t, u.HasProgress)
	require.Equal(t, 42.5, u.Progress)
	require.Equal(t, "encoding", u.Message)
	require.Equal(t, float64(24), u.Stats["fps"])
	require.Equal(t, int64(1700000000000), u.SourceTimestamp)
}

func TestDecodeWireEvent_AbsentProgress(t *testing.T) {
	enc := &JSONEncoder{}

	u, err := decodeWireEvent(enc, KindCompleted, []byte(`{"task_id":"a","message":"all done"}`))
	require.NoError(t, err)
	require.False(t, u.HasProgress, "absent progress must not read as explicit zero")
	require.Equal(t, KindCompleted, u.Kind)

	u, err = decodeWireEvent(enc, KindProgress, []byte(`{"task_id":"a","progress":0}`))
	require.NoError(t, err)
	require.True(t, u.HasProgress)
	require.Equal(t, 0.0, u.Progress)
}

func TestDecodeWireEvent_Malformed(t *testing.T) {
	_, err := decodeWireEvent(&JSONEncoder{}, KindProgress, []byte(`{"task_id":`))
	require.Error(t, err)
}

func TestNormalizeStatus(t *testing.T) {
	p := 55.0
	cases := []struct {
		status       string
		want         UpdateKind
		stillPending bool
	}{
		{"completed", KindCompleted, false},
		{"Complete", KindCompleted, false},
		{"done", KindCompleted, false},
		{"finished", KindCompleted, false},
		{"success", KindCompleted, false},
		{"failed", KindFailed, false},
		{"error", KindFailed, false},
		{"cancelled", KindCancelled, false},
		{"canceled", KindCancelled, false},
		{"killed", KindCancelled, false},
		{"started", KindStarted, false},
		{"running", KindProgress, false},
		{"pending", KindProgress, true},
		{"queued", KindProgress, true},
		{"", KindProgress, false},
		{"some_future_status", KindProgress, false},
	}
	for _, tc := range cases {
		u := normalizeStatus("a", &StatusResponse{Status: tc.status, Progress: &p})
		require.Equal(t, tc.want, u.Kind, "status %q", tc.status)
		require.Equal(t, tc.stillPending, u.StillPending, "status %q", tc.status)
		require.Equal(t, "a", u.TaskID)
		require.True(t, u.HasProgress)
		require.Equal(t, 55.0, u.Progress)
	}
}

func TestNormalizeStatus_CarriesErrorAndStats(t *testing.T) {
	u := normalizeStatus("a", &StatusResponse{
		Status: "failed",
		Error:  "worker crashed",
		Stats:  map[string]any{"attempt": float64(3)},
	})
	require.Equal(t, KindFailed, u.Kind)
	require.Equal(t, "worker crashed", u.Err)
	require.Equal(t, float64(3), u.Stats["attempt"])
	require.False(t, u.HasProgress)
}
