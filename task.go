package taskpulse

import "reflect"

// Stats is an opaque structured payload attached to a task (counts, sizes,
// durations). Incoming stats are merged shallowly, last write wins per key.
type Stats map[string]any

// clone returns a shallow copy so snapshots cannot be mutated by callers.
func (s Stats) clone() Stats {
	if s == nil {
		return nil
	}
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// merge shallow-merges in into s, returning true if any key changed.
func (s Stats) merge(in Stats) bool {
	changed := false
	for k, v := range in {
		if cur, ok := s[k]; !ok || !statsValueEqual(cur, v) {
			s[k] = v
			changed = true
		}
	}
	return changed
}

// statsValueEqual compares stats values without panicking on the
// non-comparable types (arrays, nested objects) JSON decoding can produce.
func statsValueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

// Sample is a single (timestamp, progress) observation used for rate estimation.
type Sample struct {
	// At is the observation time in unix milliseconds.
	At int64 `json:"at"`
	// Progress is the observed progress (0..100) at that time.
	Progress float64 `json:"progress"`
}

// Estimate is a smoothed progress rate and remaining-time projection.
type Estimate struct {
	// Known is false when there are not enough positive-delta samples.
	Known bool `json:"known"`
	// RatePerMs is progress units gained per millisecond. Zero when unknown.
	RatePerMs float64 `json:"rate_per_ms"`
	// EtaMs is the projected remaining time in milliseconds. Negative when unknown.
	EtaMs int64 `json:"eta_ms"`
	// Confidence grades rate stability on [0,100]. Only the weighted
	// estimator produces a non-zero value.
	Confidence float64 `json:"confidence"`
}

// Task is a read-only snapshot of a tracked task. Snapshots are defensive
// copies; mutating one has no effect on the coordinator's state.
type Task struct {
	// ID is the backend-assigned unique identifier for the task.
	ID string `json:"id"`
	// Kind is the task category (e.g. "file_processing", "playlist_download").
	Kind string `json:"kind"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Progress is the displayed progress in [0,100].
	Progress float64 `json:"progress"`
	// Message is the latest human-readable status string.
	Message string `json:"message,omitempty"`
	// Stats is the merged structured payload reported so far.
	Stats Stats `json:"stats,omitempty"`
	// CreatedAt is the timestamp (ms) when tracking began.
	CreatedAt int64 `json:"created_at"`
	// LastUpdateAt is the timestamp (ms) of the last liveness-refreshing update.
	LastUpdateAt int64 `json:"last_update_at,omitempty"`
	// EndedAt is the timestamp (ms) of the terminal transition, 0 while live.
	EndedAt int64 `json:"ended_at,omitempty"`
	// DeliveryMode is the channel currently authoritative for this task.
	DeliveryMode DeliveryMode `json:"delivery_mode"`
	// RetryCount is the number of consecutive status-fetch failures observed.
	RetryCount int `json:"retry_count,omitempty"`
	// LastError is the most recent error text reported for the task.
	LastError string `json:"last_error,omitempty"`
	// Samples is the bounded history of accepted progress observations.
	Samples []Sample `json:"samples,omitempty"`
	// Estimate is the rate/ETA projection derived from Samples.
	Estimate Estimate `json:"estimate"`
}

// Remaining returns how much progress is left until completion.
func (t *Task) Remaining() float64 {
	if t.Progress >= 100 {
		return 0
	}
	return 100 - t.Progress
}
