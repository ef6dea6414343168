package taskpulse

import "strings"

// Update is a normalized, transport-agnostic event describing a change to a
// task. The Transport Coordinator produces Updates from push events, poll
// responses and on-demand fetches; the originating transport is not retained
// past normalization.
type Update struct {
	// TaskID identifies the task the update belongs to.
	TaskID string `json:"task_id"`
	// Kind classifies the update.
	Kind UpdateKind `json:"kind"`
	// Progress is the reported progress. Only meaningful when HasProgress is true.
	Progress float64 `json:"progress,omitempty"`
	// HasProgress distinguishes an explicit zero progress from an absent field.
	HasProgress bool `json:"has_progress,omitempty"`
	// Message is an optional human-readable status string.
	Message string `json:"message,omitempty"`
	// Stats is an optional structured payload, merged shallowly into the task.
	Stats Stats `json:"stats,omitempty"`
	// Err is the error text for failed updates.
	Err string `json:"error,omitempty"`
	// StillPending marks a poll/fetch response where the backend explicitly
	// reports the task has not started yet; such an update must not promote
	// the task to running.
	StillPending bool `json:"still_pending,omitempty"`
	// SourceTimestamp is the producer-reported time (ms), informational only:
	// updates are applied in arrival order, never reordered by timestamp.
	SourceTimestamp int64 `json:"source_timestamp,omitempty"`
}

// updateSource tags where an update entered the coordinator. It is consumed
// by the reconciler's dual-source rules and dropped afterwards.
type updateSource int

const (
	sourcePush updateSource = iota
	sourcePoll
	sourceFetch
	sourceLocal
)

// wireEvent is the JSON shape of a task event on the push channel.
// Only the consumed fields are declared; the backend owns the full schema.
type wireEvent struct {
	TaskID    string         `json:"task_id"`
	Progress  *float64       `json:"progress,omitempty"`
	Message   string         `json:"message,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
}

// decodeWireEvent turns a raw push payload into an Update of the given kind.
func decodeWireEvent(enc Encoder, kind UpdateKind, payload []byte) (Update, error) {
	var ev wireEvent
	if err := enc.Decode(payload, &ev); err != nil {
		return Update{}, err
	}
	u := Update{
		TaskID:          ev.TaskID,
		Kind:            kind,
		Message:         ev.Message,
		Stats:           Stats(ev.Stats),
		Err:             ev.Error,
		SourceTimestamp: ev.Timestamp,
	}
	if ev.Progress != nil {
		u.Progress = *ev.Progress
		u.HasProgress = true
	}
	return u, nil
}

// StatusResponse is the consumed shape of a status-endpoint reply.
type StatusResponse struct {
	Status   string         `json:"status"`
	Progress *float64       `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
	Stats    map[string]any `json:"stats,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// normalizeStatus converts a poll/fetch response into an Update. Unrecognized
// status strings are treated as progress reports so a healthy task is never
// failed by a status value this client does not know about.
func normalizeStatus(taskID string, resp *StatusResponse) Update {
	u := Update{
		TaskID:  taskID,
		Kind:    KindProgress,
		Message: resp.Message,
		Stats:   Stats(resp.Stats),
		Err:     resp.Error,
	}
	if resp.Progress != nil {
		u.Progress = *resp.Progress
		u.HasProgress = true
	}
	switch strings.ToLower(resp.Status) {
	case "completed", "complete", "done", "finished", "succeeded", "success":
		u.Kind = KindCompleted
	case "failed", "error", "errored":
		u.Kind = KindFailed
	case "cancelled", "canceled", "killed":
		u.Kind = KindCancelled
	case "pending", "queued":
		// the backend says it has not picked the task up; keep it pending
		u.Kind = KindProgress
		u.StillPending = true
	case "started", "starting":
		u.Kind = KindStarted
	}
	return u
}
