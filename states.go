package taskpulse

// TaskState represents the lifecycle state of a tracked task.
// Use the exported constants (StatePending, StateRunning, etc.) instead of
// raw strings to avoid typos.
type TaskState string

const (
	// StatePending is the initial state of a tracked task before any
	// update has been observed for it.
	StatePending TaskState = "pending"
	// StateRunning indicates the backend has started the task and may be
	// reporting progress.
	StateRunning TaskState = "running"
	// StateCompleted is the terminal state of a successfully finished task.
	StateCompleted TaskState = "completed"
	// StateFailed is the terminal state of a task the backend reported as failed.
	StateFailed TaskState = "failed"
	// StateCancelled is the terminal state of a task cancelled on request.
	StateCancelled TaskState = "cancelled"
)

// AllTaskStates lists every valid task state in a stable order.
var AllTaskStates = []TaskState{StatePending, StateRunning, StateCompleted, StateFailed, StateCancelled}

// String returns the raw string value of the state.
func (s TaskState) String() string { return string(s) }

// Terminal reports whether the state permits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ParseTaskState converts a string into a TaskState, returning an error for unknown values.
func ParseTaskState(s string) (TaskState, error) {
	switch s {
	case string(StatePending):
		return StatePending, nil
	case string(StateRunning):
		return StateRunning, nil
	case string(StateCompleted):
		return StateCompleted, nil
	case string(StateFailed):
		return StateFailed, nil
	case string(StateCancelled):
		return StateCancelled, nil
	default:
		return "", ErrUnknownState
	}
}

// DeliveryMode records which channel is currently authoritative for a task.
type DeliveryMode string

const (
	// ModePush means updates for the task arrive over the push channel.
	ModePush DeliveryMode = "push"
	// ModePolling means the task is fed by the client-initiated polling loop.
	ModePolling DeliveryMode = "polling"
)

// UpdateKind classifies a normalized update, regardless of originating transport.
type UpdateKind string

const (
	// KindStarted marks the transition from pending to running.
	KindStarted UpdateKind = "started"
	// KindProgress carries a progress/message/stats change for a running task.
	KindProgress UpdateKind = "progress"
	// KindCompleted terminates the task successfully.
	KindCompleted UpdateKind = "completed"
	// KindFailed terminates the task with a backend-reported error.
	KindFailed UpdateKind = "failed"
	// KindCancelled terminates the task after a cancellation request.
	KindCancelled UpdateKind = "cancelled"
)

// terminalStateFor maps a terminal update kind to the task state it produces.
func terminalStateFor(k UpdateKind) (TaskState, bool) {
	switch k {
	case KindCompleted:
		return StateCompleted, true
	case KindFailed:
		return StateFailed, true
	case KindCancelled:
		return StateCancelled, true
	default:
		return "", false
	}
}
