package taskpulse

import "context"

// Push channel event names consumed by the coordinator.
const (
	EventTaskStarted   = "task_started"
	EventTaskProgress  = "progress_update"
	EventTaskCompleted = "task_completed"
	EventTaskError     = "task_error"
	EventTaskCancelled = "task_cancelled"

	// EventCancelTask is emitted by the coordinator to request cancellation.
	EventCancelTask = "cancel_task"

	// EventPing/EventPong are the keep-alive round-trip probes.
	EventPing = "ping"
	EventPong = "pong"

	// Connection lifecycle events surfaced by a PushChannel implementation.
	EventConnect          = "connect"
	EventDisconnect       = "disconnect"
	EventConnectError     = "connect_error"
	EventReconnectAttempt = "reconnect_attempt"
)

// progressEventFor returns the per-kind progress variant event name,
// e.g. "playlist_download_progress".
func progressEventFor(kind string) string { return kind + "_progress" }

// PushChannel is a persistent bidirectional connection delivering unsolicited
// updates. Implementations must invoke handlers for the lifecycle event names
// (connect, disconnect, connect_error, reconnect_attempt) as well as task
// events. Handlers for one event are invoked in registration order; events
// are delivered in arrival order.
type PushChannel interface {
	// On registers a handler for the named event. Handlers may be
	// registered at any time, including after the channel connects.
	On(event string, handler func(payload []byte))
	// Emit publishes an event toward the backend. Returns ErrNotConnected
	// when the channel is down.
	Emit(event string, payload any) error
	// Connected reports whether the channel is currently usable.
	Connected() bool
}

// StatusClient is the request/response side of the transport: on-demand
// status fetches and the redundant cancellation path.
type StatusClient interface {
	// Status fetches the current backend status of a task.
	Status(ctx context.Context, taskID string) (*StatusResponse, error)
	// Cancel requests cancellation of a task. Cancellation is a request,
	// not a state change; the task stays live until a cancelled update arrives.
	Cancel(ctx context.Context, taskID string) error
}

// PresentationSink is an optional collaborator (progress bars, toasts, logs)
// receiving task snapshots. A sink must never be required for correctness;
// panics raised by a sink are caught and logged.
type PresentationSink interface {
	// TaskProgress is invoked on every observable non-terminal change.
	TaskProgress(t *Task)
	// TaskFinished is invoked exactly once when a task reaches a terminal state.
	TaskFinished(t *Task)
}
