package taskpulse

// Handle is returned by Track and scopes operations to one task. The injector
// methods (SetProgress, Complete, Fail) let a caller originate updates
// locally, e.g. for simulated tasks; they flow through the same reconciler
// path as transport updates, so clamping, completion inference and
// terminal-once rules all still apply.
type Handle struct {
	c  *Coordinator
	id string
}

// ID returns the tracked task id.
func (h *Handle) ID() string { return h.id }

// Cancel requests cancellation of the task.
func (h *Handle) Cancel() error { return h.c.Cancel(h.id) }

// Status returns the current task snapshot.
func (h *Handle) Status() (*Task, error) { return h.c.Status(h.id) }

// SetProgress injects a locally originated progress update.
func (h *Handle) SetProgress(progress float64, message string) {
	h.c.ingest(Update{
		TaskID:      h.id,
		Kind:        KindProgress,
		Progress:    progress,
		HasProgress: true,
		Message:     message,
	}, sourceLocal)
}

// Complete injects a locally originated completion.
func (h *Handle) Complete(message string) {
	h.c.ingest(Update{TaskID: h.id, Kind: KindCompleted, Message: message}, sourceLocal)
}

// Fail injects a locally originated failure.
func (h *Handle) Fail(message string) {
	h.c.ingest(Update{TaskID: h.id, Kind: KindFailed, Message: message, Err: message}, sourceLocal)
}
