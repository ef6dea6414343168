package taskpulse

// TaskDiagnostic is the operational view of one live task.
type TaskDiagnostic struct {
	ID           string       `json:"id"`
	Kind         string       `json:"kind"`
	State        TaskState    `json:"state"`
	DeliveryMode DeliveryMode `json:"delivery_mode"`
	Polling      bool         `json:"polling"`
}

// Diagnostics is a read-only snapshot for operational tooling. It is never
// required for correctness.
type Diagnostics struct {
	Connection  ConnState        `json:"connection"`
	LiveTasks   int              `json:"live_tasks"`
	ActiveTasks int              `json:"active_tasks"`
	Tasks       []TaskDiagnostic `json:"tasks,omitempty"`
	// LatencyMs is the bounded history of keep-alive round trips, oldest first.
	LatencyMs []int64 `json:"latency_ms,omitempty"`
}

// Diagnostics returns the current operational snapshot.
func (c *Coordinator) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Diagnostics{
		Connection: c.connState,
		LiveTasks:  c.reg.size(),
	}
	for _, t := range c.reg.snapshotAll() {
		if !t.State.Terminal() {
			d.ActiveTasks++
		}
		_, polling := c.polls[t.ID]
		d.Tasks = append(d.Tasks, TaskDiagnostic{
			ID:           t.ID,
			Kind:         t.Kind,
			State:        t.State,
			DeliveryMode: t.DeliveryMode,
			Polling:      polling,
		})
	}
	if len(c.latency) > 0 {
		d.LatencyMs = append([]int64(nil), c.latency...)
	}
	return d
}
