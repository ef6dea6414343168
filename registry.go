package taskpulse

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/TaskPulse/taskpulse-go/internal/rate"
)

// taskRecord is the registry's mutable view of one tracked task. It is never
// handed out; callers only ever see snapshots.
type taskRecord struct {
	id   string
	kind string

	state    TaskState
	progress float64
	message  string
	stats    Stats

	createdAt    int64
	lastUpdateAt int64
	endedAt      int64

	// lastPushAt is when the last push-sourced update arrived, used by the
	// dual-source freshness rule.
	lastPushAt int64

	mode       DeliveryMode
	retryCount int
	lastError  string

	samples []rate.Sample
}

// applyOutcome classifies what an update did to the registry.
type applyOutcome int

const (
	// outcomeUnknown means the task is not tracked; the update was discarded.
	outcomeUnknown applyOutcome = iota
	// outcomeAlreadyTerminal means the task already reached a terminal state;
	// the update was discarded (idempotent-ignore, not an error).
	outcomeAlreadyTerminal
	// outcomeNoChange means the update was accepted but changed nothing observable.
	outcomeNoChange
	// outcomeChanged means progress, message, state or stats changed.
	outcomeChanged
	// outcomeTerminal means this update performed the task's one terminal transition.
	outcomeTerminal
)

// registry owns task identity and lifecycle. It is not safe for concurrent
// use; the coordinator serializes all access behind its own mutex.
type registry struct {
	sampleWindow int
	pushFreshMs  int64
	simpleRates  bool

	live    map[string]*taskRecord
	history *lru.Cache[string, *Task]
}

func newRegistry(sampleWindow, historySize int, pushFresh time.Duration, simpleRates bool) *registry {
	hist, _ := lru.New[string, *Task](historySize)
	return &registry{
		sampleWindow: sampleWindow,
		pushFreshMs:  pushFresh.Milliseconds(),
		simpleRates:  simpleRates,
		live:         make(map[string]*taskRecord),
		history:      hist,
	}
}

// create registers a task. Re-creating a terminal id is allowed and resets it
// (the old snapshot is retired to history); re-creating a live non-terminal
// id returns ErrDuplicateTask.
func (r *registry) create(id, kind string, now int64) (*Task, error) {
	if prev, ok := r.live[id]; ok {
		if !prev.state.Terminal() {
			return nil, ErrDuplicateTask
		}
		r.retire(prev)
	}
	rec := &taskRecord{
		id:        id,
		kind:      kind,
		state:     StatePending,
		stats:     Stats{},
		createdAt: now,
		mode:      ModePush,
	}
	r.live[id] = rec
	return r.snapshot(rec), nil
}

// apply routes an update through the state machine. Updates for unknown or
// already-terminal tasks are discarded. For kinds carrying progress the
// stored value is clamped to max(current, incoming); a completion with
// progress at 99 or above is forced to exactly 100.
func (r *registry) apply(u Update, src updateSource, now int64) (applyOutcome, *Task) {
	rec, ok := r.live[u.TaskID]
	if !ok {
		return outcomeUnknown, nil
	}
	if rec.state.Terminal() {
		return outcomeAlreadyTerminal, nil
	}

	// Dual-source bookkeeping. A poll that overlaps fresh push traffic is
	// still applied, but must not make the task look alive on its own.
	pushFresh := rec.lastPushAt > 0 && now-rec.lastPushAt <= r.pushFreshMs
	refreshLiveness := true
	switch src {
	case sourcePush:
		rec.lastPushAt = now
		rec.mode = ModePush
	case sourcePoll:
		if pushFresh && rec.mode == ModePush {
			refreshLiveness = false
		} else {
			rec.mode = ModePolling
		}
	}

	if st, terminal := terminalStateFor(u.Kind); terminal {
		p := rec.progress
		if u.HasProgress && clampProgress(u.Progress) > p {
			p = clampProgress(u.Progress)
		}
		if u.Kind == KindCompleted && p >= 99 {
			p = 100
		}
		rec.progress = p
		rec.state = st
		if u.Message != "" {
			rec.message = u.Message
		}
		if u.Err != "" {
			rec.lastError = u.Err
		}
		if len(u.Stats) > 0 {
			rec.stats.merge(u.Stats)
		}
		rec.endedAt = now
		rec.lastUpdateAt = now
		return outcomeTerminal, r.snapshot(rec)
	}

	changed := false
	if rec.state == StatePending && !u.StillPending {
		// any other non-terminal signal means the backend has picked the task up
		rec.state = StateRunning
		changed = true
	}
	if u.HasProgress {
		p := clampProgress(u.Progress)
		if p > rec.progress {
			r.recordSample(rec, now, p)
			rec.progress = p
			changed = true
		}
	}
	if u.Message != "" && u.Message != rec.message {
		rec.message = u.Message
		changed = true
	}
	if u.Err != "" && u.Err != rec.lastError {
		rec.lastError = u.Err
		changed = true
	}
	if len(u.Stats) > 0 && rec.stats.merge(u.Stats) {
		changed = true
	}

	if !changed {
		if refreshLiveness {
			rec.lastUpdateAt = now
		}
		return outcomeNoChange, nil
	}
	if refreshLiveness {
		rec.lastUpdateAt = now
	}
	return outcomeChanged, r.snapshot(rec)
}

// recordSample appends a progress observation. Samples are only recorded for
// strictly increasing progress and strictly advancing time, which keeps the
// estimator away from zero and negative deltas.
func (r *registry) recordSample(rec *taskRecord, now int64, progress float64) {
	if n := len(rec.samples); n > 0 {
		last := rec.samples[n-1]
		if now <= last.At || progress <= last.Progress {
			return
		}
	}
	rec.samples = append(rec.samples, rate.Sample{At: now, Progress: progress})
	if len(rec.samples) > r.sampleWindow {
		rec.samples = rec.samples[len(rec.samples)-r.sampleWindow:]
	}
}

// notePollFailure bumps the consecutive fetch-failure count and returns it.
func (r *registry) notePollFailure(id, errText string, now int64) int {
	rec, ok := r.live[id]
	if !ok {
		return 0
	}
	rec.retryCount++
	if errText != "" {
		rec.lastError = errText
	}
	return rec.retryCount
}

// resetPollFailures clears the consecutive fetch-failure count after a success.
func (r *registry) resetPollFailures(id string) {
	if rec, ok := r.live[id]; ok {
		rec.retryCount = 0
	}
}

// markUnreachable records a non-fatal observability-loss message without
// refreshing the task's liveness. Losing sight of a task is not the task failing.
func (r *registry) markUnreachable(id, msg string) (applyOutcome, *Task) {
	rec, ok := r.live[id]
	if !ok {
		return outcomeUnknown, nil
	}
	if rec.state.Terminal() {
		return outcomeAlreadyTerminal, nil
	}
	if rec.message == msg {
		return outcomeNoChange, nil
	}
	rec.message = msg
	return outcomeChanged, r.snapshot(rec)
}

// isLive reports whether the task is still in the live registry; retained
// history entries do not count.
func (r *registry) isLive(id string) bool {
	_, ok := r.live[id]
	return ok
}

// get returns a snapshot of a live task, or of a recently released terminal
// one still in the retained history. Nil when unknown.
func (r *registry) get(id string) *Task {
	if rec, ok := r.live[id]; ok {
		return r.snapshot(rec)
	}
	if t, ok := r.history.Get(id); ok {
		return cloneTask(t)
	}
	return nil
}

// release retires a terminal task from the live map into the retained
// history. Safe to call multiple times. A non-terminal record is left
// untouched: a live task is never garbage collected before its terminal
// transition.
func (r *registry) release(id string) {
	rec, ok := r.live[id]
	if !ok || !rec.state.Terminal() {
		return
	}
	r.retire(rec)
}

// purge removes a task entirely, retained terminal snapshot included.
// Used by explicit forgetting; release keeps the terminal snapshot, purge does not.
func (r *registry) purge(id string) {
	delete(r.live, id)
	r.history.Remove(id)
}

func (r *registry) retire(rec *taskRecord) {
	delete(r.live, rec.id)
	if rec.state.Terminal() {
		r.history.Add(rec.id, r.snapshot(rec))
	}
}

// nonTerminalIDs lists every live task that has not reached a terminal state.
func (r *registry) nonTerminalIDs() []string {
	out := make([]string, 0, len(r.live))
	for id, rec := range r.live {
		if !rec.state.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// snapshotAll returns snapshots of every live task.
func (r *registry) snapshotAll() []*Task {
	out := make([]*Task, 0, len(r.live))
	for _, rec := range r.live {
		out = append(out, r.snapshot(rec))
	}
	return out
}

func (r *registry) size() int { return len(r.live) }

// snapshot builds a defensive copy including the rate estimate.
func (r *registry) snapshot(rec *taskRecord) *Task {
	t := &Task{
		ID:           rec.id,
		Kind:         rec.kind,
		State:        rec.state,
		Progress:     rec.progress,
		Message:      rec.message,
		Stats:        rec.stats.clone(),
		CreatedAt:    rec.createdAt,
		LastUpdateAt: rec.lastUpdateAt,
		EndedAt:      rec.endedAt,
		DeliveryMode: rec.mode,
		RetryCount:   rec.retryCount,
		LastError:    rec.lastError,
	}
	if len(rec.samples) > 0 {
		t.Samples = make([]Sample, len(rec.samples))
		for i, s := range rec.samples {
			t.Samples[i] = Sample{At: s.At, Progress: s.Progress}
		}
	}
	if !rec.state.Terminal() {
		var est rate.Estimate
		if r.simpleRates {
			est = rate.Simple(rec.samples, rec.progress)
		} else {
			est = rate.Weighted(rec.samples, r.sampleWindow, rec.progress)
		}
		t.Estimate = Estimate{
			Known:      est.Known,
			RatePerMs:  est.RatePerMs,
			EtaMs:      est.EtaMs,
			Confidence: est.Confidence,
		}
	}
	return t
}

func cloneTask(t *Task) *Task {
	out := *t
	out.Stats = t.Stats.clone()
	if len(t.Samples) > 0 {
		out.Samples = append([]Sample(nil), t.Samples...)
	}
	return &out
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
