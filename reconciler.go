package taskpulse

import "strings"

// completionKeywords are matched (case-insensitively) against free-text
// status messages. Backends in this family sometimes omit a dedicated
// completion event, so a progress update whose text says it finished must be
// treated as the completion.
var completionKeywords = []string{"complet", "done", "finish"}

// reconciler decides whether and how each incoming update is applied,
// resolving conflicts between push and polling sources. Ordering across
// sources is not assumed; arrival order plus the registry's clamping rules
// keep the outcome consistent.
type reconciler struct {
	reg *registry
	log Logger
}

func newReconciler(reg *registry, log Logger) *reconciler {
	if log == nil {
		log = noopLogger{}
	}
	return &reconciler{reg: reg, log: log}
}

// ingest applies one normalized update. Progress updates that carry a
// completion signal are reclassified as completions before application.
func (rc *reconciler) ingest(u Update, src updateSource, now int64) (applyOutcome, *Task) {
	if u.Kind == KindProgress && impliesCompletion(u) {
		rc.log.Debugf("task %s: progress update reclassified as completion", u.TaskID)
		u.Kind = KindCompleted
	}
	outcome, snap := rc.reg.apply(u, src, now)
	if outcome == outcomeAlreadyTerminal {
		rc.log.Debugf("task %s: update discarded, already terminal", u.TaskID)
	}
	return outcome, snap
}

// impliesCompletion reports whether a progress update should be treated as a
// completion: full progress, an explicit stats status, completion wording in
// the message, or counters that ran out of work.
func impliesCompletion(u Update) bool {
	if u.HasProgress && u.Progress >= 100 {
		return true
	}
	if statusIsComplete(u.Stats) {
		return true
	}
	if msg := strings.ToLower(u.Message); msg != "" {
		for _, kw := range completionKeywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}
	return countersExhausted(u.Stats)
}

func statusIsComplete(s Stats) bool {
	v, ok := s["status"]
	if !ok {
		return false
	}
	str, ok := v.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(str) {
	case "completed", "complete", "done", "finished":
		return true
	default:
		return false
	}
}

// countersExhausted detects processed == total style counters.
func countersExhausted(s Stats) bool {
	total, ok := statNumber(s, "total")
	if !ok || total <= 0 {
		return false
	}
	for _, key := range []string{"processed", "completed", "downloaded", "finished"} {
		if n, ok := statNumber(s, key); ok && n >= total {
			return true
		}
	}
	return false
}

// statNumber reads a numeric stats value. JSON decoding yields float64 but
// locally injected stats may carry native ints.
func statNumber(s Stats, key string) (float64, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
