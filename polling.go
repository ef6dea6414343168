package taskpulse

import (
	"context"
	"time"

	"github.com/TaskPulse/taskpulse-go/internal/sched"
)

// pollLoop is the logical resource behind one task's polling fallback. The
// repeating timer is the only thing it owns; tearing it down exactly once on
// terminal state, Forget, ceiling or shutdown is what the tests pin down.
type pollLoop struct {
	id       string
	rep      *sched.Repeating
	failures int // touched only by the loop's own goroutine
}

// startPollingLocked starts the polling loop for a task unless one is already
// running. Caller holds c.mu.
func (c *Coordinator) startPollingLocked(id string) {
	if c.status == nil || c.closed {
		return
	}
	if _, ok := c.polls[id]; ok {
		return
	}
	pl := &pollLoop{id: id}
	pl.rep = sched.Every(c.cfg.pollInterval, func() { c.pollOnce(pl) })
	c.polls[id] = pl
	c.log.Debugf("polling started for task %s", id)
}

// stopPollingLocked tears the loop down. Caller holds c.mu. Safe when no loop runs.
func (c *Coordinator) stopPollingLocked(id string) {
	if pl, ok := c.polls[id]; ok {
		pl.rep.Cancel()
		delete(c.polls, id)
		c.log.Debugf("polling stopped for task %s", id)
	}
}

// pollOnce performs one fetch tick. The registration gate makes Forget
// authoritative: once the loop is out of the map, no further fetch is issued
// for the id even if a tick was already pending.
func (c *Coordinator) pollOnce(pl *pollLoop) {
	c.mu.Lock()
	cur, ok := c.polls[pl.id]
	closed := c.closed
	c.mu.Unlock()
	if closed || !ok || cur != pl {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.fetchTimeout)
	resp, err := c.status.Status(ctx, pl.id)
	cancel()

	if err != nil {
		pl.failures++
		c.mu.Lock()
		c.reg.notePollFailure(pl.id, err.Error(), time.Now().UnixMilli())
		var outcome applyOutcome
		var snap *Task
		ceiling := pl.failures >= c.cfg.maxPollFailures
		if ceiling {
			c.stopPollingLocked(pl.id)
			outcome, snap = c.reg.markUnreachable(pl.id, lostConnectionMessage)
		}
		c.mu.Unlock()
		if ceiling {
			c.log.Warnf("task %s: %d consecutive poll failures, giving up polling", pl.id, pl.failures)
			if outcome == outcomeChanged {
				c.subs.notifyProgress(snap)
				c.sinkNotify(snap, false)
			}
		}
		return
	}

	if pl.failures > 0 {
		pl.failures = 0
		c.mu.Lock()
		c.reg.resetPollFailures(pl.id)
		c.mu.Unlock()
	}
	c.ingest(normalizeStatus(pl.id, resp), sourcePoll)
}
