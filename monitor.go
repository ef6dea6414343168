package taskpulse

import "time"

// sweep is the periodic health pass over running tasks. It never changes task
// state itself: a flagged task only gets a status fetch, because a false
// positive must not fail a healthy task.
//
// Two windows apply. A mid-progress task (10 < p < 95) silent past the stuck
// threshold is possibly stuck. A task sitting at 95%+ past the larger stall
// threshold is the most likely to have silently finished, so it is checked
// for a missed completion event.
func (c *Coordinator) sweep() {
	now := time.Now().UnixMilli()
	stuckMs := c.cfg.stuckThreshold.Milliseconds()
	stallMs := c.cfg.stallThreshold.Milliseconds()

	var fetch []string
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for _, t := range c.reg.snapshotAll() {
		if t.State != StateRunning {
			continue
		}
		base := t.LastUpdateAt
		if base == 0 {
			base = t.CreatedAt
		}
		silent := now - base
		if t.Progress >= 95 {
			if silent > stallMs {
				fetch = append(fetch, t.ID)
			}
		} else if t.Progress > 10 && silent > stuckMs {
			fetch = append(fetch, t.ID)
		}
	}
	c.mu.Unlock()

	for _, id := range fetch {
		if !c.fetchLimiter.Allow() {
			c.log.Debugf("sweep fetch throttled; %s and later rechecks deferred to next sweep", id)
			return
		}
		c.log.Debugf("task %s silent too long; requesting status", id)
		c.requestStatus(id)
	}
}
