// Package sched provides a cancellable repeating timer. Owning lifecycle
// correctness in a value with a single Cancel avoids the interval-id
// bookkeeping that leaks timers when done by hand.
package sched

import (
	"sync"
	"time"
)

// Repeating invokes a function at a fixed interval until cancelled.
// Invocations run sequentially on a single goroutine; a slow invocation
// delays (never overlaps) the next one.
type Repeating struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

// Every starts a new repeating timer. The first invocation happens one
// interval after Every returns.
func Every(interval time.Duration, fn func()) *Repeating {
	r := &Repeating{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-tick.C:
				select {
				case <-r.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return r
}

// Cancel stops the timer. It is idempotent and safe to call from within the
// timer's own function. An invocation already in flight may complete; callers
// needing a hard cut-off must gate inside fn.
func (r *Repeating) Cancel() {
	r.once.Do(func() { close(r.stop) })
}

// Wait blocks until the timer goroutine has exited. Calling Wait from within
// the timer's own function deadlocks; it is meant for shutdown paths.
func (r *Repeating) Wait() {
	<-r.done
}
