package taskpulse

import (
	"sync"

	"github.com/google/uuid"
)

// Subscriber holds per-task callbacks. Any field may be nil. Terminal
// callbacks (OnComplete, OnError, OnCancel) fire at most once per
// subscription; OnProgress fires on every observable non-terminal change.
// Callbacks receive read-only snapshots and must not retain or mutate them.
type Subscriber struct {
	OnProgress func(*Task)
	OnComplete func(*Task)
	OnError    func(*Task)
	OnCancel   func(*Task)
}

// Subscription identifies one registered Subscriber. Unsubscribe removes
// exactly the handler that was registered, nothing else.
type Subscription struct {
	set    *subscriptionSet
	taskID string
	token  string
}

// Unsubscribe removes the subscription. Safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.set == nil {
		return
	}
	s.set.remove(s.taskID, s.token)
}

type subEntry struct {
	sub           Subscriber
	terminalFired bool
}

// subscriptionSet is the subscriber registry, keyed task id -> token.
type subscriptionSet struct {
	mu     sync.Mutex
	log    Logger
	byTask map[string]map[string]*subEntry
}

func newSubscriptionSet(log Logger) *subscriptionSet {
	if log == nil {
		log = noopLogger{}
	}
	return &subscriptionSet{log: log, byTask: make(map[string]map[string]*subEntry)}
}

func (s *subscriptionSet) add(taskID string, sub Subscriber) *Subscription {
	token := uuid.NewString()
	s.mu.Lock()
	entries, ok := s.byTask[taskID]
	if !ok {
		entries = make(map[string]*subEntry)
		s.byTask[taskID] = entries
	}
	entries[token] = &subEntry{sub: sub}
	s.mu.Unlock()
	return &Subscription{set: s, taskID: taskID, token: token}
}

func (s *subscriptionSet) remove(taskID, token string) {
	s.mu.Lock()
	if entries, ok := s.byTask[taskID]; ok {
		delete(entries, token)
		if len(entries) == 0 {
			delete(s.byTask, taskID)
		}
	}
	s.mu.Unlock()
}

// drop removes every subscription for a task.
func (s *subscriptionSet) drop(taskID string) {
	s.mu.Lock()
	delete(s.byTask, taskID)
	s.mu.Unlock()
}

// notifyProgress fires OnProgress for every subscriber of the task.
func (s *subscriptionSet) notifyProgress(t *Task) {
	for _, sub := range s.collect(t.ID, false) {
		s.safeCall(sub.OnProgress, t)
	}
}

// notifyTerminal fires the callback matching the terminal state, at most once
// per subscription even if duplicate terminal notifications slip through.
func (s *subscriptionSet) notifyTerminal(t *Task) {
	for _, sub := range s.collect(t.ID, true) {
		switch t.State {
		case StateCompleted:
			s.safeCall(sub.OnComplete, t)
		case StateFailed:
			s.safeCall(sub.OnError, t)
		case StateCancelled:
			s.safeCall(sub.OnCancel, t)
		}
	}
}

// collect copies the subscriber list out of the lock so a slow callback never
// blocks registration. When terminal, entries that already fired are skipped
// and the rest are marked fired.
func (s *subscriptionSet) collect(taskID string, terminal bool) []Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.byTask[taskID]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Subscriber, 0, len(entries))
	for _, e := range entries {
		if terminal {
			if e.terminalFired {
				continue
			}
			e.terminalFired = true
		}
		out = append(out, e.sub)
	}
	return out
}

// safeCall isolates consumer callbacks: a panicking consumer is logged and
// must not break tracking for other tasks or subscribers.
func (s *subscriptionSet) safeCall(fn func(*Task), t *Task) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Errorf("subscriber callback panic for task %s: %v", t.ID, rec)
		}
	}()
	fn(t)
}
