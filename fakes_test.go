package taskpulse

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"
)

// fakeChannel is an in-memory PushChannel driven by the test.
type fakeChannel struct {
	mu        sync.Mutex
	handlers  map[string][]func([]byte)
	connected bool
	emitted   []emittedEvent
}

type emittedEvent struct {
	event   string
	payload any
}

func newFakeChannel(connected bool) *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]func([]byte)), connected: connected}
}

func (f *fakeChannel) On(event string, handler func(payload []byte)) {
	f.mu.Lock()
	f.handlers[event] = append(f.handlers[event], handler)
	f.mu.Unlock()
}

func (f *fakeChannel) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.emitted = append(f.emitted, emittedEvent{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// fire delivers an event to registered handlers, like an arriving frame.
func (f *fakeChannel) fire(event string, payload []byte) {
	f.mu.Lock()
	hs := slices.Clone(f.handlers[event])
	f.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (f *fakeChannel) fireJSON(t *testing.T, event string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	f.fire(event, raw)
}

func (f *fakeChannel) emittedEvents(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, e := range f.emitted {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeStatus is a scripted StatusClient. Responses are queued per task id;
// the last response sticks. With no queue, Status returns an error.
type fakeStatus struct {
	mu      sync.Mutex
	queues  map[string][]*StatusResponse
	calls   map[string]int
	cancels []string
	err     error
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{
		queues: make(map[string][]*StatusResponse),
		calls:  make(map[string]int),
		err:    errors.New("no scripted response"),
	}
}

func (f *fakeStatus) push(id string, resps ...*StatusResponse) {
	f.mu.Lock()
	f.queues[id] = append(f.queues[id], resps...)
	f.mu.Unlock()
}

func (f *fakeStatus) Status(_ context.Context, taskID string) (*StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[taskID]++
	q := f.queues[taskID]
	if len(q) == 0 {
		return nil, f.err
	}
	resp := q[0]
	if len(q) > 1 {
		f.queues[taskID] = q[1:]
	}
	return resp, nil
}

func (f *fakeStatus) Cancel(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, taskID)
	return nil
}

func (f *fakeStatus) statusCalls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeStatus) cancelled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

func running(p float64) *StatusResponse {
	return &StatusResponse{Status: "running", Progress: &p}
}

// terminalCounter tallies terminal callbacks for a subscription.
type terminalCounter struct {
	mu        sync.Mutex
	progress  int
	completed int
	failed    int
	cancelled int
	last      *Task
}

func (tc *terminalCounter) subscriber() Subscriber {
	return Subscriber{
		OnProgress: func(t *Task) { tc.bump(&tc.progress, t) },
		OnComplete: func(t *Task) { tc.bump(&tc.completed, t) },
		OnError:    func(t *Task) { tc.bump(&tc.failed, t) },
		OnCancel:   func(t *Task) { tc.bump(&tc.cancelled, t) },
	}
}

func (tc *terminalCounter) bump(field *int, t *Task) {
	tc.mu.Lock()
	*field++
	tc.last = t
	tc.mu.Unlock()
}

func (tc *terminalCounter) counts() (progress, completed, failed, cancelled int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.progress, tc.completed, tc.failed, tc.cancelled
}
