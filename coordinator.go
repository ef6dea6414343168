package taskpulse

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	xrate "golang.org/x/time/rate"

	"github.com/TaskPulse/taskpulse-go/internal/sched"
)

// ConnState is the push-channel connection state, independent of any task's state.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
)

// lostConnectionMessage is surfaced on a task when its polling loop gives up.
// Losing observability is not the task failing, so the state is untouched.
const lostConnectionMessage = "lost connection to server"

// pingPayload is the keep-alive probe correlated by id on the pong.
type pingPayload struct {
	ID     string `json:"id"`
	SentMs int64  `json:"sent_ms"`
}

// Coordinator tracks long-running backend tasks, reconciling updates from the
// push channel, the polling fallback and on-demand fetches into one
// consistent progress timeline with exactly one terminal transition per task.
//
// A Coordinator owns all of its state; construct one per application instance
// and inject it into consumers. All registry mutation is serialized behind a
// single mutex, so concurrently resolving deliveries are applied one at a
// time in arrival order.
type Coordinator struct {
	mu      sync.Mutex
	started bool
	closed  bool

	channel PushChannel // optional: nil runs in pure polling mode
	status  StatusClient
	cfg     *options
	log     Logger
	enc     Encoder

	reg  *registry
	rec  *reconciler
	subs *subscriptionSet
	sink PresentationSink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	polls    map[string]*pollLoop
	releases map[string]*time.Timer

	sweeper   *sched.Repeating
	keepAlive *sched.Repeating

	fetchLimiter *xrate.Limiter

	connState  ConnState
	kindEvents map[string]bool
	pings      map[string]int64
	latency    []int64
}

// NewCoordinator creates a coordinator over the given transports. channel may
// be nil for a polling-only deployment; status may be nil when the backend
// offers no request/response endpoint (push only).
func NewCoordinator(channel PushChannel, status StatusClient, opts ...Option) *Coordinator {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}
	l := cfg.logger
	if l == nil {
		l = NewFmtLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		channel:      channel,
		status:       status,
		cfg:          cfg,
		log:          l,
		enc:          &JSONEncoder{},
		sink:         cfg.sink,
		ctx:          ctx,
		cancel:       cancel,
		polls:        make(map[string]*pollLoop),
		releases:     make(map[string]*time.Timer),
		fetchLimiter: xrate.NewLimiter(xrate.Limit(cfg.fetchPerSec), cfg.fetchBurst),
		connState:    ConnDisconnected,
		kindEvents:   make(map[string]bool),
		pings:        make(map[string]int64),
	}
	// push freshness window: two polling intervals
	c.reg = newRegistry(cfg.sampleWindow, cfg.historySize, 2*cfg.pollInterval, cfg.simpleRates)
	c.rec = newReconciler(c.reg, l)
	c.subs = newSubscriptionSet(l)
	return c
}

// Start binds the push-channel handlers and launches the background sweeps.
// It is idempotent and non-blocking.
func (c *Coordinator) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		if c.started {
			c.log.Warnf("coordinator already started; ignoring Start()")
		}
		c.mu.Unlock()
		return
	}
	c.started = true
	if c.channel != nil && c.channel.Connected() {
		c.connState = ConnConnected
	}
	c.mu.Unlock()

	if c.channel != nil {
		c.channel.On(EventConnect, func([]byte) { c.onConnect() })
		c.channel.On(EventDisconnect, func([]byte) { c.onDisconnect() })
		c.channel.On(EventReconnectAttempt, func([]byte) { c.onReconnectAttempt() })
		c.channel.On(EventConnectError, func(p []byte) { c.log.Warnf("push channel connect error: %s", p) })
		c.channel.On(EventTaskStarted, c.pushHandler(KindStarted))
		c.channel.On(EventTaskProgress, c.pushHandler(KindProgress))
		c.channel.On(EventTaskCompleted, c.pushHandler(KindCompleted))
		c.channel.On(EventTaskError, c.pushHandler(KindFailed))
		c.channel.On(EventTaskCancelled, c.pushHandler(KindCancelled))
		c.channel.On(EventPong, c.onPong)
		c.keepAlive = sched.Every(c.cfg.keepAliveEvery, c.keepAliveTick)
	}
	c.sweeper = sched.Every(c.cfg.sweepInterval, c.sweep)
	c.log.Infof("coordinator started: poll=%s stuck=%s stall=%s", c.cfg.pollInterval, c.cfg.stuckThreshold, c.cfg.stallThreshold)
}

// Stop tears down every polling loop, release timer and background sweep,
// then waits for in-flight fetches to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, pl := range c.polls {
		pl.rep.Cancel()
		delete(c.polls, id)
	}
	for id, tm := range c.releases {
		tm.Stop()
		delete(c.releases, id)
	}
	sweeper, keepAlive := c.sweeper, c.keepAlive
	c.mu.Unlock()

	if sweeper != nil {
		sweeper.Cancel()
	}
	if keepAlive != nil {
		keepAlive.Cancel()
	}
	c.cancel()
	c.wg.Wait()
	c.log.Infof("coordinator stopped")
}

// Track registers a task for tracking and begins requesting its status. The
// returned handle exposes cancellation, status reads and local injectors.
// Tracking an id that is already live and non-terminal returns ErrDuplicateTask.
func (c *Coordinator) Track(id, kind string) (*Handle, error) {
	now := time.Now().UnixMilli()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, err := c.reg.create(id, kind, now); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	// re-creating a terminal id retires the old incarnation immediately; its
	// pending release timer must not fire against the new one
	if tm, ok := c.releases[id]; ok {
		tm.Stop()
		delete(c.releases, id)
	}
	// recognize the per-kind progress event variant for this task category
	if c.channel != nil && kind != "" && !c.kindEvents[kind] {
		c.kindEvents[kind] = true
		c.channel.On(progressEventFor(kind), c.pushHandler(KindProgress))
	}
	connected := c.channel != nil && c.channel.Connected()
	if !connected {
		c.startPollingLocked(id)
	}
	c.mu.Unlock()

	// close the gap until the first event arrives
	c.requestStatus(id)
	return &Handle{c: c, id: id}, nil
}

// Subscribe registers per-task callbacks. Terminal callbacks fire at most
// once. The subscription's Unsubscribe removes exactly this registration.
// Only live tasks can be subscribed to; a task already released into the
// retained history has nothing left to observe and returns ErrUnknownTask.
func (c *Coordinator) Subscribe(id string, sub Subscriber) (*Subscription, error) {
	c.mu.Lock()
	live := c.reg.isLive(id)
	c.mu.Unlock()
	if !live {
		return nil, ErrUnknownTask
	}
	return c.subs.add(id, sub), nil
}

// Cancel requests cancellation of a task over every available path: the push
// channel when connected, and the HTTP endpoint regardless, because either
// may be silently dropped. The task stays in its current state until a
// cancelled update is actually observed.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	snap := c.reg.get(id)
	c.mu.Unlock()
	if snap == nil {
		return ErrUnknownTask
	}
	if snap.State.Terminal() {
		return nil
	}

	if c.channel != nil && c.channel.Connected() {
		if err := c.channel.Emit(EventCancelTask, map[string]string{"task_id": id}); err != nil {
			c.log.Warnf("cancel emit failed for task %s: %v", id, err)
		}
	}
	if c.status != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.fetchTimeout)
			defer cancel()
			if err := c.status.Cancel(ctx, id); err != nil {
				c.log.Warnf("cancel request failed for task %s: %v", id, err)
			}
		}()
	}
	return nil
}

// Forget releases a task immediately: its polling loop is torn down, its
// subscriptions dropped and its registry entry (including any retained
// terminal snapshot) removed. No fetch is issued for the id after Forget returns.
func (c *Coordinator) Forget(id string) error {
	c.mu.Lock()
	known := c.reg.get(id) != nil
	c.stopPollingLocked(id)
	if tm, ok := c.releases[id]; ok {
		tm.Stop()
		delete(c.releases, id)
	}
	c.reg.purge(id)
	c.subs.drop(id)
	c.mu.Unlock()
	if !known {
		return ErrUnknownTask
	}
	return nil
}

// Status returns a defensive snapshot of a live task, or of a recently
// released terminal one. The snapshot carries the current rate/ETA estimate.
func (c *Coordinator) Status(id string) (*Task, error) {
	c.mu.Lock()
	snap := c.reg.get(id)
	c.mu.Unlock()
	if snap == nil {
		return nil, ErrUnknownTask
	}
	return snap, nil
}

// ForEachTask invokes fn with a snapshot of every live task. Intended for
// operational tooling; snapshots are copies and safe to retain.
func (c *Coordinator) ForEachTask(fn func(*Task)) {
	c.mu.Lock()
	snaps := c.reg.snapshotAll()
	c.mu.Unlock()
	for _, t := range snaps {
		fn(t)
	}
}

// ingest is the single entry point for normalized updates from any source.
// Registry mutation happens inside the lock; consumer callbacks fire outside
// it so a slow subscriber cannot stall delivery.
func (c *Coordinator) ingest(u Update, src updateSource) {
	now := time.Now().UnixMilli()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	outcome, snap := c.rec.ingest(u, src, now)
	if outcome == outcomeTerminal {
		c.stopPollingLocked(u.TaskID)
		c.scheduleReleaseLocked(u.TaskID)
	}
	c.mu.Unlock()

	switch outcome {
	case outcomeChanged:
		c.subs.notifyProgress(snap)
		c.sinkNotify(snap, false)
	case outcomeTerminal:
		c.subs.notifyTerminal(snap)
		c.sinkNotify(snap, true)
	}
}

// requestStatus issues one on-demand status fetch and feeds the response back
// through the reconciler.
func (c *Coordinator) requestStatus(id string) {
	if c.status == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.fetchTimeout)
		defer cancel()
		resp, err := c.status.Status(ctx, id)
		if err != nil {
			c.log.Debugf("status fetch failed for task %s: %v", id, err)
			return
		}
		c.ingest(normalizeStatus(id, resp), sourceFetch)
	}()
}

// pushHandler adapts a raw push event of the given kind into the ingest path.
func (c *Coordinator) pushHandler(kind UpdateKind) func([]byte) {
	return func(payload []byte) {
		u, err := decodeWireEvent(c.enc, kind, payload)
		if err != nil {
			c.log.Warnf("undecodable %s event: %v", kind, err)
			return
		}
		if u.TaskID == "" {
			return
		}
		c.ingest(u, sourcePush)
	}
}

// onConnect closes the gap from time spent disconnected by re-requesting
// status for every non-terminal task.
func (c *Coordinator) onConnect() {
	c.mu.Lock()
	c.connState = ConnConnected
	ids := c.reg.nonTerminalIDs()
	c.mu.Unlock()
	c.log.Infof("push channel connected; refreshing %d task(s)", len(ids))
	for _, id := range ids {
		c.requestStatus(id)
	}
}

// onDisconnect falls back to polling for every non-terminal task.
func (c *Coordinator) onDisconnect() {
	c.mu.Lock()
	c.connState = ConnDisconnected
	var started int
	for _, id := range c.reg.nonTerminalIDs() {
		if _, ok := c.polls[id]; !ok {
			c.startPollingLocked(id)
			started++
		}
	}
	c.mu.Unlock()
	c.log.Warnf("push channel disconnected; polling %d task(s)", started)
}

func (c *Coordinator) onReconnectAttempt() {
	c.mu.Lock()
	c.connState = ConnConnecting
	c.mu.Unlock()
}

// scheduleReleaseLocked arms the grace timer that retires a terminal task
// from the live registry. Caller holds c.mu. The callback acts only while it
// is still the armed timer for the id: a timer stopped too late (its callback
// already blocked on the mutex) must not touch a re-tracked incarnation.
func (c *Coordinator) scheduleReleaseLocked(id string) {
	if _, ok := c.releases[id]; ok {
		return
	}
	var tm *time.Timer
	tm = time.AfterFunc(c.cfg.releaseDelay, func() {
		c.mu.Lock()
		if c.releases[id] == tm {
			delete(c.releases, id)
			if !c.closed {
				c.reg.release(id)
				c.subs.drop(id)
			}
		}
		c.mu.Unlock()
	})
	c.releases[id] = tm
}

// keepAliveTick emits one latency probe while connected.
func (c *Coordinator) keepAliveTick() {
	if c.channel == nil || !c.channel.Connected() {
		return
	}
	p := pingPayload{ID: uuid.NewString(), SentMs: time.Now().UnixMilli()}
	c.mu.Lock()
	if len(c.pings) > 4*c.cfg.latencyHistory {
		// unanswered probes from a flapping connection; drop them all
		c.pings = make(map[string]int64)
	}
	c.pings[p.ID] = p.SentMs
	c.mu.Unlock()
	if err := c.channel.Emit(EventPing, p); err != nil {
		c.mu.Lock()
		delete(c.pings, p.ID)
		c.mu.Unlock()
	}
}

// onPong records the round trip of a keep-alive probe.
func (c *Coordinator) onPong(payload []byte) {
	var p pingPayload
	if err := c.enc.Decode(payload, &p); err != nil {
		return
	}
	now := time.Now().UnixMilli()
	c.mu.Lock()
	sent, ok := c.pings[p.ID]
	if ok {
		delete(c.pings, p.ID)
		c.latency = append(c.latency, now-sent)
		if len(c.latency) > c.cfg.latencyHistory {
			c.latency = c.latency[len(c.latency)-c.cfg.latencyHistory:]
		}
	}
	c.mu.Unlock()
}

// sinkNotify forwards a snapshot to the optional presentation sink,
// isolating its panics like any other consumer.
func (c *Coordinator) sinkNotify(t *Task, terminal bool) {
	if c.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Errorf("presentation sink panic for task %s: %v", t.ID, rec)
		}
	}()
	if terminal {
		c.sink.TaskFinished(t)
	} else {
		c.sink.TaskProgress(t)
	}
}
