package taskpulse

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TaskPulse/taskpulse-go/internal/backoff"
)

// RedisChannelConfig defines the configuration for a RedisChannel.
type RedisChannelConfig struct {
	// EventsChannel is the pub/sub channel the backend publishes task events on.
	EventsChannel string
	// CommandsChannel is the pub/sub channel Emit publishes toward the backend.
	CommandsChannel string
	// MaxAttempts bounds consecutive reconnect attempts before the channel
	// gives up and stays disconnected. Zero means the default (10).
	MaxAttempts int
	// ReconnectBase/ReconnectMax bound the exponential retry delay.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// Logger is the logger used for channel events.
	Logger Logger
}

// envelope is the wire frame on the pub/sub channels: an event name plus its payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RedisChannel implements PushChannel over Redis Pub/Sub. It owns the
// connection lifecycle: Disconnected -> Connecting -> Connected, dropping
// back on subscription errors with a bounded, capped exponential retry.
// Lifecycle transitions are surfaced to handlers via the connect/disconnect/
// connect_error/reconnect_attempt event names.
type RedisChannel struct {
	rdb redis.UniversalClient
	cfg RedisChannelConfig
	enc Encoder
	log Logger

	mu       sync.Mutex
	started  bool
	handlers map[string][]func([]byte)

	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisChannel creates a push channel over the given Redis client.
func NewRedisChannel(rdb redis.UniversalClient, cfg RedisChannelConfig) *RedisChannel {
	if cfg.EventsChannel == "" {
		cfg.EventsChannel = "taskpulse:events"
	}
	if cfg.CommandsChannel == "" {
		cfg.CommandsChannel = "taskpulse:commands"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	l := cfg.Logger
	if l == nil {
		l = noopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisChannel{
		rdb:      rdb,
		cfg:      cfg,
		enc:      &JSONEncoder{},
		log:      l,
		handlers: make(map[string][]func([]byte)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// On registers a handler for the named event. Handlers may be registered at
// any time; for one event they are invoked in registration order.
func (c *RedisChannel) On(event string, handler func(payload []byte)) {
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.mu.Unlock()
}

// Emit publishes an event toward the backend. Returns ErrNotConnected when
// the subscription is down, because a backend that cannot reach us is
// assumed unable to hear us either.
func (c *RedisChannel) Emit(event string, payload any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	data, err := c.enc.Encode(payload)
	if err != nil {
		return err
	}
	raw, err := c.enc.Encode(envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return c.rdb.Publish(c.ctx, c.cfg.CommandsChannel, raw).Err()
}

// Connected reports whether the events subscription is live.
func (c *RedisChannel) Connected() bool { return c.connected.Load() }

// Start launches the subscription loop. It is idempotent and non-blocking.
func (c *RedisChannel) Start() {
	c.mu.Lock()
	if c.started {
		c.log.Warnf("redis channel already started; ignoring Start()")
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
}

// Close tears the channel down and waits for the subscription loop to exit.
func (c *RedisChannel) Close() error {
	c.cancel()
	c.wg.Wait()
	c.connected.Store(false)
	return nil
}

func (c *RedisChannel) run() {
	bo := backoff.Exponential{Base: c.cfg.ReconnectBase, Max: c.cfg.ReconnectMax}
	attempt := 0
	for {
		if c.ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			if attempt >= c.cfg.MaxAttempts {
				c.log.Errorf("redis channel: giving up after %d reconnect attempts", attempt)
				return
			}
			c.dispatch(EventReconnectAttempt, nil)
			select {
			case <-time.After(bo.Delay(attempt - 1)):
			case <-c.ctx.Done():
				return
			}
		}

		sub := c.rdb.Subscribe(c.ctx, c.cfg.EventsChannel)
		if _, err := sub.Receive(c.ctx); err != nil {
			_ = sub.Close()
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warnf("redis channel: subscribe failed: %v", err)
			c.dispatch(EventConnectError, []byte(err.Error()))
			attempt++
			continue
		}

		attempt = 1 // a future drop starts the retry ladder from the base delay
		c.connected.Store(true)
		c.dispatch(EventConnect, nil)

		// close the subscription when the channel is shut down so the
		// message loop below unblocks
		watch := make(chan struct{})
		go func() {
			select {
			case <-c.ctx.Done():
				_ = sub.Close()
			case <-watch:
			}
		}()

		for msg := range sub.Channel() {
			var env envelope
			if err := c.enc.Decode([]byte(msg.Payload), &env); err != nil {
				c.log.Warnf("redis channel: undecodable frame: %v", err)
				continue
			}
			if env.Event == "" {
				continue
			}
			c.dispatch(env.Event, env.Data)
		}
		close(watch)
		_ = sub.Close()

		c.connected.Store(false)
		if c.ctx.Err() != nil {
			return
		}
		c.dispatch(EventDisconnect, nil)
	}
}

// dispatch invokes every handler registered for the event, in order, on the
// subscription goroutine. This preserves arrival order per event stream.
func (c *RedisChannel) dispatch(event string, payload []byte) {
	c.mu.Lock()
	hs := slices.Clone(c.handlers[event])
	c.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}
