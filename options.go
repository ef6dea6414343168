package taskpulse

import "time"

type options struct {
	pollInterval   time.Duration
	fetchTimeout   time.Duration
	sweepInterval  time.Duration
	stuckThreshold time.Duration
	stallThreshold time.Duration
	releaseDelay   time.Duration
	keepAliveEvery time.Duration

	maxPollFailures int
	sampleWindow    int
	simpleRates     bool
	historySize     int
	latencyHistory  int

	// sweep-triggered fetch throttle (fetches per second, burst)
	fetchPerSec float64
	fetchBurst  int

	logger Logger
	sink   PresentationSink
}

func defaultOptions() *options {
	return &options{
		pollInterval:    2 * time.Second,
		fetchTimeout:    5 * time.Second,
		sweepInterval:   30 * time.Second,
		stuckThreshold:  30 * time.Second,
		stallThreshold:  3 * time.Minute,
		releaseDelay:    30 * time.Second,
		keepAliveEvery:  15 * time.Second,
		maxPollFailures: 5,
		sampleWindow:    12,
		historySize:     64,
		latencyHistory:  20,
		fetchPerSec:     2,
		fetchBurst:      4,
	}
}

// Option is a function that configures coordinator behavior during NewCoordinator.
type Option func(*options)

// PollInterval sets how often the polling fallback fetches status for a task.
func PollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// FetchTimeout bounds a single status or cancellation request.
func FetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// SweepInterval sets how often the stuck/stall sweeps run.
func SweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// StuckThreshold sets how long a running mid-progress task may go without a
// liveness-refreshing update before a status fetch is issued for it.
func StuckThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stuckThreshold = d
		}
	}
}

// StallThreshold sets the (larger) silence window for tasks at 95%+ progress,
// the ones most likely to have silently finished.
func StallThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.stallThreshold = d
		}
	}
}

// ReleaseDelay sets the grace period a terminal task stays in the live
// registry before it is moved to the retained history.
func ReleaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.releaseDelay = d
		}
	}
}

// KeepAliveInterval sets how often a latency probe is emitted while connected.
func KeepAliveInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.keepAliveEvery = d
		}
	}
}

// MaxPollFailures sets how many consecutive fetch failures stop a polling
// loop. Reaching the ceiling marks the task with a non-fatal connection-lost
// message; it never fails the task.
func MaxPollFailures(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxPollFailures = n
		}
	}
}

// SampleWindow sets the capacity of the per-task progress sample history
// consumed by the rate estimator.
func SampleWindow(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.sampleWindow = n
		}
	}
}

// SimpleRates selects the unweighted mean-of-rates estimator instead of the
// default recency-weighted one.
func SimpleRates() Option {
	return func(o *options) {
		o.simpleRates = true
	}
}

// HistorySize sets how many released terminal tasks remain answerable via Status.
func HistorySize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historySize = n
		}
	}
}

// LatencyHistory sets the capacity of the keep-alive round-trip history.
func LatencyHistory(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.latencyHistory = n
		}
	}
}

// FetchThrottle bounds sweep-triggered status fetches to perSec with the
// given burst, so a large registry cannot storm the status endpoint.
func FetchThrottle(perSec float64, burst int) Option {
	return func(o *options) {
		if perSec > 0 && burst > 0 {
			o.fetchPerSec = perSec
			o.fetchBurst = burst
		}
	}
}

// WithLogger sets the logger used for coordinator events.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPresentationSink injects an optional consumer notified of every
// observable task change. Resolved once at construction, never probed per call.
func WithPresentationSink(s PresentationSink) Option {
	return func(o *options) {
		o.sink = s
	}
}
