/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-loadkit/log"
	"github.com/acronis/go-loadkit/lrucache"
	"github.com/acronis/go-loadkit/service"
)

// DefaultMaxKeys is a default value of the maximum number of keys for which admission windows are kept.
const DefaultMaxKeys = 10000

// RateLimitError is an error that occurs when the admission rate for a key is exhausted.
type RateLimitError struct {
	// Rate is the maximum number of admissions per key within Window.
	Rate int

	// Window is the duration of the trailing window.
	Window time.Duration

	// RetryAfter estimates when the next admission for the key will be possible.
	// It is exact for the moment the error was built: the oldest counted admission
	// leaves the window after exactly this duration.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d per %s is exceeded, retry after %s", e.Rate, e.Window, e.RetryAfter)
}

// slidingWindow is an admission log for a single key.
// Timestamps are appended in non-decreasing order, stale ones are pruned lazily.
type slidingWindow struct {
	mu         sync.Mutex
	timestamps []time.Time

	// dead is set by the sweep when the window is removed from the store.
	// A caller that got the window before the removal must not use it anymore.
	dead bool
}

// prune removes timestamps that fell out of the trailing window. The caller must hold mu.
func (w *slidingWindow) prune(deadline time.Time) {
	stale := 0
	for stale < len(w.timestamps) && !w.timestamps[stale].After(deadline) {
		stale++
	}
	if stale != 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[stale:]...)
	}
}

// SlidingWindowLimiter admits at most rate requests per key within any trailing window.
type SlidingWindowLimiter struct {
	rate   int
	window time.Duration

	windows *lrucache.LRUCache[string, *slidingWindow]

	logger           log.FieldLogger
	metricsCollector MetricsCollector
	dryRun           bool
	limitKey         func(key string) bool

	sweepUnit *service.WorkerUnit
}

var _ service.Unit = (*SlidingWindowLimiter)(nil)

// Opts contains optional parameters for SlidingWindowLimiter.
type Opts struct {
	// Logger is used for logging the sweep activity and dry-run rejections.
	// No logging is done if it is not specified.
	Logger log.FieldLogger

	// MetricsCollector is a collector of the limiter metrics.
	MetricsCollector MetricsCollector

	// MaxKeys is the maximum number of keys for which admission windows are kept.
	// When it is exceeded, the least recently used window is evicted. DefaultMaxKeys is used if it is not specified.
	MaxKeys int

	// DryRun enables the mode in which exhausted admissions are logged but everything is admitted.
	DryRun bool

	// ExcludedKeys contains glob patterns of keys that bypass limiting.
	ExcludedKeys []string

	// IncludedKeys contains glob patterns of keys to limit, all other keys bypass limiting.
	// Cannot be used together with ExcludedKeys.
	IncludedKeys []string
}

// New creates a new SlidingWindowLimiter that admits at most rate requests per key
// within any trailing window.
func New(rate int, window time.Duration) (*SlidingWindowLimiter, error) {
	return NewWithOpts(rate, window, Opts{})
}

// MustNew is a version of New that panics on error.
func MustNew(rate int, window time.Duration) *SlidingWindowLimiter {
	l, err := New(rate, window)
	if err != nil {
		panic(err)
	}
	return l
}

// NewWithOpts is a version of New with the ability to specify optional parameters.
func NewWithOpts(rate int, window time.Duration, opts Opts) (*SlidingWindowLimiter, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %d", rate)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", window)
	}
	if len(opts.ExcludedKeys) != 0 && len(opts.IncludedKeys) != 0 {
		return nil, fmt.Errorf("excluded and included keys cannot be used together")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	metricsCollector := opts.MetricsCollector
	if metricsCollector == nil {
		metricsCollector = disabledMetricsCollector
	}
	maxKeys := opts.MaxKeys
	if maxKeys == 0 {
		maxKeys = DefaultMaxKeys
	}

	windows, err := lrucache.New[string, *slidingWindow](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU store for admission windows: %w", err)
	}

	l := &SlidingWindowLimiter{
		rate:             rate,
		window:           window,
		windows:          windows,
		logger:           logger,
		metricsCollector: metricsCollector,
		dryRun:           opts.DryRun,
		limitKey:         makeLimitKeyFunc(opts.ExcludedKeys, opts.IncludedKeys),
	}
	l.sweepUnit = service.NewWorkerUnit(service.NewPeriodicWorker(service.WorkerFunc(l.sweep), window, logger))
	return l, nil
}

// MustNewWithOpts is a version of NewWithOpts that panics on error.
func MustNewWithOpts(rate int, window time.Duration, opts Opts) *SlidingWindowLimiter {
	l, err := NewWithOpts(rate, window, opts)
	if err != nil {
		panic(err)
	}
	return l
}

// NewFromConfig creates a new SlidingWindowLimiter based on the passed configuration.
// Logger and MetricsCollector are taken from opts, all other options are overridden by cfg.
func NewFromConfig(cfg *Config, opts Opts) (*SlidingWindowLimiter, error) {
	opts.MaxKeys = cfg.MaxKeys
	opts.DryRun = cfg.DryRun
	opts.ExcludedKeys = cfg.ExcludedKeys
	opts.IncludedKeys = cfg.IncludedKeys
	return NewWithOpts(cfg.Rate, time.Duration(cfg.Window), opts)
}

// Check admits or rejects a single request for the given key.
// On admission, the current time is recorded in the key's window and nil is returned.
// On rejection, *RateLimitError is returned and the window is left unchanged,
// so a rejected request never delays the window from sliding open again.
// Check is safe for concurrent use.
func (l *SlidingWindowLimiter) Check(key string) error {
	if !l.limitKey(key) {
		return nil
	}

	now := time.Now()
	for {
		w, exists := l.windows.GetOrAdd(key, func() *slidingWindow { return &slidingWindow{} })
		if !exists {
			l.metricsCollector.SetKeysAmount(l.windows.Len())
		}
		w.mu.Lock()
		if w.dead {
			// The sweep removed this window between the lookup and the lock.
			w.mu.Unlock()
			continue
		}

		w.prune(now.Add(-l.window))
		if len(w.timestamps) >= l.rate {
			retryAfter := w.timestamps[0].Add(l.window).Sub(now)
			w.mu.Unlock()
			l.metricsCollector.IncRejected()
			rlErr := &RateLimitError{Rate: l.rate, Window: l.window, RetryAfter: retryAfter}
			if l.dryRun {
				l.logger.Warn("rate limit exceeded, request is admitted because of dry run mode",
					log.String("key", key), log.Error(rlErr))
				return nil
			}
			return rlErr
		}

		w.timestamps = append(w.timestamps, now)
		w.mu.Unlock()
		l.metricsCollector.IncAllowed()
		return nil
	}
}

// Remaining reports how many requests for the given key may still be admitted
// within the current window. It prunes stale timestamps but never creates window state
// and never consumes an admission. For an unknown key the full rate is reported.
func (l *SlidingWindowLimiter) Remaining(key string) int {
	w, found := l.windows.Get(key)
	if !found {
		return l.rate
	}
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(now.Add(-l.window))
	if remaining := l.rate - len(w.timestamps); remaining > 0 {
		return remaining
	}
	return 0
}

// Start launches the background sweep that removes admission windows left empty after pruning.
// The sweep runs with a period equal to the limiter's window.
// Start implements the service.Unit interface and blocks until Stop is called.
func (l *SlidingWindowLimiter) Start(fatalErr chan<- error) {
	l.sweepUnit.Start(fatalErr)
}

// Stop stops the background sweep. Implements the service.Unit interface.
func (l *SlidingWindowLimiter) Stop(gracefully bool) error {
	return l.sweepUnit.Stop(gracefully)
}

func (l *SlidingWindowLimiter) sweep(_ context.Context) error {
	deadline := time.Now().Add(-l.window)
	removed := l.windows.RemoveMatching(func(_ string, w *slidingWindow) bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.prune(deadline)
		if len(w.timestamps) != 0 {
			return false
		}
		w.dead = true
		return true
	})
	if removed != 0 {
		l.logger.Debug("swept empty admission windows",
			log.Int("removed_keys", removed), log.Int("left_keys", l.windows.Len()))
	}
	l.metricsCollector.SetKeysAmount(l.windows.Len())
	return nil
}

func makeLimitKeyFunc(excludedKeys, includedKeys []string) func(key string) bool {
	makeMatcher := func(patterns []string) func(key string) bool {
		compiled := make([]func(s string) bool, 0, len(patterns))
		for _, pattern := range patterns {
			compiled = append(compiled, glob.Compile(pattern))
		}
		return func(key string) bool {
			for i := range compiled {
				if compiled[i](key) {
					return true
				}
			}
			return false
		}
	}
	if len(excludedKeys) != 0 {
		matches := makeMatcher(excludedKeys)
		return func(key string) bool { return !matches(key) }
	}
	if len(includedKeys) != 0 {
		return makeMatcher(includedKeys)
	}
	return func(string) bool { return true }
}
