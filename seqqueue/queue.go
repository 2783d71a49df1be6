/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package seqqueue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/acronis/go-loadkit/log"
	"github.com/acronis/go-loadkit/service"
)

// DefaultMaxConcurrent is the default number of concurrency gate slots.
const DefaultMaxConcurrent = 10

// DefaultQueueTimeout is the default bound on waiting for and on executing a single task.
const DefaultQueueTimeout = time.Second * 30

// stackSize defines the size of the stack part that is logged when a task panics.
const stackSize = 8192

// drainPollInterval is how often a graceful Stop re-checks that active submissions drained.
const drainPollInterval = time.Millisecond * 10

// Task computes a value of type V. The passed context carries the queue timeout
// as a deadline and is cancelled on queue cleanup; honoring it is cooperative,
// the queue never aborts a task that ignores it.
type Task[V any] func(ctx context.Context) (V, error)

// queuedRequest is a single accepted submission waiting for, or undergoing, execution.
type queuedRequest[V any] struct {
	seq         uint64
	requestID   string
	submittedAt time.Time
	task        Task[V]
	result      *Result[V]
}

// keyQueue holds the sequencing state of one key. All fields except arrivals are
// guarded by the owning Queue's mutex. arrivals wakes the key's processor when a
// request is buffered ahead of nextSeq.
type keyQueue[V any] struct {
	nextSeq      uint64
	nextToAssign uint64
	buffer       map[uint64]*queuedRequest[V]
	arrivals     chan struct{}
}

// Queue executes tasks strictly in submission order within each key and bounds
// aggregate concurrency across all keys with a fixed set of gate slots.
// Per-key processors are created lazily on the first pending submission and exit
// as soon as their buffer is drained.
type Queue[K comparable, V any] struct {
	maxConcurrent int
	queueTimeout  time.Duration

	logger           log.FieldLogger
	metricsCollector MetricsCollector

	gate chan struct{}

	stopCtx    context.Context
	stopCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	active int
	queues map[K]*keyQueue[V]

	processors  sync.WaitGroup
	cleanupOnce sync.Once
}

var _ service.Unit = (*Queue[string, struct{}])(nil)

// Opts represents options for creating a Queue.
type Opts struct {
	// Logger is used for logging task failures and queue lifecycle events.
	Logger log.FieldLogger

	// MetricsCollector is a collector of metrics.
	MetricsCollector MetricsCollector
}

// New creates a new Queue with the passed gate capacity and queue timeout.
func New[K comparable, V any](maxConcurrent int, queueTimeout time.Duration) (*Queue[K, V], error) {
	return NewWithOpts[K, V](maxConcurrent, queueTimeout, Opts{})
}

// MustNew is a version of New that panics on error.
func MustNew[K comparable, V any](maxConcurrent int, queueTimeout time.Duration) *Queue[K, V] {
	q, err := New[K, V](maxConcurrent, queueTimeout)
	if err != nil {
		panic(err)
	}
	return q
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts[K comparable, V any](maxConcurrent int, queueTimeout time.Duration, opts Opts) (*Queue[K, V], error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("max concurrent must be positive, got %d", maxConcurrent)
	}
	if queueTimeout <= 0 {
		return nil, fmt.Errorf("queue timeout must be positive, got %s", queueTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetricsCollector
	}
	stopCtx, stopCancel := context.WithCancel(context.Background())
	return &Queue[K, V]{
		maxConcurrent:    maxConcurrent,
		queueTimeout:     queueTimeout,
		logger:           opts.Logger,
		metricsCollector: opts.MetricsCollector,
		gate:             make(chan struct{}, maxConcurrent),
		stopCtx:          stopCtx,
		stopCancel:       stopCancel,
		queues:           make(map[K]*keyQueue[V]),
	}, nil
}

// MustNewWithOpts is a version of NewWithOpts that panics on error.
func MustNewWithOpts[K comparable, V any](maxConcurrent int, queueTimeout time.Duration, opts Opts) *Queue[K, V] {
	q, err := NewWithOpts[K, V](maxConcurrent, queueTimeout, opts)
	if err != nil {
		panic(err)
	}
	return q
}

// NewFromConfig creates a new Queue based on the passed configuration.
func NewFromConfig[K comparable, V any](cfg *Config, opts Opts) (*Queue[K, V], error) {
	return NewWithOpts[K, V](cfg.MaxConcurrent, time.Duration(cfg.QueueTimeout), opts)
}

// Enqueue accepts a task for the key, assigns it the key's next sequence number,
// and returns the handle that will carry the task's outcome. The key's processor
// is started lazily when the key has no live state. Enqueue never blocks on task
// execution. After Cleanup it returns ErrClosed.
func (q *Queue[K, V]) Enqueue(key K, task Task[V]) (*Result[V], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	kq, ok := q.queues[key]
	if !ok {
		kq = &keyQueue[V]{
			buffer:   make(map[uint64]*queuedRequest[V]),
			arrivals: make(chan struct{}, 1),
		}
		q.queues[key] = kq
		q.processors.Add(1)
		q.metricsCollector.SetProcessorsAmount(len(q.queues))
		go q.runProcessor(key, kq)
	}

	req := &queuedRequest[V]{
		seq:         kq.nextToAssign,
		requestID:   xid.New().String(),
		submittedAt: time.Now(),
		task:        task,
		result:      newResult[V](),
	}
	kq.nextToAssign++
	kq.buffer[req.seq] = req
	q.active++
	q.metricsCollector.SetActiveRequests(q.active)

	select {
	case kq.arrivals <- struct{}{}:
	default:
	}

	return req.result, nil
}

// Submit enqueues a task and waits for its outcome for at most the queue timeout.
// On timeout it returns ErrTimeout and abandons the wait; the task is not aborted
// and will still run when its turn comes, with its late outcome discarded.
// Cancellation of the passed context abandons the wait the same way and returns
// the context's error.
func (q *Queue[K, V]) Submit(ctx context.Context, key K, task Task[V]) (V, error) {
	var zero V

	res, err := q.Enqueue(key, task)
	if err != nil {
		return zero, err
	}

	timeoutTimer := time.NewTimer(q.queueTimeout)
	defer timeoutTimer.Stop()

	select {
	case <-res.Done():
		return res.value, res.err
	case <-timeoutTimer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ActiveCount returns the number of accepted submissions that are not resolved yet.
func (q *Queue[K, V]) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// IsFull reports whether the number of active submissions has reached the gate
// capacity. It is an admission hint only: submissions are still accepted past
// that point and queue up behind the gate.
func (q *Queue[K, V]) IsFull() bool {
	return q.ActiveCount() >= q.maxConcurrent
}

// Cleanup shuts the queue down: new submissions are rejected with ErrClosed,
// every per-key processor is stopped and awaited, and all still-pending handles
// are resolved with ErrCancelled. In-flight tasks are not aborted; their late
// outcomes are discarded. Cleanup is idempotent and safe for concurrent use.
func (q *Queue[K, V]) Cleanup() error {
	q.closeIntake()
	q.cleanupOnce.Do(q.doCleanup)
	return nil
}

// Start implements the service.Unit interface. It blocks until the queue is
// cleaned up and never writes to the passed channel, the queue has no fatal
// failure modes.
func (q *Queue[K, V]) Start(_ chan<- error) {
	<-q.stopCtx.Done()
}

// Stop implements the service.Unit interface. A non-graceful stop is Cleanup.
// A graceful stop first closes intake, then waits up to the queue timeout for
// active submissions to drain, and cleans up after that.
func (q *Queue[K, V]) Stop(gracefully bool) error {
	if !gracefully {
		return q.Cleanup()
	}

	q.closeIntake()

	drainDeadline := time.NewTimer(q.queueTimeout)
	defer drainDeadline.Stop()
	drainTick := time.NewTicker(drainPollInterval)
	defer drainTick.Stop()
drain:
	for q.ActiveCount() != 0 {
		select {
		case <-drainTick.C:
		case <-drainDeadline.C:
			break drain
		}
	}

	return q.Cleanup()
}

func (q *Queue[K, V]) closeIntake() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue[K, V]) doCleanup() {
	q.stopCancel()
	q.processors.Wait()

	q.mu.Lock()
	var pending []*queuedRequest[V]
	for _, kq := range q.queues {
		for _, req := range kq.buffer {
			pending = append(pending, req)
		}
	}
	q.queues = make(map[K]*keyQueue[V])
	q.mu.Unlock()

	var zero V
	for _, req := range pending {
		q.resolveRequest(req, zero, ErrCancelled)
	}
	q.metricsCollector.SetProcessorsAmount(0)
	q.logger.Info("queue cleaned up", log.Int("cancelled_requests", len(pending)))
}

// runProcessor is the single execution loop of one key. It drains contiguous runs
// of buffered requests in sequence order and tears the key's state down once the
// buffer is empty. Teardown and submission are mutually exclusive under the queue
// mutex, so an Enqueue either reuses the live state or recreates it from scratch;
// a request can never be handed to a processor that already decided to exit.
func (q *Queue[K, V]) runProcessor(key K, kq *keyQueue[V]) {
	defer q.processors.Done()

	for {
		select {
		case <-q.stopCtx.Done():
			return
		default:
		}

		q.mu.Lock()
		req, ok := kq.buffer[kq.nextSeq]
		if ok {
			delete(kq.buffer, kq.nextSeq)
			q.mu.Unlock()
			q.executeRequest(key, req)
			q.mu.Lock()
			kq.nextSeq++
			q.mu.Unlock()
			continue
		}
		if len(kq.buffer) == 0 {
			delete(q.queues, key)
			q.metricsCollector.SetProcessorsAmount(len(q.queues))
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		// Buffered entries are ahead of nextSeq, wait for the head to arrive.
		select {
		case <-kq.arrivals:
		case <-q.stopCtx.Done():
			return
		}
	}
}

// executeRequest runs one request through the concurrency gate and resolves its
// handle with exactly one outcome. The gate slot is released by the task
// goroutine when the task function actually returns, so a task that outlived its
// deadline keeps occupying a slot and the gate is a soft bound under
// timeout-heavy load.
func (q *Queue[K, V]) executeRequest(key K, req *queuedRequest[V]) {
	var zero V

	select {
	case q.gate <- struct{}{}:
		q.metricsCollector.SetGateOccupancy(len(q.gate))
	case <-q.stopCtx.Done():
		q.resolveRequest(req, zero, ErrCancelled)
		return
	}

	logger := q.logger.With(
		log.Any("queue_key", key),
		log.Uint64("sequence", req.seq),
		log.String("request_id", req.requestID),
		log.Duration("wait_time", time.Since(req.submittedAt)),
	)

	taskCtx, cancelTaskCtx := context.WithTimeout(q.stopCtx, q.queueTimeout)
	defer cancelTaskCtx()

	taskDone := make(chan taskOutcome[V], 1)
	go func() {
		defer func() {
			<-q.gate
			q.metricsCollector.SetGateOccupancy(len(q.gate))
		}()
		defer func() {
			if p := recover(); p != nil {
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]
				logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", stack))
				taskDone <- taskOutcome[V]{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		value, err := req.task(taskCtx)
		taskDone <- taskOutcome[V]{value: value, err: err}
	}()

	select {
	case outcome := <-taskDone:
		if outcome.err != nil {
			q.resolveRequest(req, zero, &TaskError{Err: outcome.err})
			logger.Error("task failed", log.Error(outcome.err))
			return
		}
		q.resolveRequest(req, outcome.value, nil)
	case <-taskCtx.Done():
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			q.resolveRequest(req, zero, ErrTimeout)
			logger.Warn("task missed its deadline, the outcome will be discarded",
				log.Duration("queue_timeout", q.queueTimeout))
			return
		}
		q.resolveRequest(req, zero, ErrCancelled)
	}
}

// resolveRequest resolves the request's handle and, if this resolution was the
// first one, updates the active-submissions bookkeeping and metrics.
func (q *Queue[K, V]) resolveRequest(req *queuedRequest[V], value V, err error) {
	if !req.result.resolve(value, err) {
		return
	}
	q.mu.Lock()
	q.active--
	active := q.active
	q.mu.Unlock()
	q.metricsCollector.SetActiveRequests(active)
	q.metricsCollector.IncTasks(taskStatusForError(err))
}

type taskOutcome[V any] struct {
	value V
	err   error
}

func taskStatusForError(err error) TaskStatus {
	switch {
	case err == nil:
		return TaskStatusOK
	case errors.Is(err, ErrTimeout):
		return TaskStatusTimeout
	case errors.Is(err, ErrCancelled):
		return TaskStatusCancelled
	default:
		return TaskStatusError
	}
}
