package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DelayPolicy paces a Queue.
type DelayPolicy struct {
	// Debounce is waited after every task, success or failure, before the
	// task leaves the queue and the next one starts.
	Debounce time.Duration
	// Pause is the re-check interval while the queue is not ready.
	Pause time.Duration
	// Timeout bounds a single task. Zero means no bound.
	Timeout time.Duration
}

const defaultPause = time.Second

// Queue runs tasks strictly one at a time in FIFO order.
type Queue[T any] struct {
	name   string
	policy DelayPolicy
	ready  func() bool
	handle func(ctx context.Context, item T)
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

// NewQueue creates a queue. ready may be nil; otherwise the queue holds its
// head task while ready reports false, checking again every policy.Pause.
func NewQueue[T any](name string, policy DelayPolicy, ready func() bool, handle func(context.Context, T), logger *zap.Logger) *Queue[T] {
	if policy.Pause <= 0 {
		policy.Pause = defaultPause
	}
	return &Queue[T]{
		name:   name,
		policy: policy,
		ready:  ready,
		handle: handle,
		logger: logger,
		sleep:  sleepCtx,
		wake:   make(chan struct{}, 1),
	}
}

// Push appends an item and wakes the runner.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued items, including the one in progress.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run processes items until ctx is cancelled. Items left behind are dropped.
func (q *Queue[T]) Run(ctx context.Context) {
	for {
		item, ok := q.peek()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		if q.ready != nil && !q.ready() {
			q.logger.Debug("queue paused", zap.String("queue", q.name), zap.Int("pending", q.Len()))
			if q.sleep(ctx, q.policy.Pause) != nil {
				return
			}
			continue
		}

		q.run(ctx, item)
		if q.sleep(ctx, q.policy.Debounce) != nil {
			return
		}
		q.pop()
	}
}

func (q *Queue[T]) run(ctx context.Context, item T) {
	if q.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.policy.Timeout)
		defer cancel()
	}
	q.handle(ctx, item)
}

func (q *Queue[T]) peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

func (q *Queue[T]) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
