package frame

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/petrijr/gframe/pkg/api"
)

// taskEvent is what a running task reports back to the concurrent
// scheduler when it gives up its turn.
type taskEvent int

const (
	eventSuspended taskEvent = iota
	eventFinished
)

// task wraps one registered routine together with its sub-state. It doubles
// as the resumable-task abstraction for concurrent scheduling: the routine
// body runs on its own goroutine but only ever executes while it holds the
// turn granted through the grant channel.
type task struct {
	frame *Frame
	name  string
	idx   int // registration order, tie-break after the ordering key
	fn    api.RoutineFunc
	cfg   api.RoutineConfig

	mu    sync.Mutex
	state api.RoutineState

	value    any
	err      error
	duration time.Duration

	// Concurrent-mode turn gate.
	started bool
	grant   chan struct{}
	report  chan taskEvent
}

var _ api.RoutineHandle = (*task)(nil)

func newTask(f *Frame, name string, idx int, fn api.RoutineFunc, cfg api.RoutineConfig) *task {
	return &task{
		frame:  f,
		name:   name,
		idx:    idx,
		fn:     fn,
		cfg:    cfg,
		state:  api.RoutinePending,
		grant:  make(chan struct{}),
		report: make(chan taskEvent),
	}
}

func (t *task) Name() string { return t.name }

func (t *task) Key() int { return t.cfg.Key }

func (t *task) State() api.RoutineState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *task) setState(s api.RoutineState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// invoke runs the routine body once per attempt, applying the task's retry
// policy, timeout and panic recovery. The returned error is the raw cause;
// classification and wrapping happen in the scheduler.
func (t *task) invoke(ctx context.Context) (any, error) {
	maxAttempts := 1
	var (
		backoff    time.Duration
		maxBackoff time.Duration
		multiplier float64
	)
	if t.cfg.Retry != nil {
		if t.cfg.Retry.MaxAttempts > 0 {
			maxAttempts = t.cfg.Retry.MaxAttempts
		}
		backoff = t.cfg.Retry.InitialBackoff
		maxBackoff = t.cfg.Retry.MaxBackoff
		multiplier = t.cfg.Retry.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if t.frame.cancelRequested() {
			return nil, &api.CancellationError{Routine: t.name, Reason: t.frame.reason()}
		}

		value, err := t.attempt(ctx)
		if err == nil {
			return value, nil
		}
		if api.IsCancellation(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		lastErr = err

		if attempt < maxAttempts && backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * multiplier)
			if maxBackoff > 0 && backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return nil, lastErr
}

// attempt runs the routine body exactly once, recovering panics and
// translating a per-routine deadline expiry into a *TimeoutError.
func (t *task) attempt(ctx context.Context) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("routine panic: %v", r)
		}
	}()

	actx := ctx
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	value, err = t.fn(actx, &routineContext{t: t})
	if err != nil && t.cfg.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = &api.TimeoutError{Routine: t.name, Timeout: t.cfg.Timeout}
	}
	return value, err
}

// run executes the routine body on the task's own goroutine and reports
// completion to the concurrent scheduler. Only used in ModeConcurrent.
func (t *task) run(ctx context.Context) {
	start := time.Now()
	value, err := t.invoke(ctx)

	t.mu.Lock()
	t.value = value
	t.err = err
	t.duration = time.Since(start)
	t.mu.Unlock()

	t.report <- eventFinished
}

// routineContext is the suspension-capable execution context handed to a
// routine body. Valid only while the routine runs.
type routineContext struct {
	t *task
}

var _ api.RoutineContext = (*routineContext)(nil)

func (rc *routineContext) FrameID() string { return rc.t.frame.id }

func (rc *routineContext) RoutineName() string { return rc.t.name }

func (rc *routineContext) Cancelled() bool { return rc.t.frame.cancelRequested() }

func (rc *routineContext) Publish(topic string, body any) error {
	if api.ReservedTopic(topic) {
		return fmt.Errorf("gframe: topic %q is reserved for lifecycle messages", topic)
	}
	rc.t.frame.bus.Publish(context.Background(), topic, body)
	return nil
}

// Yield is the routine's suspension point. In concurrent mode it hands the
// turn back to the scheduler and blocks until the next grant; in the other
// modes it only polls for cancellation.
func (rc *routineContext) Yield(ctx context.Context) error {
	t := rc.t
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if t.frame.cancelRequested() {
		return &api.CancellationError{Routine: t.name, Reason: t.frame.reason()}
	}

	if t.frame.mode != api.ModeConcurrent {
		runtime.Gosched()
		return nil
	}

	t.report <- eventSuspended
	<-t.grant

	if t.frame.cancelRequested() {
		return &api.CancellationError{Routine: t.name, Reason: t.frame.reason()}
	}
	return nil
}
