package api

import (
	"context"
	"time"
)

// State represents the lifecycle state of a frame.
//
// Transitions are monotonic along
//
//	CREATED -> CONFIGURING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}
//
// and never move backward.
type State string

const (
	StateCreated     State = "CREATED"
	StateConfiguring State = "CONFIGURING"
	StateRunning     State = "RUNNING"
	StateCompleted   State = "COMPLETED"
	StateFailed      State = "FAILED"
	StateCancelled   State = "CANCELLED"
)

// Terminal reports whether s is a terminal lifecycle state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// RoutineState represents the sub-state of a single routine handle.
type RoutineState string

const (
	RoutinePending   RoutineState = "PENDING"
	RoutineRunning   RoutineState = "RUNNING"
	RoutineSuspended RoutineState = "SUSPENDED"
	RoutineDone      RoutineState = "DONE"
	RoutineFailed    RoutineState = "FAILED"
	RoutineCancelled RoutineState = "CANCELLED"
)

// Terminal reports whether s is a terminal routine sub-state.
func (s RoutineState) Terminal() bool {
	switch s {
	case RoutineDone, RoutineFailed, RoutineCancelled:
		return true
	}
	return false
}

// Mode selects how a frame schedules its routines. It is fixed at frame
// creation and immutable for the frame's lifetime.
type Mode string

const (
	// ModeSequential runs routines one at a time in admission order; each
	// routine finishes before the next is admitted.
	ModeSequential Mode = "SEQUENTIAL"

	// ModeConcurrent interleaves routines on a single logical execution
	// context. A routine occupies its turn until it yields or completes;
	// there is no preemption.
	ModeConcurrent Mode = "CONCURRENT"

	// ModeParallel distributes routines across a bounded pool of
	// goroutines, so multiple routines may be running simultaneously.
	ModeParallel Mode = "PARALLEL"
)

// FailurePolicy controls how a frame reacts to routine failures.
type FailurePolicy string

const (
	// FailFast cancels all pending routines on the first failure and
	// transitions the frame to FAILED.
	FailFast FailurePolicy = "FAIL_FAST"

	// CollectAll lets every routine run to completion or failure; the frame
	// fails only if the final tally contains at least one failure.
	CollectAll FailurePolicy = "COLLECT_ALL"
)

// RoutineFunc is a caller-supplied unit of work executed under a frame.
//
// The routine must cooperate with cancellation: rc.Yield is the only point
// at which the framework delivers cancellation or, in concurrent mode,
// switches to another routine. A routine that never yields runs to its
// natural completion before the frame observes cancellation on its handle.
type RoutineFunc func(ctx context.Context, rc RoutineContext) (any, error)

// RoutineContext is the suspension-capable execution context passed to a
// routine. It is valid only for the duration of the routine invocation.
type RoutineContext interface {
	// FrameID returns the owning frame's id.
	FrameID() string

	// RoutineName returns the name the routine was configured with.
	RoutineName() string

	// Yield is the routine's suspension point. In concurrent mode it
	// surrenders the current turn and blocks until the scheduler grants the
	// next one. In all modes it returns a *CancellationError once
	// cancellation has been requested, and ctx.Err if ctx is done.
	Yield(ctx context.Context) error

	// Cancelled reports whether cancellation has been requested for the
	// owning frame. It never blocks.
	Cancelled() bool

	// Publish publishes a user-defined message on the owning frame's bus.
	// Topics under the reserved "frame.", "routine." and "handler."
	// namespaces are rejected.
	Publish(topic string, body any) error
}

// RoutineHandle is the frame's view of one registered routine.
type RoutineHandle interface {
	// Name returns the routine's configured name.
	Name() string

	// Key returns the routine's ordering key (0 unless set).
	Key() int

	// State returns the routine's current sub-state.
	State() RoutineState
}

// Frame is a lifecycle-managed execution context grouping routines under a
// single concurrency mode and failure policy.
//
// Frames are created through a Registry and retired from it automatically
// when they reach a terminal state.
type Frame interface {
	// ID returns the frame's unique id.
	ID() string

	// State returns the frame's current lifecycle state.
	State() State

	// Mode returns the frame's concurrency mode.
	Mode() Mode

	// Bus returns the frame's message bus.
	Bus() Bus

	// Configure registers a routine. It returns an *InvalidStateError if
	// the frame has already started. The first successful call advances a
	// CREATED frame to CONFIGURING.
	Configure(name string, fn RoutineFunc, opts ...RoutineOption) (RoutineHandle, error)

	// Start freezes the routine set, transitions CONFIGURING -> RUNNING,
	// publishes frame.started and begins execution. It returns an
	// *InvalidStateError if called twice or if no routines are registered.
	// Start does not block; use AwaitResult to observe completion.
	Start(ctx context.Context) error

	// Cancel requests cooperative cancellation. Running routines observe it
	// at their next suspension point; pending routines are cancelled
	// without running. Cancel is idempotent and cannot be withdrawn.
	Cancel(reason string)

	// AwaitResult blocks until the frame reaches a terminal state and
	// returns the aggregated result. It is safe to call from multiple
	// goroutines. Routine-level failures never surface as the returned
	// error; they are encoded in the Result. The error is non-nil only if
	// ctx is done before the frame terminates.
	AwaitResult(ctx context.Context) (*Result, error)
}

// Registry tracks live frames process-wide.
type Registry interface {
	// CreateFrame allocates a fresh frame in the CREATED state.
	CreateFrame(mode Mode, policy FailurePolicy, opts ...FrameOption) (Frame, error)

	// Lookup returns the live frame with the given id, or false if it was
	// never created or has already been retired.
	Lookup(id string) (Frame, bool)

	// BroadcastCancel requests cancellation on every live frame matching
	// pred (all frames if pred is nil) and returns the number of frames
	// cancelled.
	BroadcastCancel(reason string, pred func(Frame) bool) int

	// Shutdown cancels all live frames, waits for them to terminate (or
	// ctx to expire) and rejects further CreateFrame calls.
	Shutdown(ctx context.Context) error
}

// FrameConfig holds per-frame settings applied via FrameOption.
type FrameConfig struct {
	// MaxParallel bounds the worker pool in ModeParallel.
	// <= 0 means runtime.NumCPU().
	MaxParallel int
}

// FrameOption customizes a frame at creation time.
type FrameOption func(*FrameConfig)

// WithMaxParallel bounds the parallel worker pool. It has no effect outside
// ModeParallel.
func WithMaxParallel(n int) FrameOption {
	return func(c *FrameConfig) { c.MaxParallel = n }
}

// RetryPolicy controls how a routine is retried when it returns an error.
// MaxAttempts includes the first attempt, so MaxAttempts = 1 means no
// retries. InitialBackoff is the delay before the first retry; it grows by
// BackoffMultiplier each attempt (default 2.0 if <= 0) and is capped by
// MaxBackoff when MaxBackoff > 0.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// ImmediateRetry gives a routine up to attempts tries with no delay between
// them.
func ImmediateRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts}
}

// ConstantRetry gives a routine up to attempts tries with a fixed delay
// before each retry.
func ConstantRetry(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    delay,
		BackoffMultiplier: 1,
	}
}

// ExponentialRetry gives a routine up to attempts tries. The delay before
// the first retry is initial and doubles after each failed attempt, never
// exceeding max (pass max <= 0 for no cap).
func ExponentialRetry(attempts int, initial, max time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    initial,
		BackoffMultiplier: 2,
		MaxBackoff:        max,
	}
}

// RoutineConfig holds per-routine settings applied via RoutineOption.
type RoutineConfig struct {
	// Key is the ordering key used by the scheduler. Lower keys are served
	// first; ties break by registration order.
	Key int

	// Timeout bounds the routine's execution context. Zero means no limit.
	Timeout time.Duration

	// Retry, if non-nil, re-runs the routine on failure per the policy.
	Retry *RetryPolicy
}

// RoutineOption customizes a routine at Configure time.
type RoutineOption func(*RoutineConfig)

// WithOrderingKey sets the routine's scheduling key.
func WithOrderingKey(key int) RoutineOption {
	return func(c *RoutineConfig) { c.Key = key }
}

// WithTimeout bounds the routine's execution context. On expiry the routine
// fails with a *TimeoutError cause.
func WithTimeout(d time.Duration) RoutineOption {
	return func(c *RoutineConfig) { c.Timeout = d }
}

// WithRetry re-runs the routine on failure according to the given policy.
func WithRetry(p RetryPolicy) RoutineOption {
	return func(c *RoutineConfig) {
		// Copy so callers can mutate their policy afterwards.
		cp := p
		c.Retry = &cp
	}
}
