// Package frame implements the lifecycle state machine and the execution
// engine that drives routines under sequential, concurrent and parallel
// scheduling.
package frame

import (
	"context"
	"fmt"
	"sync"

	"github.com/petrijr/gframe/internal/bus"
	"github.com/petrijr/gframe/pkg/api"
)

type cancelKind int

const (
	cancelNone cancelKind = iota
	cancelExternal
	cancelFailFast
)

// Frame is the lifecycle-managed execution context. It owns its routines,
// its message bus and its scheduling mode.
type Frame struct {
	id     string
	mode   api.Mode
	policy api.FailurePolicy
	cfg    api.FrameConfig
	bus    *bus.Bus

	mu           sync.Mutex
	state        api.State
	tasks        []*task
	cancelKind   cancelKind
	cancelReason string
	result       *api.Result
	runCtx       context.Context

	// finishing is set under mu when a caller claims the terminal
	// transition of a frame that never started, so concurrent Cancel
	// calls (and a racing Start) cannot double-terminate.
	finishing bool

	// transitionMu serializes routine/frame state transitions together with
	// their lifecycle publishes, so the order subscribers observe matches
	// the order transitions occur.
	transitionMu sync.Mutex

	done chan struct{}

	// onTerminal is invoked exactly once after the terminal lifecycle
	// message has been published. The registry uses it to retire the frame.
	onTerminal func(*Frame)
}

var _ api.Frame = (*Frame)(nil)

// New creates a frame in the CREATED state. onTerminal may be nil.
func New(id string, mode api.Mode, policy api.FailurePolicy, cfg api.FrameConfig, onTerminal func(*Frame)) *Frame {
	return &Frame{
		id:         id,
		mode:       mode,
		policy:     policy,
		cfg:        cfg,
		bus:        bus.New(id),
		state:      api.StateCreated,
		done:       make(chan struct{}),
		onTerminal: onTerminal,
	}
}

func (f *Frame) ID() string { return f.id }

func (f *Frame) Mode() api.Mode { return f.mode }

func (f *Frame) Bus() api.Bus { return f.bus }

func (f *Frame) State() api.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// CloseBus shuts the frame's bus down for good. Called by the registry on
// retirement.
func (f *Frame) CloseBus() { f.bus.Close() }

// Configure registers a routine. The first successful call advances a
// CREATED frame to CONFIGURING; any call after Start fails with an
// *InvalidStateError.
func (f *Frame) Configure(name string, fn api.RoutineFunc, opts ...api.RoutineOption) (api.RoutineHandle, error) {
	if fn == nil {
		return nil, fmt.Errorf("gframe: routine %q has nil function", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case api.StateCreated:
		f.state = api.StateConfiguring
	case api.StateConfiguring:
		// Additional registrations are fine until Start.
	default:
		return nil, &api.InvalidStateError{Op: "Configure", State: f.state}
	}

	if name == "" {
		name = fmt.Sprintf("routine-%d", len(f.tasks)+1)
	}
	for _, t := range f.tasks {
		if t.name == name {
			return nil, fmt.Errorf("gframe: routine %q already registered", name)
		}
	}

	var cfg api.RoutineConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	t := newTask(f, name, len(f.tasks), fn, cfg)
	f.tasks = append(f.tasks, t)
	return t, nil
}

// Start freezes the routine set, publishes frame.started and launches the
// scheduler. It returns an *InvalidStateError when called twice or on an
// empty routine set; an empty set is rejected so a no-op "successful" frame
// cannot mask a caller error.
func (f *Frame) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	f.mu.Lock()
	if f.state != api.StateConfiguring || len(f.tasks) == 0 || f.finishing {
		state := f.state
		f.mu.Unlock()
		return &api.InvalidStateError{Op: "Start", State: state}
	}
	f.state = api.StateRunning
	f.runCtx = ctx
	tasks := f.tasks
	f.mu.Unlock()

	f.transitionMu.Lock()
	f.bus.Publish(ctx, api.TopicFrameStarted, api.FrameStarted{
		Mode:     f.mode,
		Policy:   f.policy,
		Routines: len(tasks),
	})
	f.transitionMu.Unlock()

	go f.run(ctx)
	return nil
}

// Cancel requests cooperative cancellation. It is idempotent and monotonic:
// once requested it cannot be withdrawn. A frame that has not started
// transitions directly to CANCELLED.
func (f *Frame) Cancel(reason string) {
	f.mu.Lock()
	if f.state.Terminal() || f.finishing {
		f.mu.Unlock()
		return
	}
	if f.cancelKind == cancelNone {
		f.cancelKind = cancelExternal
		f.cancelReason = reason
	}
	if f.state == api.StateRunning {
		// The scheduler observes the request at the next admission or
		// suspension point.
		f.mu.Unlock()
		return
	}
	// Not started yet: claim the terminal transition, then cancel every
	// registered routine in place with the usual lifecycle messages.
	f.finishing = true
	tasks := f.tasks
	f.mu.Unlock()

	ctx := context.Background()
	for _, t := range tasks {
		f.cancelPending(ctx, t)
	}
	f.finish(ctx)
}

// AwaitResult blocks until the frame reaches a terminal state and returns
// the aggregated result. Safe for any number of concurrent observers; the
// returned error is non-nil only when ctx expires first.
func (f *Frame) AwaitResult(ctx context.Context) (*api.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, nil
}

// cancelRequested reports whether any cancellation (external or fail-fast)
// has been requested.
func (f *Frame) cancelRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelKind != cancelNone
}

func (f *Frame) reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelReason
}

// requestFailFast records a fail-fast cancellation unless cancellation has
// already begun.
func (f *Frame) requestFailFast(routine string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelKind == cancelNone {
		f.cancelKind = cancelFailFast
		f.cancelReason = fmt.Sprintf("routine %q failed", routine)
	}
}

// finish aggregates routine outcomes into the frame's Result, performs the
// terminal transition, publishes the matching lifecycle message and then
// releases every bus subscription.
func (f *Frame) finish(ctx context.Context) {
	// The run context may have expired after the last scheduling point.
	f.observeContext(ctx)

	f.mu.Lock()
	anyFailed := false
	anyCancelled := false
	routines := make([]api.RoutineResult, 0, len(f.tasks))
	for _, t := range f.tasks {
		t.mu.Lock()
		if t.state == api.RoutineFailed {
			anyFailed = true
		}
		if t.state == api.RoutineCancelled {
			anyCancelled = true
		}
		routines = append(routines, api.RoutineResult{
			Name:     t.name,
			Key:      t.cfg.Key,
			State:    t.state,
			Value:    t.value,
			Err:      t.err,
			Duration: t.duration,
		})
		t.mu.Unlock()
	}

	final := api.StateCompleted
	switch {
	case f.cancelKind == cancelFailFast:
		final = api.StateFailed
	case f.cancelKind == cancelExternal && (anyCancelled || len(f.tasks) == 0):
		// CANCELLED is reserved for requests observed before natural
		// completion, which always leave at least one cancelled routine.
		// A request that landed after every routine finished does not
		// override the tally.
		final = api.StateCancelled
	case anyFailed:
		final = api.StateFailed
	}

	res := &api.Result{
		FrameID:  f.id,
		State:    final,
		Reason:   f.cancelReason,
		Routines: routines,
	}
	f.state = final
	f.result = res
	f.mu.Unlock()

	topic := api.TopicFrameCompleted
	switch final {
	case api.StateFailed:
		topic = api.TopicFrameFailed
	case api.StateCancelled:
		topic = api.TopicFrameCancelled
	}

	f.transitionMu.Lock()
	f.bus.Publish(ctx, topic, res)
	f.transitionMu.Unlock()

	f.bus.Clear()

	// Retire before releasing waiters, so a Lookup after AwaitResult
	// returns never finds the frame.
	if f.onTerminal != nil {
		f.onTerminal(f)
	}
	close(f.done)
}
