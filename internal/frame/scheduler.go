package frame

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/petrijr/gframe/pkg/api"
)

// run drives every registered routine to a terminal sub-state according to
// the frame's mode, then performs the terminal frame transition.
func (f *Frame) run(ctx context.Context) {
	tasks := sortedTasks(f.tasks)
	switch f.mode {
	case api.ModeConcurrent:
		f.runConcurrent(ctx, tasks)
	case api.ModeParallel:
		f.runParallel(ctx, tasks)
	default:
		f.runSequential(ctx, tasks)
	}
	f.finish(ctx)
}

// sortedTasks returns the admission order: ordering key ascending, ties
// broken by registration order.
func sortedTasks(tasks []*task) []*task {
	out := make([]*task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].cfg.Key != out[j].cfg.Key {
			return out[i].cfg.Key < out[j].cfg.Key
		}
		return out[i].idx < out[j].idx
	})
	return out
}

// observeContext folds an expired run context into an external cancellation
// request, so routines and pending admissions see it cooperatively.
func (f *Frame) observeContext(ctx context.Context) {
	if err := ctx.Err(); err == nil {
		return
	}
	f.mu.Lock()
	if f.cancelKind == cancelNone {
		f.cancelKind = cancelExternal
		f.cancelReason = ctx.Err().Error()
	}
	f.mu.Unlock()
}

// runSequential runs routines one at a time in admission order; each
// finishes before the next is admitted.
func (f *Frame) runSequential(ctx context.Context, tasks []*task) {
	for _, t := range tasks {
		f.observeContext(ctx)
		if f.cancelRequested() {
			f.cancelPending(ctx, t)
			continue
		}
		f.admit(ctx, t)
		start := time.Now()
		value, err := t.invoke(ctx)
		f.settle(ctx, t, value, err, time.Since(start))
	}
}

// runConcurrent interleaves routines on this single scheduler goroutine.
// Ready routines are served round-robin in admission order; a routine keeps
// its turn until it yields or completes.
func (f *Frame) runConcurrent(ctx context.Context, tasks []*task) {
	remaining := len(tasks)
	for remaining > 0 {
		for _, t := range tasks {
			if t.State().Terminal() {
				continue
			}
			f.observeContext(ctx)
			if f.cancelRequested() && t.State() == api.RoutinePending {
				f.cancelPending(ctx, t)
				remaining--
				continue
			}

			if !t.started {
				t.started = true
				f.admit(ctx, t)
				go t.run(ctx)
			} else {
				t.setState(api.RoutineRunning)
				t.grant <- struct{}{}
			}

			switch <-t.report {
			case eventSuspended:
				t.setState(api.RoutineSuspended)
			case eventFinished:
				t.mu.Lock()
				value, err, dur := t.value, t.err, t.duration
				t.mu.Unlock()
				f.settle(ctx, t, value, err, dur)
				remaining--
			}
		}
	}
}

// runParallel distributes routines across a bounded goroutine pool.
// Admission follows the same ordering as the other modes, but multiple
// routines may be running at once.
func (f *Frame) runParallel(ctx context.Context, tasks []*task) {
	max := f.cfg.MaxParallel
	if max <= 0 {
		max = runtime.NumCPU()
	}
	sem := make(chan struct{}, max)
	var wg sync.WaitGroup

	for _, t := range tasks {
		f.observeContext(ctx)
		if f.cancelRequested() {
			f.cancelPending(ctx, t)
			continue
		}
		sem <- struct{}{}
		// Re-check after waiting for a slot: cancellation may have begun
		// while we were blocked, and a pending routine must not start then.
		f.observeContext(ctx)
		if f.cancelRequested() {
			<-sem
			f.cancelPending(ctx, t)
			continue
		}

		f.admit(ctx, t)
		wg.Add(1)
		go func(t *task) {
			defer wg.Done()
			defer func() { <-sem }()
			start := time.Now()
			value, err := t.invoke(ctx)
			f.settle(ctx, t, value, err, time.Since(start))
		}(t)
	}

	wg.Wait()
}

// admit transitions a pending routine to running and publishes
// routine.started.
func (f *Frame) admit(ctx context.Context, t *task) {
	f.transitionMu.Lock()
	defer f.transitionMu.Unlock()

	t.setState(api.RoutineRunning)
	f.bus.Publish(ctx, api.TopicRoutineStarted, api.RoutineResult{
		Name:  t.name,
		Key:   t.cfg.Key,
		State: api.RoutineRunning,
	})
}

// cancelPending moves a never-admitted routine straight to the cancelled
// sub-state and publishes routine.cancelled.
func (f *Frame) cancelPending(ctx context.Context, t *task) {
	cause := &api.CancellationError{Routine: t.name, Reason: f.reason()}

	f.transitionMu.Lock()
	defer f.transitionMu.Unlock()

	t.mu.Lock()
	t.state = api.RoutineCancelled
	t.err = cause
	t.mu.Unlock()

	f.bus.Publish(ctx, api.TopicRoutineCancelled, api.RoutineResult{
		Name:  t.name,
		Key:   t.cfg.Key,
		State: api.RoutineCancelled,
		Err:   cause,
	})
}

// settle records a finished routine attempt, classifying the raw error into
// done / failed / cancelled, and publishes the matching lifecycle message.
// Under FailFast, the first failure begins cancellation of the rest of the
// frame.
func (f *Frame) settle(ctx context.Context, t *task, value any, err error, dur time.Duration) {
	state := api.RoutineDone
	var recorded error
	switch {
	case err == nil:
	case api.IsCancellation(err):
		state = api.RoutineCancelled
		recorded = err
	case errors.Is(err, context.Canceled):
		state = api.RoutineCancelled
		recorded = &api.CancellationError{Routine: t.name, Reason: err.Error()}
	default:
		state = api.RoutineFailed
		recorded = &api.RoutineFailure{Routine: t.name, Key: t.cfg.Key, Cause: err}
	}

	topic := api.TopicRoutineCompleted
	switch state {
	case api.RoutineFailed:
		topic = api.TopicRoutineFailed
	case api.RoutineCancelled:
		topic = api.TopicRoutineCancelled
	}

	f.transitionMu.Lock()
	t.mu.Lock()
	t.state = state
	t.value = value
	t.err = recorded
	t.duration = dur
	t.mu.Unlock()

	f.bus.Publish(ctx, topic, api.RoutineResult{
		Name:     t.name,
		Key:      t.cfg.Key,
		State:    state,
		Value:    value,
		Err:      recorded,
		Duration: dur,
	})
	f.transitionMu.Unlock()

	if state == api.RoutineFailed && f.policy == api.FailFast {
		f.requestFailFast(t.name)
	}
}
