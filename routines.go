package gframe

import (
	"context"
	"time"
)

// SleepRoutine returns a routine that sleeps for the given duration and
// returns nil. It is context-aware: if the context is cancelled during the
// sleep, it returns ctx.Err and the routine fails or is cancelled at this
// point.
func SleepRoutine(d time.Duration) RoutineFunc {
	return func(ctx context.Context, rc RoutineContext) (any, error) {
		if d <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return nil, nil
		}
	}
}

// ValueRoutine returns a routine that immediately completes with v.
func ValueRoutine(v any) RoutineFunc {
	return func(ctx context.Context, rc RoutineContext) (any, error) {
		return v, nil
	}
}

// TypedRoutine wraps a strongly-typed function that does not need the
// routine context into a RoutineFunc. Example:
//
//	gframe.TypedRoutine(func(ctx context.Context) (Report, error) { ... })
func TypedRoutine[T any](fn func(context.Context) (T, error)) RoutineFunc {
	return func(ctx context.Context, rc RoutineContext) (any, error) {
		return fn(ctx)
	}
}

// RepeatRoutine runs body the given number of times, yielding between
// iterations so other routines get their turn in concurrent mode and
// cancellation is observed promptly in every mode. It completes with the
// number of iterations performed.
func RepeatRoutine(times int, body func(ctx context.Context, i int) error) RoutineFunc {
	return func(ctx context.Context, rc RoutineContext) (any, error) {
		for i := 0; i < times; i++ {
			if err := body(ctx, i); err != nil {
				return nil, err
			}
			if i < times-1 {
				if err := rc.Yield(ctx); err != nil {
					return nil, err
				}
			}
		}
		return times, nil
	}
}
