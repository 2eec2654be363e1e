package api

import (
	"errors"
	"time"
)

// RoutineResult is the recorded outcome of a single routine.
type RoutineResult struct {
	Name     string
	Key      int
	State    RoutineState
	Value    any
	Err      error
	Duration time.Duration
}

// Result is a frame's aggregated outcome. It is set exactly once, when all
// routine handles reach a terminal sub-state or the frame is cancelled, and
// is read-only thereafter.
type Result struct {
	FrameID string

	// State is the frame's terminal state.
	State State

	// Reason carries the cancellation reason when State is CANCELLED.
	Reason string

	// Routines holds one entry per registered routine, in registration
	// order, regardless of execution order.
	Routines []RoutineResult
}

// Completed reports whether every routine finished successfully.
func (r *Result) Completed() bool { return r.State == StateCompleted }

// Values returns the success values of all routines that completed, in
// registration order.
func (r *Result) Values() []any {
	out := make([]any, 0, len(r.Routines))
	for _, rr := range r.Routines {
		if rr.State == RoutineDone {
			out = append(out, rr.Value)
		}
	}
	return out
}

// Value returns the success value of the named routine, or false if the
// routine does not exist or did not complete.
func (r *Result) Value(name string) (any, bool) {
	for _, rr := range r.Routines {
		if rr.Name == name && rr.State == RoutineDone {
			return rr.Value, true
		}
	}
	return nil, false
}

// Failures returns the results of all routines that failed, in registration
// order.
func (r *Result) Failures() []RoutineResult {
	var out []RoutineResult
	for _, rr := range r.Routines {
		if rr.State == RoutineFailed {
			out = append(out, rr)
		}
	}
	return out
}

// Err returns nil for a completed frame. For a failed frame it returns the
// joined routine failure causes; for a cancelled frame a *CancellationError
// carrying the cancellation reason.
func (r *Result) Err() error {
	switch r.State {
	case StateFailed:
		errs := make([]error, 0, 1)
		for _, rr := range r.Routines {
			if rr.State == RoutineFailed && rr.Err != nil {
				errs = append(errs, rr.Err)
			}
		}
		return errors.Join(errs...)
	case StateCancelled:
		return &CancellationError{Reason: r.Reason}
	}
	return nil
}
