package api

import (
	"errors"
	"fmt"
	"time"
)

// InvalidStateError is returned when an operation is attempted in a
// lifecycle state that forbids it, for example configuring a frame after
// Start. It is always returned synchronously to the misusing caller.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("gframe: %s not allowed in state %s", e.Op, e.State)
}

// IsInvalidState reports whether err is an *InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

// RoutineFailure wraps an error raised by a routine during execution with
// the routine's identity and ordering key. The scheduler captures it and
// folds it into the frame's Result; it is never propagated to the caller's
// stack.
type RoutineFailure struct {
	Routine string
	Key     int
	Cause   error
}

func (e *RoutineFailure) Error() string {
	return fmt.Sprintf("gframe: routine %q failed: %v", e.Routine, e.Cause)
}

func (e *RoutineFailure) Unwrap() error { return e.Cause }

// CancellationError indicates that a pending or running routine was
// cancelled before completion, or that a whole frame was cancelled.
// Routine is empty for frame-level cancellation.
type CancellationError struct {
	Routine string
	Reason  string
}

func (e *CancellationError) Error() string {
	if e.Routine == "" {
		return fmt.Sprintf("gframe: frame cancelled: %s", e.Reason)
	}
	return fmt.Sprintf("gframe: routine %q cancelled: %s", e.Routine, e.Reason)
}

// IsCancellation reports whether err is a *CancellationError.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

// HandlerFailure describes a message-bus subscriber that raised during
// delivery. It is reported as the body of a handler.failed message and never
// propagates past the bus boundary.
type HandlerFailure struct {
	// Topic is the topic of the message whose delivery failed.
	Topic string

	// Handler identifies the failing subscription.
	Handler string

	Cause error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("gframe: handler %s failed on %s: %v", e.Handler, e.Topic, e.Cause)
}

func (e *HandlerFailure) Unwrap() error { return e.Cause }

// TimeoutError indicates that a routine did not finish within its
// configured timeout. It appears as the cause of a RoutineFailure.
type TimeoutError struct {
	Routine string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gframe: routine %q did not finish within %s", e.Routine, e.Timeout)
}

// IsTimeout reports whether err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
