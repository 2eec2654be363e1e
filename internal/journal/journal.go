// Package journal provides append-only recording of frame lifecycle events
// and explicit checkpointing of frame results. The core itself never
// persists anything; callers opt in by subscribing a Recorder to a frame's
// bus or by checkpointing a Result they obtained from AwaitResult.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/petrijr/gframe/pkg/api"
)

var (
	// ErrResultNotFound is returned when no checkpointed result exists for
	// a frame id.
	ErrResultNotFound = errors.New("result not found")
)

// Event is a minimal append-only record of one lifecycle message. It is
// intentionally small and stable; keep Detail low-volume and do not dump
// payloads into it.
type Event struct {
	FrameID string
	At      time.Time
	Topic   string

	// Routine is set for routine.* events.
	Routine string

	// Detail is a small human-oriented note (terminal state, error string).
	Detail string
}

// Store persists journal events and checkpointed results.
//
// Checkpointed results are rehydrated with opaque error values: a cause
// survives as its message, not its original type.
type Store interface {
	AppendEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, frameID string) ([]Event, error)

	SaveResult(ctx context.Context, res *api.Result) error
	GetResult(ctx context.Context, frameID string) (*api.Result, error)
}

// NoopStore discards everything.
type NoopStore struct{}

func (NoopStore) AppendEvent(ctx context.Context, ev Event) error { return nil }
func (NoopStore) ListEvents(ctx context.Context, frameID string) ([]Event, error) {
	return nil, nil
}
func (NoopStore) SaveResult(ctx context.Context, res *api.Result) error { return nil }
func (NoopStore) GetResult(ctx context.Context, frameID string) (*api.Result, error) {
	return nil, ErrResultNotFound
}

// Recorder returns a bus handler that appends every received lifecycle
// message to store as an Event and checkpoints the aggregated Result when a
// terminal frame message arrives. Subscribe it with the "*" pattern (or
// "frame.*" to journal frame transitions only).
func Recorder(store Store) api.Handler {
	return func(ctx context.Context, msg api.Message) error {
		ev := Event{FrameID: msg.FrameID, At: msg.At, Topic: msg.Topic}
		switch body := msg.Body.(type) {
		case api.RoutineResult:
			ev.Routine = body.Name
			if body.Err != nil {
				ev.Detail = body.Err.Error()
			}
		case *api.Result:
			ev.Detail = string(body.State)
		case *api.HandlerFailure:
			ev.Detail = body.Error()
		}
		if err := store.AppendEvent(ctx, ev); err != nil {
			return err
		}
		if res, ok := msg.Body.(*api.Result); ok {
			return store.SaveResult(ctx, res)
		}
		return nil
	}
}
