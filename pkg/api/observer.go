package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// NewLoggingSubscriber returns a Handler that writes structured logs for
// every message it receives using log/slog. If logger is nil,
// slog.Default() is used.
//
// Subscribe it with the "*" pattern to log all traffic, or narrow it with
// a prefix pattern such as "frame.*".
func NewLoggingSubscriber(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg Message) error {
		attrs := []any{
			slog.String("topic", msg.Topic),
			slog.String("frame_id", msg.FrameID),
		}
		level := slog.LevelInfo
		switch body := msg.Body.(type) {
		case FrameStarted:
			attrs = append(attrs,
				slog.String("mode", string(body.Mode)),
				slog.Int("routines", body.Routines),
			)
		case *Result:
			attrs = append(attrs, slog.String("state", string(body.State)))
			if err := body.Err(); err != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.Any("error", err))
			}
		case RoutineResult:
			attrs = append(attrs,
				slog.String("routine", body.Name),
				slog.String("state", string(body.State)),
				slog.Duration("duration", body.Duration),
			)
			if body.Err != nil {
				level = slog.LevelError
				attrs = append(attrs, slog.Any("error", body.Err))
			} else {
				level = slog.LevelDebug
			}
		case *HandlerFailure:
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("error", body))
		}
		logger.Log(ctx, level, msg.Topic, attrs...)
		return nil
	}
}

// Metrics collects simple counters and aggregate routine durations from
// lifecycle messages. Subscribe its Handler with the "*" pattern; a single
// Metrics value may observe any number of frames.
type Metrics struct {
	framesStarted   atomic.Int64
	framesCompleted atomic.Int64
	framesFailed    atomic.Int64
	framesCancelled atomic.Int64

	routinesDone    atomic.Int64
	routinesFailed  atomic.Int64
	totalRoutineDur atomic.Int64 // nanoseconds
}

// MetricsSnapshot is an immutable snapshot of Metrics.
type MetricsSnapshot struct {
	FramesStarted   int64
	FramesCompleted int64
	FramesFailed    int64
	FramesCancelled int64
	RunningFrames   int64

	RoutinesDone       int64
	RoutinesFailed     int64
	AvgRoutineDuration time.Duration
}

// Handler returns the bus handler feeding m.
func (m *Metrics) Handler() Handler {
	return func(ctx context.Context, msg Message) error {
		switch msg.Topic {
		case TopicFrameStarted:
			m.framesStarted.Add(1)
		case TopicFrameCompleted:
			m.framesCompleted.Add(1)
		case TopicFrameFailed:
			m.framesFailed.Add(1)
		case TopicFrameCancelled:
			m.framesCancelled.Add(1)
		case TopicRoutineCompleted:
			m.routinesDone.Add(1)
			if rr, ok := msg.Body.(RoutineResult); ok {
				m.totalRoutineDur.Add(rr.Duration.Nanoseconds())
			}
		case TopicRoutineFailed:
			m.routinesFailed.Add(1)
		}
		return nil
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	started := m.framesStarted.Load()
	completed := m.framesCompleted.Load()
	failed := m.framesFailed.Load()
	cancelled := m.framesCancelled.Load()
	done := m.routinesDone.Load()
	totalNs := m.totalRoutineDur.Load()

	var avg time.Duration
	if done > 0 {
		avg = time.Duration(totalNs / done)
	}

	return MetricsSnapshot{
		FramesStarted:      started,
		FramesCompleted:    completed,
		FramesFailed:       failed,
		FramesCancelled:    cancelled,
		RunningFrames:      started - completed - failed - cancelled,
		RoutinesDone:       done,
		RoutinesFailed:     m.routinesFailed.Load(),
		AvgRoutineDuration: avg,
	}
}
