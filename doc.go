// Package gframe provides a lightweight, embeddable execution framework
// for Go.
//
// Gframe is designed for backend services that need to group units of work
// ("routines") under a managed execution context (a "frame") with lifecycle
// control, message dispatch and a choice of sequential, cooperative
// concurrent, or parallel execution, without introducing external
// infrastructure. It runs fully in-process and integrates cleanly into
// existing codebases.
//
// # Core Concepts
//
// The gframe programming model is intentionally small:
//
//  1. Registry
//  2. Frame
//  3. RoutineFunc
//  4. Bus
//  5. FrameBuilder
//
// # Registry
//
// The Registry tracks every live frame process-wide. It allocates frames,
// looks them up by id, broadcasts cancellation for process shutdown, and
// retires frames automatically when they terminate. Use gframe.Default()
// for a lazily initialized process-wide registry, or gframe.NewRegistry()
// for an isolated one (best for tests).
//
// # Frame
//
// A Frame is the lifecycle-managed execution context. Its states move
// monotonically through
//
//	CREATED -> CONFIGURING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}
//
// Routines are registered while configuring; Start freezes the set and
// begins execution under the frame's concurrency mode:
//
//   - ModeSequential: one routine at a time, in order.
//   - ModeConcurrent: cooperative interleaving on a single logical
//     execution context; routines hand control back at explicit Yield
//     points, never preemptively.
//   - ModeParallel: a bounded goroutine pool running routines
//     simultaneously.
//
// A frame's failure policy is FailFast (first failure cancels the rest) or
// CollectAll (everything runs; the frame fails on a non-empty failure
// tally). AwaitResult blocks until the frame terminates and returns the
// aggregated Result; routine failures never surface as Go errors from
// AwaitResult, so callers inspect the outcome explicitly.
//
// # RoutineFunc
//
// A RoutineFunc is the fundamental executable unit:
//
//	type RoutineFunc func(ctx context.Context, rc RoutineContext) (any, error)
//
// The RoutineContext is the routine's window into the framework: Yield is
// its suspension point (and the only place cancellation or a context
// switch is delivered), Cancelled polls the cancellation flag, and Publish
// emits user-defined messages on the frame's bus.
//
// # Bus
//
// Every frame owns a message bus. The framework publishes lifecycle
// messages (frame.started, routine.completed, frame.failed, ...) on it,
// and routines may publish user topics. Delivery is synchronous and in
// subscription order; a failing handler is isolated and reported as a
// handler.failed diagnostic rather than aborting delivery. Subscriptions
// are released automatically when the frame terminates.
//
// Ready-made subscribers cover the common cases: NewLoggingSubscriber
// (structured logs via log/slog), Metrics (counters and durations), and
// NewRecorder (journal of events with checkpointed results, in-memory or
// SQLite-backed).
//
// # FrameBuilder
//
// FrameBuilder provides the ergonomic, declarative way to assemble and run
// a frame:
//
//	res, err := gframe.New(gframe.ModeParallel, gframe.CollectAll).
//	    Routine("fetch-a", fetchA).
//	    Routine("fetch-b", fetchB, gframe.WithRetry(gframe.ExponentialRetry(3, time.Second, 0))).
//	    Run(ctx, nil)
//
// # Summary
//
// Gframe's goal is an execution core that feels like Go: explicit
// lifecycles, cooperative cancellation, deterministic lifecycle messaging,
// and results as values rather than propagated panics. The Registry
// manages frames, Frames manage routines, the Bus carries lifecycle and
// user messages, and the journal records what happened when you ask it to.
package gframe
