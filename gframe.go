package gframe

import (
	"context"
	"database/sql"
	"sync"

	"github.com/petrijr/gframe/internal/journal"
	"github.com/petrijr/gframe/internal/registry"
	"github.com/petrijr/gframe/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Frame          = api.Frame
	Registry       = api.Registry
	RoutineFunc    = api.RoutineFunc
	RoutineContext = api.RoutineContext
	RoutineHandle  = api.RoutineHandle
	Result         = api.Result
	RoutineResult  = api.RoutineResult
	State          = api.State
	RoutineState   = api.RoutineState
	Mode           = api.Mode
	FailurePolicy  = api.FailurePolicy
	RetryPolicy    = api.RetryPolicy
	FrameOption    = api.FrameOption
	RoutineOption  = api.RoutineOption

	Message      = api.Message
	FrameStarted = api.FrameStarted
	Handler      = api.Handler
	Subscription = api.Subscription
	Bus          = api.Bus

	Metrics         = api.Metrics
	MetricsSnapshot = api.MetricsSnapshot

	InvalidStateError = api.InvalidStateError
	RoutineFailure    = api.RoutineFailure
	CancellationError = api.CancellationError
	HandlerFailure    = api.HandlerFailure
	TimeoutError      = api.TimeoutError

	JournalStore = journal.Store
	JournalEvent = journal.Event
)

// Re-export lifecycle states, modes and policies for convenience.

const (
	StateCreated     = api.StateCreated
	StateConfiguring = api.StateConfiguring
	StateRunning     = api.StateRunning
	StateCompleted   = api.StateCompleted
	StateFailed      = api.StateFailed
	StateCancelled   = api.StateCancelled

	RoutinePending   = api.RoutinePending
	RoutineRunning   = api.RoutineRunning
	RoutineSuspended = api.RoutineSuspended
	RoutineDone      = api.RoutineDone
	RoutineFailed    = api.RoutineFailed
	RoutineCancelled = api.RoutineCancelled

	ModeSequential = api.ModeSequential
	ModeConcurrent = api.ModeConcurrent
	ModeParallel   = api.ModeParallel

	FailFast   = api.FailFast
	CollectAll = api.CollectAll

	TopicFrameStarted     = api.TopicFrameStarted
	TopicFrameCompleted   = api.TopicFrameCompleted
	TopicFrameFailed      = api.TopicFrameFailed
	TopicFrameCancelled   = api.TopicFrameCancelled
	TopicRoutineStarted   = api.TopicRoutineStarted
	TopicRoutineCompleted = api.TopicRoutineCompleted
	TopicRoutineFailed    = api.TopicRoutineFailed
	TopicRoutineCancelled = api.TopicRoutineCancelled
	TopicHandlerFailed    = api.TopicHandlerFailed
)

// Re-export common options, helpers and errors.

var (
	WithMaxParallel = api.WithMaxParallel
	WithOrderingKey = api.WithOrderingKey
	WithTimeout     = api.WithTimeout
	WithRetry       = api.WithRetry

	ImmediateRetry   = api.ImmediateRetry
	ConstantRetry    = api.ConstantRetry
	ExponentialRetry = api.ExponentialRetry

	NewLoggingSubscriber = api.NewLoggingSubscriber
	MatchTopic           = api.MatchTopic
	ReservedTopic        = api.ReservedTopic

	IsInvalidState = api.IsInvalidState
	IsCancellation = api.IsCancellation
	IsTimeout      = api.IsTimeout

	ErrShutdown       = registry.ErrShutdown
	ErrResultNotFound = journal.ErrResultNotFound
)

// NewRegistry returns a fresh, isolated frame registry. Most applications
// use Default instead; isolated registries are handy in tests and when
// embedding several independent frameworks in one process.
func NewRegistry() Registry {
	return registry.New()
}

var (
	defaultOnce sync.Once
	defaultReg  Registry
)

// Default returns the process-wide registry, initializing it lazily on
// first use.
func Default() Registry {
	defaultOnce.Do(func() {
		defaultReg = registry.New()
	})
	return defaultReg
}

// CreateFrame creates a frame on the default registry.
func CreateFrame(mode Mode, policy FailurePolicy, opts ...FrameOption) (Frame, error) {
	return Default().CreateFrame(mode, policy, opts...)
}

// Journal constructors
// These wrap the internal/journal package so external callers never need
// to import internal packages.

// NewMemoryJournal returns a journal store backed entirely by memory.
func NewMemoryJournal() JournalStore {
	return journal.NewMemoryStore()
}

// NewSQLiteJournal returns a journal store that persists events and
// checkpointed results in a SQLite database. The caller is responsible for
// importing a driver, e.g.:
//
//	import _ "modernc.org/sqlite"
func NewSQLiteJournal(db *sql.DB) (JournalStore, error) {
	return journal.NewSQLiteStore(db)
}

// NewRecorder returns a bus handler that journals every message it
// receives into store and checkpoints the frame's Result on terminal
// lifecycle messages. Subscribe it with the "*" pattern.
func NewRecorder(store JournalStore) Handler {
	return journal.Recorder(store)
}

// Checkpoint explicitly persists a Result obtained from AwaitResult.
func Checkpoint(ctx context.Context, store JournalStore, res *Result) error {
	return store.SaveResult(ctx, res)
}

// LoadResult fetches a previously checkpointed Result. Returns
// ErrResultNotFound if the frame was never checkpointed.
func LoadResult(ctx context.Context, store JournalStore, frameID string) (*Result, error) {
	return store.GetResult(ctx, frameID)
}
