// Package registry implements the process-wide tracking of live frames:
// lookup, cancellation broadcast and automatic retirement.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/petrijr/gframe/internal/frame"
	"github.com/petrijr/gframe/pkg/api"
)

// ErrShutdown is returned by CreateFrame after Shutdown has been called.
var ErrShutdown = errors.New("gframe: registry is shut down")

// Registry holds the live-frame table behind an explicit synchronization
// boundary. Frames are inserted by CreateFrame and removed automatically
// when they reach a terminal state; retired frames are not retained in
// queryable state.
type Registry struct {
	mu     sync.RWMutex
	frames map[string]*frame.Frame
	closed bool
}

var _ api.Registry = (*Registry)(nil)

// New creates an empty registry.
func New() *Registry {
	return &Registry{frames: make(map[string]*frame.Frame)}
}

// CreateFrame allocates a fresh frame in the CREATED state and inserts it
// into the live table.
func (r *Registry) CreateFrame(mode api.Mode, policy api.FailurePolicy, opts ...api.FrameOption) (api.Frame, error) {
	switch mode {
	case api.ModeSequential, api.ModeConcurrent, api.ModeParallel:
	default:
		return nil, errors.New("gframe: unknown concurrency mode: " + string(mode))
	}
	switch policy {
	case api.FailFast, api.CollectAll:
	default:
		return nil, errors.New("gframe: unknown failure policy: " + string(policy))
	}

	var cfg api.FrameConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	f := frame.New(uuid.NewString(), mode, policy, cfg, r.retire)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrShutdown
	}
	r.frames[f.ID()] = f
	return f, nil
}

// Lookup returns the live frame with the given id, or false if it was never
// created or has already been retired.
func (r *Registry) Lookup(id string) (api.Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.frames[id]
	if !ok {
		return nil, false
	}
	return f, true
}

// Live returns the number of live frames.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// BroadcastCancel requests cancellation on every live frame matching pred
// (every frame when pred is nil) and returns how many were cancelled.
func (r *Registry) BroadcastCancel(reason string, pred func(api.Frame) bool) int {
	n := 0
	for _, f := range r.snapshot() {
		if pred != nil && !pred(f) {
			continue
		}
		f.Cancel(reason)
		n++
	}
	return n
}

// Shutdown cancels all live frames, waits for each to terminate (or for ctx
// to expire) and rejects further CreateFrame calls. Intended for
// process-wide teardown.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	frames := r.snapshot()
	for _, f := range frames {
		f.Cancel("registry shutdown")
	}
	for _, f := range frames {
		if _, err := f.AwaitResult(ctx); err != nil {
			return err
		}
	}
	return nil
}

// retire removes a terminated frame from the live table and closes its bus.
// Wired into each frame's terminal-transition hook at creation.
func (r *Registry) retire(f *frame.Frame) {
	r.mu.Lock()
	delete(r.frames, f.ID())
	r.mu.Unlock()

	f.CloseBus()
}

// snapshot copies the live table so callers can iterate without holding the
// lock while frames transition.
func (r *Registry) snapshot() []*frame.Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*frame.Frame, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f)
	}
	return out
}
