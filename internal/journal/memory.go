package journal

import (
	"context"
	"sync"

	"github.com/petrijr/gframe/pkg/api"
)

// MemoryStore is a goroutine-safe Store backed by maps. Best for tests and
// single-process use; nothing survives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[string][]Event
	results map[string]*api.Result
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string][]Event),
		results: make(map[string]*api.Result),
	}
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.FrameID] = append(s.events[ev.FrameID], ev)
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, frameID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[frameID]
	out := make([]Event, len(evs))
	copy(out, evs)
	return out, nil
}

func (s *MemoryStore) SaveResult(ctx context.Context, res *api.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[res.FrameID] = res
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, frameID string) (*api.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[frameID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return res, nil
}
