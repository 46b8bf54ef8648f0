package builder

import (
	"context"
	"sync"
	"time"
)

// Store holds the current build record of every project.
type Store interface {
	// Create replaces any prior record for projectID with a fresh building run
	// carrying a new generation.
	Create(ctx context.Context, projectID string) (Record, error)
	Get(ctx context.Context, projectID string) (Record, error)
	Apply(ctx context.Context, projectID string, t Transition) (Record, error)
	Delete(ctx context.Context, projectID string) error
}

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*RedisStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// MemStore keeps build records in memory. Records are lost on restart.
type MemStore struct {
	mu    sync.RWMutex
	seq   uint64
	items map[string]*Record
	now   func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		items: make(map[string]*Record),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemStore) Create(_ context.Context, projectID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec := newRecord(projectID, s.seq, s.now())
	s.items[projectID] = &rec
	return rec, nil
}

func (s *MemStore) Get(_ context.Context, projectID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[projectID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemStore) Apply(_ context.Context, projectID string, t Transition) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[projectID]
	if !ok {
		return Record{}, ErrNotFound
	}
	next := *rec
	if err := next.apply(t, s.now()); err != nil {
		return *rec, err
	}
	*rec = next
	return next, nil
}

func (s *MemStore) Delete(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, projectID)
	return nil
}
