package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists workflows. Implementations hand out copies of the draft and
// enrollment so callers never edit stored state in place; published
// versions are immutable and may be shared.
type Store interface {
	Create(ctx context.Context, m *Meta) error
	Get(ctx context.Context, id string) (*Meta, error)

	// List returns every workflow, most recently updated first.
	List(ctx context.Context) ([]*Meta, error)

	ListByAccountType(ctx context.Context, accountType AccountType) ([]*Meta, error)

	// Update replaces a stored workflow.
	Update(ctx context.Context, m *Meta) error
}

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore implements Store with a map guarded by an RWMutex.
type InMemoryStore struct {
	workflows map[string]*Meta
	mu        sync.RWMutex
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{workflows: make(map[string]*Meta)}
}

func (s *InMemoryStore) Create(_ context.Context, m *Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[m.ID]; exists {
		return fmt.Errorf("%w: workflow %s already exists", ErrInvalid, m.ID)
	}
	s.workflows[m.ID] = m.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.workflows[id]
	if !exists {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, id)
	}
	return m.Clone(), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Meta, error) {
	return s.collect(func(*Meta) bool { return true }), nil
}

func (s *InMemoryStore) ListByAccountType(_ context.Context, accountType AccountType) ([]*Meta, error) {
	return s.collect(func(m *Meta) bool { return m.AccountType == accountType }), nil
}

func (s *InMemoryStore) collect(keep func(*Meta) bool) []*Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Meta, 0, len(s.workflows))
	for _, m := range s.workflows {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sortByUpdated(out)
	return out
}

func (s *InMemoryStore) Update(_ context.Context, m *Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[m.ID]; !exists {
		return fmt.Errorf("%w: workflow %s", ErrNotFound, m.ID)
	}
	s.workflows[m.ID] = m.Clone()
	return nil
}

func sortByUpdated(ms []*Meta) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].UpdatedAt.Equal(ms[j].UpdatedAt) {
			return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
		}
		return ms[i].Name < ms[j].Name
	})
}
