package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// RuleStore persists insurance groups and rules. There is no delete: rules
// are deactivated, groups live forever.
type RuleStore interface {
	// CreateGroup stores a new group. Names are unique ignoring case.
	CreateGroup(ctx context.Context, g *InsuranceGroup) error

	GetGroup(ctx context.Context, id string) (*InsuranceGroup, error)

	// ListGroups returns groups, most recently updated first.
	ListGroups(ctx context.Context) ([]*InsuranceGroup, error)

	UpdateGroup(ctx context.Context, g *InsuranceGroup) error

	// Add stores a new rule. An empty RuleCode is filled from NextCode.
	Add(ctx context.Context, r *Rule) error

	Get(ctx context.Context, id string) (*Rule, error)

	GetByCode(ctx context.Context, code string) (*Rule, error)

	// List returns every rule, newest first.
	List(ctx context.Context) ([]*Rule, error)

	ListByGroup(ctx context.Context, groupID string) ([]*Rule, error)

	ListActive(ctx context.Context) ([]*Rule, error)

	// Update replaces a stored rule, keeping its code and CreatedAt.
	Update(ctx context.Context, r *Rule) error

	// NextCode reserves the next rule code. Codes are never handed out twice.
	NextCode(ctx context.Context) (string, error)
}

var _ RuleStore = (*InMemoryRuleStore)(nil)

// InMemoryRuleStore implements RuleStore with maps guarded by an RWMutex.
// Stored values are copied on the way in and out.
type InMemoryRuleStore struct {
	groups   map[string]*InsuranceGroup
	rules    map[string]*Rule
	lastCode int
	mu       sync.RWMutex
}

// NewInMemoryRuleStore creates an empty store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		groups: make(map[string]*InsuranceGroup),
		rules:  make(map[string]*Rule),
	}
}

func (s *InMemoryRuleStore) CreateGroup(_ context.Context, g *InsuranceGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID]; exists {
		return fmt.Errorf("%w: insurance group %s", ErrDuplicate, g.ID)
	}
	key := strings.ToLower(strings.TrimSpace(g.Name))
	for _, existing := range s.groups {
		if strings.ToLower(strings.TrimSpace(existing.Name)) == key {
			return fmt.Errorf("%w: insurance group named %q", ErrDuplicate, existing.Name)
		}
	}

	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = time.Now()
	}
	c := *g
	s.groups[g.ID] = &c
	return nil
}

func (s *InMemoryRuleStore) GetGroup(_ context.Context, id string) (*InsuranceGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.groups[id]
	if !exists {
		return nil, fmt.Errorf("%w: insurance group %s", ErrNotFound, id)
	}
	c := *g
	return &c, nil
}

func (s *InMemoryRuleStore) ListGroups(_ context.Context) ([]*InsuranceGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*InsuranceGroup, 0, len(s.groups))
	for _, g := range s.groups {
		c := *g
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *InMemoryRuleStore) UpdateGroup(_ context.Context, g *InsuranceGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[g.ID]; !exists {
		return fmt.Errorf("%w: insurance group %s", ErrNotFound, g.ID)
	}
	key := strings.ToLower(strings.TrimSpace(g.Name))
	for id, existing := range s.groups {
		if id != g.ID && strings.ToLower(strings.TrimSpace(existing.Name)) == key {
			return fmt.Errorf("%w: insurance group named %q", ErrDuplicate, existing.Name)
		}
	}
	c := *g
	s.groups[g.ID] = &c
	return nil
}

func (s *InMemoryRuleStore) Add(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rules[r.ID]; exists {
		return fmt.Errorf("%w: rule %s", ErrDuplicate, r.ID)
	}
	if _, exists := s.groups[r.InsuranceGroupID]; !exists {
		return fmt.Errorf("%w: insurance group %s", ErrNotFound, r.InsuranceGroupID)
	}

	if r.RuleCode == "" {
		r.RuleCode = s.nextCodeLocked()
	} else {
		for _, existing := range s.rules {
			if existing.RuleCode == r.RuleCode {
				return fmt.Errorf("%w: rule code %s", ErrDuplicate, r.RuleCode)
			}
		}
		if n, ok := ParseRuleCode(r.RuleCode); ok && n > s.lastCode {
			s.lastCode = n
		}
	}

	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryRuleStore) Get(_ context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rules[id]
	if !exists {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (s *InMemoryRuleStore) GetByCode(_ context.Context, code string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if r.RuleCode == code {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: rule code %s", ErrNotFound, code)
}

func (s *InMemoryRuleStore) List(_ context.Context) ([]*Rule, error) {
	return s.collect(func(*Rule) bool { return true }), nil
}

func (s *InMemoryRuleStore) ListByGroup(_ context.Context, groupID string) ([]*Rule, error) {
	return s.collect(func(r *Rule) bool { return r.InsuranceGroupID == groupID }), nil
}

func (s *InMemoryRuleStore) ListActive(_ context.Context) ([]*Rule, error) {
	return s.collect(func(r *Rule) bool { return r.IsActive }), nil
}

func (s *InMemoryRuleStore) collect(keep func(*Rule) bool) []*Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

func (s *InMemoryRuleStore) Update(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.rules[r.ID]
	if !exists {
		return fmt.Errorf("%w: rule %s", ErrNotFound, r.ID)
	}

	r.RuleCode = existing.RuleCode
	r.CreatedAt = existing.CreatedAt
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryRuleStore) NextCode(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCodeLocked(), nil
}

func (s *InMemoryRuleStore) nextCodeLocked() string {
	s.lastCode++
	return FormatRuleCode(s.lastCode)
}

// sortNewestFirst orders rules by CreatedAt descending, then by code.
func sortNewestFirst(rs []*Rule) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].RuleCode > rs[j].RuleCode
	})
}
