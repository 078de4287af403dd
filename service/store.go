package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/model"
)

// MemoryStore is an in-memory ContractRepository. Records are copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	contracts map[string]*model.Contract
	mu        sync.RWMutex
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	slog.Info("contract store initialized", "driver", "memory")
	return &MemoryStore{
		contracts: make(map[string]*model.Contract),
		now:       time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	return c.Copy(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter, page Page) ([]*model.Contract, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Contract
	for _, c := range s.contracts {
		if filter.Matches(c) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page = page.Normalize()
	total := len(matched)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	result := make([]*model.Contract, 0, end-start)
	for _, c := range matched[start:end] {
		result = append(result, c.Copy())
	}
	return result, total, nil
}

func (s *MemoryStore) Create(ctx context.Context, c *model.Contract) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contracts[c.ID]; exists {
		return nil, ErrAlreadyExists
	}
	stored := c.Copy()
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.Version = 1
	s.contracts[stored.ID] = stored
	return stored.Copy(), nil
}

func (s *MemoryStore) Update(ctx context.Context, c *model.Contract, action lifecycle.Action) (*model.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.contracts[c.ID]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	if current.Version != c.Version {
		return nil, ErrVersionConflict
	}

	stored := c.Copy()
	stored.Version = current.Version + 1
	stored.UpdatedAt = s.now()
	s.contracts[stored.ID] = stored

	slog.Debug("contract updated",
		"contract_id", stored.ID,
		"action", action,
		"status", stored.Status,
		"version", stored.Version,
	)
	return stored.Copy(), nil
}

// Count returns the number of contracts in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}
