package store

import (
	"context"
	"sync"

	"bimbridge/internal/domain"
)

// MemoryStore serves a model held in memory. It starts empty; Load swaps in
// a new model.
type MemoryStore struct {
	mu    sync.RWMutex
	model *Model
}

var _ domain.ModelStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store serving m. A nil m means no model is loaded.
func NewMemoryStore(m *Model) *MemoryStore {
	return &MemoryStore{model: m}
}

// Load replaces the current model. A nil m unloads it.
func (s *MemoryStore) Load(m *Model) {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
}

func (s *MemoryStore) OpenCurrentModel(ctx context.Context) (domain.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, domain.ErrModelNotFound
	}
	return s.model, nil
}
