package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-ai/conductor/types"
)

// DefinitionStore persists workflow definitions. Implementations must keep at
// most one definition flagged as default; SetDefault clears the previous
// default in the same logical operation.
type DefinitionStore interface {
	Create(ctx context.Context, def *Definition) error
	Get(ctx context.Context, id string) (*Definition, error)
	List(ctx context.Context) ([]*Definition, error)
	Update(ctx context.Context, def *Definition) error
	Delete(ctx context.Context, id string) error
	GetDefault(ctx context.Context) (*Definition, error)
	SetDefault(ctx context.Context, id string) error
}

// MemoryDefinitionStore is an in-memory DefinitionStore for tests and
// single-process deployments.
type MemoryDefinitionStore struct {
	defs map[string]*Definition
	mu   sync.RWMutex
}

// NewMemoryDefinitionStore creates an empty in-memory store.
func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{defs: make(map[string]*Definition)}
}

// Create validates and stores a new definition, assigning an id when absent.
func (s *MemoryDefinitionStore) Create(ctx context.Context, def *Definition) error {
	if err := Validate(def).Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if _, exists := s.defs[def.ID]; exists {
		return types.NewErrorf(types.ErrInvalidState, "workflow already exists: %s", def.ID)
	}
	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now
	if def.IsDefault {
		s.clearDefaultLocked()
	}
	s.defs[def.ID] = cloneDefinition(def)
	return nil
}

// Get returns a copy of the stored definition.
func (s *MemoryDefinitionStore) Get(ctx context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, types.NotFound("workflow", id)
	}
	return cloneDefinition(def), nil
}

// List returns all definitions ordered by creation time.
func (s *MemoryDefinitionStore) List(ctx context.Context) ([]*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, cloneDefinition(def))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update replaces a stored definition wholesale after re-validation.
func (s *MemoryDefinitionStore) Update(ctx context.Context, def *Definition) error {
	if err := Validate(def).Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.defs[def.ID]
	if !ok {
		return types.NotFound("workflow", def.ID)
	}
	def.CreatedAt = prev.CreatedAt
	def.UpdatedAt = time.Now()
	if def.IsDefault && !prev.IsDefault {
		s.clearDefaultLocked()
	}
	s.defs[def.ID] = cloneDefinition(def)
	return nil
}

// Delete removes a definition.
func (s *MemoryDefinitionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return types.NotFound("workflow", id)
	}
	delete(s.defs, id)
	return nil
}

// GetDefault returns the definition flagged as default.
func (s *MemoryDefinitionStore) GetDefault(ctx context.Context) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, def := range s.defs {
		if def.IsDefault {
			return cloneDefinition(def), nil
		}
	}
	return nil, types.NotFound("default workflow", "")
}

// SetDefault flags one definition as default, clearing any previous default.
func (s *MemoryDefinitionStore) SetDefault(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return types.NotFound("workflow", id)
	}
	s.clearDefaultLocked()
	def.IsDefault = true
	def.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryDefinitionStore) clearDefaultLocked() {
	for _, def := range s.defs {
		def.IsDefault = false
	}
}

func cloneDefinition(def *Definition) *Definition {
	cp := *def
	cp.Steps = make([]Step, len(def.Steps))
	copy(cp.Steps, def.Steps)
	return &cp
}
