package toolcall

import (
	"context"
	"sort"
	"sync"

	"github.com/conductor-ai/conductor/types"
)

// MemoryStore is an in-memory Store preserving insertion order.
type MemoryStore struct {
	calls map[string]*ToolCall
	order []string
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: make(map[string]*ToolCall)}
}

func (s *MemoryStore) Save(ctx context.Context, tc *ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.calls[tc.ID]; !exists {
		s.order = append(s.order, tc.ID)
	}
	clone := *tc
	s.calls[tc.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.calls[id]
	if !ok {
		return nil, types.NotFound("tool call", id)
	}
	clone := *tc
	return &clone, nil
}

func (s *MemoryStore) Update(ctx context.Context, tc *ToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[tc.ID]; !ok {
		return types.NotFound("tool call", tc.ID)
	}
	// Last writer wins; the gate serializes transitions above this layer.
	clone := *tc
	s.calls[tc.ID] = &clone
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*ToolCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ToolCall
	for _, id := range s.order {
		tc := s.calls[id]
		if filter.ExecutionID != "" && tc.ExecutionID != filter.ExecutionID {
			continue
		}
		if filter.NodeExecutionID != "" && tc.NodeExecutionID != filter.NodeExecutionID {
			continue
		}
		if filter.Status != "" && tc.Status != filter.Status {
			continue
		}
		clone := *tc
		out = append(out, &clone)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteByExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, id := range s.order {
		if s.calls[id].ExecutionID == executionID {
			delete(s.calls, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}
