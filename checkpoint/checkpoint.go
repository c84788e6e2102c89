// Package checkpoint records human/arbiter decision points that pause a
// workflow execution and let it resume once a decision is recorded.
package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conductor-ai/conductor/types"
)

// Type classifies what kind of decision a checkpoint asks for.
type Type string

const (
	TypeApproval Type = "approval"
	TypeInput    Type = "input"
	TypeReview   Type = "review"
)

// Checkpoint is one pause point. DecidedAt is set at most once; a checkpoint
// is never deleted except by cleanup of its whole execution.
type Checkpoint struct {
	ID              string     `json:"id"`
	ExecutionID     string     `json:"execution_id"`
	NodeExecutionID string     `json:"node_execution_id,omitempty"`
	CheckpointType  Type       `json:"checkpoint_type"`
	PromptMessage   string     `json:"prompt_message,omitempty"`
	Options         []string   `json:"options,omitempty"`
	Decision        string     `json:"decision,omitempty"`
	Feedback        string     `json:"feedback,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
}

// Decided reports whether a decision has been recorded.
func (c *Checkpoint) Decided() bool {
	return c.DecidedAt != nil
}

// Store persists checkpoints. ListByExecution returns newest first.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Get(ctx context.Context, id string) (*Checkpoint, error)
	Update(ctx context.Context, cp *Checkpoint) error
	ListByExecution(ctx context.Context, executionID string) ([]*Checkpoint, error)
	DeleteByExecution(ctx context.Context, executionID string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*Checkpoint)}
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cp
	s.checkpoints[cp.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[id]
	if !ok {
		return nil, types.NotFound("checkpoint", id)
	}
	clone := *cp
	return &clone, nil
}

func (s *MemoryStore) Update(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checkpoints[cp.ID]; !ok {
		return types.NotFound("checkpoint", cp.ID)
	}
	clone := *cp
	s.checkpoints[cp.ID] = &clone
	return nil
}

func (s *MemoryStore) ListByExecution(ctx context.Context, executionID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Checkpoint
	for _, cp := range s.checkpoints {
		if cp.ExecutionID == executionID {
			clone := *cp
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteByExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cp := range s.checkpoints {
		if cp.ExecutionID == executionID {
			delete(s.checkpoints, id)
		}
	}
	return nil
}
