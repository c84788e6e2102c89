// Package executor drives workflow executions: it walks a definition's
// dependency graph, delegates ready steps to agents, halts at checkpoints,
// routes review steps through voting panels and applies the definition's
// error policy.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/conductor-ai/conductor/types"
)

// Status is an execution's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	// StatusAwaitingInput marks an execution halted at an undecided
	// checkpoint. Not an error; callers poll or resume after recording
	// a decision.
	StatusAwaitingInput Status = "awaiting_input"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Terminal reports whether the status admits no further scheduling.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NodeStatus is one step invocation's state within an execution.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
	// NodeSkipped marks steps unreachable because a dependency failed or a
	// review-outcome gate did not match.
	NodeSkipped NodeStatus = "skipped"
)

func (s NodeStatus) terminal() bool {
	return s == NodeCompleted || s == NodeFailed || s == NodeSkipped
}

// NodeExecution is one step invocation. Retried steps reuse the node and
// increment Attempt.
type NodeExecution struct {
	ID          string           `json:"id"`
	ExecutionID string           `json:"execution_id"`
	StepID      string           `json:"step_id"`
	AgentID     string           `json:"agent_id,omitempty"`
	Status      NodeStatus       `json:"status"`
	Attempt     int              `json:"attempt"`
	Output      string           `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	// ReviewOutcome holds the aggregated panel outcome for review steps.
	ReviewOutcome string           `json:"review_outcome,omitempty"`
	Usage         types.TokenUsage `json:"usage"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// Execution is one run of a workflow definition.
type Execution struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	// SessionID threads through delegation calls so the host can correlate
	// agent traffic per run.
	SessionID  string                    `json:"session_id"`
	Status     Status                    `json:"status"`
	Iterations int                       `json:"iterations"`
	Nodes      map[string]*NodeExecution `json:"nodes"`
	Error      string                    `json:"error,omitempty"`
	Usage      types.TokenUsage          `json:"usage"`
	CreatedAt  time.Time                 `json:"created_at"`
	StartedAt  *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// Node returns the node execution for a step id, or nil when the step has not
// been entered yet.
func (e *Execution) Node(stepID string) *NodeExecution {
	return e.Nodes[stepID]
}

// Store persists executions together with their nodes.
type Store interface {
	Save(ctx context.Context, exec *Execution) error
	Get(ctx context.Context, id string) (*Execution, error)
	Update(ctx context.Context, exec *Execution) error
	List(ctx context.Context, workflowID string) ([]*Execution, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	executions map[string]*Execution
	order      []string
	mu         sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{executions: make(map[string]*Execution)}
}

func cloneExecution(e *Execution) *Execution {
	clone := *e
	clone.Nodes = make(map[string]*NodeExecution, len(e.Nodes))
	for id, node := range e.Nodes {
		nc := *node
		clone.Nodes[id] = &nc
	}
	return &clone
}

func (s *MemoryStore) Save(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.executions[exec.ID]; !exists {
		s.order = append(s.order, exec.ID)
	}
	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return nil, types.NotFound("execution", id)
	}
	return cloneExecution(exec), nil
}

func (s *MemoryStore) Update(ctx context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[exec.ID]; !ok {
		return types.NotFound("execution", exec.ID)
	}
	s.executions[exec.ID] = cloneExecution(exec)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, workflowID string) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Execution
	for _, id := range s.order {
		exec := s.executions[id]
		if workflowID != "" && exec.WorkflowID != workflowID {
			continue
		}
		out = append(out, cloneExecution(exec))
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[id]; !ok {
		return types.NotFound("execution", id)
	}
	delete(s.executions, id)
	kept := s.order[:0]
	for _, existing := range s.order {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	s.order = kept
	return nil
}
