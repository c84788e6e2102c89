package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/types"
)

// Gate drives tool calls through the lifecycle machine. Transitions are
// serialized per gate so two racing approve/deny calls resolve to exactly one
// winner; the loser gets an INVALID_STATE error.
type Gate struct {
	store  Store
	logger *zap.Logger
	mu     sync.Mutex
}

// NewGate creates a gate over the given store.
func NewGate(store Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		store:  store,
		logger: logger.With(zap.String("component", "toolcall_gate")),
	}
}

// Create records a new tool call in status pending with StartedAt set now.
// The input is serialized to JSON.
func (g *Gate) Create(ctx context.Context, executionID, nodeExecutionID, toolName string, input any) (*ToolCall, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, types.NewErrorf(types.ErrValidation, "tool input not serializable: %v", err)
	}
	tc := &ToolCall{
		ID:              uuid.New().String(),
		ExecutionID:     executionID,
		NodeExecutionID: nodeExecutionID,
		ToolName:        toolName,
		Input:           string(raw),
		Status:          StatusPending,
		StartedAt:       time.Now(),
	}
	if err := g.store.Save(ctx, tc); err != nil {
		return nil, err
	}
	g.logger.Debug("tool call created",
		zap.String("id", tc.ID),
		zap.String("tool", toolName),
		zap.String("node_execution_id", nodeExecutionID),
	)
	return tc, nil
}

// Get returns a tool call by id.
func (g *Gate) Get(ctx context.Context, id string) (*ToolCall, error) {
	return g.store.Get(ctx, id)
}

// AwaitPermission parks the call until the permission evaluator decides.
func (g *Gate) AwaitPermission(ctx context.Context, id string) (*ToolCall, error) {
	return g.transition(ctx, id, StatusAwaitingPermission, nil)
}

// Approve releases a permission-gated call for execution.
func (g *Gate) Approve(ctx context.Context, id string) (*ToolCall, error) {
	return g.transition(ctx, id, StatusApproved, nil)
}

// Deny terminally rejects a call; it will never run.
func (g *Gate) Deny(ctx context.Context, id string) (*ToolCall, error) {
	return g.transition(ctx, id, StatusDenied, nil)
}

// Start marks the call running, preserving the original StartedAt when one
// was already recorded at creation.
func (g *Gate) Start(ctx context.Context, id string) (*ToolCall, error) {
	return g.transition(ctx, id, StatusRunning, func(tc *ToolCall) {
		if tc.StartedAt.IsZero() {
			tc.StartedAt = time.Now()
		}
	})
}

// Complete finishes a running call successfully, serializing its output.
func (g *Gate) Complete(ctx context.Context, id string, output any) (*ToolCall, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, types.NewErrorf(types.ErrValidation, "tool output not serializable: %v", err)
	}
	return g.transition(ctx, id, StatusSuccess, func(tc *ToolCall) {
		now := time.Now()
		tc.Output = string(raw)
		tc.CompletedAt = &now
	})
}

// Fail finishes a running call with an error message.
func (g *Gate) Fail(ctx context.Context, id, errorMessage string) (*ToolCall, error) {
	return g.transition(ctx, id, StatusError, func(tc *ToolCall) {
		now := time.Now()
		tc.ErrorMessage = errorMessage
		tc.CompletedAt = &now
	})
}

func (g *Gate) transition(ctx context.Context, id string, to Status, mutate func(*ToolCall)) (*ToolCall, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tc, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(tc.Status, to) {
		return nil, types.InvalidState(
			fmt.Sprintf("tool call %s: illegal transition %s -> %s", id, tc.Status, to))
	}
	tc.Status = to
	if mutate != nil {
		mutate(tc)
	}
	if err := g.store.Update(ctx, tc); err != nil {
		return nil, err
	}
	g.logger.Debug("tool call transitioned",
		zap.String("id", id),
		zap.String("status", string(to)),
	)
	return tc, nil
}
