package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/types"
)

// Controller creates checkpoints and records decisions against a Store.
//
// Creating a second checkpoint while an earlier one is undecided is permitted;
// GetPending returns only the most recently created undecided checkpoint, so
// callers that queue checkpoints must decide them newest-first.
type Controller struct {
	store  Store
	logger *zap.Logger
}

// NewController creates a controller.
func NewController(store Store, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:  store,
		logger: logger.With(zap.String("component", "checkpoint_controller")),
	}
}

// CreateOptions carries optional fields for Create.
type CreateOptions struct {
	NodeExecutionID string
	PromptMessage   string
	Options         []string
}

// Create stores a new undecided checkpoint for an execution.
func (c *Controller) Create(ctx context.Context, executionID string, cpType Type, opts CreateOptions) (*Checkpoint, error) {
	cp := &Checkpoint{
		ID:              uuid.New().String(),
		ExecutionID:     executionID,
		NodeExecutionID: opts.NodeExecutionID,
		CheckpointType:  cpType,
		PromptMessage:   opts.PromptMessage,
		Options:         opts.Options,
		CreatedAt:       time.Now(),
	}
	if err := c.store.Save(ctx, cp); err != nil {
		return nil, err
	}
	c.logger.Info("checkpoint created",
		zap.String("id", cp.ID),
		zap.String("execution_id", executionID),
		zap.String("type", string(cpType)),
	)
	return cp, nil
}

// GetPending returns the most recently created undecided checkpoint for the
// execution, or nil when none is pending.
func (c *Controller) GetPending(ctx context.Context, executionID string) (*Checkpoint, error) {
	cps, err := c.store.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	for _, cp := range cps {
		if !cp.Decided() {
			return cp, nil
		}
	}
	return nil, nil
}

// HasPending reports whether the execution has an undecided checkpoint.
func (c *Controller) HasPending(ctx context.Context, executionID string) (bool, error) {
	cp, err := c.GetPending(ctx, executionID)
	if err != nil {
		return false, err
	}
	return cp != nil, nil
}

// Get returns a checkpoint by id.
func (c *Controller) Get(ctx context.Context, id string) (*Checkpoint, error) {
	return c.store.Get(ctx, id)
}

// List returns an execution's checkpoints, newest first.
func (c *Controller) List(ctx context.Context, executionID string) ([]*Checkpoint, error) {
	return c.store.ListByExecution(ctx, executionID)
}

// RecordDecision sets decision, feedback, and DecidedAt. It returns false with
// no mutation when the checkpoint does not exist, and an INVALID_STATE error
// when a decision was already recorded: DecidedAt is set at most once.
func (c *Controller) RecordDecision(ctx context.Context, id, decision, feedback string) (bool, error) {
	cp, err := c.store.Get(ctx, id)
	if err != nil {
		if types.IsCode(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if cp.Decided() {
		return false, types.InvalidState("checkpoint decision already recorded: " + id)
	}

	now := time.Now()
	cp.Decision = decision
	cp.Feedback = feedback
	cp.DecidedAt = &now
	if err := c.store.Update(ctx, cp); err != nil {
		return false, err
	}

	c.logger.Info("checkpoint decided",
		zap.String("id", id),
		zap.String("decision", decision),
	)
	return true, nil
}

// Cleanup removes every checkpoint of an execution. This is the only way
// checkpoints are deleted.
func (c *Controller) Cleanup(ctx context.Context, executionID string) error {
	return c.store.DeleteByExecution(ctx, executionID)
}
