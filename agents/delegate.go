package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/conductor-ai/conductor/types"
)

// DelegationMeta is the side-channel information passed to the executor
// callback alongside the message.
type DelegationMeta struct {
	SessionID     string `json:"session_id,omitempty"`
	DelegatedFrom string `json:"delegated_from,omitempty"`
}

// ExecutorFunc performs the actual agent inference. It is supplied by the
// host; the core never implements the model call itself.
type ExecutorFunc func(ctx context.Context, agent Agent, message string, meta DelegationMeta) (*types.AgentMessage, error)

// DelegationRequest routes a task from one agent to another.
type DelegationRequest struct {
	FromAgentID string `json:"from_agent_id,omitempty"`
	ToAgentID   string `json:"to_agent_id"`
	Task        string `json:"task"`
	Context     string `json:"context,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

// DelegationResult is the soft-failure result of a delegation. Expected
// failures (unknown agent, missing executor, executor error) populate Error
// with Success false; Delegate never returns a Go error.
type DelegationResult struct {
	Success    bool             `json:"success"`
	AgentID    string           `json:"agent_id,omitempty"`
	Output     string           `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"duration_ms"`
	Usage      types.TokenUsage `json:"usage"`
}

// Delegator performs delegation calls against a registry.
type Delegator struct {
	registry *Registry
	exec     ExecutorFunc
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// DelegatorOption configures a Delegator.
type DelegatorOption func(*Delegator)

// WithRateLimit throttles outbound executor calls across all executions.
func WithRateLimit(perSecond float64, burst int) DelegatorOption {
	return func(d *Delegator) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewDelegator creates a delegator. exec may be nil; delegation then fails
// softly until an executor is configured.
func NewDelegator(registry *Registry, exec ExecutorFunc, logger *zap.Logger, opts ...DelegatorOption) *Delegator {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Delegator{
		registry: registry,
		exec:     exec,
		logger:   logger.With(zap.String("component", "delegator")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Delegate routes req.Task to the target agent through the executor callback.
// The target's status moves idle → thinking → idle on success, or → error when
// the executor fails. DurationMS is always recorded.
func (d *Delegator) Delegate(ctx context.Context, req DelegationRequest) (result DelegationResult) {
	start := time.Now()
	defer func() {
		result.DurationMS = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			d.registry.setStatus(req.ToAgentID, StatusError)
			result = DelegationResult{
				AgentID:    req.ToAgentID,
				Error:      fmt.Sprintf("executor panic: %v", r),
				DurationMS: time.Since(start).Milliseconds(),
			}
			d.logger.Error("executor panicked",
				zap.String("agent_id", req.ToAgentID),
				zap.Any("panic", r),
			)
		}
	}()

	agent, err := d.registry.Get(req.ToAgentID)
	if err != nil {
		return DelegationResult{Error: err.Error()}
	}
	result.AgentID = agent.ID

	if d.exec == nil {
		return DelegationResult{AgentID: agent.ID, Error: "no agent executor configured"}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return DelegationResult{AgentID: agent.ID, Error: fmt.Sprintf("delegation canceled: %v", err)}
		}
	}

	message := req.Task
	if req.Context != "" {
		message = req.Context + "\n\n" + req.Task
	}

	d.registry.setStatus(agent.ID, StatusThinking)
	msg, err := d.exec(ctx, *agent, message, DelegationMeta{
		SessionID:     req.SessionID,
		DelegatedFrom: req.FromAgentID,
	})
	if err != nil {
		d.registry.setStatus(agent.ID, StatusError)
		d.logger.Warn("delegation failed",
			zap.String("agent_id", agent.ID),
			zap.String("from", req.FromAgentID),
			zap.Error(err),
		)
		return DelegationResult{AgentID: agent.ID, Error: err.Error()}
	}

	d.registry.recordCompletion(agent.ID, msg.Usage)
	d.registry.setStatus(agent.ID, StatusIdle)

	d.logger.Debug("delegation completed",
		zap.String("agent_id", agent.ID),
		zap.String("from", req.FromAgentID),
		zap.Int("total_tokens", msg.Usage.TotalTokens),
	)

	return DelegationResult{
		Success: true,
		AgentID: agent.ID,
		Output:  msg.Content,
		Usage:   msg.Usage,
	}
}
