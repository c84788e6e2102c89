package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/agents"
	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/internal/metrics"
	"github.com/conductor-ai/conductor/review"
	"github.com/conductor-ai/conductor/toolcall"
	"github.com/conductor-ai/conductor/types"
	"github.com/conductor-ai/conductor/workflow"
)

// ActionFunc runs a host-side action step and returns its output.
type ActionFunc func(ctx context.Context, exec *Execution, step workflow.Step) (string, error)

// Config tunes driver behavior.
type Config struct {
	// Parallel dispatches independent ready steps concurrently within one
	// graph pass. Off by default; the sequential dependency-order traversal
	// is the safe baseline.
	Parallel bool `yaml:"parallel"`
	// ReviewTimeout bounds vote collection for one panel. Reviewers that do
	// not answer in time simply cast no vote, which the quorum gate turns
	// into an escalate outcome.
	ReviewTimeout time.Duration `yaml:"review_timeout"`
}

// DefaultConfig returns the baseline driver configuration.
func DefaultConfig() Config {
	return Config{ReviewTimeout: 2 * time.Minute}
}

// Deps collects the collaborators the driver composes.
type Deps struct {
	Definitions workflow.DefinitionStore
	Executions  Store
	Registry    *agents.Registry
	Delegator   *agents.Delegator
	Checkpoints *checkpoint.Controller
	Tools       *toolcall.Gate
	Reviews     *review.Manager
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Executor walks a definition's dependency graph and runs its steps.
type Executor struct {
	definitions workflow.DefinitionStore
	executions  Store
	registry    *agents.Registry
	delegator   *agents.Delegator
	checkpoints *checkpoint.Controller
	tools       *toolcall.Gate
	reviews     *review.Manager
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
	cfg         Config

	actionsMu sync.RWMutex
	actions   map[string]ActionFunc

	// usageMu guards execution-level usage totals when parallel dispatch is on.
	usageMu sync.Mutex
}

// New creates a driver from its collaborators.
func New(deps Deps, cfg Config) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop()
	}
	if cfg.ReviewTimeout == 0 {
		cfg.ReviewTimeout = DefaultConfig().ReviewTimeout
	}
	return &Executor{
		definitions: deps.Definitions,
		executions:  deps.Executions,
		registry:    deps.Registry,
		delegator:   deps.Delegator,
		checkpoints: deps.Checkpoints,
		tools:       deps.Tools,
		reviews:     deps.Reviews,
		metrics:     m,
		logger:      logger.With(zap.String("component", "executor")),
		tracer:      otel.Tracer("conductor/executor"),
		cfg:         cfg,
		actions:     make(map[string]ActionFunc),
	}
}

// RegisterAction binds a named host-side action used by action steps.
func (e *Executor) RegisterAction(name string, fn ActionFunc) {
	e.actionsMu.Lock()
	defer e.actionsMu.Unlock()
	e.actions[name] = fn
}

func (e *Executor) action(name string) (ActionFunc, bool) {
	e.actionsMu.RLock()
	defer e.actionsMu.RUnlock()
	fn, ok := e.actions[name]
	return fn, ok
}

// Start creates an execution for a stored workflow and drives it until it
// completes, fails, or halts at a checkpoint.
func (e *Executor) Start(ctx context.Context, workflowID string) (*Execution, error) {
	def, err := e.definitions.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if res := workflow.Validate(def); !res.Valid() {
		return nil, res.Err()
	}

	exec := &Execution{
		ID:         uuid.New().String(),
		WorkflowID: def.ID,
		SessionID:  uuid.New().String(),
		Status:     StatusPending,
		Nodes:      make(map[string]*NodeExecution),
		CreatedAt:  time.Now(),
	}
	if err := e.executions.Save(ctx, exec); err != nil {
		return nil, err
	}
	e.metrics.ExecutionsStarted.Inc()
	e.logger.Info("execution started",
		zap.String("execution_id", exec.ID),
		zap.String("workflow_id", def.ID),
		zap.String("workflow", def.Name),
	)
	return e.run(ctx, exec, def)
}

// Resume continues an execution halted at a checkpoint. The pending checkpoint
// must be decided first.
func (e *Executor) Resume(ctx context.Context, executionID string) (*Execution, error) {
	exec, err := e.executions.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.Status.Terminal() {
		return nil, types.InvalidState("execution " + executionID + " already finished")
	}
	pending, err := e.checkpoints.GetPending(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		return nil, types.InvalidState("execution " + executionID + " has an undecided checkpoint: " + pending.ID)
	}
	def, err := e.definitions.Get(ctx, exec.WorkflowID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, exec, def)
}

// Get returns an execution by id.
func (e *Executor) Get(ctx context.Context, id string) (*Execution, error) {
	return e.executions.Get(ctx, id)
}

// List returns executions, optionally filtered to one workflow.
func (e *Executor) List(ctx context.Context, workflowID string) ([]*Execution, error) {
	return e.executions.List(ctx, workflowID)
}

// RequestTool records a tool invocation for a step, applying the step's
// effective tool policy: a tool outside the allow-list, or on the deny-list,
// is created and immediately denied rather than executed. Allowed calls are
// returned in status pending for the host to start.
func (e *Executor) RequestTool(ctx context.Context, executionID, stepID, toolName string, input any) (*toolcall.ToolCall, error) {
	exec, err := e.executions.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	def, err := e.definitions.Get(ctx, exec.WorkflowID)
	if err != nil {
		return nil, err
	}
	step, ok := def.Step(stepID)
	if !ok {
		return nil, types.NotFound("step", stepID)
	}

	nodeExecutionID := ""
	if node := exec.Node(stepID); node != nil {
		nodeExecutionID = node.ID
	}
	tc, err := e.tools.Create(ctx, executionID, nodeExecutionID, toolName, input)
	if err != nil {
		return nil, err
	}
	e.metrics.ToolCallTransitions.WithLabelValues(string(tc.Status)).Inc()

	if !def.ToolAllowed(step, toolName) {
		e.logger.Warn("tool denied by policy",
			zap.String("execution_id", executionID),
			zap.String("step_id", stepID),
			zap.String("tool", toolName),
		)
		tc, err = e.tools.Deny(ctx, tc.ID)
		if err != nil {
			return nil, err
		}
		e.metrics.ToolCallTransitions.WithLabelValues(string(tc.Status)).Inc()
	}
	return tc, nil
}

// Cleanup deletes an execution and everything hanging off it: checkpoints,
// tool calls and review panels.
func (e *Executor) Cleanup(ctx context.Context, executionID string) error {
	if err := e.checkpoints.Cleanup(ctx, executionID); err != nil {
		return err
	}
	if err := e.tools.Cleanup(ctx, executionID); err != nil {
		return err
	}
	if err := e.reviews.Cleanup(ctx, executionID); err != nil {
		return err
	}
	return e.executions.Delete(ctx, executionID)
}
