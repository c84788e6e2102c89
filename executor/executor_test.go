package executor

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-ai/conductor/agents"
	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/review"
	"github.com/conductor-ai/conductor/toolcall"
	"github.com/conductor-ai/conductor/types"
	"github.com/conductor-ai/conductor/workflow"
)

// env wires a full driver over in-memory stores with a scripted agent
// executor.
type env struct {
	defs        *workflow.MemoryDefinitionStore
	registry    *agents.Registry
	checkpoints *checkpoint.Controller
	gate        *toolcall.Gate
	reviews     *review.Manager
	driver      *Executor
}

func newEnv(t *testing.T, fn agents.ExecutorFunc, cfg Config) *env {
	t.Helper()
	e := &env{
		defs:        workflow.NewMemoryDefinitionStore(),
		registry:    agents.NewRegistry(nil),
		checkpoints: checkpoint.NewController(checkpoint.NewMemoryStore(), nil),
		gate:        toolcall.NewGate(toolcall.NewMemoryStore(), nil),
		reviews:     review.NewManager(review.NewMemoryStore(), nil),
	}
	e.driver = New(Deps{
		Definitions: e.defs,
		Executions:  NewMemoryStore(),
		Registry:    e.registry,
		Delegator:   agents.NewDelegator(e.registry, fn, nil),
		Checkpoints: e.checkpoints,
		Tools:       e.gate,
		Reviews:     e.reviews,
	}, cfg)
	return e
}

func (e *env) addWorkflow(t *testing.T, def *workflow.Definition) string {
	t.Helper()
	def.Trigger = workflow.Trigger{Type: "manual"}
	require.NoError(t, e.defs.Create(context.Background(), def))
	return def.ID
}

// echoExecutor answers every delegation with a per-agent canned reply, or
// "<agent>: <task>" when none is scripted.
func echoExecutor(replies map[string]string) agents.ExecutorFunc {
	return func(ctx context.Context, agent agents.Agent, message string, meta agents.DelegationMeta) (*types.AgentMessage, error) {
		if reply, ok := replies[agent.ID]; ok {
			return &types.AgentMessage{Content: reply, Usage: types.TokenUsage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10}}, nil
		}
		return &types.AgentMessage{Content: agent.ID + ": " + message, Usage: types.TokenUsage{TotalTokens: 10}}, nil
	}
}

// ---------------------------------------------------------------------------
// Basic traversal
// ---------------------------------------------------------------------------

func TestStart_LinearWorkflowCompletes(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "build",
		Steps: []workflow.Step{
			{ID: "plan", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "plan it"},
			{ID: "code", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "write it", Depends: []string{"plan"}},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	require.NotNil(t, exec.CompletedAt)
	assert.Equal(t, 20, exec.Usage.TotalTokens)

	plan := exec.Node("plan")
	code := exec.Node("code")
	require.NotNil(t, plan)
	require.NotNil(t, code)
	assert.Equal(t, NodeCompleted, plan.Status)
	assert.Equal(t, NodeCompleted, code.Status)
	assert.Equal(t, 1, plan.Attempt)
	// The dependency's output is threaded into the next delegation as context.
	assert.Contains(t, code.Output, "plan it")
}

func TestStart_MentionRoutesStep(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "primary", Name: "Primary", Role: agents.RolePrimary})
	e.registry.Register(agents.Config{ID: "reviewer", Name: "Reviewer"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "routed",
		Steps: []workflow.Step{
			{ID: "s1", Type: workflow.StepTypeAgent, Prompt: "@reviewer check this"},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, "reviewer", exec.Node("s1").AgentID)
	// The mention is stripped before delegation.
	assert.Equal(t, "reviewer: check this", exec.Node("s1").Output)
}

func TestStart_FallsBackToPrimary(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "boss", Name: "Boss", Role: agents.RolePrimary})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:  "fallback",
		Steps: []workflow.Step{{ID: "s1", Type: workflow.StepTypeAgent, Prompt: "do it"}},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "boss", exec.Node("s1").AgentID)
}

func TestStart_UnknownWorkflow(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	_, err := e.driver.Start(context.Background(), "missing")
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

func TestCheckpoint_HaltAndResume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "gated",
		Steps: []workflow.Step{
			{ID: "prep", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "prep"},
			{ID: "deploy", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "deploy", Depends: []string{"prep"}, Checkpoint: true},
		},
	})

	exec, err := e.driver.Start(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingInput, exec.Status)
	assert.Equal(t, NodeCompleted, exec.Node("prep").Status)
	assert.Equal(t, NodePending, exec.Node("deploy").Status)

	cp, err := e.checkpoints.GetPending(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, exec.Node("deploy").ID, cp.NodeExecutionID)

	// Resuming before the decision is a caller mistake.
	_, err = e.driver.Resume(ctx, exec.ID)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))

	ok, err := e.checkpoints.RecordDecision(ctx, cp.ID, "approve", "ship it")
	require.NoError(t, err)
	require.True(t, ok)

	exec, err = e.driver.Resume(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, NodeCompleted, exec.Node("deploy").Status)
}

func TestCheckpoint_RejectSkipsStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "rejected",
		Steps: []workflow.Step{
			{ID: "deploy", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "deploy", Checkpoint: true},
			{ID: "announce", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "announce", Depends: []string{"deploy"}},
		},
	})

	exec, err := e.driver.Start(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingInput, exec.Status)

	cp, err := e.checkpoints.GetPending(ctx, exec.ID)
	require.NoError(t, err)
	_, err = e.checkpoints.RecordDecision(ctx, cp.ID, "reject", "not now")
	require.NoError(t, err)

	exec, err = e.driver.Resume(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, NodeSkipped, exec.Node("deploy").Status)
	assert.Equal(t, NodeSkipped, exec.Node("announce").Status)
}

// ---------------------------------------------------------------------------
// Error policy
// ---------------------------------------------------------------------------

func failingExecutor(failures *atomic.Int32, failCount int32) agents.ExecutorFunc {
	return func(ctx context.Context, agent agents.Agent, message string, meta agents.DelegationMeta) (*types.AgentMessage, error) {
		if failures.Add(1) <= failCount {
			return nil, fmt.Errorf("model unavailable")
		}
		return &types.AgentMessage{Content: "recovered"}, nil
	}
}

func TestOnError_FailAborts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	e := newEnv(t, failingExecutor(&calls, 100), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:    "fragile",
		OnError: workflow.ErrorPolicyFail,
		Steps: []workflow.Step{
			{ID: "s1", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "go"},
			{ID: "s2", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "after", Depends: []string{"s1"}},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "s1")
	assert.Equal(t, NodeFailed, exec.Node("s1").Status)
	assert.Nil(t, exec.Node("s2"))
}

func TestOnError_RetryRecovers(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	e := newEnv(t, failingExecutor(&calls, 2), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:    "flaky",
		OnError: workflow.ErrorPolicyRetry,
		Steps:   []workflow.Step{{ID: "s1", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "go"}},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, 3, exec.Node("s1").Attempt)
	assert.Equal(t, "recovered", exec.Node("s1").Output)
}

func TestOnError_RetryHitsIterationLimit(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	e := newEnv(t, failingExecutor(&calls, 1000), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:          "doomed",
		OnError:       workflow.ErrorPolicyRetry,
		MaxIterations: 4,
		Steps:         []workflow.Step{{ID: "s1", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "go"}},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "iteration limit")
	assert.Equal(t, 4, exec.Iterations)
}

func TestOnError_ContinueSkipsDependents(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	fn := func(ctx context.Context, agent agents.Agent, message string, meta agents.DelegationMeta) (*types.AgentMessage, error) {
		if strings.Contains(message, "broken") {
			return nil, fmt.Errorf("boom")
		}
		calls.Add(1)
		return &types.AgentMessage{Content: "ok"}, nil
	}
	e := newEnv(t, fn, DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:    "partial",
		OnError: workflow.ErrorPolicyContinue,
		Steps: []workflow.Step{
			{ID: "bad", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "broken"},
			{ID: "downstream", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "needs bad", Depends: []string{"bad"}},
			{ID: "independent", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "fine"},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, NodeFailed, exec.Node("bad").Status)
	assert.Equal(t, NodeSkipped, exec.Node("downstream").Status)
	assert.Equal(t, NodeCompleted, exec.Node("independent").Status)
}

// ---------------------------------------------------------------------------
// Actions and tool policy
// ---------------------------------------------------------------------------

func TestActionStep(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.driver.RegisterAction("notify", func(ctx context.Context, exec *Execution, step workflow.Step) (string, error) {
		return "notified", nil
	})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:  "actions",
		Steps: []workflow.Step{{ID: "s1", Type: workflow.StepTypeAction, Action: "notify"}},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, "notified", exec.Node("s1").Output)
}

func TestActionStep_UnknownActionFails(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())

	id := e.addWorkflow(t, &workflow.Definition{
		Name:  "actions",
		Steps: []workflow.Step{{ID: "s1", Type: workflow.StepTypeAction, Action: "vanish"}},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Contains(t, exec.Node("s1").Error, "unknown action")
}

func TestRequestTool_PolicyDenies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name:               "tooled",
		DefaultDeniedTools: []string{"rm_rf"},
		Steps: []workflow.Step{
			{ID: "s1", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "go", AllowedTools: []string{"read_file"}},
		},
	})
	exec, err := e.driver.Start(ctx, id)
	require.NoError(t, err)

	tc, err := e.driver.RequestTool(ctx, exec.ID, "s1", "read_file", nil)
	require.NoError(t, err)
	assert.Equal(t, toolcall.StatusPending, tc.Status)
	assert.Equal(t, exec.Node("s1").ID, tc.NodeExecutionID)

	tc, err = e.driver.RequestTool(ctx, exec.ID, "s1", "write_file", nil)
	require.NoError(t, err)
	assert.Equal(t, toolcall.StatusDenied, tc.Status, "outside the step allow-list")

	tc, err = e.driver.RequestTool(ctx, exec.ID, "s1", "rm_rf", nil)
	require.NoError(t, err)
	assert.Equal(t, toolcall.StatusDenied, tc.Status)
}

// ---------------------------------------------------------------------------
// Review steps
// ---------------------------------------------------------------------------

func TestReviewStep_OutcomeRoutesDownstream(t *testing.T) {
	t.Parallel()
	replies := map[string]string{
		"r1": "VOTE: approve\nFEEDBACK: clean",
		"r2": "VOTE: approve\nFEEDBACK: fine",
	}
	e := newEnv(t, echoExecutor(replies), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})
	e.registry.Register(agents.Config{ID: "r1", Name: "Reviewer One"})
	e.registry.Register(agents.Config{ID: "r2", Name: "Reviewer Two"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "reviewed",
		Steps: []workflow.Step{
			{ID: "code", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "write it"},
			{ID: "panel", Type: workflow.StepTypeReview, Prompt: "judge it", Depends: []string{"code"},
				Review: &workflow.ReviewSpec{
					Reviewers: []workflow.ReviewerSpec{{AgentID: "r1"}, {AgentID: "r2"}},
					Strategy:  "majority",
				}},
			{ID: "merge", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "merge", Depends: []string{"panel"}, When: "approved"},
			{ID: "rework", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "rework", Depends: []string{"panel"}, When: "queue_changes"},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, "approved", exec.Node("panel").ReviewOutcome)
	assert.Equal(t, NodeCompleted, exec.Node("merge").Status)
	assert.Equal(t, NodeSkipped, exec.Node("rework").Status)
}

func TestReviewStep_SilentReviewersEscalate(t *testing.T) {
	t.Parallel()
	// Reviewers exist in config but are not registered, so delegation fails
	// softly and no votes arrive. The quorum gate escalates.
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "silent",
		Steps: []workflow.Step{
			{ID: "panel", Type: workflow.StepTypeReview, Prompt: "judge",
				Review: &workflow.ReviewSpec{
					Reviewers: []workflow.ReviewerSpec{{AgentID: "ghost-1"}, {AgentID: "ghost-2"}},
				}},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, string(review.OutcomeEscalate), exec.Node("panel").ReviewOutcome)
}

func TestReviewStep_UnparsedReplyCountsAsAbstain(t *testing.T) {
	t.Parallel()
	replies := map[string]string{
		"r1": "VOTE: approve",
		"r2": "just some prose with no verdict",
	}
	e := newEnv(t, echoExecutor(replies), DefaultConfig())
	e.registry.Register(agents.Config{ID: "r1", Name: "Reviewer One"})
	e.registry.Register(agents.Config{ID: "r2", Name: "Reviewer Two"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "abstaining",
		Steps: []workflow.Step{
			{ID: "panel", Type: workflow.StepTypeReview, Prompt: "judge",
				Review: &workflow.ReviewSpec{
					Reviewers: []workflow.ReviewerSpec{{AgentID: "r1"}, {AgentID: "r2"}},
					Strategy:  "majority",
				}},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "approved", exec.Node("panel").ReviewOutcome, "the abstain carries no weight")
}

// ---------------------------------------------------------------------------
// Parallel dispatch
// ---------------------------------------------------------------------------

func TestParallel_IndependentBranches(t *testing.T) {
	t.Parallel()
	e := newEnv(t, echoExecutor(nil), Config{Parallel: true})
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "fanout",
		Steps: []workflow.Step{
			{ID: "root", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "root"},
			{ID: "left", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "left", Depends: []string{"root"}},
			{ID: "right", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "right", Depends: []string{"root"}},
			{ID: "join", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "join", Depends: []string{"left", "right"}},
		},
	})

	exec, err := e.driver.Start(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	for _, stepID := range []string{"root", "left", "right", "join"} {
		assert.Equal(t, NodeCompleted, exec.Node(stepID).Status, stepID)
	}
	assert.Equal(t, 40, exec.Usage.TotalTokens)
}

// ---------------------------------------------------------------------------
// Cleanup
// ---------------------------------------------------------------------------

func TestCleanup_RemovesEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t, echoExecutor(nil), DefaultConfig())
	e.registry.Register(agents.Config{ID: "coder", Name: "Coder"})

	id := e.addWorkflow(t, &workflow.Definition{
		Name: "ephemeral",
		Steps: []workflow.Step{
			{ID: "s1", Type: workflow.StepTypeAgent, Agent: "coder", Prompt: "go", Checkpoint: true},
		},
	})
	exec, err := e.driver.Start(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingInput, exec.Status)

	require.NoError(t, e.driver.Cleanup(ctx, exec.ID))

	_, err = e.driver.Get(ctx, exec.ID)
	assert.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
	pending, err := e.checkpoints.GetPending(ctx, exec.ID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}
