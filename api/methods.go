package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/agents"
	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/executor"
	"github.com/conductor-ai/conductor/review"
	"github.com/conductor-ai/conductor/toolcall"
	"github.com/conductor-ai/conductor/workflow"
)

// Services are the components the method surface fronts.
type Services struct {
	Workflows   workflow.DefinitionStore
	Checkpoints *checkpoint.Controller
	Reviews     *review.Manager
	Tools       *toolcall.Gate
	Registry    *agents.Registry
	Delegator   *agents.Delegator
	Driver      *executor.Executor
}

// NewServer builds a dispatcher with the full method surface registered.
func NewServer(s Services, logger *zap.Logger) *Dispatcher {
	d := NewDispatcher(logger)
	registerWorkflowMethods(d, s)
	registerCheckpointMethods(d, s)
	registerReviewMethods(d, s)
	registerToolCallMethods(d, s)
	registerAgentMethods(d, s)
	registerExecutionMethods(d, s)
	return d
}

type idParams struct {
	ID string `json:"id"`
}

type executionParams struct {
	ExecutionID string `json:"execution_id"`
}

func registerWorkflowMethods(d *Dispatcher, s Services) {
	type definitionParams struct {
		Definition workflow.Definition `json:"definition"`
	}
	d.Register("workflow/create", typed(func(ctx context.Context, p definitionParams) (any, error) {
		def := p.Definition
		if err := s.Workflows.Create(ctx, &def); err != nil {
			return nil, err
		}
		return &def, nil
	}))
	d.Register("workflow/get", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Workflows.Get(ctx, p.ID)
	}))
	d.Register("workflow/list", typed(func(ctx context.Context, _ struct{}) (any, error) {
		return s.Workflows.List(ctx)
	}))
	d.Register("workflow/update", typed(func(ctx context.Context, p definitionParams) (any, error) {
		def := p.Definition
		if err := s.Workflows.Update(ctx, &def); err != nil {
			return nil, err
		}
		return &def, nil
	}))
	d.Register("workflow/delete", typed(func(ctx context.Context, p idParams) (any, error) {
		return nil, s.Workflows.Delete(ctx, p.ID)
	}))
	d.Register("workflow/setDefault", typed(func(ctx context.Context, p idParams) (any, error) {
		return nil, s.Workflows.SetDefault(ctx, p.ID)
	}))
	d.Register("workflow/getDefault", typed(func(ctx context.Context, _ struct{}) (any, error) {
		return s.Workflows.GetDefault(ctx)
	}))
}

func registerCheckpointMethods(d *Dispatcher, s Services) {
	type createParams struct {
		ExecutionID     string   `json:"execution_id"`
		Type            string   `json:"type"`
		NodeExecutionID string   `json:"node_execution_id,omitempty"`
		PromptMessage   string   `json:"prompt_message,omitempty"`
		Options         []string `json:"options,omitempty"`
	}
	type decisionParams struct {
		ID       string `json:"id"`
		Decision string `json:"decision"`
		Feedback string `json:"feedback,omitempty"`
	}
	d.Register("checkpoint/create", typed(func(ctx context.Context, p createParams) (any, error) {
		return s.Checkpoints.Create(ctx, p.ExecutionID, checkpoint.Type(p.Type), checkpoint.CreateOptions{
			NodeExecutionID: p.NodeExecutionID,
			PromptMessage:   p.PromptMessage,
			Options:         p.Options,
		})
	}))
	d.Register("checkpoint/get", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Checkpoints.Get(ctx, p.ID)
	}))
	d.Register("checkpoint/list", typed(func(ctx context.Context, p executionParams) (any, error) {
		return s.Checkpoints.List(ctx, p.ExecutionID)
	}))
	d.Register("checkpoint/getPending", typed(func(ctx context.Context, p executionParams) (any, error) {
		return s.Checkpoints.GetPending(ctx, p.ExecutionID)
	}))
	d.Register("checkpoint/recordDecision", typed(func(ctx context.Context, p decisionParams) (any, error) {
		recorded, err := s.Checkpoints.RecordDecision(ctx, p.ID, p.Decision, p.Feedback)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"recorded": recorded}, nil
	}))
}

func registerReviewMethods(d *Dispatcher, s Services) {
	type createParams struct {
		NodeExecutionID string             `json:"node_execution_id"`
		ExecutionID     string             `json:"execution_id"`
		Config          review.PanelConfig `json:"config"`
	}
	type voteParams struct {
		PanelID    string          `json:"panel_id"`
		ReviewerID string          `json:"reviewer_id"`
		Vote       review.VoteKind `json:"vote"`
		Feedback   string          `json:"feedback,omitempty"`
		Issues     []review.Issue  `json:"issues,omitempty"`
		Weight     float64         `json:"weight,omitempty"`
	}
	type panelParams struct {
		PanelID string `json:"panel_id"`
	}
	d.Register("reviewPanel/create", typed(func(ctx context.Context, p createParams) (any, error) {
		return s.Reviews.CreatePanel(ctx, p.NodeExecutionID, p.ExecutionID, p.Config)
	}))
	d.Register("reviewPanel/startCollecting", typed(func(ctx context.Context, p panelParams) (any, error) {
		return s.Reviews.StartCollecting(ctx, p.PanelID)
	}))
	d.Register("reviewPanel/addVote", typed(func(ctx context.Context, p voteParams) (any, error) {
		return s.Reviews.AddVote(ctx, p.PanelID, p.ReviewerID, p.Vote, p.Feedback, p.Issues, p.Weight)
	}))
	d.Register("reviewPanel/aggregate", typed(func(ctx context.Context, p panelParams) (any, error) {
		return s.Reviews.Aggregate(ctx, p.PanelID)
	}))
	d.Register("reviewPanel/stats", typed(func(ctx context.Context, p panelParams) (any, error) {
		return s.Reviews.Stats(ctx, p.PanelID)
	}))
}

func registerToolCallMethods(d *Dispatcher, s Services) {
	type createParams struct {
		ExecutionID     string `json:"execution_id"`
		NodeExecutionID string `json:"node_execution_id,omitempty"`
		ToolName        string `json:"tool_name"`
		Input           any    `json:"input,omitempty"`
	}
	type completeParams struct {
		ID     string `json:"id"`
		Output any    `json:"output,omitempty"`
	}
	type failParams struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	type listParams struct {
		ExecutionID string `json:"execution_id"`
		Status      string `json:"status,omitempty"`
		Limit       int    `json:"limit,omitempty"`
		Offset      int    `json:"offset,omitempty"`
		NewestFirst bool   `json:"newest_first,omitempty"`
	}
	d.Register("toolCall/create", typed(func(ctx context.Context, p createParams) (any, error) {
		return s.Tools.Create(ctx, p.ExecutionID, p.NodeExecutionID, p.ToolName, p.Input)
	}))
	d.Register("toolCall/start", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Tools.Start(ctx, p.ID)
	}))
	d.Register("toolCall/complete", typed(func(ctx context.Context, p completeParams) (any, error) {
		return s.Tools.Complete(ctx, p.ID, p.Output)
	}))
	d.Register("toolCall/fail", typed(func(ctx context.Context, p failParams) (any, error) {
		return s.Tools.Fail(ctx, p.ID, p.Error)
	}))
	d.Register("toolCall/awaitPermission", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Tools.AwaitPermission(ctx, p.ID)
	}))
	d.Register("toolCall/approve", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Tools.Approve(ctx, p.ID)
	}))
	d.Register("toolCall/deny", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Tools.Deny(ctx, p.ID)
	}))
	d.Register("toolCall/listByExecution", typed(func(ctx context.Context, p listParams) (any, error) {
		return s.Tools.ListByExecution(ctx, p.ExecutionID, toolcall.ListFilter{
			Status:      toolcall.Status(p.Status),
			Limit:       p.Limit,
			Offset:      p.Offset,
			NewestFirst: p.NewestFirst,
		})
	}))
	d.Register("toolCall/countByStatus", typed(func(ctx context.Context, p executionParams) (any, error) {
		return s.Tools.CountByStatus(ctx, p.ExecutionID)
	}))
	d.Register("toolCall/pendingPermissions", typed(func(ctx context.Context, p executionParams) (any, error) {
		return s.Tools.PendingPermissionRequests(ctx, p.ExecutionID)
	}))
}

func registerAgentMethods(d *Dispatcher, s Services) {
	type registerParams struct {
		Config agents.Config `json:"config"`
	}
	type findParams struct {
		Query string `json:"query"`
	}
	type textParams struct {
		Text string `json:"text"`
	}
	type delegateParams struct {
		Request agents.DelegationRequest `json:"request"`
	}
	d.Register("agent/register", typed(func(ctx context.Context, p registerParams) (any, error) {
		return s.Registry.Register(p.Config), nil
	}))
	d.Register("agent/unregister", typed(func(ctx context.Context, p idParams) (any, error) {
		return nil, s.Registry.Unregister(p.ID)
	}))
	d.Register("agent/list", typed(func(ctx context.Context, _ struct{}) (any, error) {
		return s.Registry.List(), nil
	}))
	d.Register("agent/find", typed(func(ctx context.Context, p findParams) (any, error) {
		return s.Registry.Find(p.Query), nil
	}))
	d.Register("agent/primary", typed(func(ctx context.Context, _ struct{}) (any, error) {
		return s.Registry.Primary()
	}))
	d.Register("agent/parseMentions", typed(func(ctx context.Context, p textParams) (any, error) {
		return s.Registry.ParseMentions(p.Text), nil
	}))
	d.Register("agent/delegate", typed(func(ctx context.Context, p delegateParams) (any, error) {
		return s.Delegator.Delegate(ctx, p.Request), nil
	}))
}

func registerExecutionMethods(d *Dispatcher, s Services) {
	type startParams struct {
		WorkflowID string `json:"workflow_id"`
	}
	type listParams struct {
		WorkflowID string `json:"workflow_id,omitempty"`
	}
	d.Register("execution/start", typed(func(ctx context.Context, p startParams) (any, error) {
		return s.Driver.Start(ctx, p.WorkflowID)
	}))
	d.Register("execution/resume", typed(func(ctx context.Context, p executionParams) (any, error) {
		return s.Driver.Resume(ctx, p.ExecutionID)
	}))
	d.Register("execution/get", typed(func(ctx context.Context, p idParams) (any, error) {
		return s.Driver.Get(ctx, p.ID)
	}))
	d.Register("execution/list", typed(func(ctx context.Context, p listParams) (any, error) {
		return s.Driver.List(ctx, p.WorkflowID)
	}))
	d.Register("execution/cleanup", typed(func(ctx context.Context, p executionParams) (any, error) {
		return nil, s.Driver.Cleanup(ctx, p.ExecutionID)
	}))
}
