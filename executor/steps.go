package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/conductor-ai/conductor/agents"
	"github.com/conductor-ai/conductor/review"
	"github.com/conductor-ai/conductor/types"
	"github.com/conductor-ai/conductor/workflow"
)

// runAgentStep delegates the step prompt to an agent. The agent is resolved in
// order: explicit step binding, first @mention in the prompt, workflow default,
// registry primary.
func (e *Executor) runAgentStep(ctx context.Context, exec *Execution, def *workflow.Definition, step workflow.Step, node *NodeExecution) (string, error) {
	agentID := step.Agent
	prompt := step.Prompt
	if agentID == "" {
		parsed := e.registry.ParseMentions(prompt)
		if len(parsed.Mentions) > 0 {
			agentID = parsed.Mentions[0].AgentID
			prompt = parsed.CleanText
		}
	}
	if agentID == "" {
		agentID = def.DefaultAgentID
	}
	if agentID == "" {
		primary, err := e.registry.Primary()
		if err != nil {
			return "", err
		}
		agentID = primary.ID
	}
	node.AgentID = agentID

	result := e.delegator.Delegate(ctx, agents.DelegationRequest{
		ToAgentID: agentID,
		Task:      prompt,
		Context:   dependencyContext(exec, step),
		SessionID: exec.SessionID,
	})
	e.metrics.DelegationDuration.Observe(float64(result.DurationMS) / 1000)
	if !result.Success {
		e.metrics.DelegationFailures.Inc()
		return "", types.NewErrorf(types.ErrExecutorFailure, "agent %s: %s", agentID, result.Error)
	}

	node.Usage.Add(result.Usage)
	e.usageMu.Lock()
	exec.Usage.Add(result.Usage)
	e.usageMu.Unlock()
	return result.Output, nil
}

// runActionStep invokes a registered host-side action.
func (e *Executor) runActionStep(ctx context.Context, exec *Execution, step workflow.Step) (string, error) {
	fn, ok := e.action(step.Action)
	if !ok {
		return "", types.NewErrorf(types.ErrValidation, "unknown action: %s", step.Action)
	}
	return fn(ctx, exec, step)
}

// runReviewStep runs a voting panel over the step: each configured reviewer is
// asked for a verdict, replies are parsed into votes, and the panel outcome is
// recorded on the node for downstream When gates. Reviewers that fail or run
// past the collection deadline cast no vote; the quorum gate escalates when
// too few votes arrive.
func (e *Executor) runReviewStep(ctx context.Context, exec *Execution, def *workflow.Definition, step workflow.Step, node *NodeExecution) (string, error) {
	spec := step.Review
	cfg := review.PanelConfig{
		Voting: review.VotingConfig{
			Strategy:   review.Strategy(spec.Strategy),
			Thresholds: thresholdsFrom(spec.Thresholds),
		},
	}
	for _, r := range spec.Reviewers {
		weight := r.Weight
		if weight <= 0 {
			weight = 1
		}
		cfg.Reviewers = append(cfg.Reviewers, review.Reviewer{AgentID: r.AgentID, Weight: weight})
	}

	panel, err := e.reviews.CreatePanel(ctx, node.ID, exec.ID, cfg)
	if err != nil {
		return "", err
	}
	if _, err := e.reviews.StartCollecting(ctx, panel.ID); err != nil {
		return "", err
	}

	collectCtx := ctx
	if e.cfg.ReviewTimeout > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(ctx, e.cfg.ReviewTimeout)
		defer cancel()
	}

	depContext := dependencyContext(exec, step)
	replies := make([]agents.DelegationResult, len(cfg.Reviewers))
	if e.cfg.Parallel && len(cfg.Reviewers) > 1 {
		var g errgroup.Group
		for i, reviewer := range cfg.Reviewers {
			i, reviewer := i, reviewer
			g.Go(func() error {
				replies[i] = e.delegator.Delegate(collectCtx, agents.DelegationRequest{
					ToAgentID: reviewer.AgentID,
					Task:      step.Prompt,
					Context:   depContext,
					SessionID: exec.SessionID,
				})
				return nil
			})
		}
		// Delegation never errors; Wait only joins the goroutines.
		_ = g.Wait()
	} else {
		for i, reviewer := range cfg.Reviewers {
			replies[i] = e.delegator.Delegate(collectCtx, agents.DelegationRequest{
				ToAgentID: reviewer.AgentID,
				Task:      step.Prompt,
				Context:   depContext,
				SessionID: exec.SessionID,
			})
		}
	}

	for i, reviewer := range cfg.Reviewers {
		result := replies[i]
		if !result.Success {
			e.metrics.DelegationFailures.Inc()
			continue
		}
		node.Usage.Add(result.Usage)
		e.usageMu.Lock()
		exec.Usage.Add(result.Usage)
		e.usageMu.Unlock()

		parsed := review.ParseReviewerResponse(result.Output)
		vote := parsed.Vote
		if vote == "" {
			vote = review.VoteAbstain
		}
		if _, err := e.reviews.AddVote(ctx, panel.ID, reviewer.AgentID, vote, parsed.Feedback, parsed.Issues, reviewer.Weight); err != nil {
			return "", err
		}
		e.metrics.VotesRecorded.WithLabelValues(string(vote)).Inc()
	}

	panel, err = e.reviews.Aggregate(ctx, panel.ID)
	if err != nil {
		return "", err
	}
	e.metrics.PanelOutcomes.WithLabelValues(string(panel.Outcome)).Inc()

	node.ReviewOutcome = string(panel.Outcome)
	return fmt.Sprintf("review outcome: %s (%s)", panel.Outcome, panel.Summary.OutcomeReason), nil
}

// thresholdsFrom converts the loosely typed threshold map of a workflow
// definition into voting thresholds. Unknown keys are ignored.
func thresholdsFrom(raw map[string]any) review.Thresholds {
	var th review.Thresholds
	if v, ok := asFloat(raw["quorum"]); ok {
		th.Quorum = int(v)
	}
	if v, ok := asFloat(raw["approve_threshold"]); ok {
		th.ApproveThreshold = &v
	}
	if v, ok := asFloat(raw["changes_threshold"]); ok {
		th.ChangesThreshold = &v
	}
	if v, ok := raw["critical_blocks"].(bool); ok {
		th.CriticalBlocks = &v
	}
	return th
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
