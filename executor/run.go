package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conductor-ai/conductor/checkpoint"
	"github.com/conductor-ai/conductor/workflow"
)

// run drives the scheduling loop: repeated passes over the graph until the
// execution completes, fails, or halts at an undecided checkpoint. Each full
// pass increments the iteration counter; exceeding the cap is fatal no matter
// what the error policy says.
func (e *Executor) run(ctx context.Context, exec *Execution, def *workflow.Definition) (*Execution, error) {
	exec.Status = StatusRunning
	if exec.StartedAt == nil {
		now := time.Now()
		exec.StartedAt = &now
	}

	limit := def.EffectiveMaxIterations()
	for !exec.Status.Terminal() {
		if exec.Iterations >= limit {
			exec.Status = StatusFailed
			exec.Error = fmt.Sprintf("iteration limit reached (%d)", limit)
			e.logger.Error("execution aborted at iteration limit",
				zap.String("execution_id", exec.ID),
				zap.Int("limit", limit),
			)
			break
		}
		exec.Iterations++

		progressed, halted, err := e.pass(ctx, exec, def)
		if err != nil {
			return nil, err
		}
		if halted {
			exec.Status = StatusAwaitingInput
			if err := e.executions.Update(ctx, exec); err != nil {
				return nil, err
			}
			e.logger.Info("execution awaiting input",
				zap.String("execution_id", exec.ID),
				zap.Int("iteration", exec.Iterations),
			)
			return exec, nil
		}
		if err := e.executions.Update(ctx, exec); err != nil {
			return nil, err
		}
		if !progressed {
			break
		}
	}

	if !exec.Status.Terminal() {
		if unfinished := e.unfinishedSteps(exec, def); len(unfinished) > 0 {
			exec.Status = StatusFailed
			exec.Error = fmt.Sprintf("stalled: steps never became runnable: %v", unfinished)
		} else {
			exec.Status = StatusCompleted
		}
	}
	now := time.Now()
	exec.CompletedAt = &now
	if err := e.executions.Update(ctx, exec); err != nil {
		return nil, err
	}

	e.metrics.ExecutionsFinished.WithLabelValues(string(exec.Status)).Inc()
	e.metrics.ExecutionIterations.Observe(float64(exec.Iterations))
	e.logger.Info("execution finished",
		zap.String("execution_id", exec.ID),
		zap.String("status", string(exec.Status)),
		zap.Int("iterations", exec.Iterations),
	)
	return exec, nil
}

// pass runs one scheduling round: mark unreachable steps skipped, gate ready
// steps on their checkpoints, then dispatch the runnable ones.
func (e *Executor) pass(ctx context.Context, exec *Execution, def *workflow.Definition) (progressed, halted bool, err error) {
	ready := e.selectSteps(exec, def, &progressed)
	if len(ready) == 0 {
		return progressed, false, nil
	}

	// Checkpoint gating happens before any dispatch so a halt is deterministic
	// in both sequential and parallel mode.
	var runnable []workflow.Step
	for _, step := range ready {
		if !step.Checkpoint {
			runnable = append(runnable, step)
			continue
		}
		node := e.ensureNode(exec, step.ID)
		cp, cpErr := e.checkpointFor(ctx, exec.ID, node.ID)
		if cpErr != nil {
			return progressed, false, cpErr
		}
		if cp == nil {
			_, cpErr = e.checkpoints.Create(ctx, exec.ID, checkpoint.TypeApproval, checkpoint.CreateOptions{
				NodeExecutionID: node.ID,
				PromptMessage:   fmt.Sprintf("Approve step %q?", step.ID),
				Options:         []string{"approve", "reject"},
			})
			if cpErr != nil {
				return progressed, false, cpErr
			}
			e.metrics.CheckpointsCreated.Inc()
			return true, true, nil
		}
		if !cp.Decided() {
			return progressed, true, nil
		}
		e.metrics.CheckpointDecisions.WithLabelValues(cp.Decision).Inc()
		if cp.Decision == "reject" {
			node.Status = NodeSkipped
			node.Error = "checkpoint rejected"
			progressed = true
			continue
		}
		runnable = append(runnable, step)
	}

	if len(runnable) == 0 {
		return progressed, false, nil
	}

	if e.cfg.Parallel && len(runnable) > 1 {
		var g errgroup.Group
		for _, step := range runnable {
			step := step
			node := e.ensureNode(exec, step.ID)
			g.Go(func() error {
				return e.runStep(ctx, exec, def, step, node)
			})
		}
		if err := g.Wait(); err != nil {
			return progressed, false, err
		}
	} else {
		for _, step := range runnable {
			node := e.ensureNode(exec, step.ID)
			if err := e.runStep(ctx, exec, def, step, node); err != nil {
				return progressed, false, err
			}
			if exec.Status.Terminal() {
				return true, false, nil
			}
		}
	}
	progressed = true

	// Error policy is applied after the dispatch wave so parallel siblings of
	// a failed step still record their own results.
	for _, step := range runnable {
		node := exec.Nodes[step.ID]
		if node == nil || node.Status != NodeFailed {
			continue
		}
		e.metrics.NodeFailures.WithLabelValues(string(step.Type)).Inc()
		if abort := e.applyErrorPolicy(exec, def, step, node); abort {
			break
		}
	}
	return progressed, false, nil
}

// selectSteps returns the steps whose dependencies are satisfied, marking as
// skipped those that can never run because a dependency failed, was skipped,
// or produced a review outcome the step's When gate does not accept.
func (e *Executor) selectSteps(exec *Execution, def *workflow.Definition, progressed *bool) []workflow.Step {
	var ready []workflow.Step
	for _, step := range def.Steps {
		if node := exec.Nodes[step.ID]; node != nil && node.Status != NodePending {
			continue
		}

		depsDone := true
		depFailed := ""
		for _, dep := range step.Depends {
			depNode := exec.Nodes[dep]
			if depNode == nil || !depNode.Status.terminal() {
				depsDone = false
				break
			}
			if depNode.Status == NodeFailed || depNode.Status == NodeSkipped {
				depFailed = dep
			}
		}
		if !depsDone {
			continue
		}
		if depFailed != "" {
			node := e.ensureNode(exec, step.ID)
			node.Status = NodeSkipped
			node.Error = "dependency did not complete: " + depFailed
			*progressed = true
			continue
		}
		if step.When != "" && !e.outcomeMatches(exec, step) {
			node := e.ensureNode(exec, step.ID)
			node.Status = NodeSkipped
			node.Error = "review outcome did not match: want " + step.When
			*progressed = true
			continue
		}
		ready = append(ready, step)
	}
	return ready
}

// outcomeMatches applies a step's When gate against the review outcomes of its
// dependencies. A step with no reviewed dependency passes vacuously.
func (e *Executor) outcomeMatches(exec *Execution, step workflow.Step) bool {
	seen := false
	for _, dep := range step.Depends {
		depNode := exec.Nodes[dep]
		if depNode == nil || depNode.ReviewOutcome == "" {
			continue
		}
		seen = true
		if depNode.ReviewOutcome == step.When {
			return true
		}
	}
	return !seen
}

func (e *Executor) ensureNode(exec *Execution, stepID string) *NodeExecution {
	if node := exec.Nodes[stepID]; node != nil {
		return node
	}
	node := &NodeExecution{
		ID:          uuid.New().String(),
		ExecutionID: exec.ID,
		StepID:      stepID,
		Status:      NodePending,
	}
	exec.Nodes[stepID] = node
	return node
}

// checkpointFor finds the most recent checkpoint bound to a node execution.
func (e *Executor) checkpointFor(ctx context.Context, executionID, nodeExecutionID string) (*checkpoint.Checkpoint, error) {
	cps, err := e.checkpoints.List(ctx, executionID)
	if err != nil {
		return nil, err
	}
	for _, cp := range cps {
		if cp.NodeExecutionID == nodeExecutionID {
			return cp, nil
		}
	}
	return nil, nil
}

// unfinishedSteps lists steps with no terminal node after the loop stopped
// making progress. A non-empty result means the graph stalled.
func (e *Executor) unfinishedSteps(exec *Execution, def *workflow.Definition) []string {
	var out []string
	for _, step := range def.Steps {
		node := exec.Nodes[step.ID]
		if node == nil || !node.Status.terminal() {
			out = append(out, step.ID)
		}
	}
	return out
}

// runStep runs one step to completion on its node. Step failures are recorded
// on the node, never returned; the returned error is reserved for
// infrastructure faults.
func (e *Executor) runStep(ctx context.Context, exec *Execution, def *workflow.Definition, step workflow.Step, node *NodeExecution) error {
	node.Attempt++
	node.Status = NodeRunning
	start := time.Now()
	node.StartedAt = &start
	node.Error = ""

	ctx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.id", def.ID),
			attribute.String("execution.id", exec.ID),
			attribute.String("step.id", step.ID),
			attribute.String("step.type", string(step.Type)),
			attribute.Int("step.attempt", node.Attempt),
		))
	defer span.End()

	var output string
	var err error
	switch step.Type {
	case workflow.StepTypeReview:
		output, err = e.runReviewStep(ctx, exec, def, step, node)
	case workflow.StepTypeAction:
		output, err = e.runActionStep(ctx, exec, step)
	default:
		output, err = e.runAgentStep(ctx, exec, def, step, node)
	}

	now := time.Now()
	node.CompletedAt = &now
	e.metrics.NodeDuration.WithLabelValues(string(step.Type)).Observe(now.Sub(start).Seconds())

	if err != nil {
		node.Status = NodeFailed
		node.Error = err.Error()
		span.RecordError(err)
		e.logger.Warn("step failed",
			zap.String("execution_id", exec.ID),
			zap.String("step_id", step.ID),
			zap.Int("attempt", node.Attempt),
			zap.Error(err),
		)
		return nil
	}

	node.Status = NodeCompleted
	node.Output = output
	e.logger.Debug("step completed",
		zap.String("execution_id", exec.ID),
		zap.String("step_id", step.ID),
	)
	return nil
}

// applyErrorPolicy reacts to a failed node per the definition's onError.
// It reports whether the execution must abort.
func (e *Executor) applyErrorPolicy(exec *Execution, def *workflow.Definition, step workflow.Step, node *NodeExecution) bool {
	switch def.OnError {
	case workflow.ErrorPolicyRetry:
		// Re-queue; the iteration cap bounds how often this can happen.
		node.Status = NodePending
		return false
	case workflow.ErrorPolicyContinue:
		return false
	default:
		exec.Status = StatusFailed
		exec.Error = fmt.Sprintf("step %s failed: %s", step.ID, node.Error)
		return true
	}
}

// dependencyContext joins the outputs of a step's completed dependencies, in
// depends order, for use as delegation context.
func dependencyContext(exec *Execution, step workflow.Step) string {
	var parts []string
	for _, dep := range step.Depends {
		if depNode := exec.Nodes[dep]; depNode != nil && depNode.Output != "" {
			parts = append(parts, depNode.Output)
		}
	}
	return strings.Join(parts, "\n\n")
}
