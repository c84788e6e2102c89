package workflow

import "time"

// ErrorPolicy defines how the executor reacts to a step failure.
type ErrorPolicy string

const (
	// ErrorPolicyFail aborts the whole execution on the first step failure.
	ErrorPolicyFail ErrorPolicy = "fail"
	// ErrorPolicyRetry re-queues the failed step, subject to the iteration cap.
	ErrorPolicyRetry ErrorPolicy = "retry"
	// ErrorPolicyContinue marks the step failed and proceeds with independent steps.
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// StepType classifies how a step is executed.
type StepType string

const (
	// StepTypeAgent delegates the step prompt to an agent.
	StepTypeAgent StepType = "agent"
	// StepTypeReview routes the step through a multi-reviewer panel.
	StepTypeReview StepType = "review"
	// StepTypeAction invokes a named action without agent inference.
	StepTypeAction StepType = "action"
)

// Trigger describes what starts a workflow.
type Trigger struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// ReviewSpec configures a review-panel step.
type ReviewSpec struct {
	// Reviewers lists the agent ids asked to vote.
	Reviewers []ReviewerSpec `json:"reviewers" yaml:"reviewers"`
	// Strategy selects the voting strategy tag (weighted_threshold by default).
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	// Thresholds carries strategy thresholds; nil fields fall back to defaults.
	Thresholds map[string]any `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ReviewerSpec names one reviewer and its vote weight.
type ReviewerSpec struct {
	AgentID string  `json:"agent_id" yaml:"agent_id"`
	Weight  float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// Step is one unit of work in a workflow definition.
type Step struct {
	// ID is unique within the definition.
	ID string `json:"id" yaml:"id"`
	// Type selects the execution path (agent, review, action).
	Type StepType `json:"type" yaml:"type"`
	// Agent optionally pins the step to a specific agent id.
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`
	// Action names a host-side action for action steps.
	Action string `json:"action,omitempty" yaml:"action,omitempty"`
	// Prompt is the instruction sent to the agent.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	// Depends lists step ids that must complete before this step runs.
	Depends []string `json:"depends,omitempty" yaml:"depends,omitempty"`
	// Checkpoint pauses the execution for a recorded decision before this step.
	Checkpoint bool `json:"checkpoint,omitempty" yaml:"checkpoint,omitempty"`
	// AllowedTools/DeniedTools override the workflow defaults for this step.
	AllowedTools []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"`
	DeniedTools  []string `json:"denied_tools,omitempty" yaml:"denied_tools,omitempty"`
	// Review configures the panel for review steps.
	Review *ReviewSpec `json:"review,omitempty" yaml:"review,omitempty"`
	// When gates this step on the review outcome of a review-step dependency.
	// Empty means the step runs for any outcome.
	When string `json:"when,omitempty" yaml:"when,omitempty"`
}

// Definition is an immutable workflow definition. Stored definitions are only
// replaced wholesale via Update, never mutated in place.
type Definition struct {
	ID            string      `json:"id" yaml:"id"`
	Name          string      `json:"name" yaml:"name"`
	Description   string      `json:"description,omitempty" yaml:"description,omitempty"`
	Steps         []Step      `json:"steps" yaml:"steps"`
	Trigger       Trigger     `json:"trigger" yaml:"trigger"`
	OnError       ErrorPolicy `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	MaxIterations int         `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	// DefaultAllowedTools/DefaultDeniedTools apply to steps without overrides.
	DefaultAllowedTools []string `json:"default_allowed_tools,omitempty" yaml:"default_allowed_tools,omitempty"`
	DefaultDeniedTools  []string `json:"default_denied_tools,omitempty" yaml:"default_denied_tools,omitempty"`

	// AgentPool lists agent ids available to this workflow.
	AgentPool []string `json:"agent_pool,omitempty" yaml:"agent_pool,omitempty"`
	// DefaultAgentID receives steps that name no agent and carry no mention.
	DefaultAgentID string `json:"default_agent_id,omitempty" yaml:"default_agent_id,omitempty"`

	IsDefault bool      `json:"is_default,omitempty" yaml:"is_default,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// DefaultMaxIterations caps graph passes when a definition sets none.
const DefaultMaxIterations = 50

// EffectiveMaxIterations returns the iteration cap for the definition.
func (d *Definition) EffectiveMaxIterations() int {
	if d.MaxIterations > 0 {
		return d.MaxIterations
	}
	return DefaultMaxIterations
}

// Step returns the step with the given id.
func (d *Definition) Step(id string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

// EffectiveAllowedTools returns the allow-list in force for a step: the step
// override when present, else the workflow default. Nil means "no allow-list"
// (every tool not denied is permitted).
func (d *Definition) EffectiveAllowedTools(s *Step) []string {
	if s.AllowedTools != nil {
		return s.AllowedTools
	}
	return d.DefaultAllowedTools
}

// EffectiveDeniedTools returns the deny-list in force for a step.
func (d *Definition) EffectiveDeniedTools(s *Step) []string {
	if s.DeniedTools != nil {
		return s.DeniedTools
	}
	return d.DefaultDeniedTools
}

// ToolAllowed reports whether a tool name passes the step's effective policy.
// Deny entries win over allow entries.
func (d *Definition) ToolAllowed(s *Step, tool string) bool {
	for _, denied := range d.EffectiveDeniedTools(s) {
		if denied == tool {
			return false
		}
	}
	allowed := d.EffectiveAllowedTools(s)
	if allowed == nil {
		return true
	}
	for _, name := range allowed {
		if name == tool {
			return true
		}
	}
	return false
}
