package review

import (
	"context"
	"sync"
	"time"

	"github.com/conductor-ai/conductor/types"
)

// PanelStatus is a review panel's lifecycle state.
type PanelStatus string

const (
	PanelPending    PanelStatus = "pending"
	PanelCollecting PanelStatus = "collecting"
	PanelCompleted  PanelStatus = "completed"
)

// Outcome is the aggregated verdict of a completed panel.
type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomeAddressCritical Outcome = "address_critical"
	OutcomeQueueChanges    Outcome = "queue_changes"
	OutcomeEscalate        Outcome = "escalate"
)

// Strategy selects the aggregation rule applied once quorum and the critical
// gate have been evaluated.
type Strategy string

const (
	StrategyAnyCritical       Strategy = "any_critical"
	StrategyUnanimous         Strategy = "unanimous"
	StrategyMajority          Strategy = "majority"
	StrategyQuorum            Strategy = "quorum"
	StrategyWeightedThreshold Strategy = "weighted_threshold"
)

// Thresholds tunes the aggregation gates. Zero values fall back to per
// strategy defaults at aggregation time.
type Thresholds struct {
	// Quorum is the minimum number of non-abstaining votes; defaults to 1.
	Quorum int `json:"quorum,omitempty" yaml:"quorum,omitempty"`
	// ApproveThreshold is the weighted approval fraction needed for
	// weighted_threshold to approve; defaults to 0.7.
	ApproveThreshold *float64 `json:"approve_threshold,omitempty" yaml:"approve_threshold,omitempty"`
	// ChangesThreshold is the weighted changes fraction that queues changes;
	// defaults to 0.4 (weighted_threshold) or 0.5 (any_critical).
	ChangesThreshold *float64 `json:"changes_threshold,omitempty" yaml:"changes_threshold,omitempty"`
	// CriticalBlocks short-circuits to address_critical when any critical
	// weight exists. Defaults to true; set to false to disable the gate.
	CriticalBlocks *bool `json:"critical_blocks,omitempty" yaml:"critical_blocks,omitempty"`
}

// Reviewer names one panel member and the weight of their vote.
type Reviewer struct {
	AgentID string  `json:"agent_id" yaml:"agent_id"`
	Weight  float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// VotingConfig pairs a strategy with its thresholds.
type VotingConfig struct {
	Strategy   Strategy   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Thresholds Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// PanelConfig describes who reviews and how their votes combine.
type PanelConfig struct {
	Reviewers []Reviewer   `json:"reviewers" yaml:"reviewers"`
	Voting    VotingConfig `json:"voting,omitempty" yaml:"voting,omitempty"`
}

// VoteSummary is the persisted aggregation breakdown.
type VoteSummary struct {
	TotalWeight        float64 `json:"total_weight"`
	CriticalWeight     float64 `json:"critical_weight"`
	ChangesWeight      float64 `json:"changes_weight"`
	ApproveWeight      float64 `json:"approve_weight"`
	AbstainCount       int     `json:"abstain_count"`
	ApprovalPercentage float64 `json:"approval_percentage"`
	ChangesPercentage  float64 `json:"changes_percentage"`
	QuorumMet          bool    `json:"quorum_met"`
	OutcomeReason      string  `json:"outcome_reason"`
	CriticalIssues     []Issue `json:"critical_issues,omitempty"`
	OtherIssues        []Issue `json:"other_issues,omitempty"`
}

// PanelExecution is one review panel run against a node execution.
type PanelExecution struct {
	ID              string          `json:"id"`
	NodeExecutionID string          `json:"node_execution_id,omitempty"`
	ExecutionID     string          `json:"execution_id"`
	Config          PanelConfig     `json:"config"`
	Status          PanelStatus     `json:"status"`
	Votes           []*ReviewerVote `json:"votes,omitempty"`
	Outcome         Outcome         `json:"outcome,omitempty"`
	Summary         *VoteSummary    `json:"summary,omitempty"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Store persists panel executions together with their votes.
type Store interface {
	Save(ctx context.Context, panel *PanelExecution) error
	Get(ctx context.Context, id string) (*PanelExecution, error)
	Update(ctx context.Context, panel *PanelExecution) error
	ListByExecution(ctx context.Context, executionID string) ([]*PanelExecution, error)
	DeleteByExecution(ctx context.Context, executionID string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	panels map[string]*PanelExecution
	order  []string
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{panels: make(map[string]*PanelExecution)}
}

func clonePanel(p *PanelExecution) *PanelExecution {
	clone := *p
	if p.Votes != nil {
		clone.Votes = make([]*ReviewerVote, len(p.Votes))
		for i, v := range p.Votes {
			vc := *v
			clone.Votes[i] = &vc
		}
	}
	if p.Summary != nil {
		sc := *p.Summary
		clone.Summary = &sc
	}
	return &clone
}

func (s *MemoryStore) Save(ctx context.Context, panel *PanelExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.panels[panel.ID]; !exists {
		s.order = append(s.order, panel.ID)
	}
	s.panels[panel.ID] = clonePanel(panel)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*PanelExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	panel, ok := s.panels[id]
	if !ok {
		return nil, types.NotFound("review panel", id)
	}
	return clonePanel(panel), nil
}

func (s *MemoryStore) Update(ctx context.Context, panel *PanelExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.panels[panel.ID]; !ok {
		return types.NotFound("review panel", panel.ID)
	}
	s.panels[panel.ID] = clonePanel(panel)
	return nil
}

func (s *MemoryStore) ListByExecution(ctx context.Context, executionID string) ([]*PanelExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*PanelExecution
	for _, id := range s.order {
		if s.panels[id].ExecutionID == executionID {
			out = append(out, clonePanel(s.panels[id]))
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteByExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, id := range s.order {
		if s.panels[id].ExecutionID == executionID {
			delete(s.panels, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}
