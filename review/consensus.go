package review

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/types"
)

// Manager runs review panels: it creates them, collects votes and aggregates
// the result. Mutations are serialized so concurrent votes on one panel are
// all counted, in arrival order.
type Manager struct {
	store  Store
	logger *zap.Logger
	mu     sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger.With(zap.String("component", "review_manager")),
	}
}

// CreatePanel records a new panel in status pending.
func (m *Manager) CreatePanel(ctx context.Context, nodeExecutionID, executionID string, config PanelConfig) (*PanelExecution, error) {
	if len(config.Reviewers) == 0 {
		return nil, types.NewError(types.ErrValidation, "review panel needs at least one reviewer")
	}
	panel := &PanelExecution{
		ID:              uuid.New().String(),
		NodeExecutionID: nodeExecutionID,
		ExecutionID:     executionID,
		Config:          config,
		Status:          PanelPending,
		CreatedAt:       time.Now(),
	}
	if err := m.store.Save(ctx, panel); err != nil {
		return nil, err
	}
	m.logger.Debug("review panel created",
		zap.String("panel_id", panel.ID),
		zap.Int("reviewers", len(config.Reviewers)),
		zap.String("strategy", string(config.Voting.Strategy)),
	)
	return panel, nil
}

// Get returns a panel by id.
func (m *Manager) Get(ctx context.Context, id string) (*PanelExecution, error) {
	return m.store.Get(ctx, id)
}

// StartCollecting moves a pending panel into the collecting state.
func (m *Manager) StartCollecting(ctx context.Context, panelID string) (*PanelExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	panel, err := m.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	if panel.Status == PanelCompleted {
		return nil, types.InvalidState("panel " + panelID + " already completed")
	}
	panel.Status = PanelCollecting
	if err := m.store.Update(ctx, panel); err != nil {
		return nil, err
	}
	return panel, nil
}

// AddVote appends a reviewer vote. Votes are never deduplicated; the same
// reviewer voting twice is counted twice. Non-positive weights default to 1.
func (m *Manager) AddVote(ctx context.Context, panelID, reviewerID string, vote VoteKind, feedback string, issues []Issue, weight float64) (*ReviewerVote, error) {
	if !ValidVoteKind(vote) {
		return nil, types.NewErrorf(types.ErrValidation, "unknown vote kind %q", vote)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	panel, err := m.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	if panel.Status == PanelCompleted {
		return nil, types.InvalidState("panel " + panelID + " already completed, vote rejected")
	}
	if weight <= 0 {
		weight = 1
	}
	rv := &ReviewerVote{
		ID:               uuid.New().String(),
		PanelExecutionID: panelID,
		ReviewerID:       reviewerID,
		Vote:             vote,
		Feedback:         feedback,
		Issues:           issues,
		Weight:           weight,
		CreatedAt:        time.Now(),
	}
	panel.Votes = append(panel.Votes, rv)
	if err := m.store.Update(ctx, panel); err != nil {
		return nil, err
	}
	m.logger.Debug("vote recorded",
		zap.String("panel_id", panelID),
		zap.String("reviewer_id", reviewerID),
		zap.String("vote", string(vote)),
		zap.Float64("weight", weight),
	)
	return rv, nil
}

// HasAllVotes reports whether the collected vote count has reached the
// configured reviewer count.
func (m *Manager) HasAllVotes(ctx context.Context, panelID string) (bool, error) {
	panel, err := m.store.Get(ctx, panelID)
	if err != nil {
		return false, err
	}
	return len(panel.Votes) >= len(panel.Config.Reviewers), nil
}

// Aggregate computes the panel outcome and completes the panel.
//
// Order of evaluation: the quorum gate first (not met is escalate for every
// strategy), then the critical gate (any critical weight short-circuits to
// address_critical unless disabled), then the configured strategy.
func (m *Manager) Aggregate(ctx context.Context, panelID string) (*PanelExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	panel, err := m.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	if panel.Status == PanelCompleted {
		return nil, types.InvalidState("panel " + panelID + " already completed")
	}

	th := panel.Config.Voting.Thresholds
	metrics, criticalIssues, otherIssues := partitionVotes(panel.Votes)

	var outcome Outcome
	var reason string
	quorumMet := metrics.VoteCount-metrics.AbstainCount >= quorumOf(th)
	switch {
	case !quorumMet:
		outcome = OutcomeEscalate
		reason = "quorum not met"
	case criticalBlocks(th) && metrics.CriticalWeight > 0:
		outcome = OutcomeAddressCritical
		reason = "critical votes present"
	default:
		outcome, reason = strategyFor(panel.Config.Voting.Strategy)(metrics, th)
	}

	now := time.Now()
	panel.Status = PanelCompleted
	panel.Outcome = outcome
	panel.CompletedAt = &now
	panel.Summary = &VoteSummary{
		TotalWeight:        metrics.TotalWeight,
		CriticalWeight:     metrics.CriticalWeight,
		ChangesWeight:      metrics.ChangesWeight,
		ApproveWeight:      metrics.ApproveWeight,
		AbstainCount:       metrics.AbstainCount,
		ApprovalPercentage: metrics.ApprovalPercentage,
		ChangesPercentage:  metrics.ChangesPercentage,
		QuorumMet:          quorumMet,
		OutcomeReason:      reason,
		CriticalIssues:     criticalIssues,
		OtherIssues:        otherIssues,
	}
	if err := m.store.Update(ctx, panel); err != nil {
		return nil, err
	}
	m.logger.Info("panel aggregated",
		zap.String("panel_id", panelID),
		zap.String("outcome", string(outcome)),
		zap.String("reason", reason),
		zap.Float64("approval", metrics.ApprovalPercentage),
	)
	return panel, nil
}

// Stats summarizes a panel's votes without completing it.
func (m *Manager) Stats(ctx context.Context, panelID string) (*VoteSummary, error) {
	panel, err := m.store.Get(ctx, panelID)
	if err != nil {
		return nil, err
	}
	th := panel.Config.Voting.Thresholds
	metrics, criticalIssues, otherIssues := partitionVotes(panel.Votes)
	return &VoteSummary{
		TotalWeight:        metrics.TotalWeight,
		CriticalWeight:     metrics.CriticalWeight,
		ChangesWeight:      metrics.ChangesWeight,
		ApproveWeight:      metrics.ApproveWeight,
		AbstainCount:       metrics.AbstainCount,
		ApprovalPercentage: metrics.ApprovalPercentage,
		ChangesPercentage:  metrics.ChangesPercentage,
		QuorumMet:          metrics.VoteCount-metrics.AbstainCount >= quorumOf(th),
		CriticalIssues:     criticalIssues,
		OtherIssues:        otherIssues,
	}, nil
}

// Cleanup removes every panel of an execution.
func (m *Manager) Cleanup(ctx context.Context, executionID string) error {
	return m.store.DeleteByExecution(ctx, executionID)
}

// partitionVotes folds votes into weighted metrics and splits flagged issues
// by severity. Abstains count toward VoteCount but contribute no weight;
// issues are collected from critical and request_changes votes only.
func partitionVotes(votes []*ReviewerVote) (voteMetrics, []Issue, []Issue) {
	var m voteMetrics
	var criticalIssues, otherIssues []Issue
	m.VoteCount = len(votes)
	for _, v := range votes {
		switch v.Vote {
		case VoteAbstain:
			m.AbstainCount++
			continue
		case VoteApprove:
			m.ApproveCount++
			m.ApproveWeight += v.Weight
		case VoteRequestChanges:
			m.ChangesWeight += v.Weight
		case VoteCritical:
			m.CriticalWeight += v.Weight
		}
		if v.Vote == VoteCritical || v.Vote == VoteRequestChanges {
			for _, issue := range v.Issues {
				if issue.Critical() {
					criticalIssues = append(criticalIssues, issue)
				} else {
					otherIssues = append(otherIssues, issue)
				}
			}
		}
	}
	m.TotalWeight = m.ApproveWeight + m.ChangesWeight + m.CriticalWeight
	if m.TotalWeight > 0 {
		m.ApprovalPercentage = m.ApproveWeight / m.TotalWeight
		m.ChangesPercentage = m.ChangesWeight / m.TotalWeight
		m.CriticalPercentage = m.CriticalWeight / m.TotalWeight
	}
	return m, criticalIssues, otherIssues
}
