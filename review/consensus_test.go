package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/conductor-ai/conductor/types"
)

func newManager() *Manager {
	return NewManager(NewMemoryStore(), nil)
}

func makePanel(t rapid.TB, m *Manager, config PanelConfig) *PanelExecution {
	t.Helper()
	panel, err := m.CreatePanel(context.Background(), "node-1", "exec-1", config)
	require.NoError(t, err)
	_, err = m.StartCollecting(context.Background(), panel.ID)
	require.NoError(t, err)
	return panel
}

func defaultConfig(strategy Strategy, reviewers int) PanelConfig {
	cfg := PanelConfig{Voting: VotingConfig{Strategy: strategy}}
	for i := 0; i < reviewers; i++ {
		cfg.Reviewers = append(cfg.Reviewers, Reviewer{AgentID: "reviewer", Weight: 1})
	}
	return cfg
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestCreatePanel_NeedsReviewers(t *testing.T) {
	t.Parallel()
	m := newManager()
	_, err := m.CreatePanel(context.Background(), "node-1", "exec-1", PanelConfig{})
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestAddVote_RejectedAfterCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyMajority, 1))

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteApprove, "lgtm", nil, 1)
	require.NoError(t, err)
	_, err = m.Aggregate(ctx, panel.ID)
	require.NoError(t, err)

	_, err = m.AddVote(ctx, panel.ID, "r2", VoteApprove, "late", nil, 1)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))
	_, err = m.Aggregate(ctx, panel.ID)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))
}

func TestAddVote_NoDeduplication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyMajority, 3))

	for i := 0; i < 2; i++ {
		_, err := m.AddVote(ctx, panel.ID, "same-reviewer", VoteApprove, "", nil, 1)
		require.NoError(t, err)
	}
	got, err := m.Get(ctx, panel.ID)
	require.NoError(t, err)
	assert.Len(t, got.Votes, 2)

	done, err := m.HasAllVotes(ctx, panel.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = m.AddVote(ctx, panel.ID, "same-reviewer", VoteAbstain, "", nil, 1)
	require.NoError(t, err)
	done, err = m.HasAllVotes(ctx, panel.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestAddVote_UnknownKind(t *testing.T) {
	t.Parallel()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyMajority, 1))
	_, err := m.AddVote(context.Background(), panel.ID, "r1", VoteKind("maybe"), "", nil, 1)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func TestAggregate_CriticalBlocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyWeightedThreshold, 3))

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteApprove, "", nil, 1)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r2", VoteApprove, "", nil, 1)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r3", VoteCritical, "",
		[]Issue{{Severity: "critical", Description: "data loss on retry"}}, 1)
	require.NoError(t, err)

	panel, err = m.Aggregate(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAddressCritical, panel.Outcome)
	assert.Equal(t, PanelCompleted, panel.Status)
	require.NotNil(t, panel.Summary)
	assert.True(t, panel.Summary.QuorumMet)
	assert.Equal(t, 1.0, panel.Summary.CriticalWeight)
	assert.Len(t, panel.Summary.CriticalIssues, 1)
	require.NotNil(t, panel.CompletedAt)
}

func TestAggregate_CriticalGateDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	off := false
	cfg := defaultConfig(StrategyMajority, 3)
	cfg.Voting.Thresholds.CriticalBlocks = &off
	panel := makePanel(t, m, cfg)

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteApprove, "", nil, 2)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r2", VoteApprove, "", nil, 2)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r3", VoteCritical, "", nil, 1)
	require.NoError(t, err)

	panel, err = m.Aggregate(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, panel.Outcome)
}

func TestAggregate_MajorityApproves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyMajority, 3))

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteApprove, "", nil, 1)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r2", VoteApprove, "", nil, 1)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r3", VoteRequestChanges, "", nil, 1)
	require.NoError(t, err)

	panel, err = m.Aggregate(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, panel.Outcome)
	assert.InDelta(t, 0.667, panel.Summary.ApprovalPercentage, 0.001)
}

func TestAggregate_WeightedQueuesChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyWeightedThreshold, 3))

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteApprove, "", nil, 3)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r2", VoteRequestChanges, "", nil, 2)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r3", VoteAbstain, "", nil, 1)
	require.NoError(t, err)

	panel, err = m.Aggregate(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueueChanges, panel.Outcome)
	assert.Equal(t, 5.0, panel.Summary.TotalWeight)
	assert.InDelta(t, 0.6, panel.Summary.ApprovalPercentage, 0.001)
	assert.InDelta(t, 0.4, panel.Summary.ChangesPercentage, 0.001)
	assert.Equal(t, 1, panel.Summary.AbstainCount)
}

func TestAggregate_QuorumNotMetEscalates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	cfg := defaultConfig(StrategyMajority, 3)
	cfg.Voting.Thresholds.Quorum = 2
	panel := makePanel(t, m, cfg)

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteApprove, "", nil, 1)
	require.NoError(t, err)
	_, err = m.AddVote(ctx, panel.ID, "r2", VoteAbstain, "", nil, 1)
	require.NoError(t, err)

	panel, err = m.Aggregate(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalate, panel.Outcome)
	assert.False(t, panel.Summary.QuorumMet)
}

// Below-quorum panels escalate no matter which strategy is configured.
func TestAggregate_QuorumGateAppliesToEveryStrategy(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		m := newManager()

		allStrategies := []Strategy{
			StrategyAnyCritical, StrategyUnanimous, StrategyMajority,
			StrategyQuorum, StrategyWeightedThreshold,
		}
		strategy := rapid.SampledFrom(allStrategies).Draw(t, "strategy")
		quorum := rapid.IntRange(2, 5).Draw(t, "quorum")
		effective := rapid.IntRange(0, quorum-1).Draw(t, "effective_votes")
		abstains := rapid.IntRange(0, 3).Draw(t, "abstains")

		cfg := defaultConfig(strategy, quorum+abstains)
		cfg.Voting.Thresholds.Quorum = quorum
		panel := makePanel(t, m, cfg)

		kinds := []VoteKind{VoteApprove, VoteRequestChanges, VoteCritical}
		for i := 0; i < effective; i++ {
			kind := rapid.SampledFrom(kinds).Draw(t, "kind")
			_, err := m.AddVote(ctx, panel.ID, "r", kind, "", nil,
				rapid.Float64Range(0.1, 5).Draw(t, "weight"))
			require.NoError(t, err)
		}
		for i := 0; i < abstains; i++ {
			_, err := m.AddVote(ctx, panel.ID, "r", VoteAbstain, "", nil, 1)
			require.NoError(t, err)
		}

		panel, err := m.Aggregate(ctx, panel.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeEscalate, panel.Outcome)
		assert.False(t, panel.Summary.QuorumMet)
	})
}

func TestStats_DoesNotComplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newManager()
	panel := makePanel(t, m, defaultConfig(StrategyMajority, 2))

	_, err := m.AddVote(ctx, panel.ID, "r1", VoteRequestChanges, "",
		[]Issue{{Severity: "minor", Description: "typo"}}, 1)
	require.NoError(t, err)

	stats, err := m.Stats(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stats.ChangesWeight)
	assert.Len(t, stats.OtherIssues, 1)

	got, err := m.Get(ctx, panel.ID)
	require.NoError(t, err)
	assert.Equal(t, PanelCollecting, got.Status)
	assert.Empty(t, got.Outcome)
}
