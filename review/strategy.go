package review

import "fmt"

// Aggregation defaults applied when thresholds are left unset.
const (
	DefaultQuorum           = 1
	DefaultApproveThreshold = 0.7
	// weighted_threshold and any_critical queue changes at different points.
	DefaultChangesThreshold            = 0.4
	DefaultAnyCriticalChangesThreshold = 0.5
)

// voteMetrics is the aggregation input handed to a strategy: the weighted
// partition of a panel's votes plus the derived percentages. Abstains count
// toward VoteCount only.
type voteMetrics struct {
	VoteCount      int
	AbstainCount   int
	ApproveCount   int
	TotalWeight    float64
	CriticalWeight float64
	ChangesWeight  float64
	ApproveWeight  float64

	ApprovalPercentage float64
	ChangesPercentage  float64
	CriticalPercentage float64
}

// strategyFunc maps metrics to an outcome. Strategies run only after the
// quorum and critical gates have passed, so they never return address_critical
// on the critical gate's behalf.
type strategyFunc func(m voteMetrics, th Thresholds) (Outcome, string)

var strategies = map[Strategy]strategyFunc{
	StrategyAnyCritical:       anyCriticalStrategy,
	StrategyUnanimous:         unanimousStrategy,
	StrategyMajority:          majorityStrategy,
	StrategyQuorum:            quorumStrategy,
	StrategyWeightedThreshold: weightedThresholdStrategy,
}

// strategyFor resolves a strategy tag, defaulting to weighted_threshold for
// the empty tag and for tags the table does not know.
func strategyFor(tag Strategy) strategyFunc {
	if fn, ok := strategies[tag]; ok {
		return fn
	}
	return weightedThresholdStrategy
}

func quorumOf(th Thresholds) int {
	if th.Quorum > 0 {
		return th.Quorum
	}
	return DefaultQuorum
}

func approveThresholdOf(th Thresholds) float64 {
	if th.ApproveThreshold != nil {
		return *th.ApproveThreshold
	}
	return DefaultApproveThreshold
}

func changesThresholdOf(th Thresholds, fallback float64) float64 {
	if th.ChangesThreshold != nil {
		return *th.ChangesThreshold
	}
	return fallback
}

func criticalBlocks(th Thresholds) bool {
	return th.CriticalBlocks == nil || *th.CriticalBlocks
}

func anyCriticalStrategy(m voteMetrics, th Thresholds) (Outcome, string) {
	limit := changesThresholdOf(th, DefaultAnyCriticalChangesThreshold)
	if m.ChangesPercentage > limit {
		return OutcomeQueueChanges, fmt.Sprintf("changes share %.2f exceeds %.2f", m.ChangesPercentage, limit)
	}
	return OutcomeApproved, "no critical votes and changes share within limit"
}

func unanimousStrategy(m voteMetrics, th Thresholds) (Outcome, string) {
	if m.ApproveCount+m.AbstainCount == m.VoteCount {
		return OutcomeApproved, "every vote approves or abstains"
	}
	if m.CriticalWeight > 0 {
		return OutcomeAddressCritical, "unanimity broken by critical votes"
	}
	return OutcomeQueueChanges, "unanimity broken by change requests"
}

func majorityStrategy(m voteMetrics, th Thresholds) (Outcome, string) {
	if m.ApprovalPercentage > 0.5 {
		return OutcomeApproved, fmt.Sprintf("approval share %.2f is a majority", m.ApprovalPercentage)
	}
	if m.ChangesPercentage > 0.5 {
		return OutcomeQueueChanges, fmt.Sprintf("changes share %.2f is a majority", m.ChangesPercentage)
	}
	return OutcomeEscalate, "no majority either way"
}

func quorumStrategy(m voteMetrics, th Thresholds) (Outcome, string) {
	need := quorumOf(th)
	if m.ApproveCount >= need {
		return OutcomeApproved, fmt.Sprintf("%d approvals meet quorum %d", m.ApproveCount, need)
	}
	return OutcomeQueueChanges, fmt.Sprintf("%d approvals below quorum %d", m.ApproveCount, need)
}

func weightedThresholdStrategy(m voteMetrics, th Thresholds) (Outcome, string) {
	approveAt := approveThresholdOf(th)
	changesAt := changesThresholdOf(th, DefaultChangesThreshold)
	if m.ApprovalPercentage >= approveAt {
		return OutcomeApproved, fmt.Sprintf("approval share %.2f meets %.2f", m.ApprovalPercentage, approveAt)
	}
	if m.ChangesPercentage >= changesAt {
		return OutcomeQueueChanges, fmt.Sprintf("changes share %.2f meets %.2f", m.ChangesPercentage, changesAt)
	}
	return OutcomeEscalate, "neither approval nor changes threshold reached"
}
