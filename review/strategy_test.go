package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func metricsOf(approveW, changesW, criticalW float64, approveCount, voteCount, abstains int) voteMetrics {
	m := voteMetrics{
		VoteCount:      voteCount,
		AbstainCount:   abstains,
		ApproveCount:   approveCount,
		ApproveWeight:  approveW,
		ChangesWeight:  changesW,
		CriticalWeight: criticalW,
	}
	m.TotalWeight = approveW + changesW + criticalW
	if m.TotalWeight > 0 {
		m.ApprovalPercentage = approveW / m.TotalWeight
		m.ChangesPercentage = changesW / m.TotalWeight
		m.CriticalPercentage = criticalW / m.TotalWeight
	}
	return m
}

func TestAnyCriticalStrategy(t *testing.T) {
	t.Parallel()
	// Changes at 60% exceeds the 0.5 default.
	out, _ := anyCriticalStrategy(metricsOf(2, 3, 0, 2, 5, 0), Thresholds{})
	assert.Equal(t, OutcomeQueueChanges, out)

	out, _ = anyCriticalStrategy(metricsOf(3, 2, 0, 3, 5, 0), Thresholds{})
	assert.Equal(t, OutcomeApproved, out)

	limit := 0.3
	out, _ = anyCriticalStrategy(metricsOf(3, 2, 0, 3, 5, 0), Thresholds{ChangesThreshold: &limit})
	assert.Equal(t, OutcomeQueueChanges, out)
}

func TestUnanimousStrategy(t *testing.T) {
	t.Parallel()
	out, _ := unanimousStrategy(metricsOf(3, 0, 0, 3, 4, 1), Thresholds{})
	assert.Equal(t, OutcomeApproved, out, "abstains do not break unanimity")

	out, _ = unanimousStrategy(metricsOf(3, 0, 1, 3, 4, 0), Thresholds{})
	assert.Equal(t, OutcomeAddressCritical, out)

	out, _ = unanimousStrategy(metricsOf(3, 1, 0, 3, 4, 0), Thresholds{})
	assert.Equal(t, OutcomeQueueChanges, out)
}

func TestMajorityStrategy(t *testing.T) {
	t.Parallel()
	out, _ := majorityStrategy(metricsOf(2, 1, 0, 2, 3, 0), Thresholds{})
	assert.Equal(t, OutcomeApproved, out)

	out, _ = majorityStrategy(metricsOf(1, 2, 0, 1, 3, 0), Thresholds{})
	assert.Equal(t, OutcomeQueueChanges, out)

	// A dead tie has no majority.
	out, _ = majorityStrategy(metricsOf(1, 1, 0, 1, 2, 0), Thresholds{})
	assert.Equal(t, OutcomeEscalate, out)
}

func TestQuorumStrategy(t *testing.T) {
	t.Parallel()
	out, _ := quorumStrategy(metricsOf(2, 5, 0, 2, 3, 0), Thresholds{Quorum: 2})
	assert.Equal(t, OutcomeApproved, out, "raw approve count decides, not weight")

	out, _ = quorumStrategy(metricsOf(9, 0, 0, 1, 2, 0), Thresholds{Quorum: 2})
	assert.Equal(t, OutcomeQueueChanges, out)
}

func TestWeightedThresholdStrategy(t *testing.T) {
	t.Parallel()
	out, _ := weightedThresholdStrategy(metricsOf(7, 3, 0, 7, 10, 0), Thresholds{})
	assert.Equal(t, OutcomeApproved, out, "0.7 approval meets the default")

	out, _ = weightedThresholdStrategy(metricsOf(6, 4, 0, 6, 10, 0), Thresholds{})
	assert.Equal(t, OutcomeQueueChanges, out)

	out, _ = weightedThresholdStrategy(metricsOf(6, 3, 1, 6, 10, 0), Thresholds{})
	assert.Equal(t, OutcomeEscalate, out, "neither threshold reached")
}

func TestStrategyFor_UnknownTagFallsBack(t *testing.T) {
	t.Parallel()
	out, _ := strategyFor("")(metricsOf(7, 3, 0, 7, 10, 0), Thresholds{})
	assert.Equal(t, OutcomeApproved, out)

	out, _ = strategyFor("made_up")(metricsOf(6, 4, 0, 6, 10, 0), Thresholds{})
	assert.Equal(t, OutcomeQueueChanges, out)
}
