// Package review implements multi-reviewer panels: weighted votes are
// collected per node execution and aggregated into a single outcome by a
// configurable voting strategy.
package review

import "time"

// VoteKind classifies a reviewer's verdict.
type VoteKind string

const (
	VoteApprove        VoteKind = "approve"
	VoteRequestChanges VoteKind = "request_changes"
	VoteCritical       VoteKind = "critical"
	VoteAbstain        VoteKind = "abstain"
)

// ValidVoteKind reports whether k is one of the four vote kinds.
func ValidVoteKind(k VoteKind) bool {
	switch k {
	case VoteApprove, VoteRequestChanges, VoteCritical, VoteAbstain:
		return true
	}
	return false
}

// Issue is a single problem a reviewer flagged.
type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Critical reports whether the issue carries critical severity.
func (i Issue) Critical() bool { return i.Severity == "critical" }

// ReviewerVote is one appended vote. Votes are append-only and never
// deduplicated by reviewer; a reviewer voting twice is counted twice.
type ReviewerVote struct {
	ID               string    `json:"id"`
	PanelExecutionID string    `json:"panel_execution_id"`
	ReviewerID       string    `json:"reviewer_id"`
	Vote             VoteKind  `json:"vote"`
	Feedback         string    `json:"feedback,omitempty"`
	Issues           []Issue   `json:"issues,omitempty"`
	Weight           float64   `json:"weight"`
	CreatedAt        time.Time `json:"created_at"`
}
