package review

import (
	"encoding/json"
	"strings"
)

// ParsedResponse is the structured reading of a reviewer's free-text reply.
type ParsedResponse struct {
	// Vote is empty when no VOTE: line was found.
	Vote     VoteKind
	Feedback string
	Issues   []Issue
}

// ParseReviewerResponse extracts structure from a reviewer's raw text.
//
// A "VOTE: <kind>" line (case-insensitive) sets the vote. A "FEEDBACK:"
// marker starts the feedback block, which runs to the next "ISSUES:" marker
// or end of text; without the marker the whole text is the feedback. An
// "ISSUES:" marker is followed by a JSON array of issues; malformed JSON is
// ignored rather than treated as an error.
func ParseReviewerResponse(raw string) ParsedResponse {
	parsed := ParsedResponse{Feedback: strings.TrimSpace(raw)}
	upper := strings.ToUpper(raw)

	if idx := strings.Index(upper, "VOTE:"); idx >= 0 {
		rest := raw[idx+len("VOTE:"):]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		if fields := strings.Fields(rest); len(fields) > 0 {
			kind := VoteKind(strings.ToLower(fields[0]))
			if ValidVoteKind(kind) {
				parsed.Vote = kind
			}
		}
	}

	issuesIdx := strings.Index(upper, "ISSUES:")
	if fbIdx := strings.Index(upper, "FEEDBACK:"); fbIdx >= 0 {
		end := len(raw)
		if issuesIdx > fbIdx {
			end = issuesIdx
		}
		parsed.Feedback = strings.TrimSpace(raw[fbIdx+len("FEEDBACK:") : end])
	}

	if issuesIdx >= 0 {
		var issues []Issue
		dec := json.NewDecoder(strings.NewReader(raw[issuesIdx+len("ISSUES:"):]))
		if err := dec.Decode(&issues); err == nil {
			parsed.Issues = issues
		}
	}
	return parsed
}
