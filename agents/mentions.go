package agents

import (
	"sort"
	"strings"
)

// Mention is the ephemeral parse result for one @mention in a text.
type Mention struct {
	AgentID     string `json:"agent_id"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	MatchedText string `json:"matched_text"`
}

// ParseResult carries the accepted mentions and the text with them removed.
type ParseResult struct {
	Mentions  []Mention `json:"mentions"`
	CleanText string    `json:"clean_text"`
}

// ParseMentions extracts @mentions of registered agents from text and strips
// them from the returned clean text.
//
// Parsing runs in two passes over an explicit interval set, not backtracking
// regexes:
//
//  1. Multi-word pass: every agent name, longest first, is searched as
//     "@<name>" followed by whitespace, end of text, or punctuation
//     (ASCII case-insensitive). A candidate overlapping an already accepted
//     range is rejected; ties go to the first match found.
//  2. Single-word pass: remaining "@word[-word]*" tokens are resolved against
//     agent ids, exact single-word names, and trigger keywords. Unresolved
//     tokens stay in the text untouched.
//
// Accepted ranges are removed in descending start order so earlier indices
// stay valid, then the result is whitespace-normalized.
func (r *Registry) ParseMentions(text string) ParseResult {
	agents := r.snapshot()
	lower := lowerASCII(text)

	var accepted []Mention

	// Pass 1: longest agent names first.
	byNameLen := make([]Agent, len(agents))
	copy(byNameLen, agents)
	sort.SliceStable(byNameLen, func(i, j int) bool {
		return len(byNameLen[i].Name) > len(byNameLen[j].Name)
	})
	for _, agent := range byNameLen {
		if agent.Name == "" {
			continue
		}
		needle := "@" + lowerASCII(agent.Name)
		from := 0
		for {
			idx := strings.Index(lower[from:], needle)
			if idx < 0 {
				break
			}
			start := from + idx
			end := start + len(needle)
			from = start + 1
			if !boundaryAt(lower, end) {
				continue
			}
			if overlaps(accepted, start, end) {
				continue
			}
			accepted = append(accepted, Mention{
				AgentID:     agent.ID,
				StartIndex:  start,
				EndIndex:    end,
				MatchedText: text[start:end],
			})
		}
	}

	// Pass 2: single-word tokens not covered by an accepted range.
	for i := 0; i < len(lower); i++ {
		if lower[i] != '@' || covered(accepted, i) {
			continue
		}
		end := scanToken(lower, i+1)
		if end == i+1 {
			continue
		}
		if overlaps(accepted, i, end) {
			continue
		}
		token := lower[i+1 : end]
		agentID, ok := resolveToken(agents, token)
		if !ok {
			continue
		}
		accepted = append(accepted, Mention{
			AgentID:     agentID,
			StartIndex:  i,
			EndIndex:    end,
			MatchedText: text[i:end],
		})
	}

	// Strip accepted ranges from the highest start index down.
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].StartIndex > accepted[j].StartIndex })
	clean := text
	for _, m := range accepted {
		clean = clean[:m.StartIndex] + clean[m.EndIndex:]
	}
	clean = strings.Join(strings.Fields(clean), " ")

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].StartIndex < accepted[j].StartIndex })
	return ParseResult{Mentions: accepted, CleanText: clean}
}

// boundaryAt reports whether position end terminates a mention: end of text,
// whitespace, or punctuation that cannot continue a word.
func boundaryAt(s string, end int) bool {
	if end >= len(s) {
		return true
	}
	c := s[end]
	return !isWordByte(c) && c != '-'
}

// scanToken consumes word characters and single interior hyphens starting at
// pos, returning the index one past the token.
func scanToken(s string, pos int) int {
	i := pos
	for i < len(s) {
		if isWordByte(s[i]) {
			i++
			continue
		}
		// A hyphen continues the token only when followed by a word character.
		if s[i] == '-' && i+1 < len(s) && isWordByte(s[i+1]) {
			i++
			continue
		}
		break
	}
	return i
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// lowerASCII folds A-Z to a-z and leaves every other byte alone. Unlike
// strings.ToLower it never changes byte lengths, so indices computed on the
// folded string are valid in the original. Multibyte runes stay untouched and
// simply never match an ASCII needle.
func lowerASCII(s string) string {
	i := 0
	for ; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			break
		}
	}
	if i == len(s) {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// resolveToken matches a folded token against agent id, exact single-word
// name, or trigger keyword.
func resolveToken(agents []Agent, token string) (string, bool) {
	for _, agent := range agents {
		if lowerASCII(agent.ID) == token {
			return agent.ID, true
		}
		if !strings.Contains(agent.Name, " ") && lowerASCII(agent.Name) == token {
			return agent.ID, true
		}
		for _, kw := range agent.TriggerKeywords {
			if lowerASCII(kw) == token {
				return agent.ID, true
			}
		}
	}
	return "", false
}

func overlaps(mentions []Mention, start, end int) bool {
	for _, m := range mentions {
		if start < m.EndIndex && end > m.StartIndex {
			return true
		}
	}
	return false
}

func covered(mentions []Mention, pos int) bool {
	for _, m := range mentions {
		if pos >= m.StartIndex && pos < m.EndIndex {
			return true
		}
	}
	return false
}
