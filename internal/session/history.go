// Package session owns the conversation history for one chat session.
//
// History is the single capped-history abstraction both query paths and
// the router consume: turns are appended only after a path fully
// succeeds, stored answers are bounded, and downstream consumers get
// bounded views rather than slicing the raw log themselves.
package session

import "unicode/utf8"

// Mode tags which path produced a turn's answer.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeDeep Mode = "deep"
)

// Turn is one completed question/answer exchange.
type Turn struct {
	Question string
	Answer   string
	Mode     Mode
}

// Policy bounds what History retains and hands out.
type Policy struct {
	// MaxAnswerChars caps the answer stored per turn.
	MaxAnswerChars int
	// RecentTurns / RecentAnswerChars: the fuller recent window.
	RecentTurns       int
	RecentAnswerChars int
	// OlderTurns / OlderAnswerChars: the compressed older window.
	OlderTurns       int
	OlderAnswerChars int
}

// DefaultPolicy matches the trimming the deep-path payload expects:
// 3 recent turns at 1500 chars, 4 older turns compressed to 300 chars.
func DefaultPolicy() Policy {
	return Policy{
		MaxAnswerChars:    2000,
		RecentTurns:       3,
		RecentAnswerChars: 1500,
		OlderTurns:        4,
		OlderAnswerChars:  300,
	}
}

// History is the append-only turn log. Not safe for concurrent use;
// one query executes at a time per session.
type History struct {
	policy Policy
	turns  []Turn
}

// New creates an empty history with the given policy.
func New(policy Policy) *History {
	return &History{policy: policy}
}

// Append records a completed turn, truncating the stored answer to the
// policy's per-turn budget. Callers must only append after the producing
// path fully succeeded.
func (h *History) Append(question, answer string, mode Mode) {
	h.turns = append(h.turns, Turn{
		Question: question,
		Answer:   truncate(answer, h.policy.MaxAnswerChars),
		Mode:     mode,
	})
}

// Len returns the number of recorded turns.
func (h *History) Len() int { return len(h.turns) }

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// Recent returns up to n most recent turns, oldest first.
func (h *History) Recent(n int) []Turn {
	if n <= 0 || len(h.turns) == 0 {
		return nil
	}
	start := max(0, len(h.turns)-n)
	out := make([]Turn, len(h.turns)-start)
	copy(out, h.turns[start:])
	return out
}

// RecentByMode returns up to n most recent turns produced by the given
// mode, oldest first, answers truncated to maxAnswerChars.
func (h *History) RecentByMode(mode Mode, n, maxAnswerChars int) []Turn {
	var filtered []Turn
	for _, t := range h.turns {
		if t.Mode == mode {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	for i := range filtered {
		filtered[i].Answer = truncate(filtered[i].Answer, maxAnswerChars)
	}
	return filtered
}

// Trimmed returns the deep-path context window: the policy's older turns
// compressed hard, followed by the recent turns at the fuller budget.
func (h *History) Trimmed() []Turn {
	p := h.policy
	total := len(h.turns)

	recentStart := max(0, total-p.RecentTurns)
	olderStart := max(0, total-p.RecentTurns-p.OlderTurns)

	var out []Turn
	for _, t := range h.turns[olderStart:recentStart] {
		t.Answer = truncate(t.Answer, p.OlderAnswerChars)
		out = append(out, t)
	}
	for _, t := range h.turns[recentStart:] {
		t.Answer = truncate(t.Answer, p.RecentAnswerChars)
		out = append(out, t)
	}
	return out
}

// truncate caps s at n bytes, backing the cut off to a rune boundary so
// a multibyte character is never split.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
