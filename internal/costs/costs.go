// Package costs tracks token usage and estimated spend per query and per
// session.
package costs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Pricing is USD per million tokens.
type Pricing struct {
	Input  float64
	Output float64
}

// modelPricing holds per-model rates; unknown models fall back to
// defaultPricing.
var modelPricing = map[string]Pricing{
	"claude-opus-4-1-20250805":   {Input: 15.0, Output: 75.0},
	"claude-opus-4-20250514":     {Input: 15.0, Output: 75.0},
	"claude-sonnet-4-20250514":   {Input: 3.0, Output: 15.0},
	"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.0},
	"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
	"anthropic.claude-3-5-haiku": {Input: 0.80, Output: 4.0},
}

var defaultPricing = Pricing{Input: 3.0, Output: 15.0}

// Usage is the token count reported by one or more calls to a model.
type Usage struct {
	Calls        int
	InputTokens  int64
	OutputTokens int64
}

// ModelCost is the priced usage of a single model within one query.
type ModelCost struct {
	Usage
	InputCost  float64
	OutputCost float64
	TotalCost  float64
}

// QueryCost is the cost breakdown for a single query.
type QueryCost struct {
	ModelCosts    map[string]ModelCost
	TotalCost     float64
	ExecutionTime time.Duration
}

// FromUsage prices a single model's usage into a QueryCost.
func FromUsage(model string, usage Usage, elapsed time.Duration) QueryCost {
	qc := QueryCost{
		ModelCosts:    make(map[string]ModelCost),
		ExecutionTime: elapsed,
	}
	qc.add(model, usage)
	return qc
}

// Add merges another model's usage into this query's breakdown.
func (qc *QueryCost) Add(model string, usage Usage) {
	if qc.ModelCosts == nil {
		qc.ModelCosts = make(map[string]ModelCost)
	}
	qc.add(model, usage)
}

func (qc *QueryCost) add(model string, usage Usage) {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = defaultPricing
	}
	mc := qc.ModelCosts[model]
	mc.Calls += usage.Calls
	mc.InputTokens += usage.InputTokens
	mc.OutputTokens += usage.OutputTokens
	mc.InputCost = float64(mc.InputTokens) / 1_000_000 * pricing.Input
	mc.OutputCost = float64(mc.OutputTokens) / 1_000_000 * pricing.Output

	qc.TotalCost -= mc.TotalCost
	mc.TotalCost = mc.InputCost + mc.OutputCost
	qc.TotalCost += mc.TotalCost
	qc.ModelCosts[model] = mc
}

// Session is the append-only cost ledger for one chat session.
// Methods are safe for concurrent use, though queries execute one at a
// time in practice.
type Session struct {
	mu                sync.Mutex
	queries           []QueryCost
	totalInputTokens  int64
	totalOutputTokens int64
	totalCost         float64
}

// NewSession creates an empty cost ledger.
func NewSession() *Session {
	return &Session{}
}

// AddQuery records a completed query's cost.
func (s *Session) AddQuery(qc QueryCost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mc := range qc.ModelCosts {
		s.totalInputTokens += mc.InputTokens
		s.totalOutputTokens += mc.OutputTokens
	}
	s.totalCost += qc.TotalCost
	s.queries = append(s.queries, qc)
}

// Summary is a point-in-time view of the session ledger.
type Summary struct {
	Queries           int
	TotalInputTokens  int64
	TotalOutputTokens int64
	TotalCost         float64
}

// Summary returns the accumulated session totals.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Queries:           len(s.queries),
		TotalInputTokens:  s.totalInputTokens,
		TotalOutputTokens: s.totalOutputTokens,
		TotalCost:         s.totalCost,
	}
}

// FormatQueryCost formats a single query's cost for display.
func FormatQueryCost(qc QueryCost) string {
	models := make([]string, 0, len(qc.ModelCosts))
	for model := range qc.ModelCosts {
		models = append(models, model)
	}
	sort.Strings(models)

	var lines []string
	for _, model := range models {
		mc := qc.ModelCosts[model]
		lines = append(lines, fmt.Sprintf(
			"  %s: %d calls, %s in / %s out tokens ($%.4f)",
			shortModelName(model), mc.Calls,
			formatCount(mc.InputTokens), formatCount(mc.OutputTokens),
			mc.TotalCost,
		))
	}
	lines = append(lines, fmt.Sprintf(
		"  Query total: $%.4f in %.1fs", qc.TotalCost, qc.ExecutionTime.Seconds(),
	))
	return strings.Join(lines, "\n")
}

// FormatSessionCost formats the cumulative session totals for display.
func FormatSessionCost(sum Summary) string {
	return strings.Join([]string{
		fmt.Sprintf("Session: %d queries", sum.Queries),
		fmt.Sprintf("  Total tokens: %s in / %s out", formatCount(sum.TotalInputTokens), formatCount(sum.TotalOutputTokens)),
		fmt.Sprintf("  Total cost: $%.4f", sum.TotalCost),
	}, "\n")
}

func shortModelName(model string) string {
	switch {
	case strings.Contains(model, "opus"):
		return "Opus"
	case strings.Contains(model, "sonnet"):
		return "Sonnet"
	case strings.Contains(model, "haiku"):
		return "Haiku"
	}
	return model
}

// formatCount renders a token count with thousands separators.
func formatCount(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}
