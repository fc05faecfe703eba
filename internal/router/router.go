// Package router classifies queries between the fast retrieval path and
// the deep analysis path.
//
// Three-tier classification:
//  1. Deterministic guardrails: hard rules for obvious cases, zero latency
//  2. LLM judge: one cheap model call for ambiguous queries
//  3. Conservative fallback: default to deep when uncertain
package router

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/session"
)

// Decision is the result of classifying a query.
type Decision struct {
	Mode   session.Mode
	Reason string
}

// Judge is the optional tier-2 classifier capability: one short
// completion with a system instruction. Absence is a valid input.
type Judge interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, costs.Usage, error)
}

type rule struct {
	re     *regexp.Regexp
	reason string
}

func compileRules(raw [][2]string) []rule {
	rules := make([]rule, len(raw))
	for i, r := range raw {
		rules[i] = rule{re: regexp.MustCompile(r[0]), reason: r[1]}
	}
	return rules
}

// Deep-path surface patterns: synthesis, comparison, quantitative, and
// strategic language.
var deepRules = compileRules([][2]string{
	// Cross-episode synthesis
	{`\bacross\s+episodes?\b`, "cross-episode synthesis"},
	{`\bcompare\b`, "comparison analysis"},
	{`\bwhat\s+do\s+(guests?|people|experts?|leaders?)\s+(think|say|believe|recommend)\b`, "cross-episode synthesis"},
	{`\b(guests?|people|experts?|leaders?)\s+(recommend|suggest|advise)\b`, "cross-episode synthesis"},
	{`\bthemes?\b`, "thematic analysis"},
	{`\bpatterns?\b`, "pattern analysis"},
	{`\bdisagree\b`, "cross-episode comparison"},
	{`\bconsensus\b`, "consensus analysis"},
	{`\bcommon(ly)?\b.*\b(advice|theme|pattern|thread|view|opinion)\b`, "cross-episode synthesis"},

	// Quantitative / exhaustive
	{`\bhow\s+many\b`, "quantitative analysis"},
	{`\ball\s+episodes?\b`, "exhaustive search"},
	{`\bevery\s+guest\b`, "exhaustive search"},
	{`\blist\s+all\b`, "exhaustive listing"},
	{`\brank\b.*\b(guests?|episodes?|topics?)\b`, "ranking analysis"},
	{`\bmost\s+common\b`, "frequency analysis"},
	{`\bmost\s+popular\b`, "frequency analysis"},

	// Complex analysis
	{`\bframeworks?\b`, "framework analysis"},
	{`\bsummarize\s+all\b`, "exhaustive summary"},
	{`\btrends?\b`, "trend analysis"},
	{`\bevolution\s+of\b`, "evolution analysis"},
	{`\bover\s+time\b`, "temporal analysis"},
	{`\bchanged?\s+(over|through|across)\b`, "temporal analysis"},

	// Strategic / generative asks
	{`\b(guide|playbook|handbook)\b`, "synthesis deliverable"},
	{`\bstrategy\s+for\b`, "strategic synthesis"},
	{`\b0\s+to\s+1\b`, "strategic synthesis"},
	{`\bfrom\s+scratch\b`, "strategic synthesis"},
	{`\bend.to.end\b`, "strategic synthesis"},
})

// Fast-path surface patterns: specific targeted lookups.
var fastRules = compileRules([][2]string{
	{`\bwhat\s+did\s+\w+(\s+\w+)?\s+(say|mention|talk|discuss|recommend)\b`, "specific guest lookup"},
	{`\bwhich\s+episode\b`, "episode lookup"},
	{`\bfind\s+(the\s+)?quote\b`, "quote lookup"},
	{`\bwho\s+said\b`, "quote attribution"},
	{`\bwhen\s+(was|did)\b`, "factual lookup"},
	{`\bwhat\s+is\b`, "definition lookup"},
	{`\bdefine\b`, "definition lookup"},
	{`\btell\s+me\s+about\s+the\s+episode\b`, "episode lookup"},
})

// Multi-entity / plural-subject patterns force the deep path even when a
// fast-path surface pattern also matches.
var multiEntityRules = compileRules([][2]string{
	{`\bguests\b`, "multi-guest synthesis"},
	{`\bexperts\b`, "multi-expert synthesis"},
	{`\bleaders\b`, "multi-leader synthesis"},
	{`\bpeople\b`, "multi-person synthesis"},
	{`\b\w+\s+and\s+\w+\s+on\b`, "multi-entity comparison"},
	{`\bboth\b`, "comparison analysis"},
	{`\bdifferent\s+(guests?|people|views?|opinions?|perspectives?)\b`, "cross-episode synthesis"},
})

var followupRes = []*regexp.Regexp{
	regexp.MustCompile(`^(and|but|also|what about|how about|tell me more|expand|elaborate|narrow|can you)`),
	regexp.MustCompile(`^(more on|go deeper|dig into|specifically|in particular)`),
	regexp.MustCompile(`\b(you (just )?mentioned|from (that|those|the previous|your))\b`),
	regexp.MustCompile(`^(that|those|these|the same)\b`),
}

const judgeSystemPrompt = `You are a query routing classifier for a podcast transcript search application.

The application has two query paths:
- FAST: Keyword search + single LLM synthesis. Best for: looking up what a specific person said, finding a particular quote, checking a fact from one episode, simple definitions.
- DEEP: Multi-step analysis where an LLM writes code to search across all transcripts, extract patterns, and synthesize findings. Best for: comparing perspectives across guests, identifying themes, analyzing trends, any question requiring information from many episodes.

Given a user query, respond with exactly one word: FAST or DEEP.

If unsure, say DEEP (it's slower but more thorough, so it is the safe choice).`

const judgeMaxTokens = 8

// Classify routes a query using the three-tier approach.
//
// Tier 1, deterministic guardrails (evaluated strictly in order):
//
//	1a. follow-up to a deep turn routes deep
//	1b. multi-entity / plural-subject phrasing routes deep
//	1c. fast surface patterns (specific lookups) route fast
//	1d. deep surface patterns (synthesis/analysis) route deep
//
// Tier 2, the LLM judge, runs only when no guardrail matched and a judge was
// supplied; errors and unparseable answers fall through.
//
// Tier 3 is the conservative fallback: deep.
func Classify(ctx context.Context, query string, history []session.Turn, judge Judge) Decision {
	queryLower := strings.ToLower(strings.TrimSpace(query))

	// 1a. Follow-up detection. Only a prior deep turn forces the deep
	// path; follow-ups to fast turns fall through to the other tiers.
	if len(history) > 0 && isFollowup(queryLower) {
		if lastModeWasDeep(history[len(history)-1].Mode) {
			return Decision{session.ModeDeep, "follow-up to deep analysis"}
		}
	}

	// 1b. Multi-entity wins over fast surface patterns by evaluation order.
	for _, r := range multiEntityRules {
		if r.re.MatchString(queryLower) {
			return Decision{session.ModeDeep, r.reason}
		}
	}

	// 1c. Fast signals (specific lookups).
	for _, r := range fastRules {
		if r.re.MatchString(queryLower) {
			return Decision{session.ModeFast, r.reason}
		}
	}

	// 1d. Deep signals (synthesis/analysis).
	for _, r := range deepRules {
		if r.re.MatchString(queryLower) {
			return Decision{session.ModeDeep, r.reason}
		}
	}

	// Tier 2: LLM judge for ambiguous queries.
	if judge != nil {
		if decision, ok := llmJudge(ctx, query, judge); ok {
			return decision
		}
	}

	// Tier 3: conservative fallback.
	return Decision{session.ModeDeep, "ambiguous → default deep"}
}

var judgeTokenRe = regexp.MustCompile(`\b(FAST|DEEP)\b`)

// llmJudge asks the judge model to classify an ambiguous query. A single
// best-effort attempt: any error or unparseable answer returns ok=false
// and is logged, never surfaced.
func llmJudge(ctx context.Context, query string, judge Judge) (Decision, bool) {
	start := time.Now()
	answer, usage, err := judge.Complete(ctx, judgeSystemPrompt, query, judgeMaxTokens)
	if err != nil {
		slog.Debug("llm judge error", "error", err)
		return Decision{}, false
	}

	slog.Debug("llm judge",
		"query", query,
		"answer", answer,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)

	// Whole-word token match anywhere in the response tolerates trailing
	// punctuation or extra words.
	switch judgeTokenRe.FindString(strings.ToUpper(answer)) {
	case "FAST":
		return Decision{session.ModeFast, "llm-judge → fast"}, true
	case "DEEP":
		return Decision{session.ModeDeep, "llm-judge → deep"}, true
	}
	slog.Debug("llm judge returned unparseable answer", "answer", answer)
	return Decision{}, false
}

func isFollowup(queryLower string) bool {
	for _, re := range followupRes {
		if re.MatchString(queryLower) {
			return true
		}
	}
	return false
}

// lastModeWasDeep accepts the current tag plus legacy spellings recorded
// by earlier releases.
func lastModeWasDeep(mode session.Mode) bool {
	switch string(mode) {
	case "deep", "research", "rlm":
		return true
	}
	return false
}
