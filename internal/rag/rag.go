// Package rag implements the fast query path: BM25 retrieval plus a
// single synthesis call against the configured model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/search"
	"github.com/marcus-pm/lenny-cli/internal/session"
)

// InsufficientEvidence is the zero-cost refusal returned when retrieval
// finds nothing strong enough to synthesize from.
const InsufficientEvidence = "I couldn't find enough relevant information in the podcast transcripts " +
	"to answer this question confidently. Try rephrasing your question, or " +
	"use `/mode deep` for a deeper search that examines transcripts more thoroughly."

const systemPrompt = `You are a research assistant specialized in Lenny's Podcast transcripts. Answer the user's question using ONLY the provided transcript excerpts.

## Rules
- Base your answer solely on the excerpts below. Do not invent or assume information.
- If the excerpts don't contain enough information to answer confidently, say so clearly.
- Cite every episode you reference: **Guest Name** in *Episode Title* ([link](youtube_url))
- When quoting, attribute the quote to the speaker.
- Structure your answer with markdown headers/bullets as appropriate.
- Keep your answer concise but thorough, aiming for 2-4 paragraphs.
`

const (
	synthesisMaxTokens = 4096
	historyTurns       = 5
	historyAnswerChars = 500
)

// Synthesizer is the single-call completion capability the engine needs.
type Synthesizer interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, costs.Usage, error)
}

// Options bound retrieval and context assembly. Zero values take the
// defaults from DefaultOptions.
type Options struct {
	// TopK is how many scored chunks retrieval returns.
	TopK int
	// Threshold is the minimum best-chunk score worth synthesizing from.
	Threshold float64
	// MaxPerEpisode caps chunks kept from a single episode.
	MaxPerEpisode int
	// MaxTotal caps the chunks sent to the model.
	MaxTotal int
}

// DefaultOptions returns the tuned retrieval bounds.
func DefaultOptions() Options {
	return Options{
		TopK:          30,
		Threshold:     5.0,
		MaxPerEpisode: 3,
		MaxTotal:      15,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if o.Threshold <= 0 {
		o.Threshold = def.Threshold
	}
	if o.MaxPerEpisode <= 0 {
		o.MaxPerEpisode = def.MaxPerEpisode
	}
	if o.MaxTotal <= 0 {
		o.MaxTotal = def.MaxTotal
	}
	return o
}

// Engine is the fast query path.
type Engine struct {
	index *search.Index
	model Synthesizer
	opts  Options
}

// New creates a fast-path engine over a built search index.
func New(index *search.Index, model Synthesizer, opts Options) *Engine {
	return &Engine{index: index, model: model, opts: opts.withDefaults()}
}

// Query retrieves, gates, deduplicates, and synthesizes an answer.
//
// When the best retrieval score is below the relevance threshold the
// canned refusal is returned with a zero-token cost and no model call.
// Model errors propagate to the caller; nothing is recorded on failure.
func (e *Engine) Query(ctx context.Context, question string, history *session.History) (string, costs.QueryCost, error) {
	start := time.Now()

	results := e.index.SearchWithScores(question, e.opts.TopK)

	if len(results) == 0 || results[0].Score < e.opts.Threshold {
		slog.Debug("relevance gate refused query",
			"question", question,
			"results", len(results),
		)
		return InsufficientEvidence, costs.FromUsage(e.model.Name(), costs.Usage{}, time.Since(start)), nil
	}

	kept := dedupe(results, e.opts.MaxPerEpisode, e.opts.MaxTotal)

	var sb strings.Builder
	sb.WriteString(formatExcerpts(kept))
	if ht := formatHistory(history); ht != "" {
		sb.WriteString("\n\n")
		sb.WriteString(ht)
	}
	sb.WriteString("\n\n## Question\n")
	sb.WriteString(question)

	answer, usage, err := e.model.Complete(ctx, systemPrompt, sb.String(), synthesisMaxTokens)
	if err != nil {
		return "", costs.QueryCost{}, fmt.Errorf("synthesize answer: %w", err)
	}

	slog.Debug("fast path complete",
		"chunks", len(kept),
		"top_score", results[0].Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer, costs.FromUsage(e.model.Name(), usage, time.Since(start)), nil
}

// dedupe keeps at most maxPerEpisode chunks per episode in score order,
// then caps the total.
func dedupe(results []search.Result, maxPerEpisode, maxTotal int) []search.Result {
	perEpisode := make(map[string]int)
	kept := make([]search.Result, 0, maxTotal)
	for _, r := range results {
		if perEpisode[r.Chunk.EpisodeSlug] >= maxPerEpisode {
			continue
		}
		perEpisode[r.Chunk.EpisodeSlug]++
		kept = append(kept, r)
	}
	// Results arrive sorted by score, and the per-episode filter keeps
	// relative order, so a cap is all that remains.
	if len(kept) > maxTotal {
		kept = kept[:maxTotal]
	}
	return kept
}

func formatExcerpts(results []search.Result) string {
	var sb strings.Builder
	sb.WriteString("## Transcript Excerpts\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "### Excerpt %d: %s — *%s*\n", i+1, r.Chunk.Guest, r.Chunk.Title)
		fmt.Fprintf(&sb, "**Episode:** [%s](%s)\n\n", r.Chunk.Title, r.Chunk.YoutubeURL)
		sb.WriteString(r.Chunk.Text)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatHistory includes only fast-mode turns so the model is not
// confused by the deep path's longer answers.
func formatHistory(history *session.History) string {
	if history == nil {
		return ""
	}
	recent := history.RecentByMode(session.ModeFast, historyTurns, historyAnswerChars)
	if len(recent) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Conversation History\n\n")
	for _, t := range recent {
		fmt.Fprintf(&sb, "**Q:** %s\n", t.Question)
		fmt.Fprintf(&sb, "**A:** %s\n\n", t.Answer)
	}
	return strings.TrimRight(sb.String(), "\n")
}
