// Package deep implements the agentic query path: an orchestrating agent
// explores transcripts with code and sub-model calls, wrapped here with
// context assembly and rate-limit retry.
package deep

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/marcus-pm/lenny-cli/internal/corpus"
	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/llm"
	"github.com/marcus-pm/lenny-cli/internal/session"
)

const (
	// maxQueryRetries is the retry count on rate-limited attempts; three
	// attempts total. This wrapper is the single retry authority for the
	// whole query, sized for token-per-minute windows rather than
	// transient faults.
	maxQueryRetries = 2
	// maxTotalRetryWait caps the summed outer waits per query.
	maxTotalRetryWait = 120 * time.Second
	// defaultRetryWait is roughly one token-per-minute window.
	defaultRetryWait = 30 * time.Second
	// maxAttemptWait caps any single wait.
	maxAttemptWait = 90 * time.Second
	// maxRetryAfterHint: server hints beyond this are treated as noise.
	maxRetryAfterHint = 120 * time.Second

	// catalogKeywordCap bounds keywords per episode in the slim catalog.
	catalogKeywordCap = 3
)

// ContextPayload is the structured context handed to the agent alongside
// the question. The catalog is slimmed (keywords capped, YouTube links
// hoisted into a lookup map) to keep the orchestrator prompt small.
type ContextPayload struct {
	Catalog             []corpus.CatalogEntry `json:"catalog"`
	TranscriptDir       string                `json:"transcript_dir"`
	YoutubeURLs         map[string]string     `json:"youtube_urls"`
	ConversationHistory []HistoryEntry        `json:"conversation_history"`
}

// HistoryEntry is one prior exchange in the payload.
type HistoryEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Result is a completed agent run.
type Result struct {
	Answer string
	// UsageByModel maps model name to the tokens it consumed across the
	// run, orchestrator and sub-calls alike.
	UsageByModel map[string]costs.Usage
}

// Agent executes one deep analysis run. Implementations own the
// orchestration loop; the engine owns context assembly and retries.
type Agent interface {
	Run(ctx context.Context, question string, payload ContextPayload) (Result, error)
}

// WaitFunc is notified before each rate-limit backoff sleep: the wait
// duration, the attempt number (1-based), and the total retry budget.
type WaitFunc func(wait time.Duration, attempt, totalRetries int)

// Engine wraps an agent with payload construction and query-level retry.
type Engine struct {
	index  *corpus.Index
	agent  Agent
	onWait WaitFunc

	// test seams
	sleep  func(context.Context, time.Duration) error
	now    func() time.Time
	jitter func() time.Duration
}

// New creates a deep-path engine. onWait may be nil.
func New(index *corpus.Index, agent Agent, onWait WaitFunc) *Engine {
	return &Engine{
		index:  index,
		agent:  agent,
		onWait: onWait,
		sleep:  sleepContext,
		now:    time.Now,
		jitter: func() time.Duration { return time.Duration(rand.Float64() * float64(5*time.Second)) },
	}
}

// Query runs a question through the agent with rate-limit retry.
//
// Non-rate-limit errors propagate immediately. Rate-limited attempts are
// retried up to maxQueryRetries times with a server-hinted or exponential
// wait, abandoning early when the next wait would blow the wall-clock
// budget. Nothing is recorded on failure.
func (e *Engine) Query(ctx context.Context, question string, history *session.History) (string, costs.QueryCost, error) {
	payload := e.BuildContextPayload(history)
	start := e.now()

	var lastErr error
	for attempt := 0; attempt <= maxQueryRetries; attempt++ {
		result, err := e.agent.Run(ctx, question, payload)
		if err == nil {
			qc := costs.QueryCost{ExecutionTime: e.now().Sub(start)}
			for model, usage := range result.UsageByModel {
				qc.Add(model, usage)
			}
			return result.Answer, qc, nil
		}
		if !llm.IsRateLimit(err) {
			return "", costs.QueryCost{}, fmt.Errorf("deep query: %w", err)
		}
		lastErr = err
		if attempt >= maxQueryRetries {
			break
		}

		wait := e.retryWait(err, attempt)
		if e.now().Sub(start)+wait > maxTotalRetryWait {
			slog.Warn("rate-limit retry budget exhausted",
				"attempt", attempt+1,
				"wait", wait,
			)
			break
		}
		slog.Info("rate limited, backing off",
			"wait", wait,
			"attempt", attempt+1,
			"max_retries", maxQueryRetries,
		)
		if e.onWait != nil {
			e.onWait(wait, attempt+1, maxQueryRetries)
		}
		if err := e.sleep(ctx, wait); err != nil {
			return "", costs.QueryCost{}, err
		}
	}
	return "", costs.QueryCost{}, fmt.Errorf("deep query: %w", lastErr)
}

// sleepContext waits for d, returning early with ctx's error when the
// context is canceled. Backoff waits must stay interruptible so Ctrl+C
// does not hang on a 90-second timer.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWait prefers a plausible server retry-after hint, otherwise backs
// off exponentially from the token-window default. Jitter is added and
// the result capped per attempt.
func (e *Engine) retryWait(err error, attempt int) time.Duration {
	var base time.Duration
	if hint, ok := llm.RetryAfterHint(err); ok && hint <= maxRetryAfterHint {
		base = hint
	} else {
		base = time.Duration(float64(defaultRetryWait) * math.Pow(1.5, float64(attempt)))
	}
	wait := base + e.jitter()
	if wait > maxAttemptWait {
		wait = maxAttemptWait
	}
	return wait
}

// BuildContextPayload assembles the slim catalog, the YouTube lookup
// map, and the trimmed conversation history.
func (e *Engine) BuildContextPayload(history *session.History) ContextPayload {
	catalog := e.index.Catalog()
	slim := make([]corpus.CatalogEntry, len(catalog))
	urls := make(map[string]string, len(catalog))
	for i, entry := range catalog {
		urls[entry.Slug] = entry.YoutubeURL
		entry.YoutubeURL = ""
		if len(entry.Keywords) > catalogKeywordCap {
			entry.Keywords = entry.Keywords[:catalogKeywordCap]
		}
		slim[i] = entry
	}

	var turns []HistoryEntry
	if history != nil {
		for _, t := range history.Trimmed() {
			turns = append(turns, HistoryEntry{Question: t.Question, Answer: t.Answer})
		}
	}

	return ContextPayload{
		Catalog:             slim,
		TranscriptDir:       e.index.Dir(),
		YoutubeURLs:         urls,
		ConversationHistory: turns,
	}
}
