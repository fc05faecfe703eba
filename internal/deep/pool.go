package deep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcus-pm/lenny-cli/internal/costs"
	"github.com/marcus-pm/lenny-cli/internal/llm"
)

const (
	// maxConcurrentSubCalls keeps batched sub-model traffic inside entry
	// tier rate limits.
	maxConcurrentSubCalls = 2
	// delayBetweenCalls is the pacing pause after each completed call.
	delayBetweenCalls = time.Second
	// subCallMaxRetries bounds per-call retries on rate limits.
	subCallMaxRetries = 3
	// subCallRetryBase is the exponential backoff base for sub-calls.
	subCallRetryBase = 5 * time.Second

	subCallMaxTokens = 8192
)

// SubModel is the completion capability the pool fans prompts out to.
type SubModel interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, costs.Usage, error)
}

// SubcallPool throttles batched sub-model calls: bounded concurrency, a
// pacing delay after each call, and per-call backoff on rate limits.
// Agent implementations take it by injection.
type SubcallPool struct {
	model SubModel

	mu    sync.Mutex
	usage costs.Usage

	sleep func(context.Context, time.Duration) error
}

// NewSubcallPool creates a pool over the given sub-model.
func NewSubcallPool(model SubModel) *SubcallPool {
	return &SubcallPool{model: model, sleep: sleepContext}
}

// ModelName returns the underlying sub-model's name.
func (p *SubcallPool) ModelName() string {
	return p.model.Name()
}

// Query runs one prompt through the pool's throttling and retry.
func (p *SubcallPool) Query(ctx context.Context, prompt string) (string, error) {
	results, err := p.QueryBatched(ctx, []string{prompt})
	if err != nil {
		return "", err
	}
	return results[0], nil
}

// QueryBatched runs prompts concurrently, at most maxConcurrentSubCalls
// in flight, and returns answers in prompt order. The first
// non-retryable failure cancels the remaining calls.
func (p *SubcallPool) QueryBatched(ctx context.Context, prompts []string) ([]string, error) {
	results := make([]string, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSubCalls)
	for i, prompt := range prompts {
		g.Go(func() error {
			answer, err := p.callWithRetry(gctx, prompt)
			if err != nil {
				return fmt.Errorf("sub-call %d: %w", i, err)
			}
			results[i] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// callWithRetry makes one sub-model call with exponential backoff on
// rate limits and the pacing delay after success.
func (p *SubcallPool) callWithRetry(ctx context.Context, prompt string) (string, error) {
	for attempt := 0; ; attempt++ {
		answer, usage, err := p.model.Complete(ctx, "", prompt, subCallMaxTokens)
		if err == nil {
			p.record(usage)
			// Cancellation during the pacing pause must not discard an
			// answer that already cost tokens.
			_ = p.sleep(ctx, delayBetweenCalls)
			return answer, nil
		}
		if !llm.IsRateLimit(err) || attempt >= subCallMaxRetries {
			return "", err
		}
		wait := subCallRetryBase * (1 << attempt)
		slog.Debug("sub-call rate limited, backing off",
			"wait", wait,
			"attempt", attempt+1,
		)
		if err := p.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

func (p *SubcallPool) record(usage costs.Usage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage.Calls += usage.Calls
	p.usage.InputTokens += usage.InputTokens
	p.usage.OutputTokens += usage.OutputTokens
}

// Usage returns the tokens consumed by all pool calls so far.
func (p *SubcallPool) Usage() costs.Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// ResetUsage clears the accumulated usage, returning the prior total.
// Called between queries so each query's ledger entry is isolated.
func (p *SubcallPool) ResetUsage() costs.Usage {
	p.mu.Lock()
	defer p.mu.Unlock()
	prior := p.usage
	p.usage = costs.Usage{}
	return prior
}
