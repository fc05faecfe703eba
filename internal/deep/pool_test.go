package deep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marcus-pm/lenny-cli/internal/costs"
)

type fakeSubModel struct {
	mu        sync.Mutex
	failures  map[string]int // prompt -> remaining rate-limit failures
	failWith  error
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	callCount atomic.Int32
}

func (f *fakeSubModel) Name() string { return "sub-model" }

func (f *fakeSubModel) Complete(_ context.Context, _, prompt string, _ int) (string, costs.Usage, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	f.callCount.Add(1)
	time.Sleep(5 * time.Millisecond) // hold the slot so overlap is observable

	f.mu.Lock()
	remaining := f.failures[prompt]
	if remaining > 0 {
		f.failures[prompt] = remaining - 1
	}
	f.mu.Unlock()

	if remaining > 0 {
		if f.failWith != nil {
			return "", costs.Usage{}, f.failWith
		}
		return "", costs.Usage{}, &llmRateLimit{}
	}
	return "answer:" + prompt, costs.Usage{Calls: 1, InputTokens: 10, OutputTokens: 4}, nil
}

// llmRateLimit avoids importing llm just for a sentinel in most tests.
type llmRateLimit struct{}

func (*llmRateLimit) Error() string       { return "429 too many requests" }
func (*llmRateLimit) HTTPStatusCode() int { return 429 }

func newTestPool(model SubModel) *SubcallPool {
	p := NewSubcallPool(model)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestQueryBatchedOrderAndConcurrency(t *testing.T) {
	model := &fakeSubModel{}
	p := newTestPool(model)

	var prompts []string
	for i := 0; i < 8; i++ {
		prompts = append(prompts, fmt.Sprintf("p%d", i))
	}

	results, err := p.QueryBatched(context.Background(), prompts)
	require.NoError(t, err)
	require.Len(t, results, 8)
	for i, r := range results {
		require.Equal(t, fmt.Sprintf("answer:p%d", i), r, "results keep prompt order")
	}
	require.LessOrEqual(t, model.maxSeen.Load(), int32(maxConcurrentSubCalls))
}

func TestQueryBatchedRetriesRateLimit(t *testing.T) {
	model := &fakeSubModel{failures: map[string]int{"p1": 2}}
	p := newTestPool(model)

	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	results, err := p.QueryBatched(context.Background(), []string{"p1"})
	require.NoError(t, err)
	require.Equal(t, []string{"answer:p1"}, results)
	require.EqualValues(t, 3, model.callCount.Load())

	// Two backoffs (5s, 10s) plus the pacing delay after success.
	require.Equal(t, []time.Duration{
		subCallRetryBase,
		subCallRetryBase * 2,
		delayBetweenCalls,
	}, waits)
}

func TestQueryBatchedExhaustsRetries(t *testing.T) {
	model := &fakeSubModel{failures: map[string]int{"p1": subCallMaxRetries + 1}}
	p := newTestPool(model)

	_, err := p.QueryBatched(context.Background(), []string{"p1"})
	require.Error(t, err)
	require.EqualValues(t, subCallMaxRetries+1, model.callCount.Load())
}

func TestQueryBatchedNonRetryableAborts(t *testing.T) {
	model := &fakeSubModel{
		failures: map[string]int{"p1": 1},
		failWith: errors.New("invalid request"),
	}
	p := newTestPool(model)

	_, err := p.QueryBatched(context.Background(), []string{"p0", "p1", "p2", "p3"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid request")
	require.True(t, strings.Contains(err.Error(), "sub-call 1"))
}

func TestPoolUsageAccumulation(t *testing.T) {
	model := &fakeSubModel{}
	p := newTestPool(model)

	_, err := p.QueryBatched(context.Background(), []string{"p0", "p1", "p2"})
	require.NoError(t, err)

	usage := p.Usage()
	require.Equal(t, 3, usage.Calls)
	require.EqualValues(t, 30, usage.InputTokens)
	require.EqualValues(t, 12, usage.OutputTokens)

	prior := p.ResetUsage()
	require.Equal(t, usage, prior)
	require.Equal(t, costs.Usage{}, p.Usage())
}

func TestPoolSingleQuery(t *testing.T) {
	p := newTestPool(&fakeSubModel{})
	answer, err := p.Query(context.Background(), "solo")
	require.NoError(t, err)
	require.Equal(t, "answer:solo", answer)
	require.Equal(t, "sub-model", p.ModelName())
}

func TestQueryBatchedCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Default ctx-aware sleep: the backoff after the rate limit must
	// return immediately with the cancellation error, not wait 5s.
	p := NewSubcallPool(&fakeSubModel{failures: map[string]int{"p0": 1}})
	_, err := p.QueryBatched(ctx, []string{"p0"})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPacingCancelKeepsAnswer(t *testing.T) {
	model := &fakeSubModel{}
	p := NewSubcallPool(model)

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel() // cancellation lands during the pacing pause
		return sleepContext(ctx, d)
	}

	// The answer already cost tokens; a cancel during pacing keeps it.
	results, err := p.QueryBatched(ctx, []string{"p0"})
	require.NoError(t, err)
	require.Equal(t, []string{"answer:p0"}, results)
	require.Equal(t, 1, p.Usage().Calls)
}
