package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/journal"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

// ============================================================================
// TEST DOUBLES
// ============================================================================

type scriptedProvider struct {
	model string
	calls int
	resp  *Response
	err   error
}

func (p *scriptedProvider) Send(ctx context.Context, req Request) (*Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if p.resp != nil {
		return p.resp, nil
	}
	return &Response{Text: "ok", Model: p.model}, nil
}

func (p *scriptedProvider) ModelName() string { return p.model }

func (p *scriptedProvider) Close() error { return nil }

func newTestLimiter(t *testing.T, maxRequests int, windowMs int64, clk clock.Clock) *ratelimit.SlidingWindow {
	t.Helper()
	limiter, err := ratelimit.New(ratelimit.Config{MaxRequests: maxRequests, WindowMs: windowMs}, clk)
	require.NoError(t, err)
	return limiter
}

// ============================================================================
// ADMISSION GATING
// ============================================================================

func TestGuarded_ThrottledCallNeverReachesProvider(t *testing.T) {
	clk := clock.Fake()
	provider := &scriptedProvider{model: "claude-3-5-haiku-20241022"}
	guarded := NewGuarded(provider, newTestLimiter(t, 2, 1000, clk), WithClock(clk))

	ctx := context.Background()
	req := Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	for i := 0; i < 2; i++ {
		_, err := guarded.Send(ctx, "user-1", req)
		require.NoError(t, err)
	}

	_, err := guarded.Send(ctx, "user-1", req)
	require.Error(t, err)
	assert.True(t, ratelimit.IsExceeded(err))

	info, ok := ratelimit.GetInfo(err)
	require.True(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, 2, info.Limit)

	assert.Equal(t, 2, provider.calls, "the throttled call must not reach the provider")
}

func TestGuarded_AllowedCallPassesResponseThrough(t *testing.T) {
	clk := clock.Fake()
	provider := &scriptedProvider{
		model: "claude-3-5-haiku-20241022",
		resp: &Response{
			Text:  "the answer",
			Model: "claude-3-5-haiku-20241022",
			Usage: Usage{InputTokens: 12, OutputTokens: 34},
		},
	}
	guarded := NewGuarded(provider, newTestLimiter(t, 5, 1000, clk), WithClock(clk))

	resp, err := guarded.Send(context.Background(), "user-1", Request{
		Messages: []Message{{Role: RoleUser, Content: "question"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 34, resp.Usage.OutputTokens)
}

func TestGuarded_ProviderErrorPropagatesUnchanged(t *testing.T) {
	clk := clock.Fake()
	sentinel := errors.New("provider exploded")
	provider := &scriptedProvider{model: "m", err: sentinel}
	guarded := NewGuarded(provider, newTestLimiter(t, 5, 1000, clk), WithClock(clk))

	_, err := guarded.Send(context.Background(), "user-1", Request{})
	assert.ErrorIs(t, err, sentinel)
	assert.False(t, ratelimit.IsExceeded(err))
}

func TestGuarded_KeysAreIndependent(t *testing.T) {
	clk := clock.Fake()
	provider := &scriptedProvider{model: "m"}
	guarded := NewGuarded(provider, newTestLimiter(t, 1, 1000, clk), WithClock(clk))

	ctx := context.Background()

	_, err := guarded.Send(ctx, "alice", Request{})
	require.NoError(t, err)

	_, err = guarded.Send(ctx, "alice", Request{})
	assert.True(t, ratelimit.IsExceeded(err), "alice is exhausted")

	_, err = guarded.Send(ctx, "bob", Request{})
	assert.NoError(t, err, "bob's quota is untouched by alice's traffic")
}

func TestGuarded_WindowSlideRestoresQuota(t *testing.T) {
	clk := clock.Fake()
	provider := &scriptedProvider{model: "m"}
	guarded := NewGuarded(provider, newTestLimiter(t, 1, 1000, clk), WithClock(clk))

	ctx := context.Background()

	_, err := guarded.Send(ctx, "user-1", Request{})
	require.NoError(t, err)

	_, err = guarded.Send(ctx, "user-1", Request{})
	require.True(t, ratelimit.IsExceeded(err))

	clk.Advance(1000)

	_, err = guarded.Send(ctx, "user-1", Request{})
	assert.NoError(t, err)
}

func TestGuarded_NilLimiterPassesEverythingThrough(t *testing.T) {
	provider := &scriptedProvider{model: "m"}
	guarded := NewGuarded(provider, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := guarded.Send(ctx, "user-1", Request{})
		require.NoError(t, err)
	}
	assert.Equal(t, 10, provider.calls)
}

// ============================================================================
// JOURNAL RECORDING
// ============================================================================

func TestGuarded_RecordsAdmissionDecisions(t *testing.T) {
	clk := clock.FakeAt(5_000)
	provider := &scriptedProvider{model: "m"}
	j := journal.NewMemory(16)
	guarded := NewGuarded(provider, newTestLimiter(t, 2, 1000, clk),
		WithClock(clk), WithJournal(j))

	ctx := journal.WithRequestID(context.Background(), "req-123")

	_, _ = guarded.Send(ctx, "user-1", Request{})
	_, _ = guarded.Send(ctx, "user-1", Request{})
	_, err := guarded.Send(ctx, "user-1", Request{})
	require.True(t, ratelimit.IsExceeded(err))

	entries, err := j.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first: the throttled decision leads.
	assert.Equal(t, journal.DecisionThrottled, entries[0].Decision)
	assert.Equal(t, 0, entries[0].Remaining)
	assert.Equal(t, "user-1", entries[0].Key)
	assert.Equal(t, "req-123", entries[0].RequestID)
	assert.Equal(t, int64(5_000), entries[0].At)

	assert.Equal(t, journal.DecisionAllowed, entries[1].Decision)
	assert.Equal(t, journal.DecisionAllowed, entries[2].Decision)
	assert.Equal(t, 1, entries[2].Remaining, "first admission leaves one slot")
}

// ============================================================================
// INPUT CAP
// ============================================================================

func TestGuarded_InputCapRejectsOversizedPrompt(t *testing.T) {
	clk := clock.Fake()
	provider := &scriptedProvider{model: "m"}
	limiter := newTestLimiter(t, 5, 1000, clk)
	guarded := NewGuarded(provider, limiter,
		WithClock(clk), WithInputCap(&Estimator{}, 5))

	_, err := guarded.Send(context.Background(), "user-1", Request{
		Messages: []Message{{Role: RoleUser, Content: "this prompt is far too long for a five token cap"}},
	})
	require.ErrorIs(t, err, ErrInputTooLarge)
	assert.Equal(t, 0, provider.calls)

	// Rejection happens before the limiter and spends no quota.
	info, err := limiter.Peek(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 5, info.Remaining)
}

// ============================================================================
// KEY BINDING
// ============================================================================

func TestGuarded_BindFixesTheKey(t *testing.T) {
	clk := clock.Fake()
	provider := &scriptedProvider{model: "claude-3-5-haiku-20241022"}
	guarded := NewGuarded(provider, newTestLimiter(t, 1, 1000, clk), WithClock(clk))

	bound := guarded.Bind("carol")
	assert.Equal(t, "claude-3-5-haiku-20241022", bound.ModelName())

	ctx := context.Background()

	_, err := bound.Send(ctx, Request{})
	require.NoError(t, err)

	_, err = bound.Send(ctx, Request{})
	assert.True(t, ratelimit.IsExceeded(err))

	require.NoError(t, bound.Close())
	assert.Equal(t, 1, provider.calls)
}
