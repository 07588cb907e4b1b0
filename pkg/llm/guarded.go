package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/journal"
	"github.com/yoshikouki/aias-sub000/pkg/observability"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

// ErrInputTooLarge rejects prompts exceeding the configured input
// token cap before any quota is spent.
var ErrInputTooLarge = errors.New("input exceeds the configured token cap")

// Guarded decorates a Provider with per-key admission control. Each
// call is gated by one limiter check for the caller's key: a throttled
// key's request never reaches the underlying provider, and distinct
// keys never consume each other's quota.
type Guarded struct {
	provider Provider
	limiter  ratelimit.Limiter
	journal  journal.Journal
	tracer   *observability.Tracer
	metrics  observability.Metrics
	clk      clock.Clock
	logger   *slog.Logger

	estimator      *Estimator
	maxInputTokens int
}

// GuardedOption configures a Guarded provider.
type GuardedOption func(*Guarded)

// WithJournal records every admission decision to j.
func WithJournal(j journal.Journal) GuardedOption {
	return func(g *Guarded) {
		if j != nil {
			g.journal = j
		}
	}
}

// WithTracer replaces the default tracer.
func WithTracer(t *observability.Tracer) GuardedOption {
	return func(g *Guarded) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithMetrics pins a metrics recorder instead of resolving the global
// one per call.
func WithMetrics(m observability.Metrics) GuardedOption {
	return func(g *Guarded) {
		g.metrics = m
	}
}

// WithClock replaces the wall clock used to stamp journal entries.
func WithClock(clk clock.Clock) GuardedOption {
	return func(g *Guarded) {
		if clk != nil {
			g.clk = clk
		}
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *slog.Logger) GuardedOption {
	return func(g *Guarded) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithInputCap rejects requests whose estimated prompt size exceeds
// maxTokens. A non-positive maxTokens disables the cap.
func WithInputCap(estimator *Estimator, maxTokens int) GuardedOption {
	return func(g *Guarded) {
		g.estimator = estimator
		g.maxInputTokens = maxTokens
	}
}

// NewGuarded decorates provider with admission control. A nil limiter
// disables gating entirely and every call passes straight through.
func NewGuarded(provider Provider, limiter ratelimit.Limiter, opts ...GuardedOption) *Guarded {
	g := &Guarded{
		provider: provider,
		limiter:  limiter,
		journal:  journal.Nop{},
		tracer:   observability.NewTracer("llm"),
		clk:      clock.Real(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send gates one chat completion behind key's quota. A throttled key
// returns a *ratelimit.ExceededError and the provider is never
// invoked. Provider errors propagate unchanged.
func (g *Guarded) Send(ctx context.Context, key string, req Request) (*Response, error) {
	if g.maxInputTokens > 0 {
		if n := g.estimator.CountRequest(req); n > g.maxInputTokens {
			return nil, fmt.Errorf("%w: estimated %d tokens, cap %d", ErrInputTooLarge, n, g.maxInputTokens)
		}
	}

	if g.limiter != nil {
		if err := g.admit(ctx, key); err != nil {
			return nil, err
		}
	}

	return g.call(ctx, req)
}

// ModelName reports the underlying provider's model identifier.
func (g *Guarded) ModelName() string {
	return g.provider.ModelName()
}

// Close releases the underlying provider.
func (g *Guarded) Close() error {
	return g.provider.Close()
}

func (g *Guarded) admit(ctx context.Context, key string) error {
	ctx, span := g.tracer.StartLimitCheck(ctx, key)
	defer span.End()

	start := time.Now()
	result, err := g.limiter.Check(ctx, key)
	wait := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	decision := journal.DecisionAllowed
	if !result.Allowed {
		decision = journal.DecisionThrottled
	}
	span.SetAttributes(
		attribute.String(observability.AttrLimitDecision, decision),
		attribute.Int(observability.AttrLimitRemaining, result.Info.Remaining),
	)

	g.metricsRecorder().RecordDecision(ctx, decision, wait)
	g.record(ctx, key, decision, result)

	if !result.Allowed {
		return ratelimit.NewExceededError(key, result)
	}
	return nil
}

func (g *Guarded) call(ctx context.Context, req Request) (*Response, error) {
	model := g.provider.ModelName()
	ctx, span := g.tracer.StartLLMCall(ctx, model)
	defer span.End()

	start := time.Now()
	resp, err := g.provider.Send(ctx, req)
	duration := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.metricsRecorder().RecordLLMCall(ctx, model, duration, 0, 0, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(observability.AttrLLMTokensIn, resp.Usage.InputTokens),
		attribute.Int(observability.AttrLLMTokensOut, resp.Usage.OutputTokens),
	)
	g.metricsRecorder().RecordLLMCall(ctx, model, duration, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil)
	return resp, nil
}

func (g *Guarded) record(ctx context.Context, key, decision string, result ratelimit.Result) {
	e := journal.Entry{
		Key:       key,
		Decision:  decision,
		Remaining: result.Info.Remaining,
		Reset:     result.Info.Reset,
		RequestID: journal.RequestIDFromContext(ctx),
		At:        g.clk.Now(),
	}
	if err := g.journal.Record(ctx, e); err != nil {
		g.logger.Warn("Failed to record admission decision", "key", key, "error", err)
	}
}

func (g *Guarded) metricsRecorder() observability.Metrics {
	if g.metrics != nil {
		return g.metrics
	}
	return observability.GetGlobalMetrics()
}

// Bind fixes the admission key, yielding a plain Provider for code
// that does not deal in keys.
func (g *Guarded) Bind(key string) Provider {
	return &boundProvider{guarded: g, key: key}
}

type boundProvider struct {
	guarded *Guarded
	key     string
}

func (b *boundProvider) Send(ctx context.Context, req Request) (*Response, error) {
	return b.guarded.Send(ctx, b.key, req)
}

func (b *boundProvider) ModelName() string {
	return b.guarded.ModelName()
}

// Close is a no-op; the unbound provider owns the connection.
func (b *boundProvider) Close() error {
	return nil
}
