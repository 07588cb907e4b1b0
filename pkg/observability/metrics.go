package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusMetrics records gateway metrics through the OpenTelemetry
// metric API and exports them in Prometheus exposition format. The
// zero value is a valid recorder whose methods do nothing.
type PrometheusMetrics struct {
	provider *sdkmetric.MeterProvider

	decisions metric.Int64Counter
	lockWait  metric.Float64Histogram
	evictions metric.Int64Counter

	llmDuration  metric.Float64Histogram
	llmTokensIn  metric.Int64Counter
	llmTokensOut metric.Int64Counter
	llmErrors    metric.Int64Counter

	httpRequests metric.Int64Counter
	httpDuration metric.Float64Histogram
}

// InitMetrics wires an OpenTelemetry meter pipeline into reg and
// creates the gateway's instruments. Disabled metrics yield an empty
// recorder.
func InitMetrics(ctx context.Context, cfg MetricsConfig, reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(reg),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	meter := provider.Meter(DefaultServiceName)

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Total admission decisions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	lockWait, err := meter.Float64Histogram(
		"ratelimit.wait",
		metric.WithDescription("Time spent queued behind the per-key lock"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create wait histogram: %w", err)
	}

	evictions, err := meter.Int64Counter(
		"ratelimit.evictions",
		metric.WithDescription("Idle key histories removed by sweeps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evictions counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("Provider round trip duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmTokensIn, err := meter.Int64Counter(
		"llm.tokens.input",
		metric.WithDescription("Total input tokens sent to the provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmTokensOut, err := meter.Int64Counter(
		"llm.tokens.output",
		metric.WithDescription("Total output tokens returned by the provider"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"llm.errors",
		metric.WithDescription("Total failed provider calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"http.requests",
		metric.WithDescription("Total HTTP requests served"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	httpDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return &PrometheusMetrics{
		provider:     provider,
		decisions:    decisions,
		lockWait:     lockWait,
		evictions:    evictions,
		llmDuration:  llmDuration,
		llmTokensIn:  llmTokensIn,
		llmTokensOut: llmTokensOut,
		llmErrors:    llmErrors,
		httpRequests: httpRequests,
		httpDuration: httpDuration,
	}, nil
}

// RecordDecision counts one admission decision and the time the caller
// spent queued for its key.
func (m *PrometheusMetrics) RecordDecision(ctx context.Context, decision string, wait time.Duration) {
	if m == nil || m.decisions == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(AttrLimitDecision, decision),
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.lockWait != nil {
		m.lockWait.Record(ctx, wait.Seconds())
	}
}

// RecordEvictions counts key histories removed by a sweep.
func (m *PrometheusMetrics) RecordEvictions(ctx context.Context, n int) {
	if m == nil || m.evictions == nil || n <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(n))
}

// RecordLLMCall records one provider round trip.
func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if inputTokens > 0 && m.llmTokensIn != nil {
		m.llmTokensIn.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	}
	if outputTokens > 0 && m.llmTokensOut != nil {
		m.llmTokensOut.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))
	}
	if err != nil && m.llmErrors != nil {
		m.llmErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordHTTPRequest records one served HTTP request.
func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPPath, path),
		attribute.Int(AttrHTTPStatusCode, status),
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.httpDuration != nil {
		m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String(AttrHTTPMethod, method),
			attribute.String(AttrHTTPPath, path),
		))
	}
}

// Shutdown flushes and stops the meter pipeline.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
