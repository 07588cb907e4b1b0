package observability

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the tracing and metrics pipelines for one process.
type Manager struct {
	config         Config
	registry       *prometheus.Registry
	tracerProvider trace.TracerProvider
	tracer         *Tracer
	metrics        *PrometheusMetrics
	mu             sync.RWMutex
}

// NewManager returns an uninitialized Manager for cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config:   cfg,
		registry: prometheus.NewRegistry(),
		tracer:   NewTracer(cfg.Tracing.ServiceName),
	}
}

// Initialize starts the configured pipelines and installs the metrics
// recorder as the process-wide default.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitGlobalTracer(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp
	m.tracer = NewTracer(m.config.Tracing.ServiceName)

	metrics, err := InitMetrics(ctx, m.config.Metrics, m.registry)
	if err != nil {
		return err
	}
	m.metrics = metrics

	SetGlobalMetrics(m.metrics)

	return nil
}

// Tracer returns the span helper. Never nil, even before Initialize.
func (m *Manager) Tracer() *Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracer
}

// GetTracer returns a named tracer from the installed provider.
func (m *Manager) GetTracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return noopTracer
	}
	return m.tracerProvider.Tracer(name)
}

// GetMetrics returns the metrics recorder. Never nil, even before
// Initialize.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return &NoopMetrics{}
	}
	return m.metrics
}

// PrometheusHandler serves the manager's metric registry in Prometheus
// exposition format.
func (m *Manager) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both pipelines.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.metrics != nil {
		if err := m.metrics.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if m.tracerProvider != nil {
		if sd, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
			if err := sd.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
