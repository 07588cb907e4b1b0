package observability

import (
	"context"
	"sync"
	"time"
)

var (
	globalMetrics Metrics = &NoopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics is the recording surface shared across the gateway.
type Metrics interface {
	RecordDecision(ctx context.Context, decision string, wait time.Duration)
	RecordEvictions(ctx context.Context, n int)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
}

// SetGlobalMetrics installs m as the process-wide recorder. Passing nil
// restores the no-op recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m == nil {
		m = &NoopMetrics{}
	}
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder. Never nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
