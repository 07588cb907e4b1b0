// Package aias provides per-key sliding-window rate limiting for the Aias
// chat platform.
//
// The platform gates every outbound call to a generative-text provider
// behind a per-identity quota. This module carries that gate as a reusable
// library: a sliding-window-log limiter, a per-key FIFO mutex that keeps
// check-then-record sequences atomic, guard decorators for arbitrary
// asynchronous calls, HTTP and gRPC middleware, and a small gateway binary
// that serves the limiter over HTTP.
//
// # Quick Start
//
// Install the gateway:
//
//	go install github.com/yoshikouki/aias-sub000/cmd/aiasgate@latest
//
// Create a configuration:
//
//	rate_limits:
//	  default:
//	    max_requests: 5
//	    window_ms: 60000
//
//	llm:
//	  provider: "anthropic"
//	  model: "claude-3-5-sonnet-20241022"
//	  api_key: "${ANTHROPIC_API_KEY}"
//
// Start the gateway:
//
//	aiasgate serve --config aias.yaml
//
// # Using as Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/yoshikouki/aias-sub000/pkg/clock"
//	    "github.com/yoshikouki/aias-sub000/pkg/ratelimit"
//	)
//
// Construct a limiter and guard a call:
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//	    MaxRequests: 5,
//	    WindowMs:    60000,
//	}, clock.Real())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	guard := ratelimit.Guard(limiter, userID)
//	err = guard(ctx, func(ctx context.Context) error {
//	    return callProvider(ctx)
//	})
//
// # Key Features
//
//   - **Sliding Window Log**: Exact per-key quotas, no bucket boundaries
//   - **Per-Key FIFO Mutex**: Atomic check-then-record, keys independent
//   - **Pluggable Clock**: Deterministic window tests without sleeping
//   - **Guard Decorators**: Wrap any call, HTTP handler, or gRPC method
//   - **Usage Journal**: Audit admissions to memory or SQL backends
//   - **Observability**: OpenTelemetry metrics and traces built in
//
// # Architecture
//
// The gateway composes the pieces top down:
//
//	Caller → Guard (per-key mutex + window check) → Provider call
//
// The limiter decides admission; the journal and metrics record it; the
// provider call only happens for admitted requests.
//
// # Documentation
//
// For complete documentation, see the package docs under pkg/.
package aias
