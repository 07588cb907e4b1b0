// Package transport carries the rate limit gate onto RPC surfaces.
package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/yoshikouki/aias-sub000/pkg/journal"
	"github.com/yoshikouki/aias-sub000/pkg/observability"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

// KeyFunc extracts the admission key for a call.
type KeyFunc func(ctx context.Context, fullMethod string) string

// MethodKey keys admission by the full gRPC method name, giving every
// method its own quota.
func MethodKey(_ context.Context, fullMethod string) string {
	return fullMethod
}

// MetadataKey keys admission by the first value of a request metadata
// header, falling back to fallback when the header is absent. A nil
// fallback means MethodKey.
func MetadataKey(header string, fallback KeyFunc) KeyFunc {
	if fallback == nil {
		fallback = MethodKey
	}
	return func(ctx context.Context, fullMethod string) string {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(header); len(values) > 0 && values[0] != "" {
				return values[0]
			}
		}
		return fallback(ctx, fullMethod)
	}
}

// UnaryRateLimitInterceptor gates unary calls behind the limiter.
// Throttled calls fail with codes.ResourceExhausted carrying the reset
// timestamp; a limiter-internal error fails open so the gate never
// takes the service down with it.
func UnaryRateLimitInterceptor(limiter ratelimit.Limiter, keyFn KeyFunc) grpc.UnaryServerInterceptor {
	if keyFn == nil {
		keyFn = MethodKey
	}
	tracer := observability.NewTracer("aiasgate.grpc")

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if limiter == nil {
			return handler(ctx, req)
		}

		key := keyFn(ctx, info.FullMethod)

		ctx, span := tracer.StartLimitCheck(ctx, key)
		start := time.Now()
		result, err := limiter.Check(ctx, key)
		wait := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			span.End()
			return handler(ctx, req)
		}

		decision := journal.DecisionAllowed
		if !result.Allowed {
			decision = journal.DecisionThrottled
		}
		span.SetAttributes(
			attribute.String(observability.AttrLimitDecision, decision),
			attribute.Int(observability.AttrLimitRemaining, result.Info.Remaining),
		)
		span.End()

		observability.GetGlobalMetrics().RecordDecision(ctx, decision, wait)

		if !result.Allowed {
			return nil, status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded for %s: limit %d, resets at %d", key, result.Info.Limit, result.Info.Reset)
		}

		return handler(ctx, req)
	}
}

// StreamRateLimitInterceptor gates stream openings behind the limiter.
// One admission covers the whole stream; messages inside an accepted
// stream are not charged individually.
func StreamRateLimitInterceptor(limiter ratelimit.Limiter, keyFn KeyFunc) grpc.StreamServerInterceptor {
	if keyFn == nil {
		keyFn = MethodKey
	}
	tracer := observability.NewTracer("aiasgate.grpc")

	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if limiter == nil {
			return handler(srv, ss)
		}

		key := keyFn(ss.Context(), info.FullMethod)

		ctx, span := tracer.StartLimitCheck(ss.Context(), key)
		start := time.Now()
		result, err := limiter.Check(ctx, key)
		wait := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			span.End()
			return handler(srv, ss)
		}

		decision := journal.DecisionAllowed
		if !result.Allowed {
			decision = journal.DecisionThrottled
		}
		span.SetAttributes(
			attribute.String(observability.AttrLimitDecision, decision),
			attribute.Int(observability.AttrLimitRemaining, result.Info.Remaining),
		)
		span.End()

		observability.GetGlobalMetrics().RecordDecision(ctx, decision, wait)

		if !result.Allowed {
			return status.Errorf(codes.ResourceExhausted,
				"rate limit exceeded for %s: limit %d, resets at %d", key, result.Info.Limit, result.Info.Reset)
		}

		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// wrappedServerStream overrides the stream context so the handler sees
// the admission context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
