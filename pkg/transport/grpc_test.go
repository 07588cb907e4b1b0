package transport

import (
	"context"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/ratelimit"
)

const testMethod = "/aiasgate.v1.Limits/Check"

func newTestLimiter(t *testing.T, maxRequests int, windowMs int64) *ratelimit.SlidingWindow {
	t.Helper()
	limiter, err := ratelimit.New(ratelimit.Config{MaxRequests: maxRequests, WindowMs: windowMs}, clock.Fake())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return limiter
}

func invoke(t *testing.T, interceptor grpc.UnaryServerInterceptor, ctx context.Context, handled *int) (interface{}, error) {
	t.Helper()
	info := &grpc.UnaryServerInfo{FullMethod: testMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		*handled++
		return "response", nil
	}
	return interceptor(ctx, "request", info, handler)
}

func TestUnaryRateLimitInterceptor_AdmitsWithinQuota(t *testing.T) {
	interceptor := UnaryRateLimitInterceptor(newTestLimiter(t, 2, 1000), nil)

	handled := 0
	resp, err := invoke(t, interceptor, context.Background(), &handled)
	if err != nil {
		t.Fatalf("interceptor error = %v, want nil", err)
	}
	if resp != "response" {
		t.Errorf("interceptor response = %v, want the handler's response", resp)
	}
	if handled != 1 {
		t.Errorf("handler ran %d times, want 1", handled)
	}
}

func TestUnaryRateLimitInterceptor_ThrottlesWithResourceExhausted(t *testing.T) {
	interceptor := UnaryRateLimitInterceptor(newTestLimiter(t, 1, 1000), nil)

	handled := 0
	ctx := context.Background()

	if _, err := invoke(t, interceptor, ctx, &handled); err != nil {
		t.Fatalf("first call error = %v, want nil", err)
	}

	_, err := invoke(t, interceptor, ctx, &handled)
	if err == nil {
		t.Fatal("second call error = nil, want ResourceExhausted")
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("error %v is not a gRPC status", err)
	}
	if st.Code() != codes.ResourceExhausted {
		t.Errorf("status code = %v, want ResourceExhausted", st.Code())
	}
	if !strings.Contains(st.Message(), "resets at") {
		t.Errorf("status message = %q, want the reset timestamp included", st.Message())
	}
	if handled != 1 {
		t.Errorf("handler ran %d times, want 1 (throttled call must not reach it)", handled)
	}
}

func TestUnaryRateLimitInterceptor_NilLimiterPassesThrough(t *testing.T) {
	interceptor := UnaryRateLimitInterceptor(nil, nil)

	handled := 0
	for i := 0; i < 5; i++ {
		if _, err := invoke(t, interceptor, context.Background(), &handled); err != nil {
			t.Fatalf("call %d error = %v, want nil", i, err)
		}
	}
	if handled != 5 {
		t.Errorf("handler ran %d times, want 5", handled)
	}
}

func TestMetadataKey_ExtractsHeader(t *testing.T) {
	keyFn := MetadataKey("x-api-key", nil)

	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("x-api-key", "caller-7"))
	if key := keyFn(ctx, testMethod); key != "caller-7" {
		t.Errorf("key = %q, want caller-7", key)
	}

	if key := keyFn(context.Background(), testMethod); key != testMethod {
		t.Errorf("key = %q, want the method fallback", key)
	}
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

func streamInvoke(t *testing.T, interceptor grpc.StreamServerInterceptor, ctx context.Context, handled *int) error {
	t.Helper()
	info := &grpc.StreamServerInfo{FullMethod: testMethod}
	handler := func(srv interface{}, stream grpc.ServerStream) error {
		*handled++
		if stream.Context() == nil {
			t.Error("stream context is nil")
		}
		return nil
	}
	return interceptor(nil, &stubStream{ctx: ctx}, info, handler)
}

func TestStreamRateLimitInterceptor_OneAdmissionPerStream(t *testing.T) {
	interceptor := StreamRateLimitInterceptor(newTestLimiter(t, 1, 1000), nil)

	handled := 0
	ctx := context.Background()

	if err := streamInvoke(t, interceptor, ctx, &handled); err != nil {
		t.Fatalf("first stream error = %v, want nil", err)
	}

	err := streamInvoke(t, interceptor, ctx, &handled)
	if err == nil {
		t.Fatal("second stream error = nil, want ResourceExhausted")
	}
	if st, ok := status.FromError(err); !ok || st.Code() != codes.ResourceExhausted {
		t.Errorf("error = %v, want ResourceExhausted status", err)
	}
	if handled != 1 {
		t.Errorf("handler ran %d times, want 1 (throttled stream must not open)", handled)
	}
}

func TestStreamRateLimitInterceptor_NilLimiterPassesThrough(t *testing.T) {
	interceptor := StreamRateLimitInterceptor(nil, nil)

	handled := 0
	for i := 0; i < 3; i++ {
		if err := streamInvoke(t, interceptor, context.Background(), &handled); err != nil {
			t.Fatalf("stream %d error = %v, want nil", i, err)
		}
	}
	if handled != 3 {
		t.Errorf("handler ran %d times, want 3", handled)
	}
}

func TestMetadataKey_KeysAreIndependent(t *testing.T) {
	interceptor := UnaryRateLimitInterceptor(newTestLimiter(t, 1, 1000), MetadataKey("x-api-key", nil))

	alice := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "alice"))
	bob := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "bob"))

	handled := 0

	if _, err := invoke(t, interceptor, alice, &handled); err != nil {
		t.Fatalf("alice first call error = %v", err)
	}
	if _, err := invoke(t, interceptor, alice, &handled); err == nil {
		t.Fatal("alice second call error = nil, want throttle")
	}
	if _, err := invoke(t, interceptor, bob, &handled); err != nil {
		t.Errorf("bob call error = %v, alice's exhaustion must not spill over", err)
	}
}
