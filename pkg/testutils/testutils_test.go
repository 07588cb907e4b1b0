package testutils

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/llm"
)

func TestTestConfig_IsValid(t *testing.T) {
	cfg := TestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("TestConfig should validate, got %v", err)
	}
	if cfg.RateLimits[config.DefaultLimiterName].MaxRequests != 5 {
		t.Error("expected the default policy to allow 5 requests")
	}
}

func TestWriteConfigFile(t *testing.T) {
	path := WriteConfigFile(t, "rate_limits:\n  default:\n    max_requests: 3\n    window_ms: 1000\n")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back config: %v", err)
	}
	cfg, err := config.Parse(data)
	if err != nil {
		t.Fatalf("written config should parse, got %v", err)
	}
	if cfg.RateLimits[config.DefaultLimiterName].MaxRequests != 3 {
		t.Error("parsed config lost the max_requests value")
	}
}

func TestMockProvider_EchoesLastMessage(t *testing.T) {
	m := NewMockProvider()

	resp, err := m.Send(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ping"}},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.Contains(resp.Text, "ping") {
		t.Errorf("Text = %q, want the last message echoed", resp.Text)
	}
	if m.Calls != 1 {
		t.Errorf("Calls = %d, want 1", m.Calls)
	}
}

func TestMockProvider_ErrorKnob(t *testing.T) {
	m := NewMockProvider()
	boom := errors.New("boom")
	m.SetGenerateError(boom)

	if _, err := m.Send(context.Background(), llm.Request{}); !errors.Is(err, boom) {
		t.Fatalf("Send() error = %v, want boom", err)
	}
}

func TestMockProvider_FuncKnob(t *testing.T) {
	m := NewMockProvider()
	m.SetGenerateFunc(func(_ context.Context, _ llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: "scripted"}, nil
	})

	resp, err := m.Send(context.Background(), llm.Request{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Text != "scripted" {
		t.Errorf("Text = %q, want scripted", resp.Text)
	}
}

func TestMockProvider_DelayRespectsContext(t *testing.T) {
	m := NewMockProvider()
	m.SetGenerateDelay(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Send(ctx, llm.Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Send should give up as soon as the context expires")
	}
}
