// Package testutils provides testing utilities for the aiasgate service.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/llm"
)

// TestConfig returns a minimal valid configuration for testing.
func TestConfig() *config.Config {
	cfg := &config.Config{
		RateLimits: map[string]*config.RateLimitConfig{
			config.DefaultLimiterName: {
				MaxRequests: 5,
				WindowMs:    60_000,
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// TestRateLimitConfig returns a minimal valid policy section for testing.
func TestRateLimitConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{
		MaxRequests: 5,
		WindowMs:    60_000,
	}
}

// TestLLMConfig returns a minimal valid provider configuration for testing.
func TestLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{
		Enabled:        config.BoolPtr(true),
		Provider:       "anthropic",
		Model:          "claude-3-5-haiku-20241022",
		APIKey:         "sk-ant-test",
		TimeoutSeconds: 5,
		MaxRetries:     1,
	}
}

// WriteConfigFile writes content to a config file in a temp directory
// and returns its path. The directory is removed when the test ends.
func WriteConfigFile(t testing.TB, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// TestContext returns a context with timeout for testing.
func TestContext() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	// The context is for immediate use; it cleans itself up when the
	// timeout expires.
	_ = cancel
	return ctx
}

// TestContextWithTimeout returns a context with a custom timeout for testing.
func TestContextWithTimeout(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	_ = cancel
	return ctx
}

// MockProvider implements the llm.Provider interface for testing.
type MockProvider struct {
	Model         string
	GenerateFunc  func(ctx context.Context, req llm.Request) (*llm.Response, error)
	GenerateDelay time.Duration
	GenerateError error
	Calls         int
}

var _ llm.Provider = (*MockProvider)(nil)

// NewMockProvider creates a mock provider with default behavior.
func NewMockProvider() *MockProvider {
	return &MockProvider{Model: "mock-model"}
}

// Send answers with the configured behavior: delay first, then error,
// then the custom function, then a canned echo of the last message.
func (m *MockProvider) Send(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.Calls++

	if m.GenerateDelay > 0 {
		select {
		case <-time.After(m.GenerateDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.GenerateError != nil {
		return nil, m.GenerateError
	}

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}

	text := "Mock response"
	if len(req.Messages) > 0 {
		text = "Mock response for: " + req.Messages[len(req.Messages)-1].Content
	}
	return &llm.Response{
		Text:       text,
		Model:      m.Model,
		StopReason: "end_turn",
		Usage:      llm.Usage{InputTokens: 3, OutputTokens: 5},
	}, nil
}

// ModelName returns the configured model identifier.
func (m *MockProvider) ModelName() string {
	return m.Model
}

// Close is a no-op.
func (m *MockProvider) Close() error {
	return nil
}

// SetGenerateError sets an error to be returned by Send.
func (m *MockProvider) SetGenerateError(err error) {
	m.GenerateError = err
}

// SetGenerateDelay sets a delay applied before Send answers.
func (m *MockProvider) SetGenerateDelay(delay time.Duration) {
	m.GenerateDelay = delay
}

// SetGenerateFunc sets a custom function for Send.
func (m *MockProvider) SetGenerateFunc(fn func(ctx context.Context, req llm.Request) (*llm.Response, error)) {
	m.GenerateFunc = fn
}
