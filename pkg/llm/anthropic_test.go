package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yoshikouki/aias-sub000/pkg/config"
)

func testLLMConfig(host string) *config.LLMConfig {
	cfg := &config.LLMConfig{
		Enabled:        config.BoolPtr(true),
		Provider:       "anthropic",
		Model:          "claude-3-5-haiku-20241022",
		APIKey:         "sk-ant-test-key",
		Host:           host,
		TimeoutSeconds: 5,
		MaxTokens:      256,
		MaxRetries:     1,
	}
	return cfg
}

func TestNewAnthropic(t *testing.T) {
	provider, err := NewAnthropic(testLLMConfig(""))
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v, want nil", err)
	}
	if provider.ModelName() != "claude-3-5-haiku-20241022" {
		t.Errorf("ModelName() = %v, want claude-3-5-haiku-20241022", provider.ModelName())
	}
	if provider.config.Host != "https://api.anthropic.com" {
		t.Errorf("Host = %v, want the default endpoint", provider.config.Host)
	}
}

func TestNewAnthropic_RequiresAPIKey(t *testing.T) {
	cfg := testLLMConfig("")
	cfg.APIKey = ""

	if _, err := NewAnthropic(cfg); err == nil {
		t.Error("NewAnthropic() error = nil, want missing key error")
	}
}

func TestAnthropic_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected /v1/messages, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("x-api-key"); auth != "sk-ant-test-key" {
			t.Errorf("Expected x-api-key header, got %s", auth)
		}
		if version := r.Header.Get("anthropic-version"); version != "2023-06-01" {
			t.Errorf("Expected anthropic-version 2023-06-01, got %s", version)
		}

		var req AnthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "claude-3-5-haiku-20241022" {
			t.Errorf("Expected model claude-3-5-haiku-20241022, got %s", req.Model)
		}
		if len(req.Messages) != 1 {
			t.Errorf("Expected 1 message, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != "user" {
			t.Errorf("Expected user role, got %s", req.Messages[0].Role)
		}
		if req.MaxTokens != 256 {
			t.Errorf("Expected max_tokens 256, got %d", req.MaxTokens)
		}

		response := AnthropicResponse{
			Model:      "claude-3-5-haiku-20241022",
			StopReason: "end_turn",
			Content: []AnthropicContent{
				{Type: "text", Text: "Hello! "},
				{Type: "text", Text: "How can I help?"},
			},
			Usage: AnthropicUsage{InputTokens: 10, OutputTokens: 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider, err := NewAnthropic(testLLMConfig(server.URL))
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	resp, err := provider.Send(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}
	if resp.Text != "Hello! How can I help?" {
		t.Errorf("Send() text = %q, want concatenated content blocks", resp.Text)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 15 {
		t.Errorf("Send() usage = %+v, want 10 in / 15 out", resp.Usage)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("Send() stop reason = %q, want end_turn", resp.StopReason)
	}
}

func TestAnthropic_Send_RequestOverrides(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AnthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens != 64 {
			t.Errorf("Expected overridden max_tokens 64, got %d", req.MaxTokens)
		}
		if req.Temperature != 0.5 {
			t.Errorf("Expected overridden temperature 0.5, got %v", req.Temperature)
		}
		if req.System != "be brief" {
			t.Errorf("Expected system prompt, got %q", req.System)
		}
		_ = json.NewEncoder(w).Encode(AnthropicResponse{
			Content: []AnthropicContent{{Type: "text", Text: "ok"}},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropic(testLLMConfig(server.URL))
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	_, err = provider.Send(context.Background(), Request{
		Messages:    []Message{{Role: RoleUser, Content: "Hi"}},
		System:      "be brief",
		MaxTokens:   64,
		Temperature: 0.5,
	})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil", err)
	}
}

func TestAnthropic_Send_APIErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(AnthropicResponse{
			Error: &AnthropicError{Type: "invalid_request_error", Message: "max_tokens is too large"},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropic(testLLMConfig(server.URL))
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	_, err = provider.Send(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	if err == nil {
		t.Fatal("Send() error = nil, want API error")
	}
	if !strings.Contains(err.Error(), "max_tokens is too large") {
		t.Errorf("Send() error = %v, want the API's message surfaced", err)
	}
}

func TestAnthropic_Send_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	provider, err := NewAnthropic(testLLMConfig(server.URL))
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	_, err = provider.Send(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	if err == nil {
		t.Error("Send() error = nil, want decode error")
	}
}

func TestAnthropic_Send_RetriesThrottledCall(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(AnthropicResponse{
			Content: []AnthropicContent{{Type: "text", Text: "recovered"}},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropic(testLLMConfig(server.URL))
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	resp, err := provider.Send(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Send() error = %v, want nil after retry", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("Send() text = %q, want recovered", resp.Text)
	}
	if attemptCount != 2 {
		t.Errorf("Expected 2 attempts, got %d", attemptCount)
	}
}
