package llm

import "context"

// Roles accepted in chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic chat completion request.
type Request struct {
	Messages []Message `json:"messages"`

	// System steers the model outside the message history.
	System string `json:"system,omitempty"`

	// MaxTokens overrides the configured response cap when positive.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature overrides the configured sampling temperature when
	// positive.
	Temperature float64 `json:"temperature,omitempty"`
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a provider-agnostic chat completion response.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Provider sends chat requests to a text generation backend.
type Provider interface {
	// Send performs one chat completion. The context bounds the whole
	// exchange including transport retries.
	Send(ctx context.Context, req Request) (*Response, error)

	// ModelName reports the configured model identifier.
	ModelName() string

	// Close releases provider resources.
	Close() error
}
