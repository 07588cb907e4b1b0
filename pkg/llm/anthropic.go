package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/httpclient"
)

const anthropicVersion = "2023-06-01"

// Wire types for the Anthropic Messages API.

type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
}

type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AnthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      AnthropicUsage     `json:"usage"`
	Error      *AnthropicError    `json:"error,omitempty"`
}

type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Anthropic talks to the Anthropic Messages API over the retrying HTTP
// client. The provider's own throttling headers feed the retry backoff.
type Anthropic struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

var _ Provider = (*Anthropic)(nil)

// NewAnthropic builds a provider from the llm config section.
func NewAnthropic(cfg *config.LLMConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.anthropic.com"
	}

	opts := []httpclient.Option{
		httpclient.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
	}
	if cfg.CACertificate != "" || cfg.InsecureSkipVerify {
		opts = append(opts, httpclient.WithTLSConfig(&httpclient.TLSConfig{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			CACertificate:      cfg.CACertificate,
		}))
	}

	return &Anthropic{
		config:     cfg,
		httpClient: httpclient.New(opts...),
	}, nil
}

// ModelName reports the configured model identifier.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}

// Close releases provider resources.
func (a *Anthropic) Close() error {
	return nil
}

// Send performs one chat completion against /v1/messages.
func (a *Anthropic) Send(ctx context.Context, req Request) (*Response, error) {
	wire := a.buildRequest(req)

	jsonData, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.config.Host+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		// Surface the API's own error message when one was delivered,
		// keeping the transport error in the chain.
		if resp != nil {
			if body, readErr := io.ReadAll(resp.Body); readErr == nil {
				var apiResp AnthropicResponse
				if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
					return nil, fmt.Errorf("anthropic API error: %s: %w", apiResp.Error.Message, err)
				}
			}
		}
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s", apiResp.Error.Message)
	}

	var text strings.Builder
	for _, content := range apiResp.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}

	return &Response{
		Text:       text.String(),
		Model:      apiResp.Model,
		StopReason: apiResp.StopReason,
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
		},
	}, nil
}

func (a *Anthropic) buildRequest(req Request) AnthropicRequest {
	wire := AnthropicRequest{
		Model:       a.config.Model,
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
		System:      req.System,
	}
	if req.MaxTokens > 0 {
		wire.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		wire.Temperature = req.Temperature
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, AnthropicMessage{Role: m.Role, Content: m.Content})
	}
	return wire
}
