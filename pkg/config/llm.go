package config

import "fmt"

// LLMConfig configures the downstream text-generation provider.
type LLMConfig struct {
	// Enabled controls whether the gateway exposes the chat proxy.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Provider selects the provider family. Only "anthropic" is
	// currently supported.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model is the provider model identifier.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Host overrides the provider endpoint, mainly for tests.
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// TimeoutSeconds bounds one provider call.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// MaxTokens caps the generated response length.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// MaxInputTokens rejects oversized prompts before they reach the
	// provider. Zero means no cap.
	MaxInputTokens int `yaml:"max_input_tokens,omitempty" json:"max_input_tokens,omitempty"`

	// Temperature controls sampling randomness.
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxRetries bounds transport-level retries per call.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// CACertificate is a path to an extra PEM root for providers
	// behind a corporate proxy.
	CACertificate string `yaml:"ca_certificate,omitempty" json:"ca_certificate,omitempty"`

	// InsecureSkipVerify disables TLS verification. Local development
	// only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty" json:"insecure_skip_verify,omitempty"`
}

// IsEnabled returns true if the chat proxy is enabled.
func (c *LLMConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults applies default values to the LLM config.
func (c *LLMConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(false)
	}
	if c.Provider == "" {
		c.Provider = "anthropic"
	}
	if c.APIKey == "" {
		c.APIKey = LookupAPIKey(c.Provider)
	}
	if c.Model == "" {
		c.Model = "claude-3-5-haiku-20241022"
	}
	if c.Host == "" {
		c.Host = "https://api.anthropic.com"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Provider != "anthropic" {
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required when llm is enabled")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	return nil
}
