// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config defines the gateway configuration model.
//
// Configuration is authored in YAML, env-expanded, decoded with
// mapstructure, defaulted, and validated, in that order. Each section
// owns its SetDefaults and Validate; the root Config runs them all.
package config

import (
	"fmt"

	"github.com/yoshikouki/aias-sub000/pkg/observability"
)

// DefaultLimiterName is the rate limit section every deployment must
// define; named sections beside it override the default per surface.
const DefaultLimiterName = "default"

// Config is the root configuration for the gateway.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Logging configures the process-wide logger.
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// RateLimits holds named limiter policies. The "default" entry is
	// required; additional entries define per-surface policies.
	RateLimits map[string]*RateLimitConfig `yaml:"rate_limits,omitempty" json:"rate_limits,omitempty"`

	// LLM configures the downstream text-generation provider.
	LLM LLMConfig `yaml:"llm,omitempty" json:"llm,omitempty"`

	// Database configures the SQL store used by the usage journal.
	Database *DatabaseConfig `yaml:"database,omitempty" json:"database,omitempty"`

	// Journal configures admission auditing.
	Journal JournalConfig `yaml:"journal,omitempty" json:"journal,omitempty"`

	// Observability configures metrics and tracing.
	Observability *observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.RateLimits == nil {
		c.RateLimits = make(map[string]*RateLimitConfig)
	}
	if _, ok := c.RateLimits[DefaultLimiterName]; !ok {
		c.RateLimits[DefaultLimiterName] = &RateLimitConfig{}
	}
	for _, rl := range c.RateLimits {
		rl.SetDefaults()
	}

	c.Server.SetDefaults()
	c.Logging.SetDefaults()
	c.LLM.SetDefaults()
	c.Journal.SetDefaults()
	if c.Observability == nil {
		c.Observability = &observability.Config{}
	}
	c.Observability.SetDefaults()
	if c.Database != nil {
		c.Database.SetDefaults()
	}
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	for name, rl := range c.RateLimits {
		if err := rl.Validate(); err != nil {
			return fmt.Errorf("rate_limits.%s: %w", name, err)
		}
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if c.Journal.IsEnabled() && c.Journal.Backend == "sql" {
		if c.Database == nil {
			return fmt.Errorf("journal: backend 'sql' requires a database section")
		}
	}
	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// Limiter returns the named rate limit section, falling back to the
// default section when no section carries that name.
func (c *Config) Limiter(name string) *RateLimitConfig {
	if rl, ok := c.RateLimits[name]; ok {
		return rl
	}
	return c.RateLimits[DefaultLimiterName]
}

// BoolPtr returns a pointer to b. Convenience for tri-state flags.
func BoolPtr(b bool) *bool {
	return &b
}
