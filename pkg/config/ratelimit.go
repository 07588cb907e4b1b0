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

package config

import "errors"

// RateLimitConfig defines one named rate limiting policy.
type RateLimitConfig struct {
	// Enabled controls whether this policy is enforced.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// MaxRequests is the number of admissions allowed per window.
	MaxRequests int `yaml:"max_requests,omitempty" json:"max_requests,omitempty"`

	// WindowMs is the sliding window length in milliseconds.
	WindowMs int64 `yaml:"window_ms,omitempty" json:"window_ms,omitempty"`

	// SweepProbability is the chance per check of a global cleanup
	// pass. Unset means the limiter's default; zero disables
	// opportunistic cleanup entirely.
	SweepProbability *float64 `yaml:"sweep_probability,omitempty" json:"sweep_probability,omitempty"`

	// ExcludedPaths bypass this policy in the HTTP middleware.
	ExcludedPaths []string `yaml:"excluded_paths,omitempty" json:"excluded_paths,omitempty"`
}

// IsEnabled returns true if this policy is enforced.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults sets default values for RateLimitConfig.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.MaxRequests == 0 {
		// Default: 5 provider calls per minute per key
		c.MaxRequests = 5
	}
	if c.WindowMs == 0 {
		c.WindowMs = 60000
	}
}

// Validate validates the RateLimitConfig.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.MaxRequests <= 0 {
		return errors.New("maxRequests must be positive")
	}
	if c.WindowMs <= 0 {
		return errors.New("windowMs must be positive")
	}
	if c.SweepProbability != nil && (*c.SweepProbability < 0 || *c.SweepProbability > 1) {
		return errors.New("sweep_probability must be between 0 and 1")
	}
	return nil
}
