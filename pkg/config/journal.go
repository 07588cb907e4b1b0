package config

import "fmt"

// JournalConfig configures admission auditing.
type JournalConfig struct {
	// Enabled controls whether limiter decisions are journaled.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Backend is the storage backend ("memory" or "sql").
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Capacity bounds per-key retention for the memory backend.
	Capacity int `yaml:"capacity,omitempty" json:"capacity,omitempty"`
}

// IsEnabled returns true if journaling is enabled.
func (c *JournalConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults sets default values for JournalConfig.
func (c *JournalConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(false)
	}
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Capacity == 0 {
		c.Capacity = 256
	}
}

// Validate validates the JournalConfig.
func (c *JournalConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	if c.Backend != "memory" && c.Backend != "sql" {
		return fmt.Errorf("invalid backend %q, must be 'memory' or 'sql'", c.Backend)
	}
	if c.Capacity < 0 {
		return fmt.Errorf("capacity must be non-negative")
	}
	return nil
}
