package config

import "fmt"

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format is the output format: simple, verbose, or json.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output is "stderr", "stdout", or a file path.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// SetDefaults applies default values to the logging config.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
	if c.Output == "" {
		c.Output = "stderr"
	}
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "simple", "verbose", "json":
	default:
		return fmt.Errorf("invalid format %q (valid: simple, verbose, json)", c.Format)
	}
	return nil
}
