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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/yoshikouki/aias-sub000/pkg/config"
)

// defaultConfigFile is probed in the working directory when --config is
// not given.
const defaultConfigFile = "aiasgate.yaml"

// loadConfig loads configuration from file or falls back to defaults.
// The returned loader is nil in zero-config mode; callers close it
// otherwise.
func loadConfig(ctx context.Context, configPath string) (*config.Config, *config.Loader, error) {
	if configPath == "" && fileExists(defaultConfigFile) {
		configPath = defaultConfigFile
	}

	if configPath != "" {
		cfg, loader, err := config.LoadConfigFile(ctx, configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		slog.Info("Loaded configuration", "path", configPath)
		return cfg, loader, nil
	}

	// Zero-config mode serves the built-in default policy with the
	// chat proxy and journal off.
	cfg := &config.Config{}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid zero-config: %w", err)
	}
	slog.Info("Using zero-config defaults")
	return cfg, nil, nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
