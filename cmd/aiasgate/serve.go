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
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/logger"
	"github.com/yoshikouki/aias-sub000/pkg/server"
)

// ServeCmd starts the admission gateway server.
type ServeCmd struct {
	Port  int  `help:"Port to listen on. Overrides the config value when set." default:"0"`
	Watch bool `help:"Watch config file for changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, loader, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.Watch && loader == nil {
		return fmt.Errorf("--watch requires a config file")
	}

	// Override port if explicitly specified
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	// The config file's logging section applies only when no CLI flag
	// or env var already chose the settings.
	if !loggingOverridden(cli) {
		cleanup, err := initLoggerFromConfig(cfg.Logging)
		if err != nil {
			return err
		}
		if cleanup != nil {
			defer cleanup()
		}
	}

	var watchLoader *config.Loader
	if c.Watch {
		watchLoader = loader
	}

	srv, err := server.New(server.Options{
		Config: cfg,
		Loader: watchLoader,
		Logger: logger.GetLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	printStartupInfo(cfg, c.Watch)

	// Serve blocks until the context is cancelled
	return srv.Run(ctx)
}

// printStartupInfo prints the endpoint list and the active policies.
func printStartupInfo(cfg *config.Config, watching bool) {
	greenColor := "\033[38;2;16;185;129m"
	resetColor := "\033[0m"
	addr := cfg.Server.Address()

	fmt.Printf("\n%s🚀 aiasgate ready!%s\n", greenColor, resetColor)
	fmt.Printf("   Health:      http://%s/healthz\n", addr)
	fmt.Printf("   Check:       http://%s/v1/limits/check\n", addr)
	fmt.Printf("   Journal:     http://%s/v1/journal\n", addr)
	if cfg.LLM.IsEnabled() {
		fmt.Printf("   Chat:        http://%s/v1/chat\n", addr)
	}
	if cfg.Observability != nil && cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     http://%s/metrics\n", addr)
	}

	fmt.Println("\n   Policies:")
	names := make([]string, 0, len(cfg.RateLimits))
	for name := range cfg.RateLimits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sec := cfg.RateLimits[name]
		if sec == nil || !sec.IsEnabled() {
			fmt.Printf("     - %s: disabled\n", name)
			continue
		}
		window := time.Duration(sec.WindowMs) * time.Millisecond
		fmt.Printf("     - %s: %d req / %s\n", name, sec.MaxRequests, window)
	}

	if cfg.LLM.IsEnabled() {
		fmt.Printf("\n   LLM:         %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	} else {
		fmt.Printf("\n   LLM:         disabled\n")
	}
	if cfg.Journal.IsEnabled() {
		backend := cfg.Journal.Backend
		if backend == "sql" && cfg.Database != nil {
			backend = fmt.Sprintf("sql (%s)", cfg.Database.Driver)
		}
		fmt.Printf("   Journal:     %s\n", backend)
	} else {
		fmt.Printf("   Journal:     disabled\n")
	}
	if watching {
		fmt.Printf("   Watch:       config reloads applied live\n")
	}

	fmt.Println("\nPress Ctrl+C to stop")
}
