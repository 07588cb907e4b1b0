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
	"strings"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/yoshikouki/aias-sub000/pkg/config"
	"github.com/yoshikouki/aias-sub000/pkg/testutils"
)

func newParser(t *testing.T, cli *CLI) *kong.Kong {
	t.Helper()
	parser, err := kong.New(cli, kong.Name("aiasgate"))
	if err != nil {
		t.Fatalf("failed to build parser: %v", err)
	}
	return parser
}

func TestCLI_ParseServeFlags(t *testing.T) {
	var cli CLI
	parser := newParser(t, &cli)

	ctx, err := parser.Parse([]string{"serve", "--port", "9090", "--watch", "--config", "gate.yaml"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if ctx.Command() != "serve" {
		t.Errorf("expected serve command, got %q", ctx.Command())
	}
	if cli.Serve.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cli.Serve.Port)
	}
	if !cli.Serve.Watch {
		t.Error("expected watch to be set")
	}
	if !strings.HasSuffix(cli.Config, "gate.yaml") {
		t.Errorf("expected config path ending in gate.yaml, got %q", cli.Config)
	}
}

func TestCLI_ParseCheckDefaults(t *testing.T) {
	var cli CLI
	parser := newParser(t, &cli)

	if _, err := parser.Parse([]string{"check"}); err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cli.Check.Key != "demo" {
		t.Errorf("expected default key demo, got %q", cli.Check.Key)
	}
	if cli.Check.N != 5 {
		t.Errorf("expected default n 5, got %d", cli.Check.N)
	}
	if cli.Check.Limiter != "default" {
		t.Errorf("expected default limiter section, got %q", cli.Check.Limiter)
	}
}

func TestLoadConfig_ZeroConfig(t *testing.T) {
	cfg, loader, err := loadConfig(context.Background(), "")
	if err != nil {
		t.Fatalf("zero-config load failed: %v", err)
	}
	if loader != nil {
		t.Error("expected nil loader in zero-config mode")
	}

	def := cfg.RateLimits[config.DefaultLimiterName]
	if def == nil || !def.IsEnabled() {
		t.Fatal("expected an enabled default policy")
	}
	if cfg.LLM.IsEnabled() {
		t.Error("expected LLM disabled in zero-config mode")
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := testutils.WriteConfigFile(t, `
rate_limits:
  default:
    max_requests: 7
    window_ms: 30000
`)

	cfg, loader, err := loadConfig(context.Background(), path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer loader.Close()

	def := cfg.RateLimits[config.DefaultLimiterName]
	if def.MaxRequests != 7 {
		t.Errorf("expected max_requests 7, got %d", def.MaxRequests)
	}
	if def.WindowMs != 30000 {
		t.Errorf("expected window_ms 30000, got %d", def.WindowMs)
	}
}

func TestCheckCmd_UnknownPolicy(t *testing.T) {
	path := testutils.WriteConfigFile(t, `
rate_limits:
  default:
    max_requests: 5
    window_ms: 60000
`)

	cmd := CheckCmd{Key: "demo", N: 1, Limiter: "missing"}
	err := cmd.Run(&CLI{Config: path})
	if err == nil || !strings.Contains(err.Error(), "no rate limit policy") {
		t.Fatalf("expected unknown policy error, got %v", err)
	}
}

func TestSweepCmd_RequiresJournal(t *testing.T) {
	path := testutils.WriteConfigFile(t, `
rate_limits:
  default:
    max_requests: 5
    window_ms: 60000
`)

	cmd := SweepCmd{OlderThan: 0}
	err := cmd.Run(&CLI{Config: path})
	if err == nil || !strings.Contains(err.Error(), "journal is not enabled") {
		t.Fatalf("expected journal disabled error, got %v", err)
	}
}

func TestValidateCmd_InvalidConfig(t *testing.T) {
	path := testutils.WriteConfigFile(t, `
rate_limits:
  default:
    max_requests: -5
    window_ms: 60000
`)

	cmd := ValidateCmd{Config: path, Format: "compact"}
	if err := cmd.Run(&CLI{}); err == nil {
		t.Fatal("expected validation to fail for negative max_requests")
	}
}

func TestLoggingOverridden(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	t.Setenv(LogFileEnvVar, "")
	t.Setenv(LogFormatEnvVar, "")

	if loggingOverridden(&CLI{}) {
		t.Error("expected no override with empty flags and env")
	}

	if !loggingOverridden(&CLI{LogLevel: "debug"}) {
		t.Error("expected CLI flag to count as override")
	}

	t.Setenv(LogLevelEnvVar, "warn")
	if !loggingOverridden(&CLI{}) {
		t.Error("expected env var to count as override")
	}
}
