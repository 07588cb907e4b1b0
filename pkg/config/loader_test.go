package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: 127.0.0.1
  port: 9090
logging:
  level: debug
  format: json
rate_limits:
  default:
    max_requests: 10
    window_ms: 5000
  chat:
    max_requests: 2
    window_ms: 1000
    excluded_paths:
      - /healthz
`)

	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()

	if got := cfg.Server.Address(); got != "127.0.0.1:9090" {
		t.Errorf("expected address 127.0.0.1:9090, got %s", got)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json log format, got %s", cfg.Logging.Format)
	}
	if got := cfg.Limiter("chat").MaxRequests; got != 2 {
		t.Errorf("expected chat limit 2, got %d", got)
	}
	if got := cfg.Limiter("chat").ExcludedPaths; len(got) != 1 || got[0] != "/healthz" {
		t.Errorf("expected excluded path /healthz, got %v", got)
	}
	// Sections absent from the file still get defaults.
	if cfg.Server.WriteTimeoutSeconds == 0 {
		t.Error("expected write timeout default to be applied")
	}
}

func TestLoadConfigFile_NotFound(t *testing.T) {
	_, _, err := LoadConfigFile(context.Background(), "/nonexistent/gate.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("rate_limits:\n  - broken: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestParse_JSONBody(t *testing.T) {
	cfg, err := Parse([]byte(`{"server": {"port": 8081}}`))
	if err != nil {
		t.Fatalf("failed to parse JSON config: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("expected port 8081, got %d", cfg.Server.Port)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("GATE_TEST_KEY", "sk-from-env")
	t.Setenv("GATE_TEST_HOST", "10.0.0.1")
	os.Unsetenv("GATE_TEST_MISSING")

	cfg, err := Parse([]byte(`
server:
  host: $GATE_TEST_HOST
llm:
  enabled: true
  api_key: ${GATE_TEST_KEY}
  model: ${GATE_TEST_MISSING:-claude-3-5-haiku-20241022}
`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Server.Host != "10.0.0.1" {
		t.Errorf("expected $VAR expansion, got %q", cfg.Server.Host)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("expected ${VAR} expansion, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("expected default fallback expansion, got %q", cfg.LLM.Model)
	}
}

func TestParse_DurationStrings(t *testing.T) {
	cfg, err := Parse([]byte(`
observability:
  tracing:
    timeout: 5s
`))
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	if cfg.Observability.Tracing.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Observability.Tracing.Timeout)
	}
}

func TestParse_RejectsInvalidConfig(t *testing.T) {
	_, err := Parse([]byte(`
rate_limits:
  default:
    max_requests: -3
`))
	if err == nil {
		t.Fatal("expected validation to reject a negative limit")
	}
}

func TestLoader_Watch_Reload(t *testing.T) {
	path := writeConfigFile(t, `
rate_limits:
  default:
    max_requests: 1
    window_ms: 1000
`)

	reloaded := make(chan *Config, 1)
	cfg, loader, err := LoadConfigFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	defer loader.Close()
	loader.SetOnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})

	if cfg.Limiter("default").MaxRequests != 1 {
		t.Fatalf("unexpected initial limit %d", cfg.Limiter("default").MaxRequests)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- loader.Watch(ctx) }()

	// Give the watcher a moment to establish before rewriting.
	time.Sleep(250 * time.Millisecond)

	body := `
rate_limits:
  default:
    max_requests: 7
    window_ms: 1000
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case next := <-reloaded:
		if next.Limiter("default").MaxRequests != 7 {
			t.Errorf("expected reloaded limit 7, got %d", next.Limiter("default").MaxRequests)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on context cancel")
	}
}
