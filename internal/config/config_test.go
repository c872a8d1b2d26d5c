package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("ROCKY_TEST_KEY", "sk-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
listen:
  port: 9090
openai:
  api_key: ${ROCKY_TEST_KEY}
  model: gpt-4o-mini
agent:
  max_input_chars: 2000
  max_rounds: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Listen.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Listen.Port)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("env var not expanded: %q", cfg.OpenAI.APIKey)
	}
	if cfg.Agent.MaxInputChars != 2000 {
		t.Errorf("expected max_input_chars 2000, got %d", cfg.Agent.MaxInputChars)
	}
	if cfg.Agent.MaxRounds != 3 {
		t.Errorf("expected max_rounds 3, got %d", cfg.Agent.MaxRounds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Listen.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Listen.Port)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("unexpected default model: %q", cfg.OpenAI.Model)
	}
	if cfg.Agent.MaxInputChars != 10000 {
		t.Errorf("unexpected default max input: %d", cfg.Agent.MaxInputChars)
	}
	if cfg.History.Backend != "memory" {
		t.Errorf("unexpected default history backend: %q", cfg.History.Backend)
	}
}

func TestAgentTimeoutDefaults(t *testing.T) {
	var c AgentConfig
	if c.ModelTimeout() != 120*time.Second {
		t.Errorf("unexpected default model timeout: %v", c.ModelTimeout())
	}
	if c.ToolTimeout() != 30*time.Second {
		t.Errorf("unexpected default tool timeout: %v", c.ToolTimeout())
	}
	c.ToolTimeoutSec = 5
	if c.ToolTimeout() != 5*time.Second {
		t.Errorf("configured tool timeout ignored: %v", c.ToolTimeout())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  error  ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}
