package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pylearn.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Runner.DefaultTimeout != 5*time.Second {
		t.Errorf("default timeout = %s, want 5s", cfg.Runner.DefaultTimeout)
	}
	if cfg.Runner.Backend != "local" {
		t.Errorf("backend = %q, want local", cfg.Runner.Backend)
	}
	if cfg.LLM.Model != "gpt-4" {
		t.Errorf("model = %q, want gpt-4", cfg.LLM.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("PYLEARN_TEST_KEY", "sk-test")
	path := writeConfig(t, `
server:
  port: 9090
runner:
  workers: 2
  default_timeout: 3s
  max_timeout: 10s
llm:
  api_key: ${PYLEARN_TEST_KEY}
content:
  root: /srv/content
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Runner.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Runner.Workers)
	}
	if cfg.Runner.DefaultTimeout != 3*time.Second {
		t.Errorf("default timeout = %s, want 3s", cfg.Runner.DefaultTimeout)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q, want expanded env value", cfg.LLM.APIKey)
	}
	if got := cfg.CatalogPath(); got != filepath.Join("/srv/content", "catalog.yaml") {
		t.Errorf("CatalogPath() = %q", got)
	}
	// Untouched sections keep their defaults
	if cfg.Runner.QueueSize != 16 {
		t.Errorf("queue size = %d, want default 16", cfg.Runner.QueueSize)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "runner:\n  backend: firecracker\n"},
		{"zero workers", "runner:\n  workers: 0\n"},
		{"max below default", "runner:\n  default_timeout: 10s\n  max_timeout: 2s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("SOME_VAR", "value")
	if got := expandEnv("${SOME_VAR}"); got != "value" {
		t.Errorf("expandEnv = %q, want value", got)
	}
	if got := expandEnv("literal"); got != "literal" {
		t.Errorf("expandEnv = %q, want literal", got)
	}
}
