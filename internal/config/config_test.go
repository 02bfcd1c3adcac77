package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ContextWindow != DefaultContextWindow {
		t.Errorf("ContextWindow = %d, want %d", cfg.ContextWindow, DefaultContextWindow)
	}
	if cfg.StoreBacking != StoreMemory {
		t.Errorf("StoreBacking = %q, want %q", cfg.StoreBacking, StoreMemory)
	}
	if cfg.DefaultProvider == "" {
		t.Error("no default provider configured")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
addr: ":9000"
default_provider: ollama
context_window: 8
store_backing: sqlite
store_dsn: /tmp/test.db
providers:
  ollama:
    base_url: http://ollama.internal:11434
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.DefaultProvider != BackendOllama {
		t.Errorf("DefaultProvider = %q, want ollama", cfg.DefaultProvider)
	}
	if cfg.ContextWindow != 8 {
		t.Errorf("ContextWindow = %d, want 8", cfg.ContextWindow)
	}
	if cfg.StoreBacking != StoreSQLite {
		t.Errorf("StoreBacking = %q, want sqlite", cfg.StoreBacking)
	}
	if cfg.Providers["ollama"].BaseURL != "http://ollama.internal:11434" {
		t.Errorf("ollama base_url = %q", cfg.Providers["ollama"].BaseURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DEFAULT_PROVIDER", "anthropic")
	t.Setenv("SESSION_STORE", "sqlite")
	t.Setenv("CONTEXT_WINDOW", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultProvider != BackendAnthropic {
		t.Errorf("DefaultProvider = %q, want anthropic", cfg.DefaultProvider)
	}
	if cfg.StoreBacking != StoreSQLite {
		t.Errorf("StoreBacking = %q, want sqlite", cfg.StoreBacking)
	}
	if cfg.ContextWindow != 3 {
		t.Errorf("ContextWindow = %d, want 3", cfg.ContextWindow)
	}
}

func TestLoadRejectsUnknownBacking(t *testing.T) {
	t.Setenv("SESSION_STORE", "redis")

	if _, err := Load(""); err == nil {
		t.Fatal("Load accepted an unknown store backing")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load accepted a missing config file")
	}
}
