package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce.WindowMs != 2000 {
		t.Errorf("default window = %d", cfg.Debounce.WindowMs)
	}
	if len(cfg.Classification.Categories) == 0 {
		t.Errorf("no default categories")
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// comments are allowed
		server: { port: 9000 },
		debounce: { window_ms: 500 },
		classification: {
			categories: [
				{ name: "sports", keywords: ["partido"], auth_exempt: true },
			],
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Debounce.WindowMs != 500 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Classification.Categories) != 1 || cfg.Classification.Categories[0].Name != "sports" {
		t.Errorf("categories = %+v", cfg.Classification.Categories)
	}
	if !cfg.Classification.Categories[0].AuthExempt {
		t.Errorf("auth_exempt not parsed")
	}
	// Untouched sections keep defaults.
	if cfg.Sessions.IdleTTLHours != 12 {
		t.Errorf("idle ttl = %d", cfg.Sessions.IdleTTLHours)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AULA_PORT", "7777")
	t.Setenv("AULA_DB_MODE", "sqlite")
	t.Setenv("AULA_ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("AULA_DEBOUNCE_MS", "250")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Database.Mode != "sqlite" {
		t.Errorf("db mode = %q", cfg.Database.Mode)
	}
	if cfg.Provider.Anthropic.APIKey != "sk-test" {
		t.Errorf("api key not overlaid")
	}
	if cfg.Debounce.WindowMs != 250 {
		t.Errorf("window = %d", cfg.Debounce.WindowMs)
	}
}

func TestCategoryLookup(t *testing.T) {
	cfg := Default()
	if cfg.Category("financial") == nil {
		t.Errorf("financial category missing")
	}
	if cfg.Category("nope") != nil {
		t.Errorf("unknown category found")
	}
	names := cfg.CategoryNames()
	if len(names) != len(cfg.Classification.Categories) {
		t.Errorf("names = %v", names)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x.db"); got != home+"/x.db" {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/abs/x.db"); got != "/abs/x.db" {
		t.Errorf("ExpandHome = %q", got)
	}
}
