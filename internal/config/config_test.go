package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Window != 30 || cfg.Model.Trees != 100 || cfg.Model.Seed != 42 {
		t.Fatalf("unexpected model defaults: %+v", cfg.Model)
	}
	if cfg.Model.MaxDepth != 0 || cfg.Model.MinLeaf != 1 {
		t.Fatalf("forest must default to unlimited depth and single-example leaves, got depth=%d leaf=%d", cfg.Model.MaxDepth, cfg.Model.MinLeaf)
	}
	if cfg.Model.TestRatio != 0.2 {
		t.Fatalf("expected test ratio 0.2, got %v", cfg.Model.TestRatio)
	}
	if cfg.Fallback.Base != 100 || cfg.Fallback.Spread != 10 {
		t.Fatalf("unexpected fallback defaults: %+v", cfg.Fallback)
	}
	if cfg.Dataset.MaxFiles != 0 {
		t.Fatalf("ingestion must be uncapped by default, got %d", cfg.Dataset.MaxFiles)
	}
	if !cfg.Dataset.SymbolFromFilename {
		t.Fatalf("expected symbols from file names by default")
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.Server.CORSOrigins)
	}
	if cfg.Retention.Keep != 720*time.Hour {
		t.Fatalf("unexpected retention keep %v", cfg.Retention.Keep)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
dataset:
  dir: /data/prices
  format: parquet
model:
  kind: linear
  window: 20
server:
  cors_origins: http://a.example,http://b.example
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STOCKPREDICTOR_MODEL_WINDOW", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dataset.Dir != "/data/prices" || cfg.Dataset.Format != "parquet" {
		t.Fatalf("unexpected dataset: %+v", cfg.Dataset)
	}
	if cfg.Model.Kind != "linear" {
		t.Fatalf("unexpected kind %q", cfg.Model.Kind)
	}
	if cfg.Model.Window != 10 {
		t.Fatalf("env override not applied, window=%d", cfg.Model.Window)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.Server.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := map[string]func(c *Config){
		"window":     func(c *Config) { c.Model.Window = 0 },
		"test ratio": func(c *Config) { c.Model.TestRatio = 1 },
		"kind":       func(c *Config) { c.Model.Kind = "svm" },
		"format":     func(c *Config) { c.Dataset.Format = "xlsx" },
		"max files":  func(c *Config) { c.Dataset.MaxFiles = -1 },
		"telegram":   func(c *Config) { c.Alerting.Telegram.Enabled = true },
		"retention":  func(c *Config) { c.Retention.Keep = 0 },
	}
	for name, mutate := range cases {
		cfg := *base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestValidateTelegramMessages(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Alerting.Telegram.Enabled = true

	err = cfg.Validate()
	if err == nil || err.Error() != "alerting.telegram.bot_token must be set when telegram is enabled" {
		t.Fatalf("unexpected bot token error: %v", err)
	}

	cfg.Alerting.Telegram.BotToken = "token"
	err = cfg.Validate()
	if err == nil || err.Error() != "alerting.telegram.chat_id must be set when telegram is enabled" {
		t.Fatalf("unexpected chat id error: %v", err)
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 50}}
	if got := cfg.ResolveMaxPoints(0); got != 50 {
		t.Fatalf("expected default 50, got %d", got)
	}
	if got := cfg.ResolveMaxPoints(7); got != 7 {
		t.Fatalf("expected override 7, got %d", got)
	}
}
