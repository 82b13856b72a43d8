package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.Interval() != 24*time.Hour {
		t.Errorf("interval = %v", cfg.Scheduler.Interval())
	}
	if len(cfg.Sources) == 0 {
		t.Fatal("no default sources")
	}
	if _, ok := cfg.Source("archdaily"); !ok {
		t.Error("archdaily missing from defaults")
	}
}

func TestLoadWithoutDatabaseURLLeavesDSNEmpty(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	cfg := Load()

	// An empty DSN selects the in-memory seen store.
	if cfg.Database.DSN != "" {
		t.Errorf("dsn = %q, want empty", cfg.Database.DSN)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override:5432/db")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")

	cfg := Load()

	if cfg.Database.DSN != "postgres://override:5432/db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.Notifications.Telegram.BotToken != "bot-token" {
		t.Errorf("bot token = %q", cfg.Notifications.Telegram.BotToken)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
logging:
  level: debug
scheduler:
  intervalHours: 6
sources:
  - id: custom
    name: Custom Site
    baseUrl: https://custom.example
    scanner: pattern
    tier: 2
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ARCHWATCH_CONFIG", path)

	cfg := Load()

	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.Interval() != 6*time.Hour {
		t.Errorf("interval = %v", cfg.Scheduler.Interval())
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].ID != "custom" {
		t.Fatalf("sources = %+v", cfg.Sources)
	}
}

func TestSourcesByTier(t *testing.T) {
	cfg := Config{Sources: []SourceConfig{
		{ID: "a", Tier: 1},
		{ID: "b", Tier: 2},
		{ID: "c", Tier: 1},
	}}

	if got := cfg.SourcesByTier(0); len(got) != 3 {
		t.Errorf("tier 0 = %d sources, want all", len(got))
	}
	tier1 := cfg.SourcesByTier(1)
	if len(tier1) != 2 || tier1[0].ID != "a" || tier1[1].ID != "c" {
		t.Errorf("tier 1 = %+v", tier1)
	}
}

func TestScrapeTimeoutFallback(t *testing.T) {
	t.Parallel()

	src := SourceConfig{}
	if got := src.ScrapeTimeout(20 * time.Second); got != 20*time.Second {
		t.Errorf("fallback = %v", got)
	}
	src.ScrapeTimeoutMS = 5000
	if got := src.ScrapeTimeout(20 * time.Second); got != 5*time.Second {
		t.Errorf("explicit = %v", got)
	}
}
