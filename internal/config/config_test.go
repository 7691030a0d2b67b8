package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadGameSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
  publicURL: https://quiz.example/play
redis:
  addr: localhost:6379
  ttl: 2h
game:
  gracePeriod: 5s
  autoAdvance: false
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.PublicURL != "https://quiz.example/play" {
		t.Fatalf("unexpected server section %+v", cfg.Server)
	}
	if got := TTLDuration(cfg.Game.GracePeriod, 10*time.Second); got != 5*time.Second {
		t.Fatalf("expected 5s grace, got %v", got)
	}
	if got := TTLDuration(cfg.Game.Tick, time.Second); got != time.Second {
		t.Fatalf("expected default tick, got %v", got)
	}
	if cfg.AutoAdvance() {
		t.Fatalf("expected autoAdvance disabled")
	}
	if got := TTLDuration(cfg.Redis.TTL, time.Minute); got != 2*time.Hour {
		t.Fatalf("expected 2h ttl, got %v", got)
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	if !cfg.AutoAdvance() {
		t.Fatalf("autoAdvance should default to true")
	}
	if got := TTLDuration("soon", 3*time.Second); got != 3*time.Second {
		t.Fatalf("malformed duration should fall back, got %v", got)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
