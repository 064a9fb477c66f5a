package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "QUIZ_TIMEOUT_SEC", "ELO_K_FACTOR", "MATCH_RETRY_SEC", "MATCH_EXPIRY_SEC", "WS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.QuizTimeout != 30*time.Second || cfg.EloKFactor != 32 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MatchRetryInterval != 5*time.Second || cfg.MatchExpiry != time.Minute {
		t.Fatalf("unexpected matchmaking defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("QUIZ_TIMEOUT_SEC", "10")
	t.Setenv("ELO_K_FACTOR", "not-a-number")
	t.Setenv("WS_ALLOWED_ORIGINS", "example.com, , localhost:*")
	t.Setenv("STALE_ACTIVE_MIN", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.QuizTimeout != 10*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.EloKFactor != 32 {
		t.Fatalf("invalid number should keep default, got %d", cfg.EloKFactor)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "localhost:*" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.StaleActiveAfter != 5*time.Minute {
		t.Fatalf("unexpected stale active: %s", cfg.StaleActiveAfter)
	}
}

func TestValidateRejectsRetryLongerThanExpiry(t *testing.T) {
	t.Setenv("MATCH_RETRY_SEC", "90")
	t.Setenv("MATCH_EXPIRY_SEC", "60")
	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}
