package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/econ")
	t.Setenv("MOBCITY_IDENTITY_URL", "https://id.example.com/")
	t.Setenv("MOBCITY_INTEREST_DAILY_BPS", "25")
	t.Setenv("MOBCITY_LOAN_GRACE_PERIOD", "48h")
	t.Setenv("MOBCITY_STARTUP_SEED", "false")
	t.Setenv("PORT", "9090")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr=%q want :9090", cfg.Addr)
	}
	if cfg.IdentityURL != "https://id.example.com" {
		t.Fatalf("identity url not trimmed: %q", cfg.IdentityURL)
	}
	if cfg.Economy.InterestDailyBps != 25 {
		t.Fatalf("interest bps=%d want 25", cfg.Economy.InterestDailyBps)
	}
	if cfg.Economy.LoanGracePeriod != 48*time.Hour {
		t.Fatalf("grace=%s want 48h", cfg.Economy.LoanGracePeriod)
	}
	if cfg.StartupSeed {
		t.Fatalf("expected seed disabled")
	}
}

func TestLoadAPIFromEnvRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MOBCITY_IDENTITY_URL", "https://id.example.com")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("MOBCITY_TEST_DUR", "garbage")
	if got := envDurationDefault("MOBCITY_TEST_DUR", time.Minute); got != time.Minute {
		t.Fatalf("bad duration must fall back, got %s", got)
	}
	t.Setenv("MOBCITY_TEST_INT", "")
	if got := envInt64Default("MOBCITY_TEST_INT", 7); got != 7 {
		t.Fatalf("empty int must fall back, got %d", got)
	}
	t.Setenv("MOBCITY_TEST_BOOL", "true")
	if !envBoolDefault("MOBCITY_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
}
