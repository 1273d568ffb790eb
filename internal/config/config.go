package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EconomyParams carries the tunable cadences and rates of the economy engine.
// The worker and the ops sweep endpoints share one set so a sweep behaves the
// same no matter who triggers it.
type EconomyParams struct {
	InterestDailyBps    int64
	InterestPeriod      time.Duration
	LoanPaymentPeriod   time.Duration
	LoanGracePeriod     time.Duration
	PayrollPeriod       time.Duration
	CompanyIncomePeriod time.Duration
	CompanyIncomeBps    int64
	AssetIncomePeriod   time.Duration
}

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	IdentityURL     string
	OpsToken        string
	StartupMigrate  bool
	StartupSeed     bool
	TelegramToken   string
	TelegramChannel string
	Economy         EconomyParams
}

type WorkerConfig struct {
	DatabaseURL     string
	SweepEvery      time.Duration
	StartupMigrate  bool
	StartupSeed     bool
	RunOnce         bool
	TelegramToken   string
	TelegramChannel string
	Economy         EconomyParams
}

type CLIConfig struct {
	APIBaseURL string
	OpsToken   string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("MOBCITY_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		IdentityURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("MOBCITY_IDENTITY_URL")), "/"),
		OpsToken:        strings.TrimSpace(os.Getenv("MOBCITY_OPS_TOKEN")),
		StartupMigrate:  envBoolDefault("MOBCITY_STARTUP_MIGRATE", true),
		StartupSeed:     envBoolDefault("MOBCITY_STARTUP_SEED", true),
		TelegramToken:   strings.TrimSpace(os.Getenv("MOBCITY_TELEGRAM_TOKEN")),
		TelegramChannel: strings.TrimSpace(os.Getenv("MOBCITY_TELEGRAM_CHANNEL")),
		Economy:         loadEconomyFromEnv(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.IdentityURL == "" {
		return cfg, fmt.Errorf("MOBCITY_IDENTITY_URL is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SweepEvery:      envDurationDefault("MOBCITY_SWEEP_EVERY", time.Hour),
		StartupMigrate:  envBoolDefault("MOBCITY_STARTUP_MIGRATE", true),
		StartupSeed:     envBoolDefault("MOBCITY_STARTUP_SEED", true),
		RunOnce:         envBoolDefault("MOBCITY_WORKER_RUN_ONCE", false),
		TelegramToken:   strings.TrimSpace(os.Getenv("MOBCITY_TELEGRAM_TOKEN")),
		TelegramChannel: strings.TrimSpace(os.Getenv("MOBCITY_TELEGRAM_CHANNEL")),
		Economy:         loadEconomyFromEnv(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("MOBCTL_API_BASE_URL", "http://localhost:8080"), "/"),
		OpsToken:   strings.TrimSpace(os.Getenv("MOBCTL_OPS_TOKEN")),
	}
}

func loadEconomyFromEnv() EconomyParams {
	return EconomyParams{
		InterestDailyBps:    envInt64Default("MOBCITY_INTEREST_DAILY_BPS", 10),
		InterestPeriod:      envDurationDefault("MOBCITY_INTEREST_PERIOD", 24*time.Hour),
		LoanPaymentPeriod:   envDurationDefault("MOBCITY_LOAN_PAYMENT_PERIOD", 7*24*time.Hour),
		LoanGracePeriod:     envDurationDefault("MOBCITY_LOAN_GRACE_PERIOD", 72*time.Hour),
		PayrollPeriod:       envDurationDefault("MOBCITY_PAYROLL_PERIOD", 24*time.Hour),
		CompanyIncomePeriod: envDurationDefault("MOBCITY_COMPANY_INCOME_PERIOD", 24*time.Hour),
		CompanyIncomeBps:    envInt64Default("MOBCITY_COMPANY_INCOME_BPS", 150),
		AssetIncomePeriod:   envDurationDefault("MOBCITY_ASSET_INCOME_PERIOD", 24*time.Hour),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
