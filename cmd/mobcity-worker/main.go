package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobcity/internal/asset"
	"mobcity/internal/bank"
	"mobcity/internal/company"
	"mobcity/internal/config"
	"mobcity/internal/db"
	"mobcity/internal/ledger"
	"mobcity/internal/loan"
	"mobcity/internal/notify"
	"mobcity/internal/wager"
)

type sweeper struct {
	name string
	run  func(context.Context, time.Time) (ledger.SweepReport, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := ledger.NewStore(pool, logger)
	if cfg.StartupMigrate {
		if err := ledger.Migrate(ctx, pool); err != nil {
			logger.Error("migrate failed", "err", err)
			os.Exit(1)
		}
	}

	var sink notify.Sink = notify.LogSink{Log: logger}
	if cfg.TelegramToken != "" && cfg.TelegramChannel != "" {
		tg, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChannel, logger)
		if err != nil {
			logger.Error("telegram sink init failed", "err", err)
			os.Exit(1)
		}
		sink = tg
	}

	bankSvc := bank.NewService(store, logger, bank.Params{
		DailyRateBps:   cfg.Economy.InterestDailyBps,
		InterestPeriod: cfg.Economy.InterestPeriod,
	})
	loanSvc := loan.NewService(store, logger, loan.Params{
		PaymentPeriod: cfg.Economy.LoanPaymentPeriod,
		GracePeriod:   cfg.Economy.LoanGracePeriod,
	})
	companySvc := company.NewService(store, logger, company.Params{
		PayrollPeriod: cfg.Economy.PayrollPeriod,
		IncomePeriod:  cfg.Economy.CompanyIncomePeriod,
		IncomeRateBps: cfg.Economy.CompanyIncomeBps,
	})
	assetSvc := asset.NewService(store, logger, asset.Params{
		IncomePeriod: cfg.Economy.AssetIncomePeriod,
	})
	eventSvc := wager.NewEventService(store, logger, sink)

	if cfg.StartupSeed {
		if err := assetSvc.SeedCatalog(ctx); err != nil {
			logger.Error("seed asset catalog failed", "err", err)
			os.Exit(1)
		}
	}

	sweeps := []sweeper{
		{name: "interest", run: bankSvc.AccrueInterest},
		{name: "delinquency", run: loanSvc.SweepDelinquent},
		{name: "payroll", run: companySvc.Payroll},
		{name: "company_income", run: companySvc.AccrueIncome},
		{name: "asset_income", run: assetSvc.AccrueIncome},
		{name: "close_expired_events", run: eventSvc.CloseExpired},
	}

	runAll := func(now time.Time) {
		for _, sw := range sweeps {
			report, err := sw.run(ctx, now)
			if err != nil {
				logger.Error("sweep failed", "sweep", sw.name, "err", err)
				continue
			}
			logger.Info("sweep complete", "sweep", sw.name,
				"eligible", report.Eligible, "applied", report.Applied,
				"skipped", report.Skipped, "failures", len(report.Failures))
		}
	}

	if cfg.RunOnce {
		runAll(time.Now().UTC())
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()

	logger.Info("worker started", "sweep_every", cfg.SweepEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			runAll(time.Now().UTC())
		}
	}
}
