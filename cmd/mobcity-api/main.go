package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mobcity/internal/api"
	"mobcity/internal/asset"
	"mobcity/internal/auth"
	"mobcity/internal/bank"
	"mobcity/internal/company"
	"mobcity/internal/config"
	"mobcity/internal/db"
	"mobcity/internal/ledger"
	"mobcity/internal/loan"
	"mobcity/internal/networth"
	"mobcity/internal/notify"
	"mobcity/internal/wager"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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
	casinoSvc := wager.NewCasinoService(store, logger, sink)
	networthSvc := networth.NewService(store, logger, store, bankSvc, companySvc, assetSvc, loanSvc)

	if cfg.StartupSeed {
		if err := assetSvc.SeedCatalog(ctx); err != nil {
			logger.Error("seed asset catalog failed", "err", err)
			os.Exit(1)
		}
		if err := casinoSvc.SeedGames(ctx); err != nil {
			logger.Error("seed casino games failed", "err", err)
			os.Exit(1)
		}
	}

	server := api.New(cfg, logger, auth.NewClient(cfg.IdentityURL), api.Services{
		Store:    store,
		Bank:     bankSvc,
		Loans:    loanSvc,
		Company:  companySvc,
		Assets:   assetSvc,
		Events:   eventSvc,
		Casino:   casinoSvc,
		NetWorth: networthSvc,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("mobcity api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
