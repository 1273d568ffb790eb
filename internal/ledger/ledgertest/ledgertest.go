// Package ledgertest wires integration tests to a throwaway Postgres schema.
// Tests skip unless MOBCITY_TEST_DATABASE_URL is set.
package ledgertest

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mobcity/internal/ledger"
)

var tables = []string{
	"econ.idempotency_keys",
	"econ.casino_history",
	"econ.bets",
	"econ.betting_options",
	"econ.betting_events",
	"econ.user_assets",
	"econ.shares",
	"econ.company_transactions",
	"econ.company_upgrades",
	"econ.company_employees",
	"econ.companies",
	"econ.loan_payments",
	"econ.loans",
	"econ.account_transactions",
	"econ.accounts",
	"econ.wallet_entries",
	"econ.wallets",
}

// Open connects to the test database, applies migrations, and registers a
// cleanup that truncates every ledger table.
func Open(t *testing.T) *ledger.Store {
	t.Helper()
	dsn := os.Getenv("MOBCITY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MOBCITY_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := ledger.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("migrate: %v", err)
	}
	truncate(t, pool)

	t.Cleanup(func() {
		truncate(t, pool)
		pool.Close()
	})
	return ledger.NewStore(pool, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range tables {
		if _, err := pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
