package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS econ`,

	`CREATE TABLE IF NOT EXISTS econ.wallets (
		user_id       text PRIMARY KEY,
		balance_cents bigint NOT NULL DEFAULT 0,
		created_at    timestamptz NOT NULL DEFAULT now(),
		updated_at    timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS econ.wallet_entries (
		id           bigserial PRIMARY KEY,
		user_id      text NOT NULL,
		amount_cents bigint NOT NULL,
		kind         text NOT NULL,
		ref_id       text NOT NULL DEFAULT '',
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_entries_user ON econ.wallet_entries (user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS econ.accounts (
		id                    bigserial PRIMARY KEY,
		owner_id              text NOT NULL,
		kind                  text NOT NULL CHECK (kind IN ('checking', 'savings')),
		balance_cents         bigint NOT NULL DEFAULT 0,
		last_interest_paid_at timestamptz NOT NULL DEFAULT now(),
		created_at            timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON econ.accounts (owner_id)`,

	`CREATE TABLE IF NOT EXISTS econ.account_transactions (
		id           bigserial PRIMARY KEY,
		account_id   bigint NOT NULL REFERENCES econ.accounts (id),
		amount_cents bigint NOT NULL,
		kind         text NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_account_transactions_account ON econ.account_transactions (account_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS econ.loans (
		id                bigserial PRIMARY KEY,
		owner_id          text NOT NULL,
		principal_cents   bigint NOT NULL,
		remaining_cents   bigint NOT NULL,
		interest_rate_bps bigint NOT NULL DEFAULT 0,
		status            text NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'paid', 'defaulted')),
		next_payment_due  timestamptz NOT NULL,
		created_at        timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_loans_owner ON econ.loans (owner_id)`,

	`CREATE TABLE IF NOT EXISTS econ.loan_payments (
		id           bigserial PRIMARY KEY,
		loan_id      bigint NOT NULL REFERENCES econ.loans (id),
		amount_cents bigint NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS econ.companies (
		id                bigserial PRIMARY KEY,
		owner_id          text NOT NULL,
		name              text NOT NULL,
		value_cents       bigint NOT NULL DEFAULT 0,
		treasury_cents    bigint NOT NULL DEFAULT 0,
		publicly_traded   boolean NOT NULL DEFAULT false,
		share_price_cents bigint NOT NULL DEFAULT 0,
		total_shares      bigint NOT NULL DEFAULT 0,
		last_income_at    timestamptz NOT NULL DEFAULT now(),
		created_at        timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_companies_owner ON econ.companies (owner_id)`,

	`CREATE TABLE IF NOT EXISTS econ.company_employees (
		id           bigserial PRIMARY KEY,
		company_id   bigint NOT NULL REFERENCES econ.companies (id),
		user_id      text NOT NULL,
		salary_cents bigint NOT NULL,
		hired_at     timestamptz NOT NULL DEFAULT now(),
		last_paid_at timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_company_employees_company ON econ.company_employees (company_id)`,

	`CREATE TABLE IF NOT EXISTS econ.company_upgrades (
		id               bigserial PRIMARY KEY,
		company_id       bigint NOT NULL REFERENCES econ.companies (id),
		kind             text NOT NULL,
		income_bonus_bps bigint NOT NULL,
		cost_cents       bigint NOT NULL,
		purchased_at     timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS econ.company_transactions (
		id           bigserial PRIMARY KEY,
		company_id   bigint NOT NULL REFERENCES econ.companies (id),
		amount_cents bigint NOT NULL,
		kind         text NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_company_transactions_company ON econ.company_transactions (company_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS econ.shares (
		user_id    text NOT NULL,
		company_id bigint NOT NULL REFERENCES econ.companies (id),
		amount     bigint NOT NULL,
		PRIMARY KEY (user_id, company_id)
	)`,

	`CREATE TABLE IF NOT EXISTS econ.assets (
		id               bigserial PRIMARY KEY,
		name             text NOT NULL UNIQUE,
		base_price_cents bigint NOT NULL,
		income_cents     bigint NOT NULL DEFAULT 0,
		purchasable      boolean NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS econ.user_assets (
		id                   bigserial PRIMARY KEY,
		user_id              text NOT NULL,
		asset_id             bigint NOT NULL REFERENCES econ.assets (id),
		purchase_price_cents bigint NOT NULL,
		current_value_cents  bigint NOT NULL,
		last_income_at       timestamptz NOT NULL DEFAULT now(),
		purchased_at         timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_assets_user ON econ.user_assets (user_id)`,

	`CREATE TABLE IF NOT EXISTS econ.betting_events (
		id                bigserial PRIMARY KEY,
		title             text NOT NULL,
		status            text NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed', 'settled')),
		end_time          timestamptz NOT NULL,
		winning_option_id bigint,
		created_at        timestamptz NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS econ.betting_options (
		id       bigserial PRIMARY KEY,
		event_id bigint NOT NULL REFERENCES econ.betting_events (id),
		label    text NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS econ.bets (
		id           bigserial PRIMARY KEY,
		event_id     bigint NOT NULL REFERENCES econ.betting_events (id),
		option_id    bigint NOT NULL REFERENCES econ.betting_options (id),
		user_id      text NOT NULL,
		amount_cents bigint NOT NULL,
		payout_cents bigint,
		created_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bets_event ON econ.bets (event_id)`,

	`CREATE TABLE IF NOT EXISTS econ.casino_games (
		id             bigserial PRIMARY KEY,
		code           text NOT NULL UNIQUE,
		name           text NOT NULL,
		enabled        boolean NOT NULL DEFAULT true,
		house_edge_bps bigint NOT NULL,
		min_bet_cents  bigint NOT NULL,
		max_bet_cents  bigint NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS econ.casino_history (
		id             bigserial PRIMARY KEY,
		user_id        text NOT NULL,
		game_id        bigint NOT NULL REFERENCES econ.casino_games (id),
		bet_cents      bigint NOT NULL,
		won            boolean NOT NULL,
		multiplier_bps bigint NOT NULL,
		payout_cents   bigint NOT NULL,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_casino_history_user ON econ.casino_history (user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS econ.idempotency_keys (
		user_id    text NOT NULL,
		key        text NOT NULL,
		action     text NOT NULL,
		created_at timestamptz NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, key)
	)`,
}

// Migrate applies the ledger schema. Statements are idempotent so startup can
// always run it.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
