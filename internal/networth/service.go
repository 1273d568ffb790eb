package networth

import (
	"context"
	"log/slog"

	"mobcity/internal/ledger"
)

// The aggregator reads each component through a narrow interface so a single
// failing source degrades to zero instead of failing the whole report.

type CashReader interface {
	CashBalance(ctx context.Context, userID string) (int64, error)
}

type AccountReader interface {
	BalancesByOwner(ctx context.Context, ownerID string) (int64, error)
}

type ShareReader interface {
	HoldingsValue(ctx context.Context, userID string) (int64, error)
}

type AssetReader interface {
	HoldingsValue(ctx context.Context, userID string) (int64, error)
}

type DebtReader interface {
	OutstandingByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Result is a point-in-time snapshot. Components list every contribution;
// Degraded names the sources that failed and were counted as zero.
type Result struct {
	UserID     string           `json:"user_id"`
	TotalCents int64            `json:"total_cents"`
	Components map[string]int64 `json:"components"`
	Degraded   []string         `json:"degraded,omitempty"`
}

type LeaderboardRow struct {
	UserID     string `json:"user_id"`
	TotalCents int64  `json:"total_cents"`
}

type Service struct {
	store    *ledger.Store
	log      *slog.Logger
	cash     CashReader
	accounts AccountReader
	shares   ShareReader
	assets   AssetReader
	debt     DebtReader
}

func NewService(store *ledger.Store, logger *slog.Logger, cash CashReader, accounts AccountReader, shares ShareReader, assets AssetReader, debt DebtReader) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, log: logger, cash: cash, accounts: accounts, shares: shares, assets: assets, debt: debt}
}

// NetWorth sums cash, bank balances, share holdings, and asset values, minus
// outstanding debt. Each component is read independently without locking, so
// the snapshot is eventually consistent with in-flight mutations.
func (s *Service) NetWorth(ctx context.Context, userID string) (Result, error) {
	res := Result{UserID: userID, Components: make(map[string]int64)}

	read := func(name string, sign int64, fn func() (int64, error)) {
		v, err := fn()
		if err != nil {
			s.log.Warn("net worth component unavailable", "component", name, "user_id", userID, "err", err)
			res.Degraded = append(res.Degraded, name)
			res.Components[name] = 0
			return
		}
		res.Components[name] = sign * v
		res.TotalCents += sign * v
	}

	read("cash", 1, func() (int64, error) {
		v, err := s.cash.CashBalance(ctx, userID)
		if err == ledger.ErrWalletNotFound {
			return 0, nil
		}
		return v, err
	})
	read("bank_accounts", 1, func() (int64, error) { return s.accounts.BalancesByOwner(ctx, userID) })
	read("shares", 1, func() (int64, error) { return s.shares.HoldingsValue(ctx, userID) })
	read("assets", 1, func() (int64, error) { return s.assets.HoldingsValue(ctx, userID) })
	read("debt", -1, func() (int64, error) { return s.debt.OutstandingByOwner(ctx, userID) })

	return res, nil
}

// Leaderboard ranks players by cash plus bank balances plus asset values minus
// debt, computed in one query. Share holdings are priced at the posted share
// price; privately held companies contribute nothing here.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT w.user_id,
			w.balance_cents
			+ COALESCE((SELECT SUM(a.balance_cents) FROM econ.accounts a WHERE a.owner_id = w.user_id), 0)
			+ COALESCE((SELECT SUM(ua.current_value_cents) FROM econ.user_assets ua WHERE ua.user_id = w.user_id), 0)
			+ COALESCE((SELECT SUM(sh.amount * c.share_price_cents)
				FROM econ.shares sh JOIN econ.companies c ON c.id = sh.company_id AND c.publicly_traded
				WHERE sh.user_id = w.user_id), 0)
			- COALESCE((SELECT SUM(l.remaining_cents) FROM econ.loans l
				WHERE l.owner_id = w.user_id AND l.status IN ('active', 'defaulted')), 0)
			AS total_cents
		FROM econ.wallets w
		ORDER BY total_cents DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
