package asset

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"mobcity/internal/ledger"
)

type Asset struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	BasePriceCents int64  `json:"base_price_cents"`
	IncomeCents    int64  `json:"income_cents"`
	Purchasable    bool   `json:"purchasable"`
}

type Holding struct {
	ID                 int64     `json:"id"`
	UserID             string    `json:"user_id"`
	AssetID            int64     `json:"asset_id"`
	AssetName          string    `json:"asset_name"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	CurrentValueCents  int64     `json:"current_value_cents"`
	LastIncomeAt       time.Time `json:"last_income_at"`
	PurchasedAt        time.Time `json:"purchased_at"`
}

type PurchaseInput struct {
	UserID         string
	AssetID        int64
	IdempotencyKey string
}

type SellInput struct {
	UserID         string
	HoldingID      int64
	IdempotencyKey string
}

type Params struct {
	IncomePeriod time.Duration
}

func DefaultParams() Params {
	return Params{IncomePeriod: 24 * time.Hour}
}

// Service manages the passive-income asset catalog and player holdings.
type Service struct {
	store  *ledger.Store
	log    *slog.Logger
	params Params
}

func NewService(store *ledger.Store, logger *slog.Logger, params Params) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if params.IncomePeriod <= 0 {
		params.IncomePeriod = DefaultParams().IncomePeriod
	}
	return &Service{store: store, log: logger, params: params}
}

var defaultCatalog = []Asset{
	{Name: "Corner Newsstand", BasePriceCents: 1_500 * ledger.CentsPerDollar, IncomeCents: 40 * ledger.CentsPerDollar},
	{Name: "Laundromat", BasePriceCents: 8_000 * ledger.CentsPerDollar, IncomeCents: 260 * ledger.CentsPerDollar},
	{Name: "Pawn Shop", BasePriceCents: 20_000 * ledger.CentsPerDollar, IncomeCents: 750 * ledger.CentsPerDollar},
	{Name: "Nightclub", BasePriceCents: 75_000 * ledger.CentsPerDollar, IncomeCents: 3_200 * ledger.CentsPerDollar},
	{Name: "Shipping Pier", BasePriceCents: 250_000 * ledger.CentsPerDollar, IncomeCents: 12_000 * ledger.CentsPerDollar},
}

// SeedCatalog inserts the default asset catalog. Existing names are left
// untouched so ops can reprice by hand.
func (s *Service) SeedCatalog(ctx context.Context) error {
	for _, a := range defaultCatalog {
		_, err := s.store.Pool().Exec(ctx, `
			INSERT INTO econ.assets (name, base_price_cents, income_cents, purchasable)
			VALUES ($1, $2, $3, true)
			ON CONFLICT (name) DO NOTHING
		`, a.Name, a.BasePriceCents, a.IncomeCents)
		if err != nil {
			return fmt.Errorf("seed asset %q: %w", a.Name, err)
		}
	}
	return nil
}

func (s *Service) Catalog(ctx context.Context) ([]Asset, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, name, base_price_cents, income_cents, purchasable
		FROM econ.assets
		ORDER BY base_price_cents
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Asset, 0)
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.Name, &a.BasePriceCents, &a.IncomeCents, &a.Purchasable); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Purchase debits the buyer's wallet at the catalog price and opens a holding
// valued at that price.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (Holding, error) {
	var out Holding
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "asset_purchase"); err != nil {
			return err
		}
		var a Asset
		err := tx.QueryRow(ctx, `
			SELECT id, name, base_price_cents, income_cents, purchasable
			FROM econ.assets
			WHERE id = $1
		`, in.AssetID).Scan(&a.ID, &a.Name, &a.BasePriceCents, &a.IncomeCents, &a.Purchasable)
		if err == pgx.ErrNoRows {
			return ledger.ErrAssetNotFound
		}
		if err != nil {
			return err
		}
		if !a.Purchasable {
			return fmt.Errorf("%w: asset %q is not purchasable", ledger.ErrInvalidInput, a.Name)
		}
		if err := ledger.DebitWallet(ctx, tx, in.UserID, a.BasePriceCents, "asset_purchase", fmt.Sprint(a.ID)); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO econ.user_assets (user_id, asset_id, purchase_price_cents, current_value_cents)
			VALUES ($1, $2, $3, $3)
			RETURNING id, user_id, asset_id, purchase_price_cents, current_value_cents, last_income_at, purchased_at
		`, in.UserID, a.ID, a.BasePriceCents).Scan(
			&out.ID, &out.UserID, &out.AssetID, &out.PurchasePriceCents,
			&out.CurrentValueCents, &out.LastIncomeAt, &out.PurchasedAt,
		); err != nil {
			return err
		}
		out.AssetName = a.Name
		return nil
	})
	return out, err
}

// Sell credits the holder's wallet with the holding's current value and
// removes the holding.
func (s *Service) Sell(ctx context.Context, in SellInput) (int64, error) {
	var proceeds int64
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "asset_sell"); err != nil {
			return err
		}
		var holderID string
		err := tx.QueryRow(ctx, `
			SELECT user_id, current_value_cents
			FROM econ.user_assets
			WHERE id = $1
			FOR UPDATE
		`, in.HoldingID).Scan(&holderID, &proceeds)
		if err == pgx.ErrNoRows {
			return ledger.ErrHoldingNotFound
		}
		if err != nil {
			return err
		}
		if holderID != in.UserID {
			return ledger.ErrUnauthorized
		}
		if _, err := tx.Exec(ctx, `DELETE FROM econ.user_assets WHERE id = $1`, in.HoldingID); err != nil {
			return err
		}
		return ledger.CreditWallet(ctx, tx, in.UserID, proceeds, "asset_sale", fmt.Sprint(in.HoldingID))
	})
	if err != nil {
		return 0, err
	}
	return proceeds, nil
}

// AccrueIncome credits each eligible holding's income to its owner's wallet.
// Eligibility is re-checked under the row lock so overlapping ticks pay each
// holding at most once per period.
func (s *Service) AccrueIncome(ctx context.Context, now time.Time) (ledger.SweepReport, error) {
	var report ledger.SweepReport
	cutoff := now.Add(-s.params.IncomePeriod)

	rows, err := s.store.Pool().Query(ctx, `
		SELECT id FROM econ.user_assets
		WHERE last_income_at <= $1
		ORDER BY id
	`, cutoff)
	if err != nil {
		return report, err
	}
	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return report, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}
	report.Eligible = len(candidates)

	for _, id := range candidates {
		err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
			var userID string
			var assetID int64
			var lastIncomeAt time.Time
			err := tx.QueryRow(ctx, `
				SELECT user_id, asset_id, last_income_at
				FROM econ.user_assets
				WHERE id = $1
				FOR UPDATE
			`, id).Scan(&userID, &assetID, &lastIncomeAt)
			if err == pgx.ErrNoRows {
				// Sold between candidate listing and now.
				report.Skipped++
				return nil
			}
			if err != nil {
				return err
			}
			if lastIncomeAt.After(cutoff) {
				report.Skipped++
				return nil
			}
			var income int64
			if err := tx.QueryRow(ctx, `
				SELECT income_cents FROM econ.assets WHERE id = $1
			`, assetID).Scan(&income); err != nil {
				return err
			}
			if income > 0 {
				if err := ledger.CreditWallet(ctx, tx, userID, income, "asset_income", fmt.Sprint(id)); err != nil {
					return err
				}
			}
			if _, err := tx.Exec(ctx, `
				UPDATE econ.user_assets SET last_income_at = $1 WHERE id = $2
			`, now, id); err != nil {
				return err
			}
			report.Applied++
			return nil
		})
		if err != nil {
			report.Fail(fmt.Sprintf("holding %d: %v", id, err))
			s.log.Error("asset income accrual failed", "holding_id", id, "err", err)
		}
	}
	return report, nil
}

func (s *Service) HoldingsByUser(ctx context.Context, userID string) ([]Holding, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT h.id, h.user_id, h.asset_id, a.name, h.purchase_price_cents, h.current_value_cents, h.last_income_at, h.purchased_at
		FROM econ.user_assets h
		JOIN econ.assets a ON a.id = h.asset_id
		WHERE h.user_id = $1
		ORDER BY h.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Holding, 0)
	for rows.Next() {
		var h Holding
		if err := rows.Scan(
			&h.ID, &h.UserID, &h.AssetID, &h.AssetName,
			&h.PurchasePriceCents, &h.CurrentValueCents, &h.LastIncomeAt, &h.PurchasedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// HoldingsValue sums the current value of a user's holdings. Used by the net
// worth aggregator.
func (s *Service) HoldingsValue(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.store.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(current_value_cents), 0)
		FROM econ.user_assets
		WHERE user_id = $1
	`, userID).Scan(&total)
	return total, err
}
