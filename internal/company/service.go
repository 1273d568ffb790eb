package company

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"mobcity/internal/ledger"
)

type Company struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Name            string    `json:"name"`
	ValueCents      int64     `json:"value_cents"`
	TreasuryCents   int64     `json:"treasury_cents"`
	PubliclyTraded  bool      `json:"publicly_traded"`
	SharePriceCents int64     `json:"share_price_cents"`
	TotalShares     int64     `json:"total_shares"`
	LastIncomeAt    time.Time `json:"last_income_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type Employee struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	UserID      string    `json:"user_id"`
	SalaryCents int64     `json:"salary_cents"`
	HiredAt     time.Time `json:"hired_at"`
	LastPaidAt  time.Time `json:"last_paid_at"`
}

type Upgrade struct {
	ID             int64     `json:"id"`
	CompanyID      int64     `json:"company_id"`
	Kind           string    `json:"kind"`
	IncomeBonusBps int64     `json:"income_bonus_bps"`
	CostCents      int64     `json:"cost_cents"`
	PurchasedAt    time.Time `json:"purchased_at"`
}

type Share struct {
	UserID    string `json:"user_id"`
	CompanyID int64  `json:"company_id"`
	Amount    int64  `json:"amount"`
}

type CompanyTransaction struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	AmountCents int64     `json:"amount_cents"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateInput struct {
	OwnerID        string
	Name           string
	InitialCents   int64
	IdempotencyKey string
}

type HireInput struct {
	OwnerID        string
	CompanyID      int64
	UserID         string
	SalaryCents    int64
	IdempotencyKey string
}

type UpgradeInput struct {
	OwnerID        string
	CompanyID      int64
	Kind           string
	IdempotencyKey string
}

type IssueInput struct {
	OwnerID         string
	CompanyID       int64
	TotalShares     int64
	SharePriceCents int64
	IdempotencyKey  string
}

type TradeInput struct {
	UserID         string
	CompanyID      int64
	Amount         int64
	IdempotencyKey string
}

type UpgradeSpec struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	CostCents   int64  `json:"cost_cents"`
	BonusBps    int64  `json:"bonus_bps"`
}

var upgradeCatalog = []UpgradeSpec{
	{Kind: "back_room", DisplayName: "Back Room", CostCents: 2_500 * ledger.CentsPerDollar, BonusBps: 500},
	{Kind: "armored_trucks", DisplayName: "Armored Trucks", CostCents: 6_000 * ledger.CentsPerDollar, BonusBps: 1_100},
	{Kind: "front_lawyers", DisplayName: "Front Lawyers", CostCents: 9_500 * ledger.CentsPerDollar, BonusBps: 1_600},
	{Kind: "offshore_books", DisplayName: "Offshore Books", CostCents: 15_000 * ledger.CentsPerDollar, BonusBps: 2_400},
}

func upgradeByKind(kind string) (UpgradeSpec, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	for _, spec := range upgradeCatalog {
		if spec.Kind == kind {
			return spec, nil
		}
	}
	return UpgradeSpec{}, fmt.Errorf("%w: unknown upgrade kind %q", ledger.ErrInvalidInput, kind)
}

type Params struct {
	PayrollPeriod    time.Duration
	IncomePeriod     time.Duration
	IncomeRateBps    int64
	PerEmployeeCents int64
}

func DefaultParams() Params {
	return Params{
		PayrollPeriod:    24 * time.Hour,
		IncomePeriod:     24 * time.Hour,
		IncomeRateBps:    150,
		PerEmployeeCents: 25 * ledger.CentsPerDollar,
	}
}

// Service manages player-owned companies: founding, staff and payroll,
// upgrades, share issuance and trades, and the income sweep.
type Service struct {
	store   *ledger.Store
	log     *slog.Logger
	params  Params
	pricing PricingStrategy
}

func NewService(store *ledger.Store, logger *slog.Logger, params Params) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if params.PayrollPeriod <= 0 {
		params.PayrollPeriod = DefaultParams().PayrollPeriod
	}
	if params.IncomePeriod <= 0 {
		params.IncomePeriod = DefaultParams().IncomePeriod
	}
	if params.IncomeRateBps <= 0 {
		params.IncomeRateBps = DefaultParams().IncomeRateBps
	}
	if params.PerEmployeeCents <= 0 {
		params.PerEmployeeCents = DefaultParams().PerEmployeeCents
	}
	return &Service{store: store, log: logger, params: params, pricing: ValueAnchored{}}
}

// Create founds a company. The founder's wallet funds the initial treasury
// and the company is valued at that capital.
func (s *Service) Create(ctx context.Context, in CreateInput) (Company, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > 64 {
		return Company{}, fmt.Errorf("%w: company name must be 1-64 chars", ledger.ErrInvalidInput)
	}
	if in.InitialCents <= 0 {
		return Company{}, fmt.Errorf("%w: initial value must be > 0", ledger.ErrInvalidInput)
	}
	var out Company
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "company_create"); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			INSERT INTO econ.companies (owner_id, name, value_cents, treasury_cents)
			VALUES ($1, $2, $3, $3)
			RETURNING id, owner_id, name, value_cents, treasury_cents, publicly_traded, share_price_cents, total_shares, last_income_at, created_at
		`, in.OwnerID, in.Name, in.InitialCents).Scan(
			&out.ID, &out.OwnerID, &out.Name, &out.ValueCents, &out.TreasuryCents,
			&out.PubliclyTraded, &out.SharePriceCents, &out.TotalShares, &out.LastIncomeAt, &out.CreatedAt,
		); err != nil {
			return err
		}
		if err := ledger.DebitWallet(ctx, tx, in.OwnerID, in.InitialCents, "company_found", fmt.Sprint(out.ID)); err != nil {
			return err
		}
		return appendCompanyTransaction(ctx, tx, out.ID, in.InitialCents, "founding_capital")
	})
	return out, err
}

func (s *Service) Hire(ctx context.Context, in HireInput) (Employee, error) {
	if in.SalaryCents <= 0 {
		return Employee{}, fmt.Errorf("%w: salary must be > 0", ledger.ErrInvalidInput)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return Employee{}, fmt.Errorf("%w: employee user id is required", ledger.ErrInvalidInput)
	}
	var out Employee
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "company_hire"); err != nil {
			return err
		}
		c, err := lockCompany(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if c.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		return tx.QueryRow(ctx, `
			INSERT INTO econ.company_employees (company_id, user_id, salary_cents)
			VALUES ($1, $2, $3)
			RETURNING id, company_id, user_id, salary_cents, hired_at, last_paid_at
		`, c.ID, in.UserID, in.SalaryCents).Scan(
			&out.ID, &out.CompanyID, &out.UserID, &out.SalaryCents, &out.HiredAt, &out.LastPaidAt,
		)
	})
	return out, err
}

func (s *Service) Fire(ctx context.Context, ownerID string, employeeID int64) (bool, error) {
	fired := false
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			DELETE FROM econ.company_employees e
			USING econ.companies c
			WHERE e.id = $1 AND c.id = e.company_id AND c.owner_id = $2
		`, employeeID, ownerID)
		if err != nil {
			return err
		}
		fired = cmd.RowsAffected() > 0
		return nil
	})
	return fired, err
}

// Payroll pays each employee past the pay period from the company treasury.
// An underfunded treasury skips that employee and records a payroll_failed
// company transaction; the sweep continues with the rest.
func (s *Service) Payroll(ctx context.Context, now time.Time) (ledger.SweepReport, error) {
	var report ledger.SweepReport
	cutoff := now.Add(-s.params.PayrollPeriod)

	rows, err := s.store.Pool().Query(ctx, `
		SELECT id FROM econ.company_employees
		WHERE last_paid_at <= $1
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
			var emp Employee
			err := tx.QueryRow(ctx, `
				SELECT id, company_id, user_id, salary_cents, hired_at, last_paid_at
				FROM econ.company_employees
				WHERE id = $1
				FOR UPDATE
			`, id).Scan(&emp.ID, &emp.CompanyID, &emp.UserID, &emp.SalaryCents, &emp.HiredAt, &emp.LastPaidAt)
			if err == pgx.ErrNoRows {
				// Fired between candidate listing and now.
				report.Skipped++
				return nil
			}
			if err != nil {
				return err
			}
			if emp.LastPaidAt.After(cutoff) {
				report.Skipped++
				return nil
			}
			c, err := lockCompany(ctx, tx, emp.CompanyID)
			if err != nil {
				return err
			}
			if c.TreasuryCents < emp.SalaryCents {
				report.Skipped++
				report.Fail(fmt.Sprintf("employee %d: company %d treasury short", emp.ID, c.ID))
				return appendCompanyTransaction(ctx, tx, c.ID, 0, "payroll_failed")
			}
			if _, err := tx.Exec(ctx, `
				UPDATE econ.companies SET treasury_cents = $1 WHERE id = $2
			`, c.TreasuryCents-emp.SalaryCents, c.ID); err != nil {
				return err
			}
			if err := appendCompanyTransaction(ctx, tx, c.ID, -emp.SalaryCents, "salary_paid"); err != nil {
				return err
			}
			if err := ledger.CreditWallet(ctx, tx, emp.UserID, emp.SalaryCents, "salary", fmt.Sprint(c.ID)); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE econ.company_employees SET last_paid_at = $1 WHERE id = $2
			`, now, emp.ID); err != nil {
				return err
			}
			report.Applied++
			return nil
		})
		if err != nil {
			report.Fail(fmt.Sprintf("employee %d: %v", id, err))
			s.log.Error("payroll failed", "employee_id", id, "err", err)
		}
	}
	return report, nil
}

// BuyUpgrade purchases a catalog upgrade from the company treasury. Upgrades
// are append-only and raise the income multiplier.
func (s *Service) BuyUpgrade(ctx context.Context, in UpgradeInput) (Upgrade, error) {
	spec, err := upgradeByKind(in.Kind)
	if err != nil {
		return Upgrade{}, err
	}
	var out Upgrade
	err = s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "company_upgrade"); err != nil {
			return err
		}
		c, err := lockCompany(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if c.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		if c.TreasuryCents < spec.CostCents {
			return ledger.ErrInsufficientFunds
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.companies SET treasury_cents = $1 WHERE id = $2
		`, c.TreasuryCents-spec.CostCents, c.ID); err != nil {
			return err
		}
		if err := appendCompanyTransaction(ctx, tx, c.ID, -spec.CostCents, "upgrade"); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO econ.company_upgrades (company_id, kind, income_bonus_bps, cost_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id, company_id, kind, income_bonus_bps, cost_cents, purchased_at
		`, c.ID, spec.Kind, spec.BonusBps, spec.CostCents).Scan(
			&out.ID, &out.CompanyID, &out.Kind, &out.IncomeBonusBps, &out.CostCents, &out.PurchasedAt,
		)
	})
	return out, err
}

func (s *Service) UpgradeCatalog() []UpgradeSpec {
	out := make([]UpgradeSpec, len(upgradeCatalog))
	copy(out, upgradeCatalog)
	return out
}

// IssueShares takes a company public with a fixed float and list price.
func (s *Service) IssueShares(ctx context.Context, in IssueInput) error {
	if in.TotalShares <= 0 || in.SharePriceCents <= 0 {
		return fmt.Errorf("%w: total shares and share price must be > 0", ledger.ErrInvalidInput)
	}
	return s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "company_issue_shares"); err != nil {
			return err
		}
		c, err := lockCompany(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if c.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		if c.PubliclyTraded {
			return fmt.Errorf("%w: company already publicly traded", ledger.ErrInvalidInput)
		}
		_, err = tx.Exec(ctx, `
			UPDATE econ.companies
			SET publicly_traded = true, total_shares = $1, share_price_cents = $2
			WHERE id = $3
		`, in.TotalShares, in.SharePriceCents, c.ID)
		return err
	})
}

// BuyShares settles a purchase against the company treasury at the effective
// share price and upserts the buyer's unique holding row. The posted price is
// re-anchored to company value after the trade.
func (s *Service) BuyShares(ctx context.Context, in TradeInput) error {
	if in.Amount <= 0 {
		return fmt.Errorf("%w: share amount must be > 0", ledger.ErrInvalidInput)
	}
	return s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "shares_buy"); err != nil {
			return err
		}
		c, err := lockCompany(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if !c.PubliclyTraded {
			return ledger.ErrCompanyNotTraded
		}
		var outstanding int64
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(amount), 0) FROM econ.shares WHERE company_id = $1
		`, c.ID).Scan(&outstanding); err != nil {
			return err
		}
		// The float is fixed at issuance; holders can never own more than it.
		if outstanding+in.Amount > c.TotalShares {
			return ledger.ErrInsufficientShares
		}
		price := EffectiveSharePrice(c)
		cost := price * in.Amount
		if err := ledger.DebitWallet(ctx, tx, in.UserID, cost, "share_buy", fmt.Sprint(c.ID)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO econ.shares (user_id, company_id, amount)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, company_id) DO UPDATE SET amount = econ.shares.amount + EXCLUDED.amount
		`, in.UserID, c.ID, in.Amount); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.companies SET treasury_cents = $1, share_price_cents = $2 WHERE id = $3
		`, c.TreasuryCents+cost, s.pricing.Price(c), c.ID); err != nil {
			return err
		}
		return appendCompanyTransaction(ctx, tx, c.ID, cost, "share_sale")
	})
}

// SellShares pays the seller from the company treasury at the effective
// price. A treasury that cannot cover the proceeds rejects the trade.
func (s *Service) SellShares(ctx context.Context, in TradeInput) error {
	if in.Amount <= 0 {
		return fmt.Errorf("%w: share amount must be > 0", ledger.ErrInvalidInput)
	}
	return s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "shares_sell"); err != nil {
			return err
		}
		c, err := lockCompany(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}
		if !c.PubliclyTraded {
			return ledger.ErrCompanyNotTraded
		}
		var held int64
		err = tx.QueryRow(ctx, `
			SELECT amount FROM econ.shares
			WHERE user_id = $1 AND company_id = $2
			FOR UPDATE
		`, in.UserID, c.ID).Scan(&held)
		if err == pgx.ErrNoRows {
			return ledger.ErrInsufficientShares
		}
		if err != nil {
			return err
		}
		if held < in.Amount {
			return ledger.ErrInsufficientShares
		}
		price := EffectiveSharePrice(c)
		proceeds := price * in.Amount
		if c.TreasuryCents < proceeds {
			return ledger.ErrInsufficientFunds
		}
		if held == in.Amount {
			if _, err := tx.Exec(ctx, `
				DELETE FROM econ.shares WHERE user_id = $1 AND company_id = $2
			`, in.UserID, c.ID); err != nil {
				return err
			}
		} else {
			if _, err := tx.Exec(ctx, `
				UPDATE econ.shares SET amount = $1 WHERE user_id = $2 AND company_id = $3
			`, held-in.Amount, in.UserID, c.ID); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.companies SET treasury_cents = $1, share_price_cents = $2 WHERE id = $3
		`, c.TreasuryCents-proceeds, s.pricing.Price(c), c.ID); err != nil {
			return err
		}
		if err := appendCompanyTransaction(ctx, tx, c.ID, -proceeds, "share_buyback"); err != nil {
			return err
		}
		return ledger.CreditWallet(ctx, tx, in.UserID, proceeds, "share_sell", fmt.Sprint(c.ID))
	})
}

// AccrueIncome credits periodic income to each eligible company treasury.
// Eligibility is re-checked under the row lock so overlapping ticks credit a
// company at most once per period.
func (s *Service) AccrueIncome(ctx context.Context, now time.Time) (ledger.SweepReport, error) {
	var report ledger.SweepReport
	cutoff := now.Add(-s.params.IncomePeriod)

	rows, err := s.store.Pool().Query(ctx, `
		SELECT id FROM econ.companies
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
			c, err := lockCompany(ctx, tx, id)
			if err != nil {
				return err
			}
			if c.LastIncomeAt.After(cutoff) {
				report.Skipped++
				return nil
			}
			var bonusBps int64
			if err := tx.QueryRow(ctx, `
				SELECT COALESCE(SUM(income_bonus_bps), 0) FROM econ.company_upgrades WHERE company_id = $1
			`, c.ID).Scan(&bonusBps); err != nil {
				return err
			}
			var employees int64
			if err := tx.QueryRow(ctx, `
				SELECT COUNT(1) FROM econ.company_employees WHERE company_id = $1
			`, c.ID).Scan(&employees); err != nil {
				return err
			}
			income := incomeFor(c.ValueCents, s.params.IncomeRateBps, bonusBps, employees, s.params.PerEmployeeCents)
			if _, err := tx.Exec(ctx, `
				UPDATE econ.companies
				SET treasury_cents = treasury_cents + $1, last_income_at = $2
				WHERE id = $3
			`, income, now, c.ID); err != nil {
				return err
			}
			if income > 0 {
				if err := appendCompanyTransaction(ctx, tx, c.ID, income, "income"); err != nil {
					return err
				}
			}
			report.Applied++
			return nil
		})
		if err != nil {
			report.Fail(fmt.Sprintf("company %d: %v", id, err))
			s.log.Error("company income accrual failed", "company_id", id, "err", err)
		}
	}
	return report, nil
}

func (s *Service) Company(ctx context.Context, companyID int64) (Company, error) {
	var out Company
	err := s.store.Pool().QueryRow(ctx, `
		SELECT id, owner_id, name, value_cents, treasury_cents, publicly_traded, share_price_cents, total_shares, last_income_at, created_at
		FROM econ.companies
		WHERE id = $1
	`, companyID).Scan(
		&out.ID, &out.OwnerID, &out.Name, &out.ValueCents, &out.TreasuryCents,
		&out.PubliclyTraded, &out.SharePriceCents, &out.TotalShares, &out.LastIncomeAt, &out.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrCompanyNotFound
	}
	return out, err
}

func (s *Service) CompaniesByOwner(ctx context.Context, ownerID string) ([]Company, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, owner_id, name, value_cents, treasury_cents, publicly_traded, share_price_cents, total_shares, last_income_at, created_at
		FROM econ.companies
		WHERE owner_id = $1
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Company, 0)
	for rows.Next() {
		var c Company
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &c.Name, &c.ValueCents, &c.TreasuryCents,
			&c.PubliclyTraded, &c.SharePriceCents, &c.TotalShares, &c.LastIncomeAt, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Service) Employees(ctx context.Context, ownerID string, companyID int64) ([]Employee, error) {
	c, err := s.Company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ledger.ErrUnauthorized
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, company_id, user_id, salary_cents, hired_at, last_paid_at
		FROM econ.company_employees
		WHERE company_id = $1
		ORDER BY id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Employee, 0)
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.SalaryCents, &e.HiredAt, &e.LastPaidAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HoldingsValue prices every share row a user holds at the effective price of
// its company. Used by the net worth aggregator.
func (s *Service) HoldingsValue(ctx context.Context, userID string) (int64, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT s.amount, c.value_cents, c.publicly_traded, c.share_price_cents, c.total_shares
		FROM econ.shares s
		JOIN econ.companies c ON c.id = s.company_id
		WHERE s.user_id = $1
	`, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var total int64
	for rows.Next() {
		var amount int64
		var c Company
		if err := rows.Scan(&amount, &c.ValueCents, &c.PubliclyTraded, &c.SharePriceCents, &c.TotalShares); err != nil {
			return 0, err
		}
		total += amount * EffectiveSharePrice(c)
	}
	return total, rows.Err()
}

func (s *Service) SharesByUser(ctx context.Context, userID string) ([]Share, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT user_id, company_id, amount
		FROM econ.shares
		WHERE user_id = $1
		ORDER BY company_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Share, 0)
	for rows.Next() {
		var sh Share
		if err := rows.Scan(&sh.UserID, &sh.CompanyID, &sh.Amount); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Service) TreasuryHistory(ctx context.Context, ownerID string, companyID int64, limit int) ([]CompanyTransaction, error) {
	c, err := s.Company(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != ownerID {
		return nil, ledger.ErrUnauthorized
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, company_id, amount_cents, kind, created_at
		FROM econ.company_transactions
		WHERE company_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]CompanyTransaction, 0)
	for rows.Next() {
		var t CompanyTransaction
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.AmountCents, &t.Kind, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// incomeFor: base income is a bps cut of company value, scaled by the upgrade
// multiplier, plus a flat bump per employee. All divisions floor.
func incomeFor(valueCents, rateBps, bonusBps, employees, perEmployeeCents int64) int64 {
	base := ledger.MulBps(valueCents, rateBps)
	boosted := base * (ledger.BpsScale + bonusBps) / ledger.BpsScale
	return boosted + employees*perEmployeeCents
}

func lockCompany(ctx context.Context, tx pgx.Tx, companyID int64) (Company, error) {
	var out Company
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, name, value_cents, treasury_cents, publicly_traded, share_price_cents, total_shares, last_income_at, created_at
		FROM econ.companies
		WHERE id = $1
		FOR UPDATE
	`, companyID).Scan(
		&out.ID, &out.OwnerID, &out.Name, &out.ValueCents, &out.TreasuryCents,
		&out.PubliclyTraded, &out.SharePriceCents, &out.TotalShares, &out.LastIncomeAt, &out.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrCompanyNotFound
	}
	return out, err
}

func appendCompanyTransaction(ctx context.Context, tx pgx.Tx, companyID, amountCents int64, kind string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO econ.company_transactions (company_id, amount_cents, kind)
		VALUES ($1, $2, $3)
	`, companyID, amountCents, kind)
	return err
}
