package loan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"mobcity/internal/ledger"
)

const (
	StatusActive    = "active"
	StatusPaid      = "paid"
	StatusDefaulted = "defaulted"
)

type Loan struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"owner_id"`
	PrincipalCents  int64     `json:"principal_cents"`
	RemainingCents  int64     `json:"remaining_cents"`
	InterestRateBps int64     `json:"interest_rate_bps"`
	Status          string    `json:"status"`
	NextPaymentDue  time.Time `json:"next_payment_due"`
	CreatedAt       time.Time `json:"created_at"`
}

type Payment struct {
	ID          int64     `json:"id"`
	LoanID      int64     `json:"loan_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type OriginateInput struct {
	OwnerID         string
	PrincipalCents  int64
	InterestRateBps int64
	IdempotencyKey  string
}

type PaymentInput struct {
	OwnerID        string
	LoanID         int64
	AmountCents    int64
	IdempotencyKey string
}

type Params struct {
	PaymentPeriod time.Duration
	GracePeriod   time.Duration
}

func DefaultParams() Params {
	return Params{PaymentPeriod: 7 * 24 * time.Hour, GracePeriod: 72 * time.Hour}
}

// Service originates loans, records payments against them, and runs the
// delinquency sweep.
type Service struct {
	store  *ledger.Store
	log    *slog.Logger
	params Params
}

func NewService(store *ledger.Store, logger *slog.Logger, params Params) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if params.PaymentPeriod <= 0 {
		params.PaymentPeriod = DefaultParams().PaymentPeriod
	}
	if params.GracePeriod <= 0 {
		params.GracePeriod = DefaultParams().GracePeriod
	}
	return &Service{store: store, log: logger, params: params}
}

// Originate creates an active loan and credits the borrower's wallet with the
// principal in the same unit of work.
func (s *Service) Originate(ctx context.Context, in OriginateInput) (Loan, error) {
	if in.PrincipalCents <= 0 {
		return Loan{}, fmt.Errorf("%w: principal must be > 0", ledger.ErrInvalidInput)
	}
	if in.InterestRateBps < 0 {
		return Loan{}, fmt.Errorf("%w: interest rate must be >= 0", ledger.ErrInvalidInput)
	}
	var out Loan
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "loan_originate"); err != nil {
			return err
		}
		due := time.Now().UTC().Add(s.params.PaymentPeriod)
		if err := tx.QueryRow(ctx, `
			INSERT INTO econ.loans (owner_id, principal_cents, remaining_cents, interest_rate_bps, status, next_payment_due)
			VALUES ($1, $2, $2, $3, 'active', $4)
			RETURNING id, owner_id, principal_cents, remaining_cents, interest_rate_bps, status, next_payment_due, created_at
		`, in.OwnerID, in.PrincipalCents, in.InterestRateBps, due).Scan(
			&out.ID, &out.OwnerID, &out.PrincipalCents, &out.RemainingCents,
			&out.InterestRateBps, &out.Status, &out.NextPaymentDue, &out.CreatedAt,
		); err != nil {
			return err
		}
		return ledger.CreditWallet(ctx, tx, in.OwnerID, in.PrincipalCents, "loan_principal", fmt.Sprint(out.ID))
	})
	return out, err
}

// RecordPayment debits the borrower's wallet and reduces the remaining
// balance. The accepted amount is clamped to what is still owed: paying 500
// against a 300 loan debits exactly 300, records a 300 payment, and marks the
// loan paid. Over-payment is never silently absorbed.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (Payment, error) {
	if in.AmountCents <= 0 {
		return Payment{}, fmt.Errorf("%w: amount must be > 0", ledger.ErrInvalidInput)
	}
	var out Payment
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "loan_payment"); err != nil {
			return err
		}
		ln, err := lockLoan(ctx, tx, in.LoanID)
		if err != nil {
			return err
		}
		if ln.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		if ln.Status != StatusActive {
			return ledger.ErrLoanNotActive
		}
		accepted := clampPayment(in.AmountCents, ln.RemainingCents)
		if err := ledger.DebitWallet(ctx, tx, in.OwnerID, accepted, "loan_payment", fmt.Sprint(ln.ID)); err != nil {
			return err
		}
		remaining := ln.RemainingCents - accepted
		status := StatusActive
		if remaining == 0 {
			status = StatusPaid
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.loans
			SET remaining_cents = $1, status = $2, next_payment_due = $3
			WHERE id = $4
		`, remaining, status, ln.NextPaymentDue.Add(s.params.PaymentPeriod), ln.ID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO econ.loan_payments (loan_id, amount_cents)
			VALUES ($1, $2)
			RETURNING id, loan_id, amount_cents, created_at
		`, ln.ID, accepted).Scan(&out.ID, &out.LoanID, &out.AmountCents, &out.CreatedAt)
	})
	return out, err
}

func (s *Service) Loan(ctx context.Context, ownerID string, loanID int64) (Loan, error) {
	var out Loan
	err := s.store.Pool().QueryRow(ctx, `
		SELECT id, owner_id, principal_cents, remaining_cents, interest_rate_bps, status, next_payment_due, created_at
		FROM econ.loans
		WHERE id = $1
	`, loanID).Scan(
		&out.ID, &out.OwnerID, &out.PrincipalCents, &out.RemainingCents,
		&out.InterestRateBps, &out.Status, &out.NextPaymentDue, &out.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrLoanNotFound
	}
	if err != nil {
		return out, err
	}
	if out.OwnerID != ownerID {
		return Loan{}, ledger.ErrUnauthorized
	}
	return out, nil
}

func (s *Service) LoansByOwner(ctx context.Context, ownerID string) ([]Loan, error) {
	return s.queryLoans(ctx, `
		SELECT id, owner_id, principal_cents, remaining_cents, interest_rate_bps, status, next_payment_due, created_at
		FROM econ.loans
		WHERE owner_id = $1
		ORDER BY id
	`, ownerID)
}

// ListOverdue returns active loans past their due date. It is a read; marking
// loans defaulted is SweepDelinquent's job.
func (s *Service) ListOverdue(ctx context.Context, ownerID string, now time.Time) ([]Loan, error) {
	return s.queryLoans(ctx, `
		SELECT id, owner_id, principal_cents, remaining_cents, interest_rate_bps, status, next_payment_due, created_at
		FROM econ.loans
		WHERE owner_id = $1 AND status = 'active' AND next_payment_due < $2
		ORDER BY next_payment_due
	`, ownerID, now)
}

// OutstandingByOwner sums the remaining debt that still counts against net
// worth: active and defaulted loans.
func (s *Service) OutstandingByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := s.store.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(remaining_cents), 0)
		FROM econ.loans
		WHERE owner_id = $1 AND status IN ('active', 'defaulted')
	`, ownerID).Scan(&total)
	return total, err
}

// SweepDelinquent transitions active loans overdue past the grace window into
// defaulted. The status check and the transition are one conditional update,
// so overlapping ticks mark each loan at most once.
func (s *Service) SweepDelinquent(ctx context.Context, now time.Time) (ledger.SweepReport, error) {
	var report ledger.SweepReport
	cutoff := now.Add(-s.params.GracePeriod)

	rows, err := s.store.Pool().Query(ctx, `
		SELECT id FROM econ.loans
		WHERE status = 'active' AND next_payment_due < $1
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
		cmd, err := s.store.Pool().Exec(ctx, `
			UPDATE econ.loans
			SET status = 'defaulted'
			WHERE id = $1 AND status = 'active' AND next_payment_due < $2
		`, id, cutoff)
		if err != nil {
			report.Fail(fmt.Sprintf("loan %d: %v", id, err))
			s.log.Error("delinquency sweep failed", "loan_id", id, "err", err)
			continue
		}
		if cmd.RowsAffected() == 0 {
			report.Skipped++
			continue
		}
		report.Applied++
		s.log.Info("loan defaulted", "loan_id", id)
	}
	return report, nil
}

func (s *Service) queryLoans(ctx context.Context, query string, args ...any) ([]Loan, error) {
	rows, err := s.store.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Loan, 0)
	for rows.Next() {
		var l Loan
		if err := rows.Scan(
			&l.ID, &l.OwnerID, &l.PrincipalCents, &l.RemainingCents,
			&l.InterestRateBps, &l.Status, &l.NextPaymentDue, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func clampPayment(offered, remaining int64) int64 {
	if offered > remaining {
		return remaining
	}
	return offered
}

func lockLoan(ctx context.Context, tx pgx.Tx, loanID int64) (Loan, error) {
	var out Loan
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, principal_cents, remaining_cents, interest_rate_bps, status, next_payment_due, created_at
		FROM econ.loans
		WHERE id = $1
		FOR UPDATE
	`, loanID).Scan(
		&out.ID, &out.OwnerID, &out.PrincipalCents, &out.RemainingCents,
		&out.InterestRateBps, &out.Status, &out.NextPaymentDue, &out.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrLoanNotFound
	}
	return out, err
}
