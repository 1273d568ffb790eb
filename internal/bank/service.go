package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"mobcity/internal/ledger"
)

const (
	KindChecking = "checking"
	KindSavings  = "savings"
)

type Account struct {
	ID                 int64     `json:"id"`
	OwnerID            string    `json:"owner_id"`
	Kind               string    `json:"kind"`
	BalanceCents       int64     `json:"balance_cents"`
	LastInterestPaidAt time.Time `json:"last_interest_paid_at"`
	CreatedAt          time.Time `json:"created_at"`
}

type Transaction struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	AmountCents int64     `json:"amount_cents"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

type MoveInput struct {
	OwnerID        string
	AccountID      int64
	AmountCents    int64
	IdempotencyKey string
}

type TransferInput struct {
	OwnerID        string
	FromID         int64
	ToID           int64
	AmountCents    int64
	IdempotencyKey string
}

type Params struct {
	DailyRateBps   int64
	InterestPeriod time.Duration
}

func DefaultParams() Params {
	return Params{DailyRateBps: 10, InterestPeriod: 24 * time.Hour}
}

// Service manages player bank accounts: deposits and withdrawals against the
// cash wallet, transfers between accounts, and the interest sweep.
type Service struct {
	store  *ledger.Store
	log    *slog.Logger
	params Params
}

func NewService(store *ledger.Store, logger *slog.Logger, params Params) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if params.InterestPeriod <= 0 {
		params.InterestPeriod = DefaultParams().InterestPeriod
	}
	return &Service{store: store, log: logger, params: params}
}

func (s *Service) OpenAccount(ctx context.Context, ownerID, kind string) (Account, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != KindChecking && kind != KindSavings {
		return Account{}, fmt.Errorf("%w: account kind must be checking or savings", ledger.ErrInvalidInput)
	}
	var out Account
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO econ.accounts (owner_id, kind, balance_cents)
			VALUES ($1, $2, 0)
			RETURNING id, owner_id, kind, balance_cents, last_interest_paid_at, created_at
		`, ownerID, kind).Scan(&out.ID, &out.OwnerID, &out.Kind, &out.BalanceCents, &out.LastInterestPaidAt, &out.CreatedAt)
	})
	return out, err
}

// Deposit moves cash from the owner's wallet into the account. One wallet
// entry and one account transaction are appended in the same unit of work.
func (s *Service) Deposit(ctx context.Context, in MoveInput) (Transaction, error) {
	if in.AmountCents <= 0 {
		return Transaction{}, fmt.Errorf("%w: amount must be > 0", ledger.ErrInvalidInput)
	}
	var out Transaction
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "bank_deposit"); err != nil {
			return err
		}
		acct, err := lockAccount(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		if acct.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		if err := ledger.DebitWallet(ctx, tx, in.OwnerID, in.AmountCents, "bank_deposit", fmt.Sprint(in.AccountID)); err != nil {
			return err
		}
		return applyAccountDelta(ctx, tx, acct, in.AmountCents, "deposit", &out)
	})
	return out, err
}

// Withdraw moves money from the account back to the owner's wallet. An amount
// above the cached balance is rejected and leaves the ledger untouched.
func (s *Service) Withdraw(ctx context.Context, in MoveInput) (Transaction, error) {
	if in.AmountCents <= 0 {
		return Transaction{}, fmt.Errorf("%w: amount must be > 0", ledger.ErrInvalidInput)
	}
	var out Transaction
	err := s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "bank_withdraw"); err != nil {
			return err
		}
		acct, err := lockAccount(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		if acct.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		if acct.BalanceCents < in.AmountCents {
			return ledger.ErrInsufficientFunds
		}
		if err := applyAccountDelta(ctx, tx, acct, -in.AmountCents, "withdrawal", &out); err != nil {
			return err
		}
		return ledger.CreditWallet(ctx, tx, in.OwnerID, in.AmountCents, "bank_withdrawal", fmt.Sprint(in.AccountID))
	})
	return out, err
}

// Transfer moves money between two accounts atomically. Rows are locked in
// ascending id order so concurrent opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, in TransferInput) error {
	if in.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ledger.ErrInvalidInput)
	}
	if in.FromID == in.ToID {
		return fmt.Errorf("%w: cannot transfer to the same account", ledger.ErrInvalidInput)
	}
	return s.store.RunSerializable(ctx, func(tx pgx.Tx) error {
		if err := ledger.ClaimIdempotency(ctx, tx, in.OwnerID, in.IdempotencyKey, "bank_transfer"); err != nil {
			return err
		}
		first, second := in.FromID, in.ToID
		if second < first {
			first, second = second, first
		}
		a, err := lockAccount(ctx, tx, first)
		if err != nil {
			return err
		}
		b, err := lockAccount(ctx, tx, second)
		if err != nil {
			return err
		}
		from, to := a, b
		if from.ID != in.FromID {
			from, to = b, a
		}
		if from.OwnerID != in.OwnerID {
			return ledger.ErrUnauthorized
		}
		if from.BalanceCents < in.AmountCents {
			return ledger.ErrInsufficientFunds
		}
		var discard Transaction
		if err := applyAccountDelta(ctx, tx, from, -in.AmountCents, "transfer_out", &discard); err != nil {
			return err
		}
		return applyAccountDelta(ctx, tx, to, in.AmountCents, "transfer_in", &discard)
	})
}

func (s *Service) Account(ctx context.Context, ownerID string, accountID int64) (Account, error) {
	var out Account
	err := s.store.Pool().QueryRow(ctx, `
		SELECT id, owner_id, kind, balance_cents, last_interest_paid_at, created_at
		FROM econ.accounts
		WHERE id = $1
	`, accountID).Scan(&out.ID, &out.OwnerID, &out.Kind, &out.BalanceCents, &out.LastInterestPaidAt, &out.CreatedAt)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrAccountNotFound
	}
	if err != nil {
		return out, err
	}
	if out.OwnerID != ownerID {
		return Account{}, ledger.ErrUnauthorized
	}
	return out, nil
}

func (s *Service) AccountsByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, owner_id, kind, balance_cents, last_interest_paid_at, created_at
		FROM econ.accounts
		WHERE owner_id = $1
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Account, 0)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.BalanceCents, &a.LastInterestPaidAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BalancesByOwner sums every account the owner holds. Used by the net worth
// aggregator.
func (s *Service) BalancesByOwner(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := s.store.Pool().QueryRow(ctx, `
		SELECT COALESCE(SUM(balance_cents), 0)
		FROM econ.accounts
		WHERE owner_id = $1
	`, ownerID).Scan(&total)
	return total, err
}

func (s *Service) History(ctx context.Context, ownerID string, accountID int64, limit int) ([]Transaction, error) {
	if _, err := s.Account(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.store.Pool().Query(ctx, `
		SELECT id, account_id, amount_cents, kind, created_at
		FROM econ.account_transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.AmountCents, &t.Kind, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AccrueInterest credits daily interest to every savings account whose last
// payment is older than the interest period. Eligibility is re-checked under
// the row lock, so overlapping sweep ticks cannot double-pay an account.
func (s *Service) AccrueInterest(ctx context.Context, now time.Time) (ledger.SweepReport, error) {
	var report ledger.SweepReport
	cutoff := now.Add(-s.params.InterestPeriod)

	rows, err := s.store.Pool().Query(ctx, `
		SELECT id FROM econ.accounts
		WHERE kind = 'savings' AND last_interest_paid_at <= $1
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
			acct, err := lockAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			if acct.LastInterestPaidAt.After(cutoff) {
				// Another tick already paid this period.
				report.Skipped++
				return nil
			}
			interest := interestFor(acct.BalanceCents, s.params.DailyRateBps)
			if _, err := tx.Exec(ctx, `
				UPDATE econ.accounts
				SET balance_cents = balance_cents + $1, last_interest_paid_at = $2
				WHERE id = $3
			`, interest, now, id); err != nil {
				return err
			}
			if interest > 0 {
				if _, err := tx.Exec(ctx, `
					INSERT INTO econ.account_transactions (account_id, amount_cents, kind)
					VALUES ($1, $2, 'interest')
				`, id, interest); err != nil {
					return err
				}
			}
			report.Applied++
			return nil
		})
		if err != nil {
			report.Fail(fmt.Sprintf("account %d: %v", id, err))
			s.log.Error("interest accrual failed", "account_id", id, "err", err)
		}
	}
	return report, nil
}

// interestFor floors to the cent; the bank keeps the sub-cent remainder.
func interestFor(balanceCents, dailyRateBps int64) int64 {
	if balanceCents <= 0 || dailyRateBps <= 0 {
		return 0
	}
	return ledger.MulBps(balanceCents, dailyRateBps)
}

func lockAccount(ctx context.Context, tx pgx.Tx, accountID int64) (Account, error) {
	var out Account
	err := tx.QueryRow(ctx, `
		SELECT id, owner_id, kind, balance_cents, last_interest_paid_at, created_at
		FROM econ.accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&out.ID, &out.OwnerID, &out.Kind, &out.BalanceCents, &out.LastInterestPaidAt, &out.CreatedAt)
	if err == pgx.ErrNoRows {
		return out, ledger.ErrAccountNotFound
	}
	return out, err
}

func applyAccountDelta(ctx context.Context, tx pgx.Tx, acct Account, deltaCents int64, kind string, out *Transaction) error {
	if _, err := tx.Exec(ctx, `
		UPDATE econ.accounts SET balance_cents = $1 WHERE id = $2
	`, acct.BalanceCents+deltaCents, acct.ID); err != nil {
		return err
	}
	return tx.QueryRow(ctx, `
		INSERT INTO econ.account_transactions (account_id, amount_cents, kind)
		VALUES ($1, $2, $3)
		RETURNING id, account_id, amount_cents, kind, created_at
	`, acct.ID, deltaCents, kind).Scan(&out.ID, &out.AccountID, &out.AmountCents, &out.Kind, &out.CreatedAt)
}
