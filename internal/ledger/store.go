package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the shared unit-of-work layer over the ledger schema. It owns no
// business rules: services compose over it and run their mutations through
// RunSerializable so every state change is all-or-nothing.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, log: logger}
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

const maxTxAttempts = 8

// RunSerializable executes fn inside a serializable transaction, retrying with
// backoff when Postgres reports a serialization failure (SQLSTATE 40001). The
// transaction commits only if fn returns nil.
func (s *Store) RunSerializable(ctx context.Context, fn func(pgx.Tx) error) error {
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxTxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClaimIdempotency reserves (userID, key) inside tx. A duplicate claim means
// the caller already applied this mutation and must not apply it again.
func ClaimIdempotency(ctx context.Context, tx pgx.Tx, userID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidInput)
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO econ.idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

// EnsureWallet creates the player's cash wallet with starter balance if it
// does not exist yet, journaling the grant.
func (s *Store) EnsureWallet(ctx context.Context, userID string) error {
	return s.RunSerializable(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			INSERT INTO econ.wallets (user_id, balance_cents)
			VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING
		`, userID, StarterBalanceCents)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO econ.wallet_entries (user_id, amount_cents, kind, ref_id)
			VALUES ($1, $2, 'starter_grant', '')
		`, userID, StarterBalanceCents)
		return err
	})
}

// CashBalance reads the wallet balance outside any transaction.
func (s *Store) CashBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx, `
		SELECT balance_cents FROM econ.wallets WHERE user_id = $1
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, ErrWalletNotFound
	}
	return balance, err
}

// CreditWallet adds cash to a player's wallet and appends the matching journal
// entry. Must run inside the caller's transaction.
func CreditWallet(ctx context.Context, tx pgx.Tx, userID string, amountCents int64, kind, refID string) error {
	if amountCents < 0 {
		return fmt.Errorf("%w: credit amount must be >= 0", ErrInvalidInput)
	}
	if amountCents == 0 {
		return nil
	}
	var balance int64
	err := tx.QueryRow(ctx, `
		SELECT balance_cents FROM econ.wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE econ.wallets SET balance_cents = $1, updated_at = now() WHERE user_id = $2
	`, balance+amountCents, userID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO econ.wallet_entries (user_id, amount_cents, kind, ref_id)
		VALUES ($1, $2, $3, $4)
	`, userID, amountCents, kind, refID)
	return err
}

// DebitWallet removes cash from a player's wallet, rejecting overdrafts, and
// appends the matching journal entry. Must run inside the caller's transaction.
func DebitWallet(ctx context.Context, tx pgx.Tx, userID string, amountCents int64, kind, refID string) error {
	if amountCents <= 0 {
		return fmt.Errorf("%w: debit amount must be > 0", ErrInvalidInput)
	}
	var balance int64
	err := tx.QueryRow(ctx, `
		SELECT balance_cents FROM econ.wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return ErrWalletNotFound
	}
	if err != nil {
		return err
	}
	if balance < amountCents {
		return ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx, `
		UPDATE econ.wallets SET balance_cents = $1, updated_at = now() WHERE user_id = $2
	`, balance-amountCents, userID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO econ.wallet_entries (user_id, amount_cents, kind, ref_id)
		VALUES ($1, $2, $3, $4)
	`, userID, -amountCents, kind, refID)
	return err
}

// SweepReport summarizes one pass of a periodic sweep. Per-row failures are
// reported here, never thrown, so one bad row cannot abort the rest.
type SweepReport struct {
	Eligible int      `json:"eligible"`
	Applied  int      `json:"applied"`
	Skipped  int      `json:"skipped"`
	Failures []string `json:"failures,omitempty"`
}

func (r *SweepReport) Fail(detail string) {
	r.Failures = append(r.Failures, detail)
}
