package bank

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobcity/internal/ledger"
	"mobcity/internal/ledger/ledgertest"
)

func TestInterestFor(t *testing.T) {
	tests := []struct {
		balance int64
		rateBps int64
		want    int64
	}{
		{balance: 50_000, rateBps: 10, want: 50},
		{balance: 999, rateBps: 10, want: 0}, // sub-cent interest floors away
		{balance: 0, rateBps: 10, want: 0},
		{balance: -500, rateBps: 10, want: 0},
		{balance: 50_000, rateBps: 0, want: 0},
	}
	for _, tc := range tests {
		if got := interestFor(tc.balance, tc.rateBps); got != tc.want {
			t.Fatalf("interestFor(%d, %d)=%d want %d", tc.balance, tc.rateBps, got, tc.want)
		}
	}
}

func TestDepositWithdrawConservation(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	startCash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	acct, err := svc.OpenAccount(ctx, user, KindChecking)
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 40_000, IdempotencyKey: "dep-1"})
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 15_000, IdempotencyKey: "wd-1"})
	require.NoError(t, err)

	cash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	bankTotal, err := svc.BalancesByOwner(ctx, user)
	require.NoError(t, err)
	require.Equal(t, startCash, cash+bankTotal, "cash plus bank must equal starting cash")
	require.Equal(t, int64(25_000), bankTotal)
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	acct, err := svc.OpenAccount(ctx, user, KindChecking)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 1_000, IdempotencyKey: "dep-1"})
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 2_000, IdempotencyKey: "wd-1"})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	got, err := svc.Account(ctx, user, acct.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), got.BalanceCents, "failed withdrawal must leave the balance untouched")
}

func TestDuplicateIdempotencyKeyRejected(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	acct, err := svc.OpenAccount(ctx, user, KindChecking)
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 5_000, IdempotencyKey: "dep-1"})
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 5_000, IdempotencyKey: "dep-1"})
	require.ErrorIs(t, err, ledger.ErrDuplicateIdempotency)

	got, err := svc.Account(ctx, user, acct.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5_000), got.BalanceCents, "replayed deposit must apply once")
}

func TestTransferAtomicity(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	a, err := svc.OpenAccount(ctx, user, KindChecking)
	require.NoError(t, err)
	b, err := svc.OpenAccount(ctx, user, KindSavings)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, MoveInput{OwnerID: user, AccountID: a.ID, AmountCents: 30_000, IdempotencyKey: "dep-1"})
	require.NoError(t, err)

	require.NoError(t, svc.Transfer(ctx, TransferInput{OwnerID: user, FromID: a.ID, ToID: b.ID, AmountCents: 12_000, IdempotencyKey: "tr-1"}))

	gotA, err := svc.Account(ctx, user, a.ID)
	require.NoError(t, err)
	gotB, err := svc.Account(ctx, user, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(18_000), gotA.BalanceCents)
	require.Equal(t, int64(12_000), gotB.BalanceCents)

	// A transfer the source cannot cover moves nothing on either side.
	err = svc.Transfer(ctx, TransferInput{OwnerID: user, FromID: a.ID, ToID: b.ID, AmountCents: 99_000, IdempotencyKey: "tr-2"})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	gotA, err = svc.Account(ctx, user, a.ID)
	require.NoError(t, err)
	gotB, err = svc.Account(ctx, user, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(18_000), gotA.BalanceCents)
	require.Equal(t, int64(12_000), gotB.BalanceCents)
}

func TestAccrueInterestOncePerPeriod(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, Params{DailyRateBps: 10, InterestPeriod: 24 * time.Hour})

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	acct, err := svc.OpenAccount(ctx, user, KindSavings)
	require.NoError(t, err)
	_, err = svc.Deposit(ctx, MoveInput{OwnerID: user, AccountID: acct.ID, AmountCents: 100_000, IdempotencyKey: "dep-1"})
	require.NoError(t, err)

	// One period later the sweep pays once; a second pass at the same instant
	// must skip the account.
	now := time.Now().UTC().Add(25 * time.Hour)
	report, err := svc.AccrueInterest(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)

	report, err = svc.AccrueInterest(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 0, report.Applied)
	require.Equal(t, 1, report.Skipped)

	got, err := svc.Account(ctx, user, acct.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100_100), got.BalanceCents, "exactly one interest credit of 100 cents")
}

func TestOwnershipEnforced(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	require.NoError(t, store.EnsureWallet(ctx, "owner"))
	require.NoError(t, store.EnsureWallet(ctx, "intruder"))
	acct, err := svc.OpenAccount(ctx, "owner", KindChecking)
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, MoveInput{OwnerID: "intruder", AccountID: acct.ID, AmountCents: 100, IdempotencyKey: "dep-x"})
	if !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
