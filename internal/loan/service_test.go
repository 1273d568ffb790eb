package loan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobcity/internal/ledger"
	"mobcity/internal/ledger/ledgertest"
)

func TestClampPayment(t *testing.T) {
	tests := []struct {
		offered   int64
		remaining int64
		want      int64
	}{
		{offered: 100, remaining: 300, want: 100},
		{offered: 300, remaining: 300, want: 300},
		{offered: 500, remaining: 300, want: 300},
	}
	for _, tc := range tests {
		if got := clampPayment(tc.offered, tc.remaining); got != tc.want {
			t.Fatalf("clampPayment(%d, %d)=%d want %d", tc.offered, tc.remaining, got, tc.want)
		}
	}
}

func TestOriginateAndPayOff(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	startCash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	ln, err := svc.Originate(ctx, OriginateInput{OwnerID: user, PrincipalCents: 100_000, IdempotencyKey: "loan-1"})
	require.NoError(t, err)
	require.Equal(t, StatusActive, ln.Status)

	cash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, startCash+100_000, cash, "principal lands in the wallet")

	p, err := svc.RecordPayment(ctx, PaymentInput{OwnerID: user, LoanID: ln.ID, AmountCents: 100_000, IdempotencyKey: "pay-1"})
	require.NoError(t, err)
	require.Equal(t, int64(100_000), p.AmountCents)

	got, err := svc.Loan(ctx, user, ln.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
	require.Zero(t, got.RemainingCents)

	_, err = svc.RecordPayment(ctx, PaymentInput{OwnerID: user, LoanID: ln.ID, AmountCents: 1, IdempotencyKey: "pay-2"})
	require.ErrorIs(t, err, ledger.ErrLoanNotActive)
}

func TestOverPaymentClamped(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))

	ln, err := svc.Originate(ctx, OriginateInput{OwnerID: user, PrincipalCents: 30_000, IdempotencyKey: "loan-1"})
	require.NoError(t, err)
	cashBefore, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	// Paying 500 against a 300 debt debits exactly 300.
	p, err := svc.RecordPayment(ctx, PaymentInput{OwnerID: user, LoanID: ln.ID, AmountCents: 50_000, IdempotencyKey: "pay-1"})
	require.NoError(t, err)
	require.Equal(t, int64(30_000), p.AmountCents)

	cashAfter, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, cashBefore-30_000, cashAfter)

	got, err := svc.Loan(ctx, user, ln.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, got.Status)
}

func TestSweepDelinquentMarksOnce(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, Params{PaymentPeriod: time.Hour, GracePeriod: time.Hour})

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	ln, err := svc.Originate(ctx, OriginateInput{OwnerID: user, PrincipalCents: 10_000, IdempotencyKey: "loan-1"})
	require.NoError(t, err)

	// Past due plus grace.
	now := time.Now().UTC().Add(3 * time.Hour)
	report, err := svc.SweepDelinquent(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)

	report, err = svc.SweepDelinquent(ctx, now)
	require.NoError(t, err)
	require.Zero(t, report.Applied, "second pass must not re-mark")

	got, err := svc.Loan(ctx, user, ln.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDefaulted, got.Status)

	// Defaulted debt still counts as outstanding.
	outstanding, err := svc.OutstandingByOwner(ctx, user)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), outstanding)
}
