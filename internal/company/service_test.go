package company

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobcity/internal/ledger"
	"mobcity/internal/ledger/ledgertest"
)

func TestCreateAndShareRoundTrip(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	require.NoError(t, store.EnsureWallet(ctx, "founder"))
	require.NoError(t, store.EnsureWallet(ctx, "investor"))

	c, err := svc.Create(ctx, CreateInput{OwnerID: "founder", Name: "Lucky Imports", InitialCents: 200_000, IdempotencyKey: "co-1"})
	require.NoError(t, err)
	require.Equal(t, int64(200_000), c.TreasuryCents)

	// Not traded yet: trades are rejected.
	err = svc.BuyShares(ctx, TradeInput{UserID: "investor", CompanyID: c.ID, Amount: 10, IdempotencyKey: "buy-0"})
	require.ErrorIs(t, err, ledger.ErrCompanyNotTraded)

	require.NoError(t, svc.IssueShares(ctx, IssueInput{
		OwnerID: "founder", CompanyID: c.ID, TotalShares: 100, SharePriceCents: 2_000, IdempotencyKey: "ipo-1",
	}))

	investorStart, err := store.CashBalance(ctx, "investor")
	require.NoError(t, err)

	require.NoError(t, svc.BuyShares(ctx, TradeInput{UserID: "investor", CompanyID: c.ID, Amount: 10, IdempotencyKey: "buy-1"}))

	cash, err := store.CashBalance(ctx, "investor")
	require.NoError(t, err)
	require.Equal(t, investorStart-20_000, cash)

	shares, err := svc.SharesByUser(ctx, "investor")
	require.NoError(t, err)
	require.Len(t, shares, 1)
	require.Equal(t, int64(10), shares[0].Amount)

	// Selling more than held is rejected.
	err = svc.SellShares(ctx, TradeInput{UserID: "investor", CompanyID: c.ID, Amount: 11, IdempotencyKey: "sell-0"})
	require.ErrorIs(t, err, ledger.ErrInsufficientShares)

	require.NoError(t, svc.SellShares(ctx, TradeInput{UserID: "investor", CompanyID: c.ID, Amount: 10, IdempotencyKey: "sell-1"}))
	shares, err = svc.SharesByUser(ctx, "investor")
	require.NoError(t, err)
	require.Empty(t, shares, "full sale removes the holding row")
}

func TestBuySharesBoundedByFloat(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())

	require.NoError(t, store.EnsureWallet(ctx, "founder"))
	require.NoError(t, store.EnsureWallet(ctx, "whale"))
	require.NoError(t, store.EnsureWallet(ctx, "minnow"))

	c, err := svc.Create(ctx, CreateInput{OwnerID: "founder", Name: "Harbor Holdings", InitialCents: 100_000, IdempotencyKey: "co-1"})
	require.NoError(t, err)
	require.NoError(t, svc.IssueShares(ctx, IssueInput{
		OwnerID: "founder", CompanyID: c.ID, TotalShares: 100, SharePriceCents: 1_000, IdempotencyKey: "ipo-1",
	}))

	require.NoError(t, svc.BuyShares(ctx, TradeInput{UserID: "whale", CompanyID: c.ID, Amount: 80, IdempotencyKey: "buy-1"}))

	// Only 20 shares of the float remain; a second 80-share buy must fail.
	err = svc.BuyShares(ctx, TradeInput{UserID: "minnow", CompanyID: c.ID, Amount: 80, IdempotencyKey: "buy-2"})
	require.ErrorIs(t, err, ledger.ErrInsufficientShares)

	minnowCash, err := store.CashBalance(ctx, "minnow")
	require.NoError(t, err)
	require.Equal(t, ledger.StarterBalanceCents, minnowCash, "rejected buy must not move money")

	// Buying exactly the remainder is fine.
	require.NoError(t, svc.BuyShares(ctx, TradeInput{UserID: "minnow", CompanyID: c.ID, Amount: 20, IdempotencyKey: "buy-3"}))
	err = svc.BuyShares(ctx, TradeInput{UserID: "whale", CompanyID: c.ID, Amount: 1, IdempotencyKey: "buy-4"})
	require.ErrorIs(t, err, ledger.ErrInsufficientShares, "fully subscribed float sells nothing more")
}

func TestPayrollSkipsUnderfundedTreasury(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, Params{PayrollPeriod: time.Hour})

	require.NoError(t, store.EnsureWallet(ctx, "boss"))
	require.NoError(t, store.EnsureWallet(ctx, "worker"))

	c, err := svc.Create(ctx, CreateInput{OwnerID: "boss", Name: "Dockside Freight", InitialCents: 1_000, IdempotencyKey: "co-1"})
	require.NoError(t, err)

	_, err = svc.Hire(ctx, HireInput{OwnerID: "boss", CompanyID: c.ID, UserID: "worker", SalaryCents: 5_000, IdempotencyKey: "hire-1"})
	require.NoError(t, err)

	workerStart, err := store.CashBalance(ctx, "worker")
	require.NoError(t, err)

	// Treasury of 1_000 cannot cover a 5_000 salary: skipped, not paid.
	report, err := svc.Payroll(ctx, time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, report.Eligible)
	require.Zero(t, report.Applied)
	require.Equal(t, 1, report.Skipped)

	cash, err := store.CashBalance(ctx, "worker")
	require.NoError(t, err)
	require.Equal(t, workerStart, cash, "underfunded payroll must not pay")
}

func TestAccrueIncomeOncePerPeriod(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, Params{IncomePeriod: time.Hour, IncomeRateBps: 150, PerEmployeeCents: 2_500})

	require.NoError(t, store.EnsureWallet(ctx, "boss"))
	c, err := svc.Create(ctx, CreateInput{OwnerID: "boss", Name: "Numbers Racket", InitialCents: 1_000_000, IdempotencyKey: "co-1"})
	require.NoError(t, err)

	now := time.Now().UTC().Add(2 * time.Hour)
	report, err := svc.AccrueIncome(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)

	report, err = svc.AccrueIncome(ctx, now)
	require.NoError(t, err)
	require.Zero(t, report.Applied)
	require.Equal(t, 1, report.Skipped)

	got, err := svc.Company(ctx, c.ID)
	require.NoError(t, err)
	// 150 bps of 1_000_000 paid exactly once.
	require.Equal(t, int64(1_015_000), got.TreasuryCents)
}
