package asset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobcity/internal/ledger"
	"mobcity/internal/ledger/ledgertest"
)

func TestPurchaseSellRoundTrip(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, DefaultParams())
	require.NoError(t, svc.SeedCatalog(ctx))

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	start, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	catalog, err := svc.Catalog(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, catalog)
	cheapest := catalog[0]

	h, err := svc.Purchase(ctx, PurchaseInput{UserID: user, AssetID: cheapest.ID, IdempotencyKey: "buy-1"})
	require.NoError(t, err)
	require.Equal(t, cheapest.BasePriceCents, h.CurrentValueCents)

	value, err := svc.HoldingsValue(ctx, user)
	require.NoError(t, err)
	require.Equal(t, cheapest.BasePriceCents, value)

	proceeds, err := svc.Sell(ctx, SellInput{UserID: user, HoldingID: h.ID, IdempotencyKey: "sell-1"})
	require.NoError(t, err)
	require.Equal(t, cheapest.BasePriceCents, proceeds)

	cash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, start, cash, "buy then sell at unchanged value is cash neutral")

	_, err = svc.Sell(ctx, SellInput{UserID: user, HoldingID: h.ID, IdempotencyKey: "sell-2"})
	require.ErrorIs(t, err, ledger.ErrHoldingNotFound)
}

func TestAccrueIncomeOncePerPeriod(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewService(store, nil, Params{IncomePeriod: time.Hour})
	require.NoError(t, svc.SeedCatalog(ctx))

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))

	catalog, err := svc.Catalog(ctx)
	require.NoError(t, err)
	cheapest := catalog[0]
	_, err = svc.Purchase(ctx, PurchaseInput{UserID: user, AssetID: cheapest.ID, IdempotencyKey: "buy-1"})
	require.NoError(t, err)

	afterBuy, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	now := time.Now().UTC().Add(2 * time.Hour)
	report, err := svc.AccrueIncome(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Applied)

	report, err = svc.AccrueIncome(ctx, now)
	require.NoError(t, err)
	require.Zero(t, report.Applied)
	require.Equal(t, 1, report.Skipped)

	cash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, afterBuy+cheapest.IncomeCents, cash, "exactly one income credit")
}
