package wager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobcity/internal/ledger"
	"mobcity/internal/ledger/ledgertest"
)

func TestPoolPayout(t *testing.T) {
	tests := []struct {
		stake   int64
		total   int64
		winning int64
		want    int64
	}{
		{stake: 100, total: 1_000, winning: 400, want: 250},
		{stake: 400, total: 1_000, winning: 400, want: 1_000}, // sole winner takes the pool
		{stake: 100, total: 300, winning: 300, want: 100},     // everyone won, stakes return
		{stake: 100, total: 1_000, winning: 0, want: 0},
		{stake: 1, total: 7, winning: 3, want: 2}, // floors
	}
	for _, tc := range tests {
		if got := poolPayout(tc.stake, tc.total, tc.winning); got != tc.want {
			t.Fatalf("poolPayout(%d, %d, %d)=%d want %d", tc.stake, tc.total, tc.winning, got, tc.want)
		}
	}
}

func TestPoolPayoutNeverExceedsPool(t *testing.T) {
	// Flooring means the paid total can only round down, never exceed the pool.
	stakes := []int64{137, 901, 23, 4_999, 61}
	var winning int64
	for _, s := range stakes {
		winning += s
	}
	total := winning + 12_345 // losing side
	var paid int64
	for _, s := range stakes {
		paid += poolPayout(s, total, winning)
	}
	if paid > total {
		t.Fatalf("paid %d exceeds pool %d", paid, total)
	}
}

func TestPoolPayoutLargePools(t *testing.T) {
	// Intermediate product overflows int64 without big.Int.
	stake := int64(5_000_000_000)
	total := int64(9_000_000_000)
	winning := int64(6_000_000_000)
	if got := poolPayout(stake, total, winning); got != 7_500_000_000 {
		t.Fatalf("got %d want 7500000000", got)
	}
}

func TestSettleParimutuel(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewEventService(store, nil, nil)

	for _, u := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.EnsureWallet(ctx, u))
	}

	ev, err := svc.CreateEvent(ctx, CreateEventInput{
		Title:   "Heist goes clean?",
		EndTime: time.Now().Add(time.Hour),
		Options: []string{"yes", "no"},
	})
	require.NoError(t, err)
	require.Len(t, ev.Options, 2)
	yes, no := ev.Options[0].ID, ev.Options[1].ID

	_, err = svc.PlaceBet(ctx, PlaceBetInput{UserID: "alice", EventID: ev.ID, OptionID: yes, AmountCents: 10_000, IdempotencyKey: "b1"})
	require.NoError(t, err)
	_, err = svc.PlaceBet(ctx, PlaceBetInput{UserID: "bob", EventID: ev.ID, OptionID: yes, AmountCents: 30_000, IdempotencyKey: "b2"})
	require.NoError(t, err)
	_, err = svc.PlaceBet(ctx, PlaceBetInput{UserID: "carol", EventID: ev.ID, OptionID: no, AmountCents: 20_000, IdempotencyKey: "b3"})
	require.NoError(t, err)

	// Settling while still open and unexpired is rejected.
	_, err = svc.Settle(ctx, ev.ID, yes)
	require.ErrorIs(t, err, ledger.ErrEventNotClosed)

	require.NoError(t, svc.CloseEvent(ctx, ev.ID))

	aliceBefore, err := store.CashBalance(ctx, "alice")
	require.NoError(t, err)

	res, err := svc.Settle(ctx, ev.ID, yes)
	require.NoError(t, err)
	require.Equal(t, int64(60_000), res.TotalPoolCents)
	require.Equal(t, int64(40_000), res.WinningCents)
	require.Equal(t, 2, res.PaidBets)

	aliceAfter, err := store.CashBalance(ctx, "alice")
	require.NoError(t, err)
	// 10_000 * 60_000 / 40_000 = 15_000.
	require.Equal(t, aliceBefore+15_000, aliceAfter)

	// A second settlement must be rejected, so the pool pays at most once.
	_, err = svc.Settle(ctx, ev.ID, no)
	require.ErrorIs(t, err, ledger.ErrAlreadySettled)

	// Bets after settlement are rejected too.
	_, err = svc.PlaceBet(ctx, PlaceBetInput{UserID: "alice", EventID: ev.ID, OptionID: yes, AmountCents: 100, IdempotencyKey: "b4"})
	require.ErrorIs(t, err, ledger.ErrEventNotOpen)
}

func TestSettleExpiredOpenEvent(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewEventService(store, nil, nil)

	require.NoError(t, store.EnsureWallet(ctx, "alice"))

	ev, err := svc.CreateEvent(ctx, CreateEventInput{
		Title:   "Late night race",
		EndTime: time.Now().Add(time.Hour),
		Options: []string{"a", "b"},
	})
	require.NoError(t, err)
	_, err = svc.PlaceBet(ctx, PlaceBetInput{UserID: "alice", EventID: ev.ID, OptionID: ev.Options[0].ID, AmountCents: 1_000, IdempotencyKey: "b1"})
	require.NoError(t, err)

	// Push the event past its end time while it is still open.
	_, err = store.Pool().Exec(ctx, `
		UPDATE econ.betting_events SET end_time = now() - interval '1 hour' WHERE id = $1
	`, ev.ID)
	require.NoError(t, err)

	res, err := svc.Settle(ctx, ev.ID, ev.Options[0].ID)
	require.NoError(t, err, "expired events settle without an explicit close")
	require.Equal(t, int64(1_000), res.TotalPoolCents)

	got, err := svc.Event(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, EventSettled, got.Status)
}

func TestSettleRefundsEmptyWinningPool(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewEventService(store, nil, nil)

	require.NoError(t, store.EnsureWallet(ctx, "alice"))

	ev, err := svc.CreateEvent(ctx, CreateEventInput{
		Title:   "Longshot",
		EndTime: time.Now().Add(time.Hour),
		Options: []string{"a", "b"},
	})
	require.NoError(t, err)

	before, err := store.CashBalance(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.PlaceBet(ctx, PlaceBetInput{UserID: "alice", EventID: ev.ID, OptionID: ev.Options[0].ID, AmountCents: 5_000, IdempotencyKey: "b1"})
	require.NoError(t, err)
	require.NoError(t, svc.CloseEvent(ctx, ev.ID))

	// Nobody backed option b: every stake is refunded.
	res, err := svc.Settle(ctx, ev.ID, ev.Options[1].ID)
	require.NoError(t, err)
	require.True(t, res.Refunded)

	after, err := store.CashBalance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, before, after)
}
