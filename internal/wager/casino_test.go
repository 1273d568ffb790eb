package wager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mobcity/internal/ledger"
	"mobcity/internal/ledger/ledgertest"
	"mobcity/internal/notify"
)

func TestHouseEdgeGeneratorBounds(t *testing.T) {
	gen := newHouseEdgeGenerator()

	// A 100% house edge can never win.
	rigged := Game{Code: "rigged", HouseEdgeBps: 2 * ledger.BpsScale}
	for i := 0; i < 100; i++ {
		out, err := gen.Outcome(context.Background(), rigged, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Win {
			t.Fatalf("win with a total house edge")
		}
	}

	out, err := gen.Outcome(context.Background(), Game{Code: "fair", HouseEdgeBps: 200}, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.MultiplierBps != 2*ledger.BpsScale {
		t.Fatalf("even-money rounds pay 2x, got %d bps", out.MultiplierBps)
	}
}

type fixedOutcome struct {
	out Outcome
}

func (f fixedOutcome) Outcome(context.Context, Game, int64) (Outcome, error) {
	return f.out, nil
}

type recordingSink struct {
	events []notify.Event
}

func (s *recordingSink) Push(_ context.Context, ev notify.Event) {
	s.events = append(s.events, ev)
}

func TestPlaceWagerWinAndLose(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	sink := &recordingSink{}
	svc := NewCasinoService(store, nil, sink)
	require.NoError(t, svc.SeedGames(ctx))

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	start, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	svc.RegisterGenerator("coinflip", fixedOutcome{Outcome{Win: true, MultiplierBps: 2 * ledger.BpsScale}})
	res, err := svc.PlaceWager(ctx, WagerInput{UserID: user, GameCode: "coinflip", BetCents: 1_000, IdempotencyKey: "w1"})
	require.NoError(t, err)
	require.True(t, res.Won)
	require.Equal(t, int64(2_000), res.PayoutCents)

	cash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, start+1_000, cash, "win nets the stake once")

	svc.RegisterGenerator("coinflip", fixedOutcome{Outcome{Win: false}})
	res, err = svc.PlaceWager(ctx, WagerInput{UserID: user, GameCode: "coinflip", BetCents: 1_000, IdempotencyKey: "w2"})
	require.NoError(t, err)
	require.False(t, res.Won)
	require.Zero(t, res.PayoutCents)

	cash, err = store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, start, cash)

	history, err := svc.HistoryByUser(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Only the winning round is announced.
	require.Len(t, sink.events, 1)
	require.Equal(t, "casino_win", sink.events[0].Kind)
}

func TestPlaceWagerFailsClosed(t *testing.T) {
	store := ledgertest.Open(t)
	ctx := context.Background()
	svc := NewCasinoService(store, nil, nil)
	require.NoError(t, svc.SeedGames(ctx))

	const user = "player-1"
	require.NoError(t, store.EnsureWallet(ctx, user))
	start, err := store.CashBalance(ctx, user)
	require.NoError(t, err)

	_, err = svc.PlaceWager(ctx, WagerInput{UserID: user, GameCode: "slots", BetCents: 1_000, IdempotencyKey: "w1"})
	require.ErrorIs(t, err, ledger.ErrGameNotFound)

	require.NoError(t, svc.SetGameEnabled(ctx, "coinflip", false))
	_, err = svc.PlaceWager(ctx, WagerInput{UserID: user, GameCode: "coinflip", BetCents: 1_000, IdempotencyKey: "w2"})
	require.ErrorIs(t, err, ledger.ErrGameDisabled)

	_, err = svc.PlaceWager(ctx, WagerInput{UserID: user, GameCode: "dice", BetCents: 1, IdempotencyKey: "w3"})
	require.ErrorIs(t, err, ledger.ErrBetTooSmall)

	_, err = svc.PlaceWager(ctx, WagerInput{UserID: user, GameCode: "dice", BetCents: 1_000_000_000, IdempotencyKey: "w4"})
	require.ErrorIs(t, err, ledger.ErrBetTooLarge)

	cash, err := store.CashBalance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, start, cash, "rejected wagers must not move money")
}
