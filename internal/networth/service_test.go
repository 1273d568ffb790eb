package networth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubReader struct {
	value int64
	err   error
}

func (s stubReader) CashBalance(context.Context, string) (int64, error)        { return s.value, s.err }
func (s stubReader) BalancesByOwner(context.Context, string) (int64, error)    { return s.value, s.err }
func (s stubReader) HoldingsValue(context.Context, string) (int64, error)      { return s.value, s.err }
func (s stubReader) OutstandingByOwner(context.Context, string) (int64, error) { return s.value, s.err }

func TestNetWorthComposition(t *testing.T) {
	// Cash 1000, savings 500, loan 300: net worth 1200.
	svc := NewService(nil, nil,
		stubReader{value: 100_000},
		stubReader{value: 50_000},
		stubReader{value: 0},
		stubReader{value: 0},
		stubReader{value: 30_000},
	)
	res, err := svc.NetWorth(context.Background(), "player-1")
	require.NoError(t, err)
	require.Equal(t, int64(120_000), res.TotalCents)
	require.Equal(t, int64(100_000), res.Components["cash"])
	require.Equal(t, int64(-30_000), res.Components["debt"])
	require.Empty(t, res.Degraded)
}

func TestNetWorthDegradesFailedComponent(t *testing.T) {
	svc := NewService(nil, nil,
		stubReader{value: 100_000},
		stubReader{err: errors.New("bank offline")},
		stubReader{value: 10_000},
		stubReader{value: 0},
		stubReader{value: 0},
	)
	res, err := svc.NetWorth(context.Background(), "player-1")
	require.NoError(t, err, "one failed source must not fail the report")
	require.Equal(t, int64(110_000), res.TotalCents)
	require.Equal(t, []string{"bank_accounts"}, res.Degraded)
	require.Zero(t, res.Components["bank_accounts"])
}
