package ledger

import "testing"

func TestMulBps(t *testing.T) {
	tests := []struct {
		amount int64
		bps    int64
		want   int64
	}{
		{amount: 100_000, bps: 10, want: 100},
		{amount: 50_000, bps: 150, want: 750},
		{amount: 999, bps: 10, want: 0}, // floors to the cent
		{amount: 0, bps: 500, want: 0},
		{amount: 100, bps: 10_000, want: 100},
		{amount: 100, bps: 20_000, want: 200},
	}
	for _, tc := range tests {
		if got := MulBps(tc.amount, tc.bps); got != tc.want {
			t.Fatalf("MulBps(%d, %d)=%d want %d", tc.amount, tc.bps, got, tc.want)
		}
	}
}

func TestCentsToDollars(t *testing.T) {
	if got := CentsToDollars(1234); got != 12.34 {
		t.Fatalf("got %v want 12.34", got)
	}
}
