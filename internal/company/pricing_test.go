package company

import "testing"

func TestValueAnchoredPrice(t *testing.T) {
	tests := []struct {
		value  int64
		shares int64
		want   int64
	}{
		{value: 100_000, shares: 100, want: 1_000},
		{value: 100_000, shares: 3, want: 33_333}, // floors
		{value: 100_000, shares: 0, want: 100_000},
		{value: 0, shares: 100, want: 0},
	}
	for _, tc := range tests {
		c := Company{ValueCents: tc.value, TotalShares: tc.shares}
		if got := (ValueAnchored{}).Price(c); got != tc.want {
			t.Fatalf("Price(value=%d shares=%d)=%d want %d", tc.value, tc.shares, got, tc.want)
		}
	}
}

func TestEffectiveSharePrice(t *testing.T) {
	traded := Company{ValueCents: 100_000, TotalShares: 100, PubliclyTraded: true, SharePriceCents: 2_500}
	if got := EffectiveSharePrice(traded); got != 2_500 {
		t.Fatalf("traded company must use the posted price, got %d", got)
	}
	private := Company{ValueCents: 100_000, TotalShares: 100}
	if got := EffectiveSharePrice(private); got != 1_000 {
		t.Fatalf("private company falls back to value-anchored, got %d", got)
	}
}

func TestIncomeFor(t *testing.T) {
	// 150 bps of 1_000_000 is 15_000; a 1000 bps upgrade bonus boosts that by
	// 10%; two employees add 2 * 2_500 flat.
	got := incomeFor(1_000_000, 150, 1_000, 2, 2_500)
	want := int64(16_500 + 5_000)
	if got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	if got := incomeFor(0, 150, 0, 0, 2_500); got != 0 {
		t.Fatalf("zero value with no staff must earn nothing, got %d", got)
	}
}

func TestUpgradeByKind(t *testing.T) {
	spec, err := upgradeByKind("  Back_Room ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Kind != "back_room" || spec.BonusBps <= 0 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if _, err := upgradeByKind("jetpack"); err == nil {
		t.Fatalf("expected unknown kind to fail")
	}
}
