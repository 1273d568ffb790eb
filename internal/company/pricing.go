package company

// PricingStrategy decides the effective share price of a publicly traded
// company. Implementations must be monotonic-consistent: outstanding shares
// times the price they return has to stay bounded by company value.
type PricingStrategy interface {
	Price(c Company) int64
}

// ValueAnchored prices shares at value divided by total shares, so the full
// float is always worth exactly the company. It is the documented default.
type ValueAnchored struct{}

func (ValueAnchored) Price(c Company) int64 {
	shares := c.TotalShares
	if shares < 1 {
		shares = 1
	}
	return c.ValueCents / shares
}

// EffectiveSharePrice values a holding for display and aggregation: the
// posted price for traded companies, the value-anchored estimate otherwise.
func EffectiveSharePrice(c Company) int64 {
	if c.PubliclyTraded && c.SharePriceCents > 0 {
		return c.SharePriceCents
	}
	return ValueAnchored{}.Price(c)
}
