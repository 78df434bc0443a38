// Package money provides the currency-safe arithmetic the cart pricing
// engine and report aggregator are built on. Amounts are whole-unit
// (no sub-unit currencies are modelled; payments and change are integer
// amounts), but intermediate tax/discount math runs through
// shopspring/decimal so rounding only happens at the single point the
// pricing engine chooses, never silently inside an intermediate sum.
package money

import "github.com/shopspring/decimal"

// Mode selects the rounding strategy applied to line/cart totals and tax
// amounts; everything upstream of Round is exact decimal arithmetic.
type Mode string

const (
	// ModeBankers rounds half-to-even, the per-tenant default.
	ModeBankers Mode = "bankers"
	// ModeHalfUp rounds half away from zero.
	ModeHalfUp Mode = "half_up"
	// ModeFloor always truncates towards negative infinity.
	ModeFloor Mode = "floor"
	// ModeCeil always rounds towards positive infinity.
	ModeCeil Mode = "ceil"
)

// Round applies mode to d, returning a whole-unit integer amount. Unknown
// modes fall back to banker's rounding.
func Round(d decimal.Decimal, mode Mode) int64 {
	switch mode {
	case ModeHalfUp:
		return RoundHalfUp(d)
	case ModeFloor:
		return d.Floor().IntPart()
	case ModeCeil:
		return d.Ceil().IntPart()
	case ModeBankers, "":
		return d.RoundBank(0).IntPart()
	default:
		return d.RoundBank(0).IntPart()
	}
}

// RoundHalfUp rounds d half away from zero to zero decimal places.
func RoundHalfUp(d decimal.Decimal) int64 {
	if d.Sign() >= 0 {
		return d.Add(decimal.NewFromFloat(0.5)).Floor().IntPart()
	}
	return d.Sub(decimal.NewFromFloat(0.5)).Ceil().IntPart()
}

// FromInt lifts a whole-unit amount into decimal space for intermediate math.
func FromInt(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount)
}
