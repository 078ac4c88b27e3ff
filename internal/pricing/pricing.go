// Package pricing turns an order subtotal into tax, shipping and total under
// fixed business rules.
package pricing

import "github.com/shopspring/decimal"

type Rules struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
}

type Breakdown struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

func DefaultRules() Rules {
	return NewRules(0.08, 66, 10)
}

func NewRules(taxRate, freeShippingOver, flatShipping float64) Rules {
	return Rules{
		TaxRate:               decimal.NewFromFloat(taxRate),
		FreeShippingThreshold: decimal.NewFromFloat(freeShippingOver),
		FlatShipping:          decimal.NewFromFloat(flatShipping),
	}
}

// Calculate rounds tax and total to cents independently; shipping is never rounded.
// Negative subtotals are treated as zero.
func (r Rules) Calculate(subtotal float64) Breakdown {
	sub := decimal.NewFromFloat(subtotal)
	if sub.IsNegative() {
		sub = decimal.Zero
	}

	tax := sub.Mul(r.TaxRate).Round(2)
	shipping := r.FlatShipping
	if sub.GreaterThanOrEqual(r.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	total := sub.Add(tax).Add(shipping).Round(2)

	return Breakdown{
		Subtotal: sub.InexactFloat64(),
		Tax:      tax.InexactFloat64(),
		Shipping: shipping.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

// Subtotal sums unit price times quantity without float accumulation drift.
func Subtotal(lines []Line) float64 {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(decimal.NewFromFloat(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum.Round(2).InexactFloat64()
}

type Line struct {
	UnitPrice float64
	Quantity  int
}

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

func FromMinorUnits(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}

// WithinTolerance reports whether two amounts differ by no more than tolerance.
func WithinTolerance(a, b, tolerance float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}
