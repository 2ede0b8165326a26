package order

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Totals is the computed price breakdown for a draft. Total is not clamped
// at zero: a discount exceeding the subtotal surfaces as a negative total
// and the caller decides what to do with it.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// Price computes subtotal, discount and total for the given lines. It is a
// pure function of its inputs and is recomputed on every read; no pricing
// state lives anywhere else.
func Price(items []Item, discountInput string) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}

	discount := ParseDiscount(discountInput)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}
}

// ParseDiscount coerces free-form discount input to a non-negative amount.
// Non-numeric or negative input yields zero.
func ParseDiscount(input string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
