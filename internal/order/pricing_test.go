package order

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPriceBreakdown(t *testing.T) {
	items := []Item{
		{MedicationID: 1, Quantity: 2, UnitPrice: dec("5.00")},
		{MedicationID: 2, Quantity: 2, UnitPrice: dec("6.50")},
	}

	got := Price(items, "5")

	if !got.Subtotal.Equal(dec("23")) {
		t.Errorf("subtotal = %s, want 23", got.Subtotal)
	}
	if !got.Discount.Equal(dec("5")) {
		t.Errorf("discount = %s, want 5", got.Discount)
	}
	if !got.Total.Equal(dec("18")) {
		t.Errorf("total = %s, want 18", got.Total)
	}
}

func TestPriceOrderIndependent(t *testing.T) {
	a := []Item{
		{Quantity: 1, UnitPrice: dec("1.10")},
		{Quantity: 3, UnitPrice: dec("2.20")},
		{Quantity: 2, UnitPrice: dec("0.35")},
	}
	b := []Item{a[2], a[0], a[1]}

	if !Price(a, "1.00").Total.Equal(Price(b, "1.00").Total) {
		t.Error("total must not depend on line order")
	}
}

func TestPriceEmptyLedger(t *testing.T) {
	got := Price(nil, "")
	if !got.Subtotal.IsZero() || !got.Total.IsZero() {
		t.Errorf("empty ledger must price to zero, got %s / %s", got.Subtotal, got.Total)
	}
}

func TestPriceNegativeTotalSurfaced(t *testing.T) {
	items := []Item{{Quantity: 1, UnitPrice: dec("3.00")}}

	got := Price(items, "10")
	if !got.Total.Equal(dec("-7")) {
		t.Errorf("total = %s, want -7; an excess discount must surface, not clamp", got.Total)
	}
}

func TestParseDiscount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5", "5"},
		{" 12.50 ", "12.5"},
		{"0", "0"},
		{"", "0"},
		{"abc", "0"},
		{"-3", "0"},
		{"1e2", "100"},
	}
	for _, c := range cases {
		if got := ParseDiscount(c.in); !got.Equal(dec(c.want)) {
			t.Errorf("ParseDiscount(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestPriceRecomputedFromInputs(t *testing.T) {
	items := []Item{{Quantity: 2, UnitPrice: dec("4.00")}}

	first := Price(items, "2")
	second := Price(items[:1], "3")

	if !first.Total.Equal(dec("6")) {
		t.Errorf("first total = %s, want 6", first.Total)
	}
	if !second.Total.Equal(dec("5")) {
		t.Errorf("second total = %s, want 5; pricing must carry no state", second.Total)
	}
}
