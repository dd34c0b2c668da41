package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/money"
)

// Line describes a cart line used for pricing calculation.
type Line struct {
	// Price is the product price before variant adjustments.
	Price decimal.Decimal
	// Modifier is the selected variant's price adjustment.
	Modifier decimal.Decimal
	// OriginalPrice is the compare-at price, if any.
	OriginalPrice *decimal.Decimal
	Quantity      int
}

// UnitPrice is the price charged for one unit of the line.
func (l Line) UnitPrice() decimal.Decimal {
	return l.Price.Add(l.Modifier)
}

// Total is the line amount before any discount.
func (l Line) Total() decimal.Decimal {
	if l.Quantity <= 0 {
		return decimal.Zero
	}
	return l.UnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Savings is the compare-at discount of the line, zero unless OriginalPrice exceeds Price.
func (l Line) Savings() decimal.Decimal {
	if l.Quantity <= 0 || l.OriginalPrice == nil || !l.OriginalPrice.GreaterThan(l.Price) {
		return decimal.Zero
	}
	return l.OriginalPrice.Sub(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Adjustments are the order-level inputs layered on top of the lines.
type Adjustments struct {
	// Voucher is an extra order discount, capped at the discounted subtotal.
	Voucher decimal.Decimal
	Tax     decimal.Decimal
	// TaxIncluded marks Tax as already embedded in the prices; it is reported
	// but not added to the total.
	TaxIncluded bool
	Shipping    decimal.Decimal
}

// Summary aggregates computed pricing components in one currency.
type Summary struct {
	Currency money.Currency  `json:"currency"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// DiscountedSubtotal is the subtotal after discounts, before tax and shipping. Never negative.
func (s Summary) DiscountedSubtotal() decimal.Decimal {
	return nonNegative(s.Subtotal.Sub(s.Discount))
}

// Equal reports whether both summaries carry the same amounts and currency.
func (s Summary) Equal(o Summary) bool {
	return s.Currency == o.Currency &&
		s.Subtotal.Equal(o.Subtotal) &&
		s.Discount.Equal(o.Discount) &&
		s.Tax.Equal(o.Tax) &&
		s.Shipping.Equal(o.Shipping) &&
		s.Total.Equal(o.Total)
}

// Compute calculates order totals for lines in currency. Amounts are relabelled,
// not converted: prices are already expressed in the display currency.
func Compute(lines []Line, currency money.Currency, adj Adjustments) Summary {
	subtotal := decimal.Zero
	discount := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
		discount = discount.Add(l.Savings())
	}
	voucher := nonNegative(adj.Voucher)
	if remaining := nonNegative(subtotal.Sub(discount)); voucher.GreaterThan(remaining) {
		voucher = remaining
	}
	discount = discount.Add(voucher)

	tax := nonNegative(adj.Tax)
	shipping := nonNegative(adj.Shipping)
	total := subtotal.Sub(discount).Add(shipping)
	if !adj.TaxIncluded {
		total = total.Add(tax)
	}
	return Summary{
		Currency: currency,
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
