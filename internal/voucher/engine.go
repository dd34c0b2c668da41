package voucher

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no voucher matches the code.
	ErrNotFound = errors.New("voucher not found")
	// ErrNotEligible is returned when no cart line falls inside the voucher scope.
	ErrNotEligible = errors.New("voucher not eligible")
	// ErrVoucherInactive is returned when attempting to use a voucher before its active window.
	ErrVoucherInactive = errors.New("voucher not active")
	// ErrVoucherExpired is returned when the voucher has already expired.
	ErrVoucherExpired = errors.New("voucher expired")
	// ErrMinimumSpendUnmet indicates the order subtotal did not meet the voucher requirement.
	ErrMinimumSpendUnmet = errors.New("voucher minimum spend not met")
)

// Kind selects how Value is interpreted.
type Kind string

const (
	// Percent discounts PercentBps basis points of the eligible subtotal.
	Percent Kind = "percent"
	// Fixed discounts Value, capped at the eligible subtotal.
	Fixed Kind = "fixed"
)

// Rule captures the runtime constraints of a voucher.
type Rule struct {
	Code       string
	Kind       Kind
	Value      decimal.Decimal
	PercentBps int32
	MinSpend   decimal.Decimal
	ValidFrom  *time.Time
	ValidTo    *time.Time
	// ProductIDs scopes the voucher; empty means the whole cart.
	ProductIDs []string
}

// Item represents a line eligible for voucher calculation.
type Item struct {
	ProductID string
	Subtotal  decimal.Decimal
}

// Validate ensures the rule can be applied at the provided instant and subtotal.
func (r Rule) Validate(now time.Time, subtotal decimal.Decimal) error {
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrVoucherInactive
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return ErrVoucherExpired
	}
	if subtotal.LessThan(r.MinSpend) {
		return ErrMinimumSpendUnmet
	}
	return nil
}

// Scoped reports whether the rule only applies to specific products.
func (r Rule) Scoped() bool {
	return len(r.ProductIDs) > 0
}

// EligibleSubtotal sums the subtotals of items the rule applies to.
func EligibleSubtotal(items []Item, r Rule) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if !it.Subtotal.IsPositive() {
			continue
		}
		if !r.Scoped() || r.covers(it.ProductID) {
			total = total.Add(it.Subtotal)
		}
	}
	return total
}

func (r Rule) covers(productID string) bool {
	for _, id := range r.ProductIDs {
		if strings.EqualFold(id, productID) {
			return true
		}
	}
	return false
}

// Compute determines the discount amount for the eligible subtotal. The result
// never exceeds eligible and is never negative.
func Compute(eligible decimal.Decimal, r Rule) decimal.Decimal {
	if !eligible.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch r.Kind {
	case Percent:
		if r.PercentBps <= 0 {
			return decimal.Zero
		}
		discount = eligible.Mul(decimal.NewFromInt32(r.PercentBps)).Div(decimal.NewFromInt(10000))
	case Fixed:
		discount = r.Value
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(eligible) {
		discount = eligible
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// Apply validates r against items at now and returns the discount.
func Apply(now time.Time, items []Item, r Rule) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Subtotal.IsPositive() {
			subtotal = subtotal.Add(it.Subtotal)
		}
	}
	if err := r.Validate(now, subtotal); err != nil {
		return decimal.Zero, err
	}
	eligible := EligibleSubtotal(items, r)
	if !eligible.IsPositive() {
		return decimal.Zero, ErrNotEligible
	}
	return Compute(eligible, r), nil
}
