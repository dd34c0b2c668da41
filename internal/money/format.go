package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// The storefront groups digits the French way. CLDR emits no-break spaces and a
// typographic minus; both are flattened so output stays plain ASCII around the digits.
var (
	grouping   = message.NewPrinter(language.French)
	normaliser = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2212", "-")
)

// Format renders amount as a whole number with space-grouped thousands followed
// by the currency symbol, e.g. "15 000 F CFA" or "55 $". Fractions are rounded
// half away from zero. Unsupported currencies use the default currency format.
func Format(amount decimal.Decimal, c Currency) string {
	info := Lookup(c)
	whole := amount.Round(0).IntPart()
	return normaliser.Replace(grouping.Sprintf("%d", whole)) + " " + info.Symbol
}

// FormatInt is a convenience wrapper for whole amounts.
func FormatInt(amount int64, c Currency) string {
	return Format(decimal.NewFromInt(amount), c)
}
