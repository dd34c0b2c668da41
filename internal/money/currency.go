package money

import "strings"

// Currency is an ISO 4217 code supported by the storefront.
type Currency string

// Supported currencies.
const (
	XOF Currency = "XOF"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// Default is used whenever a currency code is missing or unsupported.
const Default = XOF

// Info describes how a currency is displayed.
type Info struct {
	Code Currency `json:"code"`
	// Symbol is printed after the amount, separated by a space.
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	// Decimals is the ISO minor-unit exponent. Display is integer-only regardless.
	Decimals int32 `json:"decimals"`
}

var registry = map[Currency]Info{
	XOF: {Code: XOF, Symbol: "F CFA", Name: "Franc CFA (BCEAO)", Decimals: 0},
	USD: {Code: USD, Symbol: "$", Name: "US Dollar", Decimals: 2},
	EUR: {Code: EUR, Symbol: "€", Name: "Euro", Decimals: 2},
}

var supported = []Currency{XOF, USD, EUR}

// Supported lists the enabled currencies in display order.
func Supported() []Currency {
	out := make([]Currency, len(supported))
	copy(out, supported)
	return out
}

// Valid reports whether c is one of the supported currencies.
func (c Currency) Valid() bool {
	_, ok := registry[c]
	return ok
}

func (c Currency) String() string { return string(c) }

// Parse normalises value into a supported currency. Unknown values resolve to
// Default and ok=false.
func Parse(value string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if c.Valid() {
		return c, true
	}
	return Default, false
}

// Lookup returns display metadata for c, falling back to the default currency.
func Lookup(c Currency) Info {
	if info, ok := registry[c]; ok {
		return info
	}
	return registry[Default]
}
