package tax

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/money"
)

// ErrInvalidSettings is returned for settings that cannot be applied.
var ErrInvalidSettings = errors.New("tax: invalid settings")

// Mode states whether prices already contain tax.
type Mode int

const (
	// Exclusive adds tax on top of the amount.
	Exclusive Mode = iota + 1
	// Inclusive treats tax as embedded in the amount.
	Inclusive
)

func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Inclusive:
		return "inclusive"
	default:
		return "unknown"
	}
}

// ParseMode accepts "inclusive" or "exclusive", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exclusive":
		return Exclusive, nil
	case "inclusive":
		return Inclusive, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidSettings, s)
	}
}

// MarshalJSON implements json.Marshaler.
func (m Mode) MarshalJSON() ([]byte, error) {
	if m != Exclusive && m != Inclusive {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidSettings, int(m))
	}
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Settings is the storefront tax configuration.
type Settings struct {
	Rate              decimal.Decimal                    `json:"rate"`
	Mode              Mode                               `json:"mode"`
	CurrencyOverrides map[money.Currency]decimal.Decimal `json:"currencyOverrides,omitempty"`
}

// Validate rejects negative rates and unknown modes.
func (s *Settings) Validate() error {
	if s == nil {
		return nil
	}
	if s.Mode != Exclusive && s.Mode != Inclusive {
		return fmt.Errorf("%w: mode is required", ErrInvalidSettings)
	}
	if s.Rate.IsNegative() {
		return fmt.Errorf("%w: negative rate %s", ErrInvalidSettings, s.Rate)
	}
	for cur, rate := range s.CurrencyOverrides {
		if rate.IsNegative() {
			return fmt.Errorf("%w: negative rate %s for %s", ErrInvalidSettings, rate, cur)
		}
	}
	return nil
}

// RateFor returns the override rate of currency, or the default rate.
func (s *Settings) RateFor(currency money.Currency) decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	if rate, ok := s.CurrencyOverrides[currency]; ok {
		return rate
	}
	return s.Rate
}

// Calculate returns the tax carried by amount in currency. Exclusive mode
// yields amount × rate; inclusive mode yields the portion already embedded,
// amount − amount/(1+rate), which callers must not add to the total again.
// Nil settings yield zero so a missing configuration never blocks checkout.
func Calculate(amount decimal.Decimal, currency money.Currency, settings *Settings) decimal.Decimal {
	if settings == nil || !amount.IsPositive() {
		return decimal.Zero
	}
	rate := settings.RateFor(currency)
	if !rate.IsPositive() {
		return decimal.Zero
	}
	switch settings.Mode {
	case Exclusive:
		return amount.Mul(rate)
	case Inclusive:
		return amount.Sub(amount.Div(decimal.NewFromInt(1).Add(rate)))
	default:
		return decimal.Zero
	}
}

// ParseSettings builds settings from configuration values. overrides is a
// comma-separated list such as "USD:0.07,EUR:0.2". An empty rate yields nil
// settings, meaning no tax is configured.
func ParseSettings(rate, mode, overrides string) (*Settings, error) {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return nil, nil
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("%w: rate %q", ErrInvalidSettings, rate)
	}
	if strings.TrimSpace(mode) == "" {
		mode = Exclusive.String()
	}
	m, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	s := &Settings{Rate: r, Mode: m}
	for _, part := range strings.Split(overrides, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: override %q", ErrInvalidSettings, part)
		}
		cur := money.Currency(strings.ToUpper(strings.TrimSpace(code)))
		if !cur.Valid() {
			return nil, fmt.Errorf("%w: unsupported currency %q", ErrInvalidSettings, code)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: override rate %q", ErrInvalidSettings, value)
		}
		if s.CurrencyOverrides == nil {
			s.CurrencyOverrides = make(map[money.Currency]decimal.Decimal)
		}
		s.CurrencyOverrides[cur] = v
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
