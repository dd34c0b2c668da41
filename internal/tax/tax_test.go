package tax_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/tax"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateExclusive(t *testing.T) {
	settings := &tax.Settings{Rate: dec("0.18"), Mode: tax.Exclusive}
	for _, amount := range []string{"0.5", "1000", "15000", "123456.78"} {
		got := tax.Calculate(dec(amount), money.XOF, settings)
		require.True(t, got.Equal(dec(amount).Mul(dec("0.18"))), "amount %s: got %s", amount, got)
	}
}

func TestCalculateInclusiveRoundTrip(t *testing.T) {
	settings := &tax.Settings{Rate: dec("0.18"), Mode: tax.Inclusive}
	for _, amount := range []string{"1", "1180", "15000", "99999.99"} {
		a := dec(amount)
		got := tax.Calculate(a, money.XOF, settings)
		expected := a.Div(dec("1.18"))
		require.True(t, a.Sub(got).Sub(expected).Abs().LessThan(dec("0.000001")), "amount %s: got %s", amount, got)
	}
	require.True(t, tax.Calculate(dec("1180"), money.XOF, settings).Equal(dec("180")))
}

func TestCalculateFailOpen(t *testing.T) {
	for _, cur := range []money.Currency{money.XOF, money.USD, money.EUR, "GBP"} {
		require.True(t, tax.Calculate(dec("5000"), cur, nil).IsZero())
	}
	settings := &tax.Settings{Rate: dec("0.2"), Mode: tax.Exclusive}
	require.True(t, tax.Calculate(dec("-100"), money.EUR, settings).IsZero())
	require.True(t, tax.Calculate(dec("100"), money.EUR, &tax.Settings{Rate: dec("0.2")}).IsZero(), "unknown mode")
}

func TestCalculateCurrencyOverride(t *testing.T) {
	settings := &tax.Settings{
		Rate:              dec("0.18"),
		Mode:              tax.Exclusive,
		CurrencyOverrides: map[money.Currency]decimal.Decimal{money.USD: dec("0.07")},
	}
	require.True(t, tax.Calculate(dec("100"), money.USD, settings).Equal(dec("7")))
	require.True(t, tax.Calculate(dec("100"), money.EUR, settings).Equal(dec("18")))
}

func TestParseSettings(t *testing.T) {
	s, err := tax.ParseSettings("0.18", "Inclusive", "usd:0.07, EUR:0.2")
	require.NoError(t, err)
	require.Equal(t, tax.Inclusive, s.Mode)
	require.True(t, s.RateFor(money.USD).Equal(dec("0.07")))
	require.True(t, s.RateFor(money.EUR).Equal(dec("0.2")))
	require.True(t, s.RateFor(money.XOF).Equal(dec("0.18")))

	none, err := tax.ParseSettings("", "exclusive", "")
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = tax.ParseSettings("0.1", "sometimes", "")
	require.ErrorIs(t, err, tax.ErrInvalidSettings)
	_, err = tax.ParseSettings("-0.1", "", "")
	require.ErrorIs(t, err, tax.ErrInvalidSettings)
	_, err = tax.ParseSettings("0.1", "", "GBP:0.2")
	require.ErrorIs(t, err, tax.ErrInvalidSettings)
}

func TestSettingsJSON(t *testing.T) {
	var s tax.Settings
	require.NoError(t, json.Unmarshal([]byte(`{"rate":0.18,"mode":"exclusive","currencyOverrides":{"USD":0.07}}`), &s))
	require.Equal(t, tax.Exclusive, s.Mode)
	require.True(t, s.RateFor(money.USD).Equal(dec("0.07")))

	out, err := json.Marshal(tax.Settings{Rate: dec("0.2"), Mode: tax.Inclusive})
	require.NoError(t, err)
	require.JSONEq(t, `{"rate":"0.2","mode":"inclusive"}`, string(out))

	require.Error(t, json.Unmarshal([]byte(`{"rate":0.18,"mode":"sometimes"}`), &s))
}
