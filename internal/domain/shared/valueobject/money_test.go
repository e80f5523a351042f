package valueobject

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundMoney(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"already rounded", 12.34, 12.34},
		{"rounds half up at the cent", 12.345, 12.35},
		{"rounds down below half", 12.344, 12.34},
		{"whole number", 50, 50},
		{"negative", -3.456, -3.46},
		{"negative half goes up", -1.235, -1.23},
		{"negative half cent to zero", -0.005, 0},
		{"negative below half", -1.236, -1.24},
		{"tiny value", 0.004, 0},
		{"NaN is zero", math.NaN(), 0},
		{"positive infinity is zero", math.Inf(1), 0},
		{"negative infinity is zero", math.Inf(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoundMoney(tt.input))
		})
	}
}

func TestRoundMoney_Idempotent(t *testing.T) {
	inputs := []float64{0, 0.1, 0.005, 1.005, 12.345, 99.999, 150.004, 1234567.891, -0.015}
	for _, x := range inputs {
		once := RoundMoney(x)
		assert.Equal(t, once, RoundMoney(once), "input %v", x)
	}
}

func TestRoundMoney_TwoDecimalPlaces(t *testing.T) {
	inputs := []float64{0.1, 1.23456, 99.999, 150.004, 7.777777}
	for _, x := range inputs {
		d := MoneyDecimal(x)
		assert.LessOrEqual(t, -d.Exponent(), int32(MoneyPlaces), "input %v", x)
		assert.True(t, d.Equal(d.Round(MoneyPlaces)), "input %v", x)
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		def      float64
		expected float64
	}{
		{"rounds half up", "12.345", 0, 12.35},
		{"unparsable returns default", "abc", 5, 5},
		{"empty returns default", "", 7, 7},
		{"whitespace trimmed", "  3.10 ", 0, 3.1},
		{"integer string", "50", 0, 50},
		{"many decimals", "150.004", 0, 150},
		{"negative half goes up", "-1.235", 0, -1.23},
		{"negative past half", "-1.2351", 0, -1.24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseMoney(tt.input, tt.def))
		})
	}
}

func TestSumMoney(t *testing.T) {
	t.Run("rounds once at the end", func(t *testing.T) {
		// Rounding each term first would give 0.00 + 0.00 + 0.00 = 0.00
		assert.Equal(t, 0.01, SumMoney(0.004, 0.004, 0.004))
	})

	t.Run("avoids float drift", func(t *testing.T) {
		assert.Equal(t, 0.3, SumMoney(0.1, 0.2))
	})

	t.Run("ignores NaN terms", func(t *testing.T) {
		assert.Equal(t, 10.5, SumMoney(10, math.NaN(), 0.5))
	})

	t.Run("empty sum is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, SumMoney())
	})
}

func TestDivideMoney(t *testing.T) {
	assert.Equal(t, 16.67, DivideMoney(50, 3))
	assert.Equal(t, 0.0, DivideMoney(50, 0))
	assert.Equal(t, 0.0, DivideMoney(50, -1))
	assert.Equal(t, -0.12, DivideMoney(-0.25, 2))
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"3", 3},
		{"2.5", 3},
		{"2.4", 2},
		{"-2.5", -2},
		{"-2.6", -3},
		{"1e3", 1000},
		{"", 0},
		{"n/a", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCount(tt.input))
		})
	}
}

func TestRoundCount(t *testing.T) {
	assert.Equal(t, int64(3), RoundCount(2.5))
	assert.Equal(t, int64(-2), RoundCount(-2.5))
	assert.Equal(t, int64(-3), RoundCount(-2.51))
	assert.Equal(t, int64(0), RoundCount(-0.5))
	assert.Equal(t, int64(0), RoundCount(math.Inf(1)))
}

func TestRoundRatio(t *testing.T) {
	assert.Equal(t, 1.2346, RoundRatio(1.23456))
	assert.Equal(t, -0.1234, RoundRatio(-0.12345))
	assert.Equal(t, 0.0, RoundRatio(math.NaN()))
	assert.Equal(t, 2.5, ParseRatio("2.5"))
	assert.Equal(t, 0.0, ParseRatio("x"))
}

func TestMoneyDecimal(t *testing.T) {
	assert.True(t, MoneyDecimal(150.004).Equal(decimal.RequireFromString("150.00")))
	assert.True(t, MoneyDecimal(math.NaN()).IsZero())
}

func TestNormalizeCurrency(t *testing.T) {
	assert.Equal(t, "USD", NormalizeCurrency("usd"))
	assert.Equal(t, "EUR", NormalizeCurrency(" EUR "))
	assert.Equal(t, "", NormalizeCurrency("XYZQ"))
	assert.Equal(t, "", NormalizeCurrency(""))
}
