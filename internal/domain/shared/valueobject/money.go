package valueobject

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// MoneyPlaces is the number of decimal places every persisted currency amount carries
const MoneyPlaces = 2

// RatioPlaces is the precision kept for non-currency ratios (CTR, ROAS, frequency)
const RatioPlaces = 4

// RoundMoney rounds x to whole cents with halves going up, so -1.235 becomes -1.23.
// NaN and infinities are treated as 0.
func RoundMoney(x float64) float64 {
	return MoneyDecimal(x).InexactFloat64()
}

// MoneyDecimal returns x rounded to cents as a decimal, the form stored in money columns
func MoneyDecimal(x float64) decimal.Decimal {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero
	}
	return RoundHalfUp(decimal.NewFromFloat(x), MoneyPlaces)
}

var half = decimal.New(5, -1)

// RoundHalfUp rounds d to places decimals with ties going toward positive infinity
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Shift(places).Add(half).Floor().Shift(-places)
}

// ParseMoney parses a numeric-like string into a rounded currency value.
// Empty or unparsable input yields def unchanged.
func ParseMoney(s string, def float64) float64 {
	d, ok := parseDecimal(s)
	if !ok {
		return def
	}
	return RoundHalfUp(d, MoneyPlaces).InexactFloat64()
}

// SumMoney adds all values exactly and rounds once at the end
func SumMoney(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return RoundHalfUp(total, MoneyPlaces).InexactFloat64()
}

// DivideMoney returns numerator/denominator rounded to cents, or 0 when the denominator is not positive
func DivideMoney(numerator, denominator float64) float64 {
	if denominator <= 0 || math.IsNaN(numerator) || math.IsInf(numerator, 0) {
		return 0
	}
	return RoundHalfUp(decimal.NewFromFloat(numerator).Div(decimal.NewFromFloat(denominator)), MoneyPlaces).
		InexactFloat64()
}

// RoundRatio rounds a dimensionless ratio to RatioPlaces
func RoundRatio(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return RoundHalfUp(decimal.NewFromFloat(x), RatioPlaces).InexactFloat64()
}

// ParseRatio parses a ratio string, returning 0 for garbage
func ParseRatio(s string) float64 {
	d, ok := parseDecimal(s)
	if !ok {
		return 0
	}
	return RoundHalfUp(d, RatioPlaces).InexactFloat64()
}

// ParseCount parses a count, rounding halves up. Garbage yields 0.
func ParseCount(s string) int64 {
	d, ok := parseDecimal(s)
	if !ok {
		return 0
	}
	return RoundHalfUp(d, 0).IntPart()
}

// RoundCount rounds a float count to the nearest integer, halves up
func RoundCount(x float64) int64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return RoundHalfUp(decimal.NewFromFloat(x), 0).IntPart()
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// NormalizeCurrency returns the upper-case ISO 4217 code, or "" when code is not a known currency
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return ""
	}
	return unit.String()
}
