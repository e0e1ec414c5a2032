package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Plain decimals ("1234.5", ".5") or comma-grouped thousands ("1,234.5").
var amountPattern = regexp.MustCompile(`^(\d*\.?\d+|\d{1,3}(,\d{3})*(\.\d+)?)$`)

// ParseAmount parses a non-negative decimal typed by the user.
// field names the input in the returned *ValidationError.
func ParseAmount(field, input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return decimal.Zero, &ValidationError{Field: field, Input: input, Reason: "empty"}
	}
	if !amountPattern.MatchString(s) {
		return decimal.Zero, &ValidationError{Field: field, Input: input, Reason: "not a non-negative decimal"}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Input: input, Reason: err.Error()}
	}
	return d, nil
}

// PrecisionOf returns the number of decimal places written in s ("0.00010000" -> 8),
// never less than MinPrecision.
func PrecisionOf(s string) int32 {
	places := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		places = len(s) - i - 1
	}
	if places < MinPrecision {
		return MinPrecision
	}
	return int32(places)
}
