// Package core provides money parsing and handling utilities.
//
// This file contains the amount parser used by the transaction form and the
// balance and formatting helpers used by the dashboard.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user input to a non-negative decimal with at most two
// fractional digits.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Signs,
// exponents, grouping separators and a third decimal place are rejected
// rather than coerced.
//
// Examples:
//
//	ParseAmount("45.50") -> 45.5, nil
//	ParseAmount("45,5")  -> 45.5, nil
//	ParseAmount("1.005") -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
		if fracPart == "" || len(fracPart) > 2 {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(intPart) > 10 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return decimal.Zero, ErrInvalidAmount
		}
	}

	d, err := decimal.NewFromString(intPart + "." + fracPart + "0")
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Balance is the signed sum of txs: income adds, expense subtracts.
func Balance(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		total = total.Add(t.Signed())
	}
	return total
}

// FormatAmount renders d with two decimals and a trailing euro sign,
// e.g. "45.50 €" or "-12.00 €".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}

// AmountInput renders d the way the amount field expects it back.
func AmountInput(d decimal.Decimal) string {
	return d.StringFixed(2)
}
