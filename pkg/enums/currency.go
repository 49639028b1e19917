package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code attached to variant prices.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalizes a three letter code, defaulting blanks to USD.
func ParseCurrency(value string) (Currency, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return CurrencyUSD, nil
	}
	if len(trimmed) != 3 {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	for _, r := range trimmed {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency %q", value)
		}
	}
	return Currency(trimmed), nil
}
