// Package currency holds currency metadata, formatting and exchange-rate
// conversion. The ledger never converts: every debt record stays in the
// currency it was created in. Conversion is for display only.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ErrUnknownCurrency is returned for codes go-money doesn't know
var ErrUnknownCurrency = errors.New("unknown currency")

// supported is the list of currencies offered to users, in display order
var supported = []string{"GBP", "USD", "EUR", "INR", "JPY", "AUD", "CAD", "CHF", "CNY", "SEK", "NZD"}

// Info describes one currency
type Info struct {
	Code     string `json:"code"`
	Symbol   string `json:"symbol"`
	Fraction int    `json:"fraction"`
}

// Supported returns the currencies offered to users
func Supported() []Info {
	out := make([]Info, 0, len(supported))
	for _, code := range supported {
		if c := money.GetCurrency(code); c != nil {
			out = append(out, Info{Code: c.Code, Symbol: c.Grapheme, Fraction: c.Fraction})
		}
	}
	return out
}

// Normalize upper-cases code and checks it is a known currency
func Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return code, nil
}

// Fraction returns the number of minor-unit digits of code, e.g. 2 for GBP
// and 0 for JPY
func Fraction(code string) (int32, error) {
	c := money.GetCurrency(code)
	if c == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return int32(c.Fraction), nil
}

// Format renders amount with the currency's symbol and separators, rounded
// to its minor unit. Unknown codes fall back to "CODE 0.00".
func Format(amount decimal.Decimal, code string) string {
	c := money.GetCurrency(code)
	if c == nil {
		return code + " " + amount.StringFixed(2)
	}
	minor := amount.Shift(int32(c.Fraction)).Round(0).IntPart()
	return c.Formatter().Format(minor)
}
