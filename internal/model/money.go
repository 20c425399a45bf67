package model

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a raw JSON price (number or numeric string) to an exact decimal.
// Catalogs are hand-edited, so anything unparseable or negative becomes zero
// rather than failing the whole document.
// Examples: 20 → 20, "19.99" → 19.99, "abc" → 0, -5 → 0
func ParsePrice(raw json.RawMessage) decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Zero
	}
	// Strings arrive quoted
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return decimal.Zero
		}
		s = strings.TrimSpace(unquoted)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// FormatMoney renders an amount for display, rounded to cents.
// Rounding happens here only; totals stay exact internally.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// JSONAmount renders an exact decimal as a JSON number for wire payloads.
func JSONAmount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
