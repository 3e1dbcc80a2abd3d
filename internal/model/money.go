package model

import (
	"strconv"
	"strings"
)

// All monetary amounts in the engine are int64 minor currency units.
// Catalog prices arrive as whole-peso integers (e.g. 24000); the
// customer-facing label groups thousands with dots: "$ 24.000".

// FormatPrice renders an amount as the customer-facing price label.
// Examples: 24000 → "$ 24.000", 1500 → "$ 1.500", 0 → "$ 0".
func FormatPrice(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	if neg {
		return "-$ " + b.String()
	}
	return "$ " + b.String()
}

// ParseMinorUnits converts string amounts already in minor units to int64.
// Used for amounts arriving as strings (CLI flags, stored payloads).
// Handles edge cases: empty strings, decimals (truncated), junk → 0.
// Examples: "8900" → 8900, "" → 0, "100.99" → 100
func ParseMinorUnits(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// Parse as float to tolerate decimal values, then truncate
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
