package model

import (
	"testing"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		want   string
	}{
		{"zero", 0, "$ 0"},
		{"under a thousand", 900, "$ 900"},
		{"exactly a thousand", 1000, "$ 1.000"},
		{"combo price", 24000, "$ 24.000"},
		{"two groups", 123456, "$ 123.456"},
		{"three groups", 1234567, "$ 1.234.567"},
		{"negative", -2400, "-$ 2.400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatPrice(tt.amount)
			if got != tt.want {
				t.Errorf("FormatPrice(%d) = %q, want %q", tt.amount, got, tt.want)
			}
		})
	}
}

func TestParseMinorUnits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{"integer string", "8900", 8900},
		{"zero", "0", 0},
		{"empty string", "", 0},
		{"negative", "-500", -500},
		{"invalid string", "abc", 0},
		{"with decimal (truncates)", "100.99", 100},
		{"whitespace only", "   ", 0},
		{"very large", "9999999999", 9999999999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMinorUnits(tt.input)
			if got != tt.want {
				t.Errorf("ParseMinorUnits(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}
