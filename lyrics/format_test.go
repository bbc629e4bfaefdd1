package lyrics

import "testing"

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms       int64
		expected string
	}{
		{0, "0:00"},
		{999, "0:00"},
		{61_000, "1:01"},
		{599_000, "9:59"},
		{3_599_999, "59:59"},
		{3_600_000, "1:00:00"},
		{3_725_000, "1:02:05"},
		{-5, "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatDuration(tt.ms); got != tt.expected {
				t.Errorf("FormatDuration(%d) = %q, expected %q", tt.ms, got, tt.expected)
			}
		})
	}
}

func TestFormatShortDuration(t *testing.T) {
	tests := []struct {
		ms       int64
		expected string
	}{
		{0, "0:00"},
		{65_000, "1:05"},
		{3_725_000, "62:05"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := FormatShortDuration(tt.ms); got != tt.expected {
				t.Errorf("FormatShortDuration(%d) = %q, expected %q", tt.ms, got, tt.expected)
			}
		})
	}
}
