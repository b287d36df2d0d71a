package engine

import "testing"

func TestFormatSats(t *testing.T) {
	tests := []struct {
		millisats int64
		want      string
	}{
		{0, "0 sats"},
		{999, "0 sats"},
		{1_000, "1 sats"},
		{999_999, "999 sats"},
		{1_000_000, "1.0k sats"},
		{1_500_000, "1.5k sats"},
		// exact decimal halves round away from zero
		{1_150_000, "1.2k sats"},
		{2_345_000_000, "2.35M sats"},
		{1_005_000_000, "1.01M sats"},
		{150_000_000, "150.0k sats"},
		{999_999_999, "1000.0k sats"},
		{1_000_000_000, "1.00M sats"},
		{2_345_678_000, "2.35M sats"},
		{99_999_999_999, "100.00M sats"},
		{100_000_000_000, "1.00 BTC"},
		{250_000_000_000, "2.50 BTC"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatSats(tt.millisats); got != tt.want {
				t.Errorf("FormatSats(%d) = %q, want %q", tt.millisats, got, tt.want)
			}
		})
	}
}
