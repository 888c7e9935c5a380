package media

import "testing"

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		rate string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := parseFrameRate(tt.rate); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestLastLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"one\ntwo\nthree\n", "three"},
		{"only", "only"},
		{"", ""},
		{"trailing spaces   \n", "trailing spaces"},
	}

	for _, tt := range tests {
		if got := lastLine(tt.in); got != tt.want {
			t.Errorf("lastLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
