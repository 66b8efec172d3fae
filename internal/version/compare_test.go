package version

import (
	"errors"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"1.25.3", "1.25.3", 0},
		{"1.25.3", "1.25.4", -1},
		{"1.25.4", "1.25.3", 1},
		{"1.25", "1.25.0", 0},
		{"1.9.0", "1.10.0", -1},
		{"18.2.0", "18.3.0", -1},
		{"v2.0.0", "2.0.0", 0},
		{"2.0.0-rc.1", "2.0.0", -1},
	}

	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil {
			t.Errorf("Compare(%q, %q) unexpected error: %v", tt.a, tt.b, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestCompareInvalid(t *testing.T) {
	for _, input := range []string{"", "invalid", "1.x.3", "   "} {
		if _, err := Compare(input, "1.0.0"); !errors.Is(err, ErrInvalid) {
			t.Errorf("Compare(%q) error = %v, want ErrInvalid", input, err)
		}
		if _, err := Compare("1.0.0", input); !errors.Is(err, ErrInvalid) {
			t.Errorf("Compare(bound %q) error = %v, want ErrInvalid", input, err)
		}
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		v        string
		op       Operator
		bound    string
		expected bool
	}{
		{"1.25.0", GreaterOrEqual, "1.25.0", true},
		{"1.25.0", Greater, "1.25.0", false},
		{"1.25.1", Greater, "1.25.0", true},
		{"1.25.4", LessOrEqual, "1.25.4", true},
		{"1.25.4", Less, "1.25.4", false},
		{"1.25.3", Less, "1.25.4", true},
		{"invalid", GreaterOrEqual, "1.0.0", false},
		{"1.0.0", Less, "not-a-version", false},
		{"1.0.0", Operator("=="), "1.0.0", false},
	}

	for _, tt := range tests {
		if got := Satisfies(tt.v, tt.op, tt.bound); got != tt.expected {
			t.Errorf("Satisfies(%q %s %q) = %v, want %v", tt.v, tt.op, tt.bound, got, tt.expected)
		}
	}
}
