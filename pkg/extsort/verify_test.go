package extsort

import (
	"strings"
	"testing"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		count        int64
		sorted       bool
		firstDescent int64
	}{
		{"empty", "", 0, true, -1},
		{"sorted", "-1 0 0 7", 4, true, -1},
		{"descent", "1 5 3 9 2", 5, false, 4},
		{"equal neighbours", "4 4 4", 3, true, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Fingerprint(strings.NewReader(tt.input), 0)
			if err != nil {
				t.Fatalf("Fingerprint: %v", err)
			}
			if p.Count != tt.count || p.Sorted != tt.sorted || p.FirstDescent != tt.firstDescent {
				t.Errorf("got %+v", p)
			}
		})
	}
}

func TestFingerprintSameValues(t *testing.T) {
	a, _ := Fingerprint(strings.NewReader("3 1 2 2"), 0)
	b, _ := Fingerprint(strings.NewReader("1\n2\n2\n3"), 0)
	c, _ := Fingerprint(strings.NewReader("1 2 3 3"), 0)

	if !a.SameValues(b) {
		t.Error("permutations should have the same values")
	}
	if a.SameValues(c) {
		t.Error("different multisets should not match")
	}
}

func TestFingerprintParseError(t *testing.T) {
	if _, err := Fingerprint(strings.NewReader("1 two 3"), 0); PhaseOf(err) != PhaseIngest {
		t.Fatalf("expected parse error, got %v", err)
	}
}
