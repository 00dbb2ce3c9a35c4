package version

import (
	"slices"
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"dates ordered", "2020-01-15", "2021-06-01", Less},
		{"dates reversed", "2021-06-01", "2020-01-15", Greater},
		{"same date", "2020-01-15", "2020-01-15", Equal},
		{"date vs datetime", "2020-01-15", "2020-01-15T10:00:00Z", Less},
		{"datetime with space", "2020-01-15 10:00:00", "2020-01-15 09:00:00", Greater},
		{"same instant different spelling", "2020-01-15T00:00:00", "2020-01-15", Greater},
		{"tags lexicographic", "beta", "alpha", Greater},
		{"tag below date", "v2", "2001-01-01", Less},
		{"empty below tag", "", "v1", Less},
		{"blank below date", "  ", "2020-01-01", Less},
		{"control char malformed", "2020-01-01\n", "aaa", Less},
		{"inner space malformed", "1 0", "0", Less},
		{"two malformed", "", " ", Less},
		{"invalid month is a tag", "2020-13-01", "2020-01-01", Less},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := Compare(tt.b, tt.a); got != -tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d (antisymmetry)", tt.b, tt.a, got, -tt.want)
			}
		})
	}
}

var sample = []string{
	"", " ", "\t", "2020-01-15", "2021-06-01", "2021-06-01T00:00:00Z",
	"2021-06-01 12:00:00", "2019-12-31", "v1", "v10", "v2", "beta",
	"2020-13-01", "x y", "1.0.0", "2020-01-15T00:00:00",
}

func TestCompareReflexive(t *testing.T) {
	for _, a := range sample {
		if got := Compare(a, a); got != Equal {
			t.Errorf("Compare(%q, %q) = %d, want Equal", a, a, got)
		}
	}
}

func TestCompareTransitive(t *testing.T) {
	for _, a := range sample {
		for _, b := range sample {
			for _, c := range sample {
				if Compare(a, b) <= 0 && Compare(b, c) <= 0 && Compare(a, c) > 0 {
					t.Errorf("not transitive: %q <= %q <= %q but %q > %q", a, b, c, a, c)
				}
			}
		}
	}
}

func TestMalformedNeverGreater(t *testing.T) {
	malformed := []string{"", "   ", "\x00", "a b", "2020-01-01\t"}
	wellFormed := []string{"2020-01-01", "v1", "0", "!"}
	for _, m := range malformed {
		if Valid(m) {
			t.Errorf("Valid(%q) = true, want false", m)
		}
		for _, w := range wellFormed {
			if Compare(m, w) != Less {
				t.Errorf("Compare(%q, %q) = %d, want Less", m, w, Compare(m, w))
			}
		}
	}
}

func TestMax(t *testing.T) {
	if got := Max(); got != "" {
		t.Errorf("Max() = %q, want empty", got)
	}
	got := Max("2019-01-01", "", "2020-01-15", "beta")
	if got != "2020-01-15" {
		t.Errorf("Max() = %q, want %q", got, "2020-01-15")
	}
}

func TestSortDesc(t *testing.T) {
	vs := []string{"2019-01-01", "", "2021-06-01", "tag", "2020-01-15"}
	SortDesc(vs)
	want := []string{"2021-06-01", "2020-01-15", "2019-01-01", "tag", ""}
	if !slices.Equal(vs, want) {
		t.Errorf("SortDesc() = %v, want %v", vs, want)
	}
}

func TestIsDate(t *testing.T) {
	if !IsDate("2020-01-15") {
		t.Error("IsDate(2020-01-15) = false")
	}
	if IsDate("v1") {
		t.Error("IsDate(v1) = true")
	}
}
