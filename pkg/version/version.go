// Package version orders module version strings.
//
// Registries publish versions as ISO-8601 dates ("2020-01-15") most of the
// time and as free-form tags otherwise. [Compare] puts every pair of strings
// into a total order so the catalog can always pick one "latest" version:
//
//   - malformed strings (empty, or containing whitespace or control
//     characters) sort below everything else
//   - well-formed tags that are not dates sort above malformed strings and
//     compare lexicographically among themselves
//   - dates sort above tags and compare chronologically; two spellings of the
//     same instant fall back to byte order so the result stays antisymmetric
//
// Comparing a date with a tag lexicographically would break transitivity, so
// the three classes are ranked instead.
package version

import (
	"slices"
	"strings"
	"time"
	"unicode"
)

// Results of [Compare].
const (
	Less    = -1
	Equal   = 0
	Greater = 1
)

type class int

const (
	classMalformed class = iota
	classTag
	classDate
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Compare returns [Less], [Equal] or [Greater] depending on whether a sorts
// before, equal to, or after b. It never panics.
func Compare(a, b string) int {
	ca, ta := classify(a)
	cb, tb := classify(b)
	if ca != cb {
		return sign(int(ca) - int(cb))
	}
	if ca == classDate {
		if c := ta.Compare(tb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// IsLess reports whether a sorts strictly before b.
func IsLess(a, b string) bool { return Compare(a, b) == Less }

// Valid reports whether v is well-formed, that is not malformed.
func Valid(v string) bool {
	c, _ := classify(v)
	return c != classMalformed
}

// IsDate reports whether v parses as an ISO-8601 date.
func IsDate(v string) bool {
	c, _ := classify(v)
	return c == classDate
}

// Max returns the greatest of vs, or "" when vs is empty.
func Max(vs ...string) string {
	if len(vs) == 0 {
		return ""
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if Compare(v, best) == Greater {
			best = v
		}
	}
	return best
}

// SortDesc sorts vs from newest to oldest in place.
func SortDesc(vs []string) {
	slices.SortStableFunc(vs, func(a, b string) int { return Compare(b, a) })
}

func classify(v string) (class, time.Time) {
	if v == "" || strings.TrimSpace(v) == "" {
		return classMalformed, time.Time{}
	}
	for _, r := range v {
		if unicode.IsControl(r) || unicode.IsSpace(r) && !isDateSeparator(v, r) {
			return classMalformed, time.Time{}
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return classDate, t
		}
	}
	if strings.ContainsFunc(v, unicode.IsSpace) {
		return classMalformed, time.Time{}
	}
	return classTag, time.Time{}
}

// isDateSeparator allows the single space of "2006-01-02 15:04:05" through
// the whitespace check; the date layouts decide whether it is really a date.
func isDateSeparator(v string, r rune) bool {
	return r == ' ' && strings.Count(v, " ") == 1 && len(v) > 10 && v[10] == ' '
}

func sign(n int) int {
	switch {
	case n < 0:
		return Less
	case n > 0:
		return Greater
	}
	return Equal
}
