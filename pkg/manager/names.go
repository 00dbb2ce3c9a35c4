package manager

import (
	"strings"
	"unicode"
)

// ParseNames splits module name arguments on commas and whitespace, strips
// surrounding quotes and drops empty and repeated names. Repeats are
// detected case-insensitively; the first spelling wins.
//
//	ParseNames([]string{"KJV,RST", "'NIV'"}) == []string{"KJV", "RST", "NIV"}
func ParseNames(args []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, arg := range args {
		fields := strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		for _, f := range fields {
			name := strings.Trim(f, `"'`)
			if name == "" || seen[strings.ToLower(name)] {
				continue
			}
			seen[strings.ToLower(name)] = true
			out = append(out, name)
		}
	}
	return out
}
