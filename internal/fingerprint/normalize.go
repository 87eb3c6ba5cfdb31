package fingerprint

import (
	"sort"
	"strconv"
	"strings"
)

// NormalizeText collapses the whitespace differences that never change an
// artifact's bytes: leading/trailing space and internal runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeOptions reduces a loose option map to the canonical field list for
// hashing: only the relevant keys survive, names are trimmed and lower-cased,
// values trimmed, empty values dropped, and the result is sorted by name so
// map iteration order cannot leak into the fingerprint.
func NormalizeOptions(options map[string]string, relevant ...string) []string {
	keep := make(map[string]struct{}, len(relevant))
	for _, name := range relevant {
		keep[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	fields := make([]string, 0, len(options))
	for name, value := range options {
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		if len(keep) > 0 {
			if _, ok := keep[name]; !ok {
				continue
			}
		}
		fields = append(fields, name+"="+value)
	}
	sort.Strings(fields)
	return fields
}

// FormatSeconds renders a duration in seconds canonically (three decimals) so
// 0.5 and 0.500 key the same silence artifact.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
