package extract

import (
	"regexp"
	"sort"
	"strings"
)

type countryPattern struct {
	name    string
	pattern *regexp.Regexp
}

// CountryFinder spots country names from the reference snapshot in free text.
// Longer names are tried first so "Papua New Guinea" wins over "Guinea".
type CountryFinder struct {
	patterns []countryPattern
}

func NewCountryFinder(names []string) *CountryFinder {
	uniq := make(map[string]string, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		uniq[strings.ToLower(n)] = n
	}

	ordered := make([]string, 0, len(uniq))
	for _, n := range uniq {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	f := &CountryFinder{patterns: make([]countryPattern, 0, len(ordered))}
	for _, n := range ordered {
		f.patterns = append(f.patterns, countryPattern{
			name:    n,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(n) + `\b`),
		})
	}
	return f
}

// Find returns the snapshot spelling of the first country named in text.
func (f *CountryFinder) Find(text string) string {
	if f == nil {
		return ""
	}
	for _, p := range f.patterns {
		if p.pattern.MatchString(text) {
			return p.name
		}
	}
	return ""
}
