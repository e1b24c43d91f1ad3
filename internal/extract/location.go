// Package extract guesses place names from article text with a small set of
// ordered regular expressions. It is a cheap heuristic, not entity recognition.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minCandidateLength = 3

// capitalized matches one or more space-separated capitalized words.
const capitalized = `([A-Z][\p{L}'\-]*(?:[ \t]+[A-Z][\p{L}'\-]*)*)`

// Rule is one extraction pattern. Group is the submatch holding the city.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Group   int
}

// DefaultRules returns the extraction patterns in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "event-preposition",
			Pattern: regexp.MustCompile(`\b(?i:outbreak|cases|reported|detected|confirmed|spread)[ \t]+(?i:in|at|near)[ \t]+` + capitalized),
			Group:   1,
		},
		{
			Name:    "city-comma-country",
			Pattern: regexp.MustCompile(capitalized + `,[ \t]*` + capitalized),
			Group:   1,
		},
		{
			Name:    "preposition",
			Pattern: regexp.MustCompile(`\b(?i:in|at|near)[ \t]+` + capitalized),
			Group:   1,
		},
	}
}

type Extractor struct {
	rules     []Rule
	stopwords map[string]struct{}
}

func NewExtractor(stopwords []string) *Extractor {
	return NewExtractorWithRules(DefaultRules(), stopwords)
}

func NewExtractorWithRules(rules []Rule, stopwords []string) *Extractor {
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			stops[w] = struct{}{}
		}
	}
	return &Extractor{rules: rules, stopwords: stops}
}

// Extract returns the first accepted city candidate, or "" when no rule
// produces one. knownCountry may be empty.
func (e *Extractor) Extract(text, knownCountry string) string {
	city, _ := e.ExtractWithRule(text, knownCountry)
	return city
}

// ExtractWithRule is Extract plus the name of the rule that matched.
func (e *Extractor) ExtractWithRule(text, knownCountry string) (string, string) {
	for _, rule := range e.rules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			if rule.Group >= len(m) {
				continue
			}
			candidate := strings.TrimSpace(m[rule.Group])
			if e.accept(candidate, knownCountry) {
				return candidate, rule.Name
			}
		}
	}
	return "", ""
}

func (e *Extractor) accept(candidate, knownCountry string) bool {
	if utf8.RuneCountInString(candidate) < minCandidateLength {
		return false
	}
	if _, stop := e.stopwords[strings.ToLower(candidate)]; stop {
		return false
	}
	if knownCountry != "" && strings.EqualFold(candidate, strings.TrimSpace(knownCountry)) {
		return false
	}
	return true
}
