package extract

import (
	"testing"
)

var defaultStops = []string{"the", "a", "an", "outbreak", "cases", "reported", "detected", "confirmed", "spread"}

func TestExtract(t *testing.T) {
	e := NewExtractor(defaultStops)

	tests := []struct {
		name         string
		text         string
		knownCountry string
		want         string
		wantRule     string
	}{
		{
			name:     "event preposition wins",
			text:     "Cholera outbreak reported in Hodeidah, Yemen",
			want:     "Hodeidah",
			wantRule: "event-preposition",
		},
		{
			name:     "multi word city",
			text:     "New cases confirmed near Port Harcourt after flooding",
			want:     "Port Harcourt",
			wantRule: "event-preposition",
		},
		{
			name:     "comma shape",
			text:     "Health officials in the region: Goma, Congo remains on alert",
			want:     "Goma",
			wantRule: "city-comma-country",
		},
		{
			name:     "loose preposition fallback",
			text:     "Doctors working in Kinshasa say supplies are short",
			want:     "Kinshasa",
			wantRule: "preposition",
		},
		{
			name:         "known country rejected",
			text:         "Cases detected in Yemen this week",
			knownCountry: "yemen",
			want:         "",
		},
		{
			name:         "known country skipped for later candidate",
			text:         "Outbreak in Yemen spreads; clinics near Aden overwhelmed",
			knownCountry: "Yemen",
			want:         "Aden",
			wantRule:     "preposition",
		},
		{
			name: "stopword rejected",
			text: "Reported in The aftermath",
			want: "",
		},
		{
			name: "too short",
			text: "spread in Ba yesterday",
			want: "",
		},
		{
			name: "lowercase place ignored",
			text: "cases reported in the north",
			want: "",
		},
		{
			name: "nothing",
			text: "no places mentioned here",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule := e.ExtractWithRule(tt.text, tt.knownCountry)
			if got != tt.want {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
			if tt.wantRule != "" && rule != tt.wantRule {
				t.Errorf("rule = %q, want %q", rule, tt.wantRule)
			}
		})
	}
}

func TestExtractStopwordsAreConfigurable(t *testing.T) {
	text := "Outbreak spread in Region near Somewhere"

	if got := NewExtractor(defaultStops).Extract(text, ""); got != "Region" {
		t.Fatalf("expected Region with default stopwords, got %q", got)
	}
	if got := NewExtractor(append(defaultStops, "region")).Extract(text, ""); got != "Somewhere" {
		t.Fatalf("expected Somewhere once region is a stopword, got %q", got)
	}
}

func TestExtractSingleStopwordCandidate(t *testing.T) {
	e := NewExtractor(defaultStops)
	if got := e.Extract("Hospital beds near The", ""); got != "" {
		t.Fatalf("expected stopword-only candidate to be rejected, got %q", got)
	}
}

func TestCountryFinder(t *testing.T) {
	f := NewCountryFinder([]string{"Guinea", "Papua New Guinea", "Niger", "Nigeria", "Yemen", ""})

	tests := []struct {
		text string
		want string
	}{
		{"Cholera outbreak reported in Hodeidah, Yemen", "Yemen"},
		{"Measles in Papua New Guinea highlands", "Papua New Guinea"},
		{"Lassa fever in NIGERIA", "Nigeria"},
		{"Meningitis belt including Niger", "Niger"},
		{"Nothing relevant", ""},
	}

	for _, tt := range tests {
		if got := f.Find(tt.text); got != tt.want {
			t.Errorf("Find(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}

	var nilFinder *CountryFinder
	if got := nilFinder.Find("Yemen"); got != "" {
		t.Errorf("nil finder should find nothing, got %q", got)
	}
}
