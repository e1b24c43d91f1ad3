package models

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// KeywordTypePrimary marks the keyword used as a disease's display label.
const KeywordTypePrimary = "primary"

// RawArticle is one entry of an ingest batch.
type RawArticle struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	Location    *Location `json:"location,omitempty"`
}

// Location is both the optional caller-supplied location of a RawArticle
// and the ResolvedLocation produced by the pipeline.
type Location struct {
	Country string   `json:"country,omitempty"`
	City    string   `json:"city,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

func (l *Location) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lng != nil
}

func (l *Location) HasPlace() bool {
	return l != nil && (strings.TrimSpace(l.City) != "" || strings.TrimSpace(l.Country) != "")
}

// Clone returns a deep copy so the caller's input is never mutated.
func (l *Location) Clone() *Location {
	if l == nil {
		return nil
	}
	out := &Location{Country: l.Country, City: l.City}
	if l.Lat != nil {
		lat := *l.Lat
		out.Lat = &lat
	}
	if l.Lng != nil {
		lng := *l.Lng
		out.Lng = &lng
	}
	return out
}

// Sanitize drops coordinates that carry no city or country and returns nil
// for an empty location.
func (l *Location) Sanitize() *Location {
	if l == nil {
		return nil
	}
	out := l.Clone()
	out.City = strings.TrimSpace(out.City)
	out.Country = strings.TrimSpace(out.Country)
	if !out.HasPlace() || !out.HasCoordinates() {
		out.Lat, out.Lng = nil, nil
	}
	if !out.HasPlace() {
		return nil
	}
	return out
}

func (l *Location) SetCoordinates(lat, lng float64) {
	l.Lat = &lat
	l.Lng = &lng
}

type Source struct {
	ID   string
	Name string
}

type Disease struct {
	ID   string
	Name string
}

type DiseaseKeyword struct {
	Keyword   string
	DiseaseID string
	Weight    float64
	Type      string
}

type Country struct {
	ID   string
	Name string
	Code string
}

// Article is the persisted form of a RawArticle.
type Article struct {
	ID                string
	SourceID          string
	Title             string
	Content           string
	URL               string
	PublishedAt       time.Time
	LocationExtracted *Location
	DiseasesMentioned []string
	IsVerified        bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OutbreakSignal struct {
	ID                 string    `json:"id"`
	ArticleID          string    `json:"article_id"`
	DiseaseID          string    `json:"disease_id"`
	CountryID          *string   `json:"country_id"`
	City               *string   `json:"city"`
	Lat                float64   `json:"lat"`
	Lng                float64   `json:"lng"`
	ConfidenceScore    float64   `json:"confidence_score"`
	CaseCountMentioned int       `json:"case_count_mentioned"`
	SeverityAssessment Severity  `json:"severity_assessment"`
	IsNewOutbreak      bool      `json:"is_new_outbreak"`
	DetectedAt         time.Time `json:"detected_at"`
}

// SignalFilter narrows ListSignals. Zero values mean no filter.
type SignalFilter struct {
	Since     time.Time
	ArticleID string
	DiseaseID string
	CountryID string
	Limit     uint64
}
