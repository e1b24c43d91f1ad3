package ingestion

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/epiwatch/backend/internal/storage/models"
)

const (
	CityConfidence    = 0.90
	CountryConfidence = 0.85
)

// Composer turns detected diseases plus a resolved location into signals.
type Composer struct {
	countries []models.Country
	now       func() time.Time
	newID     func(time.Time) string
}

func NewComposer(countries []models.Country) *Composer {
	ids := &idSource{entropy: ulid.Monotonic(rand.Reader, 0)}
	return &Composer{
		countries: countries,
		now:       time.Now,
		newID:     ids.next,
	}
}

// Compose emits one signal per disease, or none when loc has no coordinates.
func (c *Composer) Compose(articleID string, diseaseIDs []string, loc *models.Location) []models.OutbreakSignal {
	if len(diseaseIDs) == 0 || !loc.HasCoordinates() || !loc.HasPlace() {
		return nil
	}

	confidence := CountryConfidence
	var city *string
	if loc.City != "" {
		confidence = CityConfidence
		name := loc.City
		city = &name
	}
	countryID := c.CountryID(loc.Country)
	detectedAt := c.now().UTC()

	signals := make([]models.OutbreakSignal, 0, len(diseaseIDs))
	for _, diseaseID := range diseaseIDs {
		signals = append(signals, models.OutbreakSignal{
			ID:                 c.newID(detectedAt),
			ArticleID:          articleID,
			DiseaseID:          diseaseID,
			CountryID:          countryID,
			City:               city,
			Lat:                *loc.Lat,
			Lng:                *loc.Lng,
			ConfidenceScore:    confidence,
			CaseCountMentioned: 0,
			SeverityAssessment: models.SeverityMedium,
			IsNewOutbreak:      true,
			DetectedAt:         detectedAt,
		})
	}
	return signals
}

// CountryID returns the id of the first snapshot country whose name contains,
// or is contained in, name. Matching is case-insensitive.
func (c *Composer) CountryID(name string) *string {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for _, country := range c.countries {
		candidate := strings.ToLower(strings.TrimSpace(country.Name))
		if candidate == "" {
			continue
		}
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			id := country.ID
			return &id
		}
	}
	return nil
}

// idSource hands out time-ordered ULIDs. MonotonicEntropy is not safe for
// concurrent use.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (s *idSource) next(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}
