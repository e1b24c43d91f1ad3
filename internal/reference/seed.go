// Package reference loads the source, disease and country tables from a YAML
// seed file.
package reference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/epiwatch/backend/internal/storage/models"
)

var ErrInvalidSeed = errors.New("invalid reference seed")

// Seed is the on-disk reference data layout.
type Seed struct {
	Sources   []SourceSeed  `yaml:"sources"`
	Diseases  []DiseaseSeed `yaml:"diseases"`
	Countries []CountrySeed `yaml:"countries"`
}

type SourceSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type DiseaseSeed struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Keywords []KeywordSeed `yaml:"keywords"`
}

type KeywordSeed struct {
	Keyword string  `yaml:"keyword"`
	Type    string  `yaml:"type"`
	Weight  float64 `yaml:"weight"`
}

type CountrySeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// Writer is the store the seed is applied to.
type Writer interface {
	UpsertSource(ctx context.Context, source models.Source) error
	UpsertDisease(ctx context.Context, disease models.Disease) error
	UpsertDiseaseKeyword(ctx context.Context, kw models.DiseaseKeyword) error
	UpsertCountry(ctx context.Context, country models.Country) error
}

type Stats struct {
	Sources   int `json:"sources"`
	Diseases  int `json:"diseases"`
	Keywords  int `json:"keywords"`
	Countries int `json:"countries"`
}

func LoadFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks required fields and fills defaults. Keywords without a
// type are "secondary" and weigh 1.0.
func (s *Seed) Validate() error {
	for i := range s.Sources {
		src := &s.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		if src.Name == "" {
			return fmt.Errorf("%w: source %d has no name", ErrInvalidSeed, i)
		}
		if src.ID == "" {
			src.ID = slug(src.Name)
		}
	}

	for i := range s.Diseases {
		d := &s.Diseases[i]
		if d.ID == "" {
			return fmt.Errorf("%w: disease %d has no id", ErrInvalidSeed, i)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		for j := range d.Keywords {
			kw := &d.Keywords[j]
			kw.Keyword = strings.TrimSpace(kw.Keyword)
			if kw.Keyword == "" {
				return fmt.Errorf("%w: disease %s keyword %d is empty", ErrInvalidSeed, d.ID, j)
			}
			if kw.Type == "" {
				kw.Type = "secondary"
			}
			if kw.Weight == 0 {
				kw.Weight = 1.0
			}
		}
	}

	for i := range s.Countries {
		c := &s.Countries[i]
		if c.Name == "" {
			return fmt.Errorf("%w: country %d has no name", ErrInvalidSeed, i)
		}
		if c.ID == "" {
			c.ID = strings.ToLower(c.Code)
		}
		if c.ID == "" {
			return fmt.Errorf("%w: country %s needs an id or code", ErrInvalidSeed, c.Name)
		}
	}

	return nil
}

// Apply upserts every row. Applying the same seed twice is a no-op.
func (s *Seed) Apply(ctx context.Context, w Writer) (Stats, error) {
	var stats Stats

	for _, src := range s.Sources {
		if err := w.UpsertSource(ctx, models.Source{ID: src.ID, Name: src.Name}); err != nil {
			return stats, fmt.Errorf("source %s: %w", src.Name, err)
		}
		stats.Sources++
	}

	for _, d := range s.Diseases {
		if err := w.UpsertDisease(ctx, models.Disease{ID: d.ID, Name: d.Name}); err != nil {
			return stats, fmt.Errorf("disease %s: %w", d.ID, err)
		}
		stats.Diseases++

		for _, kw := range d.Keywords {
			err := w.UpsertDiseaseKeyword(ctx, models.DiseaseKeyword{
				Keyword:   kw.Keyword,
				DiseaseID: d.ID,
				Weight:    kw.Weight,
				Type:      kw.Type,
			})
			if err != nil {
				return stats, fmt.Errorf("keyword %q: %w", kw.Keyword, err)
			}
			stats.Keywords++
		}
	}

	for _, c := range s.Countries {
		if err := w.UpsertCountry(ctx, models.Country{ID: c.ID, Name: c.Name, Code: strings.ToUpper(c.Code)}); err != nil {
			return stats, fmt.Errorf("country %s: %w", c.Name, err)
		}
		stats.Countries++
	}

	return stats, nil
}

func slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
