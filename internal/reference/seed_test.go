package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/epiwatch/backend/internal/storage/sqlite"
)

const testSeed = `
sources:
  - name: ReutersHealth
  - id: src-who
    name: WHO Disease Outbreak News
diseases:
  - id: cholera
    name: Cholera
    keywords:
      - keyword: cholera
        type: primary
      - keyword: acute watery diarrhoea
        weight: 0.6
  - id: measles
    keywords:
      - keyword: measles
        type: primary
countries:
  - name: Yemen
    code: ye
  - id: cd
    name: Democratic Republic of the Congo
    code: CD
`

func TestParseFillsDefaults(t *testing.T) {
	seed, err := Parse([]byte(testSeed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if seed.Sources[0].ID != "reutershealth" {
		t.Errorf("source id = %q", seed.Sources[0].ID)
	}
	if seed.Diseases[1].Name != "measles" {
		t.Errorf("disease name default = %q", seed.Diseases[1].Name)
	}
	kw := seed.Diseases[0].Keywords[1]
	if kw.Type != "secondary" || kw.Weight != 0.6 {
		t.Errorf("keyword defaults %+v", kw)
	}
	if seed.Diseases[0].Keywords[0].Weight != 1.0 {
		t.Errorf("expected default weight 1.0")
	}
	if seed.Countries[0].ID != "ye" {
		t.Errorf("country id from code = %q", seed.Countries[0].ID)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []string{
		"sources:\n  - id: x\n",
		"diseases:\n  - name: Cholera\n",
		"diseases:\n  - id: c\n    keywords:\n      - type: primary\n",
		"countries:\n  - name: Nowhere\n",
	}
	for _, in := range tests {
		if _, err := Parse([]byte(in)); !errors.Is(err, ErrInvalidSeed) {
			t.Errorf("Parse(%q) err = %v, want ErrInvalidSeed", in, err)
		}
	}

	if _, err := Parse([]byte("sources: [")); err == nil {
		t.Error("expected YAML syntax error")
	}
}

func TestApplyToSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reference.yaml")
	if err := os.WriteFile(path, []byte(testSeed), 0o644); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	client, err := sqlite.NewClient(filepath.Join(dir, "ref.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}

	for i := 0; i < 2; i++ {
		stats, err := seed.Apply(ctx, client)
		if err != nil {
			t.Fatalf("Apply #%d: %v", i+1, err)
		}
		if stats != (Stats{Sources: 2, Diseases: 2, Keywords: 3, Countries: 2}) {
			t.Fatalf("unexpected stats %+v", stats)
		}
	}

	sources, err := client.ListSources(ctx)
	if err != nil || len(sources) != 2 {
		t.Fatalf("ListSources = %v, %v", sources, err)
	}
	keywords, err := client.ListDiseaseKeywords(ctx)
	if err != nil || len(keywords) != 3 {
		t.Fatalf("ListDiseaseKeywords = %v, %v", keywords, err)
	}
	countries, err := client.ListCountries(ctx)
	if err != nil || len(countries) != 2 {
		t.Fatalf("ListCountries = %v, %v", countries, err)
	}
	for _, c := range countries {
		if c.ID == "ye" && c.Code != "YE" {
			t.Errorf("expected upper-case code, got %q", c.Code)
		}
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
