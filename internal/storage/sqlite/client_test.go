package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/epiwatch/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := client.UpsertSource(ctx, models.Source{ID: "src-1", Name: "ReutersHealth"}); err != nil {
		t.Fatalf("UpsertSource: %v", err)
	}
	return client
}

func testArticle(id, url string) *models.Article {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loc := &models.Location{City: "Hodeidah", Country: "Yemen"}
	loc.SetCoordinates(14.8, 42.95)
	return &models.Article{
		ID:                id,
		SourceID:          "src-1",
		Title:             "Cholera outbreak reported in Hodeidah, Yemen",
		Content:           "body",
		URL:               url,
		PublishedAt:       now,
		LocationExtracted: loc,
		DiseasesMentioned: []string{"cholera"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestUpsertArticleIsIdempotentOnURL(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	firstID, err := client.UpsertArticle(ctx, testArticle("a-1", "u1"))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := testArticle("a-2", "u1")
	second.Title = "Updated title"
	secondID, err := client.UpsertArticle(ctx, second)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if firstID != "a-1" || secondID != "a-1" {
		t.Fatalf("expected both upserts to return a-1, got %q and %q", firstID, secondID)
	}

	n, err := client.CountArticles(ctx)
	if err != nil {
		t.Fatalf("CountArticles: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one article row, got %d", n)
	}

	stored, err := client.GetArticleByURL(ctx, "u1")
	if err != nil {
		t.Fatalf("GetArticleByURL: %v", err)
	}
	if stored.Title != "Updated title" {
		t.Errorf("expected updated title, got %q", stored.Title)
	}
	if stored.LocationExtracted == nil || !stored.LocationExtracted.HasCoordinates() {
		t.Fatalf("expected stored location with coordinates, got %+v", stored.LocationExtracted)
	}
	if *stored.LocationExtracted.Lat != 14.8 || stored.LocationExtracted.City != "Hodeidah" {
		t.Errorf("unexpected location %+v", stored.LocationExtracted)
	}
	if len(stored.DiseasesMentioned) != 1 || stored.DiseasesMentioned[0] != "cholera" {
		t.Errorf("unexpected diseases %v", stored.DiseasesMentioned)
	}
}

func TestGetArticleByURLNotFound(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.GetArticleByURL(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSignalsListAndCascade(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.UpsertArticle(ctx, testArticle("a-1", "u1")); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}

	country := "ye"
	city := "Hodeidah"
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	signals := []models.OutbreakSignal{
		{ID: "s-1", ArticleID: "a-1", DiseaseID: "cholera", CountryID: &country, City: &city, Lat: 14.8, Lng: 42.95,
			ConfidenceScore: 0.9, SeverityAssessment: models.SeverityMedium, IsNewOutbreak: true, DetectedAt: base},
		{ID: "s-2", ArticleID: "a-1", DiseaseID: "measles", Lat: 14.8, Lng: 42.95,
			ConfidenceScore: 0.85, SeverityAssessment: models.SeverityMedium, IsNewOutbreak: true, DetectedAt: base.Add(time.Hour)},
	}
	for i := range signals {
		if err := client.InsertSignal(ctx, &signals[i]); err != nil {
			t.Fatalf("InsertSignal: %v", err)
		}
	}

	all, err := client.ListSignals(ctx, models.SignalFilter{})
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(all) != 2 || all[0].ID != "s-2" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[1].CountryID == nil || *all[1].CountryID != "ye" || !all[1].IsNewOutbreak {
		t.Errorf("unexpected decoded signal %+v", all[1])
	}
	if all[0].CountryID != nil || all[0].City != nil {
		t.Errorf("expected null country/city, got %+v", all[0])
	}

	filtered, err := client.ListSignals(ctx, models.SignalFilter{DiseaseID: "cholera", Since: base.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("ListSignals filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "s-1" {
		t.Fatalf("unexpected filtered result %+v", filtered)
	}

	if err := client.DeleteArticle(ctx, "a-1"); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	remaining, err := client.ListSignals(ctx, models.SignalFilter{})
	if err != nil {
		t.Fatalf("ListSignals after delete: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected signals to cascade, %d remain", len(remaining))
	}
}

func TestInsertSignalRejectsUnknownArticle(t *testing.T) {
	client := newTestClient(t)
	err := client.InsertSignal(context.Background(), &models.OutbreakSignal{
		ID: "s-x", ArticleID: "missing", DiseaseID: "cholera", Lat: 1, Lng: 1,
		ConfidenceScore: 0.9, SeverityAssessment: models.SeverityMedium, DetectedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestReferenceRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if err := client.UpsertDisease(ctx, models.Disease{ID: "cholera", Name: "Cholera"}); err != nil {
		t.Fatalf("UpsertDisease: %v", err)
	}
	if err := client.UpsertDiseaseKeyword(ctx, models.DiseaseKeyword{Keyword: "cholera", DiseaseID: "cholera", Weight: 1, Type: models.KeywordTypePrimary}); err != nil {
		t.Fatalf("UpsertDiseaseKeyword: %v", err)
	}
	if err := client.UpsertCountry(ctx, models.Country{ID: "ye", Name: "Yemen", Code: "YE"}); err != nil {
		t.Fatalf("UpsertCountry: %v", err)
	}

	keywords, err := client.ListDiseaseKeywords(ctx)
	if err != nil || len(keywords) != 1 || keywords[0].Type != models.KeywordTypePrimary {
		t.Fatalf("ListDiseaseKeywords = %+v, %v", keywords, err)
	}
	countries, err := client.ListCountries(ctx)
	if err != nil || len(countries) != 1 || countries[0].Code != "YE" {
		t.Fatalf("ListCountries = %+v, %v", countries, err)
	}
	sources, err := client.ListSources(ctx)
	if err != nil || len(sources) != 1 || sources[0].Name != "ReutersHealth" {
		t.Fatalf("ListSources = %+v, %v", sources, err)
	}
}

func TestUpsertSourceSameNameNewID(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, err := client.UpsertArticle(ctx, testArticle("a-1", "u1")); err != nil {
		t.Fatalf("UpsertArticle: %v", err)
	}
	if err := client.UpsertSource(ctx, models.Source{ID: "reuters", Name: "reutershealth"}); err != nil {
		t.Fatalf("UpsertSource with a changed id: %v", err)
	}

	sources, err := client.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != "src-1" || sources[0].Name != "reutershealth" {
		t.Fatalf("ListSources = %+v", sources)
	}

	if err := client.UpsertSource(ctx, models.Source{ID: "src-1", Name: "ReutersHealth"}); err != nil {
		t.Fatalf("UpsertSource rename: %v", err)
	}
	sources, _ = client.ListSources(ctx)
	if len(sources) != 1 || sources[0].Name != "ReutersHealth" {
		t.Errorf("ListSources after rename = %+v", sources)
	}
}
