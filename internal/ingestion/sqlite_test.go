package ingestion

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/epiwatch/backend/internal/storage/models"
	"github.com/epiwatch/backend/internal/storage/sqlite"
)

func newSQLiteStore(t *testing.T) *sqlite.Client {
	t.Helper()

	client, err := sqlite.NewClient(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	if err := client.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	steps := []error{
		client.UpsertSource(ctx, models.Source{ID: "src-1", Name: "ReutersHealth"}),
		client.UpsertDisease(ctx, models.Disease{ID: "D", Name: "Cholera"}),
		client.UpsertDiseaseKeyword(ctx, models.DiseaseKeyword{Keyword: "cholera", DiseaseID: "D", Weight: 1, Type: models.KeywordTypePrimary}),
		client.UpsertCountry(ctx, models.Country{ID: "c-ye", Name: "Yemen", Code: "YE"}),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return client
}

// Resubmitting a URL updates the stored article. Signals stay append-only,
// so a second submission adds a second signal for the same article.
func TestReingestUpdatesArticleAndAppendsSignals(t *testing.T) {
	store := newSQLiteStore(t)
	provider := newFakeProvider()
	p := newTestPipeline(store, provider, 1)
	ctx := context.Background()

	first, err := p.Run(ctx, []models.RawArticle{hodeidahArticle("u1")})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	again := hodeidahArticle("u1")
	again.Content = "updated body"
	second, err := p.Run(ctx, []models.RawArticle{again})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	count, err := store.CountArticles(ctx)
	if err != nil {
		t.Fatalf("CountArticles: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one article row, got %d", count)
	}
	if first.Articles[0].ArticleID != second.Articles[0].ArticleID {
		t.Errorf("article id changed across submissions: %s vs %s", first.Articles[0].ArticleID, second.Articles[0].ArticleID)
	}

	stored, err := store.GetArticleByURL(ctx, "u1")
	if err != nil {
		t.Fatalf("GetArticleByURL: %v", err)
	}
	if stored.Content != "updated body" {
		t.Errorf("content not updated: %q", stored.Content)
	}

	signals, err := store.ListSignals(ctx, models.SignalFilter{ArticleID: stored.ID})
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected 2 appended signals, got %d", len(signals))
	}
	for _, s := range signals {
		if s.ConfidenceScore != CityConfidence || s.CountryID == nil || *s.CountryID != "c-ye" {
			t.Errorf("unexpected signal %+v", s)
		}
	}

	// Each Run owns its cache, so the second batch pays for its own lookup.
	if n := provider.count("Hodeidah, Yemen"); n != 2 {
		t.Errorf("expected one lookup per batch, got %d", n)
	}
}
