package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/epiwatch/backend/internal/storage/models"
	"github.com/epiwatch/backend/pkg/logger"
)

var ErrNotFound = errors.New("not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE
	);

	CREATE TABLE IF NOT EXISTS diseases (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS disease_keywords (
		keyword TEXT NOT NULL,
		disease_id TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		type TEXT NOT NULL DEFAULT 'secondary',
		PRIMARY KEY (keyword, disease_id),
		FOREIGN KEY (disease_id) REFERENCES diseases(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_keywords_disease ON disease_keywords(disease_id);

	CREATE TABLE IF NOT EXISTS countries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT,
		url TEXT UNIQUE NOT NULL,
		published_at INTEGER,
		location_country TEXT,
		location_city TEXT,
		location_lat REAL,
		location_lng REAL,
		diseases_mentioned TEXT NOT NULL DEFAULT '[]',
		is_verified INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (source_id) REFERENCES sources(id)
	);
	CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);

	CREATE TABLE IF NOT EXISTS outbreak_signals (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		disease_id TEXT NOT NULL,
		country_id TEXT,
		city TEXT,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		confidence_score REAL NOT NULL,
		case_count_mentioned INTEGER NOT NULL DEFAULT 0,
		severity_assessment TEXT NOT NULL,
		is_new_outbreak INTEGER NOT NULL DEFAULT 1,
		detected_at INTEGER NOT NULL,
		FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_signals_article ON outbreak_signals(article_id);
	CREATE INDEX IF NOT EXISTS idx_signals_disease ON outbreak_signals(disease_id);
	CREATE INDEX IF NOT EXISTS idx_signals_detected ON outbreak_signals(detected_at);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertSource inserts a source or renames an existing one. A source whose
// name is already stored under another id keeps the stored id, since
// articles reference it.
func (c *Client) UpsertSource(ctx context.Context, source models.Source) error {
	query := `
		INSERT INTO sources (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
	`
	if _, err := c.db.ExecContext(ctx, query, source.ID, source.Name); err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

func (c *Client) UpsertDisease(ctx context.Context, disease models.Disease) error {
	query := `
		INSERT INTO diseases (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	if _, err := c.db.ExecContext(ctx, query, disease.ID, disease.Name); err != nil {
		return fmt.Errorf("failed to upsert disease: %w", err)
	}
	return nil
}

func (c *Client) UpsertDiseaseKeyword(ctx context.Context, kw models.DiseaseKeyword) error {
	query := `
		INSERT INTO disease_keywords (keyword, disease_id, weight, type) VALUES (?, ?, ?, ?)
		ON CONFLICT(keyword, disease_id) DO UPDATE SET
			weight = excluded.weight,
			type = excluded.type
	`
	if _, err := c.db.ExecContext(ctx, query, kw.Keyword, kw.DiseaseID, kw.Weight, kw.Type); err != nil {
		return fmt.Errorf("failed to upsert disease keyword: %w", err)
	}
	return nil
}

func (c *Client) UpsertCountry(ctx context.Context, country models.Country) error {
	query := `
		INSERT INTO countries (id, name, code) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, code = excluded.code
	`
	if _, err := c.db.ExecContext(ctx, query, country.ID, country.Name, country.Code); err != nil {
		return fmt.Errorf("failed to upsert country: %w", err)
	}
	return nil
}

func (c *Client) ListSources(ctx context.Context) ([]models.Source, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

func (c *Client) ListDiseaseKeywords(ctx context.Context) ([]models.DiseaseKeyword, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT keyword, disease_id, weight, type FROM disease_keywords ORDER BY disease_id, keyword`)
	if err != nil {
		return nil, fmt.Errorf("failed to list disease keywords: %w", err)
	}
	defer rows.Close()

	var keywords []models.DiseaseKeyword
	for rows.Next() {
		var k models.DiseaseKeyword
		if err := rows.Scan(&k.Keyword, &k.DiseaseID, &k.Weight, &k.Type); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		keywords = append(keywords, k)
	}

	return keywords, rows.Err()
}

func (c *Client) ListCountries(ctx context.Context) ([]models.Country, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, code FROM countries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	defer rows.Close()

	var countries []models.Country
	for rows.Next() {
		var ct models.Country
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Code); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		countries = append(countries, ct)
	}

	return countries, rows.Err()
}

// UpsertArticle inserts the article or updates the row with the same URL.
// It returns the id of the stored row, which is the existing id on conflict.
func (c *Client) UpsertArticle(ctx context.Context, article *models.Article) (string, error) {
	query := `
		INSERT INTO articles (id, source_id, title, content, url, published_at,
			location_country, location_city, location_lat, location_lng,
			diseases_mentioned, is_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			source_id = excluded.source_id,
			title = excluded.title,
			content = excluded.content,
			published_at = excluded.published_at,
			location_country = excluded.location_country,
			location_city = excluded.location_city,
			location_lat = excluded.location_lat,
			location_lng = excluded.location_lng,
			diseases_mentioned = excluded.diseases_mentioned,
			updated_at = excluded.updated_at
		RETURNING id
	`

	diseases := article.DiseasesMentioned
	if diseases == nil {
		diseases = []string{}
	}
	diseasesJSON, err := json.Marshal(diseases)
	if err != nil {
		return "", fmt.Errorf("failed to marshal diseases: %w", err)
	}

	var country, city sql.NullString
	var lat, lng sql.NullFloat64
	if loc := article.LocationExtracted; loc != nil {
		country = sql.NullString{String: loc.Country, Valid: loc.Country != ""}
		city = sql.NullString{String: loc.City, Valid: loc.City != ""}
		if loc.HasCoordinates() {
			lat = sql.NullFloat64{Float64: *loc.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: *loc.Lng, Valid: true}
		}
	}

	var id string
	err = c.db.QueryRowContext(ctx, query,
		article.ID,
		article.SourceID,
		article.Title,
		article.Content,
		article.URL,
		article.PublishedAt.Unix(),
		country,
		city,
		lat,
		lng,
		string(diseasesJSON),
		boolToInt(article.IsVerified),
		article.CreatedAt.Unix(),
		article.UpdatedAt.Unix(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert article: %w", err)
	}

	logger.Debug("Article upserted", zap.String("article_id", id), zap.String("url", article.URL))
	return id, nil
}

func (c *Client) GetArticleByURL(ctx context.Context, url string) (*models.Article, error) {
	query := `
		SELECT id, source_id, title, content, url, published_at,
			location_country, location_city, location_lat, location_lng,
			diseases_mentioned, is_verified, created_at, updated_at
		FROM articles WHERE url = ?
	`

	var (
		a                         models.Article
		content, country, city    sql.NullString
		lat, lng                  sql.NullFloat64
		diseasesJSON              string
		verified                  int
		publishedAt, created, upd int64
	)

	err := c.db.QueryRowContext(ctx, query, url).Scan(
		&a.ID, &a.SourceID, &a.Title, &content, &a.URL, &publishedAt,
		&country, &city, &lat, &lng,
		&diseasesJSON, &verified, &created, &upd,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}

	a.Content = content.String
	a.PublishedAt = time.Unix(publishedAt, 0).UTC()
	a.CreatedAt = time.Unix(created, 0).UTC()
	a.UpdatedAt = time.Unix(upd, 0).UTC()
	a.IsVerified = verified != 0
	if err := json.Unmarshal([]byte(diseasesJSON), &a.DiseasesMentioned); err != nil {
		return nil, fmt.Errorf("failed to decode diseases: %w", err)
	}

	if country.Valid || city.Valid {
		loc := &models.Location{Country: country.String, City: city.String}
		if lat.Valid && lng.Valid {
			loc.SetCoordinates(lat.Float64, lng.Float64)
		}
		a.LocationExtracted = loc
	}

	return &a, nil
}

func (c *Client) CountArticles(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return n, nil
}

func (c *Client) DeleteArticle(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return nil
}

func (c *Client) InsertSignal(ctx context.Context, signal *models.OutbreakSignal) error {
	query := `
		INSERT INTO outbreak_signals (id, article_id, disease_id, country_id, city, lat, lng,
			confidence_score, case_count_mentioned, severity_assessment, is_new_outbreak, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		signal.ID,
		signal.ArticleID,
		signal.DiseaseID,
		signal.CountryID,
		signal.City,
		signal.Lat,
		signal.Lng,
		signal.ConfidenceScore,
		signal.CaseCountMentioned,
		string(signal.SeverityAssessment),
		boolToInt(signal.IsNewOutbreak),
		signal.DetectedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	logger.Debug("Signal inserted",
		zap.String("signal_id", signal.ID),
		zap.String("article_id", signal.ArticleID),
		zap.String("disease_id", signal.DiseaseID),
	)
	return nil
}

// ListSignals returns signals newest first.
func (c *Client) ListSignals(ctx context.Context, filter models.SignalFilter) ([]models.OutbreakSignal, error) {
	q := sq.Select(
		"id", "article_id", "disease_id", "country_id", "city", "lat", "lng",
		"confidence_score", "case_count_mentioned", "severity_assessment",
		"is_new_outbreak", "detected_at",
	).From("outbreak_signals").OrderBy("detected_at DESC", "id DESC")

	if !filter.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"detected_at": filter.Since.Unix()})
	}
	if filter.ArticleID != "" {
		q = q.Where(sq.Eq{"article_id": filter.ArticleID})
	}
	if filter.DiseaseID != "" {
		q = q.Where(sq.Eq{"disease_id": filter.DiseaseID})
	}
	if filter.CountryID != "" {
		q = q.Where(sq.Eq{"country_id": filter.CountryID})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build signal query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []models.OutbreakSignal
	for rows.Next() {
		var (
			s          models.OutbreakSignal
			countryID  sql.NullString
			city       sql.NullString
			severity   string
			isNew      int
			detectedAt int64
		)
		err := rows.Scan(&s.ID, &s.ArticleID, &s.DiseaseID, &countryID, &city, &s.Lat, &s.Lng,
			&s.ConfidenceScore, &s.CaseCountMentioned, &severity, &isNew, &detectedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if countryID.Valid {
			s.CountryID = &countryID.String
		}
		if city.Valid {
			s.City = &city.String
		}
		s.SeverityAssessment = models.Severity(severity)
		s.IsNewOutbreak = isNew != 0
		s.DetectedAt = time.Unix(detectedAt, 0).UTC()
		signals = append(signals, s)
	}

	return signals, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
