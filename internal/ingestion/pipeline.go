// Package ingestion turns batches of news articles into stored articles and
// geolocated outbreak signals.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/epiwatch/backend/internal/detect"
	"github.com/epiwatch/backend/internal/extract"
	"github.com/epiwatch/backend/internal/geocode"
	"github.com/epiwatch/backend/internal/metrics"
	"github.com/epiwatch/backend/internal/storage/models"
	"github.com/epiwatch/backend/pkg/logger"
)

// Outcome is the terminal state of one article in a batch.
type Outcome string

const (
	OutcomeDuplicate     Outcome = "rejected_duplicate"
	OutcomeUnknownSource Outcome = "rejected_unknown_source"
	OutcomeNoDisease     Outcome = "stored_no_disease"
	OutcomeNoLocation    Outcome = "stored_no_location"
	OutcomeSignaled      Outcome = "stored_signaled"
	OutcomeFailed        Outcome = "failed_persistence"
	OutcomeSkipped       Outcome = "skipped_deadline"
)

// Stored reports whether the article row was written.
func (o Outcome) Stored() bool {
	return o == OutcomeNoDisease || o == OutcomeNoLocation || o == OutcomeSignaled
}

type ReferenceStore interface {
	ListSources(ctx context.Context) ([]models.Source, error)
	ListDiseaseKeywords(ctx context.Context) ([]models.DiseaseKeyword, error)
	ListCountries(ctx context.Context) ([]models.Country, error)
}

type ArticleStore interface {
	UpsertArticle(ctx context.Context, article *models.Article) (string, error)
}

type SignalStore interface {
	InsertSignal(ctx context.Context, signal *models.OutbreakSignal) error
}

type Store interface {
	ReferenceStore
	ArticleStore
	SignalStore
}

// ArticleResult is the per-article entry of a batch response.
type ArticleResult struct {
	ArticleID string           `json:"article_id"`
	Diseases  []string         `json:"diseases"`
	Location  *models.Location `json:"location"`
	City      *string          `json:"city"`
}

// Report describes what happened to one input article, in input order.
type Report struct {
	URL     string
	Outcome Outcome
	Signals int
}

type Result struct {
	Processed int
	Articles  []ArticleResult
	Reports   []Report
	Signals   int
	Truncated bool
}

type Options struct {
	Workers   int
	Stopwords []string
	Logger    *zap.Logger
}

type Pipeline struct {
	store     Store
	geocoder  *geocode.Geocoder
	extractor *extract.Extractor
	workers   int
	logger    *zap.Logger
	now       func() time.Time
}

func NewPipeline(store Store, geocoder *geocode.Geocoder, opts Options) *Pipeline {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("ingestion")
	}
	return &Pipeline{
		store:     store,
		geocoder:  geocoder,
		extractor: extract.NewExtractor(opts.Stopwords),
		workers:   workers,
		logger:    log,
		now:       time.Now,
	}
}

// run holds the state owned by one Run call.
type run struct {
	*Pipeline
	sources   map[string]string
	index     *detect.KeywordIndex
	countries *extract.CountryFinder
	composer  *Composer
	session   *geocode.Session
}

type articleOutcome struct {
	outcome Outcome
	signals int
	result  *ArticleResult
}

// Run processes a batch. A non-nil error means reference data could not be
// loaded and nothing was written. Expiry of ctx stops the batch early; work
// already persisted is kept and reported with Truncated set.
func (p *Pipeline) Run(ctx context.Context, articles []models.RawArticle) (*Result, error) {
	start := p.now()
	metrics.BatchSize.Observe(float64(len(articles)))
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	r, err := p.newRun(ctx)
	if err != nil {
		return nil, err
	}

	guard := NewDedupGuard()
	admitted := make([]bool, len(articles))
	for i := range articles {
		admitted[i] = guard.Admit(articles[i].URL)
	}

	outcomes := make([]articleOutcome, len(articles))
	for i := range outcomes {
		if !admitted[i] {
			outcomes[i] = articleOutcome{outcome: OutcomeDuplicate}
		} else {
			outcomes[i] = articleOutcome{outcome: OutcomeSkipped}
		}
	}

	if p.workers == 1 {
		for i := range articles {
			if !admitted[i] {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = r.process(ctx, articles[i])
		}
	} else {
		var g errgroup.Group
		g.SetLimit(p.workers)
		for i := range articles {
			if !admitted[i] {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			i := i
			g.Go(func() error {
				outcomes[i] = r.process(ctx, articles[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	result := &Result{
		Articles: make([]ArticleResult, 0, len(articles)),
		Reports:  make([]Report, len(articles)),
	}
	for i, o := range outcomes {
		metrics.ArticlesProcessed.WithLabelValues(string(o.outcome)).Inc()
		result.Reports[i] = Report{URL: articles[i].URL, Outcome: o.outcome, Signals: o.signals}
		result.Signals += o.signals
		if o.outcome == OutcomeSkipped {
			result.Truncated = true
		}
		if o.result != nil {
			result.Articles = append(result.Articles, *o.result)
		}
	}
	result.Processed = len(result.Articles)

	p.logger.Info("Batch processed",
		zap.Int("submitted", len(articles)),
		zap.Int("processed", result.Processed),
		zap.Int("signals", result.Signals),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (p *Pipeline) newRun(ctx context.Context) (*run, error) {
	sources, err := p.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	keywords, err := p.store.ListDiseaseKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load disease keywords: %w", err)
	}
	countries, err := p.store.ListCountries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load countries: %w", err)
	}

	metrics.ReferenceRows.WithLabelValues("sources").Set(float64(len(sources)))
	metrics.ReferenceRows.WithLabelValues("disease_keywords").Set(float64(len(keywords)))
	metrics.ReferenceRows.WithLabelValues("countries").Set(float64(len(countries)))

	bySource := make(map[string]string, len(sources))
	for _, s := range sources {
		bySource[sourceKey(s.Name)] = s.ID
	}

	names := make([]string, 0, len(countries))
	for _, c := range countries {
		names = append(names, c.Name)
	}

	return &run{
		Pipeline:  p,
		sources:   bySource,
		index:     detect.NewKeywordIndex(keywords),
		countries: extract.NewCountryFinder(names),
		composer:  NewComposer(countries),
		session:   p.geocoder.NewSession(geocode.NewRunCache()),
	}, nil
}

func sourceKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *run) process(ctx context.Context, a models.RawArticle) (out articleOutcome) {
	log := r.logger.With(zap.String("url", a.URL))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Article processing panicked", zap.Any("panic", rec))
			out = articleOutcome{outcome: OutcomeFailed}
		}
	}()

	if ctx.Err() != nil {
		return articleOutcome{outcome: OutcomeSkipped}
	}

	sourceID, ok := r.sources[sourceKey(a.Source)]
	if !ok {
		log.Debug("Unknown source, skipping article", zap.String("source", a.Source))
		return articleOutcome{outcome: OutcomeUnknownSource}
	}

	content := cleanText(a.Content)
	diseaseIDs := detect.Detect(a.Title, content, r.index)
	labels := r.index.Labels(diseaseIDs)

	var loc *models.Location
	if len(diseaseIDs) > 0 {
		loc = r.locate(ctx, a, a.Title+" "+content)
	} else {
		loc = a.Location.Sanitize()
	}

	now := r.now().UTC()
	article := &models.Article{
		ID:                uuid.NewString(),
		SourceID:          sourceID,
		Title:             a.Title,
		Content:           content,
		URL:               strings.TrimSpace(a.URL),
		PublishedAt:       a.PublishedAt,
		LocationExtracted: loc,
		DiseasesMentioned: labels,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	articleID, err := r.store.UpsertArticle(ctx, article)
	if err != nil {
		if ctx.Err() != nil {
			return articleOutcome{outcome: OutcomeSkipped}
		}
		log.Error("Failed to persist article", zap.Error(err))
		return articleOutcome{outcome: OutcomeFailed}
	}

	stored := 0
	for _, signal := range r.composer.Compose(articleID, diseaseIDs, loc) {
		signal := signal
		if err := r.store.InsertSignal(ctx, &signal); err != nil {
			log.Warn("Failed to persist signal",
				zap.String("article_id", articleID),
				zap.String("disease_id", signal.DiseaseID),
				zap.Error(err),
			)
			continue
		}
		stored++
		metrics.SignalsCreated.WithLabelValues(string(signal.SeverityAssessment)).Inc()
		metrics.SignalConfidence.Observe(signal.ConfidenceScore)
	}

	outcome := OutcomeSignaled
	switch {
	case len(diseaseIDs) == 0:
		outcome = OutcomeNoDisease
	case !loc.HasCoordinates():
		outcome = OutcomeNoLocation
	}

	res := &ArticleResult{
		ArticleID: articleID,
		Diseases:  labels,
		Location:  loc,
	}
	if res.Location == nil {
		res.Location = a.Location
	}
	if loc != nil && loc.City != "" {
		city := loc.City
		res.City = &city
	}

	log.Debug("Article stored",
		zap.String("article_id", articleID),
		zap.String("outcome", string(outcome)),
		zap.Strings("diseases", labels),
		zap.Int("signals", stored),
	)

	return articleOutcome{outcome: outcome, signals: stored, result: res}
}

// locate merges the caller-supplied location with what the text suggests and
// geocodes the result.
func (r *run) locate(ctx context.Context, a models.RawArticle, text string) *models.Location {
	loc := a.Location.Sanitize()
	if loc == nil {
		loc = &models.Location{}
	}
	if loc.HasCoordinates() {
		return loc
	}

	// A reference country named in the text stands in for a missing caller
	// country. It narrows the query and so also changes the cache key.
	if loc.Country == "" {
		loc.Country = r.countries.Find(text)
	}
	if loc.City == "" {
		loc.City = r.extractor.Extract(text, loc.Country)
	}
	if !loc.HasPlace() {
		return nil
	}

	if res, ok := r.session.Resolve(ctx, loc.City, loc.Country); ok {
		loc.SetCoordinates(res.Lat, res.Lng)
		if loc.Country == "" && res.Country != "" {
			loc.Country = res.Country
		}
	}
	return loc
}
