// Package geocode resolves place names to coordinates through an external
// provider, with a run-scoped cache in front of every network call.
package geocode

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/epiwatch/backend/internal/metrics"
	"github.com/epiwatch/backend/pkg/circuitbreaker"
	"github.com/epiwatch/backend/pkg/retry"
)

// Result is a resolved coordinate pair. Country is the country name reported
// by the provider, empty when it did not report one.
type Result struct {
	Lat     float64
	Lng     float64
	Country string
}

type Options struct {
	Shared  SharedCache
	Retry   retry.Config
	Breaker *circuitbreaker.CircuitBreaker
	Logger  *zap.Logger
}

// Geocoder holds the long-lived provider plumbing. Per-batch state lives in
// a Session.
type Geocoder struct {
	provider Provider
	shared   SharedCache
	retryCfg retry.Config
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func New(provider Provider, opts Options) *Geocoder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// One provider call per key per run unless retries are asked for.
	retryCfg := opts.Retry
	if retryCfg.MaxAttempts < 1 {
		retryCfg.MaxAttempts = 1
	}
	if retryCfg.Logger == nil {
		retryCfg.Logger = logger
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = NewBreaker(5, 30*time.Second, logger)
	}

	return &Geocoder{
		provider: provider,
		shared:   opts.Shared,
		retryCfg: retryCfg,
		breaker:  breaker,
		logger:   logger,
	}
}

// NewBreaker builds the circuit breaker used around the provider. Empty
// result sets are not provider failures.
func NewBreaker(failureThreshold uint32, openTimeout time.Duration, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker("geocoder", circuitbreaker.Config{
		MaxRequests:      1,
		Timeout:          openTimeout,
		FailureThreshold: failureThreshold,
		SuccessThreshold: 1,
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, ErrNoResults) {
				return true
			}
			var se *StatusError
			return errors.As(err, &se) && !se.Retryable()
		},
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger,
	})
}

// NewSession starts a lookup session backed by cache. The session must not
// outlive the pipeline run that owns cache.
func (g *Geocoder) NewSession(cache Cache) *Session {
	if cache == nil {
		cache = NewRunCache()
	}
	return &Session{geocoder: g, cache: cache}
}

// Session resolves places for one pipeline run. Concurrent lookups of the
// same key share a single provider call.
type Session struct {
	geocoder *Geocoder
	cache    Cache
	group    singleflight.Group
}

// Resolve returns the coordinates for city and/or country. The second return
// is false when the place could not be resolved; that outcome is cached too.
func (s *Session) Resolve(ctx context.Context, city, country string) (Result, bool) {
	city = strings.TrimSpace(city)
	country = strings.TrimSpace(country)
	if city == "" && country == "" {
		return Result{}, false
	}

	key := CacheKey(city, country)
	if e, ok := s.cache.Get(key); ok {
		metrics.GeoCacheHits.WithLabelValues("run").Inc()
		return e.result()
	}

	v, _, _ := s.group.Do(key, func() (interface{}, error) {
		if e, ok := s.cache.Get(key); ok {
			return e, nil
		}
		metrics.GeoCacheMisses.WithLabelValues("run").Inc()

		e, cacheable := s.geocoder.lookup(ctx, key, Query(city, country))
		if cacheable {
			s.cache.Set(key, e)
		}
		return e, nil
	})

	return v.(Entry).result()
}

func (e Entry) result() (Result, bool) {
	if !e.Found {
		return Result{}, false
	}
	return Result{Lat: e.Lat, Lng: e.Lng, Country: e.Country}, true
}

// lookup consults the shared cache and then the provider. The bool is false
// only when the caller's context ended, so the outcome says nothing about
// the place itself.
func (g *Geocoder) lookup(ctx context.Context, key, query string) (Entry, bool) {
	if g.shared != nil {
		e, ok, err := g.shared.Get(ctx, key)
		switch {
		case err != nil:
			g.logger.Warn("Shared geocode cache read failed", zap.String("key", key), zap.Error(err))
		case ok:
			metrics.GeoCacheHits.WithLabelValues("shared").Inc()
			return e, true
		default:
			metrics.GeoCacheMisses.WithLabelValues("shared").Inc()
		}
	}

	start := time.Now()
	place, err := g.search(ctx, query)
	metrics.GeocodeDuration.Observe(time.Since(start).Seconds())

	if err != nil && ctx.Err() != nil {
		metrics.GeocodeRequests.WithLabelValues("cancelled").Inc()
		return Entry{}, false
	}

	var entry Entry
	definitive := true
	switch {
	case err == nil:
		metrics.GeocodeRequests.WithLabelValues("success").Inc()
		entry = Entry{Found: true, Lat: place.Lat, Lng: place.Lng, Country: place.Country}
		g.logger.Debug("Geocoded place",
			zap.String("query", query),
			zap.Float64("lat", place.Lat),
			zap.Float64("lng", place.Lng),
		)
	case errors.Is(err, ErrNoResults):
		metrics.GeocodeRequests.WithLabelValues("not_found").Inc()
		g.logger.Debug("Geocoder found nothing", zap.String("query", query))
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		metrics.GeocodeRequests.WithLabelValues("circuit_open").Inc()
		g.logger.Warn("Geocoder circuit open, skipping lookup", zap.String("query", query))
		definitive = false
	default:
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		g.logger.Warn("Geocode lookup failed", zap.String("query", query), zap.Error(err))
		definitive = false
	}

	// Provider outages stay in the run cache; only answers about the place
	// itself outlive the run.
	if g.shared != nil && definitive {
		if err := g.shared.Set(ctx, key, entry); err != nil {
			g.logger.Warn("Shared geocode cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return entry, true
}

func (g *Geocoder) search(ctx context.Context, query string) (Place, error) {
	var place Place
	err := g.breaker.Execute(ctx, func() error {
		places, err := retry.DoWithResult(ctx, g.retryCfg, func() ([]Place, error) {
			places, err := g.provider.Search(ctx, query, 1)
			if err != nil {
				var se *StatusError
				if errors.Is(err, ErrNoResults) || (errors.As(err, &se) && !se.Retryable()) {
					return nil, retry.Permanent(err)
				}
				return nil, err
			}
			return places, nil
		})
		if err != nil {
			return err
		}
		if len(places) == 0 {
			return ErrNoResults
		}
		place = places[0]
		return nil
	})
	return place, err
}
