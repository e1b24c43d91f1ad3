// Package bootstrap builds the long-lived services shared by the API server
// and the command line tool.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/epiwatch/backend/internal/cache/memory"
	"github.com/epiwatch/backend/internal/cache/redis"
	"github.com/epiwatch/backend/internal/geocode"
	"github.com/epiwatch/backend/internal/ingestion"
	"github.com/epiwatch/backend/internal/reference"
	"github.com/epiwatch/backend/internal/storage/sqlite"
	"github.com/epiwatch/backend/pkg/config"
	"github.com/epiwatch/backend/pkg/logger"
	"github.com/epiwatch/backend/pkg/retry"
)

type Services struct {
	Store    *sqlite.Client
	Redis    *redis.Client
	Geocoder *geocode.Geocoder
	Pipeline *ingestion.Pipeline
}

// Open connects the store, applies the schema and the optional reference
// seed, and assembles the ingestion pipeline.
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	if cfg.Reference.SeedFile != "" {
		if _, err := Seed(ctx, store, cfg.Reference.SeedFile); err != nil {
			store.Close()
			return nil, err
		}
	}

	shared, redisClient, err := NewSharedCache(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	geocoder := NewGeocoder(cfg, shared)
	pipeline := ingestion.NewPipeline(store, geocoder, ingestion.Options{
		Workers:   cfg.Ingestion.Workers,
		Stopwords: cfg.Ingestion.Stopwords,
	})

	return &Services{
		Store:    store,
		Redis:    redisClient,
		Geocoder: geocoder,
		Pipeline: pipeline,
	}, nil
}

func (s *Services) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if err := s.Store.Close(); err != nil {
		logger.Warn("Failed to close sqlite client", zap.Error(err))
	}
}

// Seed applies a reference YAML file to the store.
func Seed(ctx context.Context, store reference.Writer, path string) (reference.Stats, error) {
	seed, err := reference.LoadFile(path)
	if err != nil {
		return reference.Stats{}, err
	}
	stats, err := seed.Apply(ctx, store)
	if err != nil {
		return stats, fmt.Errorf("failed to apply reference seed: %w", err)
	}

	logger.Info("Reference data seeded",
		zap.String("file", path),
		zap.Int("sources", stats.Sources),
		zap.Int("diseases", stats.Diseases),
		zap.Int("keywords", stats.Keywords),
		zap.Int("countries", stats.Countries),
	)
	return stats, nil
}

// NewSharedCache builds the cross-batch geocode cache selected by
// geocache.backend. The redis client is returned so the caller can close it.
func NewSharedCache(cfg *config.Config) (geocode.SharedCache, *redis.Client, error) {
	ttl := cfg.GeoCache.TTL()
	negativeTTL := cfg.GeoCache.NegativeTTL()

	switch strings.ToLower(cfg.GeoCache.Backend) {
	case "", "none":
		return nil, nil, nil
	case "memory":
		return memory.New(cfg.GeoCache.Size, ttl, negativeTTL), nil, nil
	case "redis":
		client, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, ttl, negativeTTL)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown geocache backend %q", cfg.GeoCache.Backend)
	}
}

func NewGeocoder(cfg *config.Config, shared geocode.SharedCache) *geocode.Geocoder {
	log := logger.Named("geocode")

	provider := geocode.NewNominatimClient(
		cfg.Geocoder.Endpoint,
		cfg.Geocoder.UserAgent,
		cfg.Geocoder.Email,
		cfg.Geocoder.Timeout(),
	)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Geocoder.MaxAttempts
	retryCfg.InitialDelay = 500 * time.Millisecond
	retryCfg.MaxDelay = 5 * time.Second
	retryCfg.Logger = log

	breaker := geocode.NewBreaker(
		cfg.Geocoder.FailureThreshold,
		time.Duration(cfg.Geocoder.OpenTimeoutSec)*time.Second,
		log,
	)

	return geocode.New(provider, geocode.Options{
		Shared:  shared,
		Retry:   retryCfg,
		Breaker: breaker,
		Logger:  log,
	})
}
