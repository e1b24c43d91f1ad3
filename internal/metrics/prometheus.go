package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiwatch_ingest_requests_total",
			Help: "Total ingest batch requests by response status",
		},
		[]string{"status"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epiwatch_ingest_batch_duration_seconds",
			Help:    "Ingest batch processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epiwatch_ingest_batch_size",
			Help:    "Number of articles per ingest batch",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	ArticlesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiwatch_articles_processed_total",
			Help: "Articles processed by outcome",
		},
		[]string{"outcome"},
	)

	SignalsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiwatch_signals_created_total",
			Help: "Outbreak signals created by severity",
		},
		[]string{"severity"},
	)

	SignalConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epiwatch_signal_confidence",
			Help:    "Confidence of created signals",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	GeocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiwatch_geocode_requests_total",
			Help: "Geocoder lookups by result",
		},
		[]string{"result"},
	)

	GeocodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epiwatch_geocode_duration_seconds",
			Help:    "Geocoder lookup duration in seconds, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	GeoCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiwatch_geocache_hits_total",
			Help: "Geocode cache hits",
		},
		[]string{"layer"},
	)

	GeoCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiwatch_geocache_misses_total",
			Help: "Geocode cache misses",
		},
		[]string{"layer"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "epiwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	ReferenceRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "epiwatch_reference_rows",
			Help: "Reference rows loaded into the last ingest snapshot",
		},
		[]string{"table"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IngestRequests)
		prometheus.MustRegister(BatchDuration)
		prometheus.MustRegister(BatchSize)
		prometheus.MustRegister(ArticlesProcessed)
		prometheus.MustRegister(SignalsCreated)
		prometheus.MustRegister(SignalConfidence)
		prometheus.MustRegister(GeocodeRequests)
		prometheus.MustRegister(GeocodeDuration)
		prometheus.MustRegister(GeoCacheHits)
		prometheus.MustRegister(GeoCacheMisses)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(ReferenceRows)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
