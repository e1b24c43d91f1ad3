// Package api assembles the HTTP surface of the ingest service.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/epiwatch/backend/internal/api/handlers"
	"github.com/epiwatch/backend/internal/bootstrap"
	"github.com/epiwatch/backend/internal/metrics"
	"github.com/epiwatch/backend/internal/middleware/ratelimit"
	"github.com/epiwatch/backend/internal/middleware/security"
	"github.com/epiwatch/backend/internal/middleware/validation"
	"github.com/epiwatch/backend/pkg/config"
	"github.com/epiwatch/backend/pkg/logger"
)

// NewApp wires routes and middleware. The returned func releases background
// resources owned by the app.
func NewApp(cfg *config.Config, svc *bootstrap.Services) (*fiber.App, func()) {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: strings.Split(cfg.Server.AllowOrigins, ","),
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               logger.Named("ratelimit"),
	})

	deps := map[string]handlers.Pinger{"sqlite": svc.Store}
	if svc.Redis != nil {
		deps["redis"] = svc.Redis
	}
	healthHandler := handlers.NewHealthHandler(deps)
	ingestHandler := handlers.NewIngestHandler(svc.Pipeline, cfg.Ingestion.BatchTimeout(), cfg.Ingestion.MaxArticles)
	signalHandler := handlers.NewSignalHandler(svc.Store)

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	api.Post("/articles/ingest",
		limiter.Middleware(),
		validation.Middleware(validation.Config{
			MaxBodyBytes: cfg.Server.BodyLimit,
			Logger:       logger.Named("validation"),
		}),
		ingestHandler.IngestArticles,
	)
	api.Get("/signals", signalHandler.ListSignals)

	return app, limiter.Stop
}
