package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/epiwatch/backend/internal/ingestion"
	"github.com/epiwatch/backend/internal/metrics"
	"github.com/epiwatch/backend/internal/storage/models"
	"github.com/epiwatch/backend/pkg/logger"
)

const errArticlesRequired = "Invalid input: articles array required"

// BatchRunner runs one ingest batch.
type BatchRunner interface {
	Run(ctx context.Context, articles []models.RawArticle) (*ingestion.Result, error)
}

type IngestHandler struct {
	runner       BatchRunner
	batchTimeout time.Duration
	maxArticles  int
}

func NewIngestHandler(runner BatchRunner, batchTimeout time.Duration, maxArticles int) *IngestHandler {
	return &IngestHandler{
		runner:       runner,
		batchTimeout: batchTimeout,
		maxArticles:  maxArticles,
	}
}

func (h *IngestHandler) IngestArticles(c *fiber.Ctx) error {
	articles, err := decodeArticles(c.Body())
	if err != nil {
		logger.Debug("Rejected ingest request", zap.Error(err))
		metrics.IngestRequests.WithLabelValues("400").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if h.maxArticles > 0 && len(articles) > h.maxArticles {
		metrics.IngestRequests.WithLabelValues("413").Inc()
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": fmt.Sprintf("Invalid input: at most %d articles per batch", h.maxArticles),
		})
	}

	ctx := c.UserContext()
	if h.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.batchTimeout)
		defer cancel()
	}

	result, err := h.runner.Run(ctx, articles)
	if err != nil {
		logger.Error("Failed to process ingest batch", zap.Int("articles", len(articles)), zap.Error(err))
		metrics.IngestRequests.WithLabelValues("500").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	metrics.IngestRequests.WithLabelValues("200").Inc()

	resp := fiber.Map{
		"success":   true,
		"processed": result.Processed,
		"articles":  result.Articles,
	}
	if result.Truncated {
		resp["truncated"] = true
	}
	return c.JSON(resp)
}

type inputError string

func (e inputError) Error() string { return string(e) }

// decodeArticles accepts only a JSON object whose "articles" member is an
// array. Anything else is an input error and nothing is processed.
func decodeArticles(body []byte) ([]models.RawArticle, error) {
	var req struct {
		Articles json.RawMessage `json:"articles"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, inputError(errArticlesRequired)
	}

	raw := bytes.TrimSpace(req.Articles)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, inputError(errArticlesRequired)
	}

	var articles []models.RawArticle
	if err := json.Unmarshal(raw, &articles); err != nil {
		return nil, inputError("Invalid input: " + err.Error())
	}
	return articles, nil
}
