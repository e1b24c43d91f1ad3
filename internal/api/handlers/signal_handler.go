package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/epiwatch/backend/internal/storage/models"
	"github.com/epiwatch/backend/pkg/logger"
)

const (
	defaultSignalDays = 30
	maxSignalDays     = 365
	maxSignalLimit    = 1000
)

type SignalLister interface {
	ListSignals(ctx context.Context, filter models.SignalFilter) ([]models.OutbreakSignal, error)
}

type SignalHandler struct {
	store SignalLister
	now   func() time.Time
}

func NewSignalHandler(store SignalLister) *SignalHandler {
	return &SignalHandler{store: store, now: time.Now}
}

// ListSignals serves recent signals, newest first.
func (h *SignalHandler) ListSignals(c *fiber.Ctx) error {
	days, err := intParam(c, "days", defaultSignalDays, 1, maxSignalDays)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	limit, err := intParam(c, "limit", maxSignalLimit, 1, maxSignalLimit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	filter := models.SignalFilter{
		Since:     h.now().AddDate(0, 0, -days),
		DiseaseID: c.Query("disease"),
		CountryID: c.Query("country"),
		Limit:     uint64(limit),
	}

	signals, err := h.store.ListSignals(c.UserContext(), filter)
	if err != nil {
		logger.Error("Failed to list signals", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list signals",
		})
	}
	if signals == nil {
		signals = []models.OutbreakSignal{}
	}

	return c.JSON(fiber.Map{
		"signals": signals,
		"count":   len(signals),
		"days":    days,
	})
}

func intParam(c *fiber.Ctx, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, inputError("Invalid " + name + ": must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi))
	}
	return v, nil
}
