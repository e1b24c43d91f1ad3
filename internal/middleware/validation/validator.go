package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxBodyBytes        int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects write requests with a foreign content type or an
// oversized body before they reach a handler. Payload shape is checked by
// the handlers themselves.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			cfg.Logger.Debug("Unsupported content type",
				zap.String("path", c.Path()),
				zap.String("content_type", contentType),
			)
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if len(c.Body()) > cfg.MaxBodyBytes {
			cfg.Logger.Warn("Request body too large",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Int("bytes", len(c.Body())),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Request body exceeds maximum size",
			})
		}

		if strings.ContainsRune(string(c.Body()), '\x00') {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Request body contains NUL bytes",
			})
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
