package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{MaxBodyBytes: 64}))
	app.Post("/ingest", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/signals", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"json accepted", "POST", "/ingest", "application/json; charset=utf-8", `{"articles":[]}`, fiber.StatusOK},
		{"no content type", "POST", "/ingest", "", `{"articles":[]}`, fiber.StatusOK},
		{"form rejected", "POST", "/ingest", "application/x-www-form-urlencoded", "a=b", fiber.StatusUnsupportedMediaType},
		{"too large", "POST", "/ingest", "application/json", `{"articles":"` + strings.Repeat("x", 100) + `"}`, fiber.StatusRequestEntityTooLarge},
		{"nul byte", "POST", "/ingest", "application/json", "{\"a\":\"\x00\"}", fiber.StatusBadRequest},
		{"get passes", "GET", "/signals", "text/plain", "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
