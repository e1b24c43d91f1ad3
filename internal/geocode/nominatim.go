package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrNoResults = errors.New("geocoder returned no results")

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code  int
	Body  string
	Retry time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocoder returned status %d: %s", e.Code, e.Body)
}

// RetryAfter is the wait requested by the server, zero when none was sent.
func (e *StatusError) RetryAfter() time.Duration {
	return e.Retry
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Place is one provider match.
type Place struct {
	Lat         float64
	Lng         float64
	DisplayName string
	Country     string
	CountryCode string
}

// Provider is an external geocoding service.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Place, error)
}

// NominatimClient talks to a Nominatim-compatible /search endpoint.
type NominatimClient struct {
	endpoint   string
	userAgent  string
	email      string
	httpClient *http.Client
}

func NewNominatimClient(endpoint, userAgent, email string, timeout time.Duration) *NominatimClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NominatimClient{
		endpoint:   endpoint,
		userAgent:  userAgent,
		email:      email,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (c *NominatimClient) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 1
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoder endpoint: %w", err)
	}
	params := u.Query()
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")
	params.Set("accept-language", "en")
	if c.email != "" {
		params.Set("email", c.email)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{
			Code:  resp.StatusCode,
			Body:  strings.TrimSpace(string(body)),
			Retry: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var raw []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode geocoder response: %w", err)
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		places = append(places, Place{
			Lat:         lat,
			Lng:         lng,
			DisplayName: r.DisplayName,
			Country:     r.Address.Country,
			CountryCode: strings.ToUpper(r.Address.CountryCode),
		})
	}

	if len(places) == 0 {
		return nil, ErrNoResults
	}
	return places, nil
}

// parseRetryAfter accepts the delay-seconds form only.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
