// Package serpapi is a thin client for the SerpAPI google_flights engine
// with a time-boxed response cache.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"farewatch/internal/models"
)

// DefaultEndpoint is the production SerpAPI search endpoint.
const DefaultEndpoint = "https://serpapi.com/search.json"

// StatusError is returned when the pricing API answers with a non-2xx
// status, so callers can tell HTTP failures apart from transport errors.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pricing API returned status %d: %s", e.Code, e.Body)
}

// Client issues flight searches against the pricing API. Identical queries
// within the cache window share a single upstream call.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      *Cache
	logger     *slog.Logger
}

// NewClient creates a new Client. The timeout bounds each upstream call;
// the TTL bounds how long a payload is served from cache.
func NewClient(logger *slog.Logger, apiKey, endpoint string, timeout, cacheTTL time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache:  NewCache(cacheTTL),
		logger: logger,
	}
}

// Close releases the cache's background resources.
func (c *Client) Close() {
	c.cache.Close()
}

// Search returns the raw JSON payload for one destination query, from cache
// when a fresh entry exists for the exact parameter tuple.
func (c *Client) Search(ctx context.Context, q models.SearchQuery) (map[string]any, error) {
	payload, hit, err := c.cache.GetOrFetch(ctx, q.Key(), func() (map[string]any, error) {
		return c.fetch(ctx, q)
	})
	if hit {
		c.logger.Debug("Serving search result from cache", "destination", q.Destination)
	}
	return payload, err
}

// fetch performs the actual HTTP GET against the pricing API.
func (c *Client) fetch(ctx context.Context, q models.SearchQuery) (map[string]any, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	params := u.Query()
	params.Set("engine", "google_flights")
	params.Set("api_key", c.apiKey)
	params.Set("departure_id", q.Departure)
	params.Set("arrival_id", q.Destination)
	params.Set("outbound_date", q.OutboundDate)
	if q.ReturnDate != "" {
		params.Set("return_date", q.ReturnDate)
	}
	params.Set("hl", "en")
	params.Set("gl", "us")
	params.Set("currency", "USD")
	params.Set("stops", strconv.Itoa(q.Stops))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug("Fetching flight prices", "departure", q.Departure, "destination", q.Destination)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return payload, nil
}
