// Package extraction implements the entity-extraction pipeline: a bounded
// DB-backed task queue whose workers call AI search over a resource's
// folder, parse the structured JSON, persist shards, and project them into
// the campaign knowledge graph.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/telemetry"
	"github.com/sony/gobreaker"
)

// Search error taxonomy. Workers pick retry schedules by class.
var (
	// ErrSearchTimeout covers request timeouts and transport failures.
	ErrSearchTimeout = errors.New("ai search timeout")

	// ErrSearchCapacity covers provider overload (5xx/529).
	ErrSearchCapacity = errors.New("ai search capacity")

	// ErrSearchRateLimited covers provider 429s, with a retry-after hint.
	ErrSearchRateLimited = errors.New("ai search rate limited")

	// ErrSearchPermanent covers malformed requests and other 4xx.
	ErrSearchPermanent = errors.New("ai search permanent failure")
)

// SearchRequest is one AI search invocation scoped to a folder.
type SearchRequest struct {
	Query      string `json:"query"`
	Folder     string `json:"folder"`
	MaxResults int    `json:"max_results"`
}

// SearchResult is one returned document: raw text the parser will turn into
// structured content.
type SearchResult struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SearchClient is the AI search interface. Implemented by HTTPSearchClient;
// by fakes in tests.
type SearchClient interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}

// HTTPSearchClient calls the AutoRAG endpoint over HTTP JSON, wrapped in a
// circuit breaker so a dead provider fails fast instead of tying up workers.
type HTTPSearchClient struct {
	cfg     *config.AISearchConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPSearchClient creates a client from configuration.
func NewHTTPSearchClient(cfg *config.AISearchConfig) *HTTPSearchClient {
	return &HTTPSearchClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "ai-search",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
			},
			Timeout: cfg.BreakerOpenTimeout,
		}),
	}
}

// searchResponse is the provider's wire shape.
type searchResponse struct {
	Results []SearchResult `json:"results"`
	Meta    map[string]any `json:"meta"`
}

// Search performs one request. Errors are classified into the package
// taxonomy; the caller owns retries.
func (c *HTTPSearchClient) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	start := time.Now()
	out, err := c.breaker.Execute(func() (any, error) {
		return c.doSearch(ctx, req)
	})
	telemetry.AISearchRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			telemetry.AISearchRequestsTotal.WithLabelValues("capacity").Inc()
			return nil, fmt.Errorf("%w: circuit open", ErrSearchCapacity)
		}
		telemetry.AISearchRequestsTotal.WithLabelValues(classLabel(err)).Inc()
		return nil, err
	}
	telemetry.AISearchRequestsTotal.WithLabelValues("ok").Inc()
	return out.([]SearchResult), nil
}

func (c *HTTPSearchClient) doSearch(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchPermanent, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := os.Getenv(c.cfg.APIKeyEnv); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrSearchTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, fmt.Errorf("%w: retry after %ds", ErrSearchRateLimited, retryAfter)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrSearchCapacity, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrSearchPermanent, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrSearchTimeout, err)
	}
	var parsed searchResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrSearchPermanent, err)
	}
	return parsed.Results, nil
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 30
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return secs
	}
	return 30
}

func classLabel(err error) string {
	switch {
	case errors.Is(err, ErrSearchTimeout):
		return "timeout"
	case errors.Is(err, ErrSearchCapacity):
		return "capacity"
	case errors.Is(err, ErrSearchRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
