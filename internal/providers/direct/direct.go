package direct

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/clients"
	"viraltogether/api_enrichment/pkg/logging"
)

// Config configures one platform adapter.
type Config struct {
	// Token is the bearer token (instagram, twitter, tiktok) or API key
	// (youtube) for the platform API.
	Token string
	// BaseURL overrides the platform's default API root. Tests point this
	// at a local stub.
	BaseURL string
	// RateLimit caps requests per RateWindow. <= 0 disables limiting.
	RateLimit int
	// RateWindow defaults to one hour.
	RateWindow time.Duration
	// HTTPClient defaults to a 30s-timeout client on the shared transport.
	HTTPClient *http.Client
	// ExecutorConfig tunes retry and backoff for upstream calls.
	ExecutorConfig *clients.HTTPExecutorConfig
	Logger         logging.Logger
}

// APIError reports a non-2xx status from a platform API.
type APIError struct {
	Provider   string
	Path       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", e.Provider, e.Path, e.StatusCode)
}

// apiClient is the HTTP plumbing shared by the platform adapters: base URL,
// auth, the retry executor with its per-host circuit breaker, and the
// per-provider rate limiter.
type apiClient struct {
	name        string
	baseURL     string
	token       string
	authParam   string // token goes in this query parameter; bearer header when empty
	client      *http.Client
	executor    failsafe.Executor[*http.Response]
	shouldRetry func(resp *http.Response, err error) bool
	limiter     *providers.RateLimiter
	logger      logging.Logger
}

func newAPIClient(name, defaultBaseURL, authParam string, cfg Config) *apiClient {
	execCfg := clients.DefaultHTTPExecutorConfig()
	if cfg.ExecutorConfig != nil {
		execCfg = *cfg.ExecutorConfig
	}
	if execCfg.ShouldRetry == nil {
		execCfg.ShouldRetry = clients.DefaultShouldRetry
	}
	if execCfg.CircuitBreaker == nil {
		breaker := clients.DefaultCircuitBreakerConfig()
		breaker.Name = name
		breaker.Logger = cfg.Logger
		execCfg.CircuitBreaker = &breaker
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: clients.DefaultTransport(),
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	window := cfg.RateWindow
	if window <= 0 {
		window = time.Hour
	}

	return &apiClient{
		name:        name,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       cfg.Token,
		authParam:   authParam,
		client:      httpClient,
		executor:    clients.NewHTTPExecutor(execCfg),
		shouldRetry: execCfg.ShouldRetry,
		limiter:     providers.NewRateLimiter(name, cfg.RateLimit, window),
		logger:      cfg.Logger,
	}
}

// getJSON issues a GET through the retry executor and decodes the JSON body
// into out. The rate limiter is consumed before any network activity.
func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Allow(); err != nil {
		return err
	}

	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.authParam != "" && c.token != "" {
		q.Set(c.authParam, c.token)
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	resp, err := clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.authParam == "" && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		resp, err := c.client.Do(req)
		if c.shouldRetry != nil && c.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("%s: GET %s: %w", c.name, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Provider: c.name, Path: path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.name, path, err)
	}
	return nil
}

// engagementRate is engagement over impressions as a percentage. A zero
// impression count is treated as one.
func engagementRate(engagement, impressions int64) float64 {
	if impressions < 1 {
		impressions = 1
	}
	return float64(engagement) / float64(impressions) * 100
}

// normScore divides v by scale and clamps the result to [0, 1].
func normScore(v, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	s := v / scale
	if s > 1 {
		return 1
	}
	if s < 0 {
		return 0
	}
	return s
}

// filterCategory keeps only items matching category; empty matches all.
func filterCategory(items []providers.TrendingItem, category string) []providers.TrendingItem {
	if category == "" {
		return items
	}
	out := make([]providers.TrendingItem, 0, len(items))
	for _, it := range items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// postSample is one upstream post's engagement numbers.
type postSample struct {
	created     time.Time
	engagement  int64
	impressions int64
}

// trendFromSamples buckets samples by day and summarizes them into a single
// trend for the window. Samples older than the window are dropped; a nil
// return means nothing fell inside it.
func trendFromSamples(platform providers.Platform, days int, samples []postSample) []providers.EngagementTrend {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	type bucket struct {
		engagement  int64
		impressions int64
		posts       int
	}
	buckets := make(map[time.Time]*bucket)
	for _, s := range samples {
		if !s.created.IsZero() && s.created.Before(cutoff) {
			continue
		}
		day := s.created.Truncate(24 * time.Hour)
		b := buckets[day]
		if b == nil {
			b = &bucket{}
			buckets[day] = b
		}
		b.engagement += s.engagement
		b.impressions += s.impressions
		b.posts++
	}
	if len(buckets) == 0 {
		return nil
	}

	points := make([]providers.TrendPoint, 0, len(buckets))
	for day, b := range buckets {
		points = append(points, providers.TrendPoint{
			Date:           day,
			EngagementRate: engagementRate(b.engagement, b.impressions),
			Posts:          b.posts,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	var sum float64
	for _, p := range points {
		sum += p.EngagementRate
	}

	return []providers.EngagementTrend{{
		Platform:      platform,
		PeriodDays:    days,
		AvgEngagement: sum / float64(len(points)),
		Direction:     trendDirection(points),
		Points:        points,
		Timestamp:     time.Now(),
	}}
}

// trendDirection compares the average rate of the newer half of the series
// against the older half, with a 5% tolerance band.
func trendDirection(points []providers.TrendPoint) string {
	if len(points) < 2 {
		return providers.TrendStable
	}
	half := len(points) / 2
	older := avgRate(points[:half])
	newer := avgRate(points[half:])
	switch {
	case newer > older*1.05:
		return providers.TrendRising
	case newer < older*0.95:
		return providers.TrendDeclining
	default:
		return providers.TrendStable
	}
}

func avgRate(points []providers.TrendPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.EngagementRate
	}
	return sum / float64(len(points))
}
