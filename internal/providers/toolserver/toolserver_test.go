package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"viraltogether/api_enrichment/internal/providers"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// newToolServer starts an in-process MCP server whose tools reply with the
// given payloads keyed by tool name.
func newToolServer(t *testing.T, payloads map[string]string) *httptest.Server {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "test-toolserver",
		Version: "1.0.0",
	}, nil)

	for name, payload := range payloads {
		text := payload
		server.AddTool(&mcp.Tool{
			Name:        name,
			Description: "test tool",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		}, func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, nil
		})
	}

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestSupports_TracksDiscoveredTools(t *testing.T) {
	ts := newToolServer(t, map[string]string{
		"get_user_metrics":     `{}`,
		"get_trending_content": `[]`,
	})

	p, err := New(context.Background(), Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	if !p.Supports(providers.CapUserMetrics, providers.PlatformInstagram) {
		t.Fatal("expected user_metrics to be supported")
	}
	if !p.Supports(providers.CapTrendingContent, providers.PlatformTikTok) {
		t.Fatal("expected trending_content to be supported on any platform")
	}
	if p.Supports(providers.CapMarketRates, providers.PlatformInstagram) {
		t.Fatal("expected market_rates to be unsupported without its tool")
	}
}

func TestSupports_RespectsPlatformScope(t *testing.T) {
	ts := newToolServer(t, map[string]string{
		"get_user_metrics": `{}`,
	})

	p, err := New(context.Background(), Config{
		Endpoint:  ts.URL,
		Platforms: []providers.Platform{providers.PlatformTwitter},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	if !p.Supports(providers.CapUserMetrics, providers.PlatformTwitter) {
		t.Fatal("expected twitter to be in scope")
	}
	if p.Supports(providers.CapUserMetrics, providers.PlatformInstagram) {
		t.Fatal("expected instagram to be out of scope")
	}
}

func TestUserMetrics_DecodesPayload(t *testing.T) {
	ts := newToolServer(t, map[string]string{
		"get_user_metrics": `{"platform":"instagram","followers":15400,"engagement_rate":4.2,"impressions":90000}`,
	})

	p, err := New(context.Background(), Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	m, err := p.UserMetrics(context.Background(), providers.PlatformInstagram, "creatorx")
	if err != nil {
		t.Fatalf("UserMetrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected metrics, got nil")
	}
	if m.Followers != 15400 {
		t.Fatalf("expected 15400 followers, got %d", m.Followers)
	}
	if m.EngagementRate != 4.2 {
		t.Fatalf("expected 4.2 engagement rate, got %v", m.EngagementRate)
	}
}

func TestTrending_DecodesList(t *testing.T) {
	ts := newToolServer(t, map[string]string{
		"get_trending_content": `[{"platform":"tiktok","hashtag":"#dance","trend_score":0.91},{"platform":"tiktok","hashtag":"#fyp","trend_score":0.84}]`,
	})

	p, err := New(context.Background(), Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	items, err := p.Trending(context.Background(), providers.PlatformTikTok, "")
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Hashtag != "#dance" {
		t.Fatalf("expected #dance first, got %s", items[0].Hashtag)
	}
}

func TestCall_EmptyPayloadMeansNoData(t *testing.T) {
	ts := newToolServer(t, map[string]string{
		"get_user_metrics":      ``,
		"get_market_rates":      `null`,
		"get_engagement_trends": `[]`,
	})

	p, err := New(context.Background(), Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	m, err := p.UserMetrics(context.Background(), providers.PlatformTwitter, "someone")
	if err != nil {
		t.Fatalf("UserMetrics: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil metrics for empty payload, got %+v", m)
	}

	rates, err := p.MarketRates(context.Background(), providers.PlatformTwitter, "sponsored_post")
	if err != nil {
		t.Fatalf("MarketRates: %v", err)
	}
	if len(rates) != 0 {
		t.Fatalf("expected no rates for null payload, got %d", len(rates))
	}

	trends, err := p.EngagementTrends(context.Background(), providers.PlatformTwitter, "someone", 30)
	if err != nil {
		t.Fatalf("EngagementTrends: %v", err)
	}
	if len(trends) != 0 {
		t.Fatalf("expected no trends, got %d", len(trends))
	}
}

func TestCall_ToolErrorSurfacesMessage(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "failing-toolserver",
		Version: "1.0.0",
	}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "get_competitor_analysis",
		Description: "test tool",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}, func(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "upstream returned 503"}},
		}, nil
	})
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	p, err := New(context.Background(), Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	_, err = p.Competitors(context.Background(), providers.PlatformInstagram, []string{"rival"})
	if err == nil {
		t.Fatal("expected error from failing tool")
	}
}

func TestCall_RateLimitExhaustion(t *testing.T) {
	ts := newToolServer(t, map[string]string{
		"get_brand_opportunities": `[{"title":"Summer campaign","opportunity_type":"paid_partnership"}]`,
	})

	p, err := New(context.Background(), Config{Endpoint: ts.URL, RateLimit: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = p.Close() }()

	if _, err := p.BrandOpportunities(context.Background(), providers.PlatformInstagram, "fashion"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	_, err = p.BrandOpportunities(context.Background(), providers.PlatformInstagram, "fashion")
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !providers.IsRateLimit(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestAuthTransport_InjectsServiceToken(t *testing.T) {
	var capturedAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	transport := &authTransport{base: http.DefaultTransport, serviceToken: "svc-token-9"}

	req, _ := http.NewRequestWithContext(context.Background(), "POST", backend.URL, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if capturedAuth != "Bearer svc-token-9" {
		t.Fatalf("expected Bearer svc-token-9, got %q", capturedAuth)
	}
}

func TestAuthTransport_NoHeaderWithoutToken(t *testing.T) {
	var capturedAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	transport := &authTransport{base: http.DefaultTransport}

	req, _ := http.NewRequestWithContext(context.Background(), "POST", backend.URL, nil)
	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if capturedAuth != "" {
		t.Fatalf("expected no auth header, got %q", capturedAuth)
	}
}

func TestExtractTextContent(t *testing.T) {
	if got := extractTextContent(nil); got != "" {
		t.Fatalf("expected empty for nil result, got %q", got)
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "part1"},
			&mcp.TextContent{Text: "part2"},
		},
	}
	if got := extractTextContent(result); got != "part1\npart2" {
		t.Fatalf("expected joined parts, got %q", got)
	}
}
