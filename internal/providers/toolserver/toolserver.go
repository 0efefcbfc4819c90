package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/logging"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name identifies this provider in logs and failure lists.
const Name = "toolserver"

// toolNames maps each capability to the tool the aggregation tool server
// exposes for it. A capability whose tool is absent from the server's tool
// list is reported unsupported and never called.
var toolNames = map[providers.Capability]string{
	providers.CapUserMetrics:        "get_user_metrics",
	providers.CapEngagementTrends:   "get_engagement_trends",
	providers.CapTrendingContent:    "get_trending_content",
	providers.CapMarketRates:        "get_market_rates",
	providers.CapCompetitorAnalysis: "get_competitor_analysis",
	providers.CapBrandOpportunities: "get_brand_opportunities",
}

// Provider answers capability queries by invoking tools on a remote MCP
// tool server. Tools are discovered once at connect time; each call sends
// JSON arguments and decodes the first text content block of the result.
type Provider struct {
	client    *mcp.Client
	session   *mcp.ClientSession
	logger    logging.Logger
	limiter   *providers.RateLimiter
	platforms map[providers.Platform]struct{}

	mu    sync.RWMutex
	tools map[string]struct{}
}

// Config configures the tool server connection.
type Config struct {
	// Endpoint is the base URL of the tool server's MCP endpoint.
	Endpoint string
	// ServiceToken authenticates every request when set.
	ServiceToken string
	// Platforms restricts which platforms the provider serves. Empty means
	// all of them.
	Platforms []providers.Platform
	// RateLimit caps requests per RateWindow. <= 0 disables limiting.
	RateLimit int
	// RateWindow defaults to one hour.
	RateWindow time.Duration
	Logger     logging.Logger
}

// New connects to the tool server and discovers its tool list. The session
// stays open for the provider's lifetime; callers own Close.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("toolserver: Endpoint is required")
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}

	transport := &mcp.StreamableClientTransport{
		Endpoint: cfg.Endpoint,
		HTTPClient: &http.Client{
			Transport: &authTransport{
				base:         http.DefaultTransport,
				serviceToken: cfg.ServiceToken,
			},
		},
	}

	impl := &mcp.Implementation{
		Name:    "spyglass",
		Version: "1.0.0",
	}
	client := mcp.NewClient(impl, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("toolserver: connect: %w", err)
	}

	scope := cfg.Platforms
	if len(scope) == 0 {
		scope = providers.Platforms()
	}
	platforms := make(map[providers.Platform]struct{}, len(scope))
	for _, pl := range scope {
		platforms[pl] = struct{}{}
	}

	p := &Provider{
		client:    client,
		session:   session,
		logger:    cfg.Logger,
		limiter:   providers.NewRateLimiter(Name, cfg.RateLimit, cfg.RateWindow),
		platforms: platforms,
	}

	if err := p.discoverTools(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("toolserver: discover tools: %w", err)
	}

	return p, nil
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

// Supports reports whether the server advertised a tool for the capability
// and the platform is within the configured scope.
func (p *Provider) Supports(c providers.Capability, pl providers.Platform) bool {
	if _, ok := p.platforms[pl]; !ok {
		return false
	}
	tool, ok := toolNames[c]
	if !ok {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok = p.tools[tool]
	return ok
}

// UserMetrics fetches an account metrics snapshot.
func (p *Provider) UserMetrics(ctx context.Context, platform providers.Platform, username string) (*providers.UserMetrics, error) {
	args := map[string]any{
		"platform": string(platform),
		"username": username,
	}
	var out providers.UserMetrics
	ok, err := p.call(ctx, providers.CapUserMetrics, args, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// EngagementTrends fetches an account's engagement trajectory.
func (p *Provider) EngagementTrends(ctx context.Context, platform providers.Platform, username string, days int) ([]providers.EngagementTrend, error) {
	args := map[string]any{
		"platform": string(platform),
		"username": username,
		"days":     days,
	}
	var out []providers.EngagementTrend
	if _, err := p.call(ctx, providers.CapEngagementTrends, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trending fetches trending hashtags, optionally filtered by category.
func (p *Provider) Trending(ctx context.Context, platform providers.Platform, category string) ([]providers.TrendingItem, error) {
	args := map[string]any{
		"platform": string(platform),
	}
	if category != "" {
		args["category"] = category
	}
	var out []providers.TrendingItem
	if _, err := p.call(ctx, providers.CapTrendingContent, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarketRates fetches sponsorship rates for a content type.
func (p *Provider) MarketRates(ctx context.Context, platform providers.Platform, contentType string) ([]providers.MarketRate, error) {
	args := map[string]any{
		"platform":     string(platform),
		"content_type": contentType,
	}
	var out []providers.MarketRate
	if _, err := p.call(ctx, providers.CapMarketRates, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Competitors fetches profiles for the named competitor accounts.
func (p *Provider) Competitors(ctx context.Context, platform providers.Platform, names []string) ([]providers.CompetitorProfile, error) {
	args := map[string]any{
		"platform":    string(platform),
		"competitors": names,
	}
	var out []providers.CompetitorProfile
	if _, err := p.call(ctx, providers.CapCompetitorAnalysis, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BrandOpportunities fetches brand partnership leads for an industry.
func (p *Provider) BrandOpportunities(ctx context.Context, platform providers.Platform, industry string) ([]providers.BrandOpportunity, error) {
	args := map[string]any{
		"platform": string(platform),
		"industry": industry,
	}
	var out []providers.BrandOpportunity
	if _, err := p.call(ctx, providers.CapBrandOpportunities, args, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close shuts down the MCP session.
func (p *Provider) Close() error {
	if p.session != nil {
		return p.session.Close()
	}
	return nil
}

// call invokes the tool mapped to cap and decodes its text payload into out.
// It reports false with a nil error when the server returned no data.
func (p *Provider) call(ctx context.Context, cap providers.Capability, args map[string]any, out any) (bool, error) {
	tool, ok := toolNames[cap]
	if !ok {
		return false, nil
	}

	if err := p.limiter.Allow(); err != nil {
		return false, err
	}

	result, err := p.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return false, fmt.Errorf("toolserver: call %s: %w", tool, err)
	}

	if result.IsError {
		if text := extractTextContent(result); text != "" {
			return false, fmt.Errorf("toolserver: tool %s returned error: %s", tool, text)
		}
		return false, fmt.Errorf("toolserver: tool %s returned error", tool)
	}

	text := strings.TrimSpace(extractTextContent(result))
	if text == "" || text == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return false, fmt.Errorf("toolserver: decode %s response: %w", tool, err)
	}
	return true, nil
}

// discoverTools fetches the tool list and builds the availability index.
func (p *Provider) discoverTools(ctx context.Context) error {
	result, err := p.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	tools := make(map[string]struct{}, len(result.Tools))
	for _, t := range result.Tools {
		tools[t.Name] = struct{}{}
	}

	p.mu.Lock()
	p.tools = tools
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.WithField("count", len(tools)).Info("Discovered tool server tools")
	}
	return nil
}

// extractTextContent joins all TextContent entries from a CallToolResult.
func extractTextContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// authTransport injects the service token into each HTTP request.
type authTransport struct {
	base         http.RoundTripper
	serviceToken string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.serviceToken == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.serviceToken)
	return t.base.RoundTrip(req)
}
