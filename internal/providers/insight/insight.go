package insight

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/logging"
	"viraltogether/api_enrichment/pkg/search"
)

// Name identifies this provider in logs and failure lists.
const Name = "insight"

// Provider answers market, competitor and opportunity queries by running
// web searches and scraping structured signals out of result snippets.
// Platform APIs expose none of this data directly.
type Provider struct {
	desc    providers.Descriptor
	search  search.Provider
	limiter *providers.RateLimiter
	logger  logging.Logger
}

// Config configures the insight provider.
type Config struct {
	// Search runs the underlying web queries.
	Search search.Provider
	// Platforms restricts which platforms the provider serves. Empty means
	// all of them.
	Platforms []providers.Platform
	// RateLimit caps searches per RateWindow. <= 0 disables limiting.
	RateLimit int
	// RateWindow defaults to one hour.
	RateWindow time.Duration
	Logger     logging.Logger
}

// New builds the insight provider.
func New(cfg Config) (*Provider, error) {
	if cfg.Search == nil {
		return nil, fmt.Errorf("insight: Search is required")
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	platforms := cfg.Platforms
	if len(platforms) == 0 {
		platforms = providers.Platforms()
	}
	return &Provider{
		desc: providers.NewDescriptor(Name,
			[]providers.Capability{
				providers.CapMarketRates,
				providers.CapCompetitorAnalysis,
				providers.CapBrandOpportunities,
			},
			platforms),
		search:  cfg.Search,
		limiter: providers.NewRateLimiter(Name, cfg.RateLimit, window),
		logger:  cfg.Logger,
	}, nil
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return Name }

// Supports implements providers.Provider.
func (p *Provider) Supports(c providers.Capability, pl providers.Platform) bool {
	return p.desc.Supports(c, pl)
}

// UserMetrics is unsupported; the registry never routes it here.
func (p *Provider) UserMetrics(context.Context, providers.Platform, string) (*providers.UserMetrics, error) {
	return nil, nil
}

// EngagementTrends is unsupported; the registry never routes it here.
func (p *Provider) EngagementTrends(context.Context, providers.Platform, string, int) ([]providers.EngagementTrend, error) {
	return nil, nil
}

// Trending is unsupported; the registry never routes it here.
func (p *Provider) Trending(context.Context, providers.Platform, string) ([]providers.TrendingItem, error) {
	return nil, nil
}

// MarketRates searches for current sponsorship pricing and extracts dollar
// amounts from snippets that talk about rates.
func (p *Provider) MarketRates(ctx context.Context, platform providers.Platform, contentType string) ([]providers.MarketRate, error) {
	query := fmt.Sprintf("%s influencer rates %s %d", platform, contentType, time.Now().Year())
	results, err := p.doSearch(ctx, query, 10)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var rates []providers.MarketRate
	for _, r := range results {
		snippet := strings.ToLower(r.Content)
		if !strings.Contains(snippet, "$") || !mentionsPricing(snippet) {
			continue
		}

		amounts := extractDollarAmounts(snippet)
		if len(amounts) == 0 {
			continue
		}

		min, max := amounts[0], amounts[0]
		for _, a := range amounts[1:] {
			if a < min {
				min = a
			}
			if a > max {
				max = a
			}
		}

		rates = append(rates, providers.MarketRate{
			Platform:      platform,
			ContentType:   contentType,
			FollowerRange: followerBucket(snippet),
			RateRange: providers.RateRange{
				Min:      min,
				Max:      max,
				Currency: "USD",
			},
			Timestamp: now,
		})
	}
	return rates, nil
}

// Competitors runs one search per competitor and scrapes follower and
// engagement figures out of the snippets. Names with no parseable data are
// skipped rather than failing the whole call.
func (p *Provider) Competitors(ctx context.Context, platform providers.Platform, names []string) ([]providers.CompetitorProfile, error) {
	now := time.Now()
	var profiles []providers.CompetitorProfile
	var lastErr error

	for _, name := range names {
		query := fmt.Sprintf("%s %s followers engagement statistics", name, platform)
		results, err := p.doSearch(ctx, query, 3)
		if err != nil {
			if providers.IsRateLimit(err) {
				return nil, err
			}
			p.logger.WithError(err).WithField("competitor", name).Warn("Competitor search failed")
			lastErr = err
			continue
		}
		if len(results) == 0 {
			continue
		}

		var combined strings.Builder
		titles := make([]string, 0, 3)
		for _, r := range results {
			combined.WriteString(strings.ToLower(r.Content))
			combined.WriteByte(' ')
			if len(titles) < 3 && r.Title != "" {
				titles = append(titles, r.Title)
			}
		}
		snippet := combined.String()

		followers := parseFollowers(snippet)
		engagement := parseEngagement(snippet)
		if followers == 0 && engagement == 0 {
			continue
		}

		profiles = append(profiles, providers.CompetitorProfile{
			Name:           name,
			Platform:       platform,
			Followers:      followers,
			EngagementRate: engagement,
			TopContent:     titles,
			Timestamp:      now,
		})
	}

	if len(profiles) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return profiles, nil
}

// BrandOpportunities fans a fixed query set out to the search provider and
// turns each result into a classified, scored opportunity.
func (p *Provider) BrandOpportunities(ctx context.Context, platform providers.Platform, industry string) ([]providers.BrandOpportunity, error) {
	niche := industry
	if niche == "" {
		niche = "social media"
	}

	queries := []string{
		fmt.Sprintf("brands looking for %s influencers", niche),
		fmt.Sprintf("brand partnerships %s", platform),
		fmt.Sprintf("influencer marketing opportunities %s", niche),
		fmt.Sprintf("brand collaborations %s creators", platform),
	}

	now := time.Now()
	var opportunities []providers.BrandOpportunity
	var lastErr error

	for _, query := range queries {
		results, err := p.doSearch(ctx, query, 5)
		if err != nil {
			if providers.IsRateLimit(err) {
				return nil, err
			}
			p.logger.WithError(err).WithField("query", query).Warn("Opportunity search failed")
			lastErr = err
			continue
		}

		for _, r := range results {
			snippet := strings.ToLower(r.Content)
			opportunities = append(opportunities, providers.BrandOpportunity{
				Title:          r.Title,
				Description:    r.Content,
				URL:            r.URL,
				Source:         sourceHost(r.URL),
				Type:           classifyOpportunity(snippet),
				Requirements:   extractRequirements(snippet),
				Compensation:   extractCompensation(snippet),
				RelevanceScore: relevanceScore(snippet, niche, platform),
				Timestamp:      now,
			})
		}
	}

	if len(opportunities) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].RelevanceScore > opportunities[j].RelevanceScore
	})
	if len(opportunities) > 20 {
		opportunities = opportunities[:20]
	}
	return opportunities, nil
}

func (p *Provider) doSearch(ctx context.Context, query string, limit int) ([]search.Result, error) {
	if err := p.limiter.Allow(); err != nil {
		return nil, err
	}
	results, err := p.search.Search(ctx, query, search.SearchOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("insight: search %q: %w", query, err)
	}
	return results, nil
}

var dollarRe = regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`)

func extractDollarAmounts(snippet string) []float64 {
	matches := dollarRe.FindAllStringSubmatch(snippet, -1)
	amounts := make([]float64, 0, len(matches))
	for _, m := range matches {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		amounts = append(amounts, v)
	}
	return amounts
}

func mentionsPricing(snippet string) bool {
	for _, word := range []string{"rate", "price", "cost"} {
		if strings.Contains(snippet, word) {
			return true
		}
	}
	return false
}

// followerBucket maps influencer-tier vocabulary in a snippet to a follower
// range; "varies" when the snippet names no tier.
func followerBucket(snippet string) string {
	switch {
	case strings.Contains(snippet, "nano"):
		return "1k-10k"
	case strings.Contains(snippet, "micro"):
		return "10k-100k"
	case strings.Contains(snippet, "macro"):
		return "100k-1m"
	case strings.Contains(snippet, "mega"), strings.Contains(snippet, "celebrity"):
		return "1m+"
	default:
		return "varies"
	}
}

var followersRe = regexp.MustCompile(`((?:\d{1,3}(?:,\d{3})+)|\d+(?:\.\d+)?)\s*(k|m|b|thousand|million|billion)?\s+followers`)

func parseFollowers(snippet string) int64 {
	m := followersRe.FindStringSubmatch(snippet)
	if m == nil {
		return 0
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k", "thousand":
		num *= 1_000
	case "m", "million":
		num *= 1_000_000
	case "b", "billion":
		num *= 1_000_000_000
	}
	return int64(num)
}

var engagementRes = []*regexp.Regexp{
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%\s*engagement`),
	regexp.MustCompile(`engagement rate of (\d+(?:\.\d+)?)\s*%`),
}

func parseEngagement(snippet string) float64 {
	for _, re := range engagementRes {
		if m := re.FindStringSubmatch(snippet); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func classifyOpportunity(snippet string) string {
	switch {
	case strings.Contains(snippet, "paid"), strings.Contains(snippet, "compensation"):
		return providers.OpportunityPaidPartnership
	case strings.Contains(snippet, "collaboration"), strings.Contains(snippet, "partnership"):
		return providers.OpportunityCollaboration
	case strings.Contains(snippet, "ambassador"):
		return providers.OpportunityAmbassador
	default:
		return providers.OpportunityGeneral
	}
}

func extractRequirements(snippet string) []string {
	var requirements []string
	if strings.Contains(snippet, "follower") {
		requirements = append(requirements, "Minimum follower count")
	}
	if strings.Contains(snippet, "engagement") {
		requirements = append(requirements, "Minimum engagement rate")
	}
	if strings.Contains(snippet, "niche") {
		requirements = append(requirements, "Specific niche/content type")
	}
	return requirements
}

func extractCompensation(snippet string) string {
	switch {
	case strings.Contains(snippet, "$"):
		return "Paid opportunity"
	case strings.Contains(snippet, "free"), strings.Contains(snippet, "product"):
		return "Product exchange"
	default:
		return "Not specified"
	}
}

// relevanceScore starts at 0.5 and rewards snippets that mention the niche
// and the platform, capped at 1.0.
func relevanceScore(snippet, niche string, platform providers.Platform) float64 {
	score := 0.5
	if niche != "" && strings.Contains(snippet, strings.ToLower(niche)) {
		score += 0.3
	}
	if strings.Contains(snippet, string(platform)) {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func sourceHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
