package enrichment

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"viraltogether/api_enrichment/internal/aggregator"
	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/cache"
	"viraltogether/api_enrichment/pkg/logging"
)

// Advisor task types the facade can assemble context for.
const (
	TaskGrowthAdvisor        = "growth_advisor"
	TaskContentAdvisor       = "content_advisor"
	TaskBusinessAdvisor      = "business_advisor"
	TaskPricingAdvisor       = "pricing_advisor"
	TaskAnalyticsAdvisor     = "analytics_advisor"
	TaskCollaborationAdvisor = "collaboration_advisor"
	TaskPlatformAdvisor      = "platform_advisor"
	TaskEngagementAdvisor    = "engagement_advisor"
	TaskOptimizationAdvisor  = "optimization_advisor"
)

const sponsoredPost = "sponsored_post"

// requirement is one capability fetch a task needs. A zero platform means
// the caller's primary platform of interest.
type requirement struct {
	capability  providers.Capability
	platform    providers.Platform
	windowDays  int
	contentType string
}

// taskRequirements is the explicit lookup table from task type to the
// capability+platform pairs it needs. Nothing here is inferred; adding a
// task means adding a row.
var taskRequirements = map[string][]requirement{
	TaskGrowthAdvisor: {
		{capability: providers.CapTrendingContent, platform: providers.PlatformInstagram},
		{capability: providers.CapTrendingContent, platform: providers.PlatformTikTok},
		{capability: providers.CapTrendingContent, platform: providers.PlatformTwitter},
		{capability: providers.CapEngagementTrends, windowDays: 30},
	},
	TaskContentAdvisor: {
		{capability: providers.CapTrendingContent, platform: providers.PlatformInstagram},
		{capability: providers.CapTrendingContent, platform: providers.PlatformTikTok},
		{capability: providers.CapTrendingContent, platform: providers.PlatformYouTube},
	},
	TaskBusinessAdvisor: {
		{capability: providers.CapBrandOpportunities},
		{capability: providers.CapMarketRates, platform: providers.PlatformInstagram, contentType: sponsoredPost},
	},
	TaskPricingAdvisor: {
		{capability: providers.CapMarketRates, platform: providers.PlatformInstagram, contentType: sponsoredPost},
		{capability: providers.CapMarketRates, platform: providers.PlatformTikTok, contentType: sponsoredPost},
		{capability: providers.CapMarketRates, platform: providers.PlatformYouTube, contentType: sponsoredPost},
	},
	TaskAnalyticsAdvisor: {
		{capability: providers.CapEngagementTrends, windowDays: 30},
		{capability: providers.CapCompetitorAnalysis},
	},
	TaskCollaborationAdvisor: {
		{capability: providers.CapBrandOpportunities},
		{capability: providers.CapCompetitorAnalysis},
	},
	TaskPlatformAdvisor: {
		{capability: providers.CapTrendingContent, platform: providers.PlatformInstagram},
		{capability: providers.CapTrendingContent, platform: providers.PlatformTikTok},
		{capability: providers.CapTrendingContent, platform: providers.PlatformYouTube},
		{capability: providers.CapTrendingContent, platform: providers.PlatformTwitter},
	},
	TaskEngagementAdvisor: {
		{capability: providers.CapEngagementTrends, windowDays: 30},
		{capability: providers.CapTrendingContent, platform: providers.PlatformInstagram},
	},
	TaskOptimizationAdvisor: {
		{capability: providers.CapEngagementTrends, windowDays: 30},
		{capability: providers.CapUserMetrics},
	},
}

// TaskTypes lists the known task types in sorted order.
func TaskTypes() []string {
	names := make([]string, 0, len(taskRequirements))
	for name := range taskRequirements {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KnownTask reports whether the facade has a requirement table for taskType.
func KnownTask(taskType string) bool {
	_, ok := taskRequirements[taskType]
	return ok
}

// TTLPolicy sets the cache freshness window per capability. Volatile
// capabilities get short windows, slow-moving ones longer.
type TTLPolicy struct {
	UserMetrics      time.Duration
	EngagementTrends time.Duration
	Trending         time.Duration
	MarketRates      time.Duration
	Competitors      time.Duration
	Opportunities    time.Duration
}

// DefaultTTLPolicy returns the standard freshness windows.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		UserMetrics:      5 * time.Minute,
		EngagementTrends: 10 * time.Minute,
		Trending:         5 * time.Minute,
		MarketRates:      15 * time.Minute,
		Competitors:      10 * time.Minute,
		Opportunities:    15 * time.Minute,
	}
}

// For returns the TTL for a capability; unset values fall back to five
// minutes.
func (p TTLPolicy) For(c providers.Capability) time.Duration {
	var d time.Duration
	switch c {
	case providers.CapUserMetrics:
		d = p.UserMetrics
	case providers.CapEngagementTrends:
		d = p.EngagementTrends
	case providers.CapTrendingContent:
		d = p.Trending
	case providers.CapMarketRates:
		d = p.MarketRates
	case providers.CapCompetitorAnalysis:
		d = p.Competitors
	case providers.CapBrandOpportunities:
		d = p.Opportunities
	}
	if d <= 0 {
		d = 5 * time.Minute
	}
	return d
}

// Aggregator runs one capability query. *aggregator.Aggregator satisfies it.
type Aggregator interface {
	Aggregate(ctx context.Context, q providers.Query) (aggregator.MergedResult, error)
}

// Request identifies whose context to gather and for which advisor task.
type Request struct {
	TaskType    string
	UserID      int64
	Username    string
	Platforms   []providers.Platform
	Competitors []string
	Industry    string
}

// Primary returns the caller's first platform of interest, defaulting to
// instagram.
func (r Request) Primary() providers.Platform {
	if len(r.Platforms) > 0 {
		return r.Platforms[0]
	}
	return providers.PlatformInstagram
}

// ContextBundle is the gathered real-time context for one task. Results is
// keyed by capability name; a capability queried on several platforms folds
// into a single entry in requirement order.
type ContextBundle struct {
	TaskType   string                             `json:"task_type"`
	UserID     int64                              `json:"user_id,omitempty"`
	Username   string                             `json:"username,omitempty"`
	Platforms  []providers.Platform               `json:"platforms,omitempty"`
	Results    map[string]aggregator.MergedResult `json:"results"`
	GatheredAt time.Time                          `json:"gathered_at"`
}

// Config tunes the facade.
type Config struct {
	TTL    TTLPolicy
	Logger logging.Logger
}

// Facade is the single entry point the recommendation pipeline calls. It
// hides the cache and aggregator wiring behind GatherContext.
type Facade struct {
	agg    Aggregator
	cache  *cache.Cache
	ttl    TTLPolicy
	logger logging.Logger
}

// New builds the facade over an aggregator and a cache.
func New(agg Aggregator, store *cache.Cache, cfg Config) *Facade {
	ttl := cfg.TTL
	if ttl == (TTLPolicy{}) {
		ttl = DefaultTTLPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Facade{agg: agg, cache: store, ttl: ttl, logger: logger}
}

// GatherContext assembles the real-time context for one advisor task. Every
// requirement in the task's table, plus the account's live metrics, is
// fetched concurrently through the cache. Unknown task types and empty
// upstream data both yield a bundle rather than an error; the only error
// surfaced is a strict-mode aggregation failure or a dead context.
func (f *Facade) GatherContext(ctx context.Context, req Request) (ContextBundle, error) {
	bundle := ContextBundle{
		TaskType:   req.TaskType,
		UserID:     req.UserID,
		Username:   req.Username,
		Platforms:  req.Platforms,
		Results:    make(map[string]aggregator.MergedResult),
		GatheredAt: time.Now(),
	}

	reqs, ok := taskRequirements[req.TaskType]
	if !ok {
		f.logger.WithField("task_type", req.TaskType).Warn("Unknown task type - returning empty context")
		return bundle, nil
	}

	queries := buildQueries(req, reqs)

	type gathered struct {
		result aggregator.MergedResult
		err    error
	}
	results := make([]gathered, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(idx int, q providers.Query) {
			defer wg.Done()
			results[idx].result, results[idx].err = f.Fetch(ctx, q)
		}(i, q)
	}
	wg.Wait()

	var firstErr error
	for i, r := range results {
		if r.err != nil {
			f.logger.WithError(r.err).WithFields(logging.Fields{
				"task_type":  req.TaskType,
				"capability": queries[i].Capability,
			}).Warn("Context gathering failed")
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		key := string(queries[i].Capability)
		fold := bundle.Results[key]
		foldResult(&fold, r.result)
		bundle.Results[key] = fold
	}
	return bundle, firstErr
}

// buildQueries expands the requirement table into concrete queries. Live
// account metrics are prepended for every task; duplicate queries collapse
// on their cache key.
func buildQueries(req Request, reqs []requirement) []providers.Query {
	primary := req.Primary()
	all := append([]requirement{{capability: providers.CapUserMetrics}}, reqs...)

	queries := make([]providers.Query, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, r := range all {
		platform := r.platform
		if platform == "" {
			platform = primary
		}
		q := providers.Query{
			Capability:  r.capability,
			Platform:    platform,
			WindowDays:  r.windowDays,
			ContentType: r.contentType,
		}
		switch r.capability {
		case providers.CapUserMetrics, providers.CapEngagementTrends:
			q.Username = req.Username
			q.UserID = req.UserID
		case providers.CapCompetitorAnalysis:
			q.Competitors = req.Competitors
			q.UserID = req.UserID
		case providers.CapBrandOpportunities:
			q.Industry = req.Industry
		}
		key := q.CacheKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

// Fetch serves one capability query through the cache, aggregating on a
// miss. Single-capability callers share this path with GatherContext. A
// result that is empty only because providers failed is returned but not
// cached, so the next request retries upstream.
func (f *Facade) Fetch(ctx context.Context, q providers.Query) (aggregator.MergedResult, error) {
	ttl := f.ttl.For(q.Capability)
	value, err := f.cache.GetOrLoad(ctx, q.CacheKey(), ttl, func(ctx context.Context) (any, bool, error) {
		merged, err := f.agg.Aggregate(ctx, q)
		if err != nil {
			return nil, false, err
		}
		cacheable := !(merged.Empty() && len(merged.FailedProviders) > 0)
		return merged, cacheable, nil
	})
	if err != nil {
		return aggregator.MergedResult{Capability: q.Capability}, err
	}
	merged, ok := value.(aggregator.MergedResult)
	if !ok {
		return aggregator.MergedResult{Capability: q.Capability}, fmt.Errorf("unexpected cache value %T for %s", value, q.CacheKey())
	}
	return merged, nil
}

// foldResult folds src into dst. Lists concatenate; the first user-metrics
// value sticks; failed provider names are deduplicated.
func foldResult(dst *aggregator.MergedResult, src aggregator.MergedResult) {
	if dst.Capability == "" {
		dst.Capability = src.Capability
	}
	if dst.Metrics == nil {
		dst.Metrics = src.Metrics
	}
	dst.Trends = append(dst.Trends, src.Trends...)
	dst.Trending = append(dst.Trending, src.Trending...)
	dst.Rates = append(dst.Rates, src.Rates...)
	dst.Competitors = append(dst.Competitors, src.Competitors...)
	dst.Opportunities = append(dst.Opportunities, src.Opportunities...)
	for _, name := range src.FailedProviders {
		if !slices.Contains(dst.FailedProviders, name) {
			dst.FailedProviders = append(dst.FailedProviders, name)
		}
	}
}
