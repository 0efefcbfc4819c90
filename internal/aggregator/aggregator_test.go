package aggregator

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/logging"
)

type stubSource struct {
	list []providers.Provider
}

func (s stubSource) ActiveProviders(c providers.Capability, p providers.Platform) []providers.Provider {
	var out []providers.Provider
	for _, pr := range s.list {
		if pr.Supports(c, p) {
			out = append(out, pr)
		}
	}
	return out
}

type fakeProvider struct {
	name  string
	delay time.Duration
	err   error
	calls atomic.Int32

	metrics       *providers.UserMetrics
	trends        []providers.EngagementTrend
	trending      []providers.TrendingItem
	rates         []providers.MarketRate
	competitors   []providers.CompetitorProfile
	opportunities []providers.BrandOpportunity

	mu           sync.Mutex
	lastUsername string
	lastDays     int
	lastCategory string
	lastContent  string
	lastNames    []string
	lastIndustry string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Supports(providers.Capability, providers.Platform) bool { return true }

func (f *fakeProvider) stall(ctx context.Context) error {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	return ctx.Err()
}

func (f *fakeProvider) UserMetrics(ctx context.Context, _ providers.Platform, username string) (*providers.UserMetrics, error) {
	f.mu.Lock()
	f.lastUsername = username
	f.mu.Unlock()
	if err := f.stall(ctx); err != nil {
		return nil, err
	}
	return f.metrics, nil
}

func (f *fakeProvider) EngagementTrends(ctx context.Context, _ providers.Platform, username string, days int) ([]providers.EngagementTrend, error) {
	f.mu.Lock()
	f.lastUsername = username
	f.lastDays = days
	f.mu.Unlock()
	if err := f.stall(ctx); err != nil {
		return nil, err
	}
	return f.trends, nil
}

func (f *fakeProvider) Trending(ctx context.Context, _ providers.Platform, category string) ([]providers.TrendingItem, error) {
	f.mu.Lock()
	f.lastCategory = category
	f.mu.Unlock()
	if err := f.stall(ctx); err != nil {
		return nil, err
	}
	return f.trending, nil
}

func (f *fakeProvider) MarketRates(ctx context.Context, _ providers.Platform, contentType string) ([]providers.MarketRate, error) {
	f.mu.Lock()
	f.lastContent = contentType
	f.mu.Unlock()
	if err := f.stall(ctx); err != nil {
		return nil, err
	}
	return f.rates, nil
}

func (f *fakeProvider) Competitors(ctx context.Context, _ providers.Platform, names []string) ([]providers.CompetitorProfile, error) {
	f.mu.Lock()
	f.lastNames = names
	f.mu.Unlock()
	if err := f.stall(ctx); err != nil {
		return nil, err
	}
	return f.competitors, nil
}

func (f *fakeProvider) BrandOpportunities(ctx context.Context, _ providers.Platform, industry string) ([]providers.BrandOpportunity, error) {
	f.mu.Lock()
	f.lastIndustry = industry
	f.mu.Unlock()
	if err := f.stall(ctx); err != nil {
		return nil, err
	}
	return f.opportunities, nil
}

func newAggregator(opts Options, list ...providers.Provider) *Aggregator {
	if opts.Logger == nil {
		logger := logging.NewLogger()
		logger.SetOutput(io.Discard)
		opts.Logger = logger
	}
	return New(stubSource{list: list}, opts)
}

func trendingItem(name string) providers.TrendingItem {
	return providers.TrendingItem{Hashtag: "#" + name, Platform: providers.PlatformInstagram}
}

func TestAggregateEmptyRegistry(t *testing.T) {
	agg := newAggregator(Options{})

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !merged.Empty() {
		t.Fatalf("expected empty result, got %+v", merged)
	}
	if merged.Capability != providers.CapTrendingContent {
		t.Fatalf("expected capability echoed, got %q", merged.Capability)
	}
}

func TestAggregateMergesInRegistrationOrder(t *testing.T) {
	a := &fakeProvider{name: "a", delay: 30 * time.Millisecond, trending: []providers.TrendingItem{trendingItem("a")}}
	b := &fakeProvider{name: "b", trending: []providers.TrendingItem{trendingItem("b")}}
	c := &fakeProvider{name: "c", delay: 10 * time.Millisecond, trending: []providers.TrendingItem{trendingItem("c")}}
	agg := newAggregator(Options{}, a, b, c)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	var hashtags []string
	for _, item := range merged.Trending {
		hashtags = append(hashtags, item.Hashtag)
	}
	want := []string{"#a", "#b", "#c"}
	if !reflect.DeepEqual(hashtags, want) {
		t.Fatalf("expected registration order %v, got %v", want, hashtags)
	}
	if len(merged.FailedProviders) != 0 {
		t.Fatalf("unexpected failures: %v", merged.FailedProviders)
	}
}

func TestAggregatePartialFailure(t *testing.T) {
	ok1 := &fakeProvider{name: "p1", trending: []providers.TrendingItem{trendingItem("one")}}
	bad := &fakeProvider{name: "p2", err: errors.New("upstream 500")}
	ok2 := &fakeProvider{name: "p3", trending: []providers.TrendingItem{trendingItem("three")}}
	agg := newAggregator(Options{}, ok1, bad, ok2)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(merged.Trending) != 2 {
		t.Fatalf("expected 2 items, got %d", len(merged.Trending))
	}
	if merged.Trending[0].Hashtag != "#one" || merged.Trending[1].Hashtag != "#three" {
		t.Fatalf("unexpected merge order: %+v", merged.Trending)
	}
	if !reflect.DeepEqual(merged.FailedProviders, []string{"p2"}) {
		t.Fatalf("expected p2 failed, got %v", merged.FailedProviders)
	}
}

func TestAggregateTimeoutExcludesSlowProvider(t *testing.T) {
	fast := &fakeProvider{name: "fast", trending: []providers.TrendingItem{trendingItem("fast")}}
	slow := &fakeProvider{name: "slow", delay: 2 * time.Second, trending: []providers.TrendingItem{trendingItem("slow")}}
	agg := newAggregator(Options{Timeout: 50 * time.Millisecond}, fast, slow)

	start := time.Now()
	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("aggregate blocked past the per-provider timeout: %s", elapsed)
	}
	if len(merged.Trending) != 1 || merged.Trending[0].Hashtag != "#fast" {
		t.Fatalf("expected only the fast provider's item, got %+v", merged.Trending)
	}
	if !reflect.DeepEqual(merged.FailedProviders, []string{"slow"}) {
		t.Fatalf("expected slow provider failed, got %v", merged.FailedProviders)
	}
}

func TestAggregateStrictAllFailed(t *testing.T) {
	bad1 := &fakeProvider{name: "p1", err: errors.New("boom")}
	slow := &fakeProvider{name: "p2", delay: time.Second}
	agg := newAggregator(Options{Timeout: 30 * time.Millisecond}, bad1, slow)

	merged, err := agg.AggregateStrict(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})

	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if len(allFailed.Failures) != 2 {
		t.Fatalf("expected 2 recorded failures, got %d", len(allFailed.Failures))
	}
	if !providers.IsTimeout(allFailed.Failures[1]) {
		t.Fatalf("expected second failure classified as timeout, got %v", allFailed.Failures[1])
	}
	if !reflect.DeepEqual(merged.FailedProviders, []string{"p1", "p2"}) {
		t.Fatalf("expected both providers listed, got %v", merged.FailedProviders)
	}
}

func TestAggregateStrictNoProviders(t *testing.T) {
	agg := newAggregator(Options{})

	_, err := agg.AggregateStrict(context.Background(), providers.Query{
		Capability: providers.CapMarketRates,
		Platform:   providers.PlatformTwitter,
	})

	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if len(allFailed.Failures) != 0 {
		t.Fatalf("expected no recorded failures, got %d", len(allFailed.Failures))
	}
}

func TestAggregateStrictPartialSuccess(t *testing.T) {
	ok := &fakeProvider{name: "ok", trending: []providers.TrendingItem{trendingItem("ok")}}
	bad := &fakeProvider{name: "bad", err: errors.New("boom")}
	agg := newAggregator(Options{Strict: true}, ok, bad)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("one success must satisfy strict mode: %v", err)
	}
	if len(merged.Trending) != 1 {
		t.Fatalf("expected the surviving item, got %+v", merged.Trending)
	}
}

func TestStrictOffByDefault(t *testing.T) {
	bad := &fakeProvider{name: "bad", err: errors.New("boom")}
	agg := newAggregator(Options{}, bad)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("non-strict aggregate must not error: %v", err)
	}
	if !merged.Empty() || len(merged.FailedProviders) != 1 {
		t.Fatalf("expected empty result with one failure, got %+v", merged)
	}
}

func TestUserMetricsFirstSuccessWins(t *testing.T) {
	first := &fakeProvider{
		name:    "first",
		delay:   30 * time.Millisecond,
		metrics: &providers.UserMetrics{Platform: providers.PlatformInstagram, Followers: 100},
	}
	second := &fakeProvider{
		name:    "second",
		metrics: &providers.UserMetrics{Platform: providers.PlatformInstagram, Followers: 200},
	}
	agg := newAggregator(Options{}, first, second)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapUserMetrics,
		Platform:   providers.PlatformInstagram,
		Username:   "creator",
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if merged.Metrics == nil || merged.Metrics.Followers != 100 {
		t.Fatalf("expected registration-order winner, got %+v", merged.Metrics)
	}
	if first.calls.Load() != 1 || second.calls.Load() != 1 {
		t.Fatalf("every provider must still run: first=%d second=%d", first.calls.Load(), second.calls.Load())
	}
}

func TestUserMetricsAbsentFallsThrough(t *testing.T) {
	absent := &fakeProvider{name: "absent"}
	present := &fakeProvider{name: "present", metrics: &providers.UserMetrics{Followers: 4200}}
	agg := newAggregator(Options{}, absent, present)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.CapUserMetrics,
		Platform:   providers.PlatformTwitter,
		Username:   "creator",
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if merged.Metrics == nil || merged.Metrics.Followers != 4200 {
		t.Fatalf("expected the second provider's value, got %+v", merged.Metrics)
	}
	if len(merged.FailedProviders) != 0 {
		t.Fatalf("absent data is not a failure: %v", merged.FailedProviders)
	}
}

func TestAggregateRateLimitClassification(t *testing.T) {
	limited := &fakeProvider{name: "limited", err: &providers.RateLimitError{Provider: "limited", Limit: 10, Window: time.Hour}}
	agg := newAggregator(Options{}, limited)

	_, err := agg.AggregateStrict(context.Background(), providers.Query{
		Capability: providers.CapBrandOpportunities,
		Platform:   providers.PlatformInstagram,
	})

	var allFailed *AllFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllFailedError, got %v", err)
	}
	if !providers.IsRateLimit(allFailed.Failures[0]) {
		t.Fatalf("expected rate limit preserved, got %v", allFailed.Failures[0])
	}
}

func TestAggregateDispatchesQueryParams(t *testing.T) {
	f := &fakeProvider{name: "capture"}
	agg := newAggregator(Options{}, f)
	ctx := context.Background()

	cases := []providers.Query{
		{Capability: providers.CapUserMetrics, Platform: providers.PlatformInstagram, Username: "creator"},
		{Capability: providers.CapEngagementTrends, Platform: providers.PlatformInstagram, Username: "creator", WindowDays: 30},
		{Capability: providers.CapTrendingContent, Platform: providers.PlatformTikTok, Category: "fitness"},
		{Capability: providers.CapMarketRates, Platform: providers.PlatformYouTube, ContentType: "sponsored_post"},
		{Capability: providers.CapCompetitorAnalysis, Platform: providers.PlatformInstagram, Competitors: []string{"a", "b"}},
		{Capability: providers.CapBrandOpportunities, Platform: providers.PlatformInstagram, Industry: "fitness"},
	}
	for _, q := range cases {
		if _, err := agg.Aggregate(ctx, q); err != nil {
			t.Fatalf("Aggregate(%s): %v", q.Capability, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastUsername != "creator" || f.lastDays != 30 {
		t.Fatalf("trend params not dispatched: %q %d", f.lastUsername, f.lastDays)
	}
	if f.lastCategory != "fitness" || f.lastContent != "sponsored_post" {
		t.Fatalf("trending/rates params not dispatched: %q %q", f.lastCategory, f.lastContent)
	}
	if !reflect.DeepEqual(f.lastNames, []string{"a", "b"}) || f.lastIndustry != "fitness" {
		t.Fatalf("competitor/opportunity params not dispatched: %v %q", f.lastNames, f.lastIndustry)
	}
	if f.calls.Load() != 6 {
		t.Fatalf("expected 6 calls, got %d", f.calls.Load())
	}
}

func TestAggregateUnknownCapability(t *testing.T) {
	f := &fakeProvider{name: "p"}
	agg := newAggregator(Options{}, f)

	merged, err := agg.Aggregate(context.Background(), providers.Query{
		Capability: providers.Capability("bogus"),
		Platform:   providers.PlatformInstagram,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !reflect.DeepEqual(merged.FailedProviders, []string{"p"}) {
		t.Fatalf("expected dispatch failure recorded, got %v", merged.FailedProviders)
	}
}

func TestMergedResultHelpers(t *testing.T) {
	var m MergedResult
	if !m.Empty() || m.Items() != 0 {
		t.Fatalf("zero value must be empty")
	}

	m.Metrics = &providers.UserMetrics{}
	m.Trending = []providers.TrendingItem{{}, {}}
	if m.Empty() {
		t.Fatal("populated result reported empty")
	}
	if m.Items() != 3 {
		t.Fatalf("expected 3 items, got %d", m.Items())
	}
}
