package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/logging"
	"viraltogether/api_enrichment/pkg/monitoring"
)

// DefaultTimeout bounds one provider call when Options.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// ProviderSource yields the providers eligible for one capability query.
type ProviderSource interface {
	ActiveProviders(c providers.Capability, p providers.Platform) []providers.Provider
}

// MergedResult is the union of every successful provider payload for one
// capability query, plus the names of the providers that failed. Callers
// consume partial data with visibility into what is missing.
type MergedResult struct {
	Capability      providers.Capability          `json:"capability"`
	Metrics         *providers.UserMetrics        `json:"user_metrics,omitempty"`
	Trends          []providers.EngagementTrend   `json:"engagement_trends,omitempty"`
	Trending        []providers.TrendingItem      `json:"trending,omitempty"`
	Rates           []providers.MarketRate        `json:"market_rates,omitempty"`
	Competitors     []providers.CompetitorProfile `json:"competitors,omitempty"`
	Opportunities   []providers.BrandOpportunity  `json:"opportunities,omitempty"`
	FailedProviders []string                      `json:"failed_providers,omitempty"`
}

// Empty reports whether the merge produced no data at all.
func (m MergedResult) Empty() bool {
	return m.Metrics == nil &&
		len(m.Trends) == 0 &&
		len(m.Trending) == 0 &&
		len(m.Rates) == 0 &&
		len(m.Competitors) == 0 &&
		len(m.Opportunities) == 0
}

// Items counts the merged list entries; a user-metrics value counts as one.
func (m MergedResult) Items() int {
	n := len(m.Trends) + len(m.Trending) + len(m.Rates) + len(m.Competitors) + len(m.Opportunities)
	if m.Metrics != nil {
		n++
	}
	return n
}

// AllFailedError is returned by strict-mode aggregation when no provider
// produced a usable result, either because none were registered for the
// capability or because every call failed.
type AllFailedError struct {
	Capability providers.Capability
	Failures   []error
}

func (e *AllFailedError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("aggregate %s: no providers available", e.Capability)
	}
	return fmt.Sprintf("aggregate %s: all %d providers failed", e.Capability, len(e.Failures))
}

func (e *AllFailedError) Unwrap() []error { return e.Failures }

// Metrics holds the prometheus instruments the aggregator feeds. A nil
// *Metrics disables collection.
type Metrics struct {
	Requests    *prometheus.CounterVec   // provider, capability, status
	Duration    *prometheus.HistogramVec // provider, capability
	RateLimited *prometheus.CounterVec   // provider
	Aggregates  *prometheus.CounterVec   // capability
}

// NewMetrics registers the aggregator instruments on the collector.
func NewMetrics(mc *monitoring.MetricsCollector) *Metrics {
	requests, duration, rateLimited := mc.CreateProviderMetrics()
	return &Metrics{
		Requests:    requests,
		Duration:    duration,
		RateLimited: rateLimited,
		Aggregates:  mc.NewCounter("aggregate_total", "Aggregate invocations by capability", []string{"capability"}),
	}
}

func (m *Metrics) observe(provider string, c providers.Capability, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(provider, string(c), status).Inc()
	m.Duration.WithLabelValues(provider, string(c)).Observe(elapsed.Seconds())
}

func (m *Metrics) rateLimited(provider string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(provider).Inc()
}

func (m *Metrics) countAggregate(c providers.Capability) {
	if m == nil {
		return
	}
	m.Aggregates.WithLabelValues(string(c)).Inc()
}

// Options tunes the aggregator.
type Options struct {
	// Timeout bounds each individual provider call, not the whole aggregate.
	Timeout time.Duration
	// Strict makes Aggregate fail when no provider succeeds.
	Strict  bool
	Logger  logging.Logger
	Metrics *Metrics
}

// Aggregator runs one capability query against every eligible provider
// concurrently and merges whatever came back.
type Aggregator struct {
	source  ProviderSource
	timeout time.Duration
	strict  bool
	logger  logging.Logger
	metrics *Metrics
}

// New builds an aggregator over the provider source.
func New(source ProviderSource, opts Options) *Aggregator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Aggregator{
		source:  source,
		timeout: timeout,
		strict:  opts.Strict,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Aggregate fans the query out to every provider supporting it and waits for
// all of them to settle. Failed or timed-out providers are logged, listed in
// FailedProviders and excluded from the merge; siblings are unaffected. With
// no eligible providers the result is empty and the error nil unless strict
// mode is on.
func (a *Aggregator) Aggregate(ctx context.Context, q providers.Query) (MergedResult, error) {
	return a.aggregate(ctx, q, a.strict)
}

// AggregateStrict is Aggregate with strict mode forced on for this call.
func (a *Aggregator) AggregateStrict(ctx context.Context, q providers.Query) (MergedResult, error) {
	return a.aggregate(ctx, q, true)
}

func (a *Aggregator) aggregate(ctx context.Context, q providers.Query, strict bool) (MergedResult, error) {
	merged := MergedResult{Capability: q.Capability}
	a.metrics.countAggregate(q.Capability)

	active := a.source.ActiveProviders(q.Capability, q.Platform)
	if len(active) == 0 {
		if strict {
			return merged, &AllFailedError{Capability: q.Capability}
		}
		return merged, nil
	}

	type callResult struct {
		provider string
		payload  payload
		err      error
	}
	results := make([]callResult, len(active))
	var wg sync.WaitGroup

	for i, p := range active {
		wg.Add(1)
		go func(idx int, p providers.Provider) {
			defer wg.Done()
			pl, err := a.call(ctx, p, q)
			results[idx] = callResult{provider: p.Name(), payload: pl, err: err}
		}(i, p)
	}
	wg.Wait()

	// Merge in registration order so identical runs produce identical output.
	var failures []error
	for _, r := range results {
		if r.err != nil {
			a.logger.WithError(r.err).WithFields(logging.Fields{
				"provider":   r.provider,
				"capability": q.Capability,
			}).Warn("Provider call failed")
			merged.FailedProviders = append(merged.FailedProviders, r.provider)
			failures = append(failures, r.err)
			continue
		}
		merged.absorb(r.payload)
	}

	if strict && len(failures) == len(active) {
		return merged, &AllFailedError{Capability: q.Capability, Failures: failures}
	}
	return merged, nil
}

// call runs one provider invocation under its own deadline. A call that
// outlives the deadline is abandoned: its goroutine drains into a buffered
// channel and the context cancellation unwinds the underlying transport.
func (a *Aggregator) call(ctx context.Context, p providers.Provider, q providers.Query) (payload, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		payload payload
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		pl, err := invoke(cctx, p, q)
		done <- outcome{payload: pl, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-cctx.Done():
		out.err = cctx.Err()
	}
	elapsed := time.Since(start)

	if out.err != nil {
		err := a.classify(p.Name(), q.Capability, out.err)
		if providers.IsRateLimit(err) {
			a.metrics.rateLimited(p.Name())
		}
		a.metrics.observe(p.Name(), q.Capability, statusOf(err), elapsed)
		return payload{}, err
	}
	a.metrics.observe(p.Name(), q.Capability, "success", elapsed)
	return out.payload, nil
}

func (a *Aggregator) classify(provider string, c providers.Capability, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &providers.TimeoutError{Provider: provider, Capability: c, Timeout: a.timeout}
	case providers.IsRateLimit(err):
		return err
	default:
		return &providers.Failure{Provider: provider, Capability: c, Err: err}
	}
}

func statusOf(err error) string {
	switch {
	case providers.IsTimeout(err):
		return "timeout"
	case providers.IsRateLimit(err):
		return "rate_limited"
	default:
		return "error"
	}
}

// payload carries one provider's typed result between goroutines.
type payload struct {
	metrics       *providers.UserMetrics
	trends        []providers.EngagementTrend
	trending      []providers.TrendingItem
	rates         []providers.MarketRate
	competitors   []providers.CompetitorProfile
	opportunities []providers.BrandOpportunity
}

func invoke(ctx context.Context, p providers.Provider, q providers.Query) (payload, error) {
	var pl payload
	var err error
	switch q.Capability {
	case providers.CapUserMetrics:
		pl.metrics, err = p.UserMetrics(ctx, q.Platform, q.Username)
	case providers.CapEngagementTrends:
		pl.trends, err = p.EngagementTrends(ctx, q.Platform, q.Username, q.WindowDays)
	case providers.CapTrendingContent:
		pl.trending, err = p.Trending(ctx, q.Platform, q.Category)
	case providers.CapMarketRates:
		pl.rates, err = p.MarketRates(ctx, q.Platform, q.ContentType)
	case providers.CapCompetitorAnalysis:
		pl.competitors, err = p.Competitors(ctx, q.Platform, q.Competitors)
	case providers.CapBrandOpportunities:
		pl.opportunities, err = p.BrandOpportunities(ctx, q.Platform, q.Industry)
	default:
		err = fmt.Errorf("unknown capability %q", q.Capability)
	}
	return pl, err
}

// absorb folds one provider payload into the result. List capabilities
// concatenate. UserMetrics is single-valued: the first successful non-nil
// value in registration order wins, and values from later providers are
// discarded even though those providers still ran and were logged.
func (m *MergedResult) absorb(pl payload) {
	if pl.metrics != nil && m.Metrics == nil {
		m.Metrics = pl.metrics
	}
	m.Trends = append(m.Trends, pl.trends...)
	m.Trending = append(m.Trending, pl.trending...)
	m.Rates = append(m.Rates, pl.rates...)
	m.Competitors = append(m.Competitors, pl.competitors...)
	m.Opportunities = append(m.Opportunities, pl.opportunities...)
}
