package providers

import "context"

// Provider is an adapter to one upstream data source. Fetch methods return
// their zero result (nil pointer or empty slice) when the upstream has no
// data; they return an error only for transport, auth or decode failures.
// A provider is only called for capability/platform pairs it Supports;
// the registry filters everything else upstream.
type Provider interface {
	// Name is the stable identifier used in logs and failure lists.
	Name() string

	// Supports is a pure check over the provider's descriptor; no I/O.
	Supports(c Capability, p Platform) bool

	UserMetrics(ctx context.Context, platform Platform, username string) (*UserMetrics, error)
	EngagementTrends(ctx context.Context, platform Platform, username string, days int) ([]EngagementTrend, error)
	Trending(ctx context.Context, platform Platform, category string) ([]TrendingItem, error)
	MarketRates(ctx context.Context, platform Platform, contentType string) ([]MarketRate, error)
	Competitors(ctx context.Context, platform Platform, names []string) ([]CompetitorProfile, error)
	BrandOpportunities(ctx context.Context, platform Platform, industry string) ([]BrandOpportunity, error)
}

// Descriptor declares what a provider can answer. Providers embed one and
// derive Supports from it.
type Descriptor struct {
	Name         string
	Capabilities map[Capability]bool
	Platforms    map[Platform]bool
}

// Supports reports whether both the capability and the platform are enabled.
func (d Descriptor) Supports(c Capability, p Platform) bool {
	return d.Capabilities[c] && d.Platforms[p]
}

// NewDescriptor builds a descriptor from capability and platform lists.
func NewDescriptor(name string, caps []Capability, platforms []Platform) Descriptor {
	d := Descriptor{
		Name:         name,
		Capabilities: make(map[Capability]bool, len(caps)),
		Platforms:    make(map[Platform]bool, len(platforms)),
	}
	for _, c := range caps {
		d.Capabilities[c] = true
	}
	for _, p := range platforms {
		d.Platforms[p] = true
	}
	return d
}
