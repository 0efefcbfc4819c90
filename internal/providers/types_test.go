package providers

import "testing"

func TestCacheKeyIsOrderIndependent(t *testing.T) {
	a := Query{
		Capability: CapTrendingContent,
		Platform:   PlatformInstagram,
		Category:   "lifestyle",
	}
	b := Query{
		Category:   "lifestyle",
		Platform:   PlatformInstagram,
		Capability: CapTrendingContent,
	}

	if a.CacheKey() != b.CacheKey() {
		t.Fatalf("expected identical keys, got %q vs %q", a.CacheKey(), b.CacheKey())
	}
	if got := a.CacheKey(); got != "trending_content:category=lifestyle:platform=instagram" {
		t.Fatalf("unexpected canonical key %q", got)
	}
}

func TestCacheKeySortsParameterNames(t *testing.T) {
	q := Query{
		Capability:  CapMarketRates,
		Platform:    PlatformYouTube,
		ContentType: "sponsored_post",
	}
	if got := q.CacheKey(); got != "market_rates:content_type=sponsored_post:platform=youtube" {
		t.Fatalf("expected sorted parameter names, got %q", got)
	}
}

func TestCacheKeyOmitsUnsetParameters(t *testing.T) {
	q := Query{Capability: CapTrendingContent, Platform: PlatformTikTok}
	if got := q.CacheKey(); got != "trending_content:platform=tiktok" {
		t.Fatalf("expected unset params omitted, got %q", got)
	}
}

func TestCacheKeyCanonicalizesCompetitorOrder(t *testing.T) {
	a := Query{
		Capability:  CapCompetitorAnalysis,
		Platform:    PlatformInstagram,
		Competitors: []string{"glowlab", "fitfuel"},
	}
	b := Query{
		Capability:  CapCompetitorAnalysis,
		Platform:    PlatformInstagram,
		Competitors: []string{"fitfuel", "glowlab"},
	}
	if a.CacheKey() != b.CacheKey() {
		t.Fatalf("expected competitor order not to matter, got %q vs %q", a.CacheKey(), b.CacheKey())
	}
}

func TestCacheKeyDistinguishesDifferentQueries(t *testing.T) {
	a := Query{Capability: CapTrendingContent, Platform: PlatformInstagram}
	b := Query{Capability: CapTrendingContent, Platform: PlatformTikTok}
	c := Query{Capability: CapEngagementTrends, Platform: PlatformInstagram}

	if a.CacheKey() == b.CacheKey() {
		t.Fatalf("expected platform to be part of the key")
	}
	if a.CacheKey() == c.CacheKey() {
		t.Fatalf("expected capability to be part of the key")
	}
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform(" Instagram ")
	if err != nil {
		t.Fatalf("ParsePlatform: %v", err)
	}
	if p != PlatformInstagram {
		t.Fatalf("expected instagram, got %q", p)
	}

	if _, err := ParsePlatform("myspace"); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestDescriptorSupports(t *testing.T) {
	d := NewDescriptor("probe",
		[]Capability{CapTrendingContent, CapUserMetrics},
		[]Platform{PlatformInstagram, PlatformTikTok},
	)

	if !d.Supports(CapTrendingContent, PlatformInstagram) {
		t.Fatalf("expected trending/instagram supported")
	}
	if d.Supports(CapMarketRates, PlatformInstagram) {
		t.Fatalf("expected market_rates unsupported")
	}
	if d.Supports(CapTrendingContent, PlatformYouTube) {
		t.Fatalf("expected youtube unsupported")
	}
}
