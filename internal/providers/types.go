package providers

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Capability names one kind of query a provider may answer.
type Capability string

const (
	CapUserMetrics        Capability = "user_metrics"
	CapEngagementTrends   Capability = "engagement_trends"
	CapTrendingContent    Capability = "trending_content"
	CapMarketRates        Capability = "market_rates"
	CapCompetitorAnalysis Capability = "competitor_analysis"
	CapBrandOpportunities Capability = "brand_opportunities"
)

// Capabilities returns every known capability in stable order.
func Capabilities() []Capability {
	return []Capability{
		CapUserMetrics,
		CapEngagementTrends,
		CapTrendingContent,
		CapMarketRates,
		CapCompetitorAnalysis,
		CapBrandOpportunities,
	}
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// Platform identifies a social network.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
)

// Platforms returns every supported platform in stable order.
func Platforms() []Platform {
	return []Platform{PlatformInstagram, PlatformTikTok, PlatformTwitter, PlatformYouTube}
}

// ParsePlatform validates a platform string from config or a request.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// UserMetrics is an account-level metrics snapshot.
type UserMetrics struct {
	Platform       Platform  `json:"platform"`
	Followers      int64     `json:"followers"`
	EngagementRate float64   `json:"engagement_rate"`
	Reach          int64     `json:"reach"`
	Impressions    int64     `json:"impressions"`
	Likes          int64     `json:"likes"`
	Comments       int64     `json:"comments"`
	Shares         int64     `json:"shares"`
	Timestamp      time.Time `json:"timestamp"`
}

// TrendingItem is one trending hashtag or topic.
type TrendingItem struct {
	Platform       Platform  `json:"platform"`
	Hashtag        string    `json:"hashtag"`
	PostCount      int64     `json:"post_count"`
	EngagementRate float64   `json:"engagement_rate"`
	TrendScore     float64   `json:"trend_score"`
	Category       string    `json:"category"`
	Timestamp      time.Time `json:"timestamp"`
}

// RateRange bounds a sponsorship rate quote.
type RateRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// MarketRate is a sponsorship rate for one follower bucket.
type MarketRate struct {
	Platform            Platform  `json:"platform"`
	ContentType         string    `json:"content_type"`
	FollowerRange       string    `json:"follower_range"`
	RateRange           RateRange `json:"rate_range"`
	EngagementThreshold float64   `json:"engagement_threshold"`
	Timestamp           time.Time `json:"timestamp"`
}

// CompetitorProfile summarizes one competitor account.
type CompetitorProfile struct {
	Name             string    `json:"competitor_name"`
	Platform         Platform  `json:"platform"`
	Followers        int64     `json:"followers"`
	EngagementRate   float64   `json:"engagement_rate"`
	ContentFrequency float64   `json:"content_frequency"`
	TopContent       []string  `json:"top_performing_content"`
	GrowthRate       float64   `json:"growth_rate"`
	Timestamp        time.Time `json:"timestamp"`
}

// TrendPoint is one sample in an engagement trend series.
type TrendPoint struct {
	Date           time.Time `json:"date"`
	EngagementRate float64   `json:"engagement_rate"`
	Posts          int       `json:"posts"`
}

// EngagementTrend is an account's engagement trajectory over a period.
type EngagementTrend struct {
	Platform      Platform     `json:"platform"`
	PeriodDays    int          `json:"period_days"`
	AvgEngagement float64      `json:"avg_engagement_rate"`
	Direction     string       `json:"trend_direction"`
	Points        []TrendPoint `json:"data_points,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Trend directions.
const (
	TrendRising    = "rising"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// BrandOpportunity is a discovered brand partnership lead.
type BrandOpportunity struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	Type           string    `json:"opportunity_type"`
	Requirements   []string  `json:"requirements,omitempty"`
	Compensation   string    `json:"compensation_range"`
	RelevanceScore float64   `json:"relevance_score"`
	Timestamp      time.Time `json:"timestamp"`
}

// Opportunity types.
const (
	OpportunityPaidPartnership = "paid_partnership"
	OpportunityCollaboration   = "collaboration"
	OpportunityAmbassador      = "ambassador_program"
	OpportunityGeneral         = "general_opportunity"
)

// Query carries the parameters of one capability call. Zero-valued fields
// are unset and stay out of the cache key.
type Query struct {
	Capability  Capability
	Platform    Platform
	Username    string
	UserID      int64
	Category    string
	ContentType string
	Competitors []string
	Industry    string
	WindowDays  int
}

// CacheKey builds the canonical cache key for the query: the capability
// name followed by every set parameter as name=value pairs sorted by name.
// Identical parameters always produce an identical key regardless of how
// the Query was assembled.
func (q Query) CacheKey() string {
	params := make(map[string]string, 8)
	if q.Platform != "" {
		params["platform"] = string(q.Platform)
	}
	if q.Username != "" {
		params["username"] = q.Username
	}
	if q.UserID != 0 {
		params["user_id"] = strconv.FormatInt(q.UserID, 10)
	}
	if q.Category != "" {
		params["category"] = q.Category
	}
	if q.ContentType != "" {
		params["content_type"] = q.ContentType
	}
	if len(q.Competitors) > 0 {
		names := append([]string(nil), q.Competitors...)
		sort.Strings(names)
		params["competitors"] = strings.Join(names, ",")
	}
	if q.Industry != "" {
		params["industry"] = q.Industry
	}
	if q.WindowDays != 0 {
		params["days"] = strconv.Itoa(q.WindowDays)
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(q.Capability))
	for _, name := range names {
		b.WriteByte(':')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}
