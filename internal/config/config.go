package config

import (
	"strings"
	"time"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/config"
)

// Config stores environment configuration for Spyglass.
type Config struct {
	Port string

	ToolServerEnabled   bool
	ToolServerURL       string
	ToolServerToken     string
	ToolServerPlatforms []providers.Platform
	ToolServerRateLimit int

	DirectEnabled        bool
	DirectPlatforms      []providers.Platform
	InstagramAccessToken string
	TwitterBearerToken   string
	YouTubeAPIKey        string
	TikTokAccessToken    string

	InsightEnabled   bool
	InsightPlatforms []providers.Platform
	InsightRateLimit int

	SearchProvider string
	SearchAPIKey   string
	SearchAPIURL   string

	ProviderTimeout  time.Duration
	AggregatorStrict bool

	TTLUserMetrics      time.Duration
	TTLEngagementTrends time.Duration
	TTLTrending         time.Duration
	TTLMarketRates      time.Duration
	TTLCompetitors      time.Duration
	TTLOpportunities    time.Duration

	RateLimitInstagram int
	RateLimitTwitter   int
	RateLimitYouTube   int
	RateLimitTikTok    int

	CacheMaxEntries int
}

// HasDirectPlatform reports whether the direct family covers the platform.
func (c Config) HasDirectPlatform(p providers.Platform) bool {
	for _, known := range c.DirectPlatforms {
		if known == p {
			return true
		}
	}
	return false
}

// LoadConfig loads the Spyglass configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port: config.GetEnv("PORT", "18050"),

		ToolServerEnabled:   config.GetEnvBool("TOOLSERVER_ENABLED", false),
		ToolServerURL:       config.GetEnv("TOOLSERVER_URL", ""),
		ToolServerToken:     config.GetEnv("TOOLSERVER_TOKEN", ""),
		ToolServerPlatforms: parsePlatforms(config.GetEnv("TOOLSERVER_PLATFORMS", "")),
		ToolServerRateLimit: config.GetEnvInt("RATE_LIMIT_TOOLSERVER", 1000),

		DirectEnabled:        config.GetEnvBool("DIRECT_ENABLED", false),
		DirectPlatforms:      parsePlatforms(config.GetEnv("DIRECT_PLATFORMS", "")),
		InstagramAccessToken: config.GetEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		TwitterBearerToken:   config.GetEnv("TWITTER_BEARER_TOKEN", ""),
		YouTubeAPIKey:        config.GetEnv("YOUTUBE_API_KEY", ""),
		TikTokAccessToken:    config.GetEnv("TIKTOK_ACCESS_TOKEN", ""),

		InsightEnabled:   config.GetEnvBool("INSIGHT_ENABLED", false),
		InsightPlatforms: parsePlatforms(config.GetEnv("INSIGHT_PLATFORMS", "")),
		InsightRateLimit: config.GetEnvInt("RATE_LIMIT_INSIGHT", 1000),

		SearchProvider: config.GetEnv("SEARCH_PROVIDER", "tavily"),
		SearchAPIKey:   config.GetEnv("SEARCH_API_KEY", ""),
		SearchAPIURL:   config.GetEnv("SEARCH_API_URL", ""),

		ProviderTimeout:  config.GetEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		AggregatorStrict: config.GetEnvBool("AGGREGATOR_STRICT", false),

		TTLUserMetrics:      config.GetEnvDuration("TTL_USER_METRICS", 5*time.Minute),
		TTLEngagementTrends: config.GetEnvDuration("TTL_ENGAGEMENT_TRENDS", 10*time.Minute),
		TTLTrending:         config.GetEnvDuration("TTL_TRENDING", 5*time.Minute),
		TTLMarketRates:      config.GetEnvDuration("TTL_MARKET_RATES", 15*time.Minute),
		TTLCompetitors:      config.GetEnvDuration("TTL_COMPETITORS", 10*time.Minute),
		TTLOpportunities:    config.GetEnvDuration("TTL_OPPORTUNITIES", 15*time.Minute),

		RateLimitInstagram: config.GetEnvInt("RATE_LIMIT_INSTAGRAM", 200),
		RateLimitTwitter:   config.GetEnvInt("RATE_LIMIT_TWITTER", 300),
		RateLimitYouTube:   config.GetEnvInt("RATE_LIMIT_YOUTUBE", 100),
		RateLimitTikTok:    config.GetEnvInt("RATE_LIMIT_TIKTOK", 150),

		CacheMaxEntries: config.GetEnvInt("CACHE_MAX_ENTRIES", 1024),
	}
}

// parsePlatforms parses a comma-separated platform list. Unknown entries are
// skipped. An empty or fully invalid list yields every platform.
func parsePlatforms(s string) []providers.Platform {
	s = strings.TrimSpace(s)
	if s == "" {
		return providers.Platforms()
	}
	var result []providers.Platform
	for _, item := range strings.Split(s, ",") {
		p, err := providers.ParsePlatform(item)
		if err != nil {
			continue
		}
		result = append(result, p)
	}
	if len(result) == 0 {
		return providers.Platforms()
	}
	return result
}
