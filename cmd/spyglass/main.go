package main

import (
	"context"
	"strings"
	"time"

	"viraltogether/api_enrichment/internal/aggregator"
	spyglassconfig "viraltogether/api_enrichment/internal/config"
	"viraltogether/api_enrichment/internal/enrichment"
	"viraltogether/api_enrichment/internal/handlers"
	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/internal/registry"
	"viraltogether/api_enrichment/pkg/cache"
	"viraltogether/api_enrichment/pkg/config"
	"viraltogether/api_enrichment/pkg/logging"
	"viraltogether/api_enrichment/pkg/monitoring"
	"viraltogether/api_enrichment/pkg/search"
	"viraltogether/api_enrichment/pkg/server"
	"viraltogether/api_enrichment/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("spyglass")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Spyglass (Real-Time Enrichment API)")

	cfg := spyglassconfig.LoadConfig()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("spyglass", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("spyglass", version.Version, version.GitCommit)

	// Required configuration depends on which provider families are enabled.
	requiredConfig := map[string]string{}
	if cfg.ToolServerEnabled {
		requiredConfig["TOOLSERVER_URL"] = cfg.ToolServerURL
	}
	if cfg.InsightEnabled {
		requiredConfig["SEARCH_API_KEY"] = cfg.SearchAPIKey
	}
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(requiredConfig))

	var searchProvider search.Provider
	if cfg.InsightEnabled {
		var err error
		searchProvider, err = search.NewProvider(search.Config{
			Provider: cfg.SearchProvider,
			APIKey:   cfg.SearchAPIKey,
			APIURL:   cfg.SearchAPIURL,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize search provider")
			searchProvider = nil
		}
	}

	// Build the provider registry. Construction failures degrade rather
	// than abort; the registry logs and skips the broken family.
	regCtx, regCancel := context.WithTimeout(context.Background(), 30*time.Second)
	reg := registry.New(regCtx, registry.Config{
		ToolServer: registry.ToolServerConfig{
			Enabled:      cfg.ToolServerEnabled,
			Endpoint:     cfg.ToolServerURL,
			ServiceToken: cfg.ToolServerToken,
			Platforms:    cfg.ToolServerPlatforms,
			RateLimit:    cfg.ToolServerRateLimit,
		},
		Direct: registry.DirectConfig{
			Enabled: cfg.DirectEnabled,
			Instagram: registry.DirectPlatform{
				Enabled:   cfg.HasDirectPlatform(providers.PlatformInstagram),
				Token:     cfg.InstagramAccessToken,
				RateLimit: cfg.RateLimitInstagram,
			},
			Twitter: registry.DirectPlatform{
				Enabled:   cfg.HasDirectPlatform(providers.PlatformTwitter),
				Token:     cfg.TwitterBearerToken,
				RateLimit: cfg.RateLimitTwitter,
			},
			YouTube: registry.DirectPlatform{
				Enabled:   cfg.HasDirectPlatform(providers.PlatformYouTube),
				Token:     cfg.YouTubeAPIKey,
				RateLimit: cfg.RateLimitYouTube,
			},
			TikTok: registry.DirectPlatform{
				Enabled:   cfg.HasDirectPlatform(providers.PlatformTikTok),
				Token:     cfg.TikTokAccessToken,
				RateLimit: cfg.RateLimitTikTok,
			},
		},
		Insight: registry.InsightConfig{
			Enabled:   cfg.InsightEnabled,
			Search:    searchProvider,
			Platforms: cfg.InsightPlatforms,
			RateLimit: cfg.InsightRateLimit,
		},
		Logger: logger,
	})
	regCancel()
	defer reg.Close()

	logger.WithField("providers", strings.Join(reg.Names(), ", ")).Info("Provider registry initialized")

	healthChecker.AddCheck("providers", func() monitoring.CheckResult {
		names := reg.Names()
		if len(names) == 0 {
			return monitoring.CheckResult{
				Status:  monitoring.StatusDegraded,
				Message: "No providers active",
			}
		}
		return monitoring.CheckResult{
			Status:  monitoring.StatusHealthy,
			Message: strings.Join(names, ", "),
		}
	})

	// TTL cache with prometheus hooks
	cacheRequests, cacheEntries := metricsCollector.CreateCacheMetrics()
	entriesGauge := cacheEntries.WithLabelValues("enrichment")
	var store *cache.Cache
	store = cache.New(cache.Options{MaxEntries: cfg.CacheMaxEntries}, cache.MetricsHooks{
		OnHit:  func(string) { cacheRequests.WithLabelValues("hit").Inc() },
		OnMiss: func(string) { cacheRequests.WithLabelValues("miss").Inc() },
		OnExpired: func(string) {
			cacheRequests.WithLabelValues("expired").Inc()
			entriesGauge.Set(float64(store.Len()))
		},
		OnStore: func(string) { entriesGauge.Set(float64(store.Len())) },
		// Eviction runs under the cache lock; adjust without reading Len.
		OnEvict: func(string) { entriesGauge.Dec() },
	})

	agg := aggregator.New(reg, aggregator.Options{
		Timeout: cfg.ProviderTimeout,
		Strict:  cfg.AggregatorStrict,
		Logger:  logger,
		Metrics: aggregator.NewMetrics(metricsCollector),
	})

	facade := enrichment.New(agg, store, enrichment.Config{
		TTL: enrichment.TTLPolicy{
			UserMetrics:      cfg.TTLUserMetrics,
			EngagementTrends: cfg.TTLEngagementTrends,
			Trending:         cfg.TTLTrending,
			MarketRates:      cfg.TTLMarketRates,
			Competitors:      cfg.TTLCompetitors,
			Opportunities:    cfg.TTLOpportunities,
		},
		Logger: logger,
	})

	// Setup router with unified monitoring (health/metrics/version)
	router := server.SetupServiceRouter(logger, "spyglass", healthChecker, metricsCollector)

	api := handlers.New(facade, store, logger)
	api.RegisterRoutes(router)

	// Start HTTP server with graceful shutdown
	serverConfig := server.DefaultConfig("spyglass", cfg.Port)
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
