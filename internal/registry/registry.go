package registry

import (
	"context"
	"io"

	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/internal/providers/direct"
	"viraltogether/api_enrichment/internal/providers/insight"
	"viraltogether/api_enrichment/internal/providers/toolserver"
	"viraltogether/api_enrichment/pkg/logging"
	"viraltogether/api_enrichment/pkg/search"
)

// Registry constructs the active providers from configuration and exposes
// them in a fixed registration order: tool server, then the direct platform
// adapters (instagram, twitter, youtube, tiktok), then insight. Merge
// ordering downstream depends on this order staying stable.
type Registry struct {
	active []providers.Provider
	logger logging.Logger
}

// ToolServerConfig configures the MCP tool-server family.
type ToolServerConfig struct {
	Enabled      bool
	Endpoint     string
	ServiceToken string
	Platforms    []providers.Platform
	RateLimit    int
}

// DirectPlatform configures one direct platform adapter.
type DirectPlatform struct {
	Enabled   bool
	Token     string
	RateLimit int
}

// DirectConfig configures the direct platform-API family. Enabled gates the
// whole family; a disabled family contributes zero providers regardless of
// the per-platform switches.
type DirectConfig struct {
	Enabled   bool
	Instagram DirectPlatform
	Twitter   DirectPlatform
	YouTube   DirectPlatform
	TikTok    DirectPlatform
}

// InsightConfig configures the web-search family. Search overrides the
// provider built from environment config; tests inject fakes through it.
type InsightConfig struct {
	Enabled   bool
	Search    search.Provider
	Platforms []providers.Platform
	RateLimit int
}

// Config carries the per-family switches and construction inputs.
type Config struct {
	ToolServer ToolServerConfig
	Direct     DirectConfig
	Insight    InsightConfig
	Logger     logging.Logger
}

// New builds every enabled provider. A provider that fails to construct is
// logged and skipped so the rest of the registry keeps serving.
func New(ctx context.Context, cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}
	r := &Registry{logger: logger}

	if cfg.ToolServer.Enabled {
		p, err := toolserver.New(ctx, toolserver.Config{
			Endpoint:     cfg.ToolServer.Endpoint,
			ServiceToken: cfg.ToolServer.ServiceToken,
			Platforms:    cfg.ToolServer.Platforms,
			RateLimit:    cfg.ToolServer.RateLimit,
			Logger:       logger,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to create tool server provider - tool server capabilities disabled")
		} else {
			r.active = append(r.active, p)
		}
	}

	if cfg.Direct.Enabled {
		r.addDirect(providers.PlatformInstagram, cfg.Direct.Instagram, func(dc direct.Config) providers.Provider {
			return direct.NewInstagram(dc)
		})
		r.addDirect(providers.PlatformTwitter, cfg.Direct.Twitter, func(dc direct.Config) providers.Provider {
			return direct.NewTwitter(dc)
		})
		r.addDirect(providers.PlatformYouTube, cfg.Direct.YouTube, func(dc direct.Config) providers.Provider {
			return direct.NewYouTube(dc)
		})
		r.addDirect(providers.PlatformTikTok, cfg.Direct.TikTok, func(dc direct.Config) providers.Provider {
			return direct.NewTikTok(dc)
		})
	}

	if cfg.Insight.Enabled {
		searcher := cfg.Insight.Search
		if searcher == nil {
			var err error
			searcher, err = search.NewProvider(search.LoadConfig())
			if err != nil {
				logger.WithError(err).Warn("Failed to create search provider - insight capabilities disabled")
			}
		}
		if searcher != nil {
			p, err := insight.New(insight.Config{
				Search:    searcher,
				Platforms: cfg.Insight.Platforms,
				RateLimit: cfg.Insight.RateLimit,
				Logger:    logger,
			})
			if err != nil {
				logger.WithError(err).Warn("Failed to create insight provider - insight capabilities disabled")
			} else {
				r.active = append(r.active, p)
			}
		}
	}

	return r
}

func (r *Registry) addDirect(platform providers.Platform, cfg DirectPlatform, build func(direct.Config) providers.Provider) {
	if !cfg.Enabled {
		return
	}
	if cfg.Token == "" {
		r.logger.WithField("platform", platform).Warn("Direct API token not set - platform provider disabled")
		return
	}
	r.active = append(r.active, build(direct.Config{
		Token:     cfg.Token,
		RateLimit: cfg.RateLimit,
		Logger:    r.logger,
	}))
}

// ActiveProviders returns the providers supporting the capability on the
// platform, in registration order. Supports is a pure descriptor check, so
// this never performs I/O.
func (r *Registry) ActiveProviders(c providers.Capability, p providers.Platform) []providers.Provider {
	var matched []providers.Provider
	for _, provider := range r.active {
		if provider.Supports(c, p) {
			matched = append(matched, provider)
		}
	}
	return matched
}

// All returns every registered provider in registration order.
func (r *Registry) All() []providers.Provider {
	return r.active
}

// Names returns the registered provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.active))
	for i, p := range r.active {
		names[i] = p.Name()
	}
	return names
}

// Close releases providers that hold connections.
func (r *Registry) Close() {
	for _, p := range r.active {
		if closer, ok := p.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}
