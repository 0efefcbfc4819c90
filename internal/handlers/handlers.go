package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"viraltogether/api_enrichment/internal/aggregator"
	"viraltogether/api_enrichment/internal/enrichment"
	"viraltogether/api_enrichment/internal/providers"
	"viraltogether/api_enrichment/pkg/cache"
	"viraltogether/api_enrichment/pkg/logging"
)

const defaultContentType = "sponsored_post"

// Handlers serves the enrichment HTTP API. Single-capability endpoints go
// through the facade's cached fetch path, so a REST caller and the context
// pipeline share cache entries.
type Handlers struct {
	facade *enrichment.Facade
	store  *cache.Cache
	logger logging.Logger
}

// New creates the HTTP handlers.
func New(facade *enrichment.Facade, store *cache.Cache, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Handlers{facade: facade, store: store, logger: logger}
}

// RegisterRoutes mounts the v1 API on the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")

	v1.POST("/context", h.handleContext)
	v1.GET("/metrics/:platform/:username", h.handleUserMetrics)
	v1.GET("/trending/:platform", h.handleTrending)
	v1.GET("/engagement/:platform/:username", h.handleEngagement)
	v1.GET("/market-rates/:platform", h.handleMarketRates)
	v1.GET("/competitors/:platform", h.handleCompetitors)
	v1.GET("/opportunities", h.handleOpportunities)
	v1.GET("/cache/stats", h.handleCacheStats)
}

type contextRequest struct {
	TaskType    string   `json:"task_type"`
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Platforms   []string `json:"platforms"`
	Competitors []string `json:"competitors"`
	Industry    string   `json:"industry"`
}

func (h *Handlers) handleContext(c *gin.Context) {
	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.TaskType) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_type is required"})
		return
	}
	if !enrichment.KnownTask(req.TaskType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "unknown task_type",
			"known_tasks": enrichment.TaskTypes(),
		})
		return
	}

	platforms := make([]providers.Platform, 0, len(req.Platforms))
	for _, raw := range req.Platforms {
		p, err := providers.ParsePlatform(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		platforms = append(platforms, p)
	}

	bundle, err := h.facade.GatherContext(c.Request.Context(), enrichment.Request{
		TaskType:    req.TaskType,
		UserID:      req.UserID,
		Username:    req.Username,
		Platforms:   platforms,
		Competitors: req.Competitors,
		Industry:    req.Industry,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (h *Handlers) handleUserMetrics(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	h.respondMerged(c, providers.Query{
		Capability: providers.CapUserMetrics,
		Platform:   platform,
		Username:   c.Param("username"),
	})
}

func (h *Handlers) handleTrending(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	h.respondMerged(c, providers.Query{
		Capability: providers.CapTrendingContent,
		Platform:   platform,
		Category:   c.Query("category"),
	})
}

func (h *Handlers) handleEngagement(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = parsed
	}
	h.respondMerged(c, providers.Query{
		Capability: providers.CapEngagementTrends,
		Platform:   platform,
		Username:   c.Param("username"),
		WindowDays: days,
	})
}

func (h *Handlers) handleMarketRates(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	contentType := c.Query("content_type")
	if contentType == "" {
		contentType = defaultContentType
	}
	h.respondMerged(c, providers.Query{
		Capability:  providers.CapMarketRates,
		Platform:    platform,
		ContentType: contentType,
	})
}

func (h *Handlers) handleCompetitors(c *gin.Context) {
	platform, ok := h.platformParam(c)
	if !ok {
		return
	}
	names := splitList(c.Query("names"))
	if len(names) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "names is required"})
		return
	}
	h.respondMerged(c, providers.Query{
		Capability:  providers.CapCompetitorAnalysis,
		Platform:    platform,
		Competitors: names,
	})
}

func (h *Handlers) handleOpportunities(c *gin.Context) {
	platform := providers.PlatformInstagram
	if raw := c.Query("platform"); raw != "" {
		parsed, err := providers.ParsePlatform(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		platform = parsed
	}
	h.respondMerged(c, providers.Query{
		Capability: providers.CapBrandOpportunities,
		Platform:   platform,
		Industry:   c.Query("industry"),
	})
}

func (h *Handlers) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":   h.store.Stats(),
		"entries": h.store.Snapshot(),
	})
}

// platformParam parses the :platform path segment, writing a 400 on failure.
func (h *Handlers) platformParam(c *gin.Context) (providers.Platform, bool) {
	platform, err := providers.ParsePlatform(c.Param("platform"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return platform, true
}

// respondMerged serves one capability query through the shared cache path.
func (h *Handlers) respondMerged(c *gin.Context, q providers.Query) {
	merged, err := h.facade.Fetch(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}

// respondError maps a strict-mode aggregation failure to 502 and anything
// else to 500.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var allFailed *aggregator.AllFailedError
	if errors.As(err, &allFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": allFailed.Error()})
		return
	}
	h.logger.WithError(err).Error("Enrichment request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
