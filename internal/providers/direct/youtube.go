package direct

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"viraltogether/api_enrichment/internal/providers"
)

const youtubeBaseURL = "https://youtube.googleapis.com/youtube/v3"

// YouTubeName identifies the youtube adapter in logs and failure lists.
const YouTubeName = "direct_youtube"

// YouTube wraps the YouTube Data API v3. Auth is an API key passed as the
// key query parameter, not a bearer header.
type YouTube struct {
	desc providers.Descriptor
	api  *apiClient
}

// NewYouTube builds the youtube adapter.
func NewYouTube(cfg Config) *YouTube {
	return &YouTube{
		desc: providers.NewDescriptor(YouTubeName,
			[]providers.Capability{
				providers.CapUserMetrics,
				providers.CapEngagementTrends,
				providers.CapTrendingContent,
			},
			[]providers.Platform{providers.PlatformYouTube}),
		api: newAPIClient(YouTubeName, youtubeBaseURL, "key", cfg),
	}
}

// Name implements providers.Provider.
func (y *YouTube) Name() string { return y.desc.Name }

// Supports implements providers.Provider.
func (y *YouTube) Supports(c providers.Capability, p providers.Platform) bool {
	return y.desc.Supports(c, p)
}

// The Data API serializes counters as strings.
type ytStats struct {
	ViewCount       string `json:"viewCount"`
	SubscriberCount string `json:"subscriberCount"`
	LikeCount       string `json:"likeCount"`
	CommentCount    string `json:"commentCount"`
}

func ytCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

type ytSnippet struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CategoryID  string    `json:"categoryId"`
	ChannelID   string    `json:"channelId"`
	PublishedAt time.Time `json:"publishedAt"`
}

type ytSearchList struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
			VideoID   string `json:"videoId"`
		} `json:"id"`
		Snippet ytSnippet `json:"snippet"`
	} `json:"items"`
}

type ytChannelList struct {
	Items []struct {
		ID         string  `json:"id"`
		Statistics ytStats `json:"statistics"`
	} `json:"items"`
}

type ytVideoList struct {
	Items []struct {
		ID         string    `json:"id"`
		Snippet    ytSnippet `json:"snippet"`
		Statistics ytStats   `json:"statistics"`
	} `json:"items"`
}

// UserMetrics resolves the channel by name, reads its lifetime statistics
// and derives engagement from the ten most recent uploads.
func (y *YouTube) UserMetrics(ctx context.Context, _ providers.Platform, username string) (*providers.UserMetrics, error) {
	channelID, err := y.findChannel(ctx, username)
	if err != nil || channelID == "" {
		return nil, err
	}

	var channels ytChannelList
	if err := y.api.getJSON(ctx, "/channels", url.Values{
		"part": {"statistics"},
		"id":   {channelID},
	}, &channels); err != nil {
		return nil, err
	}
	if len(channels.Items) == 0 {
		return nil, nil
	}
	stats := channels.Items[0].Statistics

	videos, err := y.recentVideos(ctx, channelID, 10)
	if err != nil {
		return nil, err
	}

	var views, likes, comments int64
	for _, v := range videos.Items {
		views += ytCount(v.Statistics.ViewCount)
		likes += ytCount(v.Statistics.LikeCount)
		comments += ytCount(v.Statistics.CommentCount)
	}

	channelViews := ytCount(stats.ViewCount)
	return &providers.UserMetrics{
		Platform:       providers.PlatformYouTube,
		Followers:      ytCount(stats.SubscriberCount),
		EngagementRate: engagementRate(likes+comments, views),
		Reach:          channelViews,
		Impressions:    channelViews,
		Likes:          likes,
		Comments:       comments,
		Timestamp:      time.Now(),
	}, nil
}

// EngagementTrends buckets the channel's recent uploads by publish day.
func (y *YouTube) EngagementTrends(ctx context.Context, _ providers.Platform, username string, days int) ([]providers.EngagementTrend, error) {
	channelID, err := y.findChannel(ctx, username)
	if err != nil || channelID == "" {
		return nil, err
	}

	videos, err := y.recentVideos(ctx, channelID, 25)
	if err != nil {
		return nil, err
	}

	samples := make([]postSample, 0, len(videos.Items))
	for _, v := range videos.Items {
		samples = append(samples, postSample{
			created:     v.Snippet.PublishedAt,
			engagement:  ytCount(v.Statistics.LikeCount) + ytCount(v.Statistics.CommentCount),
			impressions: ytCount(v.Statistics.ViewCount),
		})
	}
	return trendFromSamples(providers.PlatformYouTube, days, samples), nil
}

// Trending reads the mostPopular chart and lifts hashtags out of video
// descriptions, at most three per video. Scores normalize views against
// one million.
func (y *YouTube) Trending(ctx context.Context, _ providers.Platform, category string) ([]providers.TrendingItem, error) {
	var videos ytVideoList
	if err := y.api.getJSON(ctx, "/videos", url.Values{
		"part":       {"snippet,statistics"},
		"chart":      {"mostPopular"},
		"regionCode": {"US"},
		"maxResults": {"20"},
	}, &videos); err != nil {
		return nil, err
	}

	now := time.Now()
	var items []providers.TrendingItem
	for _, v := range videos.Items {
		views := ytCount(v.Statistics.ViewCount)
		engagement := ytCount(v.Statistics.LikeCount) + ytCount(v.Statistics.CommentCount)

		for _, hashtag := range extractHashtags(v.Snippet.Description, 3) {
			if len(items) == 20 {
				return filterCategory(items, category), nil
			}
			items = append(items, providers.TrendingItem{
				Platform:       providers.PlatformYouTube,
				Hashtag:        hashtag,
				PostCount:      1,
				EngagementRate: engagementRate(engagement, views),
				TrendScore:     normScore(float64(views), 1_000_000),
				Category:       v.Snippet.CategoryID,
				Timestamp:      now,
			})
		}
	}
	return filterCategory(items, category), nil
}

// MarketRates is unsupported; the registry never routes it here.
func (y *YouTube) MarketRates(context.Context, providers.Platform, string) ([]providers.MarketRate, error) {
	return nil, nil
}

// Competitors is unsupported; the registry never routes it here.
func (y *YouTube) Competitors(context.Context, providers.Platform, []string) ([]providers.CompetitorProfile, error) {
	return nil, nil
}

// BrandOpportunities is unsupported; the registry never routes it here.
func (y *YouTube) BrandOpportunities(context.Context, providers.Platform, string) ([]providers.BrandOpportunity, error) {
	return nil, nil
}

func (y *YouTube) findChannel(ctx context.Context, username string) (string, error) {
	var search ytSearchList
	err := y.api.getJSON(ctx, "/search", url.Values{
		"part":       {"snippet"},
		"type":       {"channel"},
		"q":          {username},
		"maxResults": {"1"},
	}, &search)
	if err != nil {
		return "", err
	}
	if len(search.Items) == 0 {
		return "", nil
	}
	return search.Items[0].ID.ChannelID, nil
}

// recentVideos lists the channel's newest uploads and joins each with its
// statistics.
func (y *YouTube) recentVideos(ctx context.Context, channelID string, max int) (*ytVideoList, error) {
	var search ytSearchList
	err := y.api.getJSON(ctx, "/search", url.Values{
		"part":       {"snippet"},
		"channelId":  {channelID},
		"type":       {"video"},
		"order":      {"date"},
		"maxResults": {strconv.Itoa(max)},
	}, &search)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(search.Items))
	published := make(map[string]time.Time, len(search.Items))
	for _, item := range search.Items {
		if item.ID.VideoID == "" {
			continue
		}
		ids = append(ids, item.ID.VideoID)
		published[item.ID.VideoID] = item.Snippet.PublishedAt
	}
	if len(ids) == 0 {
		return &ytVideoList{}, nil
	}

	var videos ytVideoList
	err = y.api.getJSON(ctx, "/videos", url.Values{
		"part": {"statistics"},
		"id":   {strings.Join(ids, ",")},
	}, &videos)
	if err != nil {
		return nil, err
	}

	// The statistics call omits snippets; restore publish times from the
	// search results.
	for i := range videos.Items {
		if ts, ok := published[videos.Items[i].ID]; ok {
			videos.Items[i].Snippet.PublishedAt = ts
		}
	}
	return &videos, nil
}

// extractHashtags pulls up to limit #tags out of free text.
func extractHashtags(text string, limit int) []string {
	var tags []string
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "#") && len(field) > 1 {
			tags = append(tags, field)
			if len(tags) == limit {
				break
			}
		}
	}
	return tags
}
