package direct

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"viraltogether/api_enrichment/internal/providers"
)

const tiktokBaseURL = "https://open.tiktokapis.com/v2"

// TikTokName identifies the tiktok adapter in logs and failure lists.
const TikTokName = "direct_tiktok"

// TikTok wraps the TikTok open API. Like instagram, the API is
// token-scoped: metrics describe the authorized creator account.
type TikTok struct {
	desc providers.Descriptor
	api  *apiClient
}

// NewTikTok builds the tiktok adapter.
func NewTikTok(cfg Config) *TikTok {
	return &TikTok{
		desc: providers.NewDescriptor(TikTokName,
			[]providers.Capability{
				providers.CapUserMetrics,
				providers.CapEngagementTrends,
				providers.CapTrendingContent,
			},
			[]providers.Platform{providers.PlatformTikTok}),
		api: newAPIClient(TikTokName, tiktokBaseURL, "", cfg),
	}
}

// Name implements providers.Provider.
func (k *TikTok) Name() string { return k.desc.Name }

// Supports implements providers.Provider.
func (k *TikTok) Supports(c providers.Capability, p providers.Platform) bool {
	return k.desc.Supports(c, p)
}

type ttUserInfo struct {
	Data struct {
		User struct {
			OpenID         string `json:"open_id"`
			DisplayName    string `json:"display_name"`
			FollowerCount  int64  `json:"follower_count"`
			FollowingCount int64  `json:"following_count"`
			LikesCount     int64  `json:"likes_count"`
			VideoCount     int64  `json:"video_count"`
		} `json:"user"`
	} `json:"data"`
}

type ttVideoList struct {
	Data struct {
		Videos []ttVideo `json:"videos"`
	} `json:"data"`
}

type ttVideo struct {
	ID           string `json:"id"`
	CreateTime   int64  `json:"create_time"`
	ViewCount    int64  `json:"view_count"`
	LikeCount    int64  `json:"like_count"`
	CommentCount int64  `json:"comment_count"`
	ShareCount   int64  `json:"share_count"`
}

type ttHashtagList struct {
	Data struct {
		Hashtags []struct {
			Name           string  `json:"name"`
			VideoCount     int64   `json:"video_count"`
			EngagementRate float64 `json:"engagement_rate"`
			TrendScore     float64 `json:"trend_score"`
			Category       string  `json:"category"`
		} `json:"hashtags"`
	} `json:"data"`
}

// UserMetrics reads the creator profile and derives engagement from the
// account's recent videos.
func (k *TikTok) UserMetrics(ctx context.Context, _ providers.Platform, _ string) (*providers.UserMetrics, error) {
	var info ttUserInfo
	if err := k.api.getJSON(ctx, "/user/info/", url.Values{
		"fields": {"open_id,union_id,avatar_url,display_name,follower_count,following_count,likes_count,video_count"},
	}, &info); err != nil {
		return nil, err
	}
	if info.Data.User.OpenID == "" {
		return nil, nil
	}

	videos, err := k.recentVideos(ctx, 20)
	if err != nil {
		return nil, err
	}

	var views, likes, comments, shares int64
	for _, v := range videos.Data.Videos {
		views += v.ViewCount
		likes += v.LikeCount
		comments += v.CommentCount
		shares += v.ShareCount
	}

	return &providers.UserMetrics{
		Platform:       providers.PlatformTikTok,
		Followers:      info.Data.User.FollowerCount,
		EngagementRate: engagementRate(likes+comments+shares, views),
		Reach:          views,
		Impressions:    views,
		Likes:          likes,
		Comments:       comments,
		Shares:         shares,
		Timestamp:      time.Now(),
	}, nil
}

// EngagementTrends buckets the creator's recent videos by post day.
func (k *TikTok) EngagementTrends(ctx context.Context, _ providers.Platform, _ string, days int) ([]providers.EngagementTrend, error) {
	videos, err := k.recentVideos(ctx, 20)
	if err != nil {
		return nil, err
	}

	samples := make([]postSample, 0, len(videos.Data.Videos))
	for _, v := range videos.Data.Videos {
		samples = append(samples, postSample{
			created:     time.Unix(v.CreateTime, 0),
			engagement:  v.LikeCount + v.CommentCount + v.ShareCount,
			impressions: v.ViewCount,
		})
	}
	return trendFromSamples(providers.PlatformTikTok, days, samples), nil
}

// Trending fetches the discover hashtag feed.
func (k *TikTok) Trending(ctx context.Context, _ providers.Platform, category string) ([]providers.TrendingItem, error) {
	var hashtags ttHashtagList
	if err := k.api.getJSON(ctx, "/discover/hashtag/", url.Values{
		"count": {"20"},
	}, &hashtags); err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]providers.TrendingItem, 0, len(hashtags.Data.Hashtags))
	for _, h := range hashtags.Data.Hashtags {
		cat := h.Category
		if cat == "" {
			cat = "general"
		}
		items = append(items, providers.TrendingItem{
			Platform:       providers.PlatformTikTok,
			Hashtag:        "#" + h.Name,
			PostCount:      h.VideoCount,
			EngagementRate: h.EngagementRate,
			TrendScore:     h.TrendScore,
			Category:       cat,
			Timestamp:      now,
		})
	}
	return filterCategory(items, category), nil
}

// MarketRates is unsupported; the registry never routes it here.
func (k *TikTok) MarketRates(context.Context, providers.Platform, string) ([]providers.MarketRate, error) {
	return nil, nil
}

// Competitors is unsupported; the registry never routes it here.
func (k *TikTok) Competitors(context.Context, providers.Platform, []string) ([]providers.CompetitorProfile, error) {
	return nil, nil
}

// BrandOpportunities is unsupported; the registry never routes it here.
func (k *TikTok) BrandOpportunities(context.Context, providers.Platform, string) ([]providers.BrandOpportunity, error) {
	return nil, nil
}

func (k *TikTok) recentVideos(ctx context.Context, max int) (*ttVideoList, error) {
	var videos ttVideoList
	err := k.api.getJSON(ctx, "/video/list/", url.Values{
		"fields":    {"id,create_time,like_count,comment_count,share_count,view_count"},
		"max_count": {strconv.Itoa(max)},
	}, &videos)
	if err != nil {
		return nil, err
	}
	return &videos, nil
}
