package direct

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"viraltogether/api_enrichment/internal/providers"
)

const twitterBaseURL = "https://api.twitter.com/2"

// TwitterName identifies the twitter adapter in logs and failure lists.
const TwitterName = "direct_twitter"

// Twitter wraps the Twitter v2 API. Account metrics come from the user
// lookup plus the account's recent tweets; trending comes from the
// worldwide trends endpoint.
type Twitter struct {
	desc providers.Descriptor
	api  *apiClient
}

// NewTwitter builds the twitter adapter.
func NewTwitter(cfg Config) *Twitter {
	return &Twitter{
		desc: providers.NewDescriptor(TwitterName,
			[]providers.Capability{
				providers.CapUserMetrics,
				providers.CapEngagementTrends,
				providers.CapTrendingContent,
			},
			[]providers.Platform{providers.PlatformTwitter}),
		api: newAPIClient(TwitterName, twitterBaseURL, "", cfg),
	}
}

// Name implements providers.Provider.
func (t *Twitter) Name() string { return t.desc.Name }

// Supports implements providers.Provider.
func (t *Twitter) Supports(c providers.Capability, p providers.Platform) bool {
	return t.desc.Supports(c, p)
}

type twitterUser struct {
	Data struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		PublicMetrics struct {
			FollowersCount int64 `json:"followers_count"`
			FollowingCount int64 `json:"following_count"`
			TweetCount     int64 `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

type twitterTweets struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics struct {
			LikeCount       int64 `json:"like_count"`
			RetweetCount    int64 `json:"retweet_count"`
			ReplyCount      int64 `json:"reply_count"`
			ImpressionCount int64 `json:"impression_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

type twitterTrends struct {
	Trends []struct {
		Name        string `json:"name"`
		TweetVolume int64  `json:"tweet_volume"`
	} `json:"trends"`
}

// UserMetrics looks the user up by handle and derives engagement from the
// account's ten most recent tweets.
func (t *Twitter) UserMetrics(ctx context.Context, _ providers.Platform, username string) (*providers.UserMetrics, error) {
	user, err := t.lookupUser(ctx, username)
	if err != nil || user == nil {
		return nil, err
	}

	tweets, err := t.recentTweets(ctx, user.Data.ID, 10)
	if err != nil {
		return nil, err
	}

	var engagement, impressions, likes, comments, shares int64
	for _, tw := range tweets.Data {
		m := tw.PublicMetrics
		engagement += m.LikeCount + m.RetweetCount + m.ReplyCount
		impressions += m.ImpressionCount
		likes += m.LikeCount
		comments += m.ReplyCount
		shares += m.RetweetCount
	}

	followers := user.Data.PublicMetrics.FollowersCount
	return &providers.UserMetrics{
		Platform:       providers.PlatformTwitter,
		Followers:      followers,
		EngagementRate: engagementRate(engagement, impressions),
		Reach:          followers,
		Impressions:    impressions,
		Likes:          likes,
		Comments:       comments,
		Shares:         shares,
		Timestamp:      time.Now(),
	}, nil
}

// EngagementTrends buckets the account's recent tweets by day.
func (t *Twitter) EngagementTrends(ctx context.Context, _ providers.Platform, username string, days int) ([]providers.EngagementTrend, error) {
	user, err := t.lookupUser(ctx, username)
	if err != nil || user == nil {
		return nil, err
	}

	tweets, err := t.recentTweets(ctx, user.Data.ID, 100)
	if err != nil {
		return nil, err
	}

	samples := make([]postSample, 0, len(tweets.Data))
	for _, tw := range tweets.Data {
		m := tw.PublicMetrics
		samples = append(samples, postSample{
			created:     tw.CreatedAt,
			engagement:  m.LikeCount + m.RetweetCount + m.ReplyCount,
			impressions: m.ImpressionCount,
		})
	}
	return trendFromSamples(providers.PlatformTwitter, days, samples), nil
}

// Trending fetches worldwide trends. The trends endpoint reports no
// engagement, so the score is tweet volume normalized against 1000.
func (t *Twitter) Trending(ctx context.Context, _ providers.Platform, category string) ([]providers.TrendingItem, error) {
	var trends twitterTrends
	if err := t.api.getJSON(ctx, "/trends/by/woeid/1", nil, &trends); err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]providers.TrendingItem, 0, len(trends.Trends))
	for _, tr := range trends.Trends {
		if len(items) == 20 {
			break
		}
		items = append(items, providers.TrendingItem{
			Platform:   providers.PlatformTwitter,
			Hashtag:    tr.Name,
			PostCount:  tr.TweetVolume,
			TrendScore: normScore(float64(tr.TweetVolume), 1000),
			Category:   "trending",
			Timestamp:  now,
		})
	}
	return filterCategory(items, category), nil
}

// MarketRates is unsupported; the registry never routes it here.
func (t *Twitter) MarketRates(context.Context, providers.Platform, string) ([]providers.MarketRate, error) {
	return nil, nil
}

// Competitors is unsupported; the registry never routes it here.
func (t *Twitter) Competitors(context.Context, providers.Platform, []string) ([]providers.CompetitorProfile, error) {
	return nil, nil
}

// BrandOpportunities is unsupported; the registry never routes it here.
func (t *Twitter) BrandOpportunities(context.Context, providers.Platform, string) ([]providers.BrandOpportunity, error) {
	return nil, nil
}

func (t *Twitter) lookupUser(ctx context.Context, username string) (*twitterUser, error) {
	var user twitterUser
	err := t.api.getJSON(ctx, "/users/by/username/"+url.PathEscape(username), url.Values{
		"user.fields": {"public_metrics,verified,created_at"},
	}, &user)
	if err != nil {
		return nil, err
	}
	if user.Data.ID == "" {
		return nil, nil
	}
	return &user, nil
}

func (t *Twitter) recentTweets(ctx context.Context, userID string, max int) (*twitterTweets, error) {
	var tweets twitterTweets
	err := t.api.getJSON(ctx, "/users/"+url.PathEscape(userID)+"/tweets", url.Values{
		"max_results":  {strconv.Itoa(max)},
		"tweet.fields": {"public_metrics,created_at"},
	}, &tweets)
	if err != nil {
		return nil, err
	}
	return &tweets, nil
}
