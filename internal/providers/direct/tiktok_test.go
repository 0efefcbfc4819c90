package direct

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"viraltogether/api_enrichment/internal/providers"
)

func newTikTokStub(t *testing.T) *TikTok {
	t.Helper()

	created := time.Now().AddDate(0, 0, -2).Unix()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/info/":
			fmt.Fprint(w, `{"data":{"user":{"open_id":"abc","display_name":"creatorx","follower_count":88000,"likes_count":500000,"video_count":120}}}`)
		case "/video/list/":
			fmt.Fprintf(w, `{"data":{"videos":[
				{"id":"v1","create_time":%d,"view_count":50000,"like_count":4000,"comment_count":500,"share_count":500},
				{"id":"v2","create_time":%d,"view_count":30000,"like_count":2500,"comment_count":300,"share_count":200}
			]}}`, created, created)
		case "/discover/hashtag/":
			fmt.Fprint(w, `{"data":{"hashtags":[
				{"name":"dancechallenge","video_count":120000,"engagement_rate":7.5,"trend_score":0.93,"category":"dance"},
				{"name":"cooking","video_count":45000,"engagement_rate":5.1,"trend_score":0.77}
			]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)

	return NewTikTok(Config{Token: "tt-tok", BaseURL: ts.URL})
}

func TestTikTokUserMetrics(t *testing.T) {
	tk := newTikTokStub(t)

	m, err := tk.UserMetrics(context.Background(), providers.PlatformTikTok, "creatorx")
	if err != nil {
		t.Fatalf("UserMetrics: %v", err)
	}
	if m.Followers != 88000 {
		t.Fatalf("expected 88000 followers, got %d", m.Followers)
	}
	// (6500 + 800 + 700) / 80000 * 100
	if m.EngagementRate != 10.0 {
		t.Fatalf("expected 10.0 rate, got %v", m.EngagementRate)
	}
	if m.Reach != 80000 || m.Impressions != 80000 {
		t.Fatalf("expected view totals as reach, got %d/%d", m.Reach, m.Impressions)
	}
	if m.Likes != 6500 || m.Comments != 800 || m.Shares != 700 {
		t.Fatalf("unexpected sums: likes=%d comments=%d shares=%d", m.Likes, m.Comments, m.Shares)
	}
}

func TestTikTokUserMetrics_NoAccount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	}))
	t.Cleanup(ts.Close)
	tk := NewTikTok(Config{BaseURL: ts.URL})

	m, err := tk.UserMetrics(context.Background(), providers.PlatformTikTok, "ghost")
	if err != nil {
		t.Fatalf("expected absent without error, got %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil metrics, got %+v", m)
	}
}

func TestTikTokEngagementTrends(t *testing.T) {
	tk := newTikTokStub(t)

	trends, err := tk.EngagementTrends(context.Background(), providers.PlatformTikTok, "creatorx", 30)
	if err != nil {
		t.Fatalf("EngagementTrends: %v", err)
	}
	if len(trends) != 1 {
		t.Fatalf("expected 1 trend, got %d", len(trends))
	}
	if trends[0].PeriodDays != 30 {
		t.Fatalf("expected 30 day period, got %d", trends[0].PeriodDays)
	}
	if len(trends[0].Points) != 1 {
		t.Fatalf("expected 1 daily point, got %d", len(trends[0].Points))
	}
	if trends[0].AvgEngagement != 10.0 {
		t.Fatalf("expected 10.0 average, got %v", trends[0].AvgEngagement)
	}
}

func TestTikTokTrending(t *testing.T) {
	tk := newTikTokStub(t)

	items, err := tk.Trending(context.Background(), providers.PlatformTikTok, "")
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Hashtag != "#dancechallenge" {
		t.Fatalf("expected #dancechallenge, got %s", items[0].Hashtag)
	}
	if items[0].TrendScore != 0.93 {
		t.Fatalf("expected upstream score, got %v", items[0].TrendScore)
	}
	// Missing category falls back to general.
	if items[1].Category != "general" {
		t.Fatalf("expected general fallback, got %s", items[1].Category)
	}

	dance, err := tk.Trending(context.Background(), providers.PlatformTikTok, "dance")
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if len(dance) != 1 || dance[0].Hashtag != "#dancechallenge" {
		t.Fatalf("expected only the dance item, got %+v", dance)
	}
}
