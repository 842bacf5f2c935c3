package models

import "time"

// FeedType is the best-effort format of a discovered feed
type FeedType string

const (
	FeedTypeRSS     FeedType = "rss"
	FeedTypeAtom    FeedType = "atom"
	FeedTypeUnknown FeedType = "unknown"
)

// DiscoveredFeed is a feed URL found by discovery
type DiscoveredFeed struct {
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Type  FeedType `json:"type"`
}

// DiscoverResult is the outcome of a single discovery call
type DiscoverResult struct {
	Feeds        []DiscoveredFeed `json:"feeds"`
	IsDirectFeed bool             `json:"is_direct_feed"`
}

// Feed is the normalized metadata of a feed document
type Feed struct {
	Id          string `json:"id"`
	Title       string `json:"title"`
	Url         string `json:"url"`
	SiteUrl     string `json:"site_url"`
	Description string `json:"description"`
	Category    string `json:"category"`
	LastFetched int64  `json:"last_fetched"`
}

// Article is a single normalized feed item
type Article struct {
	Id          string `json:"id"`
	FeedId      string `json:"feed_id"`
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	PubDate     int64  `json:"pub_date"`
	FeedTitle   string `json:"feed_title"`
	Language    string `json:"language,omitempty"`
	Read        bool   `json:"read"`
	Bookmarked  bool   `json:"bookmarked"`
}

// FeedResponse is a feed together with its articles
type FeedResponse struct {
	Feed     Feed      `json:"feed"`
	Articles []Article `json:"articles"`
}

// ArticlePage is one page of stored articles, newest first
type ArticlePage struct {
	Articles []Article `json:"articles"`
	Cursor   *string   `json:"cursor"`
}

// FeedRefreshedEvent fired when a subscribed feed was fetched successfully
type FeedRefreshedEvent struct {
	Feed     Feed      `json:"feed"`
	Articles []Article `json:"articles"`
}

// FeedFailedEvent fired when a subscribed feed could not be fetched
type FeedFailedEvent struct {
	FeedId string    `json:"feed_id"`
	Url    string    `json:"url"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// RefreshSummaryEvent fired when a refresh run has finished
type RefreshSummaryEvent struct {
	Feeds    int           `json:"feeds"`
	Failed   int           `json:"failed"`
	Articles int           `json:"articles"`
	Duration time.Duration `json:"duration"`
}
