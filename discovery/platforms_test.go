package discovery

import (
	"net/url"
	"testing"

	"feedscout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestPlatformDetection(t *testing.T) {
	tests := []struct {
		name     string
		detect   func(*url.URL) []string
		url      string
		expected []string
	}{
		{name: "substack subdomain", detect: substack, url: "https://writer.substack.com/p/post", expected: []string{"https://writer.substack.com/feed"}},
		{name: "substack other host", detect: substack, url: "https://substack.example.com", expected: nil},
		{name: "medium root", detect: medium, url: "https://medium.com", expected: []string{"https://medium.com/feed/"}},
		{name: "medium publication", detect: medium, url: "https://medium.com/@someone", expected: []string{"https://medium.com/feed/@someone"}},
		{name: "medium subdomain", detect: medium, url: "https://someone.medium.com/", expected: []string{"https://someone.medium.com/feed/"}},
		{name: "medium lookalike", detect: medium, url: "https://notmedium.com/x", expected: nil},
		{name: "wordpress always", detect: wordpress, url: "https://anything.example", expected: []string{"/feed", "/feed/atom"}},
		{name: "ghost always", detect: ghost, url: "https://anything.example", expected: []string{"/rss/"}},
		{name: "youtube channel", detect: youtube, url: "https://www.youtube.com/channel/UCabc/videos", expected: []string{"https://www.youtube.com/feeds/videos.xml?channel_id=UCabc"}},
		{name: "youtube handle", detect: youtube, url: "https://youtube.com/@creator", expected: []string{"https://www.youtube.com/feeds/videos.xml?channel_id=creator"}},
		{name: "youtube custom url", detect: youtube, url: "https://m.youtube.com/c/Creator", expected: []string{"https://www.youtube.com/feeds/videos.xml?channel_id=Creator"}},
		{name: "youtube watch page", detect: youtube, url: "https://www.youtube.com/watch?v=abc", expected: nil},
		{name: "handle on other host", detect: youtube, url: "https://mastodon.social/@someone", expected: nil},
		{name: "blogger", detect: blogger, url: "https://someone.blogspot.com/2024/01/post.html", expected: []string{"https://someone.blogspot.com/feeds/posts/default"}},
		{name: "tumblr", detect: tumblr, url: "https://artist.tumblr.com/post/1", expected: []string{"https://artist.tumblr.com/rss"}},
		{name: "subreddit", detect: reddit, url: "https://old.reddit.com/r/golang/comments/x", expected: []string{"https://www.reddit.com/r/golang/.rss"}},
		{name: "reddit front page", detect: reddit, url: "https://www.reddit.com/", expected: nil},
		{name: "github repo", detect: github, url: "https://github.com/golang/go/issues", expected: []string{"https://github.com/golang/go/releases.atom", "https://github.com/golang/go/commits.atom"}},
		{name: "github user", detect: github, url: "https://github.com/golang", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.detect(mustParse(t, tt.url)))
		})
	}
}

func TestPlatformCandidatesResolveAgainstTarget(t *testing.T) {
	d := New(nil, Config{})

	candidates := d.platformCandidates(mustParse(t, "https://blog.example.com/posts/hello"))
	assert.Equal(t, []Candidate{
		{URL: "https://blog.example.com/feed", Source: SourcePlatform},
		{URL: "https://blog.example.com/feed/atom", Source: SourcePlatform},
		{URL: "https://blog.example.com/rss/", Source: SourcePlatform},
	}, candidates)
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{url: "https://example.com/a/b?c=d#e", expected: "https://example.com"},
		{url: "HTTPS://Example.COM", expected: "https://example.com"},
		{url: "https://example.com:443/", expected: "https://example.com"},
		{url: "http://example.com:80/", expected: "http://example.com"},
		{url: "http://example.com:8080/x", expected: "http://example.com:8080"},
		{url: "http://[::1]:8080/x", expected: "http://[::1]:8080"},
		{url: "http://[::1]/x", expected: "http://[::1]"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, origin(mustParse(t, tt.url)))
		})
	}
}

func TestFeedType(t *testing.T) {
	assert.Equal(t, "atom", string(feedType("application/atom+xml")))
	assert.Equal(t, "rss", string(feedType("application/rss+xml")))
	assert.Equal(t, "unknown", string(feedType("application/xml")))
}

func TestMergeKeepsFirstOccurrence(t *testing.T) {
	merged := merge(
		[]models.DiscoveredFeed{{URL: "a", Title: "A", Type: models.FeedTypeRSS}},
		[]models.DiscoveredFeed{{URL: "a", Title: "a"}, {URL: "b", Title: "b"}},
		[]models.DiscoveredFeed{{URL: "b", Title: "other"}, {URL: "c", Title: "c"}},
	)
	assert.Equal(t, []models.DiscoveredFeed{
		{URL: "a", Title: "A", Type: models.FeedTypeRSS},
		{URL: "b", Title: "b"},
		{URL: "c", Title: "c"},
	}, merged)
}
