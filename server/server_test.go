package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feedscout/cache"
	"feedscout/db"
	"feedscout/discovery"
	"feedscout/feeds"
	"feedscout/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	mu     sync.Mutex
	calls  int
	result *models.DiscoverResult
	err    error
}

func (f *fakeDiscoverer) Discover(ctx context.Context, rawURL string) (*models.DiscoverResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*models.FeedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	feed := models.Feed{Id: feeds.ID(url, url), Title: "Upstream", Url: url, SiteUrl: "https://site.example"}
	return &models.FeedResponse{
		Feed: feed,
		Articles: []models.Article{
			{Id: feeds.ID(url, "1"), FeedId: feed.Id, Title: "Hello Go", PubDate: 2000},
			{Id: feeds.ID(url, "2"), FeedId: feed.Id, Title: "Second", PubDate: 1000},
		},
	}, nil
}

func newStore(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.db")
	require.NoError(t, db.Migrate(path))
	store, err := db.Open(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func request(t *testing.T, app *fiber.App, method, target string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload["error"]
}

func TestDiscoverEndpoint(t *testing.T) {
	found := &models.DiscoverResult{
		Feeds: []models.DiscoveredFeed{{URL: "https://example.com/feed.xml", Title: "Example Feed", Type: models.FeedTypeRSS}},
	}

	tests := []struct {
		name           string
		target         string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{name: "missing parameter", target: "/api/discover", expectedStatus: 400, expectedError: "Missing ?url= parameter"},
		{name: "invalid url", target: "/api/discover?url=not-a-url", expectedStatus: 400, expectedError: "Invalid URL"},
		{name: "upstream failure", target: "/api/discover?url=https://nowhere.invalid", err: fmt.Errorf("%w: no such host", discovery.ErrUpstream), expectedStatus: 502},
		{name: "success", target: "/api/discover?url=https://example.com", expectedStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discoverer := &fakeDiscoverer{result: found, err: tt.err}
			app := Server(&ServerConfig{Discoverer: discoverer, Fetcher: &fakeFetcher{}})

			resp, body := request(t, app, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorMessage(t, body))
				assert.Zero(t, discoverer.calls, "no discovery for rejected input")
			}
			if tt.expectedStatus == 200 {
				var result models.DiscoverResult
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, *found, result)
				assert.False(t, result.IsDirectFeed)
			}
		})
	}
}

func TestDiscoverIsCached(t *testing.T) {
	discoverer := &fakeDiscoverer{result: &models.DiscoverResult{Feeds: []models.DiscoveredFeed{}}}
	app := Server(&ServerConfig{Discoverer: discoverer, Fetcher: &fakeFetcher{}, Cache: cache.New(time.Minute)})

	resp, body := request(t, app, http.MethodGet, "/api/discover?url=https://example.com", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.JSONEq(t, `{"feeds":[],"is_direct_feed":false}`, string(body))

	resp, _ = request(t, app, http.MethodGet, "/api/discover?url=https://example.com", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, 1, discoverer.calls)
}

func TestDiscoverErrorsAreNotCached(t *testing.T) {
	discoverer := &fakeDiscoverer{err: discovery.ErrUpstream}
	app := Server(&ServerConfig{Discoverer: discoverer, Fetcher: &fakeFetcher{}, Cache: cache.New(time.Minute)})

	request(t, app, http.MethodGet, "/api/discover?url=https://example.com", nil)
	request(t, app, http.MethodGet, "/api/discover?url=https://example.com", nil)
	assert.Equal(t, 2, discoverer.calls)
}

func TestFeedEndpoint(t *testing.T) {
	fetcher := &fakeFetcher{}
	app := Server(&ServerConfig{Discoverer: &fakeDiscoverer{}, Fetcher: fetcher, Cache: cache.New(5 * time.Minute)})

	resp, body := request(t, app, http.MethodGet, "/api/feed?url=https://example.com/feed.xml", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.Equal(t, "public, max-age=300, stale-while-revalidate=60", resp.Header.Get("Cache-Control"))

	var result models.FeedResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "Upstream", result.Feed.Title)
	assert.Len(t, result.Articles, 2)

	resp, _ = request(t, app, http.MethodGet, "/api/feed?url=https://example.com/feed.xml", nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, 1, fetcher.calls)
}

func TestFeedEndpointErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "fetch failure", err: &feeds.StatusError{Url: "https://example.com/feed.xml", Status: 404}, expectedStatus: 502},
		{name: "parse failure", err: fmt.Errorf("%w: not xml", feeds.ErrParse), expectedStatus: 502},
		{name: "unexpected", err: fmt.Errorf("boom"), expectedStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := Server(&ServerConfig{Discoverer: &fakeDiscoverer{}, Fetcher: &fakeFetcher{err: tt.err}})
			resp, body := request(t, app, http.MethodGet, "/api/feed?url=https://example.com/feed.xml", nil)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.NotEmpty(t, errorMessage(t, body))
		})
	}
}

func TestSubscriptionRoutesNeedStore(t *testing.T) {
	app := Server(&ServerConfig{Discoverer: &fakeDiscoverer{}, Fetcher: &fakeFetcher{}})
	resp, _ := request(t, app, http.MethodGet, "/api/feeds", nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestSubscriptionLifecycle(t *testing.T) {
	store := newStore(t)
	app := Server(&ServerConfig{
		Discoverer: &fakeDiscoverer{},
		Fetcher:    &fakeFetcher{},
		Store:      store,
		Categories: []string{"Uncategorized", "Tech"},
	})
	feedURL := "https://example.com/feed.xml"

	// Subscribe
	resp, body := request(t, app, http.MethodPost, "/api/feeds", map[string]string{"url": feedURL, "category": "Go"})
	require.Equal(t, 201, resp.StatusCode, string(body))
	var feed models.Feed
	require.NoError(t, json.Unmarshal(body, &feed))
	assert.Equal(t, feeds.ID(feedURL, feedURL), feed.Id)
	assert.Equal(t, "Upstream", feed.Title)
	assert.Equal(t, "Go", feed.Category)

	// Subscribing again returns the existing subscription
	resp, _ = request(t, app, http.MethodPost, "/api/feeds", map[string]string{"url": feedURL})
	assert.Equal(t, 200, resp.StatusCode)

	resp, body = request(t, app, http.MethodGet, "/api/feeds", nil)
	require.Equal(t, 200, resp.StatusCode)
	var all []models.Feed
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 1)

	resp, body = request(t, app, http.MethodGet, "/api/categories", nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `["Uncategorized","Tech","Go"]`, string(body))

	// Rename
	resp, body = request(t, app, http.MethodPatch, "/api/feeds/"+feed.Id, map[string]string{"title": "Mine"})
	require.Equal(t, 200, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &feed))
	assert.Equal(t, "Mine", feed.Title)
	assert.Equal(t, "Go", feed.Category)

	// Articles stored on subscribe
	resp, body = request(t, app, http.MethodGet, "/api/articles?limit=1", nil)
	require.Equal(t, 200, resp.StatusCode)
	var page models.ArticlePage
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "Hello Go", page.Articles[0].Title)
	assert.Equal(t, "Mine", page.Articles[0].FeedTitle)
	require.NotNil(t, page.Cursor)

	first := page.Articles[0].Id
	resp, _ = request(t, app, http.MethodPost, "/api/articles/"+first+"/read", nil)
	assert.Equal(t, 204, resp.StatusCode)
	resp, _ = request(t, app, http.MethodPost, "/api/articles/"+first+"/bookmark", nil)
	assert.Equal(t, 204, resp.StatusCode)

	resp, body = request(t, app, http.MethodGet, "/api/articles?unread=true", nil)
	require.Equal(t, 200, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "Second", page.Articles[0].Title)
	assert.Nil(t, page.Cursor)

	resp, body = request(t, app, http.MethodGet, "/api/articles?bookmarked=true&q=hello", nil)
	require.Equal(t, 200, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Articles, 1)
	assert.True(t, page.Articles[0].Read)
	assert.True(t, page.Articles[0].Bookmarked)

	resp, _ = request(t, app, http.MethodDelete, "/api/articles/"+first+"/bookmark", nil)
	assert.Equal(t, 204, resp.StatusCode)
	resp, _ = request(t, app, http.MethodDelete, "/api/articles/"+first+"/read", nil)
	assert.Equal(t, 204, resp.StatusCode)

	resp, _ = request(t, app, http.MethodPost, "/api/articles/missing/read", nil)
	assert.Equal(t, 404, resp.StatusCode)

	// Unsubscribe
	resp, _ = request(t, app, http.MethodDelete, "/api/feeds/"+feed.Id, nil)
	assert.Equal(t, 204, resp.StatusCode)
	resp, _ = request(t, app, http.MethodDelete, "/api/feeds/"+feed.Id, nil)
	assert.Equal(t, 404, resp.StatusCode)
	resp, _ = request(t, app, http.MethodGet, "/api/feeds/"+feed.Id, nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestAddFeedValidation(t *testing.T) {
	app := Server(&ServerConfig{Discoverer: &fakeDiscoverer{}, Fetcher: &fakeFetcher{}, Store: newStore(t)})

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "missing url", body: map[string]string{}},
		{name: "invalid url", body: map[string]string{"url": "/relative"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := request(t, app, http.MethodPost, "/api/feeds", tt.body)
			assert.Equal(t, 400, resp.StatusCode)
		})
	}

	resp, _ := request(t, app, http.MethodPost, "/api/feeds", nil)
	assert.Equal(t, 400, resp.StatusCode, "empty body")
}

func TestHealthAndMetrics(t *testing.T) {
	app := Server(&ServerConfig{Discoverer: &fakeDiscoverer{}, Fetcher: &fakeFetcher{}})

	resp, body := request(t, app, http.MethodGet, "/healthz", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = request(t, app, http.MethodGet, "/metrics", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	client := make(chan Event, 1)
	b.AddClient("a", client)
	assert.Equal(t, 1, b.ClientCount())

	b.Broadcast(models.RefreshSummaryEvent{Feeds: 2})
	evt := <-client
	assert.Equal(t, "refresh-summary", evt.Name)
	assert.Equal(t, models.RefreshSummaryEvent{Feeds: 2}, evt.Data)

	// Full client channels drop events instead of blocking
	b.Broadcast(models.FeedFailedEvent{Url: "x"})
	b.Broadcast(models.FeedFailedEvent{Url: "y"})
	evt = <-client
	assert.Equal(t, "feed-failed", evt.Name)

	b.Broadcast("not an event")
	select {
	case evt := <-client:
		t.Fatalf("unexpected event %v", evt)
	default:
	}

	b.RemoveClient("a")
	_, open := <-client
	assert.False(t, open)
	assert.Equal(t, 0, b.ClientCount())

	b.RemoveClient("a")
}

func TestBroadcasterRun(t *testing.T) {
	b := NewBroadcaster()
	client := make(chan Event, 1)
	b.AddClient("a", client)

	events := make(chan interface{})
	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), events)
		close(done)
	}()

	events <- models.FeedRefreshedEvent{Feed: models.Feed{Url: "u"}}
	close(events)
	<-done

	evt := <-client
	assert.Equal(t, "feed-refreshed", evt.Name)

	b.Shutdown()
	assert.Equal(t, 0, b.ClientCount())
}
