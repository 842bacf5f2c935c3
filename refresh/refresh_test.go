package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"feedscout/feeds"
	"feedscout/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	feeds []models.Feed
	err   error
}

func (s *fakeStore) ListFeeds(ctx context.Context, category string) ([]models.Feed, error) {
	return s.feeds, s.err
}

// fakeFetcher fails a url's first failures[url] attempts with errs[url]
type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	errs     map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:    map[string]int{},
		failures: map[string]int{},
		errs:     map[string]error{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*models.FeedResponse, error) {
	f.mu.Lock()
	f.calls[url]++
	attempt := f.calls[url]
	f.mu.Unlock()

	if err, ok := f.errs[url]; ok && attempt <= f.failures[url] {
		return nil, err
	}
	return &models.FeedResponse{
		Feed: models.Feed{Id: feeds.ID(url, url), Title: "Upstream " + url, Url: url},
		Articles: []models.Article{
			{Id: feeds.ID(url, "1"), Title: "one", FeedTitle: "Upstream " + url},
			{Id: feeds.ID(url, "2"), Title: "two", FeedTitle: "Upstream " + url},
		},
	}, nil
}

func (f *fakeFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func subscription(url, title string) models.Feed {
	return models.Feed{Id: feeds.ID(url, url), Title: title, Url: url, Category: "Tech"}
}

func collect(ch chan interface{}) []interface{} {
	events := []interface{}{}
	for {
		select {
		case evt := <-ch:
			events = append(events, evt)
		default:
			return events
		}
	}
}

func testConfig() Config {
	return Config{
		Workers:        3,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestRefreshAll(t *testing.T) {
	store := &fakeStore{feeds: []models.Feed{
		subscription("https://a.example/feed", "A"),
		subscription("https://b.example/feed", "B"),
		subscription("https://c.example/feed", "C"),
	}}
	fetcher := newFakeFetcher()
	fetcher.errs["https://b.example/feed"] = &feeds.StatusError{Url: "https://b.example/feed", Status: 404}
	fetcher.failures["https://b.example/feed"] = 100

	events := make(chan interface{}, 16)
	summary, err := New(fetcher, store, testConfig(), events).RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Feeds)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Articles)

	refreshed := map[string]models.FeedRefreshedEvent{}
	failed := []models.FeedFailedEvent{}
	var last interface{}
	for _, evt := range collect(events) {
		switch e := evt.(type) {
		case models.FeedRefreshedEvent:
			refreshed[e.Feed.Url] = e
		case models.FeedFailedEvent:
			failed = append(failed, e)
		}
		last = evt
	}

	require.Len(t, refreshed, 2)
	a := refreshed["https://a.example/feed"]
	assert.Equal(t, "A", a.Feed.Title, "subscription title wins over upstream")
	assert.Equal(t, "Tech", a.Feed.Category)
	assert.Equal(t, "A", a.Articles[0].FeedTitle)

	require.Len(t, failed, 1)
	assert.Equal(t, "https://b.example/feed", failed[0].Url)
	assert.Contains(t, failed[0].Error, "404")

	assert.IsType(t, models.RefreshSummaryEvent{}, last, "summary is published last")
}

func TestRetries(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		failures      int
		expectedCalls int
		expectFailure bool
	}{
		{name: "transient error recovers", err: errors.New("connection reset"), failures: 2, expectedCalls: 3},
		{name: "retries are bounded", err: errors.New("connection reset"), failures: 100, expectedCalls: 3, expectFailure: true},
		{name: "server error is retried", err: &feeds.StatusError{Status: 503}, failures: 1, expectedCalls: 2},
		{name: "rate limit is retried", err: &feeds.StatusError{Status: 429}, failures: 1, expectedCalls: 2},
		{name: "client error is permanent", err: &feeds.StatusError{Status: 410}, failures: 100, expectedCalls: 1, expectFailure: true},
		{name: "parse error is permanent", err: fmt.Errorf("%w: bad xml", feeds.ErrParse), failures: 100, expectedCalls: 1, expectFailure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "https://retry.example/feed"
			fetcher := newFakeFetcher()
			fetcher.errs[url] = tt.err
			fetcher.failures[url] = tt.failures

			r := New(fetcher, &fakeStore{feeds: []models.Feed{subscription(url, "R")}}, testConfig())
			summary, err := r.RefreshAll(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.expectedCalls, fetcher.Calls(url))
			if tt.expectFailure {
				assert.Equal(t, 1, summary.Failed)
			} else {
				assert.Equal(t, 0, summary.Failed)
				assert.Equal(t, 2, summary.Articles)
			}
		})
	}
}

func TestRefreshAllStoreError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(newFakeFetcher(), &fakeStore{err: boom}, testConfig()).RefreshAll(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunStopsWithContext(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeStore{feeds: []models.Feed{subscription("https://a.example/feed", "A")}}
	config := testConfig()
	config.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(fetcher, store, config).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return fetcher.Calls("https://a.example/feed") >= 2
	}, time.Second, 5*time.Millisecond, "refreshes again on every tick")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
