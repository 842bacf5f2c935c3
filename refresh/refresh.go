// Package refresh periodically refetches every subscribed feed and publishes
// the results as events
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"feedscout/feeds"
	"feedscout/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	refreshRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscout_refresh_runs_total",
		Help: "The total number of refresh runs",
	})

	refreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscout_refresh_feed_failures_total",
		Help: "Feeds that could not be fetched after all retries",
	})

	refreshRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscout_refresh_retries_total",
		Help: "Feed fetch attempts that were retried",
	})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedscout_refresh_duration_seconds",
		Help:    "Duration of a full refresh run",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // Start at 0.5s, double each bucket, 10 buckets
	})
)

// Fetcher retrieves and normalizes a feed document
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.FeedResponse, error)
}

// Store lists the subscriptions to refresh
type Store interface {
	ListFeeds(ctx context.Context, category string) ([]models.Feed, error)
}

type Config struct {
	Workers    int
	MaxRetries uint64
	Interval   time.Duration
	// InitialBackoff is the first retry delay; later delays grow exponentially
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Refresher struct {
	fetcher Fetcher
	store   Store
	config  Config
	sinks   []chan<- interface{}
}

// New creates a Refresher that publishes every event to each sink
func New(fetcher Fetcher, store Store, config Config, sinks ...chan<- interface{}) *Refresher {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Interval <= 0 {
		config.Interval = 15 * time.Minute
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 500 * time.Millisecond
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	return &Refresher{
		fetcher: fetcher,
		store:   store,
		config:  config,
		sinks:   sinks,
	}
}

// Run refreshes immediately and then every interval until ctx is done
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Refresh run failed")
		}

		select {
		case <-ctx.Done():
			log.Info("Refresher shutting down")
			return
		case <-ticker.C:
		}
	}
}

// RefreshAll fetches every subscription once with a pool of workers. A
// failing feed is reported and never stops the others.
func (r *Refresher) RefreshAll(ctx context.Context) (models.RefreshSummaryEvent, error) {
	start := time.Now()
	refreshRuns.Inc()

	subscriptions, err := r.store.ListFeeds(ctx, "")
	if err != nil {
		return models.RefreshSummaryEvent{}, err
	}

	log.WithFields(log.Fields{
		"feeds":   len(subscriptions),
		"workers": r.config.Workers,
	}).Info("Refreshing feeds")

	jobs := make(chan models.Feed)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary = models.RefreshSummaryEvent{Feeds: len(subscriptions)}
	)

	for i := 0; i < r.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range jobs {
				articles, err := r.refreshFeed(ctx, feed)

				mu.Lock()
				if err != nil {
					summary.Failed++
				} else {
					summary.Articles += articles
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, feed := range subscriptions {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- feed:
		}
	}
	close(jobs)
	wg.Wait()

	summary.Duration = time.Since(start)
	refreshDuration.Observe(summary.Duration.Seconds())
	r.emit(ctx, summary)

	return summary, ctx.Err()
}

func (r *Refresher) refreshFeed(ctx context.Context, feed models.Feed) (int, error) {
	resp, err := r.fetchWithRetry(ctx, feed.Url)
	if err != nil {
		refreshFailures.Inc()
		log.WithFields(log.Fields{
			"feed":  feed.Url,
			"error": err,
		}).Warn("Failed to refresh feed")

		r.emit(ctx, models.FeedFailedEvent{
			FeedId: feed.Id,
			Url:    feed.Url,
			Error:  err.Error(),
			At:     time.Now(),
		})
		return 0, err
	}

	// Keep the subscription's identity and user-chosen naming
	resp.Feed.Id = feed.Id
	resp.Feed.Title = feed.Title
	resp.Feed.Category = feed.Category
	for i := range resp.Articles {
		resp.Articles[i].FeedId = feed.Id
		resp.Articles[i].FeedTitle = feed.Title
	}

	r.emit(ctx, models.FeedRefreshedEvent{
		Feed:     resp.Feed,
		Articles: resp.Articles,
	})
	return len(resp.Articles), nil
}

func (r *Refresher) fetchWithRetry(ctx context.Context, url string) (*models.FeedResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.config.InitialBackoff
	policy.MaxInterval = r.config.MaxBackoff
	policy.MaxElapsedTime = 0 // bounded by MaxRetries instead

	var resp *models.FeedResponse
	operation := func() error {
		var err error
		resp, err = r.fetcher.Fetch(ctx, url)
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		refreshRetries.Inc()
		log.WithFields(log.Fields{
			"feed":  url,
			"error": err,
			"wait":  wait,
		}).Debug("Retrying feed fetch")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.config.MaxRetries), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// retryable reports whether another attempt may succeed. Client errors and
// unparseable documents will not change on retry.
func retryable(err error) bool {
	if errors.Is(err, feeds.ErrParse) {
		return false
	}
	var statusErr *feeds.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status < 400 || statusErr.Status >= 500 || statusErr.Status == 429
	}
	return true
}

func (r *Refresher) emit(ctx context.Context, evt interface{}) {
	for _, sink := range r.sinks {
		select {
		case sink <- evt:
		case <-ctx.Done():
			return
		}
	}
}
