// Package discovery locates the syndication feeds behind an arbitrary web
// address.
//
// A discovery call first checks whether the address is itself a feed. If it
// is not, three strategies run concurrently against it:
//
//   - link tags declared in the page markup
//   - a fixed catalogue of conventional feed paths on the page's origin
//   - platform heuristics derived from the host and path
//
// Every candidate is validated with a HEAD probe. Probe failures are values,
// not errors: a candidate that cannot be confirmed is dropped and nothing
// else happens. The merged result is deduplicated by URL with the first
// occurrence winning, so link-tag entries (which carry real titles) beat the
// defaulted titles of the other two strategies.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"feedscout/models"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidInput is returned when the address is not an absolute URL
	ErrInvalidInput = errors.New("invalid url")

	// ErrUpstream is returned when the direct feed check could not be
	// attempted at all, e.g. the host does not resolve
	ErrUpstream = errors.New("discovery unavailable")
)

const (
	DefaultTimeout      = 8 * time.Second
	DefaultMaxPageBytes = 5 << 20
	DefaultUserAgent    = "Mozilla/5.0 (compatible; feedscout/1.0; +https://github.com/feedscout/feedscout)"
)

// Doer is the HTTP fetch capability used for probes and page fetches
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes a Discoverer. Zero values select the defaults.
type Config struct {
	// Per-request ceiling for probes and the page fetch
	Timeout time.Duration

	// Client identity sent with every request
	UserAgent string

	// Appended to CommonFeedPaths
	ExtraPaths []string

	// Platform heuristics to use, DefaultPlatforms() when nil
	Platforms []Platform

	// Names of platforms to leave out of the registry
	DisabledPlatforms []string

	// Upper bound on the page body read by the link-tag extractor
	MaxPageBytes int64
}

// Discoverer runs feed discovery. It holds no per-call state and is safe for
// concurrent use.
type Discoverer struct {
	client       Doer
	timeout      time.Duration
	userAgent    string
	paths        []string
	platforms    []Platform
	maxPageBytes int64
}

func New(client Doer, config Config) *Discoverer {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.MaxPageBytes <= 0 {
		config.MaxPageBytes = DefaultMaxPageBytes
	}

	platforms := config.Platforms
	if platforms == nil {
		platforms = DefaultPlatforms()
	}
	platforms = lo.Filter(platforms, func(p Platform, _ int) bool {
		return !lo.Contains(config.DisabledPlatforms, p.Name())
	})

	return &Discoverer{
		client:       client,
		timeout:      config.Timeout,
		userAgent:    config.UserAgent,
		paths:        lo.Uniq(append(append([]string{}, CommonFeedPaths...), config.ExtraPaths...)),
		platforms:    platforms,
		maxPageBytes: config.MaxPageBytes,
	}
}

// ValidateURL parses rawURL and checks that it is absolute
func ValidateURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidInput)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute url", ErrInvalidInput, rawURL)
	}
	return u, nil
}

// Discover finds the feeds behind rawURL
func (d *Discoverer) Discover(ctx context.Context, rawURL string) (*models.DiscoverResult, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		discoveriesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)
	target := canonical(u).String()

	start := time.Now()
	logger := log.WithFields(log.Fields{
		"url": rawURL,
	})

	likelihood, err := d.probe(ctx, rawURL)
	if err != nil && isFatal(err) {
		discoveriesTotal.WithLabelValues("upstream_error").Inc()
		logger.WithError(err).Warn("Direct feed check failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if likelihood == Feed {
		discoveriesTotal.WithLabelValues("direct").Inc()
		logger.Info("URL is a direct feed")
		return &models.DiscoverResult{
			Feeds: []models.DiscoveredFeed{
				{URL: rawURL, Title: rawURL, Type: models.FeedTypeUnknown},
			},
			IsDirectFeed: true,
		}, nil
	}
	if err := interrupted(ctx); err != nil {
		return nil, err
	}

	var linkTags, common, platform []models.DiscoveredFeed
	var wg conc.WaitGroup
	wg.Go(func() { linkTags = d.ExtractLinks(ctx, target) })
	wg.Go(func() { common = d.ProbeCommonPaths(ctx, target) })
	wg.Go(func() { platform = d.ProbePlatformPatterns(ctx, target) })
	wg.Wait()

	// Probes cut short by the caller read as "not a feed"
	if err := interrupted(ctx); err != nil {
		return nil, err
	}

	feeds := merge(linkTags, common, platform)

	outcome := "found"
	if len(feeds) == 0 {
		outcome = "empty"
	}
	discoveriesTotal.WithLabelValues(outcome).Inc()

	logger.WithFields(log.Fields{
		"link_tags": len(linkTags),
		"common":    len(common),
		"platform":  len(platform),
		"feeds":     len(feeds),
		"latency":   time.Since(start),
	}).Info("Discovered feeds")

	return &models.DiscoverResult{
		Feeds:        feeds,
		IsDirectFeed: false,
	}, nil
}

// interrupted reports a cancelled or expired caller context as ErrUpstream
func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		discoveriesTotal.WithLabelValues("cancelled").Inc()
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return nil
}

// merge concatenates the strategy outputs in order and drops repeated URLs,
// keeping the first occurrence
func merge(groups ...[]models.DiscoveredFeed) []models.DiscoveredFeed {
	all := make([]models.DiscoveredFeed, 0)
	for _, group := range groups {
		all = append(all, group...)
	}
	return lo.UniqBy(all, func(f models.DiscoveredFeed) string {
		return f.URL
	})
}
