package discovery

import (
	"context"
	"net"
	"net/url"
	"strings"

	"feedscout/models"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"
)

// CommonFeedPaths is the catalogue of conventional feed locations, probed in
// this order relative to the target's origin
var CommonFeedPaths = []string{
	"/feed",
	"/feed/",
	"/rss",
	"/rss/",
	"/rss.xml",
	"/atom.xml",
	"/feed.xml",
	"/index.xml",
	"/feeds/posts/default",
	"/?feed=rss2",
}

// Source tags which strategy produced a candidate
type Source string

const (
	SourceLinkTag    Source = "link_tag"
	SourceCommonPath Source = "common_path"
	SourcePlatform   Source = "platform"
)

// Candidate is a URL hypothesized to be a feed
type Candidate struct {
	URL    string
	Source Source
}

// ProbeCommonPaths probes every catalogue path on the origin of baseURL and
// returns the ones that answer like a feed, in catalogue order
func (d *Discoverer) ProbeCommonPaths(ctx context.Context, baseURL string) []models.DiscoveredFeed {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	o := origin(u)

	candidates := lo.Map(d.paths, func(path string, _ int) Candidate {
		return Candidate{URL: o + path, Source: SourceCommonPath}
	})

	return d.probeCandidates(ctx, candidates)
}

// probeCandidates probes all candidates at once. Results keep the order of
// candidates regardless of completion order; unconfirmed ones are dropped.
func (d *Discoverer) probeCandidates(ctx context.Context, candidates []Candidate) []models.DiscoveredFeed {
	if len(candidates) == 0 {
		return []models.DiscoveredFeed{}
	}

	mapper := iter.Mapper[Candidate, *models.DiscoveredFeed]{
		MaxGoroutines: len(candidates),
	}
	results := mapper.Map(candidates, func(c *Candidate) *models.DiscoveredFeed {
		if d.Probe(ctx, c.URL) != Feed {
			return nil
		}
		return &models.DiscoveredFeed{
			URL:   c.URL,
			Title: c.URL,
			Type:  models.FeedTypeUnknown,
		}
	})

	return lo.FilterMap(results, func(f *models.DiscoveredFeed, i int) (models.DiscoveredFeed, bool) {
		if f == nil {
			return models.DiscoveredFeed{}, false
		}
		feedsFound.WithLabelValues(string(candidates[i].Source)).Inc()
		return *f, true
	})
}

// canonical lowercases the scheme and host and drops the scheme's default
// port, so the same feed reached through different strategies compares equal
func canonical(u *url.URL) *url.URL {
	c := *u
	c.Scheme = strings.ToLower(u.Scheme)
	c.Host = canonicalHost(c.Scheme, u)
	return &c
}

func canonicalHost(scheme string, u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// origin returns scheme://host[:port] with the default port left out
func origin(u *url.URL) string {
	c := canonical(u)
	return c.Scheme + "://" + c.Host
}
