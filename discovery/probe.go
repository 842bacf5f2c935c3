package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Likelihood is the classification of a single probe
type Likelihood int

const (
	// Indeterminate means the probe could not complete (network failure, timeout)
	Indeterminate Likelihood = iota
	// NotFeed means the server answered but not with a feed
	NotFeed
	// Feed means a successful response with a feed-like content type
	Feed
)

func (l Likelihood) String() string {
	switch l {
	case Feed:
		return "feed"
	case NotFeed:
		return "not_feed"
	default:
		return "indeterminate"
	}
}

// Content type markers accepted as feeds. JSON counts because of JSON Feed.
var feedContentMarkers = []string{"xml", "rss", "atom", "json"}

var errRequest = errors.New("request could not be built")

// Probe issues a HEAD request against rawURL and classifies the response.
// It never returns an error: a failed probe is Indeterminate.
func (d *Discoverer) Probe(ctx context.Context, rawURL string) Likelihood {
	likelihood, _ := d.probe(ctx, rawURL)
	return likelihood
}

func (d *Discoverer) probe(ctx context.Context, rawURL string) (Likelihood, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	likelihood, err := d.head(ctx, rawURL)
	probeDuration.Observe(time.Since(start).Seconds())
	probesTotal.WithLabelValues(likelihood.String()).Inc()

	fields := log.Fields{
		"url":        rawURL,
		"likelihood": likelihood.String(),
		"latency":    time.Since(start),
	}
	if err != nil {
		fields["error"] = err
	}
	log.WithFields(fields).Debug("Probe")

	return likelihood, err
}

func (d *Discoverer) head(ctx context.Context, rawURL string) (Likelihood, error) {
	req, err := d.newRequest(ctx, http.MethodHead, rawURL)
	if err != nil {
		return Indeterminate, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Indeterminate, err
	}
	defer resp.Body.Close()

	return classify(resp.StatusCode, resp.Header.Get("Content-Type")), nil
}

func (d *Discoverer) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRequest, err)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", errRequest, req.URL.Scheme)
	}
	req.Header.Set("User-Agent", d.userAgent)
	return req, nil
}

// classify maps a response to a Likelihood. A successful response with the
// wrong content type is treated exactly like a failed one.
func classify(status int, contentType string) Likelihood {
	if status < 200 || status > 299 {
		return NotFeed
	}
	contentType = strings.ToLower(contentType)
	for _, marker := range feedContentMarkers {
		if strings.Contains(contentType, marker) {
			return Feed
		}
	}
	return NotFeed
}

// isFatal reports whether a probe error means discovery cannot even begin:
// the request could not be built or the host name does not resolve.
func isFatal(err error) bool {
	if errors.Is(err, errRequest) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout && !dnsErr.IsTemporary
	}
	return false
}
