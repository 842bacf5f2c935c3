package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"feedscout/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

const feedLinkSelector = `link[type="application/rss+xml"], link[type="application/atom+xml"]`

// ExtractLinks fetches pageURL once and returns the feeds its markup declares
// with <link> tags, in document order. Any failure yields an empty result.
func (d *Discoverer) ExtractLinks(ctx context.Context, pageURL string) []models.DiscoveredFeed {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	base := canonical(parsed)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	doc, err := d.fetchDocument(ctx, pageURL)
	if err != nil {
		log.WithFields(log.Fields{
			"url":   pageURL,
			"error": err,
		}).Debug("Link tag extraction skipped")
		return nil
	}

	feeds := extractFeedLinks(doc, base)
	feedsFound.WithLabelValues(string(SourceLinkTag)).Add(float64(len(feeds)))
	return feeds
}

func (d *Discoverer) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := d.newRequest(ctx, http.MethodGet, pageURL)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, zstd")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, d.maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func extractFeedLinks(doc *goquery.Document, base *url.URL) []models.DiscoveredFeed {
	feeds := []models.DiscoveredFeed{}

	doc.Find(feedLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := canonical(base.ResolveReference(ref)).String()

		// The label is used as written; only a missing one falls back
		title := s.AttrOr("title", "")
		if title == "" {
			title = resolved
		}

		feeds = append(feeds, models.DiscoveredFeed{
			URL:   resolved,
			Title: title,
			Type:  feedType(s.AttrOr("type", "")),
		})
	})

	return feeds
}

func feedType(mime string) models.FeedType {
	switch {
	case strings.Contains(mime, "atom"):
		return models.FeedTypeAtom
	case strings.Contains(mime, "rss"):
		return models.FeedTypeRSS
	default:
		return models.FeedTypeUnknown
	}
}

// decodeBody undoes the content encodings advertised in fetchDocument
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return reader, nil
	case "zstd":
		decoder, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return decoder.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
