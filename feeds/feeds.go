// Package feeds fetches feed documents and normalizes them into the
// feed and article records the rest of feedscout works with
package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"feedscout/discovery"
	"feedscout/models"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrFetch means the feed document could not be retrieved
	ErrFetch = errors.New("feed fetch failed")
	// ErrParse means the document was retrieved but is not a readable feed
	ErrParse = errors.New("feed parse failed")
)

const DefaultTimeout = 10 * time.Second

// StatusError carries the HTTP status of a failed fetch
type StatusError struct {
	Url    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned http %d", e.Url, e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrFetch
}

type ParserConfig struct {
	Timeout   time.Duration
	UserAgent string
	// Detector tags articles with a language when set
	Detector *LanguageDetector
}

type Parser struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	detector  *LanguageDetector
	now       func() time.Time
}

func NewParser(client *http.Client, config ParserConfig) *Parser {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = discovery.DefaultUserAgent
	}

	return &Parser{
		client:    client,
		timeout:   config.Timeout,
		userAgent: config.UserAgent,
		detector:  config.Detector,
		now:       time.Now,
	}
}

// Fetch downloads and normalizes the feed at feedURL
func (p *Parser) Fetch(ctx context.Context, feedURL string) (*models.FeedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Url: feedURL, Status: resp.StatusCode}
	}

	raw, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	result := p.Normalize(feedURL, raw)

	log.WithFields(log.Fields{
		"url":      feedURL,
		"type":     raw.FeedType,
		"articles": len(result.Articles),
	}).Debug("Fetched feed")

	return result, nil
}

// Normalize maps a parsed document onto models.Feed and models.Article
func (p *Parser) Normalize(feedURL string, raw *gofeed.Feed) *models.FeedResponse {
	now := p.now().UnixMilli()

	feed := models.Feed{
		Id:          ID(feedURL, feedURL),
		Title:       firstNonEmpty(raw.Title, feedURL),
		Url:         feedURL,
		SiteUrl:     firstNonEmpty(raw.Link, feedURL),
		Description: StripHTML(raw.Description),
		LastFetched: now,
	}

	articles := make([]models.Article, 0, len(raw.Items))
	for _, item := range raw.Items {
		articles = append(articles, p.article(feed, item, now))
	}

	return &models.FeedResponse{Feed: feed, Articles: articles}
}

func (p *Parser) article(feed models.Feed, item *gofeed.Item, now int64) models.Article {
	description := StripHTML(firstNonEmpty(item.Description, item.Content))

	article := models.Article{
		Id:          ID(feed.Url, firstNonEmpty(item.GUID, item.Link, item.Title)),
		FeedId:      feed.Id,
		Title:       firstNonEmpty(item.Title, "Untitled"),
		Link:        item.Link,
		Description: description,
		Content:     firstNonEmpty(item.Content, item.Description),
		Author:      author(item),
		PubDate:     now,
		FeedTitle:   feed.Title,
	}

	if item.PublishedParsed != nil {
		article.PubDate = item.PublishedParsed.UnixMilli()
	} else if item.UpdatedParsed != nil {
		article.PubDate = item.UpdatedParsed.UnixMilli()
	}

	if p.detector != nil {
		article.Language = p.detector.Detect(article.Title + " " + description)
	}

	return article
}

func author(item *gofeed.Item) string {
	for _, person := range item.Authors {
		if person != nil && person.Name != "" {
			return person.Name
		}
	}
	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		return item.DublinCoreExt.Creator[0]
	}
	return ""
}

// ID derives a stable identifier from a feed URL and a key within it
func ID(feedURL, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(feedURL+"::"+key)).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
