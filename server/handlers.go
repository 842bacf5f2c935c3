package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"feedscout/db"
	"feedscout/discovery"
	"feedscout/feeds"
	"feedscout/models"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	defaultArticleLimit = 20
	maxArticleLimit     = 100
	defaultCategory     = "Uncategorized"
)

type handlers struct {
	config *ServerConfig
}

// errorHandler maps domain errors onto HTTP statuses with a JSON body
func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
	case errors.Is(err, discovery.ErrInvalidInput):
		status = fiber.StatusBadRequest
	case errors.Is(err, discovery.ErrUpstream), errors.Is(err, feeds.ErrFetch), errors.Is(err, feeds.ErrParse):
		status = fiber.StatusBadGateway
	case errors.Is(err, db.ErrNotFound):
		status = fiber.StatusNotFound
	}

	if status >= 500 {
		log.WithFields(log.Fields{
			"path":  c.Path(),
			"error": err,
		}).Error("Request failed")
	}

	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// targetURL reads and validates the url query parameter
func targetURL(c *fiber.Ctx) (string, error) {
	raw := strings.TrimSpace(c.Query("url"))
	if raw == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "Missing ?url= parameter")
	}
	if _, err := discovery.ValidateURL(raw); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "Invalid URL")
	}
	return raw, nil
}

// cached runs compute through the shared cache when one is configured
func (h *handlers) cached(key string, compute func() (interface{}, error)) (interface{}, bool, error) {
	if h.config.Cache == nil {
		v, err := compute()
		return v, false, err
	}
	return h.config.Cache.Do(key, compute)
}

func (h *handlers) discover(c *fiber.Ctx) error {
	raw, err := targetURL(c)
	if err != nil {
		return err
	}

	result, hit, err := h.cached("discover:"+raw, func() (interface{}, error) {
		return h.config.Discoverer.Discover(c.UserContext(), raw)
	})
	if err != nil {
		return err
	}

	c.Set("X-Cache", cacheHeader(hit))
	return c.JSON(result)
}

func (h *handlers) feed(c *fiber.Ctx) error {
	raw, err := targetURL(c)
	if err != nil {
		return err
	}

	result, hit, err := h.cached("feed:"+raw, func() (interface{}, error) {
		return h.config.Fetcher.Fetch(c.UserContext(), raw)
	})
	if err != nil {
		return err
	}

	if h.config.Cache != nil {
		c.Set("Cache-Control", fmt.Sprintf(
			"public, max-age=%d, stale-while-revalidate=60",
			int(h.config.Cache.TTL().Seconds()),
		))
	}
	c.Set("X-Cache", cacheHeader(hit))
	return c.JSON(result)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// categories merges the configured categories with those in use
func (h *handlers) categories(c *fiber.Ctx) error {
	categories := append([]string{}, h.config.Categories...)
	if h.config.Store != nil {
		used, err := h.config.Store.Categories(c.UserContext())
		if err != nil {
			return err
		}
		categories = append(categories, used...)
	}
	return c.JSON(lo.Uniq(categories))
}

func (h *handlers) listFeeds(c *fiber.Ctx) error {
	subscriptions, err := h.config.Store.ListFeeds(c.UserContext(), c.Query("category"))
	if err != nil {
		return err
	}
	return c.JSON(subscriptions)
}

func (h *handlers) getFeed(c *fiber.Ctx) error {
	feed, err := h.config.Store.GetFeed(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(feed)
}

type addFeedRequest struct {
	Url      string `json:"url"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// addFeed fetches the feed once for its metadata and first articles, then
// subscribes. Subscribing to a known URL returns the existing subscription.
func (h *handlers) addFeed(c *fiber.Ctx) error {
	var req addFeedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	req.Url = strings.TrimSpace(req.Url)
	if req.Url == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing url")
	}
	if _, err := discovery.ValidateURL(req.Url); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid URL")
	}

	v, _, err := h.cached("feed:"+req.Url, func() (interface{}, error) {
		return h.config.Fetcher.Fetch(c.UserContext(), req.Url)
	})
	if err != nil {
		return err
	}
	fetched := v.(*models.FeedResponse)

	subscription := fetched.Feed
	subscription.Id = feeds.ID(req.Url, req.Url)
	subscription.Url = req.Url
	subscription.Title = lo.Ternary(strings.TrimSpace(req.Title) != "", strings.TrimSpace(req.Title), fetched.Feed.Title)
	subscription.Category = lo.Ternary(req.Category != "", req.Category, defaultCategory)

	stored, created, err := h.config.Store.AddFeed(c.UserContext(), subscription)
	if err != nil {
		return err
	}

	if !created {
		return c.JSON(stored)
	}

	if _, err := h.config.Store.StoreFeedResponse(c.UserContext(), &models.FeedResponse{
		Feed:     stored,
		Articles: fetched.Articles,
	}); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(stored)
}

func (h *handlers) updateFeed(c *fiber.Ctx) error {
	var update db.FeedUpdate
	if err := c.BodyParser(&update); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	feed, err := h.config.Store.UpdateFeed(c.UserContext(), c.Params("id"), update)
	if err != nil {
		return err
	}
	return c.JSON(feed)
}

func (h *handlers) removeFeed(c *fiber.Ctx) error {
	if err := h.config.Store.RemoveFeed(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) articles(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultArticleLimit)))
	if err != nil || limit < 1 || limit > maxArticleLimit {
		limit = defaultArticleLimit
	}

	builder := feeds.NewArticleQueryBuilder()
	if q := c.Query("q"); q != "" {
		builder.AddFilter(&feeds.SearchFilter{Term: q})
	}
	if c.QueryBool("unread") {
		builder.AddFilter(&feeds.UnreadFilter{})
	}
	if c.QueryBool("bookmarked") {
		builder.AddFilter(&feeds.BookmarkedFilter{})
	}
	if id := c.Query("feed_id"); id != "" {
		builder.AddFilter(&feeds.FeedFilter{FeedId: id})
	}
	if category := c.Query("category"); category != "" {
		builder.AddFilter(&feeds.CategoryFilter{Category: category})
	}
	if languages := c.Query("lang"); languages != "" {
		builder.AddFilter(&feeds.LanguageFilter{Languages: strings.Split(languages, ",")})
	}

	page, err := h.config.Store.QueryArticles(c.UserContext(), builder, limit, c.Query("cursor"))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *handlers) markRead(c *fiber.Ctx) error {
	return noContent(c, h.config.Store.MarkRead(c.UserContext(), c.Params("id")))
}

func (h *handlers) markUnread(c *fiber.Ctx) error {
	return noContent(c, h.config.Store.MarkUnread(c.UserContext(), c.Params("id")))
}

func (h *handlers) addBookmark(c *fiber.Ctx) error {
	return noContent(c, h.config.Store.AddBookmark(c.UserContext(), c.Params("id")))
}

func (h *handlers) removeBookmark(c *fiber.Ctx) error {
	return noContent(c, h.config.Store.RemoveBookmark(c.UserContext(), c.Params("id")))
}

func noContent(c *fiber.Ctx, err error) error {
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
