package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"feedscout/cache"
	"feedscout/db"
	"feedscout/models"
	"feedscout/query"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Discoverer finds the feeds published by a web page
type Discoverer interface {
	Discover(ctx context.Context, rawURL string) (*models.DiscoverResult, error)
}

// FeedFetcher retrieves and normalizes a feed document
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (*models.FeedResponse, error)
}

// Store is the subscription store behind the /api/feeds and /api/articles
// routes
type Store interface {
	AddFeed(ctx context.Context, feed models.Feed) (models.Feed, bool, error)
	ListFeeds(ctx context.Context, category string) ([]models.Feed, error)
	GetFeed(ctx context.Context, id string) (models.Feed, error)
	UpdateFeed(ctx context.Context, id string, update db.FeedUpdate) (models.Feed, error)
	RemoveFeed(ctx context.Context, id string) error
	StoreFeedResponse(ctx context.Context, resp *models.FeedResponse) (int, error)
	QueryArticles(ctx context.Context, builder query.Builder, limit int, cursor string) (*models.ArticlePage, error)
	MarkRead(ctx context.Context, id string) error
	MarkUnread(ctx context.Context, id string) error
	AddBookmark(ctx context.Context, id string) error
	RemoveBookmark(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]string, error)
}

type ServerConfig struct {
	Discoverer Discoverer
	Fetcher    FeedFetcher

	// Store enables the subscription routes when set
	Store Store

	// Cache holds discovery and feed results; nil disables caching
	Cache *cache.Cache

	// Broadcaster passes refresh events to SSE clients
	Broadcaster *Broadcaster

	CorsOrigins []string
	Categories  []string
}

// Returns a fiber.App instance to be used as the feedscout HTTP server
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "feedscout",
		ErrorHandler: errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		// Compression buffers the body, which would stall the event stream
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/events"
		},
	}))

	origins := "*"
	if len(config.CorsOrigins) > 0 {
		origins = strings.Join(config.CorsOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Cache-Control, Content-Type",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	h := &handlers{config: config}

	api := app.Group("/api")
	api.Get("/discover", h.discover)
	api.Get("/feed", h.feed)
	api.Get("/categories", h.categories)

	if config.Store != nil {
		api.Get("/feeds", h.listFeeds)
		api.Post("/feeds", h.addFeed)
		api.Get("/feeds/:id", h.getFeed)
		api.Patch("/feeds/:id", h.updateFeed)
		api.Delete("/feeds/:id", h.removeFeed)

		api.Get("/articles", h.articles)
		api.Post("/articles/:id/read", h.markRead)
		api.Delete("/articles/:id/read", h.markUnread)
		api.Post("/articles/:id/bookmark", h.addBookmark)
		api.Delete("/articles/:id/bookmark", h.removeBookmark)
	}

	if config.Broadcaster != nil {
		api.Get("/events", func(c *fiber.Ctx) error {
			return stream(c, config.Broadcaster)
		})
	}

	return app
}

func stream(c *fiber.Ctx, bc *Broadcaster) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	// Unique client key
	key := uuid.New().String()
	events := make(chan Event, 10)
	aliveChan := time.NewTicker(15 * time.Second)

	bc.AddClient(key, events)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer aliveChan.Stop()
		defer bc.RemoveClient(key)

		fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
		if err := w.Flush(); err != nil {
			log.Errorf("Failed to send init event: %v", err)
			return
		}

		for {
			select {
			case <-aliveChan.C:
				// Send keep-alive pings
				if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
					log.Warnf("Failed to send ping to client %s: %v", key, err)
					return
				}
				if err := w.Flush(); err != nil {
					log.Warnf("Failed to flush ping for client %s: %v", key, err)
					return
				}

			case evt, ok := <-events:
				if !ok {
					log.Debugf("Event channel closed for client %s", key)
					return
				}
				data, err := json.Marshal(evt.Data)
				if err != nil {
					log.Errorf("Error marshalling %s for client %s: %v", evt.Name, key, err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, data); err != nil {
					log.Warnf("Failed to send %s event to client %s: %v", evt.Name, key, err)
					return
				}
				if err := w.Flush(); err != nil {
					log.Warnf("Failed to flush %s event for client %s: %v", evt.Name, key, err)
					return
				}
			}
		}
	}))

	return nil
}
