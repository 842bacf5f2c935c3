package server

import (
	"context"
	"sync"

	"feedscout/models"

	log "github.com/sirupsen/logrus"
)

// Event is a named server-sent event
type Event struct {
	Name string
	Data interface{}
}

// Broadcaster fans refresh events out to connected SSE clients
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan Event),
	}
}

// eventName maps refresh events onto SSE event names
func eventName(evt interface{}) (string, bool) {
	switch evt.(type) {
	case models.FeedRefreshedEvent:
		return "feed-refreshed", true
	case models.FeedFailedEvent:
		return "feed-failed", true
	case models.RefreshSummaryEvent:
		return "refresh-summary", true
	default:
		return "", false
	}
}

// Broadcast sends evt to every client without blocking; slow clients miss it
func (b *Broadcaster) Broadcast(evt interface{}) {
	name, ok := eventName(evt)
	if !ok {
		log.WithFields(log.Fields{
			"event": evt,
		}).Warn("Unknown event type, not broadcasting")
		return
	}

	b.RLock()
	defer b.RUnlock()

	for id, client := range b.clients {
		select {
		case client <- Event{Name: name, Data: evt}: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping %s for client: %v", name, id)
		}
	}
}

// Run broadcasts everything received on events until ctx is done or the
// channel is closed
func (b *Broadcaster) Run(ctx context.Context, events <-chan interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.Broadcast(evt)
		}
	}
}

// AddClient registers a client channel under key
func (b *Broadcaster) AddClient(key string, client chan Event) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

// RemoveClient unregisters and closes the client channel; unknown keys are
// ignored
func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) ClientCount() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}
