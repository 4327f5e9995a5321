// Package realtime pushes submission changes to connected dashboards.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"ideabox/core/port/out"
)

const clientBuffer = 64

// Hub implements out.EventPublisher by fanning events out to SSE subscribers.
type Hub struct {
	clients map[chan *out.SubmissionEvent]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger

	seq      atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
	interval time.Duration
}

var _ out.EventPublisher = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[chan *out.SubmissionEvent]struct{}),
		log:      log.With().Str("component", "sse_hub").Logger(),
		interval: 30 * time.Second,
	}
}

// Subscribe registers a new dashboard connection.
func (h *Hub) Subscribe() *Client {
	ch := make(chan *out.SubmissionEvent, clientBuffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Int("connections", n).Msg("client subscribed")
	return &Client{Events: ch, hub: h, ch: ch}
}

func (h *Hub) unsubscribe(ch chan *out.SubmissionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.log.Debug().Int("connections", len(h.clients)).Msg("client unsubscribed")
}

// Publish assigns a sequence number and delivers without blocking. Slow
// clients lose events rather than stalling the caller.
func (h *Hub) Publish(ctx context.Context, event *out.SubmissionEvent) {
	event.Seq = h.seq.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- event:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Int64("seq", event.Seq).
				Msg("dropped event due to full buffer")
		}
	}
}

// CloseAll ends every subscription, letting open streams return on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// ConnectedCount returns the number of open subscriptions.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats holds hub counters.
type Stats struct {
	Connections int   `json:"connections"`
	Sent        int64 `json:"messages_sent"`
	Dropped     int64 `json:"messages_dropped"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.ConnectedCount(),
		Sent:        h.sent.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Client is one dashboard connection.
type Client struct {
	Events <-chan *out.SubmissionEvent

	hub  *Hub
	ch   chan *out.SubmissionEvent
	once sync.Once
}

// Close unsubscribes; safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { c.hub.unsubscribe(c.ch) })
}

func (c *Client) HeartbeatInterval() time.Duration {
	return c.hub.interval
}

// Frame renders an event in text/event-stream format.
func Frame(event *out.SubmissionEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, data)), nil
}
