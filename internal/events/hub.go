package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"warehouse.dev/monitor/pkg/metrics"
)

const broadcastBuffer = 64

var errHubStopped = errors.New("hub is not running")

// Hub fans events out to connected websocket subscribers. Subscribers only
// see events published after they connect, and a subscriber whose send
// buffer is full is dropped.
type Hub struct {
	logger     *slog.Logger
	metrics    *metrics.APIMetrics
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
	count      atomic.Int64
}

// NewHub creates a hub. Run must be started before events are published.
func NewHub(logger *slog.Logger, m *metrics.APIMetrics) *Hub {
	return &Hub{
		logger:     logger,
		metrics:    m,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run owns the subscriber set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			h.logger.Info("websocket hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount()
			h.logger.Debug("websocket client registered", "remote", c.remote)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug("websocket client unregistered", "remote", c.remote)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("websocket client too slow, dropping", "remote", c.remote)
					h.drop(c)
					if h.metrics != nil {
						h.metrics.BroadcastsDropped.Inc()
					}
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	if h.metrics != nil {
		h.metrics.WebsocketClients.Set(float64(len(h.clients)))
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// PublishAlert implements Publisher.
func (h *Hub) PublishAlert(ctx context.Context, e AlertEvent) error {
	return h.publish(ctx, e)
}

// PublishReading implements ReadingPublisher.
func (h *Hub) PublishReading(ctx context.Context, e ReadingEvent) error {
	return h.publish(ctx, e)
}

func (h *Hub) publish(ctx context.Context, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	select {
	case <-h.done:
		return errHubStopped
	default:
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}

// ServeWS upgrades the request and subscribes the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, broadcastBuffer),
		remote: conn.RemoteAddr().String(),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
