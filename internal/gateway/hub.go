package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"marketviz/internal/indicator"
	"marketviz/internal/series"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and fans bar/indicator updates out to
// them. Data flows in from the chart service (not from the clients):
// the service calls BroadcastBar and BroadcastIndicators as the pipeline
// produces updates, and the hub's Broadcaster handles envelope
// construction and client-filtered delivery.
type Hub struct {
	store *series.Store
	cache *indicator.Cache

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	Broadcaster *Broadcaster

	// OnSnapshot is called with the build duration of each subscribe
	// snapshot (for metrics).
	OnSnapshot func(d time.Duration)
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64 // per-channel seq for gap detection
}

// NewHub creates a Hub serving snapshots from the given store and cache.
func NewHub(store *series.Store, cache *indicator.Cache) *Hub {
	h := &Hub{
		store:       store,
		cache:       cache,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// BroadcastBar fans one bar (closed or forming preview) out to clients.
func (h *Hub) BroadcastBar(channel string, data []byte) {
	h.Broadcaster.Broadcast(channel, data)
}

// BroadcastIndicators fans a computed indicator batch out to clients.
// seriesID is the "symbol@tf" identity the batch was computed for.
func (h *Hub) BroadcastIndicators(seriesID string, data []byte) {
	h.Broadcaster.Broadcast("ind:"+seriesID, data)
}

// HandleWSRequest registers an upgraded WebSocket connection.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]*ClientSubscription),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[chartd] ws client connected (%d total)", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// GetLatestAll returns a snapshot of all latest channel data.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return rb.Between(fromSeq, toSeq)
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartStatsBroadcast sends service stats to all WS clients every 2s.
func (h *Hub) StartStatsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := CollectMetrics(start)
			hits, misses := h.cache.Stats()
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":         "metrics",
				"metrics":      m,
				"series":       len(h.store.Keys()),
				"cache_hits":   hits,
				"cache_misses": misses,
				"clients":      h.ClientCount(),
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
