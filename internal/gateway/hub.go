// Package gateway fans cycle reports, alerts and account snapshots out to
// connected WebSocket UI sessions.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Envelope types.
const (
	TypeReport  = "report"
	TypeAlert   = "alert"
	TypeAccount = "account"
	TypeStatus  = "status"
)

// Config tunes the hub.
type Config struct {
	ReplaySize   int           `yaml:"replay_size" default:"200" validate:"gte=1"`
	SendBuffer   int           `yaml:"send_buffer" default:"64" validate:"gte=1"`
	PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
}

// Hub manages WebSocket clients. Every published envelope carries a
// monotonic seq so a reconnecting client can resume from the replay buffer.
type Hub struct {
	cfg      Config
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string][]byte // last envelope per type
	seq     int64
	replay  *ReplayBuffer

	// OnClients, when set, receives the client count after every change.
	OnClients func(n int)
}

// NewHub creates a hub.
func NewHub(cfg Config, log zerolog.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Hub{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
		clients: make(map[*Client]bool),
		latest:  make(map[string][]byte),
		replay:  NewReplayBuffer(cfg.ReplaySize),
	}
}

// Publish marshals payload and broadcasts it under the given envelope type.
func (h *Hub) Publish(kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal %s: %w", kind, err)
	}
	h.broadcast(kind, data, time.Now().UTC())
	return nil
}

func (h *Hub) broadcast(kind string, data []byte, now time.Time) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	env := appendEnvelope(nil, kind, data, now, seq)
	h.latest[kind] = env
	h.replay.Push(seq, env)
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- env:
		default:
			h.log.Warn().Str("type", kind).Msg("ws client send buffer full, dropping envelope")
		}
	}
}

// ServeHTTP upgrades the request and registers the client. A "since" query
// parameter replays envelopes after that seq; otherwise the latest envelope
// of each type is sent.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	var since int64 = -1
	if v := r.URL.Query().Get("since"); v != "" {
		fmt.Sscan(v, &since)
	}
	h.register(conn, since)
}

func (h *Hub) register(conn *websocket.Conn, since int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, h.cfg.SendBuffer),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Msg("ws client connected")
	if h.OnClients != nil {
		h.OnClients(count)
	}

	client.sendInitialState(since)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Msg("ws client disconnected")
	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the last published envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Latest returns the most recent envelope of the given type, or nil.
func (h *Hub) Latest(kind string) json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest[kind]
}

// Since returns buffered envelopes with seq > after, oldest first.
func (h *Hub) Since(after int64) [][]byte {
	entries := h.replay.Range(after+1, h.Seq())
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// StartStatusBroadcast publishes status() every interval until ctx is done.
func (h *Hub) StartStatusBroadcast(ctx context.Context, interval time.Duration, status func() any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			if err := h.Publish(TypeStatus, status()); err != nil {
				h.log.Warn().Err(err).Msg("status broadcast failed")
			}
		}
	}
}
