package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/entitlement"
)

const wsWriteTimeout = 10 * time.Second

// wsClient wraps a connection with its write lock. Writes come from both the
// upgrade handler (initial state) and the broadcast goroutine; gorilla allows
// at most one concurrent writer per connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(ent entitlement.ReconciledEntitlement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(ent)
}

// Hub fans entitlement replacements out to websocket clients. Each commit of
// a reconciliation pass is pushed as one complete entitlement object, so
// clients never observe a partial update.
type Hub struct {
	svc      *entitlement.Service
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates a websocket hub for the service.
func NewHub(svc *entitlement.Service) *Hub {
	return &Hub{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Run forwards entitlement changes to connected clients until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.svc.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ent := <-updates:
			h.broadcast(ent)
		}
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Websocket client connected")

	// Send the current state immediately so new clients don't wait for the
	// next pass.
	h.send(c, h.svc.Current())

	go h.readLoop(c)
}

// readLoop drains client frames (none are expected) and drops the client on
// error or disconnect.
func (h *Hub) readLoop(c *wsClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(ent entitlement.ReconciledEntitlement) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.send(c, ent)
	}
}

func (h *Hub) send(c *wsClient, ent entitlement.ReconciledEntitlement) {
	if err := c.write(ent); err != nil {
		log.Debug().Err(err).Msg("Websocket write failed, dropping client")
		h.drop(c)
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
}
