package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bilgisen/anitory/internal/auth"
	"github.com/bilgisen/anitory/internal/metrics"
	"github.com/bilgisen/anitory/internal/notify"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
	maxMessage = 4096
)

// TokenVerifier checks a session token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
	tab  *Tab
	once sync.Once
}

// Hub owns the websocket clients of this gateway.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	notifier notify.Notifier
	loader   Loader
	log      zerolog.Logger
}

func NewHub(notifier notify.Notifier, loader Loader, log zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]struct{}),
		notifier: notifier,
		loader:   loader,
		log:      log,
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register attaches conn as a new tab, pushes the initial state and starts
// its pumps.
func (h *Hub) Register(conn *websocket.Conn, tabID string, identity Identity, draftID string) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	c.tab = NewTab(tabID, identity, draftID, h.loader, h.push(c), h.log)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.RealtimeClientConnected()

	go h.writePump(c)

	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	c.tab.Refetch(ctx)
	if draftID != "" {
		c.tab.ReloadDraft(ctx)
	}
	cancel()

	c.tab.Attach(h.notifier)
	go h.readPump(c)
	return c
}

// push returns the send func of c's tab. Messages are dropped while the
// client's queue is full.
func (h *Hub) push(c *Client) func(Message) {
	return func(m Message) {
		data, err := json.Marshal(m)
		if err != nil {
			h.log.Error().Err(err).Str("type", m.Type).Msg("Failed to encode message")
			return
		}

		h.mu.RLock()
		defer h.mu.RUnlock()
		if _, ok := h.clients[c]; !ok {
			return
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("tab", c.tab.ID()).Msg("Client queue full, dropping message")
		}
	}
}

func (h *Hub) Unregister(c *Client) {
	c.once.Do(func() {
		c.tab.Detach()

		h.mu.Lock()
		delete(h.clients, c)
		close(c.send)
		h.mu.Unlock()
		metrics.RealtimeClientDisconnected()
	})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}

// readPump only watches for pongs and the close frame.
func (h *Hub) readPump(c *Client) {
	defer h.Unregister(c)

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("tab", c.tab.ID()).Msg("Websocket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handler upgrades GET /ws?token=...&draft=...&tab=... requests.
type Handler struct {
	hub      *Hub
	verifier TokenVerifier
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler builds the upgrade handler. An empty allowedOrigins accepts
// every origin.
func NewHandler(hub *Hub, verifier TokenVerifier, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: log,
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(a), origin) {
				return true
			}
		}
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		tabID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	identity := Identity{UID: claims.UID, Email: claims.Email, DisplayName: claims.DisplayName}
	h.hub.Register(conn, tabID, identity, r.URL.Query().Get("draft"))
	h.log.Info().Str("tab", tabID).Str("user_id", claims.UID).Msg("Realtime client connected")
}
