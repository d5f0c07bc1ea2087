package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-coordinator/internal/models"
	"speech-coordinator/internal/observability/metrics"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans session events out to websocket clients. It satisfies
// speech.Delegate so it can observe every session.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool

	sessionID func() string
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a Hub. sessionID reports the current session.
func NewHub(sessionID func() string, clk clock.Clock, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	if clk == nil {
		clk = clock.New()
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Hub{
		clients:   make(map[*wsClient]struct{}),
		sessionID: sessionID,
		clock:     clk,
		metrics:   m,
		logger:    logger.With().Str("component", "wsHub").Logger(),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WebsocketClients.Inc()
	h.logger.Info().Int("clients", n).Msg("Client connected")

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Msg("Write error")
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.close()
	h.metrics.WebsocketClients.Dec()
	h.logger.Info().Int("clients", n).Msg("Client disconnected")
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends event as JSON to every client. Slow clients are
// disconnected instead of blocking the caller.
func (h *Hub) Broadcast(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Msg("Dropping slow client")
		h.remove(c)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
		h.metrics.WebsocketClients.Dec()
	}
}

func (h *Hub) now() int64 {
	return h.clock.Now().UnixMilli()
}

func (h *Hub) OnStartOfSpeech() {
	h.Broadcast(models.SpeechStarted{
		EventType: models.EventSpeechStarted,
		SessionID: h.sessionID(),
		Timestamp: h.now(),
	})
}

func (h *Hub) OnSpeechRmsChanged(value float32) {
	h.Broadcast(models.SpeechRms{
		EventType: models.EventSpeechRms,
		SessionID: h.sessionID(),
		Timestamp: h.now(),
		RmsDB:     models.FiniteRms(value),
	})
}

func (h *Hub) OnSpeechPartialResults(results []string) {
	h.Broadcast(models.SpeechPartial{
		EventType: models.EventSpeechPartial,
		SessionID: h.sessionID(),
		Timestamp: h.now(),
		Partials:  append([]string(nil), results...),
	})
}

func (h *Hub) OnSpeechResult(result string) {
	h.Broadcast(models.SpeechResult{
		EventType: models.EventSpeechResult,
		SessionID: h.sessionID(),
		Timestamp: h.now(),
		Text:      result,
	})
}
