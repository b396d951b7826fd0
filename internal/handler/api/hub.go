package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"SignalScope/internal/domain/models"
	applogger "SignalScope/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// HubConfig tunes websocket fan-out.
type HubConfig struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// Envelope is the frame pushed to websocket clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	TS   string `json:"ts"`
}

// Hub broadcasts scan reports to websocket subscribers. Slow clients whose
// buffer is full are disconnected rather than blocking the scanner.
type Hub struct {
	cfg      HubConfig
	log      *applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	last    []byte
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

func NewHub(cfg HubConfig, log *applogger.Logger) *Hub {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 16
	}
	if log == nil {
		log = applogger.Nop()
	}
	return &Hub{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast implements usecase.ReportListener.
func (h *Hub) Broadcast(report *models.ScanReport) {
	if report == nil {
		return
	}
	frame, err := json.Marshal(Envelope{Type: "scan_report", Data: report, TS: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		h.log.Error("ws encode report failed", applogger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = frame
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Warn("ws client too slow, dropping")
			delete(h.clients, c)
			c.close()
		}
	}
}

// ServeWS upgrades the request and streams reports until the peer leaves.
// A new subscriber immediately receives the latest report.
func (h *Hub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Warn("ws upgrade failed", applogger.Error(err))
		return nil
	}
	client := &wsClient{conn: conn, send: make(chan []byte, h.cfg.SendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[client] = struct{}{}
	if h.last != nil {
		client.send <- h.last
	}
	h.mu.Unlock()
	h.log.Debug("ws client connected", applogger.String("remote", c.RealIP()))

	go h.writePump(client)
	h.readPump(client)
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; clients have nothing to send.
func (h *Hub) readPump(c *wsClient) {
	defer h.remove(c)

	wait := 2 * h.cfg.PingInterval
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
