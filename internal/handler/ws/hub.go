package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/internal/service/ratelimit"
	applogger "CandleSync/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 16
)

type renderFrame struct {
	Type    string          `json:"type"`
	Candles []models.Candle `json:"candles"`
}

type inboundFrame struct {
	Type string `json:"type"`
	From int64  `json:"from"`
	To   int64  `json:"to"`
}

// Hub is the chart side of the sync engine: it pushes every rendered candle
// sequence to connected clients and turns their viewport frames into
// viewport notifications.
type Hub struct {
	upgrader     websocket.Upgrader
	limiter      *ratelimit.Limiter
	logger       *applogger.Logger
	pingInterval time.Duration
	burst        float64
	perSecond    float64

	mu        sync.RWMutex
	clients   map[*client]struct{}
	observers map[uint64]func(models.VisibleRange)
	nextID    uint64
	lastFrame []byte
	closed    bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

type Option func(*Hub)

func WithLogger(l *applogger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithViewportRate limits viewport frames per client.
func WithViewportRate(burst, perSecond float64) Option {
	return func(h *Hub) {
		if burst >= 1 {
			h.burst = burst
			h.perSecond = perSecond
		}
	}
}

func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
			h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

func NewHub(limiter *ratelimit.Limiter, opts ...Option) *Hub {
	if limiter == nil {
		limiter = ratelimit.New()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		limiter:      limiter,
		logger:       applogger.Nop(),
		pingInterval: 30 * time.Second,
		burst:        10,
		perSecond:    5,
		clients:      make(map[*client]struct{}),
		observers:    make(map[uint64]func(models.VisibleRange)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Handle)
}

// Render broadcasts a full replacement of the displayed sequence. Clients that
// cannot keep up are disconnected.
func (h *Hub) Render(candles []models.Candle) {
	if candles == nil {
		candles = []models.Candle{}
	}
	b, err := json.Marshal(renderFrame{Type: "candles", Candles: candles})
	if err != nil {
		h.logger.Error("encode render frame", applogger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastFrame = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("websocket client too slow, dropping", applogger.String("client", c.id))
			h.dropLocked(c)
		}
	}
}

// SubscribeViewport registers fn for viewport frames from any client.
func (h *Hub) SubscribeViewport(fn func(models.VisibleRange)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.observers[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.observers, id)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
	return nil
}

// Handle upgrades the request and serves one client until it disconnects.
func (h *Hub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug("websocket upgrade failed", applogger.Error(err))
		return nil
	}

	cl := &client{
		id:   fmt.Sprintf("%s#%p", c.RealIP(), conn),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return conn.Close()
	}
	h.clients[cl] = struct{}{}
	if h.lastFrame != nil {
		cl.send <- h.lastFrame
	}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", applogger.String("client", cl.id))

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(c)
		h.mu.Unlock()
		h.limiter.Forget(c.id)
		_ = c.conn.Close()
		h.logger.Debug("websocket client disconnected", applogger.String("client", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", applogger.String("client", c.id), applogger.Error(err))
			}
			return
		}
		var m inboundFrame
		if err := json.Unmarshal(b, &m); err != nil {
			// ignore non-JSON frames
			continue
		}
		if m.Type != "viewport" {
			continue
		}
		if !h.limiter.Allow(c.id, h.burst, h.perSecond) {
			continue
		}
		h.notify(models.VisibleRange{From: m.From, To: m.To})
	}
}

func (h *Hub) notify(r models.VisibleRange) {
	h.mu.RLock()
	fns := make([]func(models.VisibleRange), 0, len(h.observers))
	for _, fn := range h.observers {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(r)
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
