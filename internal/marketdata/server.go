package marketdata

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/trading/events"
	"github.com/Aidin1998/pincex_futures/pkg/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types sent to feed clients
const (
	MsgTrade = "trade"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 256
)

// MarketDataMessage is the structure sent to clients
type MarketDataMessage struct {
	Type         string      `json:"type"`
	InstrumentID string      `json:"instrument_id"`
	Data         interface{} `json:"data"`
	Timestamp    time.Time   `json:"timestamp"`
}

// subscriptionRequest is what clients send to change their instrument set,
// e.g. {"subscribe": ["CL-20251219"]}.
type subscriptionRequest struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// Client is one websocket connection. An empty instrument set receives
// every instrument.
type Client struct {
	conn   *websocket.Conn
	events <-chan events.Event
	done   chan struct{}

	mu          sync.RWMutex
	instruments map[string]bool
}

func (c *Client) wants(instrumentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments) == 0 || c.instruments[instrumentID]
}

func (c *Client) apply(req subscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range req.Subscribe {
		c.instruments[strings.ToUpper(id)] = true
	}
	for _, id := range req.Unsubscribe {
		delete(c.instruments, strings.ToUpper(id))
	}
}

// Hub streams committed trades from the in-process event bus to websocket
// clients. Each client owns a bus subscription; slow clients lose trades.
type Hub struct {
	bus      *events.InMemoryEventBus
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a trade feed hub over bus
func NewHub(bus *events.InMemoryEventBus, allowedOrigins []string, logger *zap.Logger) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			CheckOrigin:       originChecker(allowedOrigins),
			EnableCompression: true,
		},
		logger: logger.Named("trade_feed"),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and streams trades. The optional instrument
// query parameter may be repeated or comma separated.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	sub, cancel := h.bus.Subscribe(events.TopicTrade, sendBuffer)
	client := &Client{
		conn:        conn,
		events:      sub,
		done:        make(chan struct{}),
		instruments: make(map[string]bool),
	}
	for _, v := range r.URL.Query()["instrument"] {
		client.apply(subscriptionRequest{Subscribe: strings.Split(v, ",")})
	}

	metrics.FeedConnections.Inc()
	h.logger.Debug("Feed client connected", zap.String("remote", r.RemoteAddr))

	go func() {
		client.writePump(h.logger)
		cancel()
		metrics.FeedConnections.Dec()
	}()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscriptionRequest
		if err := json.Unmarshal(message, &req); err == nil {
			c.apply(req)
		}
	}
}

func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case evt, ok := <-c.events:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.wants(evt.InstrumentID) {
				continue
			}
			msg, err := json.Marshal(MarketDataMessage{
				Type:         MsgTrade,
				InstrumentID: evt.InstrumentID,
				Data:         evt.Payload,
				Timestamp:    evt.Timestamp,
			})
			if err != nil {
				logger.Error("Failed to encode trade", zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

