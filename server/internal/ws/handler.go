package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorrelay/sensorrelay/server/internal/metrics"
	"github.com/sensorrelay/sensorrelay/server/internal/registry"
)

// Defaults applied to zero Options fields.
const (
	DefaultSendBuffer      = 256
	DefaultWriteTimeout    = 10 * time.Second
	DefaultPongWait        = 60 * time.Second
	DefaultMaxMessageBytes = 64 << 10
)

// Events receives the lifecycle of every connection served by a Handler.
type Events interface {
	Connect(c registry.Conn)
	HandleMessage(c registry.Conn, data []byte)
	Disconnect(c registry.Conn)
}

// Options tunes per-connection behaviour.
type Options struct {
	// SendBuffer is the outgoing message buffer depth per connection.
	SendBuffer int
	// WriteTimeout is the deadline for a single write to a client.
	WriteTimeout time.Duration
	// PongWait is how long to wait for any frame (pongs included) before
	// treating the connection as dead.
	PongWait time.Duration
	// MaxMessageBytes caps the size of an inbound frame.
	MaxMessageBytes int64
	// RateLimit is the sustained number of inbound frames per second allowed
	// per connection. Zero disables limiting.
	RateLimit float64
	// RateBurst is the token bucket size; defaults to 1 when RateLimit is set.
	RateBurst int
	// Metrics, when set, counts rate-limited frames.
	Metrics *metrics.RelayMetrics
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.RateLimit > 0 && o.RateBurst <= 0 {
		o.RateBurst = 1
	}
	return o
}

// Handler upgrades HTTP requests to WebSocket connections and feeds them to
// an Events sink.
type Handler struct {
	events   Events
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a Handler delivering connection events to events.
func New(events Events, opts Options) *Handler {
	return &Handler{
		events: events,
		opts:   opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newConn(wsConn, h.opts)
	slog.Debug("ws: connection accepted", "conn", c.ID(), "remote", r.RemoteAddr)

	go c.writePump()
	h.events.Connect(c)
	defer h.events.Disconnect(c)

	c.readPump(func(data []byte) { h.events.HandleMessage(c, data) })
}

// IsUpgrade reports whether r asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}
