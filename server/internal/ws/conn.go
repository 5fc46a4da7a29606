package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sensorrelay/sensorrelay/server/internal/metrics"
)

// conn is one WebSocket client. It implements registry.Conn.
type conn struct {
	id      string
	ws      *websocket.Conn
	opts    Options
	send    chan []byte
	done    chan struct{}
	open    atomic.Bool
	once    sync.Once
	limiter *rate.Limiter
}

func newConn(ws *websocket.Conn, opts Options) *conn {
	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}
	c.open.Store(true)
	return c
}

func (c *conn) ID() string { return c.id }

func (c *conn) IsOpen() bool { return c.open.Load() }

// Send queues msg for the writer goroutine. It never blocks: when the
// connection is closed or its buffer is full the message is dropped.
func (c *conn) Send(msg []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		slog.Debug("ws: send buffer full, dropping message", "conn", c.id, "buffer_cap", cap(c.send))
		return false
	}
}

// SendWait queues msg, blocking while the buffer is full. It returns false
// if the connection closes or no space frees up within WriteTimeout.
func (c *conn) SendWait(msg []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
	}

	t := time.NewTimer(c.opts.WriteTimeout)
	defer t.Stop()
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	case <-t.C:
		slog.Debug("ws: send buffer stayed full, dropping message", "conn", c.id, "timeout", c.opts.WriteTimeout)
		return false
	}
}

// shutdown marks the connection closed and signals the writer to stop.
// The send channel is never closed, so a racing Send cannot panic.
func (c *conn) shutdown() {
	c.once.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
}

// writePump drains the send buffer to the socket and sends periodic pings.
// Runs in its own goroutine per connection.
func (c *conn) writePump() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.shutdown()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
			return

		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("ws: write failed", "conn", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("ws: ping failed", "conn", c.id, "err", err)
				return
			}
		}
	}
}

// readPump reads frames and hands data frames to handle. Blocks until the
// connection fails or the peer closes it.
func (c *conn) readPump(handle func([]byte)) {
	defer c.shutdown()

	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)) //nolint:errcheck
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Warn("ws: connection error", "conn", c.id, "err", err)
			} else {
				slog.Debug("ws: connection closed", "conn", c.id, "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)) //nolint:errcheck

		if c.limiter != nil && !c.limiter.Allow() {
			if c.opts.Metrics != nil {
				c.opts.Metrics.FramesReceived.WithLabelValues(metrics.OutcomeLimited).Inc()
			}
			slog.Warn("ws: inbound rate limit exceeded, dropping frame", "conn", c.id)
			continue
		}
		handle(data)
	}
}
