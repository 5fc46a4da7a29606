package shipper

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sensorrelay/sensorrelay/agent/internal/compute"
	"github.com/sensorrelay/sensorrelay/agent/internal/config"
	"github.com/sensorrelay/sensorrelay/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	writeTimeout      = 10 * time.Second
	handshakeTimeout  = 10 * time.Second
)

// Shipper buffers readings and publishes them to sensorrelay-server over a
// WebSocket. Ship() is non-blocking; when the buffer is full the oldest
// reading is evicted. Run() must be called in a goroutine to drain the buffer
// and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan []byte
	dialFn dialFunc // injectable for tests
}

// dialFunc opens a WebSocket connection to the relay.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*websocket.Conn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan []byte, size),
		dialFn: defaultDial,
	}
}

// Ship encodes r as a relay sensor update and enqueues it.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(r *compute.Reading) {
	msg, err := json.Marshal(toMessage(r))
	if err != nil {
		slog.Error("shipper: encode reading", "sensor", r.SensorID, "err", err)
		return
	}
	s.enqueue(msg, r.SensorID)
}

func (s *Shipper) enqueue(msg []byte, sensorID string) {
	for {
		select {
		case s.buf <- msg:
			return
		default:
		}
		select {
		case <-s.buf:
			slog.Warn("shipper: buffer full, evicted oldest reading",
				"sensor", sensorID, "buffer_cap", cap(s.buf))
		default:
		}
	}
}

// Run connects to the relay and publishes buffered readings, sending a
// heartbeat frame every HeartbeatInterval. It reconnects with exponential
// backoff when the connection is lost and blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.RelayEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.RelayEndpoint,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.RelayEndpoint)
		bo.reset()

		err = s.session(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.RelayEndpoint,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// session publishes readings and heartbeats on conn until a read or write
// fails or ctx is cancelled. Frames from the relay (replayed state,
// broadcasts, heartbeats) are read and discarded so control frames keep
// being processed.
func (s *Shipper) session(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = config.DefaultHeartbeatInterval
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case err := <-readErr:
			return fmt.Errorf("read: %w", err)

		case <-heartbeat.C:
			if err := write(conn, types.HeartbeatFrame()); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}

		case msg := <-s.buf:
			if err := write(conn, msg); err != nil {
				// Put the reading back if there's room; otherwise the next
				// scrape cycle supersedes it.
				select {
				case s.buf <- msg:
				default:
				}
				return fmt.Errorf("send: %w", err)
			}
			slog.Debug("shipper: reading published", "bytes", len(msg))
		}
	}
}

func write(conn *websocket.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// defaultDial opens a WebSocket connection honouring the relay TLS options.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.RelayTLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && errors.Is(err, websocket.ErrBadHandshake) {
			return nil, fmt.Errorf("shipper: dial %s: handshake status %d", endpoint, resp.StatusCode)
		}
		return nil, fmt.Errorf("shipper: dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// sleep waits for d or ctx, reporting false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
