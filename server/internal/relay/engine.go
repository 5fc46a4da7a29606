package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sensorrelay/sensorrelay/pkg/types"
	"github.com/sensorrelay/sensorrelay/server/internal/metrics"
	"github.com/sensorrelay/sensorrelay/server/internal/registry"
	"github.com/sensorrelay/sensorrelay/server/internal/store"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultSweepInterval     = 30 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithHeartbeatInterval sets how often each connection is sent a heartbeat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(e *Engine) { e.heartbeatInterval = d }
}

// WithSweepInterval sets how often non-open connections are pruned.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepInterval = d }
}

// WithMetrics reports engine activity to m.
func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithObserver registers fn to be called with every merged record after it
// has been broadcast. fn runs on the sender's read goroutine and must not
// block. Concurrent senders can deliver records for one sensor out of order;
// Record.Revision gives their merge order.
func WithObserver(fn func(store.Record)) Option {
	return func(e *Engine) { e.observers = append(e.observers, fn) }
}

// heartbeat is the per-connection periodic task. stop is closed to cancel it;
// done is closed once the task has exited.
type heartbeat struct {
	stop chan struct{}
	done chan struct{}
}

// Engine owns the connection registry and the sensor cache and implements the
// relay protocol on top of them. All methods are safe for concurrent use.
type Engine struct {
	registry *registry.Registry
	store    *store.Store
	clock    clockwork.Clock
	metrics  *metrics.RelayMetrics

	observers []func(store.Record)

	heartbeatInterval time.Duration
	sweepInterval     time.Duration

	mu         sync.Mutex
	heartbeats map[registry.Conn]*heartbeat
}

// New creates an Engine over reg and st.
func New(reg *registry.Registry, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		registry:          reg,
		store:             st,
		clock:             clockwork.NewRealClock(),
		heartbeatInterval: DefaultHeartbeatInterval,
		sweepInterval:     DefaultSweepInterval,
		heartbeats:        make(map[registry.Conn]*heartbeat),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRelayMetrics(prometheus.NewRegistry())
	}
	return e
}

// Connect registers c, starts its heartbeat and replays every cached sensor
// record to it. Connecting a connection that is already registered is a
// no-op, so it is never replayed to twice.
func (e *Engine) Connect(c registry.Conn) {
	if e.registry.Contains(c) {
		slog.Debug("relay: connection already registered", "conn", c.ID())
		return
	}
	e.registry.Register(c)
	e.startHeartbeat(c)
	clients := e.registry.Count()
	e.metrics.Connections.Set(float64(clients))
	slog.Info("relay: client connected", "conn", c.ID(), "clients", clients)

	e.replay(c)
}

// Disconnect stops c's heartbeat and removes it from the registry. It is the
// handler for both close and error events and may be called more than once.
func (e *Engine) Disconnect(c registry.Conn) {
	e.stopHeartbeat(c)
	if !e.registry.Unregister(c) {
		return
	}
	clients := e.registry.Count()
	e.metrics.Connections.Set(float64(clients))
	slog.Info("relay: client disconnected", "conn", c.ID(), "clients", clients)
}

// HandleMessage processes one inbound frame from c. data is retained and
// relayed as-is, so the caller must not reuse it.
func (e *Engine) HandleMessage(c registry.Conn, data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		e.metrics.FramesReceived.WithLabelValues(metrics.OutcomeMalformed).Inc()
		slog.Warn("relay: dropping malformed frame", "conn", c.ID(), "err", err)
		return
	}

	if msg.IsHeartbeat() {
		e.metrics.FramesReceived.WithLabelValues(metrics.OutcomeHeartbeat).Inc()
		return
	}

	sensorID, ok := msg.SensorID()
	if !ok {
		e.metrics.FramesReceived.WithLabelValues(metrics.OutcomeIgnored).Inc()
		slog.Debug("relay: ignoring frame without sensorId", "conn", c.ID())
		return
	}

	rec := e.store.Merge(sensorID, msg.Fields, e.clock.Now())
	e.metrics.FramesReceived.WithLabelValues(metrics.OutcomeUpdate).Inc()
	e.metrics.Sensors.Set(float64(e.store.Count()))
	slog.Debug("relay: sensor update", "conn", c.ID(), "sensor_id", sensorID)

	e.broadcast(msg.Raw)

	for _, fn := range e.observers {
		fn(rec)
	}
}

// Sweep removes connections that are no longer open and cancels their
// heartbeats. It returns the number removed.
func (e *Engine) Sweep() int {
	removed := e.registry.Sweep()
	for _, c := range removed {
		e.stopHeartbeat(c)
	}
	if n := len(removed); n > 0 {
		e.metrics.Swept.Add(float64(n))
		e.metrics.Connections.Set(float64(e.registry.Count()))
		slog.Debug("relay: swept dead connections", "count", n)
	}
	return len(removed)
}

// Run sweeps the registry every sweep interval until ctx is cancelled, then
// stops all remaining heartbeat tasks.
func (e *Engine) Run(ctx context.Context) {
	t := e.clock.NewTicker(e.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stopAllHeartbeats()
			return
		case <-t.Chan():
			e.Sweep()
		}
	}
}

// Clients returns the number of tracked connections.
func (e *Engine) Clients() int {
	return e.registry.Count()
}

// --- internal ---------------------------------------------------------------

func (e *Engine) broadcast(data []byte) {
	e.registry.ForEachLive(func(c registry.Conn) {
		e.metrics.Sent(metrics.KindBroadcast, c.Send(data))
	})
}

// replay sends every cached record to c exactly once. It waits for buffer
// space rather than dropping, since a new client has not fallen behind; it
// stops early only if c stops accepting.
func (e *Engine) replay(c registry.Conn) {
	recs := e.store.List()
	for i, rec := range recs {
		data, err := json.Marshal(rec.Message())
		if err != nil {
			slog.Error("relay: encode replay record", "sensor_id", rec.SensorID, "err", err)
			continue
		}
		if !c.SendWait(data) {
			missed := len(recs) - i
			e.metrics.SendsDropped.WithLabelValues(metrics.KindReplay).Add(float64(missed))
			slog.Warn("relay: replay aborted", "conn", c.ID(), "missed", missed)
			return
		}
		e.metrics.Sent(metrics.KindReplay, true)
	}
}

func (e *Engine) startHeartbeat(c registry.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.heartbeats[c]; ok {
		return
	}
	hb := &heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	e.heartbeats[c] = hb

	// The ticker is created here rather than in the goroutine so it is armed
	// by the time Connect returns.
	t := e.clock.NewTicker(e.heartbeatInterval)
	go e.runHeartbeat(c, hb, t)
}

func (e *Engine) runHeartbeat(c registry.Conn, hb *heartbeat, t clockwork.Ticker) {
	defer close(hb.done)
	defer t.Stop()

	for {
		select {
		case <-hb.stop:
			return
		case <-t.Chan():
			if !c.IsOpen() {
				continue
			}
			e.metrics.Sent(metrics.KindHeartbeat, c.Send(types.HeartbeatFrame()))
		}
	}
}

// stopHeartbeat cancels c's heartbeat and waits for it to exit.
func (e *Engine) stopHeartbeat(c registry.Conn) {
	e.mu.Lock()
	hb, ok := e.heartbeats[c]
	delete(e.heartbeats, c)
	e.mu.Unlock()

	if !ok {
		return
	}
	close(hb.stop)
	<-hb.done
}

func (e *Engine) stopAllHeartbeats() {
	e.mu.Lock()
	conns := make([]registry.Conn, 0, len(e.heartbeats))
	for c := range e.heartbeats {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		e.stopHeartbeat(c)
	}
}
