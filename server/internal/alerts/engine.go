package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sensorrelay/sensorrelay/server/internal/config"
	"github.com/sensorrelay/sensorrelay/server/internal/store"
)

const (
	defaultCooldown = 15 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SensorID   string     `json:"sensor_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      string     `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	config.AlertRule
	cond condition
}

// Engine evaluates alert rules against merged sensor records and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	clock    clockwork.Clock
	client   *http.Client

	// evalMu orders evaluations so the revision check and the state change
	// it guards happen together.
	evalMu   sync.Mutex
	revision map[string]uint64 // last evaluated store revision per sensor

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:sensorID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	wg       sync.WaitGroup
}

// New creates an Engine from the alert configuration. Rules whose condition
// cannot be parsed are logged and skipped. An Engine with no rules is valid;
// Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e := &Engine{
		webhooks: cfg.Webhooks,
		clock:    clock,
		client:   &http.Client{Timeout: 10 * time.Second},
		revision: make(map[string]uint64),
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	for _, r := range cfg.Rules {
		c, ok := parseCondition(r.Condition)
		if !ok {
			slog.Warn("alerts: skipping rule with unparseable condition", "rule", r.Name, "condition", r.Condition)
			continue
		}
		e.rules = append(e.rules, rule{AlertRule: r, cond: c})
	}
	return e
}

// Evaluate tests all configured rules against rec.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
// A record older than one already evaluated for the same sensor (lower
// Revision) is ignored; records with Revision 0 are always evaluated.
func (e *Engine) Evaluate(rec store.Record) {
	if len(e.rules) == 0 {
		return
	}

	e.evalMu.Lock()
	defer e.evalMu.Unlock()
	if rec.Revision != 0 {
		if rec.Revision <= e.revision[rec.SensorID] {
			slog.Debug("alerts: skipping stale record", "sensor_id", rec.SensorID,
				"revision", rec.Revision, "seen", e.revision[rec.SensorID])
			return
		}
		e.revision[rec.SensorID] = rec.Revision
	}

	now := e.clock.Now()
	for _, r := range e.rules {
		if r.Sensor != "" && r.Sensor != rec.SensorID {
			continue
		}
		key := r.Name + ":" + rec.SensorID
		fires, value := r.cond.eval(rec.Fields)
		if fires {
			e.fire(r, key, rec.SensorID, value, now)
		} else {
			e.resolve(r, key, rec.SensorID, now)
		}
	}
}

func (e *Engine) fire(r rule, key, sensorID, value string, now time.Time) {
	e.mu.Lock()
	if _, firing := e.active[key]; firing {
		e.mu.Unlock()
		return
	}
	cooldown := r.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) < cooldown {
		e.mu.Unlock()
		return
	}

	sev := r.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       fmt.Sprintf("%s:%s:%d", r.Name, sensorID, now.UnixNano()),
		RuleName: r.Name,
		SensorID: sensorID,
		Severity: sev,
		Value:    value,
		Message:  fmt.Sprintf("[%s] %s fired on %s: %s (now %s)", sev, r.Name, sensorID, r.Condition, value),
		FiredAt:  now,
		State:    StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alert fired",
		"rule", r.Name,
		"sensor", sensorID,
		"value", value,
		"severity", sev,
	)
	e.dispatch(&alertCopy)
}

func (e *Engine) resolve(r rule, key, sensorID string, now time.Time) {
	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alert resolved", "rule", r.Name, "sensor", sensorID)
	e.dispatch(&alertCopy)
}

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(a)
	}()
}

// Wait blocks until every in-flight webhook delivery has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.clock.Now().Add(-recentWindow)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
