package compute

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sensorrelay/sensorrelay/agent/internal/config"
	"github.com/sensorrelay/sensorrelay/agent/internal/scraper"
)

// uptimeWindow is the number of recent scrape outcomes tracked for uptime %.
const uptimeWindow = 20

// Status values carried on every Reading.
const (
	StatusOK          = "ok"
	StatusPartial     = "partial"
	StatusUnreachable = "unreachable"
)

// Reading is one sensor update derived from a scrape, ready for the shipper.
type Reading struct {
	SensorID  string
	Timestamp time.Time

	// Values holds gauge values as scraped and counter fields as per-minute
	// rates. Rate fields are absent until a baseline exists.
	Values map[string]float64

	// Static fields copied from the source config.
	Static map[string]string

	Status    string
	Quality   float64
	State     string
	UptimePct float64
	Error     string // non-empty when the scrape failed

	// Cert fields are set by the caller for https sources.
	CertStatus   string
	CertDaysLeft int
	HasCert      bool
}

// Engine maintains per-source counter baselines across scrape cycles and
// turns raw ScrapeResults into Readings.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	states map[string]*sourceState
}

// NewEngine returns a ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*sourceState)}
}

// Process ingests res for src and returns the reading to publish.
//
// now is passed explicitly so callers (and tests) control the clock without
// sleeping. Use time.Now() in production.
//
// Gauge fields are published from the first successful scrape; rate fields
// only once a previous successful scrape provides the baseline.
func (e *Engine) Process(src config.Source, res *scraper.ScrapeResult, now time.Time) *Reading {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stateFor(res.SourceID)
	success := res.Err == nil
	st.recordScrape(success)

	out := &Reading{
		SensorID:  res.SourceID,
		Timestamp: now,
		Values:    make(map[string]float64, len(src.Fields)),
		Static:    src.Static,
		UptimePct: st.uptimePct(),
	}

	if !success {
		slog.Warn("compute: scrape failed, publishing unreachable",
			"source", res.SourceID, "err", res.Err)
		out.Status = StatusUnreachable
		out.Error = res.Err.Error()
		e.score(out, 0)
		return out
	}

	elapsed := 0.0
	if st.hasBaseline {
		elapsed = now.Sub(st.prevTime).Minutes()
		if elapsed <= 0 {
			elapsed = 1 // guard against zero or negative clock drift
		}
	}

	present := 0
	for _, f := range src.Fields {
		v, ok := res.Values[f.Name]
		if !ok {
			continue
		}
		if !f.Rate {
			out.Values[f.Name] = v
			present++
			continue
		}
		prev, had := st.prev[f.Name]
		if !st.hasBaseline || !had {
			continue
		}
		out.Values[f.Name] = deltaOf(v, prev) / elapsed
		present++
	}

	out.Status = StatusOK
	if present < len(src.Fields) {
		out.Status = StatusPartial
	}
	var coverage float64
	if len(src.Fields) > 0 {
		coverage = float64(present) / float64(len(src.Fields)) * 100
	}
	e.score(out, coverage)

	st.updateBaseline(res, now)
	return out
}

// Forget drops the baseline for sourceID, e.g. after a config reload
// removed the source.
func (e *Engine) Forget(sourceID string) {
	e.mu.Lock()
	delete(e.states, sourceID)
	e.mu.Unlock()
}

func (e *Engine) score(out *Reading, coverage float64) {
	q := Quality(Input{CoveragePct: coverage, UptimePct: out.UptimePct})
	out.Quality = q.Score
	out.State = q.State
}

// sourceState holds per-source counters and uptime history.
type sourceState struct {
	prev        map[string]float64
	prevTime    time.Time
	hasBaseline bool
	history     []bool // circular buffer of scrape outcomes, newest last
}

func (e *Engine) stateFor(id string) *sourceState {
	if st, ok := e.states[id]; ok {
		return st
	}
	st := &sourceState{}
	e.states[id] = st
	return st
}

func (st *sourceState) updateBaseline(res *scraper.ScrapeResult, now time.Time) {
	st.prev = res.Values
	st.prevTime = now
	st.hasBaseline = true
}

func (st *sourceState) recordScrape(success bool) {
	if len(st.history) >= uptimeWindow {
		st.history = st.history[1:]
	}
	st.history = append(st.history, success)
}

func (st *sourceState) uptimePct() float64 {
	if len(st.history) == 0 {
		return 100 // assume up before first observation
	}
	var ok int
	for _, s := range st.history {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(st.history)) * 100
}

// deltaOf returns the positive counter delta between current and previous.
// If current < previous (counter reset after restart), returns 0.
func deltaOf(current, previous float64) float64 {
	d := current - previous
	if d < 0 {
		return 0
	}
	return d
}
