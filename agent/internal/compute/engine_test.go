package compute

import (
	"errors"
	"testing"
	"time"

	"github.com/sensorrelay/sensorrelay/agent/internal/config"
	"github.com/sensorrelay/sensorrelay/agent/internal/scraper"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// tick returns baseTime advanced by n minutes.
func tick(n int) time.Time {
	return baseTime.Add(time.Duration(n) * time.Minute)
}

var greenhouse = config.Source{
	ID:     "greenhouse",
	Static: map[string]string{"location": "north"},
	Fields: []config.Field{
		{Name: "temperature", Metric: "t"},
		{Name: "door_openings", Metric: "d", Rate: true},
	},
}

func makeResult(id string, values map[string]float64) *scraper.ScrapeResult {
	return &scraper.ScrapeResult{SourceID: id, ScrapedAt: baseTime, Values: values}
}

func failed(id string) *scraper.ScrapeResult {
	return &scraper.ScrapeResult{SourceID: id, ScrapedAt: baseTime, Err: errors.New("connection refused")}
}

// --- First scrape behaviour ---

func TestEngine_FirstScrape_GaugesOnly(t *testing.T) {
	e := NewEngine()
	out := e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"temperature": 21.5, "door_openings": 10}), tick(0))

	if out.SensorID != "greenhouse" {
		t.Errorf("SensorID = %q", out.SensorID)
	}
	if out.Values["temperature"] != 21.5 {
		t.Errorf("temperature = %v, want 21.5", out.Values["temperature"])
	}
	if _, ok := out.Values["door_openings"]; ok {
		t.Error("rate field published without a baseline")
	}
	if out.Status != StatusPartial {
		t.Errorf("Status = %q, want %q", out.Status, StatusPartial)
	}
	if out.Static["location"] != "north" {
		t.Errorf("Static = %v", out.Static)
	}
}

// --- Rate computation from deltas ---

func TestEngine_SecondScrape_ComputesRates(t *testing.T) {
	e := NewEngine()
	e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"temperature": 21, "door_openings": 10}), tick(0))
	out := e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"temperature": 22, "door_openings": 16}), tick(2))

	if got := out.Values["door_openings"]; !almostEqual(got, 3, 0.001) {
		t.Errorf("door_openings = %v, want 3/min", got)
	}
	if out.Values["temperature"] != 22 {
		t.Errorf("temperature = %v, want 22", out.Values["temperature"])
	}
	if out.Status != StatusOK {
		t.Errorf("Status = %q, want ok", out.Status)
	}
	if out.State != StateGood || !almostEqual(out.Quality, 100, 0.01) {
		t.Errorf("quality = %v/%q, want 100/good", out.Quality, out.State)
	}
}

func TestEngine_CounterReset_TreatedAsZeroDelta(t *testing.T) {
	e := NewEngine()
	e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 500}), tick(0))
	out := e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 3}), tick(1))

	if got := out.Values["door_openings"]; got != 0 {
		t.Errorf("door_openings after reset = %v, want 0", got)
	}
}

func TestEngine_ZeroElapsed_Guarded(t *testing.T) {
	e := NewEngine()
	e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 0}), tick(0))
	out := e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 5}), tick(0))

	if got := out.Values["door_openings"]; got != 5 {
		t.Errorf("door_openings = %v, want 5 (elapsed clamped to 1 min)", got)
	}
}

// --- Failures ---

func TestEngine_ScrapeFailure_PublishesUnreachable(t *testing.T) {
	e := NewEngine()
	out := e.Process(greenhouse, failed("greenhouse"), tick(0))

	if out.Status != StatusUnreachable {
		t.Errorf("Status = %q, want unreachable", out.Status)
	}
	if out.Error == "" {
		t.Error("Error should carry the scrape failure")
	}
	if len(out.Values) != 0 {
		t.Errorf("Values = %v, want empty", out.Values)
	}
	if out.UptimePct != 0 {
		t.Errorf("UptimePct = %v, want 0", out.UptimePct)
	}
	if out.State != StateUnknown {
		t.Errorf("State = %q, want unknown", out.State)
	}
}

func TestEngine_ScrapeFailure_DoesNotAdvanceBaseline(t *testing.T) {
	e := NewEngine()
	e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 100}), tick(0))
	e.Process(greenhouse, failed("greenhouse"), tick(1))
	out := e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 120}), tick(2))

	// Delta is measured against tick(0), so 20 over 2 minutes.
	if got := out.Values["door_openings"]; !almostEqual(got, 10, 0.001) {
		t.Errorf("door_openings = %v, want 10/min", got)
	}
}

// --- Uptime window ---

func TestEngine_UptimePct_HalfFailed(t *testing.T) {
	e := NewEngine()
	var out *Reading
	for i := 0; i < 4; i++ {
		if i%2 == 0 {
			out = e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"temperature": 20}), tick(i))
		} else {
			out = e.Process(greenhouse, failed("greenhouse"), tick(i))
		}
	}
	if !almostEqual(out.UptimePct, 50, 0.001) {
		t.Errorf("UptimePct = %v, want 50", out.UptimePct)
	}
}

func TestEngine_UptimePct_RollingWindow(t *testing.T) {
	e := NewEngine()
	for i := 0; i < uptimeWindow; i++ {
		e.Process(greenhouse, failed("greenhouse"), tick(i))
	}
	var out *Reading
	for i := 0; i < uptimeWindow; i++ {
		out = e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"temperature": 20}), tick(uptimeWindow+i))
	}
	if out.UptimePct != 100 {
		t.Errorf("UptimePct = %v, want 100 once failures leave the window", out.UptimePct)
	}
}

// --- Isolation ---

func TestEngine_MultiSource_Independent(t *testing.T) {
	other := config.Source{ID: "cellar", Fields: []config.Field{{Name: "door_openings", Metric: "d", Rate: true}}}
	e := NewEngine()

	e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 0}), tick(0))
	out := e.Process(other, makeResult("cellar", map[string]float64{"door_openings": 1000}), tick(1))
	if _, ok := out.Values["door_openings"]; ok {
		t.Error("cellar should have no baseline of its own yet")
	}
}

func TestEngine_Forget(t *testing.T) {
	e := NewEngine()
	e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 0}), tick(0))
	e.Forget("greenhouse")
	out := e.Process(greenhouse, makeResult("greenhouse", map[string]float64{"door_openings": 10}), tick(1))
	if _, ok := out.Values["door_openings"]; ok {
		t.Error("baseline survived Forget")
	}
}

func TestDeltaOf(t *testing.T) {
	tests := []struct{ cur, prev, want float64 }{
		{10, 4, 6},
		{4, 10, 0},
		{5, 5, 0},
	}
	for _, tc := range tests {
		if got := deltaOf(tc.cur, tc.prev); got != tc.want {
			t.Errorf("deltaOf(%v, %v) = %v, want %v", tc.cur, tc.prev, got, tc.want)
		}
	}
}
