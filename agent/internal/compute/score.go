package compute

// Weight constants for the quality score formula.
// They must sum to 1.0.
const (
	weightCoverage = 0.60
	weightUptime   = 0.40
)

// State constants returned by the quality calculator.
const (
	StateGood     = "good"
	StateDegraded = "degraded"
	StatePoor     = "poor"
	StateUnknown  = "unknown"
)

// Thresholds that map a score to a quality state.
const (
	ThresholdGood     = 85.0
	ThresholdDegraded = 60.0
)

// Input holds the normalised values fed into the quality formula.
// All percentage fields are in the range 0–100.
type Input struct {
	// CoveragePct is the share of configured fields present in the latest
	// scrape. Rate fields count as present once a baseline exists.
	CoveragePct float64

	// UptimePct is the percentage of recent scrape cycles that returned
	// valid data. 100 = always reachable, 0 = never reachable.
	UptimePct float64
}

// Output is the result of the quality calculation.
type Output struct {
	// Score is the composite quality score in the range 0–100.
	Score float64

	// State is derived from Score.
	// One of: "good", "degraded", "poor", "unknown".
	State string

	CoverageFactor float64
	UptimeFactor   float64
}

// Quality scores how trustworthy a sensor's readings are:
//
//	score = (coverage_pct/100 * 0.60 + uptime_pct/100 * 0.40) * 100
//
// With no coverage and no uptime the state is "unknown".
func Quality(in Input) Output {
	if in.CoveragePct == 0 && in.UptimePct == 0 {
		return Output{State: StateUnknown}
	}

	coverage := clamp01(in.CoveragePct / 100)
	uptime := clamp01(in.UptimePct / 100)
	score := (coverage*weightCoverage + uptime*weightUptime) * 100

	return Output{
		Score:          score,
		State:          stateFromScore(score),
		CoverageFactor: coverage,
		UptimeFactor:   uptime,
	}
}

// stateFromScore maps a numeric score to a named quality state.
func stateFromScore(score float64) string {
	switch {
	case score >= ThresholdGood:
		return StateGood
	case score >= ThresholdDegraded:
		return StateDegraded
	default:
		return StatePoor
	}
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
