// Package compute turns raw scraper output into sensor readings.
//
// engine.go provides the stateful Engine that keeps per-source counter
// baselines, derives per-minute rates for rate fields from deltas between
// scrape cycles, and tracks a rolling uptime window. Engine.Process accepts
// an injectable time.Time so tests are deterministic.
//
// score.go provides the pure Quality(Input) function:
// coverage(60%) + uptime(40%). States: good ≥85, degraded 60–84, poor <60,
// unknown.
package compute
