// Package shipper publishes sensor readings to sensorrelay-server over a
// WebSocket using the relay's JSON protocol.
//
// Shipper.Ship() is non-blocking: readings are encoded and placed in an
// in-memory channel (default capacity 1000). When the buffer is full the
// oldest entry is evicted so the latest readings are always preserved.
//
// Shipper.Run() dials the relay and drains the buffer, sending a
// {"type":"heartbeat"} frame every heartbeat_interval. Frames pushed by the
// relay are read and discarded. On read or write failure it reconnects with
// truncated exponential backoff (1s→60s, ±25% jitter).
//
// The dialFn field is injectable for testing.
package shipper
