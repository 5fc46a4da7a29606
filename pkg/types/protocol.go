package types

import "time"

// Field names the relay interprets.
const (
	FieldType        = "type"
	FieldSensorID    = "sensorId"
	FieldLastUpdated = "lastUpdated"
)

// TypeHeartbeat is the value of the "type" field on heartbeat frames, in both
// directions.
const TypeHeartbeat = "heartbeat"

// TimestampLayout is the format of lastUpdated: UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var heartbeatFrame = []byte(`{"type":"heartbeat"}`)

// HeartbeatFrame returns the encoded heartbeat message. The returned slice is
// a fresh copy and may be retained by the caller.
func HeartbeatFrame() []byte {
	out := make([]byte, len(heartbeatFrame))
	copy(out, heartbeatFrame)
	return out
}

// FormatTimestamp renders t the way lastUpdated is stamped on records.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
