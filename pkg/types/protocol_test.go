package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHeartbeatFrame(t *testing.T) {
	var m map[string]interface{}
	if err := json.Unmarshal(HeartbeatFrame(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m[FieldType] != TypeHeartbeat {
		t.Errorf("type: got %v, want %s", m[FieldType], TypeHeartbeat)
	}
	if len(m) != 1 {
		t.Errorf("fields: got %d, want 1", len(m))
	}
}

func TestHeartbeatFrame_ReturnsCopy(t *testing.T) {
	a := HeartbeatFrame()
	a[0] = 'x'
	if b := HeartbeatFrame(); b[0] != '{' {
		t.Errorf("HeartbeatFrame shares its backing array")
	}
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := time.Date(2024, 5, 1, 14, 3, 4, 120_000_000, loc)
	if got, want := FormatTimestamp(ts), "2024-05-01T12:03:04.120Z"; got != want {
		t.Errorf("FormatTimestamp: got %q, want %q", got, want)
	}
}
