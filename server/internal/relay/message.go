package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sensorrelay/sensorrelay/pkg/types"
	"github.com/sensorrelay/sensorrelay/server/internal/store"
)

// ErrMalformed is wrapped by ParseMessage when a frame is not a JSON object.
var ErrMalformed = errors.New("relay: malformed frame")

// Message is a parsed inbound frame.
type Message struct {
	Fields store.Fields
	// Raw is the frame exactly as received; it is what gets relayed.
	Raw []byte
}

// ParseMessage decodes data as a JSON object.
func ParseMessage(data []byte) (Message, error) {
	var f store.Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f == nil {
		return Message{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	return Message{Fields: f, Raw: data}, nil
}

// IsHeartbeat reports whether m is a client heartbeat.
func (m Message) IsHeartbeat() bool {
	s, ok := m.Fields[types.FieldType].Str()
	return ok && s == types.TypeHeartbeat
}

// SensorID returns the sensor id carried by m, if it has a non-empty string one.
func (m Message) SensorID() (string, bool) {
	s, ok := m.Fields[types.FieldSensorID].Str()
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
