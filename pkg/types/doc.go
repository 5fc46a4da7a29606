// Package types defines the wire protocol shared by the relay server and the
// sensor bridge agent. Messages are JSON objects; the relay only interprets
// the "type" and "sensorId" fields and treats every other field as opaque.
package types
