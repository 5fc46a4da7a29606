package api

import "github.com/sensorrelay/sensorrelay/server/internal/store"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Sensors int    `json:"sensors"`

	FiringAlerts int `json:"firing_alerts"`
}

// SensorResponse is one entry in GET /api/v1/sensors. Reading carries the
// same object a newly connected client receives during replay.
type SensorResponse struct {
	SensorID  string       `json:"sensor_id"`
	UpdatedAt string       `json:"updated_at"` // RFC3339
	Reading   store.Fields `json:"reading"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
