// Package api implements the read-only HTTP REST API for sensorrelay-server.
//
// New(store, clients, alerts) returns an http.Handler that serves:
//
//	GET /api/v1/health       : status, connected clients, cached sensors, firing alerts
//	GET /api/v1/sensors      : every cached sensor record, ordered by id
//	GET /api/v1/sensors/{id} : one record in the shape replayed on connect; 404 if unknown
//	GET /api/v1/alerts       : firing and recently resolved alerts, newest first
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
