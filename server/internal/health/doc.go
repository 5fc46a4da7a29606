// Package health serves the standard gRPC health-checking protocol
// (grpc.health.v1) for the relay, so orchestrators that probe over gRPC can
// tell whether the process is accepting connections.
package health
