// Package metrics exposes Prometheus instrumentation for the relay.
//
// NewRegistry returns a registry pre-loaded with Go runtime and process
// collectors; NewRelayMetrics registers the relay's own series on it and
// Handler serves the registry in the text exposition format.
package metrics
