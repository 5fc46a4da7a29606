// Package security inspects the TLS certificates served by https sources so
// the bridge can publish cert_status and cert_days_left alongside readings.
package security
