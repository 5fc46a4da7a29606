// Package config loads and watches the sensor bridge configuration file.
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: relay_endpoint, scrape_interval, heartbeat_interval,
//     buffer_size, relay_tls, sources []
//   - Source: id (published as sensorId), endpoint, fields [], static,
//     check_cert, auth, tls
//   - Field: name, metric, labels, rate
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env, username, password_env; Key(), Token() and
//     Password() resolve from environment variables
//
// Load(path) reads the YAML file, applies defaults (30s scrape, 15s
// heartbeat, 1000 buffer), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
