// Package config loads the relay server configuration from the `server:`
// section of a YAML file (the `agent:` key is ignored by the server binary),
// then applies environment overrides.
//
// Config fields:
//   - HTTPPort  : static files, REST API, /metrics and WebSocket (default 3000)
//   - GRPCPort  : gRPC health service; 0 disables (default)
//   - PublicDir : static file root (default "public")
//   - TLS       : cert_file/key_file; both set switches to HTTPS/WSS
//   - Log       : level (debug|info|warn|error), format (json|text)
//   - Relay     : heartbeat_interval (15s), sweep_interval (30s)
//   - WebSocket : path, send_buffer, write_timeout, pong_wait,
//     max_message_bytes, rate_limit, rate_burst
//   - Alerts: rules (name, sensor, condition, severity, cooldown) and
//     webhooks (slack|teams|http, url_env)
//
// Environment: a .env file is loaded first if present. PORT, LOG_LEVEL,
// LOG_FORMAT and PUBLIC_DIR override the file; RENDER (presence) marks
// production mode and RENDER_EXTERNAL_HOSTNAME names the public host.
//
// Load("") skips the file and uses defaults plus environment. Watch(ctx, path,
// onChange) re-parses the file on every write via fsnotify.
package config
