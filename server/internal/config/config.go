package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 3000
	DefaultPublicDir         = "public"
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultWSPath            = "/"
	DefaultSendBuffer        = 256
	DefaultWriteTimeout      = 10 * time.Second
	DefaultPongWait          = 60 * time.Second
	DefaultMaxMessageBytes   = 64 << 10
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "json"
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort serves static files, the REST API, metrics and WebSocket
	// upgrades (default 3000; PORT overrides).
	HTTPPort int `yaml:"http_port"`

	// GRPCPort serves the gRPC health service. Zero disables it.
	GRPCPort int `yaml:"grpc_port"`

	// PublicDir is served as static files on "/". Empty disables.
	PublicDir string `yaml:"public_dir"`

	// TLS switches the listener to HTTPS/WSS when both files are set.
	TLS TLSConfig `yaml:"tls"`

	Log       LogConfig       `yaml:"log"`
	Relay     RelayConfig     `yaml:"relay"`
	WebSocket WebSocketConfig `yaml:"websocket"`

	// Alerts holds threshold rules evaluated on every sensor update.
	Alerts AlertsConfig `yaml:"alerts"`

	// Production is set when the RENDER environment variable is present.
	Production bool `yaml:"-"`

	// ExternalHost is the public hostname reported in production
	// (RENDER_EXTERNAL_HOSTNAME).
	ExternalHost string `yaml:"-"`
}

// TLSConfig names the certificate pair for HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether both files are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// RelayConfig holds the engine's timer periods.
type RelayConfig struct {
	// HeartbeatInterval is the per-connection heartbeat period (default 15s).
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// SweepInterval is the dead-connection sweep period (default 30s).
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// WebSocketConfig tunes the transport.
type WebSocketConfig struct {
	// Path is where upgrade requests are accepted (default "/").
	Path            string        `yaml:"path"`
	SendBuffer      int           `yaml:"send_buffer"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongWait        time.Duration `yaml:"pong_wait"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	// RateLimit is inbound frames per second per connection; 0 disables.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold condition on a sensor field.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Sensor restricts the rule to one sensorId. Empty matches every sensor.
	Sensor string `yaml:"sensor"`

	// Condition is "<field> <op> <value>", e.g. "temperature > 30" or
	// "door == open". Ops: > >= < <= == !=.
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// envOverrides are the process environment variables that take precedence
// over the config file.
type envOverrides struct {
	Port         int    `env:"PORT"`
	ExternalHost string `env:"RENDER_EXTERNAL_HOSTNAME"`
	LogLevel     string `env:"LOG_LEVEL"`
	LogFormat    string `env:"LOG_FORMAT"`
	PublicDir    string `env:"PUBLIC_DIR"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides, then validation. A .env file
// in the working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("server config: could not load .env", "err", err)
	}

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("server config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("server config: parse yaml: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			PublicDir: DefaultPublicDir,
			Log: LogConfig{
				Level:  DefaultLogLevel,
				Format: DefaultLogFormat,
			},
			Relay: RelayConfig{
				HeartbeatInterval: DefaultHeartbeatInterval,
				SweepInterval:     DefaultSweepInterval,
			},
			WebSocket: WebSocketConfig{
				Path:            DefaultWSPath,
				SendBuffer:      DefaultSendBuffer,
				WriteTimeout:    DefaultWriteTimeout,
				PongWait:        DefaultPongWait,
				MaxMessageBytes: DefaultMaxMessageBytes,
			},
		},
	}
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Load(&ov, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	s := &cfg.Server
	if ov.Port != 0 {
		s.HTTPPort = ov.Port
	}
	if ov.LogLevel != "" {
		s.Log.Level = ov.LogLevel
	}
	if ov.LogFormat != "" {
		s.Log.Format = ov.LogFormat
	}
	if ov.PublicDir != "" {
		s.PublicDir = ov.PublicDir
	}
	// Presence alone marks production, even when the value is empty.
	_, s.Production = os.LookupEnv("RENDER")
	s.ExternalHost = ov.ExternalHost
	return nil
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.GRPCPort < 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [0, 65535]", s.GRPCPort)
	}
	if s.GRPCPort != 0 && s.GRPCPort == s.HTTPPort {
		return fmt.Errorf("server.grpc_port must differ from server.http_port")
	}
	if (s.TLS.CertFile == "") != (s.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls: cert_file and key_file must be set together")
	}
	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log.level %q unknown: want debug|info|warn|error", s.Log.Level)
	}
	switch s.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("server.log.format %q unknown: want json|text", s.Log.Format)
	}
	if s.Relay.HeartbeatInterval <= 0 {
		return fmt.Errorf("server.relay.heartbeat_interval must be positive")
	}
	if s.Relay.SweepInterval <= 0 {
		return fmt.Errorf("server.relay.sweep_interval must be positive")
	}
	if s.WebSocket.Path == "" || s.WebSocket.Path[0] != '/' {
		return fmt.Errorf("server.websocket.path %q must start with /", s.WebSocket.Path)
	}
	if s.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("server.websocket.send_buffer must be positive")
	}
	if s.WebSocket.WriteTimeout <= 0 || s.WebSocket.PongWait <= 0 {
		return fmt.Errorf("server.websocket: write_timeout and pong_wait must be positive")
	}
	if s.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("server.websocket.max_message_bytes must be positive")
	}
	if s.WebSocket.RateLimit < 0 || s.WebSocket.RateBurst < 0 {
		return fmt.Errorf("server.websocket: rate_limit and rate_burst must not be negative")
	}
	names := make(map[string]bool, len(s.Alerts.Rules))
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("server.alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		names[r.Name] = true
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition %q must be \"<field> <op> <value>\"", i, r.Name, r.Condition)
		}
		switch strings.Fields(r.Condition)[1] {
		case ">", ">=", "<", "<=", "==", "!=":
		default:
			return fmt.Errorf("server.alerts.rules[%d] %q: unknown operator in %q", i, r.Name, r.Condition)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("server.alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
