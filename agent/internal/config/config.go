package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensorrelay/sensorrelay/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval    = 30 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultBufferSize        = 1000
)

// Config is the top-level configuration for the sensor bridge.
// The `server:` key in a shared file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all bridge settings.
type AgentConfig struct {
	// RelayEndpoint is the ws:// or wss:// URL of sensorrelay-server.
	RelayEndpoint string `yaml:"relay_endpoint"`

	// ScrapeInterval controls how often each source is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// HeartbeatInterval controls how often a {"type":"heartbeat"} frame is
	// sent to the relay while connected.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// BufferSize is the maximum number of readings held in memory while the
	// relay is unreachable. The oldest reading is dropped when full.
	BufferSize int `yaml:"buffer_size"`

	// RelayTLS holds TLS dial options for wss:// endpoints.
	RelayTLS TLSConfig `yaml:"relay_tls"`

	// Sources is the list of metrics endpoints published as sensors.
	Sources []Source `yaml:"sources"`
}

// Source describes one scraped endpoint. Each source publishes as one sensor.
type Source struct {
	// ID is published as the reading's sensorId.
	ID string `yaml:"id"`

	// Endpoint is the full URL of a Prometheus text exposition endpoint.
	Endpoint string `yaml:"endpoint"`

	// Fields maps reading fields to metric families.
	Fields []Field `yaml:"fields"`

	// Static fields are attached verbatim to every reading (e.g. location).
	Static map[string]string `yaml:"static"`

	// CheckCert adds cert_status and cert_days_left for https endpoints.
	CheckCert bool `yaml:"check_cert"`

	// Auth configures how the bridge authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// Field binds one reading field to a metric family.
type Field struct {
	// Name is the field name in the published reading.
	Name string `yaml:"name"`

	// Metric is the metric family name. All matching series are summed.
	Metric string `yaml:"metric"`

	// Labels restricts the sum to series carrying every listed label value.
	Labels map[string]string `yaml:"labels"`

	// Rate publishes the per-minute rate of a counter instead of its value.
	Rate bool `yaml:"rate"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding a bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeInterval:    DefaultScrapeInterval,
			HeartbeatInterval: DefaultHeartbeatInterval,
			BufferSize:        DefaultBufferSize,
		},
	}
}

// reservedFields are protocol keys a source may not publish.
var reservedFields = map[string]bool{
	types.FieldType:        true,
	types.FieldSensorID:    true,
	types.FieldLastUpdated: true,
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.RelayEndpoint == "" {
		return fmt.Errorf("agent.relay_endpoint is required")
	}
	u, err := url.Parse(a.RelayEndpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("agent.relay_endpoint %q must be a ws:// or wss:// URL", a.RelayEndpoint)
	}
	if a.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if a.HeartbeatInterval <= 0 {
		return fmt.Errorf("agent.heartbeat_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		if len(src.Fields) == 0 {
			return fmt.Errorf("sources[%d] %q: at least one field is required", i, src.ID)
		}
		names := make(map[string]bool, len(src.Fields)+len(src.Static))
		for j, f := range src.Fields {
			switch {
			case f.Name == "":
				return fmt.Errorf("sources[%d] %q: fields[%d]: name is required", i, src.ID, j)
			case f.Metric == "":
				return fmt.Errorf("sources[%d] %q: field %q: metric is required", i, src.ID, f.Name)
			case reservedFields[f.Name]:
				return fmt.Errorf("sources[%d] %q: field name %q is reserved", i, src.ID, f.Name)
			case names[f.Name]:
				return fmt.Errorf("sources[%d] %q: duplicate field %q", i, src.ID, f.Name)
			}
			names[f.Name] = true
		}
		for k := range src.Static {
			if reservedFields[k] {
				return fmt.Errorf("sources[%d] %q: static field %q is reserved", i, src.ID, k)
			}
			if names[k] {
				return fmt.Errorf("sources[%d] %q: static field %q duplicates a metric field", i, src.ID, k)
			}
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}
	return nil
}
