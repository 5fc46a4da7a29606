package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
agent:
  relay_endpoint: "ws://localhost:3000/"
  scrape_interval: 10s
  heartbeat_interval: 5s
  buffer_size: 500
  sources:
    - id: greenhouse
      endpoint: "http://localhost:9100/metrics"
      static:
        location: north wing
      fields:
        - name: temperature
          metric: greenhouse_temperature_celsius
          labels:
            zone: a
        - name: door_openings_per_min
          metric: greenhouse_door_open_total
          rate: true
      auth:
        mode: none
`

func TestLoad_Valid(t *testing.T) {
	cfg := loadFromString(t, validYAML)

	if cfg.Agent.RelayEndpoint != "ws://localhost:3000/" {
		t.Errorf("relay_endpoint: got %q", cfg.Agent.RelayEndpoint)
	}
	if cfg.Agent.ScrapeInterval != 10*time.Second {
		t.Errorf("scrape_interval: got %v", cfg.Agent.ScrapeInterval)
	}
	if cfg.Agent.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat_interval: got %v", cfg.Agent.HeartbeatInterval)
	}
	if cfg.Agent.BufferSize != 500 {
		t.Errorf("buffer_size: got %d", cfg.Agent.BufferSize)
	}
	if len(cfg.Agent.Sources) != 1 {
		t.Fatalf("sources: got %d, want 1", len(cfg.Agent.Sources))
	}
	src := cfg.Agent.Sources[0]
	if src.ID != "greenhouse" {
		t.Errorf("source id: got %q", src.ID)
	}
	if src.Static["location"] != "north wing" {
		t.Errorf("static location: got %q", src.Static["location"])
	}
	if len(src.Fields) != 2 {
		t.Fatalf("fields: got %d, want 2", len(src.Fields))
	}
	if f := src.Fields[0]; f.Labels["zone"] != "a" || f.Rate {
		t.Errorf("fields[0]: got %+v", f)
	}
	if f := src.Fields[1]; !f.Rate {
		t.Errorf("fields[1].rate: got false")
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  relay_endpoint: "wss://relay.example.com"
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
      fields:
        - {name: t, metric: temp}
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ScrapeInterval != DefaultScrapeInterval {
		t.Errorf("default scrape_interval: got %v, want %v", cfg.Agent.ScrapeInterval, DefaultScrapeInterval)
	}
	if cfg.Agent.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("default heartbeat_interval: got %v, want %v", cfg.Agent.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Agent.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", cfg.Agent.BufferSize, DefaultBufferSize)
	}
}

func TestLoad_Invalid(t *testing.T) {
	const src = `
    - id: s
      endpoint: "http://localhost:9100/metrics"
      fields:
        - {name: t, metric: temp}
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing endpoint", "agent:\n  sources:" + src, "relay_endpoint is required"},
		{"http endpoint", "agent:\n  relay_endpoint: http://x\n  sources:" + src, "ws:// or wss://"},
		{"negative buffer", "agent:\n  relay_endpoint: ws://x\n  buffer_size: -1\n  sources:" + src, "buffer_size"},
		{"zero heartbeat", "agent:\n  relay_endpoint: ws://x\n  heartbeat_interval: 0s\n  sources:" + src, "heartbeat_interval"},
		{"duplicate id", "agent:\n  relay_endpoint: ws://x\n  sources:" + src + src, "duplicate id"},
		{"no fields", `
agent:
  relay_endpoint: ws://x
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
`, "at least one field"},
		{"reserved field", `
agent:
  relay_endpoint: ws://x
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
      fields:
        - {name: sensorId, metric: temp}
`, "reserved"},
		{"reserved static", `
agent:
  relay_endpoint: ws://x
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
      static: {type: heartbeat}
      fields:
        - {name: t, metric: temp}
`, "reserved"},
		{"duplicate field", `
agent:
  relay_endpoint: ws://x
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
      fields:
        - {name: t, metric: temp}
        - {name: t, metric: other}
`, "duplicate field"},
		{"missing metric", `
agent:
  relay_endpoint: ws://x
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
      fields:
        - {name: t}
`, "metric is required"},
		{"unknown auth mode", `
agent:
  relay_endpoint: ws://x
  sources:
    - id: s
      endpoint: "http://localhost:9100/metrics"
      fields:
        - {name: t, metric: temp}
      auth:
        mode: magictoken
`, "unknown auth mode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not contain %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_TokenAndPassword(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_PASSWORD", "hunter2")
	a := AuthConfig{TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_PASSWORD"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
	if got := a.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q, want %q", got, "hunter2")
	}
}

func TestWatch_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 8)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validYAML, "buffer_size: 500", "buffer_size: 42", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Agent.BufferSize == 42 {
				cancel()
				if err := <-errc; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
