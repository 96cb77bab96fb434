// Package config loads the gasbridge service configuration and manages the
// persisted, versioned station entries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
}

// ClientConfig selects the price client driver used for all entries.
type ClientConfig struct {
	Driver  string   `yaml:"driver"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// AuthConfig captures username/password authentication for MQTT.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TLSConfig allows TLS broker connections to be configured.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	ServerName         string `yaml:"server_name,omitempty"`
}

// MQTTConfig describes how to reach the broker Home Assistant listens on.
type MQTTConfig struct {
	Broker          string      `yaml:"broker"`
	ClientID        string      `yaml:"client_id,omitempty"`
	KeepAlive       *Duration   `yaml:"keep_alive,omitempty"`
	ConnectTimeout  *Duration   `yaml:"connect_timeout,omitempty"`
	Auth            *AuthConfig `yaml:"auth,omitempty"`
	TLS             *TLSConfig  `yaml:"tls,omitempty"`
	DiscoveryPrefix string      `yaml:"discovery_prefix,omitempty"`
	BaseTopic       string      `yaml:"base_topic,omitempty"`
	QoS             byte        `yaml:"qos,omitempty"`
	Retain          bool        `yaml:"retain,omitempty"`
}

// TrackerTopic binds a location-bearing entity to the MQTT topic carrying
// its attribute payload.
type TrackerTopic struct {
	EntityID string `yaml:"entity_id"`
	Topic    string `yaml:"topic"`
}

// HomeConfig holds the coordinates used by the GPS-based config flow path.
type HomeConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// ServerConfig configures the embedded HTTP API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Config is the root configuration structure for the service.
type Config struct {
	Name      string          `yaml:"name,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Client    ClientConfig    `yaml:"client"`
	MQTT      *MQTTConfig     `yaml:"mqtt,omitempty"`
	Server    ServerConfig    `yaml:"server"`
	Entries   string          `yaml:"entries"`
	Home      *HomeConfig     `yaml:"home,omitempty"`
	Tracker   []TrackerTopic  `yaml:"tracker,omitempty"`
	HotReload bool            `yaml:"hot_reload,omitempty"`
}

// Load reads and decodes the configuration file from disk.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", abs, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", abs, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	if !filepath.IsAbs(cfg.Entries) {
		cfg.Entries = filepath.Join(filepath.Dir(abs), cfg.Entries)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Entries == "" {
		return errors.New("entries path is required")
	}
	if c.Client.Driver == "" {
		return errors.New("client.driver is required")
	}
	if c.MQTT != nil && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is configured")
	}
	for i, tracker := range c.Tracker {
		if tracker.EntityID == "" {
			return fmt.Errorf("tracker %d: entity_id is required", i)
		}
		if tracker.Topic == "" {
			return fmt.Errorf("tracker %d: topic is required", i)
		}
	}
	return nil
}

const (
	// DefaultInterval is the poll interval applied when an entry carries
	// none, in seconds.
	DefaultInterval = 3600
	// MinInterval and MaxInterval bound the configurable poll interval, in
	// seconds.
	MinInterval = 900
	MaxInterval = 14400
	// DefaultTimeoutMS bounds a single price lookup, in milliseconds.
	DefaultTimeoutMS = 60000
	// DefaultName labels stations the user did not name.
	DefaultName = "Gas Station"
)

var solverURLPattern = regexp.MustCompile(`^https?://[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?(:\d+)?(/[^\s]*)?$`)

// ValidSolverURL reports whether the supplied solver URL matches the
// scheme+host+optional-path pattern. The empty string means "no solver" and
// is always valid.
func ValidSolverURL(url string) bool {
	if url == "" {
		return true
	}
	return solverURLPattern.MatchString(url)
}

// ValidInterval reports whether the poll interval (seconds) is inside the
// supported range.
func ValidInterval(seconds int) bool {
	return seconds >= MinInterval && seconds <= MaxInterval
}
