package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Config holds the complete phpbridge configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	PHP       PHPConfig       `yaml:"php" toml:"php"`
	Bridge    BridgeConfig    `yaml:"bridge" toml:"bridge"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

type ServerConfig struct {
	Address         string   `yaml:"address" toml:"address"`
	ReadTimeout     Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type PHPConfig struct {
	Version    string           `yaml:"version" toml:"version"`     // auto, 7.4, 8.0, 8.1, 8.2, 8.3, 8.4
	Root       string           `yaml:"root" toml:"root"`           // project root, searched for composer.json
	Extensions ExtensionsConfig `yaml:"extensions" toml:"extensions"`
	LogLevel   string           `yaml:"log_level" toml:"log_level"` // level for messages logged from PHP
}

// ExtensionsConfig defines required and optional extensions
type ExtensionsConfig struct {
	Required []string `yaml:"required" toml:"required"` // must load (fail if missing)
	Optional []string `yaml:"optional" toml:"optional"` // skipped with a warning if missing
}

// BridgeConfig tunes the call channel and the interpreter pump.
type BridgeConfig struct {
	PumpInterval Duration `yaml:"pump_interval" toml:"pump_interval"`
	DrainLimit   int      `yaml:"drain_limit" toml:"drain_limit"` // 0 drains the whole batch
	CallTimeout  Duration `yaml:"call_timeout" toml:"call_timeout"`
}

type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled"`
	Path           string   `yaml:"path" toml:"path"`
	MaxConnections int      `yaml:"max_connections" toml:"max_connections"`
	// MaxInFlight caps outstanding calls per connection.
	MaxInFlight    int      `yaml:"max_inflight" toml:"max_inflight"`
	MaxMessageSize ByteSize `yaml:"max_message_size" toml:"max_message_size"`
	Codec          string   `yaml:"codec" toml:"codec"` // msgpack or cbor, for frames the server originates
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Duration is a time.Duration that unmarshals from strings like "250ms"
// in both YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes written as "64KiB", "1M" or a plain number.
// Suffixes are binary multiples.
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := units.RAMInBytes(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

func (b ByteSize) Int64() int64 {
	return int64(b)
}

// Load reads config from a YAML or TOML file, applying defaults for
// missing values. Files ending in .toml are parsed as TOML, everything
// else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

var validVersions = map[string]bool{
	"auto": true, "7.4": true, "8.0": true,
	"8.1": true, "8.2": true, "8.3": true, "8.4": true,
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	if !validVersions[c.PHP.Version] {
		return fmt.Errorf("php.version must be auto or specific version (7.4-8.4), got %q", c.PHP.Version)
	}
	if c.PHP.LogLevel != "" && !validLevels[c.PHP.LogLevel] {
		return fmt.Errorf("php.log_level must be debug, info, warn or error, got %q", c.PHP.LogLevel)
	}

	if c.Bridge.PumpInterval <= 0 {
		return fmt.Errorf("bridge.pump_interval must be positive, got %s", c.Bridge.PumpInterval.Duration())
	}
	if c.Bridge.DrainLimit < 0 {
		return fmt.Errorf("bridge.drain_limit must be >= 0, got %d", c.Bridge.DrainLimit)
	}
	if c.Bridge.CallTimeout <= 0 {
		return fmt.Errorf("bridge.call_timeout must be positive, got %s", c.Bridge.CallTimeout.Duration())
	}

	if c.WebSocket.Enabled {
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			return fmt.Errorf("websocket.path must start with '/', got %q", c.WebSocket.Path)
		}
		if c.WebSocket.MaxConnections < 1 {
			return fmt.Errorf("websocket.max_connections must be >= 1, got %d", c.WebSocket.MaxConnections)
		}
		if c.WebSocket.MaxInFlight < 1 {
			return fmt.Errorf("websocket.max_inflight must be >= 1, got %d", c.WebSocket.MaxInFlight)
		}
		if c.WebSocket.MaxMessageSize < 1024 {
			return fmt.Errorf("websocket.max_message_size must be at least 1KiB, got %s", c.WebSocket.MaxMessageSize)
		}
		switch strings.ToLower(c.WebSocket.Codec) {
		case "", "msgpack", "cbor":
		default:
			return fmt.Errorf("websocket.codec must be msgpack or cbor, got %q", c.WebSocket.Codec)
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}
