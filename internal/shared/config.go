package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database    DatabaseConfig    `toml:"database"`
	SideChannel SideChannelConfig `toml:"side_channel"`
	Log         LogConfig         `toml:"log"`
}

// DatabaseConfig contains queue store settings.
type DatabaseConfig struct {
	Driver       string        `toml:"driver"`
	Path         string        `toml:"path"`
	MaxOpenConns int           `toml:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns"`
	BusyTimeout  time.Duration `toml:"busy_timeout"`
	Timeout      time.Duration `toml:"timeout"`
}

// SideChannelConfig contains the notification connection settings.
type SideChannelConfig struct {
	Addr              string        `toml:"addr"`
	Password          string        `toml:"password"`
	DB                int           `toml:"db"`
	ChannelPrefix     string        `toml:"channel_prefix"`
	NotifyTimeout     time.Duration `toml:"notify_timeout"`
	DialTimeout       time.Duration `toml:"dial_timeout"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
	ProbeTimeout      time.Duration `toml:"probe_timeout"`
	ReconnectInterval time.Duration `toml:"reconnect_interval"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

const (
	DriverSQLite = "sqlite"
	DriverPebble = "pebble"
)

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that timeouts are usable and that the heartbeat probe fits inside its tick.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPebble:
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	durations := map[string]time.Duration{
		"database.timeout":                c.Database.Timeout,
		"side_channel.notify_timeout":     c.SideChannel.NotifyTimeout,
		"side_channel.dial_timeout":       c.SideChannel.DialTimeout,
		"side_channel.heartbeat_interval": c.SideChannel.HeartbeatInterval,
		"side_channel.probe_timeout":      c.SideChannel.ProbeTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
		}
	}

	if c.SideChannel.ProbeTimeout >= c.SideChannel.HeartbeatInterval {
		return fmt.Errorf("%w: side_channel.probe_timeout (%s) must be shorter than heartbeat_interval (%s)",
			ErrInvalidConfig, c.SideChannel.ProbeTimeout, c.SideChannel.HeartbeatInterval)
	}

	return nil
}
