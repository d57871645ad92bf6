// Package config handles configuration loading, validation, and hot reload
// for xtouchd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"xtouchd/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Touch configures the device protocol, mapping and contact tracking
	// shared by every player.
	Touch TouchConfig `toml:"touch" json:"touch" yaml:"touch"`

	// Players selects the physical device for each player. With no entry the
	// first matching device is used for 1P.
	Players []PlayerConfig `toml:"players" json:"players" yaml:"players"`

	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
	Server  ServerConfig  `toml:"server" json:"server" yaml:"server"`
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`
}

// TouchConfig holds the touch pipeline settings.
type TouchConfig struct {
	// Protocol names the panel packet format ("pdx").
	Protocol string `toml:"protocol" json:"protocol" yaml:"protocol"`

	// Backend selects the device access layer: "usb" claims the interface
	// through libusb, "hid" reads through hidapi.
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Radius is the finger radius in canvas units. 0 means centre point only.
	Radius float64 `toml:"radius" json:"radius" yaml:"radius"`

	// TimeoutMs releases contacts that have not been updated for this long.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`

	// ReadTimeoutMs bounds a single device read so shutdown is noticed.
	ReadTimeoutMs int `toml:"read_timeout_ms" json:"read_timeout_ms" yaml:"read_timeout_ms"`

	// HotPlug reconnects devices that disappear or were absent at startup.
	HotPlug bool `toml:"hot_plug" json:"hot_plug" yaml:"hot_plug"`

	// ReconnectIntervalMs is the delay between reconnect attempts.
	ReconnectIntervalMs int `toml:"reconnect_interval_ms" json:"reconnect_interval_ms" yaml:"reconnect_interval_ms"`

	// IONice is the scheduling niceness applied to read threads (Linux only).
	IONice int `toml:"io_nice" json:"io_nice" yaml:"io_nice"`

	// Bounds overrides the protocol's raw coordinate range.
	Bounds *BoundsConfig `toml:"bounds,omitempty" json:"bounds,omitempty" yaml:"bounds,omitempty"`
}

// BoundsConfig is a raw device coordinate range. MinX may exceed MaxX to
// invert an axis.
type BoundsConfig struct {
	MinX float64 `toml:"min_x" json:"min_x" yaml:"min_x"`
	MinY float64 `toml:"min_y" json:"min_y" yaml:"min_y"`
	MaxX float64 `toml:"max_x" json:"max_x" yaml:"max_x"`
	MaxY float64 `toml:"max_y" json:"max_y" yaml:"max_y"`
	Flip bool    `toml:"flip" json:"flip" yaml:"flip"`
}

// PlayerConfig binds a player to a device.
type PlayerConfig struct {
	// Player is 1 or 2.
	Player int `toml:"player" json:"player" yaml:"player"`

	// Serial selects the device by USB serial number.
	Serial string `toml:"serial,omitempty" json:"serial,omitempty" yaml:"serial,omitempty"`

	// LocationPath selects the device by physical port, e.g. "1-2.3" or a
	// Windows location path.
	LocationPath string `toml:"location_path,omitempty" json:"location_path,omitempty" yaml:"location_path,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// ServerConfig holds the monitor HTTP server settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`

	// PollHz is how often the monitor polls each player when no game loop
	// is attached.
	PollHz int `toml:"poll_hz" json:"poll_hz" yaml:"poll_hz"`
}

// JournalConfig holds the finger event journal settings.
type JournalConfig struct {
	Enabled         bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path            string `toml:"path" json:"path" yaml:"path"`
	BatchSize       int    `toml:"batch_size" json:"batch_size" yaml:"batch_size"`
	FlushIntervalMs int    `toml:"flush_interval_ms" json:"flush_interval_ms" yaml:"flush_interval_ms"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Touch: TouchConfig{
			Protocol:            "pdx",
			Backend:             "usb",
			Radius:              12,
			TimeoutMs:           20,
			ReadTimeoutMs:       100,
			ReconnectIntervalMs: 500,
		},
		Players: []PlayerConfig{{Player: 1}},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7373",
			PollHz: 60,
		},
		Journal: JournalConfig{
			Path:            filepath.Join(DataDir(), "journal.db"),
			BatchSize:       256,
			FlushIntervalMs: 250,
		},
	}
}

// Timeout returns the contact timeout.
func (t TouchConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// ReadTimeout returns the per-read device timeout.
func (t TouchConfig) ReadTimeout() time.Duration {
	return time.Duration(t.ReadTimeoutMs) * time.Millisecond
}

// ReconnectInterval returns the hot-plug retry delay.
func (t TouchConfig) ReconnectInterval() time.Duration {
	return time.Duration(t.ReconnectIntervalMs) * time.Millisecond
}

// PollInterval returns the monitor's poll period.
func (s ServerConfig) PollInterval() time.Duration {
	if s.PollHz <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(s.PollHz)
}

// FlushInterval returns the journal flush period.
func (j JournalConfig) FlushInterval() time.Duration {
	return time.Duration(j.FlushIntervalMs) * time.Millisecond
}

// LoggerConfig converts the logging section into a logging.Config.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = l.Output
	if l.FilePath != "" {
		cfg.FilePath = l.FilePath
	}
	cfg.MaxSize = int64(l.MaxSizeMB)
	cfg.MaxBackups = l.MaxBackups
	return cfg, nil
}

// Player returns the entry for a 1-based player number.
func (c *Config) Player(n int) (PlayerConfig, bool) {
	for _, p := range c.Players {
		if p.Player == n {
			return p, true
		}
	}
	return PlayerConfig{}, false
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies XTOUCHD_* environment variables. Malformed
// numeric values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("XTOUCHD_BACKEND"); v != "" {
		c.Touch.Backend = v
	}
	if v := os.Getenv("XTOUCHD_PROTOCOL"); v != "" {
		c.Touch.Protocol = v
	}
	if v := os.Getenv("XTOUCHD_RADIUS"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			c.Touch.Radius = r
		}
	}
	if v := os.Getenv("XTOUCHD_HOT_PLUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Touch.HotPlug = b
		}
	}

	if v := os.Getenv("XTOUCHD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("XTOUCHD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("XTOUCHD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("XTOUCHD_LISTEN"); v != "" {
		c.Server.Listen = v
		c.Server.Enabled = true
	}
	if v := os.Getenv("XTOUCHD_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
		c.Journal.Enabled = true
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Players = append([]PlayerConfig(nil), c.Players...)
	if c.Touch.Bounds != nil {
		b := *c.Touch.Bounds
		clone.Touch.Bounds = &b
	}
	return &clone
}

// EnsureDirectories creates the directories for file outputs in use.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Journal.Enabled {
		dirs = append(dirs, filepath.Dir(c.Journal.Path))
	}
	if o := strings.ToLower(c.Logging.Output); o == "file" || o == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
