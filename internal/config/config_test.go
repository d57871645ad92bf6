package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, "pdx", cfg.Touch.Protocol)
	assert.Equal(t, "usb", cfg.Touch.Backend)
	assert.Equal(t, 12.0, cfg.Touch.Radius)
	assert.Equal(t, 20*time.Millisecond, cfg.Touch.Timeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Touch.ReadTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.Touch.ReconnectInterval())
	assert.False(t, cfg.Touch.HotPlug)
	assert.Nil(t, cfg.Touch.Bounds)
	assert.Equal(t, []PlayerConfig{{Player: 1}}, cfg.Players)
	assert.Equal(t, time.Second/60, cfg.Server.PollInterval())
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Touch, cfg.Touch)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[touch]
backend = "hid"
radius = 8.5
timeout_ms = 40
hot_plug = true

[touch.bounds]
min_x = 0
min_y = 0
max_x = 4095
max_y = 4095
flip = false

[[players]]
player = 1
serial = "PDX-A"

[[players]]
player = 2
location_path = "1-2.4"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hid", cfg.Touch.Backend)
	assert.Equal(t, "pdx", cfg.Touch.Protocol, "unset keys keep their defaults")
	assert.Equal(t, 8.5, cfg.Touch.Radius)
	assert.Equal(t, 40*time.Millisecond, cfg.Touch.Timeout())
	assert.True(t, cfg.Touch.HotPlug)
	require.NotNil(t, cfg.Touch.Bounds)
	assert.Equal(t, 4095.0, cfg.Touch.Bounds.MaxX)

	require.Len(t, cfg.Players, 2)
	p2, ok := cfg.Player(2)
	require.True(t, ok)
	assert.Equal(t, "1-2.4", p2.LocationPath)
}

func TestLoadTOMLRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[touch]\nradus = 3\n"), 0600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "radus")
}

func TestLoadJSONSchema(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"touch": {"radius": 4}, "players": [{"player": 2, "serial": "X"}]}`), 0600))
	cfg, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.Touch.Radius)
	assert.Equal(t, []PlayerConfig{{Player: 2, Serial: "X"}}, cfg.Players)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"touch": {"backend": "serial"}}`), 0600))
	_, err = Load(bad)
	assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)

	typo := filepath.Join(dir, "typo.json")
	require.NoError(t, os.WriteFile(typo, []byte(`{"tuoch": {}}`), 0600))
	_, err = Load(typo)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
touch:
  radius: 0
server:
  enabled: true
  listen: "0.0.0.0:9000"
  poll_hz: 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Touch.Radius)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, time.Second/120, cfg.Server.PollInterval())
	assert.Equal(t, []PlayerConfig{{Player: 1}}, cfg.Players)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Touch.Radius = 6
	cfg.Touch.Bounds = &BoundsConfig{MinX: 18432, MaxY: 32767, Flip: true}
	cfg.Players = []PlayerConfig{{Player: 1, Serial: "A"}, {Player: 2, Serial: "B"}}

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(cfg, path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Touch, loaded.Touch)
			assert.Equal(t, cfg.Players, loaded.Players)
			assert.Equal(t, cfg.Journal, loaded.Journal)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("XTOUCHD_RADIUS", "3.5")
	t.Setenv("XTOUCHD_BACKEND", "hid")
	t.Setenv("XTOUCHD_HOT_PLUG", "true")
	t.Setenv("XTOUCHD_LOG_LEVEL", "debug")
	t.Setenv("XTOUCHD_LISTEN", "127.0.0.1:8080")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 3.5, cfg.Touch.Radius)
	assert.Equal(t, "hid", cfg.Touch.Backend)
	assert.True(t, cfg.Touch.HotPlug)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("XTOUCHD_RADIUS", "wide")
	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, 12.0, cfg.Touch.Radius)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"protocol", func(c *Config) { c.Touch.Protocol = "adx" }, "touch.protocol"},
		{"backend", func(c *Config) { c.Touch.Backend = "serial" }, "touch.backend"},
		{"radius", func(c *Config) { c.Touch.Radius = -1 }, "touch.radius"},
		{"timeout", func(c *Config) { c.Touch.TimeoutMs = 0 }, "touch.timeout_ms"},
		{"reconnect", func(c *Config) { c.Touch.HotPlug = true; c.Touch.ReconnectIntervalMs = 10 }, "touch.reconnect_interval_ms"},
		{"bounds", func(c *Config) { c.Touch.Bounds = &BoundsConfig{MinX: 5, MaxX: 5, MaxY: 1} }, "touch.bounds"},
		{"no players", func(c *Config) { c.Players = nil }, "players"},
		{"player number", func(c *Config) { c.Players = []PlayerConfig{{Player: 3}} }, "players[0].player"},
		{"duplicate player", func(c *Config) {
			c.Players = []PlayerConfig{{Player: 1, Serial: "A"}, {Player: 1, Serial: "B"}}
		}, "players[1].player"},
		{"same device", func(c *Config) { c.Players = []PlayerConfig{{Player: 1}, {Player: 2}} }, "players"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"listen", func(c *Config) { c.Server.Enabled = true; c.Server.Listen = "nowhere" }, "server.listen"},
		{"journal path", func(c *Config) { c.Journal.Enabled = true; c.Journal.Path = "" }, "journal.path"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			fields := make([]string, 0, len(verrs))
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tc.field)
		})
	}
}

func TestLintWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Players = []PlayerConfig{{Player: 1, Serial: "A", LocationPath: "1-1"}}
	cfg.Touch.IONice = -5

	all := Lint(cfg)
	assert.Len(t, all.Warnings(), 2)
	assert.False(t, all.HasErrors())
	assert.NoError(t, cfg.Validate())
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "file"

	lc, err := cfg.Logging.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, "file", lc.Output)
	assert.Equal(t, cfg.Logging.FilePath, lc.FilePath)

	cfg.Logging.Level = "nope"
	_, err = cfg.Logging.LoggerConfig()
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Touch.Bounds = &BoundsConfig{MaxX: 1, MaxY: 1}

	clone := cfg.Clone()
	clone.Players[0].Serial = "changed"
	clone.Touch.Bounds.MaxX = 2

	assert.Empty(t, cfg.Players[0].Serial)
	assert.Equal(t, 1.0, cfg.Touch.Bounds.MaxX)
}

func TestLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[touch]\nradius = 12.0\n"), 0600))

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	defer l.Close()

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 12.0, cfg.Touch.Radius)

	changed := make(chan [2]float64, 1)
	l.OnChange(func(old, new *Config) {
		select {
		case changed <- [2]float64{old.Touch.Radius, new.Touch.Radius}:
		default:
		}
	})
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[touch]\nradius = 20.0\n"), 0600))

	select {
	case radii := <-changed:
		assert.Equal(t, [2]float64{12, 20}, radii)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
	assert.Equal(t, 20.0, l.Config().Touch.Radius)
}

func TestLoaderKeepsConfigOnInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[touch]\nradius = 12.0\n"), 0600))

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	defer l.Close()
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())

	require.NoError(t, os.WriteFile(path, []byte("[touch]\nradius = -4.0\n"), 0600))

	select {
	case err := <-l.Errors():
		assert.ErrorContains(t, err, "touch.radius")
	case <-time.After(5 * time.Second):
		t.Fatal("reload error not reported")
	}
	assert.Equal(t, 12.0, l.Config().Touch.Radius)
}
