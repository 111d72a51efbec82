package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout.Std())
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.True(t, cfg.Sandbox.Network)
	assert.False(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REPLAY_PAGE_URL", "https://example.com/news/")
	t.Setenv("REPLAY_ARCHIVE_ORIGIN", "https://archive.example")
	t.Setenv("REPLAY_SERVER_BASE", "https://replay.local/wb/")
	t.Setenv("REPLAY_DIAGNOSTICS", "true")
	t.Setenv("SANDBOX_TIMEOUT", "250ms")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/news/", cfg.Replay.PageURL)
	assert.Equal(t, "https://archive.example", cfg.Replay.ArchiveOrigin)
	assert.Equal(t, "https://replay.local/wb/", cfg.Replay.ServerBase)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
	assert.NotNil(t, LoadOrDefault())
}

func TestLoadFile(t *testing.T) {
	files := map[string]string{
		"replay.yaml": `
replay:
  archive_origin: https://archive.example
  server_base: https://replay.local/
sandbox:
  timeout: 2s
  pool_size: 2
`,
		"replay.toml": `
[replay]
archive_origin = "https://archive.example"
server_base = "https://replay.local/"

[sandbox]
timeout = "2s"
pool_size = 2
`,
		"replay.json": `{
  "replay": {"archive_origin": "https://archive.example", "server_base": "https://replay.local/"},
  "sandbox": {"timeout": "2s", "pool_size": 2}
}`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", "warn")
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			cfg, err := LoadFile(path)
			require.NoError(t, err)

			assert.Equal(t, "https://archive.example", cfg.Replay.ArchiveOrigin)
			assert.Equal(t, "https://replay.local/", cfg.Replay.ServerBase)
			assert.Equal(t, 2*time.Second, cfg.Sandbox.Timeout.Std())
			assert.Equal(t, 2, cfg.Sandbox.PoolSize)

			// Keys missing from the file keep their env values
			assert.Equal(t, "warn", cfg.Logging.Level)
			assert.Equal(t, 1000, cfg.Sandbox.MaxTimers)
		})
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "replay.ini")
	require.NoError(t, os.WriteFile(ini, []byte("x=1"), 0o600))
	_, err = LoadFile(ini)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sandbox:\n  timeout: forever\n"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"defaults", func(*Config) {}, nil},
		{"page url", func(c *Config) { c.Replay.PageURL = "https://example.com/" }, nil},
		{"relative page url", func(c *Config) { c.Replay.PageURL = "/index.html" }, ErrInvalidPageURL},
		{"opaque page url", func(c *Config) { c.Replay.PageURL = "about:blank" }, ErrInvalidPageURL},
		{"archive origin", func(c *Config) { c.Replay.ArchiveOrigin = "archive.example" }, ErrInvalidArchiveOrigin},
		{"negative retries", func(c *Config) { c.Fetch.MaxRetries = -1 }, ErrInvalidValue},
		{"negative rate", func(c *Config) { c.Fetch.RateLimit = -2 }, ErrInvalidValue},
		{"zero rate limit", func(c *Config) { c.RateLimit.Burst = 0 }, ErrInvalidValue},
		{"rate limit off", func(c *Config) { c.RateLimit = RateLimitConfig{} }, nil},
		{"empty pool", func(c *Config) { c.Sandbox.PoolSize = 0 }, ErrInvalidValue},
		{"no timeout", func(c *Config) { c.Sandbox.Timeout = 0 }, ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWarnings(t *testing.T) {
	cfg := Default()
	cfg.Replay.ServerBase = ""
	require.Len(t, cfg.Warnings(), 1)
	assert.Contains(t, cfg.Warnings()[0], "server_base")

	cfg.Replay.ServerBase = "https://replay.example"
	assert.Empty(t, cfg.Warnings())
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.ErrorIs(t, d.UnmarshalText([]byte("90")), ErrInvalidValue)
}
