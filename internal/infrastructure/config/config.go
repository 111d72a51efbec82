package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

var (
	ErrInvalidPageURL       = errors.New("page url must be an absolute http(s) URL")
	ErrInvalidArchiveOrigin = errors.New("archive origin must be an absolute http(s) URL")
	ErrUnsupportedFormat    = errors.New("unsupported config file format")
	ErrInvalidValue         = errors.New("invalid config value")
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server" json:"server"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	Replay      ReplayConfig      `yaml:"replay" toml:"replay" json:"replay"`
	Fetch       FetchConfig       `yaml:"fetch" toml:"fetch" json:"fetch"`
	Sandbox     SandboxConfig     `yaml:"sandbox" toml:"sandbox" json:"sandbox"`
	Logging     LogConfig         `yaml:"logging" toml:"logging" json:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" toml:"diagnostics" json:"diagnostics"`
}

// ServerConfig holds patch service configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" default:"8000" yaml:"port" toml:"port" json:"port"`
	Host         string   `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host" json:"host"`
	AllowOrigins []string `envconfig:"CORS_ORIGINS" default:"*" yaml:"allow_origins" toml:"allow_origins" json:"allow_origins"`
	MaxBodyBytes int64    `envconfig:"MAX_BODY_BYTES" default:"33554432" yaml:"max_body_bytes" toml:"max_body_bytes" json:"max_body_bytes"`
}

// RateLimitConfig holds per-client rate limiting for the patch service.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst" json:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled" json:"enabled"`
}

// ReplayConfig identifies the page and the archive it is replayed from.
// The archive fields seed the __webrecorder global when the page does not
// carry one.
type ReplayConfig struct {
	PageURL       string `envconfig:"REPLAY_PAGE_URL" yaml:"page_url" toml:"page_url" json:"page_url"`
	ArchiveOrigin string `envconfig:"REPLAY_ARCHIVE_ORIGIN" yaml:"archive_origin" toml:"archive_origin" json:"archive_origin"`
	ServerBase    string `envconfig:"REPLAY_SERVER_BASE" yaml:"server_base" toml:"server_base" json:"server_base"`
	RunScripts    bool   `envconfig:"REPLAY_RUN_SCRIPTS" default:"false" yaml:"run_scripts" toml:"run_scripts" json:"run_scripts"`
}

// FetchConfig holds HTTP client configuration.
type FetchConfig struct {
	Timeout      Duration `envconfig:"FETCH_TIMEOUT" default:"30s" yaml:"timeout" toml:"timeout" json:"timeout"`
	MaxRetries   int      `envconfig:"FETCH_MAX_RETRIES" default:"3" yaml:"max_retries" toml:"max_retries" json:"max_retries"`
	RetryWaitMin Duration `envconfig:"FETCH_RETRY_WAIT_MIN" default:"1s" yaml:"retry_wait_min" toml:"retry_wait_min" json:"retry_wait_min"`
	RetryWaitMax Duration `envconfig:"FETCH_RETRY_WAIT_MAX" default:"30s" yaml:"retry_wait_max" toml:"retry_wait_max" json:"retry_wait_max"`
	RateLimit    float64  `envconfig:"FETCH_RATE_LIMIT" default:"0" yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	UserAgent    string   `envconfig:"FETCH_USER_AGENT" default:"replaypatch/1.0" yaml:"user_agent" toml:"user_agent" json:"user_agent"`
}

// SandboxConfig holds page runtime configuration.
type SandboxConfig struct {
	Timeout   Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s" yaml:"timeout" toml:"timeout" json:"timeout"`
	PoolSize  int      `envconfig:"SANDBOX_POOL_SIZE" default:"4" yaml:"pool_size" toml:"pool_size" json:"pool_size"`
	MaxTimers int      `envconfig:"SANDBOX_MAX_TIMERS" default:"1000" yaml:"max_timers" toml:"max_timers" json:"max_timers"`
	Console   bool     `envconfig:"SANDBOX_CONSOLE" default:"true" yaml:"console" toml:"console" json:"console"`
	Network   bool     `envconfig:"SANDBOX_NETWORK" default:"true" yaml:"network" toml:"network" json:"network"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level" json:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development" json:"development"`
}

// DiagnosticsConfig controls the rewrite report.
type DiagnosticsConfig struct {
	Enabled    bool   `envconfig:"REPLAY_DIAGNOSTICS" default:"false" yaml:"enabled" toml:"enabled" json:"enabled"`
	ReportPath string `envconfig:"REPLAY_REPORT" yaml:"report_path" toml:"report_path" json:"report_path"`
}

// Duration accepts Go duration strings ("1.5s") in env vars and files.
type Duration time.Duration

// Std returns the standard library duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidValue, text)
	}
	*d = Duration(v)
	return nil
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads the environment configuration and overlays the file at
// path. Keys present in the file win. The format follows the extension:
// .yaml/.yml, .toml or .json.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Decode(filepath.Ext(path), data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays data in the format named by ext onto cfg
func Decode(ext string, data []byte, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".json":
		return sonic.Unmarshal(data, cfg)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// Addr returns the service listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks values the loaders cannot type-check.
func (c *Config) Validate() error {
	if c.Replay.PageURL != "" && !isWebURL(c.Replay.PageURL) {
		return fmt.Errorf("%w: %q", ErrInvalidPageURL, c.Replay.PageURL)
	}
	if c.Replay.ArchiveOrigin != "" && !isWebURL(c.Replay.ArchiveOrigin) {
		return fmt.Errorf("%w: %q", ErrInvalidArchiveOrigin, c.Replay.ArchiveOrigin)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("%w: fetch.max_retries %d", ErrInvalidValue, c.Fetch.MaxRetries)
	}
	if c.Fetch.RateLimit < 0 {
		return fmt.Errorf("%w: fetch.rate_limit %v", ErrInvalidValue, c.Fetch.RateLimit)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("%w: rate_limit %d/%d", ErrInvalidValue, c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if c.Sandbox.PoolSize <= 0 {
		return fmt.Errorf("%w: sandbox.pool_size %d", ErrInvalidValue, c.Sandbox.PoolSize)
	}
	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("%w: sandbox.timeout %s", ErrInvalidValue, c.Sandbox.Timeout.Std())
	}
	return nil
}

// Warnings lists settings that pass Validate but degrade rewriting
func (c *Config) Warnings() []string {
	var out []string
	if c.Replay.ServerBase == "" {
		out = append(out, "replay.server_base is empty: rewritten URLs stay absolute and "+
			"same-origin scheme-relative URLs only settle on a second pass")
	}
	return out
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			AllowOrigins: []string{"*"},
			MaxBodyBytes: 32 << 20,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Fetch: FetchConfig{
			Timeout:      Duration(30 * time.Second),
			MaxRetries:   3,
			RetryWaitMin: Duration(time.Second),
			RetryWaitMax: Duration(30 * time.Second),
			UserAgent:    "replaypatch/1.0",
		},
		Sandbox: SandboxConfig{
			Timeout:   Duration(5 * time.Second),
			PoolSize:  4,
			MaxTimers: 1000,
			Console:   true,
			Network:   true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
