// Package config loads the configuration of the notifications binaries from
// a YAML file with environment overrides.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/notification-window/pkg/client"
	"github.com/Sternrassler/notification-window/pkg/loader"
	"github.com/Sternrassler/notification-window/pkg/logging"
	"github.com/Sternrassler/notification-window/pkg/notification"
	"github.com/Sternrassler/notification-window/pkg/pagination"
	"github.com/Sternrassler/notification-window/pkg/viewport"
	"github.com/redis/go-redis/v9"
	yaml "go.yaml.in/yaml/v3"
)

// Environment variables that override file values.
const (
	EnvAddr      = "NOTIFY_ADDR"
	EnvRedisURL  = "REDIS_URL"
	EnvLogLevel  = "LOG_LEVEL"
	EnvLogPretty = "LOG_PRETTY"
	EnvBaseURL   = "NOTIFY_BASE_URL"
	EnvUserAgent = "NOTIFY_USER_AGENT"
)

type Config struct {
	// Addr is the listen address of the notifications API server.
	Addr string `yaml:"addr"`

	// RedisURL is a redis:// URL or a bare host:port. Empty disables Redis.
	RedisURL string `yaml:"redis_url"`

	Logging    LoggingConfig    `yaml:"logging"`
	Backend    BackendConfig    `yaml:"backend"`
	Handler    HandlerConfig    `yaml:"handler"`
	Client     ClientConfig     `yaml:"client"`
	Loader     LoaderConfig     `yaml:"loader"`
	Viewport   ViewportConfig   `yaml:"viewport"`
	Pagination PaginationConfig `yaml:"pagination"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type BackendConfig struct {
	TotalItems     int    `yaml:"total_items"`
	NotViewedCount int    `yaml:"not_viewed_count"`
	Delay          string `yaml:"delay"`
}

type HandlerConfig struct {
	Expires         string `yaml:"expires"`
	ErrorLimit      int    `yaml:"error_limit"`
	ErrorLimitReset string `yaml:"error_limit_reset"`
}

type ClientConfig struct {
	BaseURL        string  `yaml:"base_url"`
	UserAgent      string  `yaml:"user_agent"`
	RateLimit      float64 `yaml:"rate_limit"`
	Burst          int     `yaml:"burst"`
	Timeout        string  `yaml:"timeout"`
	MaxRetries     int     `yaml:"max_retries"`
	InitialBackoff string  `yaml:"initial_backoff"`
}

type LoaderConfig struct {
	MinimumBatchSize int    `yaml:"minimum_batch_size"`
	FetchTimeout     string `yaml:"fetch_timeout"`
}

type ViewportConfig struct {
	Threshold int `yaml:"threshold"`
}

// PaginationConfig controls how loader windows map to API pages. Align is a
// pointer so an omitted value keeps the default.
type PaginationConfig struct {
	Align          *bool  `yaml:"align"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	Timeout        string `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	align := true
	return &Config{
		Addr:    ":8080",
		Logging: LoggingConfig{Level: string(logging.LevelInfo)},
		Backend: BackendConfig{
			TotalItems:     1000,
			NotViewedCount: 10,
			Delay:          "2s",
		},
		Handler: HandlerConfig{
			Expires:         "30s",
			ErrorLimit:      100,
			ErrorLimitReset: "60s",
		},
		Client: ClientConfig{
			BaseURL:   "http://localhost:8080",
			UserAgent: "notification-window/0.1.0",
			RateLimit: 10,
			Burst:     5,
			Timeout:   "30s",
		},
		Loader: LoaderConfig{MinimumBatchSize: 10},
		Viewport: ViewportConfig{
			Threshold: 1,
		},
		Pagination: PaginationConfig{
			Align:          &align,
			MaxConcurrency: 4,
			Timeout:        "15s",
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Addr = v
	}
	if v, ok := lookup(EnvRedisURL); ok {
		c.RedisURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogPretty); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogPretty, err)
		}
		c.Logging.Pretty = b
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.Client.BaseURL = v
	}
	if v, ok := lookup(EnvUserAgent); ok && v != "" {
		c.Client.UserAgent = v
	}
	return nil
}

// Validate checks ranges and that every duration parses.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Backend.TotalItems < 0 {
		errs = append(errs, fmt.Errorf("backend.total_items must be >= 0 (got %d)", c.Backend.TotalItems))
	}
	if c.Backend.NotViewedCount < 0 {
		errs = append(errs, fmt.Errorf("backend.not_viewed_count must be >= 0 (got %d)", c.Backend.NotViewedCount))
	}
	if c.Client.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("client.rate_limit must be >= 0 (got %v)", c.Client.RateLimit))
	}
	if c.Loader.MinimumBatchSize < 1 {
		errs = append(errs, fmt.Errorf("loader.minimum_batch_size must be >= 1 (got %d)", c.Loader.MinimumBatchSize))
	}
	if c.Viewport.Threshold < 0 {
		errs = append(errs, fmt.Errorf("viewport.threshold must be >= 0 (got %d)", c.Viewport.Threshold))
	}
	for _, f := range []struct{ path, raw string }{
		{"backend.delay", c.Backend.Delay},
		{"handler.expires", c.Handler.Expires},
		{"handler.error_limit_reset", c.Handler.ErrorLimitReset},
		{"client.timeout", c.Client.Timeout},
		{"client.initial_backoff", c.Client.InitialBackoff},
		{"loader.fetch_timeout", c.Loader.FetchTimeout},
		{"pagination.timeout", c.Pagination.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseDurationField parses raw as a non-negative duration. Empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// duration is used after Validate, where every field is known to parse.
func duration(raw string) time.Duration {
	d, _ := ParseDurationField("", raw)
	return d
}

// LoggingSetup returns the logger configuration for logging.Setup.
func (c *Config) LoggingSetup() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// RedisOptions parses RedisURL. It returns nil when Redis is disabled.
func (c *Config) RedisOptions() (*redis.Options, error) {
	raw := strings.TrimSpace(c.RedisURL)
	if raw == "" {
		return nil, nil
	}
	if strings.Contains(raw, "://") {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("redis_url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: raw}, nil
}

func (c *Config) BackendConfig() notification.BackendConfig {
	cfg := notification.DefaultBackendConfig()
	cfg.TotalItems = c.Backend.TotalItems
	cfg.NotViewedCount = c.Backend.NotViewedCount
	cfg.Delay = duration(c.Backend.Delay)
	return cfg
}

func (c *Config) HandlerConfig() notification.HandlerConfig {
	cfg := notification.DefaultHandlerConfig()
	if d := duration(c.Handler.Expires); d > 0 {
		cfg.Expires = d
	}
	if c.Handler.ErrorLimit > 0 {
		cfg.ErrorLimit = c.Handler.ErrorLimit
	}
	if d := duration(c.Handler.ErrorLimitReset); d > 0 {
		cfg.ErrorLimitReset = d
	}
	return cfg
}

// ClientConfig returns the API client configuration. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.Client.BaseURL, c.Client.UserAgent)
	cfg.Redis = rdb
	cfg.RateLimit = c.Client.RateLimit
	if c.Client.Burst > 0 {
		cfg.Burst = c.Client.Burst
	}
	if d := duration(c.Client.Timeout); d > 0 {
		cfg.Timeout = d
	}
	cfg.MaxRetries = c.Client.MaxRetries
	cfg.InitialBackoff = duration(c.Client.InitialBackoff)
	return cfg
}

func (c *Config) LoaderConfig() loader.Config {
	cfg := loader.DefaultConfig()
	cfg.MinimumBatchSize = c.Loader.MinimumBatchSize
	cfg.FetchTimeout = duration(c.Loader.FetchTimeout)
	return cfg
}

func (c *Config) ViewportConfig() viewport.Config {
	cfg := viewport.DefaultConfig()
	cfg.Threshold = c.Viewport.Threshold
	cfg.MinimumBatchSize = c.Loader.MinimumBatchSize
	return cfg
}

func (c *Config) PaginationConfig() pagination.Config {
	cfg := pagination.DefaultConfig()
	if c.Pagination.Align != nil {
		cfg.Align = *c.Pagination.Align
	}
	if c.Pagination.MaxConcurrency > 0 {
		cfg.MaxConcurrency = c.Pagination.MaxConcurrency
	}
	cfg.Timeout = duration(c.Pagination.Timeout)
	return cfg
}
