// Package config loads server settings from an optional YAML file and
// PAGE_EDITOR_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendRedis     = "redis"
)

type Config struct {
	Addr      string          `yaml:"addr"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	History   HistoryConfig   `yaml:"history"`
	Log       LogConfig       `yaml:"log"`
}

// StoreConfig selects the durable page store. FlushInterval > 0 puts a
// write-behind cache in front of it.
type StoreConfig struct {
	Backend       string          `yaml:"backend"`
	FlushInterval time.Duration   `yaml:"flush_interval"`
	Firestore     FirestoreConfig `yaml:"firestore"`
	Postgres      PostgresConfig  `yaml:"postgres"`
}

type FirestoreConfig struct {
	Project    string `yaml:"project"`
	Collection string `yaml:"collection"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// RateLimitConfig bounds client messages per identifier. Backend is memory or
// redis.
type RateLimitConfig struct {
	Backend   string        `yaml:"backend"`
	Window    time.Duration `yaml:"window"`
	Max       int           `yaml:"max"`
	RedisAddr string        `yaml:"redis_addr"`
}

type HistoryConfig struct {
	MaxDepth       int           `yaml:"max_depth"`
	CoalesceWindow time.Duration `yaml:"coalesce_window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Addr: ":8080",
		Store: StoreConfig{
			Backend:       BackendMemory,
			FlushInterval: 2 * time.Second,
			Firestore:     FirestoreConfig{Collection: "pages"},
			Postgres:      PostgresConfig{MaxConns: 10},
		},
		RateLimit: RateLimitConfig{
			Backend: BackendMemory,
			Window:  time.Minute,
			Max:     100,
		},
		History: HistoryConfig{
			MaxDepth:       200,
			CoalesceWindow: time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overrides fields from prefix_* variables, e.g. PAGE_EDITOR_ADDR.
// Malformed numbers and durations are reported rather than ignored.
func (c *Config) LoadFromEnv(prefix string) error {
	strs := map[string]*string{
		"_ADDR":                 &c.Addr,
		"_STORE_BACKEND":        &c.Store.Backend,
		"_FIRESTORE_PROJECT":    &c.Store.Firestore.Project,
		"_FIRESTORE_COLLECTION": &c.Store.Firestore.Collection,
		"_POSTGRES_DSN":         &c.Store.Postgres.DSN,
		"_RATELIMIT_BACKEND":    &c.RateLimit.Backend,
		"_REDIS_ADDR":           &c.RateLimit.RedisAddr,
		"_LOG_LEVEL":            &c.Log.Level,
		"_LOG_FORMAT":           &c.Log.Format,
	}
	for suffix, dst := range strs {
		if v := os.Getenv(prefix + suffix); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"_POSTGRES_MAX_CONNS": &c.Store.Postgres.MaxConns,
		"_RATELIMIT_MAX":      &c.RateLimit.Max,
		"_HISTORY_MAX_DEPTH":  &c.History.MaxDepth,
	}
	for suffix, dst := range ints {
		v := os.Getenv(prefix + suffix)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", prefix, suffix, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"_FLUSH_INTERVAL":          &c.Store.FlushInterval,
		"_RATELIMIT_WINDOW":        &c.RateLimit.Window,
		"_HISTORY_COALESCE_WINDOW": &c.History.CoalesceWindow,
	}
	for suffix, dst := range durations {
		v := os.Getenv(prefix + suffix)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", prefix, suffix, err)
		}
		*dst = d
	}
	return nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.Store.Firestore.Project == "" {
			return fmt.Errorf("store.firestore.project is required for the firestore backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("rate_limit.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate_limit.window and rate_limit.max must be > 0")
	}
	if c.History.MaxDepth < 0 {
		return fmt.Errorf("history.max_depth must be >= 0")
	}
	return nil
}
