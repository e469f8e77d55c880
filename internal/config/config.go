// Package config loads addrkv process configuration from the environment and
// command-line flags. Environment values act as defaults; flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache engine drivers.
const (
	CacheMemory = "memory"
	CacheBolt   = "bbolt"
	CacheDaemon = "daemon"
)

// Durable store drivers.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bbolt"
)

// Config holds the runtime configuration shared by the addrkv commands.
type Config struct {
	HTTPAddr   string `env:"ADDRKV_HTTP_ADDR" envDefault:":8080"`
	HealthAddr string `env:"ADDRKV_HEALTH_ADDR" envDefault:":8081"`

	CacheDriver string        `env:"ADDRKV_CACHE_DRIVER" envDefault:"memory"`
	CachePath   string        `env:"ADDRKV_CACHE_PATH" envDefault:"data/cache.bbolt"`
	CacheSocket string        `env:"ADDRKV_CACHE_SOCK"`
	CacheTTL    time.Duration `env:"ADDRKV_CACHE_TTL" envDefault:"10m"`
	// Repopulate writes store hits back into the cache on a read fallback.
	Repopulate bool `env:"ADDRKV_CACHE_REPOPULATE" envDefault:"false"`

	StoreDriver string `env:"ADDRKV_STORE_DRIVER" envDefault:"sqlite"`
	StorePath   string `env:"ADDRKV_STORE_PATH" envDefault:"data/addrkv.db"`

	FilterCapacity uint `env:"ADDRKV_FILTER_CAPACITY" envDefault:"1000000"`

	BodyLimit int64 `env:"ADDRKV_BODY_LIMIT" envDefault:"4096"`

	// OTelEndpoint is the OTLP/HTTP collector URL; empty disables tracing.
	OTelEndpoint string `env:"ADDRKV_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"ADDRKV_OTEL_ENABLED" envDefault:"true"`
}

// Parse loads environment defaults into a Config and then applies flags from args.
func Parse(fs *flag.FlagSet, args []string) (Config, error) {
	if fs == nil {
		return Config{}, errors.New("flag parser is required")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.HealthAddr, "health", cfg.HealthAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.CacheDriver, "cache", cfg.CacheDriver, "cache driver: memory, bbolt or daemon")
	fs.StringVar(&cfg.CachePath, "cache-path", cfg.CachePath, "bbolt cache file")
	fs.StringVar(&cfg.CacheSocket, "cache-sock", cfg.CacheSocket, "cache daemon unix socket")
	fs.DurationVar(&cfg.CacheTTL, "ttl", cfg.CacheTTL, "default cache entry TTL")
	fs.BoolVar(&cfg.Repopulate, "repopulate", cfg.Repopulate, "write store hits back into the cache")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver: sqlite or bbolt")
	fs.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "durable store file")
	fs.UintVar(&cfg.FilterCapacity, "filter-capacity", cfg.FilterCapacity, "cuckoo filter capacity")
	fs.Int64Var(&cfg.BodyLimit, "body-limit", cfg.BodyLimit, "maximum set_data body size in bytes")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace collector URL")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.CacheDriver = strings.ToLower(strings.TrimSpace(cfg.CacheDriver))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and numeric bounds.
func (c Config) Validate() error {
	switch c.CacheDriver {
	case CacheMemory, CacheBolt, CacheDaemon:
	default:
		return fmt.Errorf("unknown cache driver %q", c.CacheDriver)
	}
	switch c.StoreDriver {
	case StoreSQLite, StoreBolt:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if strings.TrimSpace(c.StorePath) == "" {
		return errors.New("store path is required")
	}
	if c.FilterCapacity == 0 {
		return errors.New("filter capacity must be greater than zero")
	}
	if c.CacheTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	if c.BodyLimit <= 0 {
		return errors.New("body limit must be greater than zero")
	}
	return nil
}

// TracingEndpoint returns the collector URL, or "" when tracing is off.
func (c Config) TracingEndpoint() string {
	if !c.OTelEnabled {
		return ""
	}
	return strings.TrimSpace(c.OTelEndpoint)
}

// SocketPath returns the cache daemon socket, defaulting to
// ~/.cache/addrkv/cache.sock.
func (c Config) SocketPath() string {
	if c.CacheSocket != "" {
		return c.CacheSocket
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".cache", "addrkv", "cache.sock")
}
