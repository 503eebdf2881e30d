// Package config loads service settings from a YAML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/skjftp/fpl-auction-sub001/go/internal/archive"
	"github.com/skjftp/fpl-auction-sub001/go/internal/auction"
	"github.com/skjftp/fpl-auction-sub001/go/internal/auth"
	"github.com/skjftp/fpl-auction-sub001/go/internal/bidtimer"
	"github.com/skjftp/fpl-auction-sub001/go/internal/dbconfig"
	"github.com/skjftp/fpl-auction-sub001/go/internal/gateway"
	"github.com/skjftp/fpl-auction-sub001/go/internal/lock"
	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
	"github.com/skjftp/fpl-auction-sub001/go/internal/outbox"
	"github.com/skjftp/fpl-auction-sub001/go/internal/seed"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Env         string   `yaml:"env" env:"APP_ENV"`
	LogLevel    string   `yaml:"log_level" env:"LOG_LEVEL"`
	HTTPAddr    string   `yaml:"http_addr" env:"HTTP_ADDR"`
	Store       string   `yaml:"store" env:"STORE_DRIVER"`
	Budget      int      `yaml:"budget" env:"TEAM_BUDGET"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	// TimerWorkers sizes the pool that runs expiry callbacks.
	TimerWorkers int `yaml:"timer_workers" env:"BID_TIMER_WORKERS"`

	Limits   models.Limits          `yaml:"limits"`
	Timers   bidtimer.Durations     `yaml:"timers"`
	Auction  auction.Config         `yaml:"auction"`
	Auth     auth.Config            `yaml:"auth"`
	Lock     LockConfig             `yaml:"lock"`
	NATS     outbox.JetStreamConfig `yaml:"nats"`
	Relay    outbox.RelayConfig     `yaml:"relay"`
	Listener outbox.ListenerConfig  `yaml:"listener"`
	Archive  archive.Config         `yaml:"archive"`
	Gateway  gateway.Config         `yaml:"gateway"`
	Seed     seed.Config            `yaml:"seed"`

	// Database comes from DB_* variables only.
	Database dbconfig.Config `yaml:"-"`
}

type LockConfig struct {
	Driver  string           `yaml:"driver" env:"LOCK_DRIVER"`
	Timeout time.Duration    `yaml:"timeout" env:"LOCK_TIMEOUT"`
	Redis   lock.RedisConfig `yaml:"redis"`
}

// Default returns a single-process development setup
func Default() Config {
	nats := outbox.DefaultJetStreamConfig()
	nats.URL = ""
	return Config{
		Env:          "development",
		LogLevel:     "debug",
		HTTPAddr:     ":8080",
		Store:        StoreMemory,
		Budget:       models.DefaultBudget,
		CORSOrigins:  []string{"*"},
		TimerWorkers: 4,
		Limits:       models.DefaultLimits(),
		Timers:       bidtimer.DefaultDurations(),
		Auction:      auction.DefaultConfig(),
		Auth:         auth.Config{TTL: 24 * time.Hour},
		Lock:         LockConfig{Driver: LockLocal, Timeout: 2 * time.Second},
		NATS:         nats,
		Relay:        outbox.DefaultRelayConfig(),
		Listener:     outbox.DefaultListenerConfig(),
		Gateway:      gateway.DefaultConfig(),
		Seed:         seed.DefaultConfig(),
	}
}

// Load applies the YAML file at path over the defaults, then the
// environment over both. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("store must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}
	switch c.Lock.Driver {
	case LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("lock.driver must be %q or %q, got %q", LockLocal, LockRedis, c.Lock.Driver))
	}
	if c.Lock.Driver == LockRedis && c.Lock.Redis.Addr == "" {
		errs = append(errs, errors.New("lock.redis.addr is required for the redis lock"))
	}
	if c.Timers.Bidding <= 0 || c.Timers.Selling1 <= 0 || c.Timers.Selling2 <= 0 {
		errs = append(errs, errors.New("timers must be positive"))
	}
	if c.Budget <= 0 {
		errs = append(errs, errors.New("budget must be positive"))
	}
	if c.Budget%models.BidIncrement != 0 {
		errs = append(errs, fmt.Errorf("budget must be a multiple of %d", models.BidIncrement))
	}
	if c.Limits.MaxPlayers <= 0 || c.Limits.MaxClubs < 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	for _, p := range models.Positions {
		if _, ok := c.Limits.Positions[p]; !ok {
			errs = append(errs, fmt.Errorf("limits.positions is missing %s", p))
		}
	}
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret (JWT_SECRET) is required"))
	}
	if c.Gateway.PingInterval <= 0 || c.Gateway.PingInterval >= c.Gateway.ReadTimeout {
		errs = append(errs, errors.New("gateway.ping_interval must be positive and shorter than gateway.read_timeout"))
	}
	if c.Gateway.SendBuffer <= 0 {
		errs = append(errs, errors.New("gateway.send_buffer must be positive"))
	}
	if c.Seed.FetchFPL && c.Seed.FPLBaseURL == "" {
		errs = append(errs, errors.New("seed.fpl_base_url is required to fetch FPL data"))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		errs = append(errs, errors.New("archive.bucket is required when the archive is enabled"))
	}
	return errors.Join(errs...)
}

// Level is the zerolog level for LogLevel, defaulting to info
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Development reports whether console logging should be used
func (c *Config) Development() bool {
	return c.Env == "" || c.Env == "development"
}
