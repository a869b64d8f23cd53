package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Lock     LockConfig     `koanf:"lock"`
	Security SecurityConfig `koanf:"security"`
	Stats    StatsConfig    `koanf:"stats"`
	Sweeper  SweeperConfig  `koanf:"sweeper"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// LockConfig drives the per-auction distributed lock. When Enabled is false
// the service falls back to an in-process mutex with the same contract.
type LockConfig struct {
	Enabled    bool          `koanf:"enabled"`
	WaitBudget time.Duration `koanf:"wait_budget"`
	HoldTTL    time.Duration `koanf:"hold_ttl"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

type SecurityConfig struct {
	JWTSecret          string          `koanf:"jwt_secret"`
	Issuer             string          `koanf:"issuer"`
	Audience           string          `koanf:"audience"`
	AccessTokenExpiry  time.Duration   `koanf:"access_token_expiry"`
	RefreshTokenExpiry time.Duration   `koanf:"refresh_token_expiry"`
	RateLimit          RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	BidsPerMinute     int `koanf:"bids_per_minute"`
	RequestsPerSecond int `koanf:"requests_per_second"`
}

// StatsConfig controls the periodic LiveStatsUpdated broadcast.
type StatsConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// SweeperConfig controls the background expiry loop.
type SweeperConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	Batch    int           `koanf:"batch"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 5,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Lock: LockConfig{
			Enabled:    true,
			WaitBudget: 5 * time.Second,
			HoldTTL:    10 * time.Second,
			RetryDelay: 10 * time.Millisecond,
		},
		Security: SecurityConfig{
			Issuer:             "live-auction",
			Audience:           "api",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			RateLimit: RateLimitConfig{
				BidsPerMinute:     30,
				RequestsPerSecond: 100,
			},
		},
		Stats: StatsConfig{
			Interval: 30 * time.Second,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: 5 * time.Second,
			Batch:    100,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	if path == "" {
		path = "configs/config.yaml"
	}
	_ = k.Load(file.Provider(path), yaml.Parser())

	if err := k.Load(env.Provider("AUCTION_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "AUCTION_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the service cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Lock.WaitBudget <= 0 || c.Lock.HoldTTL <= 0 {
		return fmt.Errorf("lock.wait_budget and lock.hold_ttl must be positive")
	}
	return nil
}
