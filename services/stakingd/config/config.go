package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

// Environment variables that override secrets and deployment settings.
const (
	EnvJWTSecret   = "STAKINGD_JWT_SECRET"
	EnvDatabaseURL = "STAKINGD_DATABASE_URL"
	EnvEnvironment = "STAKINGD_ENV"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for stakingd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	Database      string          `yaml:"database"`
	Journal       string          `yaml:"journal"`
	Environment   string          `yaml:"env"`
	Logging       LoggingConfig   `yaml:"logging"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Keeper        KeeperConfig    `yaml:"keeper"`
	Limits        LimitsConfig    `yaml:"limits"`
	Pauses        []string        `yaml:"pauses"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	// Authorities restricts pool creation to the listed participants. Empty
	// allows anyone holding a valid token.
	Authorities []string `yaml:"authorities"`
}

// LoggingConfig selects the log level and an optional rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AuthConfig configures bearer JWT validation.
type AuthConfig struct {
	JWTSecret  string   `yaml:"jwt_secret"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	ScopeClaim string   `yaml:"scope_claim"`
	ClockSkew  Duration `yaml:"clock_skew"`
}

// RateLimitConfig throttles mutating requests per caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// KeeperConfig tunes the background settlement loop.
type KeeperConfig struct {
	Disabled    bool     `yaml:"disabled"`
	Interval    Duration `yaml:"interval"`
	MinInterval Duration `yaml:"min_interval"`
	Audit       bool     `yaml:"audit"`
}

// LimitsConfig tightens the engine bounds. Zero fields keep the module
// defaults.
type LimitsConfig struct {
	MinStakeAmount  uint64   `yaml:"min_stake_amount"`
	MaxStakeAmount  uint64   `yaml:"max_stake_amount"`
	MinRewardRate   uint64   `yaml:"min_reward_rate"`
	MaxRewardRate   uint64   `yaml:"max_reward_rate"`
	MinLockDuration Duration `yaml:"min_lock_duration"`
	MaxLockDuration Duration `yaml:"max_lock_duration"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Option mutates how Load resolves the configuration.
type Option func(*loadOptions)

type loadOptions struct {
	lookupEnv func(string) (string, bool)
}

// WithLookupEnv replaces os.LookupEnv when resolving overrides.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loadOptions) {
		if fn != nil {
			o.lookupEnv = fn
		}
	}
}

// Load reads configuration from the supplied path.
func Load(path string, opts ...Option) (Config, error) {
	options := loadOptions{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		opt(&options)
	}
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg, options.lookupEnv)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if value, ok := lookup(EnvJWTSecret); ok && strings.TrimSpace(value) != "" {
		cfg.Auth.JWTSecret = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvDatabaseURL); ok && strings.TrimSpace(value) != "" {
		cfg.Database = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvEnvironment); ok && strings.TrimSpace(value) != "" {
		cfg.Environment = strings.TrimSpace(value)
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.Database == "" {
		cfg.Database = "/var/data/stakingd.sqlite"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 120
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Keeper.Interval.Duration == 0 {
		cfg.Keeper.Interval.Duration = time.Minute
	}
	if cfg.Keeper.MinInterval.Duration == 0 {
		cfg.Keeper.MinInterval.Duration = time.Hour
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret must be configured (or set %s)", EnvJWTSecret)
	}
	if len(cfg.Auth.JWTSecret) < 32 && !strings.EqualFold(cfg.Environment, "dev") {
		return errors.New("auth.jwt_secret must be at least 32 bytes outside dev")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if cfg.Keeper.Interval.Duration < time.Second {
		return errors.New("keeper.interval must be at least 1s")
	}
	if cfg.Keeper.MinInterval.Duration < 0 {
		return errors.New("keeper.min_interval must not be negative")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0, 1]")
	}
	if _, err := cfg.EngineLimits(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if _, err := cfg.AuthorityAddresses(); err != nil {
		return err
	}
	return nil
}

// EngineLimits merges the configured bounds over staking.DefaultLimits and
// validates the result.
func (c Config) EngineLimits() (staking.Limits, error) {
	limits := staking.DefaultLimits()
	if c.Limits.MinStakeAmount != 0 {
		limits.MinStakeAmount = c.Limits.MinStakeAmount
	}
	if c.Limits.MaxStakeAmount != 0 {
		limits.MaxStakeAmount = c.Limits.MaxStakeAmount
	}
	if c.Limits.MinRewardRate != 0 {
		limits.MinRewardRate = c.Limits.MinRewardRate
	}
	if c.Limits.MaxRewardRate != 0 {
		limits.MaxRewardRate = c.Limits.MaxRewardRate
	}
	if c.Limits.MinLockDuration.Duration != 0 {
		limits.MinLockDuration = int64(c.Limits.MinLockDuration.Seconds())
	}
	if c.Limits.MaxLockDuration.Duration != 0 {
		limits.MaxLockDuration = int64(c.Limits.MaxLockDuration.Seconds())
	}
	if err := limits.Validate(); err != nil {
		return staking.Limits{}, err
	}
	return limits, nil
}

// AuthorityAddresses decodes the pool-creation allowlist.
func (c Config) AuthorityAddresses() ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(c.Authorities))
	for _, raw := range c.Authorities {
		addr, err := crypto.DecodeAddressWithPrefix(strings.TrimSpace(raw), crypto.ParticipantPrefix)
		if err != nil {
			return nil, fmt.Errorf("authorities: %q: %w", raw, err)
		}
		out = append(out, addr)
	}
	return out, nil
}
