// Package config loads and validates the coordinator's TOML configuration:
// logging, the transaction record store, and the recovery sweep.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tylooio/tyloo/internal/interpolation"
)

// Backend selects the transaction record store.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendSQLite Backend = "sqlite"
)

// String returns the string representation of Backend.
func (b Backend) String() string {
	return string(b)
}

// IsValid checks if the Backend is valid.
func (b Backend) IsValid() bool {
	switch b {
	case BackendMemory, BackendRedis, BackendSQLite:
		return true
	default:
		return false
	}
}

// Config is the root configuration document.
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`
	Repository RepositoryConfig `toml:"repository"`
	Recovery   RecoveryConfig   `toml:"recovery"`
}

// RepositoryConfig selects and parameterizes the record store.
type RepositoryConfig struct {
	Backend Backend      `toml:"backend"`
	Redis   RedisConfig  `toml:"redis"`
	SQLite  SQLiteConfig `toml:"sqlite"`
}

// RedisConfig parameterizes the redis record store.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// SQLiteConfig parameterizes the sqlite record store.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RecoveryConfig parameterizes the recovery sweep.
type RecoveryConfig struct {
	Interval        Duration `toml:"interval"`
	RecoverDuration Duration `toml:"recover_duration"`
	MaxRetryCount   int      `toml:"max_retry_count"`
}

// NewConfig loads, parses, and validates a config from a TOML file.
func NewConfig(filePath string) (*Config, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFileRead, err)
	}
	defer func() { _ = f.Close() }()
	return NewConfigFromReader(f)
}

// NewConfigFromReader parses and validates a TOML config document.
// Environment references like ${REDIS_PASSWORD} are expanded before
// parsing.
func NewConfigFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigFileRead, err)
	}
	expanded, err := interpolation.ExpandEnvVars(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	cfg := Default()
	decoder := toml.NewDecoder(strings.NewReader(expanded))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParse, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given: an
// in-memory store and the standard sweep cadence.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Format: LogFormatText,
			Level:  LogLevelInfo,
		},
		Repository: RepositoryConfig{
			Backend: BackendMemory,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "tyloo:tx:",
			},
			SQLite: SQLiteConfig{
				Path: "tyloo.db",
			},
		},
		Recovery: RecoveryConfig{
			Interval:        Duration(30 * time.Second),
			RecoverDuration: Duration(120 * time.Second),
			MaxRetryCount:   30,
		},
	}
}

// Validate checks the whole document and returns every problem at once.
func (c *Config) Validate() error {
	var errz []error

	if !c.Logging.Format.IsValid() {
		errz = append(errz, fmt.Errorf("%w: log format %q", ErrInvalidValue, c.Logging.Format))
	}
	if !c.Logging.Level.IsValid() {
		errz = append(errz, fmt.Errorf("%w: log level %q", ErrInvalidValue, c.Logging.Level))
	}

	if !c.Repository.Backend.IsValid() {
		errz = append(errz, fmt.Errorf("%w: repository backend %q", ErrInvalidValue, c.Repository.Backend))
	}
	if c.Repository.Backend == BackendRedis && c.Repository.Redis.Addr == "" {
		errz = append(errz, fmt.Errorf("%w: repository.redis.addr", ErrMissingValue))
	}
	if c.Repository.Backend == BackendSQLite && c.Repository.SQLite.Path == "" {
		errz = append(errz, fmt.Errorf("%w: repository.sqlite.path", ErrMissingValue))
	}

	if c.Recovery.Interval <= 0 {
		errz = append(errz, fmt.Errorf("%w: recovery.interval must be positive", ErrInvalidValue))
	}
	if c.Recovery.RecoverDuration <= 0 {
		errz = append(errz, fmt.Errorf("%w: recovery.recover_duration must be positive", ErrInvalidValue))
	}
	if c.Recovery.MaxRetryCount <= 0 {
		errz = append(errz, fmt.Errorf("%w: recovery.max_retry_count must be positive", ErrInvalidValue))
	}

	if len(errz) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errz...))
	}
	return nil
}
