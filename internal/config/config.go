// Package config defines the settlement engine configuration and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"setup-outcome-lab/internal/outcome"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by OUTCOMES_* environment variables.
type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Postgres   PostgresConfig   `toml:"postgres"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Redis      RedisConfig      `toml:"redis"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	Batch      BatchConfig      `toml:"batch"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// Storage backends for snapshots, verdicts and audit runs.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds the snapshot/verdict database connection.
type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

// ClickHouseConfig holds the candle database connection. An empty DSN keeps
// candles in memory. Database, when set, overrides the one in the DSN.
type ClickHouseConfig struct {
	DSN      string `toml:"dsn"`
	Database string `toml:"database"`
}

// SQLiteConfig holds the embedded verdict database path.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds the advisory lock backend.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// EvaluationConfig tunes outcome evaluation.
type EvaluationConfig struct {
	WindowBars        int     `toml:"window_bars"`
	EngineVersion     string  `toml:"engine_version"`
	SameBarPolicy     string  `toml:"same_bar_policy"`
	DojiPolicy        string  `toml:"doji_policy"`
	GuardrailMinRatio float64 `toml:"guardrail_min_ratio"`
	GuardrailMaxRatio float64 `toml:"guardrail_max_ratio"`
}

// BatchConfig holds the default batch parameters and the scheduler cadence.
type BatchConfig struct {
	DaysBack int      `toml:"days_back"`
	Limit    int      `toml:"limit"`
	PageSize int      `toml:"page_size"`
	Interval duration `toml:"interval"`
	LockTTL  duration `toml:"lock_ttl"`
}

// BreakerConfig guards the candle store.
type BreakerConfig struct {
	MaxFailures int      `toml:"max_failures"`
	OpenTimeout duration `toml:"open_timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{Backend: BackendMemory},
		SQLite: SQLiteConfig{Path: "data/outcomes.db"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Evaluation: EvaluationConfig{
			WindowBars:        outcome.DefaultWindowBars,
			EngineVersion:     outcome.DefaultEngineVersion,
			SameBarPolicy:     outcome.PolicyOpenClose,
			DojiPolicy:        string(outcome.DojiAmbiguous),
			GuardrailMinRatio: outcome.DefaultMinRatio,
			GuardrailMaxRatio: outcome.DefaultMaxRatio,
		},
		Batch: BatchConfig{
			DaysBack: 30,
			Limit:    200,
			PageSize: 50,
			Interval: duration{time.Hour},
			LockTTL:  duration{10 * time.Minute},
		},
		Breaker: BreakerConfig{
			MaxFailures: 3,
			OpenTimeout: duration{60 * time.Second},
		},
		Server: ServerConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, "postgres: dsn is required for storage backend postgres")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			errs = append(errs, "sqlite: path is required for storage backend sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, postgres, sqlite)", c.Storage.Backend))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	ev := c.Evaluation
	if ev.WindowBars < 1 {
		errs = append(errs, "evaluation: window_bars must be >= 1")
	}
	if _, err := outcome.NewSameBarResolver(ev.SameBarPolicy, outcome.DojiAmbiguous); err != nil {
		errs = append(errs, fmt.Sprintf("evaluation: %v", err))
	}
	switch outcome.DojiPolicy(ev.DojiPolicy) {
	case outcome.DojiAmbiguous, outcome.DojiStopLoss:
	default:
		errs = append(errs, fmt.Sprintf("evaluation: unknown doji_policy %q (valid: ambiguous, stop_loss)", ev.DojiPolicy))
	}
	if ev.GuardrailMinRatio <= 0 || ev.GuardrailMaxRatio <= ev.GuardrailMinRatio {
		errs = append(errs, fmt.Sprintf("evaluation: guardrail ratios must satisfy 0 < min < max, got %.2f/%.2f",
			ev.GuardrailMinRatio, ev.GuardrailMaxRatio))
	}

	if c.Batch.DaysBack < 1 {
		errs = append(errs, "batch: days_back must be >= 1")
	}
	if c.Batch.Limit < 1 || c.Batch.Limit > 500 {
		errs = append(errs, fmt.Sprintf("batch: limit must be 1-500, got %d", c.Batch.Limit))
	}
	if c.Batch.PageSize < 1 {
		errs = append(errs, "batch: page_size must be >= 1")
	}
	if c.Batch.Interval.Duration < 0 {
		errs = append(errs, "batch: interval must not be negative")
	}
	if c.Batch.LockTTL.Duration <= 0 {
		errs = append(errs, "batch: lock_ttl must be positive")
	}

	if c.Breaker.MaxFailures < 1 {
		errs = append(errs, "breaker: max_failures must be >= 1")
	}
	if c.Breaker.OpenTimeout.Duration <= 0 {
		errs = append(errs, "breaker: open_timeout must be positive")
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "console" {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: json, console)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Guardrail returns the evaluation guardrail with the configured bounds.
func (c *Config) Guardrail() outcome.Guardrail {
	return outcome.Guardrail{
		MinRatio:      c.Evaluation.GuardrailMinRatio,
		MaxRatio:      c.Evaluation.GuardrailMaxRatio,
		EngineVersion: c.Evaluation.EngineVersion,
	}
}

// SameBarResolver builds the configured same-bar policy.
func (c *Config) SameBarResolver() (outcome.SameBarResolver, error) {
	return outcome.NewSameBarResolver(c.Evaluation.SameBarPolicy, outcome.DojiPolicy(c.Evaluation.DojiPolicy))
}
