package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (optional when path is empty) on top of
// the built-in defaults, then applies OUTCOMES_* environment overrides. A
// .env file in the working directory is loaded first if present. The result
// is not validated; callers invoke Config.Validate after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose OUTCOMES_* variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Backend, "OUTCOMES_STORAGE_BACKEND")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "OUTCOMES_POSTGRES_DSN")
	setStr(&cfg.ClickHouse.DSN, "OUTCOMES_CLICKHOUSE_DSN")
	setStr(&cfg.ClickHouse.Database, "OUTCOMES_CLICKHOUSE_DATABASE")
	setStr(&cfg.SQLite.Path, "OUTCOMES_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OUTCOMES_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "OUTCOMES_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OUTCOMES_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OUTCOMES_REDIS_DB")

	// ── Evaluation ──
	setInt(&cfg.Evaluation.WindowBars, "OUTCOMES_EVALUATION_WINDOW_BARS")
	setStr(&cfg.Evaluation.EngineVersion, "OUTCOMES_EVALUATION_ENGINE_VERSION")
	setStr(&cfg.Evaluation.SameBarPolicy, "OUTCOMES_EVALUATION_SAME_BAR_POLICY")
	setStr(&cfg.Evaluation.DojiPolicy, "OUTCOMES_EVALUATION_DOJI_POLICY")
	setFloat64(&cfg.Evaluation.GuardrailMinRatio, "OUTCOMES_EVALUATION_GUARDRAIL_MIN_RATIO")
	setFloat64(&cfg.Evaluation.GuardrailMaxRatio, "OUTCOMES_EVALUATION_GUARDRAIL_MAX_RATIO")

	// ── Batch ──
	setInt(&cfg.Batch.DaysBack, "OUTCOMES_BATCH_DAYS_BACK")
	setInt(&cfg.Batch.Limit, "OUTCOMES_BATCH_LIMIT")
	setInt(&cfg.Batch.PageSize, "OUTCOMES_BATCH_PAGE_SIZE")
	setDuration(&cfg.Batch.Interval, "OUTCOMES_BATCH_INTERVAL")
	setDuration(&cfg.Batch.LockTTL, "OUTCOMES_BATCH_LOCK_TTL")

	// ── Breaker ──
	setInt(&cfg.Breaker.MaxFailures, "OUTCOMES_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.OpenTimeout, "OUTCOMES_BREAKER_OPEN_TIMEOUT")

	// ── Server / log ──
	setStr(&cfg.Server.Addr, "OUTCOMES_SERVER_ADDR")
	setStr(&cfg.Log.Level, "OUTCOMES_LOG_LEVEL")
	setStr(&cfg.Log.Format, "OUTCOMES_LOG_FORMAT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
