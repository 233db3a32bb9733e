// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Prefix is prepended to every environment variable name.
const Prefix = "FRAUDSCORE_"

// Load reads configuration from environment variables on top of
// domain.DefaultConfig. Values in the given .env files (default ".env")
// are applied first and never override variables already set.
func Load(envFiles ...string) (*domain.Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := domain.DefaultConfig()
	var env envReader

	// Server
	cfg.Server.Host = env.getString("HOST", cfg.Server.Host)
	cfg.Server.Port = env.getInt("PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = env.getInt("READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = env.getInt("WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	// Artifacts
	cfg.Artifacts.ModelPath = env.getString("MODEL_PATH", cfg.Artifacts.ModelPath)
	cfg.Artifacts.ScalerPath = env.getString("SCALER_PATH", cfg.Artifacts.ScalerPath)
	cfg.Artifacts.FeatureScheme = env.getString("FEATURE_SCHEME", cfg.Artifacts.FeatureScheme)

	// Engine
	cfg.Engine.Threshold = env.getFloat("THRESHOLD", cfg.Engine.Threshold)
	cfg.Engine.ScoreTimeoutMs = env.getInt("SCORE_TIMEOUT_MS", cfg.Engine.ScoreTimeoutMs)
	cfg.Engine.ScoreCacheSize = env.getInt("SCORE_CACHE_SIZE", cfg.Engine.ScoreCacheSize)

	// Prediction log
	cfg.PredictionLog.Path = env.getString("LOG_FILE", cfg.PredictionLog.Path)
	cfg.PredictionLog.Stdout = env.getBool("LOG_STDOUT", cfg.PredictionLog.Stdout)

	// Logging
	if env.getBool("DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Level = env.getString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = env.getString("LOG_FORMAT", cfg.Logging.Format)

	// Audit
	cfg.Audit.Driver = env.getString("AUDIT_DRIVER", cfg.Audit.Driver)
	cfg.Audit.Buffer = env.getInt("AUDIT_BUFFER", cfg.Audit.Buffer)
	cfg.Audit.SQLitePath = env.getString("SQLITE_PATH", cfg.Audit.SQLitePath)
	cfg.Audit.PostgresHost = env.getString("POSTGRES_HOST", cfg.Audit.PostgresHost)
	cfg.Audit.PostgresPort = env.getInt("POSTGRES_PORT", cfg.Audit.PostgresPort)
	cfg.Audit.PostgresUser = env.getString("POSTGRES_USER", cfg.Audit.PostgresUser)
	cfg.Audit.PostgresPassword = env.getString("POSTGRES_PASSWORD", cfg.Audit.PostgresPassword)
	cfg.Audit.PostgresDB = env.getString("POSTGRES_DB", cfg.Audit.PostgresDB)
	cfg.Audit.PostgresSSLMode = env.getString("POSTGRES_SSLMODE", cfg.Audit.PostgresSSLMode)
	cfg.Audit.RedisAddr = env.getString("REDIS_ADDR", cfg.Audit.RedisAddr)
	cfg.Audit.RedisPassword = env.getString("REDIS_PASSWORD", cfg.Audit.RedisPassword)
	cfg.Audit.RedisDB = env.getInt("REDIS_DB", cfg.Audit.RedisDB)
	cfg.Audit.RedisStream = env.getString("REDIS_STREAM", cfg.Audit.RedisStream)
	cfg.Audit.RedisMaxLength = int64(env.getInt("REDIS_MAXLEN", int(cfg.Audit.RedisMaxLength)))

	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func Validate(cfg *domain.Config) error {
	if cfg.Artifacts.ModelPath == "" {
		return fmt.Errorf("%sMODEL_PATH is required", Prefix)
	}

	switch cfg.Artifacts.FeatureScheme {
	case domain.SchemeDerived, domain.SchemeRaw:
	default:
		return fmt.Errorf("%sFEATURE_SCHEME must be %q or %q, got %q",
			Prefix, domain.SchemeDerived, domain.SchemeRaw, cfg.Artifacts.FeatureScheme)
	}

	t := cfg.Engine.Threshold
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%sTHRESHOLD must be between 0 and 1, got %v", Prefix, t)
	}
	if cfg.Engine.ScoreTimeoutMs < 0 {
		return fmt.Errorf("%sSCORE_TIMEOUT_MS must not be negative", Prefix)
	}
	if cfg.Engine.ScoreCacheSize < 0 {
		return fmt.Errorf("%sSCORE_CACHE_SIZE must not be negative", Prefix)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%sPORT must be between 1 and 65535, got %d", Prefix, cfg.Server.Port)
	}

	if cfg.PredictionLog.Path == "" {
		return fmt.Errorf("%sLOG_FILE is required", Prefix)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%sLOG_LEVEL must be debug, info, warn or error, got %q", Prefix, cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%sLOG_FORMAT must be json or text, got %q", Prefix, cfg.Logging.Format)
	}

	switch cfg.Audit.Driver {
	case domain.AuditNone, domain.AuditSQLite, domain.AuditPostgres, domain.AuditRedis:
	default:
		return fmt.Errorf("%sAUDIT_DRIVER must be none, sqlite, postgres or redis, got %q", Prefix, cfg.Audit.Driver)
	}
	if cfg.Audit.Driver != domain.AuditNone && cfg.Audit.Buffer <= 0 {
		return fmt.Errorf("%sAUDIT_BUFFER must be positive", Prefix)
	}

	return nil
}

// Helper functions

// envReader reads prefixed variables and collects parse errors so that a
// typo fails startup instead of silently falling back to a default.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(Prefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) getString(key, defaultValue string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid integer %q", Prefix, key, v))
		return defaultValue
	}
	return i
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid number %q", Prefix, key, v))
		return defaultValue
	}
	return f
}

func (e *envReader) getBool(key string, defaultValue bool) bool {
	v, ok := e.lookup(key)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid boolean %q", Prefix, key, v))
		return defaultValue
	}
	return b
}
