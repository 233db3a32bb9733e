// Package domain defines the core interfaces and types for fraudscore.
package domain

import (
	"context"
	"time"
)

// DecisionSink is an append-only destination for decision records.
// Implementations never update or delete what they have written.
type DecisionSink interface {
	Append(ctx context.Context, rec *DecisionRecord) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AuditConfig holds configuration for the decision audit sink.
type AuditConfig struct {
	// Driver is the sink driver: "none", "sqlite", "postgres" or "redis"
	Driver string

	// Buffer is the recorder queue size
	Buffer int

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis specific
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisStream    string
	RedisMaxLength int64

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
