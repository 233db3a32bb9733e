// Package repository provides append-only decision sinks.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// SQLSink implements domain.DecisionSink using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLSink struct {
	db     *sql.DB
	driver string
}

// New creates a decision sink based on configuration.
func New(cfg domain.AuditConfig) (domain.DecisionSink, error) {
	switch cfg.Driver {
	case domain.AuditSQLite, domain.AuditPostgres:
		return NewSQLSink(cfg)
	case domain.AuditRedis:
		return NewRedisSink(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
}

// NewSQLSink opens the database and runs migrations.
func NewSQLSink(cfg domain.AuditConfig) (*SQLSink, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case domain.AuditSQLite:
		db, err = openSQLite(cfg)
	case domain.AuditPostgres:
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	sink := &SQLSink{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := sink.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return sink, nil
}

func (s *SQLSink) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts one decision record. Rows are never updated.
func (s *SQLSink) Append(ctx context.Context, rec *domain.DecisionRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record ID is required", ErrInvalidInput)
	}

	featuresJSON, err := json.Marshal(rec.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	query := `
		INSERT INTO decision_log (
			id, request_id, created_at, amount, hour, day_of_week, month,
			distance_from_home, features, raw_score, fraud_probability,
			decision, reasoning
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, s.rebind(query),
		rec.ID, rec.RequestID, rec.CreatedAt.UTC(),
		rec.Input.Amount, rec.Input.Hour, rec.Input.DayOfWeek, rec.Input.Month,
		rec.Input.DistanceFromHome, string(featuresJSON),
		rec.RawScore, rec.FraudProbability,
		string(rec.Decision), rec.Reasoning,
	)
	return err
}

// Ping checks database connectivity.
func (s *SQLSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLSink) rebind(query string) string {
	if s.driver != domain.AuditPostgres {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
