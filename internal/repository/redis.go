package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisSink appends decision records to a capped Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to Redis and verifies the connection.
func NewRedisSink(cfg domain.AuditConfig) (*RedisSink, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	stream := cfg.RedisStream
	if stream == "" {
		stream = "fraudscore:decisions"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSink{client: client, stream: stream, maxLen: cfg.RedisMaxLength}, nil
}

// Append adds rec to the stream. Old entries are trimmed approximately
// once the stream exceeds the configured length.
func (s *RedisSink) Append(ctx context.Context, rec *domain.DecisionRecord) error {
	values, err := streamValues(rec)
	if err != nil {
		return err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: values,
	}).Err()
}

// Ping checks Redis connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// streamValues flattens rec into stream fields. The full record is kept
// as JSON alongside the fields consumers usually filter on.
func streamValues(rec *domain.DecisionRecord) (map[string]any, error) {
	if rec == nil || rec.ID == "" {
		return nil, fmt.Errorf("%w: record ID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	return map[string]any{
		"id":                rec.ID,
		"request_id":        rec.RequestID,
		"created_at":        rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"decision":          string(rec.Decision),
		"fraud_probability": strconv.FormatFloat(rec.FraudProbability, 'f', -1, 64),
		"record":            string(payload),
	}, nil
}
