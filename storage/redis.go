package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/redis/go-redis/v9"
)

// Redis provides a Redis trace sink.
// Trace records are pushed as JSON onto a list that is capped to the most recent entries.
type Redis struct {
	Client *redis.Client

	key    string
	maxLen int64
}

const (
	defaultRedisTraceKey    = "sqlrag:traces"
	defaultRedisTraceMaxLen = 1000
)

// NewRedis creates a new Redis client connection with the provided configuration.
// It returns an initialized Redis struct and any error encountered during connection setup.
// An empty key and a non-positive maxLen fall back to defaults.
func NewRedis(ctx context.Context, addr, password string, db int, key string, maxLen int64) (Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return Redis{}, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedis(client, key, maxLen), nil
}

func newRedis(client *redis.Client, key string, maxLen int64) Redis {
	if key == "" {
		key = defaultRedisTraceKey
	}
	if maxLen <= 0 {
		maxLen = defaultRedisTraceMaxLen
	}

	return Redis{
		Client: client,
		key:    key,
		maxLen: maxLen,
	}
}

// Trace pushes the record onto the trace list and trims the list to its maximum length.
func (r Redis) Trace(ctx context.Context, record sqlrag.TraceRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	pipe := r.Client.TxPipeline()
	pipe.LPush(ctx, r.key, value)
	pipe.LTrim(ctx, r.key, 0, r.maxLen-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute pipeline: %w", err)
	}

	return nil
}

// Traces returns at most n trace records, newest first.
func (r Redis) Traces(ctx context.Context, n int) ([]sqlrag.TraceRecord, error) {
	if n <= 0 {
		return []sqlrag.TraceRecord{}, nil
	}

	values, err := r.Client.LRange(ctx, r.key, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get traces: %w", err)
	}

	result := make([]sqlrag.TraceRecord, len(values))
	for i, value := range values {
		if err := json.Unmarshal([]byte(value), &result[i]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace: %w", err)
		}
	}

	return result, nil
}

// Close closes the client.
func (r Redis) Close() error {
	return r.Client.Close()
}
