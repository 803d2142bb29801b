// Package stream publishes audit entries to a Redis stream or a Kafka topic
// for downstream consumers.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"donorhub/backend/internal/audit/domain"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "donorhub:audit"

// DefaultMaxLen caps the stream length (approximate trimming).
const DefaultMaxLen = 100000

// RedisSink appends audit entries to a Redis stream with XADD.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Dial connects to addr, verifies the connection with PING and returns a sink
// writing to stream.
func Dial(ctx context.Context, addr, stream string) (*RedisSink, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisSink(client, stream), nil
}

// NewRedisSink returns a sink writing to stream on client.
func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: DefaultMaxLen}
}

func (s *RedisSink) Write(ctx context.Context, e *domain.Entry) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: fields(e),
	}).Err()
}

// fields flattens e into the string map shared by every stream encoding.
// Empty optional fields are omitted.
func fields(e *domain.Entry) map[string]any {
	values := map[string]any{
		"id":         e.ID,
		"action":     string(e.Action),
		"outcome":    string(e.Outcome),
		"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.UserID != "" {
		values["user_id"] = e.UserID
	}
	if e.SessionID != "" {
		values["session_id"] = e.SessionID
	}
	if e.IP != "" {
		values["ip"] = e.IP
	}
	if e.UserAgent != "" {
		values["user_agent"] = e.UserAgent
	}
	if e.Error != "" {
		values["error"] = e.Error
	}
	return values
}

// Close closes the underlying client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
