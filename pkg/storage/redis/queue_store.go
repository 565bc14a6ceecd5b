package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"benchrun/pkg/models"
	"benchrun/pkg/storage"
)

const (
	StreamKeyPending = "benchrun:runs:pending"

	payloadField = "payload"
)

type RedisQueue struct {
	client *redis.Client
	stream string
	block  time.Duration
}

var _ storage.Queue = (*RedisQueue)(nil)

// RedisQueueConfig holds Redis connection configuration
type RedisQueueConfig struct {
	Addr         string
	Stream       string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	Block        time.Duration // how long Pop waits for a message
}

// DefaultRedisQueueConfig returns production defaults.
func DefaultRedisQueueConfig(addr string) RedisQueueConfig {
	return RedisQueueConfig{
		Addr:         addr,
		Stream:       StreamKeyPending,
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		Block:        2 * time.Second,
	}
}

// NewRedisQueue initializes a new Redis client with default config.
func NewRedisQueue(addr string) (*RedisQueue, error) {
	return NewRedisQueueWithConfig(DefaultRedisQueueConfig(addr))
}

// NewRedisQueueWithConfig initializes a new Redis client with custom config.
func NewRedisQueueWithConfig(cfg RedisQueueConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = StreamKeyPending
	}
	block := cfg.Block
	if block <= 0 {
		block = 2 * time.Second
	}
	return &RedisQueue{client: client, stream: stream, block: block}, nil
}

// Client exposes the underlying client so other components (API key storage)
// can share the connection pool.
func (r *RedisQueue) Client() *redis.Client {
	return r.client
}

func (r *RedisQueue) Close() error {
	return r.client.Close()
}

// Push adds a run request to the pending stream.
func (r *RedisQueue) Push(ctx context.Context, req *models.RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal run request: %w", err)
	}

	// XADD benchrun:runs:pending * payload {json}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			payloadField: payload,
			"request_id": req.ID.String(),
			"kind":       string(req.Kind),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push to queue: %w", err)
	}
	return nil
}

// EnsureGroup creates the consumer group if it doesn't exist.
func (r *RedisQueue) EnsureGroup(ctx context.Context, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, group, "$").Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Pop retrieves a run request for consumer in group, waiting up to the
// configured block time.
func (r *RedisQueue) Pop(ctx context.Context, group string, consumer string) (string, *models.RunRequest, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.stream, ">"},
		Count:    1,
		Block:    r.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return "", nil, nil
	}
	msg := streams[0].Messages[0]
	req, err := decode(msg.Values)
	return msg.ID, req, err
}

// Ack acknowledges a run request as processed.
func (r *RedisQueue) Ack(ctx context.Context, group string, msgID string) error {
	return r.client.XAck(ctx, r.stream, group, msgID).Err()
}

func decode(values map[string]interface{}) (*models.RunRequest, error) {
	payload, ok := values[payloadField].(string)
	if !ok {
		return nil, fmt.Errorf("invalid payload format")
	}
	var req models.RunRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run request: %w", err)
	}
	return &req, nil
}
