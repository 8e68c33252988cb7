package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

const redisConnectTimeout = 5 * time.Second

// newRedisClient dials and pings so a bad address fails at construction,
// not on the first enqueue.
func newRedisClient(config *Config) (*redis.Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisQueue keeps records on a Redis list so they survive restarts and
// can feed workers in other processes.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a Redis-backed queue.
func NewRedisQueue(config *Config) (*RedisQueue, error) {
	client, err := newRedisClient(config)
	if err != nil {
		return nil, err
	}

	return &RedisQueue{
		client: client,
		key:    "queue:" + config.Name,
	}, nil
}

// Enqueue serializes the record and pushes it onto the list.
func (q *RedisQueue) Enqueue(ctx context.Context, rec *models.UsageLogRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

// Dequeue blocks until at least one record is available, then drains up
// to maxItems without further blocking.
func (q *RedisQueue) Dequeue(ctx context.Context, maxItems int) ([]*models.UsageLogRecord, error) {
	result, err := q.client.BLPop(ctx, 0, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the list key, result[1] the payload
	return q.drain(ctx, appendPayload(nil, result[1]), maxItems), nil
}

// DequeueWithTimeout behaves like Dequeue but gives up after timeout,
// returning an empty batch rather than an error.
func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.UsageLogRecord, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	return q.drain(ctx, appendPayload(nil, result[1]), maxItems), nil
}

// drain pops further payloads without blocking until the batch is full
// or the list is empty. A pop error cuts the drain short; the records
// collected so far are still delivered.
func (q *RedisQueue) drain(ctx context.Context, batch []*models.UsageLogRecord, maxItems int) []*models.UsageLogRecord {
	for len(batch) < maxItems {
		payload, err := q.client.LPop(ctx, q.key).Result()
		if err != nil {
			return batch
		}
		batch = appendPayload(batch, payload)
	}
	return batch
}

// appendPayload decodes one payload into the batch. Payloads that do not
// parse are dropped; the bytes are already off the list either way.
func appendPayload(batch []*models.UsageLogRecord, payload string) []*models.UsageLogRecord {
	var rec models.UsageLogRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return batch
	}
	return append(batch, &rec)
}

// Length returns the number of records waiting.
func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close shuts down the queue.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// RedisDeadLetterQueue parks records in a Redis hash keyed by item ID.
type RedisDeadLetterQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDeadLetterQueue creates a Redis-backed dead letter queue.
func NewRedisDeadLetterQueue(config *Config) (*RedisDeadLetterQueue, error) {
	client, err := newRedisClient(config)
	if err != nil {
		return nil, err
	}

	return &RedisDeadLetterQueue{
		client: client,
		key:    "dlq:" + config.Name,
	}, nil
}

// Add parks a record together with the error that exhausted it.
func (q *RedisDeadLetterQueue) Add(ctx context.Context, rec *models.UsageLogRecord, cause error) error {
	item := DeadLetterItem{
		ID:        uuid.NewString(),
		Record:    rec,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", err)
	}

	if err := q.client.HSet(ctx, q.key, item.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return nil
}

// List returns up to maxItems parked items; maxItems <= 0 returns all.
func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var item DeadLetterItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			continue // skip malformed items
		}
		items = append(items, item)

		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}

	return items, nil
}

// Remove deletes a parked item by ID.
func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	removed, err := q.client.HDel(ctx, q.key, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if removed == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Close shuts down the dead letter queue.
func (q *RedisDeadLetterQueue) Close() error {
	return q.client.Close()
}
