// Package queue buffers usage log records between the request path and
// the batch writer, with two backends behind one interface:
//
// 1. Memory queue (channel-based):
//   - No persistence, records lost on restart
//   - Zero external dependencies
//   - Suited to tests and single-process deployments
//
// 2. Redis queue (list-based):
//   - Records survive restarts
//   - Supports workers in other processes
//   - Suited to multi-instance deployments
//
// The usage worker drains the queue in batches and writes to the usage
// store; records that keep failing are parked in a dead-letter queue for
// operator inspection. Which backend is active is decided once, at
// construction.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const defaultBufferSize = 1000

// Queue is the FIFO contract shared by both backends. The payload is
// always a usage log record; the Redis backend carries it as JSON.
type Queue interface {
	// Enqueue adds a record to the queue.
	Enqueue(ctx context.Context, rec *models.UsageLogRecord) error

	// Dequeue blocks until at least one record is available, then
	// drains up to maxItems more without further blocking.
	Dequeue(ctx context.Context, maxItems int) ([]*models.UsageLogRecord, error)

	// DequeueWithTimeout behaves like Dequeue but gives up after
	// timeout, returning an empty batch rather than an error.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.UsageLogRecord, error)

	// Length returns the number of records waiting.
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully.
	Close() error
}

// DeadLetterQueue holds records the worker gave up writing.
type DeadLetterQueue interface {
	// Add parks a record together with the error that exhausted it.
	Add(ctx context.Context, rec *models.UsageLogRecord, cause error) error

	// List returns up to maxItems parked items; maxItems <= 0 returns
	// all of them.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes a parked item by ID.
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue.
	Close() error
}

// DeadLetterItem is one parked record plus its failure context.
type DeadLetterItem struct {
	ID        string                 `json:"id"`
	Record    *models.UsageLogRecord `json:"record"`
	Error     string                 `json:"error"`
	Timestamp time.Time              `json:"timestamp"`
}

// Config holds queue construction settings. Batch and retry behavior
// belongs to the consumer (the usage worker), not the queue itself.
type Config struct {
	// Name is the logical queue name; Redis keys derive from it.
	Name string

	// Backend selects the storage strategy: BackendMemory or BackendRedis.
	Backend string

	// BufferSize is the memory backend's channel capacity.
	BufferSize int

	// Redis connection settings (redis backend only).
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns a memory-backed configuration.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:       name,
		Backend:    BackendMemory,
		BufferSize: defaultBufferSize,
	}
}

// New constructs the queue and dead-letter queue for the configured
// backend.
func New(config *Config) (Queue, DeadLetterQueue, error) {
	if config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	switch config.Backend {
	case BackendMemory:
		return NewMemoryQueue(config), NewMemoryDeadLetterQueue(), nil
	case BackendRedis:
		q, err := NewRedisQueue(config)
		if err != nil {
			return nil, nil, err
		}
		dlq, err := NewRedisDeadLetterQueue(config)
		if err != nil {
			q.Close()
			return nil, nil, err
		}
		return q, dlq, nil
	default:
		return nil, nil, fmt.Errorf("unsupported queue backend %q", config.Backend)
	}
}
