package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

// MemoryQueue buffers records in a channel. Capacity is fixed at
// construction; Enqueue blocks once the buffer is full.
type MemoryQueue struct {
	records chan *models.UsageLogRecord
	mu      sync.RWMutex
	closed  bool
}

// NewMemoryQueue creates an in-memory queue. A nil config gets the
// default buffer size.
func NewMemoryQueue(config *Config) *MemoryQueue {
	size := defaultBufferSize
	if config != nil && config.BufferSize > 0 {
		size = config.BufferSize
	}

	return &MemoryQueue{
		records: make(chan *models.UsageLogRecord, size),
	}
}

// Enqueue adds a record to the queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, rec *models.UsageLogRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.records <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until at least one record is available, then drains up
// to maxItems without further blocking.
func (q *MemoryQueue) Dequeue(ctx context.Context, maxItems int) ([]*models.UsageLogRecord, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	select {
	case rec := <-q.records:
		return q.fill([]*models.UsageLogRecord{rec}, maxItems), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DequeueWithTimeout behaves like Dequeue but gives up after timeout,
// returning an empty batch rather than an error.
func (q *MemoryQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]*models.UsageLogRecord, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-q.records:
		return q.fill([]*models.UsageLogRecord{rec}, maxItems), nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill tops the batch up from the buffer without blocking.
func (q *MemoryQueue) fill(batch []*models.UsageLogRecord, maxItems int) []*models.UsageLogRecord {
	for len(batch) < maxItems {
		select {
		case rec := <-q.records:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

// Length returns the number of records waiting.
func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	return len(q.records), nil
}

// Close shuts down the queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.records)
	return nil
}

// MemoryDeadLetterQueue parks records in process memory.
type MemoryDeadLetterQueue struct {
	mu     sync.RWMutex
	parked []DeadLetterItem
	closed bool
}

// NewMemoryDeadLetterQueue creates an in-memory dead letter queue.
func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{}
}

// Add parks a record together with the error that exhausted it.
func (q *MemoryDeadLetterQueue) Add(ctx context.Context, rec *models.UsageLogRecord, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.parked = append(q.parked, DeadLetterItem{
		ID:        uuid.NewString(),
		Record:    rec,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// List returns up to maxItems parked items; maxItems <= 0 returns all.
func (q *MemoryDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	if maxItems <= 0 || maxItems > len(q.parked) {
		maxItems = len(q.parked)
	}

	items := make([]DeadLetterItem, maxItems)
	copy(items, q.parked[:maxItems])
	return items, nil
}

// Remove deletes a parked item by ID.
func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for i, item := range q.parked {
		if item.ID == id {
			q.parked = append(q.parked[:i], q.parked[i+1:]...)
			return nil
		}
	}

	return ErrItemNotFound
}

// Close shuts down the dead letter queue.
func (q *MemoryDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.parked = nil
	return nil
}
