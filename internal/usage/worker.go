package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/queue"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// WorkerConfig tunes the batch writer.
type WorkerConfig struct {
	// BatchSize is the maximum number of records per store write.
	BatchSize int

	// FlushInterval is how long a partial batch may wait before it is
	// written anyway.
	FlushInterval time.Duration

	// MaxRetries bounds per-record attempts after a batch write fails.
	MaxRetries int

	// RetryBackoff is the base delay between attempts, doubled each
	// time.
	RetryBackoff time.Duration
}

// DefaultWorkerConfig returns the settings used when configuration
// leaves them unset.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:     50,
		FlushInterval: 2 * time.Second,
		MaxRetries:    3,
		RetryBackoff:  100 * time.Millisecond,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	def := DefaultWorkerConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	return c
}

const drainTimeout = 5 * time.Second

// Worker drains the usage queue in batches, persists records to the
// store, then fans out to the archive sink and spend tracker. Records
// that keep failing are parked in the dead-letter queue.
type Worker struct {
	queue   queue.Queue
	dlq     queue.DeadLetterQueue
	store   UsageStore
	archive ArchiveSink
	spend   SpendTracker
	config  WorkerConfig
	logger  *utils.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewWorker wires the batch writer. Nil archive and spend fall back to
// no-op implementations.
func NewWorker(q queue.Queue, dlq queue.DeadLetterQueue, store UsageStore, archive ArchiveSink, spend SpendTracker, config WorkerConfig, logger *utils.Logger) *Worker {
	if archive == nil {
		archive = NoopSink{}
	}
	if spend == nil {
		spend = NoopSpendTracker{}
	}
	if logger == nil {
		logger = utils.NewLogger("usage-worker")
	}

	return &Worker{
		queue:       q,
		dlq:         dlq,
		store:       store,
		archive:     archive,
		spend:       spend,
		config:      config.withDefaults(),
		logger:      logger,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop drains the queue and waits for the worker to finish.
func (w *Worker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("usage worker stopping")
			w.drain()
			return
		case <-ctx.Done():
			w.logger.Info("usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch waits for up to a flush interval's worth of records and
// writes them.
func (w *Worker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.FlushInterval)
	if err != nil {
		w.logger.Error("failed to dequeue usage records", "error", err)
		time.Sleep(1 * time.Second)
		return
	}
	if len(items) == 0 {
		return
	}

	w.flush(ctx, items)
}

// drain empties what remains in the queue during shutdown.
func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, 100*time.Millisecond)
		if err != nil || len(items) == 0 {
			return
		}
		w.flush(ctx, items)
	}
}

func (w *Worker) flush(ctx context.Context, records []*models.UsageLogRecord) {
	if err := w.store.InsertBatch(ctx, records); err != nil {
		w.logger.Error("batch insert failed, retrying records individually",
			"count", len(records), "error", err)
		for _, rec := range records {
			w.retryRecord(ctx, rec)
		}
		return
	}

	w.logger.Debug("usage batch persisted", "count", len(records))
	w.postPersist(ctx, records)
}

// retryRecord attempts a single record with exponential backoff and
// parks it in the dead-letter queue when the attempts run out.
func (w *Worker) retryRecord(ctx context.Context, rec *models.UsageLogRecord) {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			time.Sleep(backoff)
		}

		if err := w.store.InsertBatch(ctx, []*models.UsageLogRecord{rec}); err != nil {
			lastErr = err
			continue
		}

		w.postPersist(ctx, []*models.UsageLogRecord{rec})
		return
	}

	if w.dlq == nil {
		w.logger.Error("dropping usage record, no dead letter queue", "id", rec.ID, "error", lastErr)
		return
	}
	cause := fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
	if err := w.dlq.Add(ctx, rec, cause); err != nil {
		w.logger.Error("failed to add record to dead letter queue", "id", rec.ID, "error", err)
		return
	}
	w.logger.Warn("usage record moved to dead letter queue", "id", rec.ID, "error", lastErr)
}

// postPersist feeds successfully stored records to the archive sink and
// the spend tracker. Failures here are logged, never retried; the store
// already holds the authoritative copy.
func (w *Worker) postPersist(ctx context.Context, records []*models.UsageLogRecord) {
	if err := w.archive.WriteBatch(ctx, records); err != nil {
		w.logger.Error("failed to archive usage batch", "count", len(records), "error", err)
	}

	for _, rec := range records {
		if !rec.Success || rec.Cached || rec.UserID == "" || !rec.Cost.IsPositive() {
			continue
		}
		if err := w.spend.Add(ctx, rec.UserID, rec.Cost, rec.CreatedAt); err != nil {
			w.logger.Error("failed to track spend", "user_id", rec.UserID, "error", err)
		}
	}
}

// QueueLength reports how many records are waiting.
func (w *Worker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems lists parked records for inspection.
func (w *Worker) DeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem moves one parked record back onto the queue.
func (w *Worker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, item := range items {
		if item.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, item.Record); err != nil {
			return fmt.Errorf("failed to re-enqueue record: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove item from dead letter queue: %w", err)
		}
		return nil
	}

	return fmt.Errorf("dead letter item %s: %w", id, queue.ErrItemNotFound)
}
