package queue

import (
	"context"
	"testing"
	"time"
)

// TestQueueDrainAndDeadLetterFlow walks the full usage-pipeline path:
// enqueue, batch dequeue, park a poison record, retry it from the DLQ.
func TestQueueDrainAndDeadLetterFlow(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("flow-test"))
	dlq := NewMemoryDeadLetterQueue()
	defer q.Close()
	defer dlq.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, testRecord()); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// First batch of five.
	items, err := q.Dequeue(ctx, 5)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("Expected 5 records in batch, got %d", len(items))
	}

	// One record fails for good and gets parked.
	poison := items[0]
	if err := dlq.Add(ctx, poison, ErrMaxRetriesExceeded); err != nil {
		t.Fatalf("DLQ Add failed: %v", err)
	}

	// Second batch empties the queue.
	items, err = q.Dequeue(ctx, 5)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 records in second batch, got %d", len(items))
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 0 {
		t.Errorf("Expected empty queue, got length %d", length)
	}

	dlqItems, err := dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("DLQ List failed: %v", err)
	}
	if len(dlqItems) != 1 {
		t.Fatalf("Expected 1 item in DLQ, got %d", len(dlqItems))
	}
	if dlqItems[0].Error != ErrMaxRetriesExceeded.Error() {
		t.Errorf("Expected error %v, got %s", ErrMaxRetriesExceeded, dlqItems[0].Error)
	}

	// Operator retries the parked record.
	if err := q.Enqueue(ctx, dlqItems[0].Record); err != nil {
		t.Fatalf("Re-enqueue failed: %v", err)
	}
	if err := dlq.Remove(ctx, dlqItems[0].ID); err != nil {
		t.Fatalf("DLQ Remove failed: %v", err)
	}

	dlqItems, err = dlq.List(ctx, 10)
	if err != nil {
		t.Fatalf("DLQ List failed: %v", err)
	}
	if len(dlqItems) != 0 {
		t.Errorf("Expected empty DLQ, got %d items", len(dlqItems))
	}

	items, err = q.Dequeue(ctx, 1)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 retried record, got %d", len(items))
	}
	if items[0].ID != poison.ID {
		t.Errorf("Retried record = %s, want %s", items[0].ID, poison.ID)
	}
}

// TestPartialBatchReturnsImmediately verifies a consumer never waits for
// a full batch when records are already available.
func TestPartialBatchReturnsImmediately(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("partial-batch-test"))
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, testRecord()); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	start := time.Now()
	items, err := q.DequeueWithTimeout(ctx, 10, 200*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 records (partial batch), got %d", len(items))
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("Expected quick return with available records, took %v", elapsed)
	}
}

// TestConcurrentProducerConsumer pushes records through while a consumer
// drains in batches, mimicking the usage worker.
func TestConcurrentProducerConsumer(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("concurrent-test"))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recordsToProcess := 100
	processedCount := 0
	doneChan := make(chan bool)

	go func() {
		for i := 0; i < recordsToProcess; i++ {
			_ = q.Enqueue(ctx, testRecord())
			time.Sleep(time.Millisecond)
		}
	}()

	go func() {
		for processedCount < recordsToProcess {
			items, err := q.DequeueWithTimeout(ctx, 20, 50*time.Millisecond)
			if err != nil {
				continue
			}
			processedCount += len(items)
		}
		doneChan <- true
	}()

	select {
	case <-doneChan:
		if processedCount != recordsToProcess {
			t.Errorf("Expected %d records processed, got %d", recordsToProcess, processedCount)
		}
	case <-time.After(5 * time.Second):
		t.Errorf("Test timed out - processed %d/%d records", processedCount, recordsToProcess)
	}
}
