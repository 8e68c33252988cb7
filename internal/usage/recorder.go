package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/queue"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// RequestInfo carries caller identity onto usage records.
type RequestInfo struct {
	UserID      string
	SessionID   string
	RequestType string
}

func (info RequestInfo) requestType() string {
	if info.RequestType == "" {
		return models.RequestTypeCompletion
	}
	return info.RequestType
}

// Recorder accepts usage events from the request path and returns the
// record it produced. Implementations must be cheap to call;
// persistence happens downstream.
type Recorder interface {
	// LogUsage records a completed request, cached or dispatched.
	LogUsage(ctx context.Context, resp *models.CompletionResponse, info RequestInfo) (*models.UsageLogRecord, error)

	// LogError records a failed request with zeroed token and cost
	// fields.
	LogError(ctx context.Context, provider, model, errorMessage string, info RequestInfo) (*models.UsageLogRecord, error)
}

func newUsageRecord(resp *models.CompletionResponse, info RequestInfo) *models.UsageLogRecord {
	return &models.UsageLogRecord{
		ID:               uuid.New(),
		UserID:           info.UserID,
		SessionID:        info.SessionID,
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             resp.Usage.EstimatedCost,
		RequestType:      info.requestType(),
		Success:          true,
		LatencyMS:        resp.LatencyMS,
		Cached:           resp.Cached,
		CreatedAt:        time.Now().UTC(),
	}
}

func newErrorRecord(provider, model, errorMessage string, info RequestInfo) *models.UsageLogRecord {
	return &models.UsageLogRecord{
		ID:           uuid.New(),
		UserID:       info.UserID,
		SessionID:    info.SessionID,
		Provider:     provider,
		Model:        model,
		RequestType:  info.requestType(),
		Success:      false,
		ErrorMessage: errorMessage,
		CreatedAt:    time.Now().UTC(),
	}
}

// QueueRecorder hands records to the usage queue; the worker persists
// them in batches off the request path.
type QueueRecorder struct {
	queue  queue.Queue
	logger *utils.Logger
}

// NewQueueRecorder creates a recorder backed by the given queue.
func NewQueueRecorder(q queue.Queue, logger *utils.Logger) *QueueRecorder {
	if logger == nil {
		logger = utils.NewLogger("usage-recorder")
	}
	return &QueueRecorder{queue: q, logger: logger}
}

// LogUsage enqueues a success record.
func (r *QueueRecorder) LogUsage(ctx context.Context, resp *models.CompletionResponse, info RequestInfo) (*models.UsageLogRecord, error) {
	rec := newUsageRecord(resp, info)
	if err := r.queue.Enqueue(ctx, rec); err != nil {
		r.logger.Error("failed to enqueue usage record", "provider", rec.Provider, "error", err)
		return nil, fmt.Errorf("enqueue usage record: %w", err)
	}
	return rec, nil
}

// LogError enqueues a failure record.
func (r *QueueRecorder) LogError(ctx context.Context, provider, model, errorMessage string, info RequestInfo) (*models.UsageLogRecord, error) {
	rec := newErrorRecord(provider, model, errorMessage, info)
	if err := r.queue.Enqueue(ctx, rec); err != nil {
		r.logger.Error("failed to enqueue error record", "provider", provider, "error", err)
		return nil, fmt.Errorf("enqueue error record: %w", err)
	}
	return rec, nil
}

// DirectRecorder writes straight to the usage store, bypassing the
// queue. Used where a worker is not running, such as one-shot tools.
type DirectRecorder struct {
	store UsageStore
}

// NewDirectRecorder creates a recorder that writes synchronously.
func NewDirectRecorder(store UsageStore) *DirectRecorder {
	return &DirectRecorder{store: store}
}

// LogUsage writes a success record synchronously.
func (r *DirectRecorder) LogUsage(ctx context.Context, resp *models.CompletionResponse, info RequestInfo) (*models.UsageLogRecord, error) {
	rec := newUsageRecord(resp, info)
	if err := r.store.InsertBatch(ctx, []*models.UsageLogRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// LogError writes a failure record synchronously.
func (r *DirectRecorder) LogError(ctx context.Context, provider, model, errorMessage string, info RequestInfo) (*models.UsageLogRecord, error) {
	rec := newErrorRecord(provider, model, errorMessage, info)
	if err := r.store.InsertBatch(ctx, []*models.UsageLogRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}
