// Package completion implements the cache-aside completion flow: check
// the response cache, dispatch to providers on a miss, price the
// result, write it back, and record usage.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/cache"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/dispatch"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/pricing"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/usage"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// ErrContextWindowExceeded is returned before dispatch when the prompt
// plus the requested completion budget cannot fit the model's context
// window.
var ErrContextWindowExceeded = errors.New("context window exceeded")

// Options tune orchestrator behavior beyond its collaborators.
type Options struct {
	// Singleflight collapses concurrent identical cache misses onto a
	// single upstream dispatch. Off by default; duplicate dispatches
	// for the same key are allowed otherwise.
	Singleflight bool
}

// Orchestrator runs completion requests through the pipeline. The cache
// service may be nil, which disables caching; the recorder may be nil,
// which disables usage logging.
type Orchestrator struct {
	cache      *cache.Service
	dispatcher *dispatch.Dispatcher
	calculator *pricing.Calculator
	recorder   usage.Recorder
	options    Options
	logger     *utils.Logger

	group singleflight.Group
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(cacheSvc *cache.Service, dispatcher *dispatch.Dispatcher, calculator *pricing.Calculator, recorder usage.Recorder, options Options, logger *utils.Logger) *Orchestrator {
	if logger == nil {
		logger = utils.NewLogger("completion")
	}
	return &Orchestrator{
		cache:      cacheSvc,
		dispatcher: dispatcher,
		calculator: calculator,
		recorder:   recorder,
		options:    options,
		logger:     logger,
	}
}

// Complete serves one request. Cache hits come back tagged Cached with
// the finish reason replaced and zero cost; misses dispatch to the
// providers, price the result, write it back to the cache and record
// usage. Streaming requests bypass the cache in both directions.
func (o *Orchestrator) Complete(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("invalid request: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	start := time.Now()
	requestID := uuid.NewString()
	info := usage.RequestInfo{UserID: req.UserID, SessionID: req.SessionID}

	useCache := o.cache != nil && req.CacheEnabled() && !req.Stream

	var key string
	if useCache {
		var err error
		key, err = cache.KeyForRequest(req)
		if err != nil {
			return nil, err
		}

		if resp := o.fromCache(ctx, key, req); resp != nil {
			resp.RequestID = requestID
			resp.LatencyMS = time.Since(start).Milliseconds()
			o.logUsage(ctx, resp, info)
			o.logger.Debug("served from cache", "key", key, "provider", resp.Provider, "model", resp.Model)
			return resp, nil
		}
	}

	if req.MaxTokens != nil {
		within, remaining, err := o.calculator.CheckContextLimit(req.Messages, req.Model, *req.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("context limit check: %w", err)
		}
		if !within {
			return nil, fmt.Errorf("%w: prompt and max_tokens overrun the window by %d tokens",
				ErrContextWindowExceeded, -remaining)
		}
	}

	if o.options.Singleflight && useCache {
		v, err, shared := o.group.Do(key, func() (interface{}, error) {
			return o.dispatch(ctx, req, key, useCache, info, requestID, start)
		})
		if err != nil {
			return nil, err
		}
		resp := v.(*models.CompletionResponse)
		if shared {
			// Joined another caller's dispatch: same completion, own
			// envelope. Not marked cached; nothing was read back.
			dup := *resp
			dup.RequestID = requestID
			dup.LatencyMS = time.Since(start).Milliseconds()
			return &dup, nil
		}
		return resp, nil
	}

	return o.dispatch(ctx, req, key, useCache, info, requestID, start)
}

// dispatch sends the request down the provider chain and finishes the
// response: request ID, estimated cost, end-to-end latency, cache
// write-back, usage record.
func (o *Orchestrator) dispatch(ctx context.Context, req *models.CompletionRequest, key string, useCache bool, info usage.RequestInfo, requestID string, start time.Time) (*models.CompletionResponse, error) {
	resp, err := o.dispatcher.Dispatch(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Abandoned by the caller: not a success, not a provider
			// failure, recorded nowhere.
			return nil, err
		}
		o.logError(ctx, req.Provider, req.Model, err.Error(), info)
		return nil, err
	}

	resp.RequestID = requestID
	resp.Usage.EstimatedCost = o.calculator.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Model)
	resp.LatencyMS = time.Since(start).Milliseconds()

	if useCache {
		if err := o.cache.Set(ctx, key, req, resp); err != nil {
			o.logger.Error("cache write failed", "key", key, "error", err)
		}
	}

	o.logUsage(ctx, resp, info)
	return resp, nil
}

// fromCache returns the cached response for key, or nil on a miss. Read
// failures degrade to a miss; the answer must not depend on cache
// availability.
func (o *Orchestrator) fromCache(ctx context.Context, key string, req *models.CompletionRequest) *models.CompletionResponse {
	entry, err := o.cache.Get(ctx, key, req.Provider, req.Model)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			o.logger.Error("cache read failed", "key", key, "error", err)
		}
		return nil
	}

	return &models.CompletionResponse{
		Content:  entry.ResponseContent,
		Model:    entry.Model,
		Provider: entry.Provider,
		Usage: models.Usage{
			PromptTokens:     entry.PromptTokens,
			CompletionTokens: entry.CompletionTokens,
			TotalTokens:      entry.PromptTokens + entry.CompletionTokens,
			EstimatedCost:    decimal.Zero,
		},
		FinishReason: models.FinishReasonCached,
		CreatedAt:    time.Now().UTC(),
		Cached:       true,
	}
}

// Usage records survive caller cancellation; only a canceled dispatch
// goes unrecorded.
func (o *Orchestrator) logUsage(ctx context.Context, resp *models.CompletionResponse, info usage.RequestInfo) {
	if o.recorder == nil {
		return
	}
	if _, err := o.recorder.LogUsage(context.WithoutCancel(ctx), resp, info); err != nil {
		o.logger.Error("failed to record usage", "provider", resp.Provider, "model", resp.Model, "error", err)
	}
}

func (o *Orchestrator) logError(ctx context.Context, provider, model, message string, info usage.RequestInfo) {
	if o.recorder == nil {
		return
	}
	if _, err := o.recorder.LogError(context.WithoutCancel(ctx), provider, model, message, info); err != nil {
		o.logger.Error("failed to record dispatch failure", "provider", provider, "error", err)
	}
}
