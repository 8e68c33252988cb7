package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Finish reasons normalized across providers.
const (
	FinishReasonStop   = "stop"
	FinishReasonLength = "length"
	// FinishReasonCached replaces the provider finish reason on
	// responses served from the cache.
	FinishReasonCached = "cached"
)

// Usage carries the token accounting for one completion.
type Usage struct {
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	EstimatedCost    decimal.Decimal `json:"estimated_cost"`
}

// CompletionResponse is the envelope returned to upstream callers.
type CompletionResponse struct {
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	Usage        Usage     `json:"usage"`
	FinishReason string    `json:"finish_reason"`
	CreatedAt    time.Time `json:"created_at"`
	RequestID    string    `json:"request_id"`
	Cached       bool      `json:"cached"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
}
