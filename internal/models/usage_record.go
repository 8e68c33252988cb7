package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Request types recorded on usage log entries.
const (
	RequestTypeCompletion = "completion"
	RequestTypeChat       = "chat"
)

// UsageLogRecord is the append-only audit entry written once per dispatch
// attempt, successful or not. Records are never updated or deleted.
type UsageLogRecord struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"user_id,omitempty"`
	SessionID        string          `db:"session_id" json:"session_id,omitempty"`
	Provider         string          `db:"provider" json:"provider"`
	Model            string          `db:"model" json:"model"`
	PromptTokens     int             `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int             `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int             `db:"total_tokens" json:"total_tokens"`
	Cost             decimal.Decimal `db:"cost" json:"cost"`
	RequestType      string          `db:"request_type" json:"request_type"`
	Success          bool            `db:"success" json:"success"`
	ErrorMessage     string          `db:"error_message" json:"error_message,omitempty"`
	LatencyMS        int64           `db:"latency_ms" json:"latency_ms,omitempty"`
	Cached           bool            `db:"cached" json:"cached"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
