// Package usage records one audit entry per dispatch attempt and
// aggregates them into statistics. Records flow through a queue into a
// store; the store answers the statistics and daily-usage queries.
package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

// StatsFilter narrows statistics queries. Zero-valued fields match
// everything; set fields combine with AND.
type StatsFilter struct {
	UserID    string
	SessionID string
	Provider  string
	Model     string
	Since     *time.Time
	Until     *time.Time
}

// Statistics is the aggregate over all matching usage records.
type Statistics struct {
	TotalRequests         int             `db:"total_requests" json:"total_requests"`
	SuccessfulRequests    int             `db:"successful_requests" json:"successful_requests"`
	FailedRequests        int             `db:"failed_requests" json:"failed_requests"`
	TotalPromptTokens     int             `db:"total_prompt_tokens" json:"total_prompt_tokens"`
	TotalCompletionTokens int             `db:"total_completion_tokens" json:"total_completion_tokens"`
	TotalTokens           int             `db:"total_tokens" json:"total_tokens"`
	TotalCost             decimal.Decimal `db:"total_cost" json:"total_cost"`
	AverageLatencyMS      float64         `db:"average_latency_ms" json:"average_latency_ms"`
	CacheHitRate          float64         `db:"cache_hit_rate" json:"cache_hit_rate"`
}

// DailyUsage is one calendar day's worth of requests.
type DailyUsage struct {
	Date     string          `db:"date" json:"date"`
	Requests int             `db:"requests" json:"requests"`
	Tokens   int             `db:"tokens" json:"tokens"`
	Cost     decimal.Decimal `db:"cost" json:"cost"`
}

// UsageStore persists usage records. Records are append-only; there is
// no update or delete path.
type UsageStore interface {
	// InsertBatch writes all records or none of them.
	InsertBatch(ctx context.Context, records []*models.UsageLogRecord) error

	// Statistics aggregates the records matching the filter.
	Statistics(ctx context.Context, filter StatsFilter) (*Statistics, error)

	// DailyUsage groups matching records by calendar day over the
	// trailing window of days, oldest day first.
	DailyUsage(ctx context.Context, days int, filter StatsFilter) ([]DailyUsage, error)

	Close() error
}

// cacheHitRate is cached requests as a percentage of all requests,
// zero when there are no requests.
func cacheHitRate(cached, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(cached) / float64(total) * 100
}
