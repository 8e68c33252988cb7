package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

// MemoryUsageStore keeps records in process memory. Suited to tests
// and single-node setups where the audit trail may be ephemeral.
type MemoryUsageStore struct {
	mu      sync.RWMutex
	records []models.UsageLogRecord
}

// NewMemoryUsageStore creates an empty in-memory store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

// InsertBatch appends copies of all records.
func (s *MemoryUsageStore) InsertBatch(ctx context.Context, records []*models.UsageLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.records = append(s.records, *rec)
	}
	return nil
}

func (f StatsFilter) matches(rec *models.UsageLogRecord) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && rec.SessionID != f.SessionID {
		return false
	}
	if f.Provider != "" && rec.Provider != f.Provider {
		return false
	}
	if f.Model != "" && rec.Model != f.Model {
		return false
	}
	if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !rec.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}

// Statistics aggregates matching records.
func (s *MemoryUsageStore) Statistics(ctx context.Context, filter StatsFilter) (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Statistics{TotalCost: decimal.Zero}
	cached := 0
	var latencySum int64

	for i := range s.records {
		rec := &s.records[i]
		if !filter.matches(rec) {
			continue
		}

		stats.TotalRequests++
		if rec.Success {
			stats.SuccessfulRequests++
		} else {
			stats.FailedRequests++
		}
		stats.TotalPromptTokens += rec.PromptTokens
		stats.TotalCompletionTokens += rec.CompletionTokens
		stats.TotalTokens += rec.TotalTokens
		stats.TotalCost = stats.TotalCost.Add(rec.Cost)
		latencySum += rec.LatencyMS
		if rec.Cached {
			cached++
		}
	}

	if stats.TotalRequests > 0 {
		stats.AverageLatencyMS = float64(latencySum) / float64(stats.TotalRequests)
	}
	stats.CacheHitRate = cacheHitRate(cached, stats.TotalRequests)
	return stats, nil
}

// DailyUsage groups matching records by calendar day.
func (s *MemoryUsageStore) DailyUsage(ctx context.Context, days int, filter StatsFilter) ([]DailyUsage, error) {
	if days <= 0 {
		days = defaultDailyWindow
	}
	start := dailyWindowStart(days)

	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]*DailyUsage)
	for i := range s.records {
		rec := &s.records[i]
		if rec.CreatedAt.Before(start) || !filter.matches(rec) {
			continue
		}

		day := rec.CreatedAt.UTC().Format("2006-01-02")
		bucket, ok := byDay[day]
		if !ok {
			bucket = &DailyUsage{Date: day, Cost: decimal.Zero}
			byDay[day] = bucket
		}
		bucket.Requests++
		bucket.Tokens += rec.TotalTokens
		bucket.Cost = bucket.Cost.Add(rec.Cost)
	}

	result := make([]DailyUsage, 0, len(byDay))
	for _, bucket := range byDay {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// Close is a no-op.
func (s *MemoryUsageStore) Close() error {
	return nil
}

const defaultDailyWindow = 7

// dailyWindowStart returns midnight UTC at the beginning of a trailing
// window that includes today.
func dailyWindowStart(days int) time.Time {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -(days - 1))
}
