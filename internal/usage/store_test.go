package usage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

func successRecord(userID, cost string, cached bool) *models.UsageLogRecord {
	return &models.UsageLogRecord{
		ID:               uuid.New(),
		UserID:           userID,
		Provider:         "openai",
		Model:            "gpt-4o",
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
		Cost:             decimal.RequireFromString(cost),
		RequestType:      models.RequestTypeCompletion,
		Success:          true,
		LatencyMS:        200,
		Cached:           cached,
		CreatedAt:        time.Now().UTC(),
	}
}

func failureRecord(userID string) *models.UsageLogRecord {
	return &models.UsageLogRecord{
		ID:           uuid.New(),
		UserID:       userID,
		Provider:     "openai",
		Model:        "gpt-4o",
		RequestType:  models.RequestTypeCompletion,
		Success:      false,
		ErrorMessage: "upstream error",
		CreatedAt:    time.Now().UTC(),
	}
}

// seedStatisticsRecords inserts ten requests: four paid successes,
// three cached successes and three failures.
func seedStatisticsRecords(t *testing.T, store UsageStore, cost string) {
	t.Helper()
	ctx := context.Background()

	var records []*models.UsageLogRecord
	for i := 0; i < 4; i++ {
		records = append(records, successRecord("user-a", cost, false))
	}
	for i := 0; i < 3; i++ {
		records = append(records, successRecord("user-a", "0", true))
	}
	for i := 0; i < 3; i++ {
		records = append(records, failureRecord("user-a"))
	}
	require.NoError(t, store.InsertBatch(ctx, records))
}

func TestMemoryUsageStoreStatistics(t *testing.T) {
	store := NewMemoryUsageStore()
	seedStatisticsRecords(t, store, "0.01")

	stats, err := store.Statistics(context.Background(), StatsFilter{})
	require.NoError(t, err)

	assert.Equal(t, 10, stats.TotalRequests)
	assert.Equal(t, 7, stats.SuccessfulRequests)
	assert.Equal(t, 3, stats.FailedRequests)
	assert.Equal(t, 700, stats.TotalPromptTokens)
	assert.Equal(t, 350, stats.TotalCompletionTokens)
	assert.Equal(t, 1050, stats.TotalTokens)
	assert.True(t, stats.TotalCost.Equal(decimal.RequireFromString("0.04")),
		"total cost = %s, want 0.04", stats.TotalCost)
	assert.InDelta(t, 140.0, stats.AverageLatencyMS, 0.001)
	assert.InDelta(t, 30.0, stats.CacheHitRate, 0.001)
}

func TestMemoryUsageStoreStatisticsEmpty(t *testing.T) {
	store := NewMemoryUsageStore()

	stats, err := store.Statistics(context.Background(), StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRequests)
	assert.Zero(t, stats.CacheHitRate, "hit rate must be zero, not NaN, with no requests")
	assert.True(t, stats.TotalCost.IsZero())
}

func TestMemoryUsageStoreCostSumExact(t *testing.T) {
	store := NewMemoryUsageStore()
	ctx := context.Background()

	var records []*models.UsageLogRecord
	for i := 0; i < 100; i++ {
		records = append(records, successRecord("user-a", "0.00075", false))
	}
	require.NoError(t, store.InsertBatch(ctx, records))

	stats, err := store.Statistics(ctx, StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, "0.075", stats.TotalCost.String(),
		"decimal accumulation must not drift")
}

func TestMemoryUsageStoreFilters(t *testing.T) {
	store := NewMemoryUsageStore()
	ctx := context.Background()

	other := successRecord("user-b", "0.01", false)
	other.Provider = "anthropic"
	other.Model = "claude-3-haiku"
	old := successRecord("user-a", "0.01", false)
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)

	require.NoError(t, store.InsertBatch(ctx, []*models.UsageLogRecord{
		successRecord("user-a", "0.01", false),
		other,
		old,
	}))

	byUser, err := store.Statistics(ctx, StatsFilter{UserID: "user-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, byUser.TotalRequests)

	byProvider, err := store.Statistics(ctx, StatsFilter{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, 2, byProvider.TotalRequests)

	cutoff := time.Now().UTC().Add(-time.Hour)
	recent, err := store.Statistics(ctx, StatsFilter{Since: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, 2, recent.TotalRequests)

	past, err := store.Statistics(ctx, StatsFilter{Until: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, 1, past.TotalRequests)

	combined, err := store.Statistics(ctx, StatsFilter{UserID: "user-a", Provider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, 0, combined.TotalRequests, "filter fields combine with AND")
}

func TestMemoryUsageStoreDailyUsage(t *testing.T) {
	store := NewMemoryUsageStore()
	ctx := context.Background()

	today := successRecord("user-a", "0.01", false)
	todayToo := successRecord("user-a", "0.01", false)
	yesterday := successRecord("user-a", "0.01", false)
	yesterday.CreatedAt = time.Now().UTC().AddDate(0, 0, -1)
	ancient := successRecord("user-a", "0.01", false)
	ancient.CreatedAt = time.Now().UTC().AddDate(0, 0, -10)

	require.NoError(t, store.InsertBatch(ctx, []*models.UsageLogRecord{
		today, todayToo, yesterday, ancient,
	}))

	daily, err := store.DailyUsage(ctx, 7, StatsFilter{})
	require.NoError(t, err)
	require.Len(t, daily, 2, "records outside the trailing window are excluded")

	assert.Equal(t, yesterday.CreatedAt.Format("2006-01-02"), daily[0].Date)
	assert.Equal(t, 1, daily[0].Requests)
	assert.Equal(t, 150, daily[0].Tokens)

	assert.Equal(t, today.CreatedAt.Format("2006-01-02"), daily[1].Date)
	assert.Equal(t, 2, daily[1].Requests)
	assert.Equal(t, 300, daily[1].Tokens)
	assert.True(t, daily[1].Cost.Equal(decimal.RequireFromString("0.02")))
}
