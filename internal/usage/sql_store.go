package usage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/storage"
)

const usageSchemaPostgres = `
CREATE TABLE IF NOT EXISTS usage_log (
	id                UUID          PRIMARY KEY,
	user_id           TEXT          NOT NULL DEFAULT '',
	session_id        TEXT          NOT NULL DEFAULT '',
	provider          TEXT          NOT NULL,
	model             TEXT          NOT NULL,
	prompt_tokens     INTEGER       NOT NULL DEFAULT 0,
	completion_tokens INTEGER       NOT NULL DEFAULT 0,
	total_tokens      INTEGER       NOT NULL DEFAULT 0,
	cost              NUMERIC(16,8) NOT NULL DEFAULT 0,
	request_type      TEXT          NOT NULL,
	success           BOOLEAN       NOT NULL,
	error_message     TEXT          NOT NULL DEFAULT '',
	latency_ms        BIGINT        NOT NULL DEFAULT 0,
	cached            BOOLEAN       NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ   NOT NULL
)`

const usageSchemaSQLite = `
CREATE TABLE IF NOT EXISTS usage_log (
	id                TEXT      PRIMARY KEY,
	user_id           TEXT      NOT NULL DEFAULT '',
	session_id        TEXT      NOT NULL DEFAULT '',
	provider          TEXT      NOT NULL,
	model             TEXT      NOT NULL,
	prompt_tokens     INTEGER   NOT NULL DEFAULT 0,
	completion_tokens INTEGER   NOT NULL DEFAULT 0,
	total_tokens      INTEGER   NOT NULL DEFAULT 0,
	cost              NUMERIC   NOT NULL DEFAULT 0,
	request_type      TEXT      NOT NULL,
	success           BOOLEAN   NOT NULL,
	error_message     TEXT      NOT NULL DEFAULT '',
	latency_ms        INTEGER   NOT NULL DEFAULT 0,
	cached            BOOLEAN   NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL
)`

var usageIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_usage_log_created_at ON usage_log (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_log_user_id ON usage_log (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_log_provider_model ON usage_log (provider, model)`,
}

// SQLUsageStore is the durable usage store.
type SQLUsageStore struct {
	db *storage.DB
}

// NewSQLUsageStore creates the store and ensures its schema exists.
func NewSQLUsageStore(ctx context.Context, db *storage.DB) (*SQLUsageStore, error) {
	schema := usageSchemaPostgres
	if db.Driver() == storage.DriverSQLite {
		schema = usageSchemaSQLite
	}

	statements := append([]string{schema}, usageIndexes...)
	if err := db.EnsureSchema(ctx, statements...); err != nil {
		return nil, fmt.Errorf("usage log schema: %w", err)
	}
	return &SQLUsageStore{db: db}, nil
}

// InsertBatch writes all records in one transaction. Records without an
// ID get one assigned.
func (s *SQLUsageStore) InsertBatch(ctx context.Context, records []*models.UsageLogRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("usage insert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := tx.Rebind(`
		INSERT INTO usage_log (
			id, user_id, session_id, provider, model,
			prompt_tokens, completion_tokens, total_tokens, cost,
			request_type, success, error_message, latency_ms, cached, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		_, err := tx.ExecContext(ctx, query,
			rec.ID, rec.UserID, rec.SessionID, rec.Provider, rec.Model,
			rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.Cost,
			rec.RequestType, rec.Success, rec.ErrorMessage, rec.LatencyMS,
			rec.Cached, rec.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("usage insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("usage insert: commit: %w", err)
	}
	return nil
}

func buildConditions(f StatsFilter) ([]string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Provider != "" {
		conds = append(conds, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, f.Model)
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, f.Until.UTC())
	}
	return conds, args
}

// Statistics aggregates matching records in one query.
func (s *SQLUsageStore) Statistics(ctx context.Context, filter StatsFilter) (*Statistics, error) {
	query := `
		SELECT
			COUNT(*)                                                   AS total_requests,
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0)      AS successful_requests,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0)      AS failed_requests,
			COALESCE(SUM(prompt_tokens), 0)                            AS total_prompt_tokens,
			COALESCE(SUM(completion_tokens), 0)                        AS total_completion_tokens,
			COALESCE(SUM(total_tokens), 0)                             AS total_tokens,
			COALESCE(SUM(cost), 0)                                     AS total_cost,
			COALESCE(AVG(latency_ms), 0)                               AS average_latency_ms,
			COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0)       AS cached_requests
		FROM usage_log`

	conds, args := buildConditions(filter)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var row struct {
		Statistics
		CachedRequests int `db:"cached_requests"`
	}
	if err := s.db.Conn().GetContext(ctx, &row, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("usage statistics: %w", err)
	}

	stats := row.Statistics
	stats.CacheHitRate = cacheHitRate(row.CachedRequests, stats.TotalRequests)
	return &stats, nil
}

// DailyUsage groups matching records by calendar day over the trailing
// window, oldest day first.
func (s *SQLUsageStore) DailyUsage(ctx context.Context, days int, filter StatsFilter) ([]DailyUsage, error) {
	if days <= 0 {
		days = defaultDailyWindow
	}

	bucket := s.db.DayBucket("created_at")
	conds, args := buildConditions(filter)
	conds = append([]string{"created_at >= ?"}, conds...)
	args = append([]interface{}{dailyWindowStart(days)}, args...)

	query := fmt.Sprintf(`
		SELECT %s AS date,
		       COUNT(*) AS requests,
		       COALESCE(SUM(total_tokens), 0) AS tokens,
		       COALESCE(SUM(cost), 0) AS cost
		FROM usage_log
		WHERE %s
		GROUP BY %s
		ORDER BY date`,
		bucket, strings.Join(conds, " AND "), bucket)

	result := []DailyUsage{}
	if err := s.db.Conn().SelectContext(ctx, &result, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	return result, nil
}

// Close is a no-op; the shared database handle is owned by the caller.
func (s *SQLUsageStore) Close() error {
	return nil
}
