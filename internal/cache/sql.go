package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/storage"
)

const cacheSchemaPostgres = `
CREATE TABLE IF NOT EXISTS response_cache (
	cache_key         VARCHAR(64) PRIMARY KEY,
	provider          TEXT        NOT NULL,
	model             TEXT        NOT NULL,
	prompt_hash       VARCHAR(64) NOT NULL,
	response_content  TEXT        NOT NULL,
	prompt_tokens     INTEGER     NOT NULL DEFAULT 0,
	completion_tokens INTEGER     NOT NULL DEFAULT 0,
	hit_count         INTEGER     NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL,
	last_accessed_at  TIMESTAMPTZ NOT NULL,
	expires_at        TIMESTAMPTZ NOT NULL
)`

const cacheSchemaSQLite = `
CREATE TABLE IF NOT EXISTS response_cache (
	cache_key         TEXT      PRIMARY KEY,
	provider          TEXT      NOT NULL,
	model             TEXT      NOT NULL,
	prompt_hash       TEXT      NOT NULL,
	response_content  TEXT      NOT NULL,
	prompt_tokens     INTEGER   NOT NULL DEFAULT 0,
	completion_tokens INTEGER   NOT NULL DEFAULT 0,
	hit_count         INTEGER   NOT NULL DEFAULT 0,
	created_at        TIMESTAMP NOT NULL,
	last_accessed_at  TIMESTAMP NOT NULL,
	expires_at        TIMESTAMP NOT NULL
)`

var cacheIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_response_cache_provider_model ON response_cache (provider, model)`,
}

// SQLStore is the durable Store, shared by every instance pointing at
// the same database. Hit recording is a single UPDATE ... RETURNING, so
// concurrent readers on different instances never lose counts.
type SQLStore struct {
	db *storage.DB
}

// NewSQLStore creates the store and ensures its schema exists.
func NewSQLStore(ctx context.Context, db *storage.DB) (*SQLStore, error) {
	schema := cacheSchemaPostgres
	if db.Driver() == storage.DriverSQLite {
		schema = cacheSchemaSQLite
	}

	statements := append([]string{schema}, cacheIndexes...)
	if err := db.EnsureSchema(ctx, statements...); err != nil {
		return nil, fmt.Errorf("response cache schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Get retrieves a live entry and records the hit in the same statement.
func (s *SQLStore) Get(ctx context.Context, key, provider, model string) (*Entry, error) {
	now := time.Now().UTC()

	query := s.db.Rebind(`
		UPDATE response_cache
		SET hit_count = hit_count + 1, last_accessed_at = ?
		WHERE cache_key = ? AND expires_at > ?
		  AND (? = '' OR provider = ?)
		  AND (? = '' OR model = ?)
		RETURNING cache_key, provider, model, prompt_hash, response_content,
		          prompt_tokens, completion_tokens, hit_count,
		          created_at, last_accessed_at, expires_at`)

	var entry Entry
	err := s.db.Conn().GetContext(ctx, &entry, query,
		now, key, now, provider, provider, model, model)
	if errors.Is(err, sql.ErrNoRows) {
		s.purgeIfExpired(ctx, key, now)
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	return &entry, nil
}

// purgeIfExpired lazily removes the entry behind a miss when it exists
// but has expired.
func (s *SQLStore) purgeIfExpired(ctx context.Context, key string, now time.Time) {
	query := s.db.Rebind(`DELETE FROM response_cache WHERE cache_key = ? AND expires_at <= ?`)
	_, _ = s.db.Conn().ExecContext(ctx, query, key, now)
}

// Set upserts the entry; an overwrite replaces every column, including
// the hit count carried on the incoming entry.
func (s *SQLStore) Set(ctx context.Context, entry *Entry) error {
	query := s.db.Rebind(`
		INSERT INTO response_cache (
			cache_key, provider, model, prompt_hash, response_content,
			prompt_tokens, completion_tokens, hit_count,
			created_at, last_accessed_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			provider          = excluded.provider,
			model             = excluded.model,
			prompt_hash       = excluded.prompt_hash,
			response_content  = excluded.response_content,
			prompt_tokens     = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			hit_count         = excluded.hit_count,
			created_at        = excluded.created_at,
			last_accessed_at  = excluded.last_accessed_at,
			expires_at        = excluded.expires_at`)

	_, err := s.db.Conn().ExecContext(ctx, query,
		entry.CacheKey, entry.Provider, entry.Model, entry.PromptHash,
		entry.ResponseContent, entry.PromptTokens, entry.CompletionTokens,
		entry.HitCount,
		entry.CreatedAt.UTC(), entry.LastAccessedAt.UTC(), entry.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate deletes matching entries and reports how many went away.
func (s *SQLStore) Invalidate(ctx context.Context, f Filter) (int, error) {
	if f.Key != "" {
		query := s.db.Rebind(`DELETE FROM response_cache WHERE cache_key = ?`)
		return s.execCount(ctx, query, f.Key)
	}

	if f.Empty() {
		return 0, nil
	}

	var conds []string
	var args []interface{}
	if f.Provider != "" {
		conds = append(conds, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, f.Model)
	}
	if f.OlderThan != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, f.OlderThan.UTC())
	}

	query := s.db.Rebind(`DELETE FROM response_cache WHERE ` + strings.Join(conds, " OR "))
	return s.execCount(ctx, query, args...)
}

// CleanupExpired removes all expired entries.
func (s *SQLStore) CleanupExpired(ctx context.Context) (int, error) {
	query := s.db.Rebind(`DELETE FROM response_cache WHERE expires_at <= ?`)
	return s.execCount(ctx, query, time.Now().UTC())
}

func (s *SQLStore) execCount(ctx context.Context, query string, args ...interface{}) (int, error) {
	result, err := s.db.Conn().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache delete count: %w", err)
	}
	return int(affected), nil
}

// Stats summarizes the table in one aggregate query.
func (s *SQLStore) Stats(ctx context.Context, provider, model string) (*Stats, error) {
	now := time.Now().UTC()

	query := s.db.Rebind(`
		SELECT
			COUNT(*)                                                  AS total_entries,
			COALESCE(SUM(CASE WHEN expires_at >  ? THEN 1 ELSE 0 END), 0) AS active_entries,
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0) AS expired_entries,
			COALESCE(SUM(hit_count), 0)                               AS total_hits,
			COALESCE(SUM(prompt_tokens), 0)                           AS total_prompt_tokens,
			COALESCE(SUM(completion_tokens), 0)                       AS total_completion_tokens
		FROM response_cache
		WHERE (? = '' OR provider = ?) AND (? = '' OR model = ?)`)

	var row struct {
		TotalEntries          int `db:"total_entries"`
		ActiveEntries         int `db:"active_entries"`
		ExpiredEntries        int `db:"expired_entries"`
		TotalHits             int `db:"total_hits"`
		TotalPromptTokens     int `db:"total_prompt_tokens"`
		TotalCompletionTokens int `db:"total_completion_tokens"`
	}
	err := s.db.Conn().GetContext(ctx, &row, query,
		now, now, provider, provider, model, model)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}

	return &Stats{
		TotalEntries:          row.TotalEntries,
		ActiveEntries:         row.ActiveEntries,
		ExpiredEntries:        row.ExpiredEntries,
		TotalHits:             row.TotalHits,
		TotalPromptTokens:     row.TotalPromptTokens,
		TotalCompletionTokens: row.TotalCompletionTokens,
		StorageType:           StorageTypeDatabase,
	}, nil
}

// Close is a no-op; the shared database handle is owned by the caller.
func (s *SQLStore) Close() error {
	return nil
}
