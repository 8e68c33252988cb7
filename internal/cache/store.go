package cache

import (
	"context"
	"time"
)

// Storage type names reported by Stats.
const (
	StorageTypeMemory   = "memory"
	StorageTypeDatabase = "database"
)

// Entry is one cached completion. Timestamps are UTC.
type Entry struct {
	CacheKey         string    `db:"cache_key" json:"cache_key"`
	Provider         string    `db:"provider" json:"provider"`
	Model            string    `db:"model" json:"model"`
	PromptHash       string    `db:"prompt_hash" json:"prompt_hash"`
	ResponseContent  string    `db:"response_content" json:"response_content"`
	PromptTokens     int       `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens" json:"completion_tokens"`
	HitCount         int       `db:"hit_count" json:"hit_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	LastAccessedAt   time.Time `db:"last_accessed_at" json:"last_accessed_at"`
	ExpiresAt        time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the entry is logically absent at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Filter selects entries for invalidation. A non-empty Key selects
// exactly that entry; otherwise entries matching ANY of the supplied
// fields are selected (OR semantics).
type Filter struct {
	Key       string
	Provider  string
	Model     string
	OlderThan *time.Time
}

// Empty reports whether no filter field is set.
func (f Filter) Empty() bool {
	return f.Key == "" && f.Provider == "" && f.Model == "" && f.OlderThan == nil
}

// Stats summarizes the cache contents, optionally narrowed to a
// provider and/or model.
type Stats struct {
	TotalEntries          int    `json:"total_entries"`
	ActiveEntries         int    `json:"active_entries"`
	ExpiredEntries        int    `json:"expired_entries"`
	TotalHits             int    `json:"total_hits"`
	TotalPromptTokens     int    `json:"total_prompt_tokens"`
	TotalCompletionTokens int    `json:"total_completion_tokens"`
	StorageType           string `json:"storage_type"`
}

// Store is the storage strategy behind the cache service. Two
// implementations exist: MemoryStore for single-process deployments and
// tests, SQLStore for durable multi-instance deployments. Which one is
// active is decided at construction time; callers only ever see this
// interface.
type Store interface {
	// Get returns the live entry for key, recording the hit (hit_count
	// increment plus last_accessed_at update) as one logical update.
	// Non-empty provider/model must match the stored entry. An absent,
	// expired, or mismatched entry yields ErrCacheMiss; expired entries
	// are lazily purged.
	Get(ctx context.Context, key, provider, model string) (*Entry, error)

	// Set stores the entry, overwriting any previous entry for its key.
	Set(ctx context.Context, entry *Entry) error

	// Invalidate deletes entries matching the filter and returns how
	// many were removed. An empty filter deletes nothing.
	Invalidate(ctx context.Context, f Filter) (int, error)

	// CleanupExpired deletes all expired entries; idempotent.
	CleanupExpired(ctx context.Context) (int, error)

	// Stats summarizes contents, narrowed by non-empty provider/model.
	Stats(ctx context.Context, provider, model string) (*Stats, error)

	// Close releases backend resources.
	Close() error
}
