package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/storage"
)

func newCacheTestDB(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.Open(storage.Config{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "cache_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLTestStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := NewSQLStore(context.Background(), newCacheTestDB(t))
	require.NoError(t, err)
	return store
}

func TestSQLStoreSchemaIdempotent(t *testing.T) {
	db := newCacheTestDB(t)
	ctx := context.Background()

	_, err := NewSQLStore(ctx, db)
	require.NoError(t, err)
	_, err = NewSQLStore(ctx, db)
	require.NoError(t, err, "schema creation must be idempotent")
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	entry := testEntry("key-1", time.Minute)
	require.NoError(t, store.Set(ctx, entry))

	got, err := store.Get(ctx, "key-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, entry.ResponseContent, got.ResponseContent)
	assert.Equal(t, entry.PromptHash, got.PromptHash)
	assert.Equal(t, 24, got.PromptTokens)
	assert.Equal(t, 8, got.CompletionTokens)
	assert.Equal(t, 1, got.HitCount)
	assert.WithinDuration(t, entry.CreatedAt, got.CreatedAt, 2*time.Second)
	assert.WithinDuration(t, entry.ExpiresAt, got.ExpiresAt, 2*time.Second)
}

func TestSQLStoreHitCountPersists(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("key-1", time.Minute)))

	var last *Entry
	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, "key-1", "", "")
		require.NoError(t, err)
		last = got
	}
	assert.Equal(t, 3, last.HitCount)

	stats, err := store.Stats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalHits)
}

func TestSQLStoreMissAndExpiry(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "absent", "", "")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, testEntry("stale", -time.Minute)))

	_, err = store.Get(ctx, "stale", "", "")
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats, err := store.Stats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEntries, "expired entry should be purged on the missed lookup")
}

func TestSQLStoreProviderModelFilter(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("key-1", time.Minute)))

	_, err := store.Get(ctx, "key-1", "anthropic", "")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = store.Get(ctx, "key-1", "", "gpt-4o-mini")
	assert.ErrorIs(t, err, ErrCacheMiss)

	got, err := store.Get(ctx, "key-1", "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 1, got.HitCount, "mismatched reads must not count as hits")
}

func TestSQLStoreUpsert(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("key-1", time.Minute)))
	_, err := store.Get(ctx, "key-1", "", "")
	require.NoError(t, err)

	replacement := testEntry("key-1", time.Minute)
	replacement.ResponseContent = "Paris, the City of Light."
	require.NoError(t, store.Set(ctx, replacement))

	got, err := store.Get(ctx, "key-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Paris, the City of Light.", got.ResponseContent)
	assert.Equal(t, 1, got.HitCount, "overwrite resets the counter")

	stats, err := store.Stats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries, "upsert must not duplicate the row")
}

func TestSQLStoreInvalidate(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *SQLStore {
		t.Helper()
		store := newSQLTestStore(t)
		a := testEntry("key-a", time.Minute)
		b := testEntry("key-b", time.Minute)
		b.Provider = "anthropic"
		b.Model = "claude-3-haiku"
		c := testEntry("key-c", time.Minute)
		c.Model = "gpt-4o-mini"
		for _, e := range []*Entry{a, b, c} {
			require.NoError(t, store.Set(ctx, e))
		}
		return store
	}

	t.Run("by key", func(t *testing.T) {
		store := seed(t)
		removed, err := store.Invalidate(ctx, Filter{Key: "key-a"})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		removed, err = store.Invalidate(ctx, Filter{Key: "key-a"})
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})

	t.Run("empty filter removes nothing", func(t *testing.T) {
		store := seed(t)
		removed, err := store.Invalidate(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})

	t.Run("provider or model", func(t *testing.T) {
		store := seed(t)
		removed, err := store.Invalidate(ctx, Filter{Provider: "anthropic", Model: "gpt-4o-mini"})
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = store.Get(ctx, "key-a", "", "")
		assert.NoError(t, err, "entries outside the filter must survive")
	})

	t.Run("older than", func(t *testing.T) {
		store := seed(t)
		old := testEntry("key-old", time.Minute)
		old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
		require.NoError(t, store.Set(ctx, old))

		cutoff := time.Now().UTC().Add(-time.Hour)
		removed, err := store.Invalidate(ctx, Filter{OlderThan: &cutoff})
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})
}

func TestSQLStoreCleanupExpired(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testEntry("live", time.Minute)))
	require.NoError(t, store.Set(ctx, testEntry("dead-1", -time.Second)))
	require.NoError(t, store.Set(ctx, testEntry("dead-2", -time.Hour)))

	removed, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats, err := store.Stats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.ActiveEntries)
}

func TestSQLStoreStats(t *testing.T) {
	store := newSQLTestStore(t)
	ctx := context.Background()

	a := testEntry("key-a", time.Minute)
	b := testEntry("key-b", time.Minute)
	b.Provider = "anthropic"
	b.Model = "claude-3-haiku"
	dead := testEntry("key-dead", -time.Minute)
	for _, e := range []*Entry{a, b, dead} {
		require.NoError(t, store.Set(ctx, e))
	}

	for i := 0; i < 2; i++ {
		_, err := store.Get(ctx, "key-a", "", "")
		require.NoError(t, err)
	}

	stats, err := store.Stats(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.ActiveEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)
	assert.Equal(t, 2, stats.TotalHits)
	assert.Equal(t, 72, stats.TotalPromptTokens)
	assert.Equal(t, 24, stats.TotalCompletionTokens)
	assert.Equal(t, StorageTypeDatabase, stats.StorageType)

	narrowed, err := store.Stats(ctx, "anthropic", "")
	require.NoError(t, err)
	assert.Equal(t, 1, narrowed.TotalEntries)
}

// TestSQLStorePostgresIntegration exercises the postgres dialect. It only
// runs when DATABASE_URL is set.
func TestSQLStorePostgresIntegration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}

	db, err := storage.Open(storage.Config{
		Driver: storage.DriverPostgres,
		DSN:    dsn,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	store, err := NewSQLStore(ctx, db)
	require.NoError(t, err)

	key := "itest-" + uuid.NewString()
	entry := testEntry(key, time.Minute)
	require.NoError(t, store.Set(ctx, entry))
	t.Cleanup(func() { _, _ = store.Invalidate(ctx, Filter{Key: key}) })

	got, err := store.Get(ctx, key, "openai", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, entry.ResponseContent, got.ResponseContent)
	assert.Equal(t, 1, got.HitCount)

	got, err = store.Get(ctx, key, "", "")
	require.NoError(t, err)
	assert.Equal(t, 2, got.HitCount)
}
