package cache

import "errors"

var (
	// ErrCacheMiss is returned when no live entry exists for a key
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheKey is returned when a request cannot be canonicalized
	// and hashed into a cache key
	ErrCacheKey = errors.New("cache key derivation failed")

	// ErrEntryExpired is returned by explicit expired-access paths,
	// distinct from a plain miss
	ErrEntryExpired = errors.New("cache entry expired")
)
