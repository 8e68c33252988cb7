package cache

import (
	"context"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// DefaultTTL applies when the configured TTL is missing or non-positive.
const DefaultTTL = time.Hour

// Service wraps a Store with entry construction and TTL policy. The
// orchestrator talks to the cache exclusively through this type.
type Service struct {
	store      Store
	defaultTTL time.Duration
	logger     *utils.Logger
}

// NewService creates a cache service on top of the given store. A
// non-positive defaultTTL falls back to DefaultTTL.
func NewService(store Store, defaultTTL time.Duration, logger *utils.Logger) *Service {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = utils.NewLogger("cache")
	}
	return &Service{
		store:      store,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get looks up a live entry by key. Provider and model, when non-empty,
// must match the stored entry. Returns ErrCacheMiss when nothing usable
// is found.
func (s *Service) Get(ctx context.Context, key, provider, model string) (*Entry, error) {
	entry, err := s.store.Get(ctx, key, provider, model)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("cache hit", "key", key, "hits", entry.HitCount)
	return entry, nil
}

// Set stores a response under the given key using the default TTL.
func (s *Service) Set(ctx context.Context, key string, req *models.CompletionRequest, resp *models.CompletionResponse) error {
	return s.SetWithTTL(ctx, key, req, resp, s.defaultTTL)
}

// SetWithTTL stores a response with an explicit TTL. A non-positive TTL
// is honored literally: the entry is written already expired and will
// never be served.
func (s *Service) SetWithTTL(ctx context.Context, key string, req *models.CompletionRequest, resp *models.CompletionResponse, ttl time.Duration) error {
	promptHash, err := PromptHash(req.Messages)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := &Entry{
		CacheKey:         key,
		Provider:         req.Provider,
		Model:            req.Model,
		PromptHash:       promptHash,
		ResponseContent:  resp.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		HitCount:         0,
		CreatedAt:        now,
		LastAccessedAt:   now,
		ExpiresAt:        now.Add(ttl),
	}

	if err := s.store.Set(ctx, entry); err != nil {
		return err
	}
	s.logger.Debug("cache store", "key", key, "ttl", ttl.String())
	return nil
}

// Invalidate removes entries matching the filter and returns the count.
func (s *Service) Invalidate(ctx context.Context, f Filter) (int, error) {
	removed, err := s.store.Invalidate(ctx, f)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("cache invalidated", "removed", removed)
	}
	return removed, nil
}

// CleanupExpired purges expired entries and returns the count.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := s.store.CleanupExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Debug("cache cleanup", "removed", removed)
	}
	return removed, nil
}

// Stats reports aggregate counters, optionally narrowed by provider and
// model.
func (s *Service) Stats(ctx context.Context, provider, model string) (*Stats, error) {
	return s.store.Stats(ctx, provider, model)
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}
