package cache

import (
	"encoding/json"
	"fmt"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// DeriveKey turns a logical completion request into a stable cache key:
// the SHA-256 hex digest of a canonical JSON structure. Messages are
// reduced to role and content (name never participates in the primary
// key), and temperature/max_tokens enter the structure only when the
// caller actually supplied them, so an omitted parameter can never
// collide with an explicit default.
func DeriveKey(messages []models.Message, provider, model string, temperature *float64, maxTokens *int) (string, error) {
	payload := map[string]interface{}{
		"messages": canonicalMessages(messages),
		"provider": provider,
		"model":    model,
	}
	if temperature != nil {
		payload["temperature"] = *temperature
	}
	if maxTokens != nil {
		payload["max_tokens"] = *maxTokens
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheKey, err)
	}
	return utils.HashBytes(data), nil
}

// KeyForRequest derives the cache key for a request envelope.
func KeyForRequest(req *models.CompletionRequest) (string, error) {
	return DeriveKey(req.Messages, req.Provider, req.Model, req.Temperature, req.MaxTokens)
}

// PromptHash digests only the conversation itself, independent of
// provider, model, and generation parameters. It is stored next to each
// entry so an operator can verify a cached response still belongs to
// the prompt that produced it.
func PromptHash(messages []models.Message) (string, error) {
	data, err := json.Marshal(map[string]interface{}{
		"messages": canonicalMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCacheKey, err)
	}
	return utils.HashBytes(data), nil
}

// canonicalMessages reduces messages to their key-relevant fields.
// encoding/json writes map keys in sorted order, which keeps the
// serialization stable regardless of field declaration order.
func canonicalMessages(messages []models.Message) []map[string]string {
	out := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]string{
			"role":    m.Role,
			"content": m.Content,
		})
	}
	return out
}
