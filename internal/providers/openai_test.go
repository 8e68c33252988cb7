package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func completionRequest() *models.CompletionRequest {
	return &models.CompletionRequest{
		Messages: []models.Message{
			{Role: models.RoleSystem, Content: "You are a helpful assistant."},
			{Role: models.RoleUser, Content: "What is the capital of France?"},
		},
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: floatPtr(0.7),
		MaxTokens:   intPtr(256),
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])
		assert.Len(t, body["messages"], 2)
		assert.Equal(t, 0.7, body["temperature"])
		assert.Equal(t, float64(256), body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"model": "gpt-4o-2024-08-06",
			"choices": [{
				"message": {"role": "assistant", "content": "The capital of France is Paris."},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 24, "completion_tokens": 8, "total_tokens": 32}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), completionRequest())
	require.NoError(t, err)
	assert.Equal(t, "The capital of France is Paris.", resp.Content)
	assert.Equal(t, "gpt-4o-2024-08-06", resp.Model)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, models.FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 24, resp.Usage.PromptTokens)
	assert.Equal(t, 8, resp.Usage.CompletionTokens)
	assert.Equal(t, 32, resp.Usage.TotalTokens)
	assert.False(t, resp.Cached)
	assert.GreaterOrEqual(t, resp.LatencyMS, int64(0))
}

func TestOpenAIClientOmitsUnsetSamplingParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "temperature")
		assert.NotContains(t, body, "max_tokens")
		assert.NotContains(t, body, "top_p")
		assert.NotContains(t, body, "stop")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "Paris."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 24, "completion_tokens": 3, "total_tokens": 27}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	req := completionRequest()
	req.Temperature = nil
	req.MaxTokens = nil

	_, err = client.Complete(context.Background(), req)
	require.NoError(t, err)
}

func TestOpenAIClientAlternativeUsageFieldNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "Paris."}, "finish_reason": "stop"}],
			"usage": {"input_tokens": 24, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), completionRequest())
	require.NoError(t, err)
	assert.Equal(t, 24, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	assert.Equal(t, 27, resp.Usage.TotalTokens)
}

func TestOpenAIClientEstimatesMissingUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o",
			"choices": [{"message": {"role": "assistant", "content": "The capital of France is Paris."}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), completionRequest())
	require.NoError(t, err)
	assert.Greater(t, resp.Usage.PromptTokens, 0, "prompt tokens should be estimated when the provider omits usage")
	assert.Greater(t, resp.Usage.CompletionTokens, 0, "completion tokens should be estimated when the provider omits usage")
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestOpenAIClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"type": "rate_limit_error", "message": "Rate limit exceeded"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "openai", apiErr.Provider)
	assert.Equal(t, "Rate limit exceeded", apiErr.Message)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model": "gpt-4o", "choices": []}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), completionRequest())
	assert.ErrorIs(t, err, ErrCompletion)
	assert.ErrorContains(t, err, "no choices")
}

func TestNewOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient(Config{})
	assert.Error(t, err)
}
