package cache

import (
	"errors"
	"math"
	"regexp"
	"testing"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

var hexKeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func sampleMessages() []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: "You are a helpful assistant."},
		{Role: models.RoleUser, Content: "What is the capital of France?"},
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	msgs := sampleMessages()

	first, err := DeriveKey(msgs, "openai", "gpt-4o", floatPtr(0.7), intPtr(256))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	second, err := DeriveKey(msgs, "openai", "gpt-4o", floatPtr(0.7), intPtr(256))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	if first != second {
		t.Errorf("same inputs produced different keys: %s vs %s", first, second)
	}
	if !hexKeyPattern.MatchString(first) {
		t.Errorf("key %q is not 64 lowercase hex chars", first)
	}
}

func TestDeriveKeySensitivity(t *testing.T) {
	msgs := sampleMessages()
	base, err := DeriveKey(msgs, "openai", "gpt-4o", floatPtr(0.7), intPtr(256))
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	tests := []struct {
		name        string
		messages    []models.Message
		provider    string
		model       string
		temperature *float64
		maxTokens   *int
	}{
		{"different provider", msgs, "anthropic", "gpt-4o", floatPtr(0.7), intPtr(256)},
		{"different model", msgs, "openai", "gpt-4o-mini", floatPtr(0.7), intPtr(256)},
		{"different temperature", msgs, "openai", "gpt-4o", floatPtr(0.8), intPtr(256)},
		{"omitted temperature", msgs, "openai", "gpt-4o", nil, intPtr(256)},
		{"different max tokens", msgs, "openai", "gpt-4o", floatPtr(0.7), intPtr(512)},
		{"omitted max tokens", msgs, "openai", "gpt-4o", floatPtr(0.7), nil},
		{"different content", []models.Message{
			{Role: models.RoleSystem, Content: "You are a helpful assistant."},
			{Role: models.RoleUser, Content: "What is the capital of Spain?"},
		}, "openai", "gpt-4o", floatPtr(0.7), intPtr(256)},
		{"reordered messages", []models.Message{
			{Role: models.RoleUser, Content: "What is the capital of France?"},
			{Role: models.RoleSystem, Content: "You are a helpful assistant."},
		}, "openai", "gpt-4o", floatPtr(0.7), intPtr(256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.messages, tt.provider, tt.model, tt.temperature, tt.maxTokens)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if key == base {
				t.Errorf("expected a different key for %s", tt.name)
			}
		})
	}
}

func TestDeriveKeyZeroTemperatureDistinctFromOmitted(t *testing.T) {
	msgs := sampleMessages()

	zero, err := DeriveKey(msgs, "openai", "gpt-4o", floatPtr(0), nil)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}
	omitted, err := DeriveKey(msgs, "openai", "gpt-4o", nil, nil)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	if zero == omitted {
		t.Error("temperature 0 and omitted temperature must derive different keys")
	}
}

func TestDeriveKeyRejectsNaNTemperature(t *testing.T) {
	_, err := DeriveKey(sampleMessages(), "openai", "gpt-4o", floatPtr(math.NaN()), nil)
	if !errors.Is(err, ErrCacheKey) {
		t.Errorf("DeriveKey() error = %v, want ErrCacheKey", err)
	}
}

func TestKeyForRequestMatchesDeriveKey(t *testing.T) {
	req := &models.CompletionRequest{
		Messages:    sampleMessages(),
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: floatPtr(0.7),
		MaxTokens:   intPtr(256),
	}

	fromReq, err := KeyForRequest(req)
	if err != nil {
		t.Fatalf("KeyForRequest() error = %v", err)
	}
	direct, err := DeriveKey(req.Messages, req.Provider, req.Model, req.Temperature, req.MaxTokens)
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	if fromReq != direct {
		t.Errorf("KeyForRequest() = %s, want %s", fromReq, direct)
	}
}

func TestPromptHashIgnoresSamplingParameters(t *testing.T) {
	msgs := sampleMessages()

	first, err := PromptHash(msgs)
	if err != nil {
		t.Fatalf("PromptHash() error = %v", err)
	}
	second, err := PromptHash(msgs)
	if err != nil {
		t.Fatalf("PromptHash() error = %v", err)
	}
	if first != second {
		t.Errorf("same messages produced different prompt hashes: %s vs %s", first, second)
	}
	if !hexKeyPattern.MatchString(first) {
		t.Errorf("prompt hash %q is not 64 lowercase hex chars", first)
	}

	other, err := PromptHash([]models.Message{
		{Role: models.RoleUser, Content: "Completely different prompt."},
	})
	if err != nil {
		t.Fatalf("PromptHash() error = %v", err)
	}
	if first == other {
		t.Error("different messages produced the same prompt hash")
	}
}
