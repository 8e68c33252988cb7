package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"

	// The messages API requires max_tokens; applied when the request
	// leaves it unset.
	anthropicDefaultMaxTokens = 1024
)

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropicClient creates an Anthropic provider client.
func NewAnthropicClient(config Config) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api key is required for the anthropic provider")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}

	return &AnthropicClient{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		client:  newHTTPClient(config.Timeout),
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicClient) Name() string {
	return "anthropic"
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a completion request to the Anthropic messages API.
func (p *AnthropicClient) Complete(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	start := time.Now()

	system, messages := splitSystemPrompt(req.Messages)

	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body, err := json.Marshal(anthropicRequest{
		Model:         req.Model,
		System:        system,
		Messages:      messages,
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(p.Name(), resp.StatusCode, respBody)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: failed to decode response: %w", err)
	}

	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("%w: anthropic response contained no text content", ErrCompletion)
	}

	usage, err := normalizeUsage(req.Messages, content.String(), parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}

	return &models.CompletionResponse{
		Content:      content.String(),
		Model:        model,
		Provider:     p.Name(),
		Usage:        usage,
		FinishReason: finishReasonFromStop(parsed.StopReason),
		CreatedAt:    time.Now().UTC(),
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

// splitSystemPrompt pulls system messages out of the conversation; the
// messages API carries them in a dedicated field and rejects the
// system role inside the messages array.
func splitSystemPrompt(msgs []models.Message) (string, []anthropicMessage) {
	var system []string
	messages := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return strings.Join(system, "\n\n"), messages
}

func finishReasonFromStop(stopReason string) string {
	switch stopReason {
	case "", "end_turn", "stop_sequence":
		return models.FinishReasonStop
	case "max_tokens":
		return models.FinishReasonLength
	default:
		return stopReason
	}
}
