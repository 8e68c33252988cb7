package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/tokens"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient talks to the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIClient creates an OpenAI provider client.
func NewOpenAIClient(config Config) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("api key is required for the openai provider")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	return &OpenAIClient{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		client:  newHTTPClient(config.Timeout),
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIClient) Name() string {
	return "openai"
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type openAIRequest struct {
	Model            string          `json:"model"`
	Messages         []openAIMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	User             string          `json:"user,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		// Newer endpoints report these names instead.
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request to OpenAI.
func (p *OpenAIClient) Complete(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	start := time.Now()

	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openAIMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}

	body, err := json.Marshal(openAIRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stop:             req.Stop,
		User:             req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(p.Name(), resp.StatusCode, respBody)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("openai: failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: openai response contained no choices", ErrCompletion)
	}

	choice := parsed.Choices[0]
	promptTokens := parsed.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = parsed.Usage.InputTokens
	}
	completionTokens := parsed.Usage.CompletionTokens
	if completionTokens == 0 {
		completionTokens = parsed.Usage.OutputTokens
	}
	usage, err := normalizeUsage(req.Messages, choice.Message.Content, promptTokens, completionTokens)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	finishReason := choice.FinishReason
	if finishReason == "" {
		finishReason = models.FinishReasonStop
	}

	return &models.CompletionResponse{
		Content:      choice.Message.Content,
		Model:        model,
		Provider:     p.Name(),
		Usage:        usage,
		FinishReason: finishReason,
		CreatedAt:    time.Now().UTC(),
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

// normalizeUsage fills in estimated token counts when the provider
// omits them from the response.
func normalizeUsage(messages []models.Message, content string, promptTokens, completionTokens int) (models.Usage, error) {
	if promptTokens == 0 {
		estimated, err := tokens.EstimateMessages(messages)
		if err != nil {
			return models.Usage{}, err
		}
		promptTokens = estimated
	}
	if completionTokens == 0 && content != "" {
		completionTokens = tokens.Estimate(content)
	}
	return models.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}
