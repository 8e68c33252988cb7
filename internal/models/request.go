package models

import "fmt"

// CompletionRequest is the envelope upstream callers hand to the
// orchestrator. Generation parameters are pointers so that an omitted
// parameter stays distinguishable from an explicit zero value; the
// distinction feeds straight into cache-key derivation.
type CompletionRequest struct {
	Messages []Message `json:"messages"`

	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`

	// UseCache defaults to true when absent from the wire.
	UseCache *bool `json:"use_cache,omitempty"`
	Stream   bool  `json:"stream,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// CacheEnabled reports whether the caller allows cache reads and writes
// for this request.
func (r *CompletionRequest) CacheEnabled() bool {
	return r.UseCache == nil || *r.UseCache
}

// Validate checks the request is well-formed enough to dispatch.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request must contain at least one message")
	}
	for i, m := range r.Messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive when set")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}
