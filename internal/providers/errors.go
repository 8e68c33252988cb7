package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrCompletion marks responses a provider returned successfully at the
// transport level but that carry no usable completion.
var ErrCompletion = errors.New("completion failed")

// APIError is a non-2xx response from a provider. The dispatcher uses
// the status code to decide between retrying and failing over.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// newAPIError extracts the error message from a vendor error body.
// Both OpenAI and Anthropic nest it under "error.message".
func newAPIError(provider string, statusCode int, body []byte) *APIError {
	var parsed struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	if len(message) > 200 {
		message = message[:200]
	}

	return &APIError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
	}
}
