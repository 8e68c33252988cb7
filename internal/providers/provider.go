// Package providers contains the upstream completion clients. Each
// client normalizes one vendor API onto models.CompletionResponse; all
// retry and fallback decisions live in the dispatch package.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

const defaultTimeout = 60 * time.Second

// Provider is implemented by each concrete completion backend.
type Provider interface {
	// Name returns the provider identifier used in requests, cache
	// keys and usage records.
	Name() string

	// Complete performs a single non-streaming completion call.
	// Non-2xx responses come back as *APIError.
	Complete(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error)
}

// Config holds the settings shared by all provider clients.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
