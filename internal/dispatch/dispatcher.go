// Package dispatch walks an ordered provider list until one call
// succeeds. Failures are classified as retryable or fatal; retryable
// failures consume a retry budget shared across the whole sequence,
// fatal failures advance to the next provider for free.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/providers"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// DefaultMaxRetries bounds retryable failures across the whole provider
// sequence, not per provider.
const DefaultMaxRetries = 2

const (
	classRetryable = "retryable"
	classFatal     = "fatal"
)

// Dispatcher performs sequential fallback over configured providers.
// Attempts are never parallel; the first success wins.
type Dispatcher struct {
	providers  []providers.Provider
	maxRetries int
	logger     *utils.Logger
}

// NewDispatcher creates a dispatcher over the given providers, tried in
// slice order unless the request names a preferred provider. A negative
// maxRetries falls back to DefaultMaxRetries.
func NewDispatcher(provs []providers.Provider, maxRetries int, logger *utils.Logger) *Dispatcher {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = utils.NewLogger("dispatch")
	}
	return &Dispatcher{
		providers:  provs,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Dispatch tries each provider in order and returns the first
// successful response. A canceled context aborts immediately without
// touching further providers.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.CompletionRequest) (*models.CompletionResponse, error) {
	ordered := d.orderFor(req)
	if len(ordered) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	budget := d.maxRetries
	var lastErr error

	for _, provider := range ordered {
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("completion aborted: %w", err)
		}

		class := classFatal
		if Retryable(err) {
			class = classRetryable
		}
		d.logger.Warn("provider attempt failed",
			"provider", provider.Name(),
			"model", req.Model,
			"class", class,
			"error", err)

		if class == classFatal {
			continue
		}
		if budget == 0 {
			return nil, fmt.Errorf("%w: retry budget exhausted at %s: %v",
				ErrProviderUnavailable, provider.Name(), err)
		}
		budget--
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrNoProvidersAvailable, lastErr)
}

// orderFor places the request's preferred provider first, keeping the
// configured order for the rest.
func (d *Dispatcher) orderFor(req *models.CompletionRequest) []providers.Provider {
	if req.Provider == "" {
		return d.providers
	}

	ordered := make([]providers.Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Name() == req.Provider {
			ordered = append(ordered, p)
		}
	}
	for _, p := range d.providers {
		if p.Name() != req.Provider {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// Retryable reports whether a failure is transient: rate limits,
// timeouts, provider-side 5xx and network errors. Everything else
// (invalid request, auth failure, unsupported model, malformed
// response) is fatal for the provider that produced it.
func Retryable(err error) bool {
	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
