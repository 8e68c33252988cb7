package dispatch

import "errors"

var (
	// ErrNoProvidersAvailable means the dispatcher ran out of
	// providers without a single success.
	ErrNoProvidersAvailable = errors.New("all providers exhausted")

	// ErrProviderUnavailable means the shared retry budget ran out
	// before the provider list did.
	ErrProviderUnavailable = errors.New("no provider could service the request")
)
