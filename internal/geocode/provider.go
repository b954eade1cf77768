// internal/geocode/provider.go
package geocode

import (
	"context"
	"errors"

	"cohort-intake/internal/models"
)

var (
	// ErrAuthFailed marks a provider rejecting its credentials or failing to
	// initialize. The resolver treats it as permanent for the session.
	ErrAuthFailed = errors.New("GEOCODE_AUTH_FAILED")

	// ErrSearchFailed marks a transient per-query provider failure.
	ErrSearchFailed = errors.New("GEOCODE_SEARCH_FAILED")
)

// PrimaryProvider is the capability surface an interactive map SDK adapter
// must implement. Wrapping the SDK behind this interface lets the resolver
// treat all provider tiers uniformly.
type PrimaryProvider interface {
	// Search resolves free text through the SDK's search box. Returns
	// ErrAuthFailed when the SDK never initialized or its key was rejected.
	Search(ctx context.Context, text string) ([]models.GeocodeResult, error)

	// OnPlaceSelected registers the SDK's place-selected callback. A selection
	// made directly in the map UI bypasses the search path entirely.
	OnPlaceSelected(fn func(models.GeocodeResult))

	// OnAuthFailure registers a callback for asynchronous auth failures
	// (e.g. the SDK script reporting a bad key after load).
	OnAuthFailure(fn func(error))
}

// SecondaryProvider is a free-text geocode search against an address index.
// Implementations must honor context cancellation so an in-flight call for a
// superseded query is aborted, not merely ignored.
type SecondaryProvider interface {
	Search(ctx context.Context, text string) ([]models.GeocodeResult, error)
}
