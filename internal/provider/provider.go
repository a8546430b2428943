// Package provider defines the capability contract every price source
// implements plus the registry that makes sources discoverable by code.
package provider

import (
	"context"
	"errors"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
)

// Typed errors every provider maps its upstream failures to. Callers assume
// no partial result on error.
var (
	// ErrNotAvailable: the upstream source cannot be reached or answered
	// with a server-side failure.
	ErrNotAvailable = errors.New("provider not available")
	// ErrNoData: the source answered but holds nothing for the request.
	ErrNoData = errors.New("no data for request")
	// ErrInvalidParameters: the identifier, identifier kind or config is not
	// acceptable to this provider.
	ErrInvalidParameters = errors.New("invalid provider parameters")
	// ErrRateLimited: the source rejected the call for quota reasons.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrUnsupported: the provider does not implement this optional capability.
	ErrUnsupported = errors.New("operation not supported by provider")
)

// Ref is everything a provider needs to address one instrument.
type Ref struct {
	Identifier     string
	IdentifierKind pricing.IdentifierKind
	Config         map[string]string
}

// Provider is the capability interface of a price source. CurrentValue and
// HistoricalSeries are mandatory; Search and Metadata are optional and return
// ErrUnsupported when a source does not implement them.
//
// Providers must be side-effect-free beyond short-lived internal caches.
type Provider interface {
	// Code is the stable registration key, e.g. "coingecko".
	Code() string
	// DisplayName is the human-readable provider name.
	DisplayName() string

	CurrentValue(ctx context.Context, ref Ref) (pricing.PricePoint, error)
	HistoricalSeries(ctx context.Context, ref Ref, start, end date.Date) ([]pricing.PricePoint, error)

	Search(ctx context.Context, query string) ([]pricing.Candidate, error)
	Metadata(ctx context.Context, ref Ref) (*pricing.InstrumentAttributes, error)
}

// ValidateRef performs the checks common to all providers before a call goes
// out: a non-empty identifier and kind.
func ValidateRef(ref Ref) error {
	if ref.Identifier == "" {
		return errors.New("empty identifier")
	}
	if ref.IdentifierKind == "" {
		return errors.New("empty identifier kind")
	}
	return nil
}
