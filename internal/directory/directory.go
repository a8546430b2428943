// Package directory defines the instrument-directory collaborator. The
// directory is owned by the calling application; the pricing core only reads
// from it.
package directory

import (
	"context"

	"github.com/google/uuid"

	"pricingcore/internal/pricing"
	"pricingcore/internal/valuation"
)

// Directory resolves instruments and, for schedule-valued ones, their
// valuation inputs.
type Directory interface {
	// Instrument returns the instrument for id, or a KindNotFound error.
	Instrument(ctx context.Context, id uuid.UUID) (pricing.Instrument, error)

	// Valuation returns the parsed schedule and recorded payouts for a
	// schedule-valued instrument. KindNotFound when no schedule is configured.
	Valuation(ctx context.Context, id uuid.UUID) (*valuation.Schedule, []valuation.Payout, error)
}
