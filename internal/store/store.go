// Package store defines the persistence contract of the pricing core: batched
// price-point upserts and deletes, range reads with a most-recent fallback,
// and provider-assignment bookkeeping. Implementations live in the postgres
// and memory subpackages.
package store

import (
	"context"

	"github.com/google/uuid"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
)

// Row is one persisted price point.
type Row struct {
	InstrumentID uuid.UUID
	Point        pricing.PricePoint
}

// DeleteRange addresses the rows of one instrument between From and To,
// boundaries included. A zero To deletes a single day (From only).
type DeleteRange struct {
	InstrumentID uuid.UUID
	From, To     date.Date
}

// PriceStore is the price-series side of the contract. Batch methods must
// issue as few statements as the backend allows; one bulk call must never
// degrade into one round-trip per row.
type PriceStore interface {
	// UpsertBatch inserts or corrects rows keyed by (instrument, date).
	UpsertBatch(ctx context.Context, rows []Row) error
	// DeleteRanges removes all rows inside each range.
	DeleteRanges(ctx context.Context, ranges []DeleteRange) error
	// ReadRange returns an instrument's rows with From <= date <= To in
	// chronological order. A zero To leaves the upper bound open.
	ReadRange(ctx context.Context, instrumentID uuid.UUID, from, to date.Date) ([]pricing.PricePoint, error)
	// LatestOnOrBefore returns the most recent row at or before day, or a
	// KindNoData error when the instrument has nothing that early.
	LatestOnOrBefore(ctx context.Context, instrumentID uuid.UUID, day date.Date) (pricing.PricePoint, error)
}

// AssignmentStore keeps the instrument-to-provider links. At most one
// assignment exists per instrument; upserting replaces.
type AssignmentStore interface {
	UpsertAssignments(ctx context.Context, assignments []pricing.ProviderAssignment) error
	DeleteAssignments(ctx context.Context, instrumentIDs []uuid.UUID) error
	// GetAssignments resolves assignments for the given instruments. Missing
	// instruments are simply absent from the result map.
	GetAssignments(ctx context.Context, instrumentIDs []uuid.UUID) (map[uuid.UUID]pricing.ProviderAssignment, error)
}

// Store is the full persistence surface the pricing manager depends on.
type Store interface {
	PriceStore
	AssignmentStore
}
