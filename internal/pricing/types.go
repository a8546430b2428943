// Package pricing holds the shared data model of the pricing core: instruments,
// provider assignments, price points and the error taxonomy reported per item
// by bulk operations.
package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricingcore/internal/date"
)

// InstrumentKind distinguishes how an instrument is priced.
type InstrumentKind string

const (
	// KindProviderPriced instruments get their series from an external data
	// source through a provider assignment.
	KindProviderPriced InstrumentKind = "provider"
	// KindScheduleValued instruments carry no market quote and are valued
	// analytically from principal and an interest schedule.
	KindScheduleValued InstrumentKind = "schedule"
)

// IdentifierKind names the namespace of a provider-specific identifier.
type IdentifierKind string

const (
	IdentifierTicker IdentifierKind = "ticker"
	IdentifierISIN   IdentifierKind = "isin"
	IdentifierNative IdentifierKind = "native" // provider's own id space
)

// Instrument is owned by the calling application and read-only here.
type Instrument struct {
	ID       uuid.UUID
	Name     string
	Currency string
	Kind     InstrumentKind
}

// ProviderAssignment links an instrument to the provider that prices it.
// At most one exists per instrument.
type ProviderAssignment struct {
	InstrumentID   uuid.UUID
	ProviderCode   string
	Identifier     string
	IdentifierKind IdentifierKind
	Config         map[string]string
	LastFetch      time.Time
	FetchInterval  time.Duration
}

// PricePoint is one date-indexed price row. Close is the only mandatory
// component; OHLC extremes and volume are optional.
type PricePoint struct {
	Date       date.Date
	Open       *decimal.Decimal
	High       *decimal.Decimal
	Low        *decimal.Decimal
	Close      decimal.Decimal
	Volume     *decimal.Decimal
	Currency   string
	Provenance string
}

// BackwardFill annotates a query result served from an earlier date. It is
// attached at query time only and never persisted; an exact match carries none.
type BackwardFill struct {
	ActualDate date.Date
	DaysBack   int
}

// QueryPoint is one per-date entry of a query result. A date with nothing at
// or before it carries a KindNoData error instead of a point; other dates in
// the same range are unaffected.
type QueryPoint struct {
	Date  date.Date
	Point PricePoint
	Fill  *BackwardFill
	Err   error
}

// Candidate is one provider search hit.
type Candidate struct {
	Identifier     string
	IdentifierKind IdentifierKind
	Name           string
	Currency       string
	Exchange       string
}

// InstrumentAttributes is the optional metadata enrichment a provider may
// return. All fields are partial; nil pointers mean "not supplied".
type InstrumentAttributes struct {
	Name     *string
	Currency *string
	Symbol   *string
}

// D is shorthand for building decimal literals in callers and tests.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }
