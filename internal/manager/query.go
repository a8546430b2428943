package manager

import (
	"context"

	"github.com/google/uuid"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/valuation"
)

// ValuationProvenance marks query points computed analytically rather than
// fetched from a provider.
const ValuationProvenance = "valuation"

// Query returns one point per date in [from, to]. Schedule-valued instruments
// are computed by the valuation engine on every call and never persisted;
// provider-backed instruments are read from the store with backward-fill to
// the most recent earlier row when an exact date is missing. A zero to
// queries the single date from.
func (m *Manager) Query(ctx context.Context, instrumentID uuid.UUID, from, to date.Date) ([]pricing.QueryPoint, error) {
	inst, err := m.dir.Instrument(ctx, instrumentID)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = from
	}
	if to.Before(from) {
		return nil, pricing.Errorf(pricing.KindInvalidConfiguration,
			"query range end %s before start %s", to, from)
	}
	if inst.Kind == pricing.KindScheduleValued {
		return m.queryScheduled(ctx, inst, from, to)
	}
	return m.queryStored(ctx, inst, from, to)
}

func (m *Manager) queryScheduled(ctx context.Context, inst pricing.Instrument, from, to date.Date) ([]pricing.QueryPoint, error) {
	sched, payouts, err := m.dir.Valuation(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	eng := valuation.NewEngine(*sched, payouts, m.logger)

	out := make([]pricing.QueryPoint, 0, date.Range{From: from, To: to}.Days())
	date.Range{From: from, To: to}.Each(func(d date.Date) bool {
		out = append(out, pricing.QueryPoint{
			Date: d,
			Point: pricing.PricePoint{
				Date:       d,
				Close:      eng.Value(d),
				Currency:   inst.Currency,
				Provenance: ValuationProvenance,
			},
		})
		return true
	})
	return out, nil
}

func (m *Manager) queryStored(ctx context.Context, inst pricing.Instrument, from, to date.Date) ([]pricing.QueryPoint, error) {
	points, err := m.store.ReadRange(ctx, inst.ID, from, to)
	if err != nil {
		return nil, err
	}
	exact := make(map[date.Date]pricing.PricePoint, len(points))
	for _, p := range points {
		exact[p.Date] = p
	}

	// Anchor for dates before the first in-range row.
	var (
		last    pricing.PricePoint
		hasLast bool
	)
	if _, ok := exact[from]; !ok {
		anchor, err := m.store.LatestOnOrBefore(ctx, inst.ID, from)
		switch {
		case err == nil:
			last, hasLast = anchor, true
		case pricing.KindOf(err) == pricing.KindNoData:
			// Leading dates report no-data individually below.
		default:
			return nil, err
		}
	}

	out := make([]pricing.QueryPoint, 0, date.Range{From: from, To: to}.Days())
	date.Range{From: from, To: to}.Each(func(d date.Date) bool {
		if p, ok := exact[d]; ok {
			last, hasLast = p, true
			out = append(out, pricing.QueryPoint{Date: d, Point: p})
			return true
		}
		if hasLast {
			out = append(out, pricing.QueryPoint{
				Date:  d,
				Point: last,
				Fill:  &pricing.BackwardFill{ActualDate: last.Date, DaysBack: d.Sub(last.Date)},
			})
			return true
		}
		out = append(out, pricing.QueryPoint{
			Date: d,
			Err:  pricing.Errorf(pricing.KindNoData, "no data available at or before %s", d),
		})
		return true
	})
	return out, nil
}
