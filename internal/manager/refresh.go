package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
	"pricingcore/internal/store"
)

// RefreshItem is one fetch request. A zero From asks for the current value
// only; otherwise the provider's historical series over [From, To] is pulled.
type RefreshItem struct {
	InstrumentID uuid.UUID
	From, To     date.Date
}

// priceFields is the full field-selection vocabulary of a refresh call.
var priceFields = []string{"open", "high", "low", "close", "volume"}

type fetchOutcome struct {
	res  Result
	rows []store.Row
	done bool
}

// RefreshPrices fetches fresh prices for every item through its assigned
// provider. Provider calls run concurrently under the manager's semaphore;
// results come back in input order. All fetched rows are persisted in one
// batched write after the fan-in, so a caller timeout during the fetch phase
// never rolls back what other items already produced.
//
// fields selects which price components the caller wants; empty means all.
func (m *Manager) RefreshPrices(ctx context.Context, items []RefreshItem, fields []string) []Result {
	results := make([]Result, len(items))
	if len(items) == 0 {
		return results
	}

	requested, err := normalizeFields(fields)
	if err != nil {
		for i, it := range items {
			results[i] = fail(it.InstrumentID, err)
		}
		return results
	}

	ids := make([]uuid.UUID, len(items))
	for i, it := range items {
		ids[i] = it.InstrumentID
	}
	assigned, err := m.store.GetAssignments(ctx, ids)
	if err != nil {
		for i, it := range items {
			results[i] = fail(it.InstrumentID, fmt.Errorf("resolve assignments: %w", err))
		}
		return results
	}

	outcomes := make([]fetchOutcome, len(items))
	var wg sync.WaitGroup
	for i := range items {
		it := items[i]
		a, has := assigned[it.InstrumentID]
		if !has {
			outcomes[i] = fetchOutcome{done: true, res: fail(it.InstrumentID,
				pricing.Errorf(pricing.KindNotFound, "no provider assigned"))}
			continue
		}
		prov, err := m.registry.Lookup(a.ProviderCode)
		if err != nil {
			outcomes[i] = fetchOutcome{done: true, res: fail(it.InstrumentID, err)}
			continue
		}
		if err := m.sem.Acquire(ctx, 1); err != nil {
			// Caller deadline hit before this item got a slot; everything
			// from here on reports timed out below.
			break
		}
		wg.Add(1)
		go func(i int, it RefreshItem, a pricing.ProviderAssignment, prov provider.Provider) {
			defer wg.Done()
			defer m.sem.Release(1)
			outcomes[i] = m.fetchOne(ctx, it, a, prov, requested)
		}(i, it, a, prov)
	}
	wg.Wait()

	var (
		rows       []store.Row
		persistIdx []int
		refreshed  []pricing.ProviderAssignment
	)
	for i := range outcomes {
		if !outcomes[i].done {
			outcomes[i].res = fail(items[i].InstrumentID,
				pricing.Errorf(pricing.KindTimeout, "timed out"))
		}
		results[i] = outcomes[i].res
		if outcomes[i].res.Success {
			rows = append(rows, outcomes[i].rows...)
			persistIdx = append(persistIdx, i)
			a := assigned[items[i].InstrumentID]
			a.LastFetch = m.now()
			refreshed = append(refreshed, a)
		}
	}
	if len(rows) == 0 {
		return results
	}

	// Completed fetches are persisted even when the batch deadline expired
	// mid-flight; partial progress is kept, not rolled back.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.store.UpsertBatch(persistCtx, rows); err != nil {
		m.log.WithError(err).Error("price batch write failed")
		for _, i := range persistIdx {
			results[i] = fail(items[i].InstrumentID, fmt.Errorf("persist prices: %w", err))
		}
		return results
	}
	if err := m.store.UpsertAssignments(persistCtx, refreshed); err != nil {
		m.log.WithError(err).Warn("could not record last-fetch timestamps")
	}
	m.log.WithFields(logrus.Fields{"items": len(items), "rows": len(rows)}).
		Info("refresh batch persisted")
	return results
}

// RefreshPrice fetches a single instrument.
func (m *Manager) RefreshPrice(ctx context.Context, item RefreshItem, fields []string) Result {
	return m.RefreshPrices(ctx, []RefreshItem{item}, fields)[0]
}

func (m *Manager) fetchOne(ctx context.Context, it RefreshItem, a pricing.ProviderAssignment, prov provider.Provider, requested map[string]bool) fetchOutcome {
	ref := provider.Ref{
		Identifier:     a.Identifier,
		IdentifierKind: a.IdentifierKind,
		Config:         a.Config,
	}

	var (
		points []pricing.PricePoint
		err    error
	)
	if it.From.IsZero() {
		var p pricing.PricePoint
		p, err = prov.CurrentValue(ctx, ref)
		if err == nil {
			points = []pricing.PricePoint{p}
		}
	} else {
		points, err = prov.HistoricalSeries(ctx, ref, it.From, it.To)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fetchOutcome{done: true, res: fail(it.InstrumentID,
				pricing.Errorf(pricing.KindTimeout, "timed out"))}
		}
		return fetchOutcome{done: true, res: fail(it.InstrumentID, mapProviderErr(err))}
	}
	if len(points) == 0 {
		return fetchOutcome{done: true, res: fail(it.InstrumentID,
			pricing.Errorf(pricing.KindNoData, "provider returned no data"))}
	}

	report := selectFields(points, requested)
	rows := make([]store.Row, len(points))
	for i, p := range points {
		if p.Provenance == "" {
			p.Provenance = prov.Code()
		}
		rows[i] = store.Row{InstrumentID: it.InstrumentID, Point: p}
	}
	res := ok(it.InstrumentID, fmt.Sprintf("fetched %d price point(s)", len(points)))
	res.Fields = report
	return fetchOutcome{done: true, res: res, rows: rows}
}

// mapProviderErr lifts provider sentinel errors into the manager taxonomy.
func mapProviderErr(err error) error {
	switch {
	case errors.Is(err, provider.ErrNoData):
		return pricing.Wrap(pricing.KindNoData, err, "no data for request")
	case errors.Is(err, provider.ErrInvalidParameters):
		return pricing.Wrap(pricing.KindInvalidConfiguration, err, "provider rejected parameters")
	case errors.Is(err, provider.ErrUnsupported):
		return pricing.Wrap(pricing.KindUnsupported, err, "operation not supported")
	case errors.Is(err, provider.ErrRateLimited), errors.Is(err, provider.ErrNotAvailable):
		return pricing.Wrap(pricing.KindProviderUnavailable, err, "provider unavailable")
	default:
		return pricing.Wrap(pricing.KindProviderUnavailable, err, "provider call failed")
	}
}

func normalizeFields(fields []string) (map[string]bool, error) {
	requested := make(map[string]bool, len(priceFields))
	if len(fields) == 0 {
		for _, f := range priceFields {
			requested[f] = true
		}
		return requested, nil
	}
	for _, f := range fields {
		known := false
		for _, k := range priceFields {
			if f == k {
				known = true
				break
			}
		}
		if !known {
			return nil, pricing.Errorf(pricing.KindInvalidConfiguration, "unknown price field %q", f)
		}
		requested[f] = true
	}
	return requested, nil
}

// selectFields strips unrequested optional components from the fetched points
// in place and reports, per field, whether it was updated, requested but not
// supplied by the provider, or not requested at all. Close survives stripping
// since a price row cannot exist without it.
func selectFields(points []pricing.PricePoint, requested map[string]bool) *FieldReport {
	available := map[string]bool{"close": true}
	for i := range points {
		p := &points[i]
		if p.Open != nil {
			available["open"] = true
		}
		if p.High != nil {
			available["high"] = true
		}
		if p.Low != nil {
			available["low"] = true
		}
		if p.Volume != nil {
			available["volume"] = true
		}
		if !requested["open"] {
			p.Open = nil
		}
		if !requested["high"] {
			p.High = nil
		}
		if !requested["low"] {
			p.Low = nil
		}
		if !requested["volume"] {
			p.Volume = nil
		}
	}

	report := &FieldReport{}
	for _, f := range priceFields {
		switch {
		case !requested[f]:
			report.Unrequested = append(report.Unrequested, f)
		case available[f]:
			report.Updated = append(report.Updated, f)
		default:
			report.Unavailable = append(report.Unavailable, f)
		}
	}
	return report
}
