package manager

import (
	"context"
	"fmt"

	"pricingcore/internal/pricing"
	"pricingcore/internal/store"
)

// ManualProvenance marks rows written through the correction path rather
// than fetched from a provider.
const ManualProvenance = "manual"

// UpsertPrices is the manual correction path: it writes rows directly,
// bypassing providers, with the usual bulk/partial-success shape and a single
// batched store write.
func (m *Manager) UpsertPrices(ctx context.Context, rows []store.Row) []Result {
	results := make([]Result, len(rows))
	var (
		valid    []store.Row
		validIdx []int
	)
	for i, r := range rows {
		if err := validateRow(r); err != nil {
			results[i] = fail(r.InstrumentID, err)
			continue
		}
		if r.Point.Provenance == "" {
			r.Point.Provenance = ManualProvenance
		}
		valid = append(valid, r)
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		if err := m.store.UpsertBatch(ctx, valid); err != nil {
			for _, i := range validIdx {
				results[i] = fail(rows[i].InstrumentID, fmt.Errorf("persist price: %w", err))
			}
			return results
		}
		for _, i := range validIdx {
			results[i] = ok(rows[i].InstrumentID,
				fmt.Sprintf("price for %s written", rows[i].Point.Date))
		}
	}
	return results
}

// UpsertPrice writes a single row.
func (m *Manager) UpsertPrice(ctx context.Context, row store.Row) Result {
	return m.UpsertPrices(ctx, []store.Row{row})[0]
}

// DeletePrices removes rows by date range, one batched delete for the whole
// call. A zero To in a range addresses the single day From.
func (m *Manager) DeletePrices(ctx context.Context, ranges []store.DeleteRange) []Result {
	results := make([]Result, len(ranges))
	var (
		valid    []store.DeleteRange
		validIdx []int
	)
	for i, r := range ranges {
		if err := validateRange(r); err != nil {
			results[i] = fail(r.InstrumentID, err)
			continue
		}
		valid = append(valid, r)
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		if err := m.store.DeleteRanges(ctx, valid); err != nil {
			for _, i := range validIdx {
				results[i] = fail(ranges[i].InstrumentID, fmt.Errorf("delete prices: %w", err))
			}
			return results
		}
		for _, i := range validIdx {
			results[i] = ok(ranges[i].InstrumentID, "prices deleted")
		}
	}
	return results
}

// DeletePrice removes a single range.
func (m *Manager) DeletePrice(ctx context.Context, r store.DeleteRange) Result {
	return m.DeletePrices(ctx, []store.DeleteRange{r})[0]
}

func validateRow(r store.Row) error {
	if r.Point.Date.IsZero() {
		return pricing.Errorf(pricing.KindInvalidConfiguration, "price row without a date")
	}
	if r.Point.Close.IsNegative() {
		return pricing.Errorf(pricing.KindInvalidConfiguration,
			"negative close %s on %s", r.Point.Close, r.Point.Date)
	}
	if r.Point.Currency == "" {
		return pricing.Errorf(pricing.KindInvalidConfiguration,
			"price row for %s without a currency", r.Point.Date)
	}
	return nil
}

func validateRange(r store.DeleteRange) error {
	if r.From.IsZero() {
		return pricing.Errorf(pricing.KindInvalidConfiguration, "delete range without a start date")
	}
	if !r.To.IsZero() && r.To.Before(r.From) {
		return pricing.Errorf(pricing.KindInvalidConfiguration,
			"delete range end %s before start %s", r.To, r.From)
	}
	return nil
}
