package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
)

// AssignItem is one requested instrument-to-provider link.
type AssignItem struct {
	InstrumentID   uuid.UUID
	ProviderCode   string
	Identifier     string
	IdentifierKind pricing.IdentifierKind
	Config         map[string]string
	FetchInterval  time.Duration
}

// AssignProviders validates every item against the directory and the registry
// before committing, then writes all surviving assignments in one batched
// store call. Invalid items fail individually and never abort siblings.
func (m *Manager) AssignProviders(ctx context.Context, items []AssignItem) []Result {
	results := make([]Result, len(items))
	var (
		valid    []pricing.ProviderAssignment
		validIdx []int
	)
	for i, it := range items {
		if _, err := m.dir.Instrument(ctx, it.InstrumentID); err != nil {
			results[i] = fail(it.InstrumentID, err)
			continue
		}
		if _, err := m.registry.Lookup(it.ProviderCode); err != nil {
			results[i] = fail(it.InstrumentID, err)
			continue
		}
		ref := provider.Ref{
			Identifier:     it.Identifier,
			IdentifierKind: it.IdentifierKind,
			Config:         it.Config,
		}
		if err := provider.ValidateRef(ref); err != nil {
			results[i] = fail(it.InstrumentID, pricing.Wrap(pricing.KindInvalidConfiguration, err,
				"invalid provider configuration for instrument %s", it.InstrumentID))
			continue
		}
		valid = append(valid, pricing.ProviderAssignment{
			InstrumentID:   it.InstrumentID,
			ProviderCode:   it.ProviderCode,
			Identifier:     it.Identifier,
			IdentifierKind: it.IdentifierKind,
			Config:         it.Config,
			FetchInterval:  it.FetchInterval,
		})
		validIdx = append(validIdx, i)
	}

	if len(valid) > 0 {
		if err := m.store.UpsertAssignments(ctx, valid); err != nil {
			m.log.WithError(err).Error("assignment batch write failed")
			for _, i := range validIdx {
				results[i] = fail(items[i].InstrumentID, fmt.Errorf("persist assignment: %w", err))
			}
			return results
		}
		for _, i := range validIdx {
			results[i] = ok(items[i].InstrumentID,
				fmt.Sprintf("assigned provider %s", items[i].ProviderCode))
		}
	}
	return results
}

// AssignProvider links a single instrument.
func (m *Manager) AssignProvider(ctx context.Context, item AssignItem) Result {
	return m.AssignProviders(ctx, []AssignItem{item})[0]
}

// RemoveProviders unlinks instruments from their providers with one bulk
// delete. Instruments without an assignment fail individually.
func (m *Manager) RemoveProviders(ctx context.Context, instrumentIDs []uuid.UUID) []Result {
	results := make([]Result, len(instrumentIDs))

	assigned, err := m.store.GetAssignments(ctx, instrumentIDs)
	if err != nil {
		for i, id := range instrumentIDs {
			results[i] = fail(id, fmt.Errorf("resolve assignments: %w", err))
		}
		return results
	}

	var (
		toDelete  []uuid.UUID
		deleteIdx []int
	)
	for i, id := range instrumentIDs {
		if _, has := assigned[id]; !has {
			results[i] = fail(id, pricing.Errorf(pricing.KindNotFound,
				"no provider assigned to instrument %s", id))
			continue
		}
		toDelete = append(toDelete, id)
		deleteIdx = append(deleteIdx, i)
	}

	if len(toDelete) > 0 {
		if err := m.store.DeleteAssignments(ctx, toDelete); err != nil {
			for _, i := range deleteIdx {
				results[i] = fail(instrumentIDs[i], fmt.Errorf("delete assignment: %w", err))
			}
			return results
		}
		for _, i := range deleteIdx {
			results[i] = ok(instrumentIDs[i], "provider assignment removed")
		}
	}
	return results
}

// RemoveProvider unlinks a single instrument.
func (m *Manager) RemoveProvider(ctx context.Context, instrumentID uuid.UUID) Result {
	return m.RemoveProviders(ctx, []uuid.UUID{instrumentID})[0]
}
