// Package memory is an in-memory instrument directory used by tests and the
// standalone binary. Schedules are kept in their persisted wire shape and
// parsed on read, so configuration errors surface the same way they would
// from a real backing store.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pricingcore/internal/directory"
	"pricingcore/internal/pricing"
	"pricingcore/internal/valuation"
)

type Directory struct {
	mu          sync.RWMutex
	instruments map[uuid.UUID]pricing.Instrument
	schedules   map[uuid.UUID][]byte
	payouts     map[uuid.UUID][]valuation.Payout
}

func New() *Directory {
	return &Directory{
		instruments: make(map[uuid.UUID]pricing.Instrument),
		schedules:   make(map[uuid.UUID][]byte),
		payouts:     make(map[uuid.UUID][]valuation.Payout),
	}
}

// SetInstrument adds or replaces an instrument.
func (d *Directory) SetInstrument(inst pricing.Instrument) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instruments[inst.ID] = inst
}

// SetSchedule stores the raw schedule configuration for an instrument.
func (d *Directory) SetSchedule(id uuid.UUID, raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schedules[id] = raw
}

// SetPayouts replaces the recorded payouts for an instrument.
func (d *Directory) SetPayouts(id uuid.UUID, payouts []valuation.Payout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payouts[id] = payouts
}

func (d *Directory) Instrument(_ context.Context, id uuid.UUID) (pricing.Instrument, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	inst, ok := d.instruments[id]
	if !ok {
		return pricing.Instrument{}, pricing.Errorf(pricing.KindNotFound, "instrument %s not found", id)
	}
	return inst, nil
}

func (d *Directory) Valuation(_ context.Context, id uuid.UUID) (*valuation.Schedule, []valuation.Payout, error) {
	d.mu.RLock()
	raw, ok := d.schedules[id]
	payouts := d.payouts[id]
	d.mu.RUnlock()
	if !ok {
		return nil, nil, pricing.Errorf(pricing.KindNotFound, "no schedule configured for instrument %s", id)
	}
	sched, _, err := valuation.ParseSchedule(raw)
	if err != nil {
		return nil, nil, err
	}
	return sched, payouts, nil
}

var _ directory.Directory = (*Directory)(nil)
