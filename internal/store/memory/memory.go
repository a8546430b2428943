// Package memory is an in-memory Store used by tests and dry runs. Series are
// kept sorted per instrument so reads and fallback lookups stay cheap.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	series      map[uuid.UUID][]pricing.PricePoint // sorted by date
	assignments map[uuid.UUID]pricing.ProviderAssignment
}

func New() *Store {
	return &Store{
		series:      make(map[uuid.UUID][]pricing.PricePoint),
		assignments: make(map[uuid.UUID]pricing.ProviderAssignment),
	}
}

func (s *Store) UpsertBatch(_ context.Context, rows []store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := make(map[uuid.UUID]struct{})
	for _, r := range rows {
		serie := s.series[r.InstrumentID]
		if i := indexOf(serie, r.Point.Date); i >= 0 {
			serie[i] = r.Point
		} else {
			serie = append(serie, r.Point)
		}
		s.series[r.InstrumentID] = serie
		touched[r.InstrumentID] = struct{}{}
	}
	for id := range touched {
		serie := s.series[id]
		sort.Slice(serie, func(i, j int) bool { return serie[i].Date.Before(serie[j].Date) })
	}
	return nil
}

func (s *Store) DeleteRanges(_ context.Context, ranges []store.DeleteRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range ranges {
		to := r.To
		if to.IsZero() {
			to = r.From
		}
		serie := s.series[r.InstrumentID]
		kept := serie[:0]
		for _, p := range serie {
			if (date.Range{From: r.From, To: to}).Contains(p.Date) {
				continue
			}
			kept = append(kept, p)
		}
		s.series[r.InstrumentID] = kept
	}
	return nil
}

func (s *Store) ReadRange(_ context.Context, instrumentID uuid.UUID, from, to date.Date) ([]pricing.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pricing.PricePoint
	for _, p := range s.series[instrumentID] {
		if p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) LatestOnOrBefore(_ context.Context, instrumentID uuid.UUID, day date.Date) (pricing.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	serie := s.series[instrumentID]
	// First index strictly after day; the answer sits just before it.
	i := sort.Search(len(serie), func(i int) bool { return serie[i].Date.After(day) })
	if i == 0 {
		return pricing.PricePoint{}, pricing.Errorf(pricing.KindNoData,
			"no price at or before %s for instrument %s", day, instrumentID)
	}
	return serie[i-1], nil
}

func (s *Store) UpsertAssignments(_ context.Context, assignments []pricing.ProviderAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range assignments {
		s.assignments[a.InstrumentID] = a
	}
	return nil
}

func (s *Store) DeleteAssignments(_ context.Context, instrumentIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range instrumentIDs {
		delete(s.assignments, id)
	}
	return nil
}

func (s *Store) GetAssignments(_ context.Context, instrumentIDs []uuid.UUID) (map[uuid.UUID]pricing.ProviderAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]pricing.ProviderAssignment, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if a, ok := s.assignments[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func indexOf(serie []pricing.PricePoint, day date.Date) int {
	for i, p := range serie {
		if p.Date == day {
			return i
		}
	}
	return -1
}

var _ store.Store = (*Store)(nil)
