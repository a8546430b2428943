package pricing

import (
	"sort"

	"pricingcore/internal/date"
)

// Dedupe collapses a fetched series to at most one PricePoint per date and
// returns it sorted chronologically. For duplicate dates the later input wins,
// which gives priority to the freshest data a provider returned.
func Dedupe(points []PricePoint) []PricePoint {
	byDate := make(map[date.Date]PricePoint, len(points))
	for _, p := range points {
		byDate[p.Date] = p
	}
	out := make([]PricePoint, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ClampRange drops points falling outside [from, to]. A zero `to` leaves the
// upper bound open.
func ClampRange(points []PricePoint, from, to date.Date) []PricePoint {
	out := make([]PricePoint, 0, len(points))
	for _, p := range points {
		if p.Date.Before(from) {
			continue
		}
		if !to.IsZero() && p.Date.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}
