// Package ratelimit decorates a provider with a client-side request budget so
// bulk refreshes do not overwhelm an upstream API.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
)

// Limited wraps a provider and gates every outgoing capability call through a
// token bucket. A blocked call waits for a token or returns early when the
// context is canceled.
type Limited struct {
	P       provider.Provider
	limiter *rate.Limiter
}

// New builds a decorator allowing requestsPerMinute sustained calls with the
// given burst. Non-positive inputs disable limiting.
func New(p provider.Provider, requestsPerMinute, burst int) *Limited {
	var l *rate.Limiter
	if requestsPerMinute > 0 {
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst)
	}
	return &Limited{P: p, limiter: l}
}

func (l *Limited) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

func (l *Limited) Code() string        { return l.P.Code() }
func (l *Limited) DisplayName() string { return l.P.DisplayName() }

func (l *Limited) CurrentValue(ctx context.Context, ref provider.Ref) (pricing.PricePoint, error) {
	if err := l.wait(ctx); err != nil {
		return pricing.PricePoint{}, err
	}
	return l.P.CurrentValue(ctx, ref)
}

func (l *Limited) HistoricalSeries(ctx context.Context, ref provider.Ref, start, end date.Date) ([]pricing.PricePoint, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.P.HistoricalSeries(ctx, ref, start, end)
}

func (l *Limited) Search(ctx context.Context, query string) ([]pricing.Candidate, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.P.Search(ctx, query)
}

func (l *Limited) Metadata(ctx context.Context, ref provider.Ref) (*pricing.InstrumentAttributes, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.P.Metadata(ctx, ref)
}

var _ provider.Provider = (*Limited)(nil)
