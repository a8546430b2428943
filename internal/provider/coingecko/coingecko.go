// Package coingecko prices crypto assets through the CoinGecko REST API.
// Identifiers are CoinGecko coin ids ("bitcoin", "ethereum"); the quote
// currency comes from the per-assignment config key "vs_currency".
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
)

// ProviderCode is the registry key.
const ProviderCode = "coingecko"

type Config struct {
	Name string // display name, default: CoinGecko
	// VsCurrency is the default quote currency when an assignment config
	// carries none. Defaults to "usd".
	VsCurrency string
}

type Provider struct {
	cfg    Config
	client *APIClient
}

func New(cfg Config, client *APIClient) *Provider {
	if cfg.Name == "" {
		cfg.Name = "CoinGecko"
	}
	if cfg.VsCurrency == "" {
		cfg.VsCurrency = "usd"
	}
	return &Provider{cfg: cfg, client: client}
}

func (p *Provider) Code() string        { return ProviderCode }
func (p *Provider) DisplayName() string { return p.cfg.Name }

func (p *Provider) vsCurrency(ref provider.Ref) string {
	if v := ref.Config["vs_currency"]; v != "" {
		return strings.ToLower(v)
	}
	return p.cfg.VsCurrency
}

func (p *Provider) CurrentValue(ctx context.Context, ref provider.Ref) (pricing.PricePoint, error) {
	if err := p.validate(ref); err != nil {
		return pricing.PricePoint{}, err
	}
	vs := p.vsCurrency(ref)
	raw, err := p.client.SimplePrice(ctx, ref.Identifier, vs)
	if err != nil {
		return pricing.PricePoint{}, mapError(err)
	}
	closePx, err := decimal.NewFromString(raw.String())
	if err != nil {
		return pricing.PricePoint{}, fmt.Errorf("%w: unparsable price %q", provider.ErrNoData, raw)
	}
	return pricing.PricePoint{
		Date:       date.Today(),
		Close:      closePx,
		Currency:   strings.ToUpper(vs),
		Provenance: ProviderCode,
	}, nil
}

func (p *Provider) HistoricalSeries(ctx context.Context, ref provider.Ref, start, end date.Date) ([]pricing.PricePoint, error) {
	if err := p.validate(ref); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", provider.ErrInvalidParameters, end, start)
	}
	vs := p.vsCurrency(ref)

	// The range endpoint takes unix seconds; extend the upper bound to the
	// end of the day so the last daily sample is included.
	from := start.Time().Unix()
	to := end.Add(1).Time().Unix()
	samples, err := p.client.MarketChartRange(ctx, ref.Identifier, vs, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	if len(samples) == 0 {
		return nil, provider.ErrNoData
	}

	currency := strings.ToUpper(vs)
	points := make([]pricing.PricePoint, 0, len(samples))
	for _, s := range samples {
		millis, err := s[0].Int64()
		if err != nil {
			continue
		}
		closePx, err := decimal.NewFromString(s[1].String())
		if err != nil {
			continue
		}
		points = append(points, pricing.PricePoint{
			Date:       date.FromTime(time.UnixMilli(millis)),
			Close:      closePx,
			Currency:   currency,
			Provenance: ProviderCode,
		})
	}
	// The API samples intraday; keep one point per day, the freshest winning.
	points = pricing.ClampRange(pricing.Dedupe(points), start, end)
	if len(points) == 0 {
		return nil, provider.ErrNoData
	}
	return points, nil
}

func (p *Provider) Search(ctx context.Context, query string) ([]pricing.Candidate, error) {
	coins, err := p.client.Search(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]pricing.Candidate, 0, len(coins))
	for _, c := range coins {
		out = append(out, pricing.Candidate{
			Identifier:     c.ID,
			IdentifierKind: pricing.IdentifierNative,
			Name:           c.Name,
			Currency:       strings.ToUpper(p.cfg.VsCurrency),
		})
	}
	return out, nil
}

func (p *Provider) Metadata(ctx context.Context, ref provider.Ref) (*pricing.InstrumentAttributes, error) {
	if err := p.validate(ref); err != nil {
		return nil, err
	}
	info, err := p.client.CoinMetadata(ctx, ref.Identifier)
	if err != nil {
		return nil, mapError(err)
	}
	symbol := strings.ToUpper(info.Symbol)
	return &pricing.InstrumentAttributes{Name: &info.Name, Symbol: &symbol}, nil
}

func (p *Provider) validate(ref provider.Ref) error {
	if err := provider.ValidateRef(ref); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrInvalidParameters, err)
	}
	if ref.IdentifierKind != pricing.IdentifierNative {
		return fmt.Errorf("%w: coingecko takes native coin ids, got kind %q", provider.ErrInvalidParameters, ref.IdentifierKind)
	}
	return nil
}

// mapError translates transport failures into the provider error taxonomy.
func mapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", provider.ErrNoData, err)
		case apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", provider.ErrInvalidParameters, err)
		default:
			return fmt.Errorf("%w: %v", provider.ErrNotAvailable, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", provider.ErrNotAvailable, err)
}

var _ provider.Provider = (*Provider)(nil)
