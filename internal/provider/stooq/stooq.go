// Package stooq prices equities and ETFs through the Stooq CSV download
// endpoints. Identifiers are Stooq tickers ("aapl.us", "cspx.uk"). Search and
// metadata are not offered by the upstream and report unsupported.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"pricingcore/internal/date"
	"pricingcore/internal/httpx"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
)

// ProviderCode is the registry key.
const ProviderCode = "stooq"

type Config struct {
	Name string // display name, default: Stooq
	// BaseURL overrides the upstream host, mainly for tests.
	BaseURL string
	// Currency tags returned points; Stooq serves prices in the listing
	// currency without saying which, so the assignment config key
	// "currency" or this default has to supply it.
	Currency string
}

type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "Stooq"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://stooq.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Code() string        { return ProviderCode }
func (p *Provider) DisplayName() string { return p.cfg.Name }

func (p *Provider) currency(ref provider.Ref) string {
	if c := ref.Config["currency"]; c != "" {
		return strings.ToUpper(c)
	}
	return p.cfg.Currency
}

// CurrentValue fetches today's quote row for the ticker.
func (p *Provider) CurrentValue(ctx context.Context, ref provider.Ref) (pricing.PricePoint, error) {
	if err := p.validate(ref); err != nil {
		return pricing.PricePoint{}, err
	}
	q := url.Values{}
	q.Set("s", strings.ToLower(ref.Identifier))
	q.Set("f", "sd2t2ohlcv")
	q.Set("h", "")
	q.Set("e", "csv")

	rows, err := p.fetchCSV(ctx, "/q/l/", q)
	if err != nil {
		return pricing.PricePoint{}, err
	}
	points, err := parseQuoteRows(rows, p.currency(ref))
	if err != nil {
		return pricing.PricePoint{}, err
	}
	if len(points) == 0 {
		return pricing.PricePoint{}, provider.ErrNoData
	}
	return points[len(points)-1], nil
}

// HistoricalSeries downloads daily OHLCV rows for the date range.
func (p *Provider) HistoricalSeries(ctx context.Context, ref provider.Ref, start, end date.Date) ([]pricing.PricePoint, error) {
	if err := p.validate(ref); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", provider.ErrInvalidParameters, end, start)
	}
	q := url.Values{}
	q.Set("s", strings.ToLower(ref.Identifier))
	q.Set("d1", start.Time().Format("20060102"))
	q.Set("d2", end.Time().Format("20060102"))
	q.Set("i", "d")

	rows, err := p.fetchCSV(ctx, "/q/d/l/", q)
	if err != nil {
		return nil, err
	}
	points, err := parseHistoryRows(rows, p.currency(ref))
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, provider.ErrNoData
	}
	return pricing.ClampRange(pricing.Dedupe(points), start, end), nil
}

// Search is not offered by Stooq.
func (p *Provider) Search(context.Context, string) ([]pricing.Candidate, error) {
	return nil, provider.ErrUnsupported
}

// Metadata is not offered by Stooq.
func (p *Provider) Metadata(context.Context, provider.Ref) (*pricing.InstrumentAttributes, error) {
	return nil, provider.ErrUnsupported
}

func (p *Provider) validate(ref provider.Ref) error {
	if err := provider.ValidateRef(ref); err != nil {
		return fmt.Errorf("%w: %v", provider.ErrInvalidParameters, err)
	}
	if ref.IdentifierKind != pricing.IdentifierTicker {
		return fmt.Errorf("%w: stooq takes tickers, got kind %q", provider.ErrInvalidParameters, ref.IdentifierKind)
	}
	return nil
}

func (p *Provider) fetchCSV(ctx context.Context, path string, q url.Values) ([][]string, error) {
	u := p.cfg.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrNotAvailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", provider.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("%w: status %d: %s", provider.ErrNotAvailable, resp.StatusCode, string(b))
	}
	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse csv: %v", provider.ErrNotAvailable, err)
	}
	return rows, nil
}

// parseHistoryRows reads the daily download format:
// Date,Open,High,Low,Close,Volume
func parseHistoryRows(rows [][]string, currency string) ([]pricing.PricePoint, error) {
	points := make([]pricing.PricePoint, 0, len(rows))
	for i, row := range rows {
		if i == 0 && looksLikeHeader(row) {
			continue
		}
		if len(row) < 5 {
			continue
		}
		day, err := date.Parse(row[0])
		if err != nil {
			// "No data" answers come back as a one-cell message row.
			continue
		}
		closePx, err := decimal.NewFromString(row[4])
		if err != nil {
			continue
		}
		pt := pricing.PricePoint{
			Date:       day,
			Close:      closePx,
			Currency:   currency,
			Provenance: ProviderCode,
		}
		pt.Open = parseOptional(row[1])
		pt.High = parseOptional(row[2])
		pt.Low = parseOptional(row[3])
		if len(row) > 5 {
			pt.Volume = parseOptional(row[5])
		}
		points = append(points, pt)
	}
	return points, nil
}

// parseQuoteRows reads the live quote format:
// Symbol,Date,Time,Open,High,Low,Close,Volume
func parseQuoteRows(rows [][]string, currency string) ([]pricing.PricePoint, error) {
	points := make([]pricing.PricePoint, 0, len(rows))
	for i, row := range rows {
		if i == 0 && looksLikeHeader(row) {
			continue
		}
		if len(row) < 7 {
			continue
		}
		day, err := date.Parse(row[1])
		if err != nil {
			continue
		}
		closePx, err := decimal.NewFromString(row[6])
		if err != nil {
			// Stooq answers "N/D" for unknown tickers.
			continue
		}
		pt := pricing.PricePoint{
			Date:       day,
			Close:      closePx,
			Currency:   currency,
			Provenance: ProviderCode,
		}
		pt.Open = parseOptional(row[3])
		pt.High = parseOptional(row[4])
		pt.Low = parseOptional(row[5])
		if len(row) > 7 {
			pt.Volume = parseOptional(row[7])
		}
		points = append(points, pt)
	}
	return points, nil
}

func looksLikeHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "symbol") ||
		len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "date")
}

func parseOptional(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &d
}

var _ provider.Provider = (*Provider)(nil)
