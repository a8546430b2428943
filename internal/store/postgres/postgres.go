// Package postgres implements the pricing store on PostgreSQL. All bulk
// operations go through pgx batches so one manager call costs one network
// round-trip regardless of row count.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Connect creates a pooled connection and verifies it with a ping.
func Connect(ctx context.Context, connString string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool, log), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{pool: pool, log: log.WithField("component", "store")}
}

func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS price_points (
	instrument_id UUID NOT NULL,
	price_date    DATE NOT NULL,
	open          NUMERIC,
	high          NUMERIC,
	low           NUMERIC,
	close         NUMERIC NOT NULL,
	volume        NUMERIC,
	currency      TEXT NOT NULL,
	provenance    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (instrument_id, price_date)
);

CREATE TABLE IF NOT EXISTS provider_assignments (
	instrument_id          UUID PRIMARY KEY,
	provider_code          TEXT NOT NULL,
	identifier             TEXT NOT NULL,
	identifier_kind        TEXT NOT NULL,
	config                 JSONB NOT NULL DEFAULT '{}',
	last_fetch             TIMESTAMPTZ,
	fetch_interval_seconds BIGINT NOT NULL DEFAULT 0
);
`

func (s *Store) UpsertBatch(ctx context.Context, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		p := r.Point
		batch.Queue(`
			INSERT INTO price_points (instrument_id, price_date, open, high, low, close, volume, currency, provenance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (instrument_id, price_date) DO UPDATE SET
				open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume,
				currency = EXCLUDED.currency, provenance = EXCLUDED.provenance
		`, r.InstrumentID, p.Date.Time(),
			optText(p.Open), optText(p.High), optText(p.Low),
			p.Close.String(), optText(p.Volume), p.Currency, p.Provenance)
	}
	start := time.Now()
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert prices: %w", err)
	}
	s.log.WithFields(logrus.Fields{"rows": len(rows), "duration": time.Since(start)}).
		Debug("flushed price upserts")
	return nil
}

func (s *Store) DeleteRanges(ctx context.Context, ranges []store.DeleteRange) error {
	if len(ranges) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range ranges {
		to := r.To
		if to.IsZero() {
			to = r.From
		}
		batch.Queue(`
			DELETE FROM price_points
			WHERE instrument_id = $1 AND price_date BETWEEN $2 AND $3
		`, r.InstrumentID, r.From.Time(), to.Time())
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("delete price ranges: %w", err)
	}
	return nil
}

const pointColumns = `price_date, open::text, high::text, low::text, close::text, volume::text, currency, provenance`

func (s *Store) ReadRange(ctx context.Context, instrumentID uuid.UUID, from, to date.Date) ([]pricing.PricePoint, error) {
	q := `SELECT ` + pointColumns + `
		FROM price_points
		WHERE instrument_id = $1 AND price_date >= $2`
	args := []any{instrumentID, from.Time()}
	if !to.IsZero() {
		q += ` AND price_date <= $3`
		args = append(args, to.Time())
	}
	q += ` ORDER BY price_date`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read price range: %w", err)
	}
	defer rows.Close()

	var out []pricing.PricePoint
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) LatestOnOrBefore(ctx context.Context, instrumentID uuid.UUID, day date.Date) (pricing.PricePoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+pointColumns+`
		FROM price_points
		WHERE instrument_id = $1 AND price_date <= $2
		ORDER BY price_date DESC
		LIMIT 1
	`, instrumentID, day.Time())
	p, err := scanPoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.PricePoint{}, pricing.Errorf(pricing.KindNoData,
			"no price at or before %s for instrument %s", day, instrumentID)
	}
	if err != nil {
		return pricing.PricePoint{}, fmt.Errorf("latest on or before: %w", err)
	}
	return p, nil
}

func (s *Store) UpsertAssignments(ctx context.Context, assignments []pricing.ProviderAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range assignments {
		cfg, err := json.Marshal(a.Config)
		if err != nil {
			return fmt.Errorf("encode assignment config: %w", err)
		}
		var lastFetch *time.Time
		if !a.LastFetch.IsZero() {
			lastFetch = &a.LastFetch
		}
		batch.Queue(`
			INSERT INTO provider_assignments
				(instrument_id, provider_code, identifier, identifier_kind, config, last_fetch, fetch_interval_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (instrument_id) DO UPDATE SET
				provider_code = EXCLUDED.provider_code,
				identifier = EXCLUDED.identifier,
				identifier_kind = EXCLUDED.identifier_kind,
				config = EXCLUDED.config,
				last_fetch = EXCLUDED.last_fetch,
				fetch_interval_seconds = EXCLUDED.fetch_interval_seconds
		`, a.InstrumentID, a.ProviderCode, a.Identifier, string(a.IdentifierKind),
			cfg, lastFetch, int64(a.FetchInterval/time.Second))
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert assignments: %w", err)
	}
	return nil
}

func (s *Store) DeleteAssignments(ctx context.Context, instrumentIDs []uuid.UUID) error {
	if len(instrumentIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM provider_assignments WHERE instrument_id = ANY($1)`, instrumentIDs)
	if err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	return nil
}

func (s *Store) GetAssignments(ctx context.Context, instrumentIDs []uuid.UUID) (map[uuid.UUID]pricing.ProviderAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT instrument_id, provider_code, identifier, identifier_kind, config, last_fetch, fetch_interval_seconds
		FROM provider_assignments
		WHERE instrument_id = ANY($1)
	`, instrumentIDs)
	if err != nil {
		return nil, fmt.Errorf("get assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]pricing.ProviderAssignment, len(instrumentIDs))
	for rows.Next() {
		var (
			a         pricing.ProviderAssignment
			kind      string
			cfg       []byte
			lastFetch *time.Time
			interval  int64
		)
		if err := rows.Scan(&a.InstrumentID, &a.ProviderCode, &a.Identifier, &kind, &cfg, &lastFetch, &interval); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.IdentifierKind = pricing.IdentifierKind(kind)
		if len(cfg) > 0 {
			if err := json.Unmarshal(cfg, &a.Config); err != nil {
				return nil, fmt.Errorf("decode assignment config: %w", err)
			}
		}
		if lastFetch != nil {
			a.LastFetch = *lastFetch
		}
		a.FetchInterval = time.Duration(interval) * time.Second
		out[a.InstrumentID] = a
	}
	return out, rows.Err()
}

// sendBatch issues the whole batch in one round-trip and surfaces the first
// statement error.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range batch.Len() {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPoint(r scanner) (pricing.PricePoint, error) {
	var (
		p                       pricing.PricePoint
		day                     time.Time
		open, high, low, volume *string
		closeText               string
	)
	if err := r.Scan(&day, &open, &high, &low, &closeText, &volume, &p.Currency, &p.Provenance); err != nil {
		return pricing.PricePoint{}, err
	}
	p.Date = date.FromTime(day)
	closePx, err := decimal.NewFromString(closeText)
	if err != nil {
		return pricing.PricePoint{}, fmt.Errorf("bad close %q: %w", closeText, err)
	}
	p.Close = closePx
	p.Open = optDecimal(open)
	p.High = optDecimal(high)
	p.Low = optDecimal(low)
	p.Volume = optDecimal(volume)
	return p, nil
}

func optText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func optDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}

var _ store.Store = (*Store)(nil)
