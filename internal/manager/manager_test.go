package manager

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pricingcore/internal/date"
	dirmem "pricingcore/internal/directory/memory"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
	"pricingcore/internal/store"
	storemem "pricingcore/internal/store/memory"
)

type fakeProvider struct {
	code    string
	current func(ctx context.Context, ref provider.Ref) (pricing.PricePoint, error)
	series  func(ctx context.Context, ref provider.Ref, start, end date.Date) ([]pricing.PricePoint, error)
}

func (f *fakeProvider) Code() string        { return f.code }
func (f *fakeProvider) DisplayName() string { return "Fake " + f.code }

func (f *fakeProvider) CurrentValue(ctx context.Context, ref provider.Ref) (pricing.PricePoint, error) {
	if f.current == nil {
		return pricing.PricePoint{}, provider.ErrUnsupported
	}
	return f.current(ctx, ref)
}

func (f *fakeProvider) HistoricalSeries(ctx context.Context, ref provider.Ref, start, end date.Date) ([]pricing.PricePoint, error) {
	if f.series == nil {
		return nil, provider.ErrUnsupported
	}
	return f.series(ctx, ref, start, end)
}

func (f *fakeProvider) Search(context.Context, string) ([]pricing.Candidate, error) {
	return nil, provider.ErrUnsupported
}

func (f *fakeProvider) Metadata(context.Context, provider.Ref) (*pricing.InstrumentAttributes, error) {
	return nil, provider.ErrUnsupported
}

type fixture struct {
	manager *Manager
	store   *storemem.Store
	dir     *dirmem.Directory
	reg     *provider.Registry
}

func newFixture(t *testing.T, providers ...provider.Provider) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	reg := provider.NewRegistry(log)
	for _, p := range providers {
		reg.Register(p)
	}
	st := storemem.New()
	dir := dirmem.New()
	return &fixture{
		manager: New(reg, st, dir, WithLogger(log)),
		store:   st,
		dir:     dir,
		reg:     reg,
	}
}

func (f *fixture) addInstrument(kind pricing.InstrumentKind) uuid.UUID {
	id := uuid.New()
	f.dir.SetInstrument(pricing.Instrument{ID: id, Name: "test", Currency: "USD", Kind: kind})
	return id
}

func d(s string) date.Date { return date.MustParse(s) }

func constPrice(value string) func(context.Context, provider.Ref) (pricing.PricePoint, error) {
	return func(context.Context, provider.Ref) (pricing.PricePoint, error) {
		return pricing.PricePoint{
			Date:     d("2024-06-01"),
			Close:    pricing.D(value),
			Currency: "USD",
		}, nil
	}
}

func assign(t *testing.T, f *fixture, id uuid.UUID, code string) {
	t.Helper()
	res := f.manager.AssignProvider(context.Background(), AssignItem{
		InstrumentID:   id,
		ProviderCode:   code,
		Identifier:     "TEST",
		IdentifierKind: pricing.IdentifierTicker,
	})
	require.True(t, res.Success, res.Message)
}

func TestAssignProviders_PartialSuccess(t *testing.T) {
	f := newFixture(t, &fakeProvider{code: "alpha"})
	known := f.addInstrument(pricing.KindProviderPriced)

	items := []AssignItem{
		{InstrumentID: known, ProviderCode: "alpha", Identifier: "AAA", IdentifierKind: pricing.IdentifierTicker},
		{InstrumentID: known, ProviderCode: "missing", Identifier: "BBB", IdentifierKind: pricing.IdentifierTicker},
		{InstrumentID: uuid.New(), ProviderCode: "alpha", Identifier: "CCC", IdentifierKind: pricing.IdentifierTicker},
		{InstrumentID: known, ProviderCode: "alpha"}, // empty identifier
	}
	results := f.manager.AssignProviders(context.Background(), items)

	require.Len(t, results, 4)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Message, "missing")
	require.False(t, results[2].Success)
	require.Contains(t, results[2].Message, "not found")
	require.False(t, results[3].Success)

	assigned, err := f.store.GetAssignments(context.Background(), []uuid.UUID{known})
	require.NoError(t, err)
	require.Equal(t, "alpha", assigned[known].ProviderCode)
}

func TestRemoveProviders_PartialSuccess(t *testing.T) {
	f := newFixture(t, &fakeProvider{code: "alpha"})
	linked := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, linked, "alpha")
	bare := f.addInstrument(pricing.KindProviderPriced)

	results := f.manager.RemoveProviders(context.Background(), []uuid.UUID{linked, bare})

	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Message, "no provider assigned")

	assigned, err := f.store.GetAssignments(context.Background(), []uuid.UUID{linked})
	require.NoError(t, err)
	require.Empty(t, assigned)
}

func TestRefreshPrices_UnassignedFailsWithoutAborting(t *testing.T) {
	f := newFixture(t, &fakeProvider{code: "alpha", current: constPrice("42.5")})
	first := f.addInstrument(pricing.KindProviderPriced)
	second := f.addInstrument(pricing.KindProviderPriced)
	third := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, first, "alpha")
	assign(t, f, third, "alpha")

	results := f.manager.RefreshPrices(context.Background(), []RefreshItem{
		{InstrumentID: first}, {InstrumentID: second}, {InstrumentID: third},
	}, nil)

	require.Len(t, results, 3)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Message, "no provider assigned")
	require.True(t, results[2].Success)

	for _, id := range []uuid.UUID{first, third} {
		points, err := f.store.ReadRange(context.Background(), id, d("2024-06-01"), d("2024-06-01"))
		require.NoError(t, err)
		require.Len(t, points, 1)
		require.True(t, points[0].Close.Equal(pricing.D("42.5")))
		require.Equal(t, "alpha", points[0].Provenance)
	}
}

func TestRefreshPrices_HistoricalRange(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		code: "alpha",
		series: func(_ context.Context, _ provider.Ref, start, end date.Date) ([]pricing.PricePoint, error) {
			var out []pricing.PricePoint
			date.Range{From: start, To: end}.Each(func(day date.Date) bool {
				out = append(out, pricing.PricePoint{Date: day, Close: pricing.D("10"), Currency: "USD"})
				return true
			})
			return out, nil
		},
	})
	id := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, id, "alpha")

	res := f.manager.RefreshPrice(context.Background(),
		RefreshItem{InstrumentID: id, From: d("2024-03-01"), To: d("2024-03-03")}, nil)
	require.True(t, res.Success, res.Message)

	points, err := f.store.ReadRange(context.Background(), id, d("2024-03-01"), d("2024-03-03"))
	require.NoError(t, err)
	require.Len(t, points, 3)
}

func TestRefreshPrices_FieldSelection(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		code: "alpha",
		current: func(context.Context, provider.Ref) (pricing.PricePoint, error) {
			open := pricing.D("99")
			volume := pricing.D("1200")
			return pricing.PricePoint{
				Date: d("2024-06-01"), Open: &open, Close: pricing.D("101"),
				Volume: &volume, Currency: "USD",
			}, nil
		},
	})
	id := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, id, "alpha")

	res := f.manager.RefreshPrice(context.Background(),
		RefreshItem{InstrumentID: id}, []string{"close", "high", "volume"})
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Fields)
	require.Equal(t, []string{"close", "volume"}, res.Fields.Updated)
	require.Equal(t, []string{"high"}, res.Fields.Unavailable)
	require.Equal(t, []string{"open", "low"}, res.Fields.Unrequested)

	points, err := f.store.ReadRange(context.Background(), id, d("2024-06-01"), d("2024-06-01"))
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Nil(t, points[0].Open) // stripped, not requested
	require.NotNil(t, points[0].Volume)
}

func TestRefreshPrices_UnknownFieldFailsBatch(t *testing.T) {
	f := newFixture(t, &fakeProvider{code: "alpha", current: constPrice("1")})
	id := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, id, "alpha")

	res := f.manager.RefreshPrice(context.Background(), RefreshItem{InstrumentID: id}, []string{"vwap"})
	require.False(t, res.Success)
	require.Contains(t, res.Message, "vwap")
}

func TestRefreshPrices_ProviderErrors(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		code: "alpha",
		current: func(context.Context, provider.Ref) (pricing.PricePoint, error) {
			return pricing.PricePoint{}, provider.ErrNoData
		},
	})
	id := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, id, "alpha")

	res := f.manager.RefreshPrice(context.Background(), RefreshItem{InstrumentID: id}, nil)
	require.False(t, res.Success)
	require.Contains(t, res.Message, "no data")
}

func TestRefreshPrices_CancelledContextReportsTimedOut(t *testing.T) {
	f := newFixture(t, &fakeProvider{code: "alpha", current: constPrice("1")})
	id := f.addInstrument(pricing.KindProviderPriced)
	assign(t, f, id, "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.manager.RefreshPrices(ctx, []RefreshItem{{InstrumentID: id}}, nil)
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.Contains(t, results[0].Message, "timed out")
}

func TestUpsertAndDeletePrices(t *testing.T) {
	f := newFixture(t)
	id := f.addInstrument(pricing.KindProviderPriced)

	rows := []store.Row{
		{InstrumentID: id, Point: pricing.PricePoint{Date: d("2024-01-02"), Close: pricing.D("50"), Currency: "USD"}},
		{InstrumentID: id, Point: pricing.PricePoint{Close: pricing.D("51"), Currency: "USD"}},        // no date
		{InstrumentID: id, Point: pricing.PricePoint{Date: d("2024-01-03"), Close: pricing.D("52")}}, // no currency
	}
	results := f.manager.UpsertPrices(context.Background(), rows)
	require.Len(t, results, 3)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.False(t, results[2].Success)

	points, err := f.store.ReadRange(context.Background(), id, d("2024-01-02"), d("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, ManualProvenance, points[0].Provenance)

	del := f.manager.DeletePrice(context.Background(), store.DeleteRange{InstrumentID: id, From: d("2024-01-02")})
	require.True(t, del.Success)
	points, err = f.store.ReadRange(context.Background(), id, d("2024-01-02"), d("2024-01-02"))
	require.NoError(t, err)
	require.Empty(t, points)

	bad := f.manager.DeletePrice(context.Background(),
		store.DeleteRange{InstrumentID: id, From: d("2024-02-02"), To: d("2024-02-01")})
	require.False(t, bad.Success)
}

func seedPrices(t *testing.T, f *fixture, id uuid.UUID, closes map[string]string) {
	t.Helper()
	var rows []store.Row
	for day, px := range closes {
		rows = append(rows, store.Row{InstrumentID: id, Point: pricing.PricePoint{
			Date: d(day), Close: pricing.D(px), Currency: "USD", Provenance: "test",
		}})
	}
	require.NoError(t, f.store.UpsertBatch(context.Background(), rows))
}

func TestQuery_BackwardFill(t *testing.T) {
	f := newFixture(t)
	id := f.addInstrument(pricing.KindProviderPriced)
	seedPrices(t, f, id, map[string]string{
		"2024-03-01": "100",
		"2024-03-04": "104",
	})

	points, err := f.manager.Query(context.Background(), id, d("2024-03-01"), d("2024-03-05"))
	require.NoError(t, err)
	require.Len(t, points, 5)

	require.Nil(t, points[0].Fill)
	require.True(t, points[0].Point.Close.Equal(pricing.D("100")))

	require.NotNil(t, points[1].Fill)
	require.Equal(t, d("2024-03-01"), points[1].Fill.ActualDate)
	require.Equal(t, 1, points[1].Fill.DaysBack)
	require.True(t, points[1].Point.Close.Equal(pricing.D("100")))

	require.NotNil(t, points[2].Fill)
	require.Equal(t, 2, points[2].Fill.DaysBack)

	require.Nil(t, points[3].Fill)
	require.True(t, points[3].Point.Close.Equal(pricing.D("104")))

	require.NotNil(t, points[4].Fill)
	require.Equal(t, d("2024-03-04"), points[4].Fill.ActualDate)
	require.Equal(t, 1, points[4].Fill.DaysBack)
}

func TestQuery_BackwardFillIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.addInstrument(pricing.KindProviderPriced)
	seedPrices(t, f, id, map[string]string{"2024-03-01": "100"})

	first, err := f.manager.Query(context.Background(), id, d("2024-03-03"), date.Date{})
	require.NoError(t, err)
	second, err := f.manager.Query(context.Background(), id, d("2024-03-03"), date.Date{})
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Equal(t, first, second)
	require.Equal(t, 2, first[0].Fill.DaysBack)
}

func TestQuery_FillsFromBeforeRangeStart(t *testing.T) {
	f := newFixture(t)
	id := f.addInstrument(pricing.KindProviderPriced)
	seedPrices(t, f, id, map[string]string{"2024-02-20": "95"})

	points, err := f.manager.Query(context.Background(), id, d("2024-03-01"), d("2024-03-02"))
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, p := range points {
		require.NoError(t, p.Err)
		require.NotNil(t, p.Fill)
		require.Equal(t, d("2024-02-20"), p.Fill.ActualDate)
		require.True(t, p.Point.Close.Equal(pricing.D("95")))
	}
}

func TestQuery_NoDataBeforeFirstPrice(t *testing.T) {
	f := newFixture(t)
	id := f.addInstrument(pricing.KindProviderPriced)
	seedPrices(t, f, id, map[string]string{"2024-03-03": "103"})

	points, err := f.manager.Query(context.Background(), id, d("2024-03-01"), d("2024-03-04"))
	require.NoError(t, err)
	require.Len(t, points, 4)

	require.Error(t, points[0].Err)
	require.Equal(t, pricing.KindNoData, pricing.KindOf(points[0].Err))
	require.Error(t, points[1].Err)

	require.NoError(t, points[2].Err)
	require.Nil(t, points[2].Fill)
	require.NoError(t, points[3].Err)
	require.NotNil(t, points[3].Fill)
}

const loanSchedule = `{
	"principal": "10000",
	"maturity_date": "2024-12-31",
	"late_interest": null,
	"periods": [
		{"start_date": "2024-01-01", "end_date": "2024-12-31", "rate": "0.05",
		 "day_count": "ACT/365", "compounding": "simple", "compounding_frequency": "annual"}
	]
}`

func TestQuery_ScheduleValuedComputesWithoutStore(t *testing.T) {
	f := newFixture(t)
	id := f.addInstrument(pricing.KindScheduleValued)
	f.dir.SetSchedule(id, []byte(loanSchedule))

	points, err := f.manager.Query(context.Background(), id, d("2024-07-01"), date.Date{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, ValuationProvenance, points[0].Point.Provenance)
	require.Equal(t, "USD", points[0].Point.Currency)

	got, _ := points[0].Point.Close.Float64()
	require.InDelta(t, 10249.32, got, 0.01)

	// Nothing may be persisted for analytic values.
	stored, err := f.store.ReadRange(context.Background(), id, d("2024-01-01"), d("2024-12-31"))
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestQuery_UnknownInstrument(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Query(context.Background(), uuid.New(), d("2024-03-01"), date.Date{})
	require.Error(t, err)
	require.Equal(t, pricing.KindNotFound, pricing.KindOf(err))
}

func TestBulkEqualsSequentialSingleItemCalls(t *testing.T) {
	mkFixture := func() (*fixture, []uuid.UUID) {
		f := newFixture(t, &fakeProvider{code: "alpha", current: constPrice("7")})
		ids := make([]uuid.UUID, 3)
		for i := range ids {
			ids[i] = f.addInstrument(pricing.KindProviderPriced)
			assign(t, f, ids[i], "alpha")
		}
		return f, ids
	}

	bulkFixture, bulkIDs := mkFixture()
	items := make([]RefreshItem, len(bulkIDs))
	for i, id := range bulkIDs {
		items[i] = RefreshItem{InstrumentID: id}
	}
	bulk := bulkFixture.manager.RefreshPrices(context.Background(), items, nil)

	seqFixture, seqIDs := mkFixture()
	var seq []Result
	for _, id := range seqIDs {
		seq = append(seq, seqFixture.manager.RefreshPrice(context.Background(), RefreshItem{InstrumentID: id}, nil))
	}

	require.Len(t, bulk, len(seq))
	for i := range bulk {
		require.Equal(t, bulk[i].Success, seq[i].Success)
		require.Equal(t, bulk[i].Message, seq[i].Message)
	}
}
