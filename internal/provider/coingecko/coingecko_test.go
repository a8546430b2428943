package coingecko_test

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
	"pricingcore/internal/provider/coingecko"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func newProvider(t *testing.T, httpClient coingecko.HTTPClient) *coingecko.Provider {
	t.Helper()
	client, err := coingecko.NewAPIClient("", coingecko.WithHTTPClient(httpClient))
	require.NoError(t, err)
	return coingecko.New(coingecko.Config{}, client)
}

func btcRef() provider.Ref {
	return provider.Ref{Identifier: "bitcoin", IdentifierKind: pricing.IdentifierNative}
}

func TestCurrentValue(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.Path, "/simple/price")
			require.Equal(t, "bitcoin", req.URL.Query().Get("ids"))
			return jsonResponse(http.StatusOK, `{"bitcoin":{"usd":64123.45}}`), nil
		}).
		Times(1)

	p := newProvider(t, httpClient)
	pt, err := p.CurrentValue(t.Context(), btcRef())
	require.NoError(t, err)
	require.True(t, pt.Close.Equal(pricing.D("64123.45")))
	require.Equal(t, "USD", pt.Currency)
	require.Equal(t, "coingecko", pt.Provenance)
}

func TestCurrentValue_RejectsWrongIdentifierKind(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := newProvider(t, NewMockHTTPClient(ctrl))

	_, err := p.CurrentValue(t.Context(), provider.Ref{Identifier: "BTC", IdentifierKind: pricing.IdentifierTicker})
	require.ErrorIs(t, err, provider.ErrInvalidParameters)
}

func TestHistoricalSeries_CollapsesIntradaySamples(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	// Two samples on 2024-03-01 (the later must win), one on 2024-03-02.
	body := `{"prices":[
		[1709287200000, 61000.0],
		[1709290800000, 61500.5],
		[1709376000000, 62000.0]
	]}`
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.Path, "/coins/bitcoin/market_chart/range")
			return jsonResponse(http.StatusOK, body), nil
		}).
		Times(1)

	p := newProvider(t, httpClient)
	points, err := p.HistoricalSeries(t.Context(), btcRef(),
		date.MustParse("2024-03-01"), date.MustParse("2024-03-02"))
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2024-03-01", points[0].Date.String())
	require.True(t, points[0].Close.Equal(pricing.D("61500.5")))
	require.Equal(t, "2024-03-02", points[1].Date.String())
}

func TestHistoricalSeries_EmptyBodyIsNoData(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"prices":[]}`), nil).
		Times(1)

	p := newProvider(t, httpClient)
	_, err := p.HistoricalSeries(t.Context(), btcRef(),
		date.MustParse("2024-03-01"), date.MustParse("2024-03-02"))
	require.ErrorIs(t, err, provider.ErrNoData)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, provider.ErrRateLimited},
		{"unknown coin", http.StatusNotFound, provider.ErrNoData},
		{"bad request", http.StatusBadRequest, provider.ErrInvalidParameters},
		{"upstream down", http.StatusBadGateway, provider.ErrNotAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				Return(jsonResponse(tc.status, `{"error":"nope"}`), nil).
				Times(1)

			p := newProvider(t, httpClient)
			_, err := p.CurrentValue(t.Context(), btcRef())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.True(t, strings.HasSuffix(req.URL.Path, "/search"))
			return jsonResponse(http.StatusOK,
				`{"coins":[{"id":"bitcoin","name":"Bitcoin","symbol":"BTC"}]}`), nil
		}).
		Times(1)

	p := newProvider(t, httpClient)
	hits, err := p.Search(t.Context(), "bit")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "bitcoin", hits[0].Identifier)
	require.Equal(t, pricing.IdentifierNative, hits[0].IdentifierKind)
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"id":"bitcoin","name":"Bitcoin","symbol":"btc"}`), nil).
		Times(1)

	p := newProvider(t, httpClient)
	attrs, err := p.Metadata(t.Context(), btcRef())
	require.NoError(t, err)
	require.NotNil(t, attrs.Name)
	require.Equal(t, "Bitcoin", *attrs.Name)
	require.Equal(t, "BTC", *attrs.Symbol)
}

