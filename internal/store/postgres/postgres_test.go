package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubScanner struct {
	values []any
}

func (s stubScanner) Scan(dest ...any) error {
	for i, v := range s.values {
		switch d := dest[i].(type) {
		case *time.Time:
			*d = v.(time.Time)
		case *string:
			*d = v.(string)
		case **string:
			if v == nil {
				*d = nil
			} else {
				sv := v.(string)
				*d = &sv
			}
		}
	}
	return nil
}

func TestScanPoint(t *testing.T) {
	row := stubScanner{values: []any{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"100.5", nil, nil, "101.25", "12000", "USD", "coingecko",
	}}

	p, err := scanPoint(row)
	require.NoError(t, err)
	require.Equal(t, "2024-03-01", p.Date.String())
	require.True(t, p.Close.Equal(decimal.RequireFromString("101.25")))
	require.NotNil(t, p.Open)
	require.True(t, p.Open.Equal(decimal.RequireFromString("100.5")))
	require.Nil(t, p.High)
	require.Nil(t, p.Low)
	require.NotNil(t, p.Volume)
	require.True(t, p.Volume.Equal(decimal.NewFromInt(12000)))
	require.Equal(t, "USD", p.Currency)
	require.Equal(t, "coingecko", p.Provenance)
}

func TestScanPoint_BadClose(t *testing.T) {
	row := stubScanner{values: []any{
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		nil, nil, nil, "not-a-number", nil, "USD", "",
	}}

	_, err := scanPoint(row)
	require.Error(t, err)
}

func TestOptText(t *testing.T) {
	require.Nil(t, optText(nil))

	d := decimal.RequireFromString("42.125")
	got := optText(&d)
	require.NotNil(t, got)
	require.Equal(t, "42.125", *got)
}
