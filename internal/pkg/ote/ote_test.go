package ote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRates struct {
	rate    decimal.Decimal
	err     error
	gotDate time.Time
}

func (s *stubRates) EURCZK(_ context.Context, date time.Time) (decimal.Decimal, error) {
	s.gotDate = date
	return s.rate, s.err
}

func chartJSON(points int, title string) string {
	var sb strings.Builder
	for i := 1; i <= points; i++ {
		if i > 1 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"x":%d,"y":%d}`, i, 80+i%4)
	}
	return fmt.Sprintf(`{"data":{"dataLine":[{"title":"Volume (MWh)","point":[{"x":1,"y":9999}]},{"title":%q,"point":[%s]}]}}`, title, sb.String())
}

func TestParseChart(t *testing.T) {
	date := time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation)
	rate := decimal.RequireFromString("25")

	prices, err := ParseChart(strings.NewReader(chartJSON(96, "Price (EUR/MWh) 15min")), date, rate)
	require.NoError(t, err)
	require.Len(t, prices, 96)

	first := prices[0]
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation), first.TimeFrom)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 14, 59, 0, model.MarketLocation), first.TimeTo)
	assert.InDelta(t, 81.0, first.PriceEUR, 1e-9)
	assert.InDelta(t, 2025.0, first.PriceCZK, 1e-9)

	last := prices[95]
	assert.Equal(t, 23, last.TimeFrom.Hour())
	assert.Equal(t, 45, last.TimeFrom.Minute())
}

func TestParseChart_StringValues(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"data":{"dataLine":[{"title":"PRICE 15MIN","point":[{"x":"2","y":"-1.5"},{"x":"1","y":"10.25"}`)
	for i := 3; i <= 96; i++ {
		fmt.Fprintf(&sb, `,{"x":"%d","y":"50"}`, i)
	}
	sb.WriteString(`,{"x":"97","y":null}]}]}}`)
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, model.MarketLocation)

	prices, err := ParseChart(strings.NewReader(sb.String()), date, decimal.RequireFromString("24.5"))
	require.NoError(t, err)
	require.Len(t, prices, 96)

	assert.Equal(t, 0, prices[0].TimeFrom.Minute())
	assert.InDelta(t, 10.25, prices[0].PriceEUR, 1e-9)
	assert.InDelta(t, 251.125, prices[0].PriceCZK, 1e-9)
	assert.Equal(t, 15, prices[1].TimeFrom.Minute())
	assert.InDelta(t, -36.75, prices[1].PriceCZK, 1e-9)
}

func TestParseChart_IncompleteSeries(t *testing.T) {
	tests := map[string]struct {
		date   time.Time
		points int
	}{
		"truncated day":               {date: time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation), points: 3},
		"normal count on short day":   {date: time.Date(2026, 3, 29, 0, 0, 0, 0, model.MarketLocation), points: 96},
		"normal count on long day":    {date: time.Date(2026, 10, 25, 0, 0, 0, 0, model.MarketLocation), points: 96},
		"long day count on plain day": {date: time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation), points: 100},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			prices, err := ParseChart(strings.NewReader(chartJSON(tt.points, "price 15min")), tt.date, decimal.NewFromInt(25))
			assert.ErrorIs(t, err, ErrIncompleteSeries)
			assert.Nil(t, prices)
		})
	}
}

func TestParseChart_DaylightSavingDays(t *testing.T) {
	tests := map[string]struct {
		date      time.Time
		intervals int
		lastHour  int
	}{
		"spring forward": {date: time.Date(2026, 3, 29, 0, 0, 0, 0, model.MarketLocation), intervals: 92, lastHour: 23},
		"fall back":      {date: time.Date(2026, 10, 25, 0, 0, 0, 0, model.MarketLocation), intervals: 100, lastHour: 23},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			prices, err := ParseChart(strings.NewReader(chartJSON(tt.intervals, "price 15min")), tt.date, decimal.NewFromInt(25))
			require.NoError(t, err)
			require.Len(t, prices, tt.intervals)

			seen := map[time.Time]struct{}{}
			for _, p := range prices {
				_, dup := seen[p.TimeFrom]
				assert.False(t, dup, "duplicate interval %s", p.TimeFrom)
				seen[p.TimeFrom] = struct{}{}
			}
			assert.Equal(t, tt.lastHour, prices[len(prices)-1].TimeFrom.Hour())
			assert.Equal(t, 45, prices[len(prices)-1].TimeFrom.Minute())
		})
	}
}

func TestParseChart_Errors(t *testing.T) {
	date := time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation)

	_, err := ParseChart(strings.NewReader(`{"data":{"dataLine":[{"title":"Volume","point":[]}]}}`), date, decimal.NewFromInt(25))
	assert.ErrorIs(t, err, ErrNoPriceData)

	_, err = ParseChart(strings.NewReader(`{"data":{"dataLine":[{"title":"price 15min","point":[]}]}}`), date, decimal.NewFromInt(25))
	assert.ErrorIs(t, err, ErrNoPriceData)

	_, err = ParseChart(strings.NewReader(`not json`), date, decimal.NewFromInt(25))
	assert.Error(t, err)
}

func TestClient_FetchSpotPrices(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, chartPath, r.URL.Path)
		gotQuery = r.URL.Query().Get("report_date")
		_, _ = w.Write([]byte(chartJSON(96, "Price 15min (EUR/MWh)")))
	}))
	defer srv.Close()

	rates := &stubRates{rate: decimal.RequireFromString("24.33")}
	c := New(srv.URL, time.Second, rates, nil)
	c.now = func() time.Time { return time.Date(2026, 10, 19, 14, 0, 0, 0, model.MarketLocation) }

	prices, rate, err := c.FetchSpotPrices(context.Background(), time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation))
	require.NoError(t, err)
	assert.Len(t, prices, 96)
	assert.InDelta(t, 24.33, rate, 1e-9)
	assert.Equal(t, "2026-10-19", gotQuery)
	assert.Equal(t, 19, rates.gotDate.Day())

	// tomorrow has no fixing yet, so the latest one is requested
	_, _, err = c.FetchSpotPrices(context.Background(), time.Date(2026, 10, 20, 0, 0, 0, 0, model.MarketLocation))
	require.NoError(t, err)
	assert.True(t, rates.gotDate.IsZero())
}

func TestClient_FetchSpotPrices_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, &stubRates{rate: decimal.NewFromInt(25)}, nil)
	_, _, err := c.FetchSpotPrices(context.Background(), time.Now())
	assert.Error(t, err)

	rateErr := errors.New("cnb down")
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartJSON(4, "price 15min")))
	}))
	defer ok.Close()

	c = New(ok.URL, time.Second, &stubRates{err: rateErr}, nil)
	_, _, err = c.FetchSpotPrices(context.Background(), time.Now())
	assert.ErrorIs(t, err, rateErr)
}
