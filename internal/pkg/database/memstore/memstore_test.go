package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, model.MarketLocation)
}

func quarters(date time.Time, czk func(hour int) float64) model.SpotPrices {
	var out model.SpotPrices
	for i := 0; i < 96; i++ {
		from := date.Add(time.Duration(i) * model.IntervalLength)
		price := czk(from.Hour())
		out = append(out, model.NewSpotPrice(from, price/25, price))
	}
	return out
}

func TestStore_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()
	d := day(2026, 10, 19)

	n, err := s.SavePrices(ctx, d, quarters(d, func(int) float64 { return 100 }), 25)
	require.NoError(t, err)
	assert.Equal(t, 96, n)

	_, err = s.SavePrices(ctx, d, quarters(d, func(int) float64 { return 200 }), 24)
	require.NoError(t, err)

	prices, err := s.PricesForDate(ctx, d)
	require.NoError(t, err)
	require.Len(t, prices, 96)
	assert.InDelta(t, 200.0, prices[0].PriceCZK, 1e-9)
	assert.True(t, prices[0].TimeFrom.Before(prices[1].TimeFrom))

	stats, err := s.DailyStats(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 96, stats.Count)
	assert.InDelta(t, 24.0, stats.EURCZKRate, 1e-9)
}

func TestStore_Aggregates(t *testing.T) {
	ctx := context.Background()
	s := New()
	monday := day(2026, 10, 12)
	tuesday := day(2026, 10, 13)
	_, _ = s.SavePrices(ctx, monday, quarters(monday, func(h int) float64 { return float64(h * 10) }), 25)
	_, _ = s.SavePrices(ctx, tuesday, quarters(tuesday, func(h int) float64 { return float64(h*10) - 50 }), 25)

	hourly, err := s.HourlyAggregates(ctx, monday)
	require.NoError(t, err)
	require.Len(t, hourly, 24)
	assert.Equal(t, 0, hourly[0].Hour)
	assert.InDelta(t, -25.0, hourly[0].AvgPrice, 1e-9)
	assert.InDelta(t, -50.0, hourly[0].MinPrice, 1e-9)
	assert.Equal(t, 8, hourly[0].Count)

	weekday, err := s.WeekdayAggregates(ctx, monday)
	require.NoError(t, err)
	require.Len(t, weekday, 48)
	assert.Equal(t, 0, weekday[0].Weekday)
	assert.Equal(t, 1, weekday[24].Weekday)

	negative, err := s.NegativePriceHours(ctx, monday)
	require.NoError(t, err)
	require.Len(t, negative, 7)
	assert.Equal(t, tuesday, negative[0].Date)
	assert.Equal(t, 0, negative[0].Hour)
	assert.InDelta(t, -50.0, negative[0].PriceCZK, 1e-9)
	assert.Equal(t, monday, negative[6].Date)

	daily, err := s.DailyAverages(ctx, monday)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, monday, daily[0].Date)
	assert.InDelta(t, 115.0, daily[0].AvgPrice, 1e-9)

	count, err := s.DataDaysCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	dates, err := s.AvailableDates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{tuesday, monday}, dates)

	overall, err := s.OverallStats(ctx, tuesday)
	require.NoError(t, err)
	require.NotNil(t, overall)
	assert.Equal(t, 96, overall.Count)
}

func TestStore_EmptyResults(t *testing.T) {
	ctx := context.Background()
	s := New()

	stats, err := s.DailyStats(ctx, day(2026, 10, 19))
	require.NoError(t, err)
	assert.Nil(t, stats)

	overall, err := s.OverallStats(ctx, day(2026, 10, 19))
	require.NoError(t, err)
	assert.Nil(t, overall)
}

func TestStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	s := New()
	old, recent := day(2025, 1, 1), day(2026, 10, 19)
	_, _ = s.SavePrices(ctx, old, quarters(old, func(int) float64 { return 1 }), 25)
	_, _ = s.SavePrices(ctx, recent, quarters(recent, func(int) float64 { return 1 }), 25)

	deleted, err := s.Cleanup(ctx, day(2026, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(96), deleted)

	dates, _ := s.AvailableDates(ctx)
	assert.Equal(t, []time.Time{recent}, dates)
}
