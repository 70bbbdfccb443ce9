package database

import (
	"context"
	"testing"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/database/memstore"
	"github.com/anicoll/ote-spot/internal/pkg/database/migration"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupDatabase(t *testing.T) *Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("ote"),
		postgres.WithUsername("ote"),
		postgres.WithPassword("ote"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, migration.Migrate(dsn, "../../../migrations"))
	// a second run finds nothing to apply
	require.NoError(t, migration.Migrate(dsn, "../../../migrations"))

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	db := NewDatabase(pool, nil)
	t.Cleanup(func() { _ = db.Close() })
	return db
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

func TestDatabase_SaveAndRead(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()
	d := time.Date(2026, 10, 19, 0, 0, 0, 0, model.MarketLocation)

	saved, err := db.SavePrices(ctx, d, quarters(d, func(h int) float64 { return float64(h * 100) }), 25)
	require.NoError(t, err)
	assert.Equal(t, 96, saved)

	// re-saving the same day updates in place
	saved, err = db.SavePrices(ctx, d, quarters(d, func(h int) float64 { return float64(h*100 + 1) }), 24.5)
	require.NoError(t, err)
	assert.Equal(t, 96, saved)

	prices, err := db.PricesForDate(ctx, d)
	require.NoError(t, err)
	require.Len(t, prices, 96)
	assert.True(t, prices[0].TimeFrom.Equal(d))
	assert.Equal(t, model.MarketLocation, prices[0].TimeFrom.Location())
	assert.InDelta(t, 1.0, prices[0].PriceCZK, 1e-9)

	stats, err := db.DailyStats(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 96, stats.Count)
	assert.InDelta(t, 24.5, stats.EURCZKRate, 1e-9)

	missing, err := db.DailyStats(ctx, d.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDatabase_DaylightSavingDay(t *testing.T) {
	db := setupDatabase(t)
	ctx := context.Background()
	d := time.Date(2026, 10, 25, 0, 0, 0, 0, model.MarketLocation)

	var prices model.SpotPrices
	for i := 0; i < 100; i++ {
		prices = append(prices, model.NewSpotPrice(d.Add(time.Duration(i)*model.IntervalLength), 1, 25))
	}
	saved, err := db.SavePrices(ctx, d, prices, 25)
	require.NoError(t, err)
	assert.Equal(t, 100, saved)

	hourly, err := db.HourlyAggregates(ctx, d)
	require.NoError(t, err)
	require.Len(t, hourly, 24)
	// the repeated 02:00 hour holds eight quarters
	assert.Equal(t, 8, hourly[2].Count)
}

// The in-memory store backs the analytics tests, so both must answer identically.
func TestDatabase_MatchesMemstore(t *testing.T) {
	db := setupDatabase(t)
	mem := memstore.New()
	ctx := context.Background()

	start := time.Date(2026, 9, 28, 0, 0, 0, 0, model.MarketLocation)
	for i := 0; i < 14; i++ {
		d := start.AddDate(0, 0, i)
		offset := float64(i%3) * 100
		prices := quarters(d, func(h int) float64 { return float64(h*50) - 300 + offset })
		_, err := db.SavePrices(ctx, d, prices, 25)
		require.NoError(t, err)
		_, err = mem.SavePrices(ctx, d, prices, 25)
		require.NoError(t, err)
	}
	since := start.AddDate(0, 0, 3)

	wantHourly, _ := mem.HourlyAggregates(ctx, since)
	gotHourly, err := db.HourlyAggregates(ctx, since)
	require.NoError(t, err)
	require.Len(t, gotHourly, len(wantHourly))
	for i := range wantHourly {
		assert.Equal(t, wantHourly[i].Hour, gotHourly[i].Hour)
		assert.Equal(t, wantHourly[i].Count, gotHourly[i].Count)
		assert.InDelta(t, wantHourly[i].AvgPrice, gotHourly[i].AvgPrice, 1e-6)
	}

	wantWeekday, _ := mem.WeekdayAggregates(ctx, since)
	gotWeekday, err := db.WeekdayAggregates(ctx, since)
	require.NoError(t, err)
	require.Len(t, gotWeekday, len(wantWeekday))
	for i := range wantWeekday {
		assert.Equal(t, wantWeekday[i].Weekday, gotWeekday[i].Weekday)
		assert.Equal(t, wantWeekday[i].Hour, gotWeekday[i].Hour)
		assert.InDelta(t, wantWeekday[i].AvgPrice, gotWeekday[i].AvgPrice, 1e-6)
	}

	wantNeg, _ := mem.NegativePriceHours(ctx, since)
	gotNeg, err := db.NegativePriceHours(ctx, since)
	require.NoError(t, err)
	require.Len(t, gotNeg, len(wantNeg))
	for i := range wantNeg {
		assert.True(t, wantNeg[i].Date.Equal(gotNeg[i].Date))
		assert.Equal(t, wantNeg[i].Hour, gotNeg[i].Hour)
	}

	wantDaily, _ := mem.DailyAverages(ctx, since)
	gotDaily, err := db.DailyAverages(ctx, since)
	require.NoError(t, err)
	require.Len(t, gotDaily, len(wantDaily))
	for i := range wantDaily {
		assert.True(t, wantDaily[i].Date.Equal(gotDaily[i].Date))
		assert.InDelta(t, wantDaily[i].AvgPrice, gotDaily[i].AvgPrice, 1e-6)
	}

	wantOverall, _ := mem.OverallStats(ctx, since)
	gotOverall, err := db.OverallStats(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, wantOverall.Count, gotOverall.Count)

	count, err := db.DataDaysCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 14, count)

	dates, err := db.AvailableDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 14)
	assert.True(t, dates[0].Equal(start.AddDate(0, 0, 13)))

	rangePrices, err := db.PricesForRange(ctx, start, start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, rangePrices, 192)

	deleted, err := db.Cleanup(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, int64(3*96), deleted)
}
