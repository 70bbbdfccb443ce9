package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/database/memstore"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, model.MarketLocation)

func dayPrices(date time.Time) model.SpotPrices {
	out := make(model.SpotPrices, 0, 96)
	for i := range 96 {
		from := date.Add(time.Duration(i) * model.IntervalLength)
		eur := 50.0 + float64(from.Hour())*2
		out = append(out, model.NewSpotPrice(from, eur, eur*25))
	}
	return out
}

func storeWithDays(t *testing.T, days int) *memstore.Store {
	t.Helper()
	store := memstore.New()
	today := model.Date(now)
	for i := range days {
		d := today.AddDate(0, 0, -i)
		_, err := store.SavePrices(context.Background(), d, dayPrices(d), 25)
		require.NoError(t, err)
	}
	return store
}

type fakeFetcher struct {
	prices model.SpotPrices
	err    error
	asked  time.Time
}

func (f *fakeFetcher) FetchSpotPrices(_ context.Context, date time.Time) (model.SpotPrices, float64, error) {
	f.asked = date
	return f.prices, 25.1, f.err
}

type fakeWeather struct {
	forecasts []model.WeatherForecast
	days      int
}

func (f *fakeWeather) Forecast(_ context.Context, days int) ([]model.WeatherForecast, error) {
	f.days = days
	return f.forecasts, nil
}

type fakePredictor struct {
	given map[time.Time]*model.WeatherForecast
}

func (f *fakePredictor) EnhancedForecast(_ context.Context, date time.Time, wf *model.WeatherForecast) ([]model.HourPrediction, error) {
	f.given[date] = wf
	return []model.HourPrediction{
		{Hour: 8, Price: 1000, Low: 900, High: 1100},
		{Hour: 9, Price: 1200, Low: 1000, High: 1400},
	}, nil
}

func newService(store priceStore) *Service {
	return New(store, nil, nil, nil).WithClock(func() time.Time { return now })
}

func TestDataSufficiency(t *testing.T) {
	tests := []struct {
		days                          int
		hourly, weekly, statisticalOK bool
	}{
		{days: 0},
		{days: 7, hourly: true},
		{days: 14, hourly: true, weekly: true, statisticalOK: true},
	}
	for _, tt := range tests {
		got, err := newService(storeWithDays(t, tt.days)).DataSufficiency(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.days, got.TotalDays)
		assert.True(t, got.CanShowTomorrow)
		assert.Equal(t, tt.hourly, got.CanShowHourlyPatterns)
		assert.Equal(t, tt.weekly, got.CanShowWeeklyPatterns)
		assert.Equal(t, tt.statisticalOK, got.CanUseStatistical)
	}
}

func TestPatternBased(t *testing.T) {
	svc := newService(storeWithDays(t, 7))
	target := model.Date(now).AddDate(0, 0, 2)

	forecasts, err := svc.PatternBased(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, forecasts, 96)
	for _, f := range forecasts {
		assert.Greater(t, f.PriceCZK, 0.0)
		assert.LessOrEqual(t, f.ConfidenceLow, f.PriceCZK)
		assert.LessOrEqual(t, f.PriceCZK, f.ConfidenceHigh)
		assert.Equal(t, MethodPattern, f.Method)
		assert.True(t, model.Date(f.TimeFrom).Equal(target))
		assert.Equal(t, 15*time.Minute-time.Second, f.TimeTo.Sub(f.TimeFrom))
	}
	assert.Equal(t, 13, forecasts[13*4+2].TimeFrom.Hour())
	assert.Equal(t, 30, forecasts[13*4+2].TimeFrom.Minute())
	assert.InDelta(t, (50.0+26)*25, forecasts[13*4].PriceCZK, 1e-9)
}

func TestPatternBased_EmptyStore(t *testing.T) {
	svc := newService(memstore.New())

	forecasts, err := svc.PatternBased(context.Background(), model.Date(now).AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, forecasts)
}

func TestStatistical(t *testing.T) {
	svc := newService(storeWithDays(t, 14))

	forecasts, err := svc.Statistical(context.Background(), model.Date(now).AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, forecasts, 96)
	for _, f := range forecasts {
		assert.Greater(t, f.PriceCZK, 0.0)
		assert.GreaterOrEqual(t, f.ConfidenceLow, 0.0)
		assert.GreaterOrEqual(t, f.ConfidenceHigh-f.ConfidenceLow, 0.0)
		assert.Equal(t, MethodStatistical, f.Method)
	}
}

func TestStatistical_DaylightSavingDays(t *testing.T) {
	tests := map[string]struct {
		target    time.Time
		intervals int
		hour2     int
	}{
		"spring forward": {target: time.Date(2027, 3, 28, 0, 0, 0, 0, model.MarketLocation), intervals: 92, hour2: 0},
		"fall back":      {target: time.Date(2026, 10, 25, 0, 0, 0, 0, model.MarketLocation), intervals: 100, hour2: 8},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			svc := newService(storeWithDays(t, 14))

			forecasts, err := svc.Statistical(context.Background(), tt.target)
			require.NoError(t, err)
			require.Len(t, forecasts, tt.intervals)

			seen := map[int64]struct{}{}
			hour2 := 0
			for i, f := range forecasts {
				_, dup := seen[f.TimeFrom.Unix()]
				assert.False(t, dup, "duplicate interval %s", f.TimeFrom)
				seen[f.TimeFrom.Unix()] = struct{}{}
				if i > 0 {
					assert.Equal(t, model.IntervalLength, f.TimeFrom.Sub(forecasts[i-1].TimeFrom))
				}
				if f.TimeFrom.Hour() == 2 {
					hour2++
				}
			}
			assert.Equal(t, tt.hour2, hour2)
		})
	}
}

func TestStatistical_SparseHistoryWidensInterval(t *testing.T) {
	store := memstore.New()
	// the Wednesday 40 days back is inside the weekday window but outside the 30 day spread window
	old := time.Date(2026, 9, 9, 0, 0, 0, 0, model.MarketLocation)
	_, err := store.SavePrices(context.Background(), old, model.SpotPrices{
		model.NewSpotPrice(old.Add(5*time.Hour), 40, 1000),
	}, 25)
	require.NoError(t, err)

	svc := newService(store)
	forecasts, err := svc.Statistical(context.Background(), time.Date(2026, 10, 21, 0, 0, 0, 0, model.MarketLocation))
	require.NoError(t, err)
	require.Len(t, forecasts, 4)
	for _, f := range forecasts {
		assert.Equal(t, 5, f.TimeFrom.Hour())
		assert.InDelta(t, 1000.0, f.PriceCZK, 1e-9)
		assert.InDelta(t, 800.0, f.ConfidenceLow, 1e-9)
		assert.InDelta(t, 1200.0, f.ConfidenceHigh, 1e-9)
	}
}

func TestForDays(t *testing.T) {
	ctx := context.Background()

	t.Run("statistical with two weeks", func(t *testing.T) {
		days, err := newService(storeWithDays(t, 14)).ForDays(ctx, 5)
		require.NoError(t, err)
		require.Len(t, days, 4)
		assert.True(t, days[0].Date.Equal(model.Date(now).AddDate(0, 0, 2)))
		for _, d := range days {
			assert.True(t, d.Date.After(now))
			require.NotEmpty(t, d.Prices)
			assert.Equal(t, MethodStatistical, d.Prices[0].Method)
		}
	})

	t.Run("pattern with one week", func(t *testing.T) {
		days, err := newService(storeWithDays(t, 7)).ForDays(ctx, 3)
		require.NoError(t, err)
		require.Len(t, days, 2)
		for _, d := range days {
			assert.Equal(t, MethodPattern, d.Prices[0].Method)
		}
	})

	t.Run("nothing without history", func(t *testing.T) {
		days, err := newService(memstore.New()).ForDays(ctx, 5)
		require.NoError(t, err)
		assert.Empty(t, days)
	})
}

func TestTomorrowPrices(t *testing.T) {
	ctx := context.Background()
	tomorrow := model.Date(now).AddDate(0, 0, 1)

	fetcher := &fakeFetcher{prices: dayPrices(tomorrow)}
	svc := New(memstore.New(), fetcher, nil, nil).WithClock(func() time.Time { return now })
	got := svc.TomorrowPrices(ctx)
	assert.True(t, got.Available)
	assert.Len(t, got.Prices, 96)
	assert.InDelta(t, 25.1, got.Rate, 1e-9)
	assert.True(t, fetcher.asked.Equal(tomorrow))

	fetcher = &fakeFetcher{err: errors.New("no price data")}
	svc = New(memstore.New(), fetcher, nil, nil).WithClock(func() time.Time { return now })
	got = svc.TomorrowPrices(ctx)
	assert.False(t, got.Available)
	assert.Empty(t, got.Prices)
	assert.True(t, got.Date.Equal(tomorrow))
}

func TestForDaysWithWeather(t *testing.T) {
	ctx := context.Background()
	today := model.Date(now)
	weather := &fakeWeather{forecasts: []model.WeatherForecast{
		{Date: today},
		{Date: today.AddDate(0, 0, 1), WeatherType: model.WeatherSunny},
		{Date: today.AddDate(0, 0, 2), WeatherType: model.WeatherWindy},
	}}
	predictor := &fakePredictor{given: map[time.Time]*model.WeatherForecast{}}

	svc := New(storeWithDays(t, 7), nil, weather, predictor).WithClock(func() time.Time { return now })
	days, err := svc.ForDaysWithWeather(ctx, 3)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, 4, weather.days)

	for i, d := range days {
		assert.True(t, d.Date.Equal(today.AddDate(0, 0, i+1)))
		require.Len(t, d.Prices, 8)
		assert.Equal(t, MethodWeather, d.Prices[0].Method)
		assert.Equal(t, 8, d.Prices[0].TimeFrom.Hour())
		assert.InDelta(t, 1400.0, d.Prices[7].ConfidenceHigh, 1e-9)
	}

	assert.Equal(t, model.WeatherSunny, predictor.given[today.AddDate(0, 0, 1)].WeatherType)
	assert.Equal(t, model.WeatherWindy, predictor.given[today.AddDate(0, 0, 2)].WeatherType)
	beyond := predictor.given[today.AddDate(0, 0, 3)]
	require.NotNil(t, beyond)
	assert.Empty(t, beyond.Hourly)
}

func TestForDaysWithWeather_NeedsAWeekOfHistory(t *testing.T) {
	weather := &fakeWeather{}
	predictor := &fakePredictor{given: map[time.Time]*model.WeatherForecast{}}

	svc := New(storeWithDays(t, 6), nil, weather, predictor).WithClock(func() time.Time { return now })
	days, err := svc.ForDaysWithWeather(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, days)
	assert.Zero(t, weather.days)
}
