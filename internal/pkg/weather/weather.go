// Package weather relates hourly weather to spot prices and adjusts price forecasts for it.
package weather

import (
	"context"
	"math"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/forecast"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	minPrices       = 48
	minWeatherHours = 48
	minPairs        = 24
	forecastDays    = 7

	minFactor = 0.75
	maxFactor = 1.25
)

const (
	FactorTemperature    = "temperature"
	FactorCloudCover     = "cloud cover"
	FactorSolarRadiation = "solar radiation"
	FactorWind           = "wind"
)

type priceStore interface {
	forecast.BaselineStore
}

type weatherSource interface {
	Forecast(ctx context.Context, days int) ([]model.WeatherForecast, error)
	Historical(ctx context.Context, start, end time.Time) ([]model.WeatherData, error)
}

// Correlation holds the Pearson coefficient of each weather factor against the hourly price.
type Correlation struct {
	Temperature     float64 `json:"temperature_correlation"`
	CloudCover      float64 `json:"cloud_cover_correlation"`
	SolarRadiation  float64 `json:"solar_radiation_correlation"`
	WindSpeed       float64 `json:"wind_speed_correlation"`
	StrongestFactor string  `json:"strongest_factor"`
	RSquared        float64 `json:"r_squared"`
}

type Service struct {
	store   priceStore
	weather weatherSource
	now     func() time.Time
	logger  *zap.Logger
}

func New(store priceStore, weather weatherSource) *Service {
	return &Service{
		store:   store,
		weather: weather,
		now:     time.Now,
		logger:  zap.L(),
	}
}

// WithClock replaces the clock used to resolve "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today() time.Time {
	return model.Date(s.now())
}

// Forecast returns the daily weather forecast starting today.
func (s *Service) Forecast(ctx context.Context, days int) ([]model.WeatherForecast, error) {
	return s.weather.Forecast(ctx, days)
}

// Correlation pairs the hourly average price of the last daysBack days with archived weather of
// the same hour. It returns nil when there is too little data on either side.
func (s *Service) Correlation(ctx context.Context, daysBack int) (*Correlation, error) {
	today := s.today()
	prices, err := s.store.PricesForRange(ctx, today.AddDate(0, 0, -daysBack), today)
	if err != nil {
		return nil, err
	}
	if len(prices) < minPrices {
		return nil, nil
	}

	hourly, err := s.weather.Historical(ctx, today.AddDate(0, 0, -(daysBack-1)), today)
	if err != nil {
		return nil, err
	}
	if len(hourly) < minWeatherHours {
		s.logger.Debug("not enough archived weather", zap.Int("hours", len(hourly)))
		return nil, nil
	}
	return Correlate(prices, hourly), nil
}

// Correlate computes the correlation of already loaded prices and hourly weather.
func Correlate(prices model.SpotPrices, hourly []model.WeatherData) *Correlation {
	weatherAt := lo.SliceToMap(hourly, func(w model.WeatherData) (int64, model.WeatherData) {
		return w.Time.Unix(), w
	})
	priceAt := lo.MapValues(
		lo.GroupBy(prices, func(p model.SpotPrice) int64 { return p.TimeFrom.Truncate(time.Hour).Unix() }),
		func(ps model.SpotPrices, _ int64) float64 { return stats.Mean(ps.CZK()) },
	)

	hours := lo.Filter(lo.Keys(priceAt), func(h int64, _ int) bool {
		_, ok := weatherAt[h]
		return ok
	})
	if len(hours) < minPairs {
		return nil
	}

	var temps, clouds, solars, winds, values []float64
	for _, h := range hours {
		w := weatherAt[h]
		temps = append(temps, w.Temperature)
		clouds = append(clouds, w.CloudCover)
		solars = append(solars, w.SolarRadiation)
		winds = append(winds, w.WindSpeed)
		values = append(values, priceAt[h])
	}

	res := &Correlation{
		Temperature:    stats.Pearson(temps, values),
		CloudCover:     stats.Pearson(clouds, values),
		SolarRadiation: stats.Pearson(solars, values),
		WindSpeed:      stats.Pearson(winds, values),
	}
	factors := []struct {
		name string
		r    float64
	}{
		{FactorTemperature, res.Temperature},
		{FactorCloudCover, res.CloudCover},
		{FactorSolarRadiation, res.SolarRadiation},
		{FactorWind, res.WindSpeed},
	}
	strongest := factors[0]
	for _, f := range factors[1:] {
		if math.Abs(f.r) > math.Abs(strongest.r) {
			strongest = f
		}
	}
	res.StrongestFactor = strongest.name
	res.RSquared = strongest.r * strongest.r
	return res
}

// AdjustmentFactor scales a price for the weather of its hour. Sun and wind push prices down,
// overcast calm hours and temperature extremes push them up.
func AdjustmentFactor(w model.WeatherData) float64 {
	factor := 1.0

	switch {
	case w.CloudCover < 30 && w.SolarRadiation > 300:
		factor *= 0.85
	case w.CloudCover < 50:
		factor *= 0.92
	}

	switch {
	case w.WindSpeed >= 10:
		factor *= 0.88
	case w.WindSpeed >= 8:
		factor *= 0.92
	}

	if w.CloudCover >= 80 && w.WindSpeed < 4 {
		factor *= 1.10
	}

	switch {
	case w.Temperature < -5 || w.Temperature > 30:
		factor *= 1.05
	case w.Temperature < 0 || w.Temperature > 25:
		factor *= 1.02
	}

	return max(minFactor, min(maxFactor, factor))
}

// EnhancedForecast predicts every hour of date from the weekday pattern, adjusted for the
// weather of that hour. When wf is nil the 7 day forecast is fetched. Hours without weather
// keep the unadjusted price.
func (s *Service) EnhancedForecast(ctx context.Context, date time.Time, wf *model.WeatherForecast) ([]model.HourPrediction, error) {
	date = model.Date(date)
	if wf == nil {
		forecasts, err := s.weather.Forecast(ctx, forecastDays)
		if err != nil {
			return nil, err
		}
		if found, ok := lo.Find(forecasts, func(f model.WeatherForecast) bool { return model.Date(f.Date).Equal(date) }); ok {
			wf = &found
		}
	}

	weatherByHour := map[int]model.WeatherData{}
	if wf != nil {
		for _, w := range wf.Hourly {
			weatherByHour[w.Time.In(model.MarketLocation).Hour()] = w
		}
	}

	baseline, err := forecast.LoadBaseline(ctx, s.store, date, s.today())
	if err != nil {
		return nil, err
	}

	out := []model.HourPrediction{}
	for hour := range 24 {
		base, ok := baseline.Hour(hour)
		if !ok {
			continue
		}
		price := base.Avg
		if w, ok := weatherByHour[hour]; ok {
			price *= AdjustmentFactor(w)
		}
		low, high, ok := baseline.Interval(hour, price)
		if !ok {
			low, high = price*0.7, price*1.3
		}
		out = append(out, model.HourPrediction{Hour: hour, Price: price, Low: low, High: high})
	}
	return out, nil
}
