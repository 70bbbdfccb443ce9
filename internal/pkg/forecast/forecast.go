// Package forecast estimates spot prices for days the market has not cleared yet.
package forecast

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"go.uber.org/zap"
)

const (
	MethodPattern     = "hourly pattern"
	MethodStatistical = "statistical"
	MethodWeather     = "weather adjusted"

	hourlyPatternDays = 7
	statisticalDays   = 14
	weatherMinDays    = 7
)

type priceStore interface {
	BaselineStore
	DataDaysCount(ctx context.Context) (int, error)
}

type priceFetcher interface {
	FetchSpotPrices(ctx context.Context, date time.Time) (model.SpotPrices, float64, error)
}

type weatherSource interface {
	Forecast(ctx context.Context, days int) ([]model.WeatherForecast, error)
}

type weatherPredictor interface {
	EnhancedForecast(ctx context.Context, date time.Time, forecast *model.WeatherForecast) ([]model.HourPrediction, error)
}

// PriceForecast is the estimate for one quarter hour, in CZK/MWh.
type PriceForecast struct {
	TimeFrom       time.Time `json:"time_from"`
	TimeTo         time.Time `json:"time_to"`
	PriceCZK       float64   `json:"price_czk"`
	ConfidenceLow  float64   `json:"confidence_low"`
	ConfidenceHigh float64   `json:"confidence_high"`
	Method         string    `json:"method"`
}

// DayForecast groups the quarter hour estimates of one day.
type DayForecast struct {
	Date   time.Time       `json:"date"`
	Prices []PriceForecast `json:"prices"`
}

// DataSufficiency tells which forecasts the stored history supports.
type DataSufficiency struct {
	TotalDays             int  `json:"total_days"`
	CanShowTomorrow       bool `json:"can_show_tomorrow"`
	CanShowHourlyPatterns bool `json:"can_show_hourly_patterns"`
	CanShowWeeklyPatterns bool `json:"can_show_weekly_patterns"`
	CanUseStatistical     bool `json:"can_use_statistical"`
}

// Tomorrow holds the published day-ahead prices of the next day. Available is false until the
// market operator publishes them.
type Tomorrow struct {
	Date      time.Time        `json:"date"`
	Prices    model.SpotPrices `json:"prices"`
	Rate      float64          `json:"eur_czk_rate"`
	Available bool             `json:"available"`
}

type Service struct {
	store     priceStore
	fetcher   priceFetcher
	weather   weatherSource
	predictor weatherPredictor
	now       func() time.Time
	logger    *zap.Logger
}

// New builds a forecast service. fetcher, weather and predictor may be nil; the forecasts that
// need them are then reported as unavailable.
func New(store priceStore, fetcher priceFetcher, weather weatherSource, predictor weatherPredictor) *Service {
	return &Service{
		store:     store,
		fetcher:   fetcher,
		weather:   weather,
		predictor: predictor,
		now:       time.Now,
		logger:    zap.L(),
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

func (s *Service) DataSufficiency(ctx context.Context) (DataSufficiency, error) {
	days, err := s.store.DataDaysCount(ctx)
	if err != nil {
		return DataSufficiency{}, err
	}
	return DataSufficiency{
		TotalDays:             days,
		CanShowTomorrow:       true,
		CanShowHourlyPatterns: days >= hourlyPatternDays,
		CanShowWeeklyPatterns: days >= statisticalDays,
		CanUseStatistical:     days >= statisticalDays,
	}, nil
}

// quarters expands one hourly estimate into the quarter hours of that hour on date. The hour
// has eight quarters when clocks fall back and none when they spring forward.
func quarters(date time.Time, hour int, price, low, high float64, method string) []PriceForecast {
	out := make([]PriceForecast, 0, 4)
	for _, from := range model.DayIntervals(date) {
		if from.Hour() != hour {
			continue
		}
		out = append(out, PriceForecast{
			TimeFrom:       from,
			TimeTo:         from.Add(model.IntervalLength - time.Second),
			PriceCZK:       price,
			ConfidenceLow:  low,
			ConfidenceHigh: high,
			Method:         method,
		})
	}
	return out
}

// PatternBased repeats the 30 day average of every hour, bounded by its observed minimum and maximum.
func (s *Service) PatternBased(ctx context.Context, date time.Time) ([]PriceForecast, error) {
	aggs, err := s.store.HourlyAggregates(ctx, s.today().AddDate(0, 0, -hourlyWindowDays))
	if err != nil {
		return nil, err
	}
	out := make([]PriceForecast, 0, len(aggs)*4)
	for _, a := range aggs {
		out = append(out, quarters(date, a.Hour, a.AvgPrice, a.MinPrice, a.MaxPrice, MethodPattern)...)
	}
	return out, nil
}

// Statistical uses the weekday pattern of the target day with a 95% interval from the recent spread.
func (s *Service) Statistical(ctx context.Context, date time.Time) ([]PriceForecast, error) {
	baseline, err := LoadBaseline(ctx, s.store, date, s.today())
	if err != nil {
		return nil, err
	}
	var out []PriceForecast
	for hour := range 24 {
		base, ok := baseline.Hour(hour)
		if !ok {
			continue
		}
		low, high, ok := baseline.Interval(hour, base.Avg)
		if !ok {
			low, high = base.Avg*0.8, base.Avg*1.2
			if base.HasRange {
				low, high = base.Min, base.Max
			}
		}
		out = append(out, quarters(date, hour, base.Avg, low, high, MethodStatistical)...)
	}
	return out, nil
}

// ForDays forecasts D+2 through D+daysAhead. Tomorrow is left to the published prices.
func (s *Service) ForDays(ctx context.Context, daysAhead int) ([]DayForecast, error) {
	sufficiency, err := s.DataSufficiency(ctx)
	if err != nil {
		return nil, err
	}
	out := []DayForecast{}
	if !sufficiency.CanShowHourlyPatterns {
		return out, nil
	}
	for offset := 2; offset <= daysAhead; offset++ {
		date := s.today().AddDate(0, 0, offset)
		var prices []PriceForecast
		if sufficiency.CanUseStatistical {
			prices, err = s.Statistical(ctx, date)
		} else {
			prices, err = s.PatternBased(ctx, date)
		}
		if err != nil {
			return nil, err
		}
		if len(prices) > 0 {
			out = append(out, DayForecast{Date: date, Prices: prices})
		}
	}
	return out, nil
}

// TomorrowPrices fetches the published prices of the next day. Fetch failures are logged and
// reported as not available.
func (s *Service) TomorrowPrices(ctx context.Context) Tomorrow {
	res := Tomorrow{Date: s.today().AddDate(0, 0, 1)}
	if s.fetcher == nil {
		return res
	}
	prices, rate, err := s.fetcher.FetchSpotPrices(ctx, res.Date)
	if err != nil {
		s.logger.Info("tomorrow's prices not available", zap.Time("date", res.Date), zap.Error(err))
		return res
	}
	res.Prices = prices
	res.Rate = rate
	res.Available = len(prices) > 0
	return res
}

// ForDaysWithWeather forecasts D+1 through D+daysAhead with weather adjusted hourly predictions.
func (s *Service) ForDaysWithWeather(ctx context.Context, daysAhead int) ([]DayForecast, error) {
	out := []DayForecast{}
	if s.weather == nil || s.predictor == nil {
		return out, nil
	}
	days, err := s.store.DataDaysCount(ctx)
	if err != nil {
		return nil, err
	}
	if days < weatherMinDays {
		return out, nil
	}

	weather, err := s.weather.Forecast(ctx, daysAhead+1)
	if err != nil {
		return nil, err
	}
	for offset := 1; offset <= daysAhead; offset++ {
		date := s.today().AddDate(0, 0, offset)
		// a day beyond the weather horizon is predicted unadjusted
		dayWeather := &model.WeatherForecast{Date: date}
		for i := range weather {
			if model.Date(weather[i].Date).Equal(date) {
				dayWeather = &weather[i]
				break
			}
		}
		predictions, err := s.predictor.EnhancedForecast(ctx, date, dayWeather)
		if err != nil {
			return nil, err
		}
		var prices []PriceForecast
		for _, p := range predictions {
			prices = append(prices, quarters(date, p.Hour, p.Price, p.Low, p.High, MethodWeather)...)
		}
		if len(prices) > 0 {
			out = append(out, DayForecast{Date: date, Prices: prices})
		}
	}
	return out, nil
}
