package analysis

import (
	"context"
	"slices"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/samber/lo"
)

// negativeForecastMinHits is how many negative hours in the last 30 days mark an hour as likely negative.
const negativeForecastMinHits = 3

type NegativePriceStats struct {
	Count             int         `json:"count"`
	AvgNegativePrice  *float64    `json:"avg_negative_price"`
	MinPrice          *float64    `json:"min_price"`
	HoursDistribution map[int]int `json:"hours_distribution"`
}

func (s *Service) NegativePriceHours(ctx context.Context, daysBack int) ([]model.NegativePriceHour, error) {
	return s.store.NegativePriceHours(ctx, s.since(daysBack))
}

// NegativePriceStats summarises the hours that cleared at or below zero.
func (s *Service) NegativePriceStats(ctx context.Context, daysBack int) (*NegativePriceStats, error) {
	hours, err := s.NegativePriceHours(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	res := &NegativePriceStats{HoursDistribution: map[int]int{}}
	if len(hours) == 0 {
		return res, nil
	}

	prices := lo.Map(hours, func(h model.NegativePriceHour, _ int) float64 { return h.PriceCZK })
	avg := lo.Sum(prices) / float64(len(prices))
	minPrice := lo.Min(prices)

	res.Count = len(hours)
	res.AvgNegativePrice = &avg
	res.MinPrice = &minPrice
	res.HoursDistribution = lo.CountValuesBy(hours, func(h model.NegativePriceHour) int { return h.Hour })
	return res, nil
}

// NegativePriceForecast returns the hours, ascending, that were negative at least three times in the last 30 days.
func (s *Service) NegativePriceForecast(ctx context.Context) ([]int, error) {
	stats, err := s.NegativePriceStats(ctx, 30)
	if err != nil {
		return nil, err
	}
	hours := lo.Keys(lo.PickBy(stats.HoursDistribution, func(_ int, count int) bool {
		return count >= negativeForecastMinHits
	}))
	slices.Sort(hours)
	return hours, nil
}
