package forecast

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

const (
	weekdayWindowDays = 60
	hourlyWindowDays  = 30
	sigmaWindowDays   = 30
	// z-score of a two sided 95% interval
	confidenceZ = 1.96
)

// BaselineStore is the read side a Baseline is loaded from.
type BaselineStore interface {
	PricesForRange(ctx context.Context, start, end time.Time) (model.SpotPrices, error)
	HourlyAggregates(ctx context.Context, since time.Time) ([]model.HourlyAggregate, error)
	WeekdayAggregates(ctx context.Context, since time.Time) ([]model.WeekdayAggregate, error)
}

// HourBase is the reference price of one hour. HasRange is false when Min and Max are unknown.
type HourBase struct {
	Avg      float64
	Min      float64
	Max      float64
	HasRange bool
}

// Baseline holds, for one target day, the reference price and recent spread of every hour.
type Baseline struct {
	weekday map[int]model.WeekdayAggregate
	hourly  map[int]model.HourlyAggregate
	recent  map[int][]float64
}

// LoadBaseline reads the 60 day aggregate of the target weekday, the 30 day hourly aggregate
// and the last 30 days of prices, all relative to today.
func LoadBaseline(ctx context.Context, store BaselineStore, target, today time.Time) (*Baseline, error) {
	weekdayAggs, err := store.WeekdayAggregates(ctx, today.AddDate(0, 0, -weekdayWindowDays))
	if err != nil {
		return nil, err
	}
	hourlyAggs, err := store.HourlyAggregates(ctx, today.AddDate(0, 0, -hourlyWindowDays))
	if err != nil {
		return nil, err
	}
	prices, err := store.PricesForRange(ctx, today.AddDate(0, 0, -sigmaWindowDays), today)
	if err != nil {
		return nil, err
	}

	weekday := model.MondayFirst(target.Weekday())
	return &Baseline{
		weekday: lo.SliceToMap(
			lo.Filter(weekdayAggs, func(a model.WeekdayAggregate, _ int) bool { return a.Weekday == weekday }),
			func(a model.WeekdayAggregate) (int, model.WeekdayAggregate) { return a.Hour, a },
		),
		hourly: lo.SliceToMap(hourlyAggs, func(a model.HourlyAggregate) (int, model.HourlyAggregate) { return a.Hour, a }),
		recent: lo.MapValues(
			lo.GroupBy(prices, func(p model.SpotPrice) int { return p.Hour() }),
			func(ps model.SpotPrices, _ int) []float64 { return ps.CZK() },
		),
	}, nil
}

// Hour prefers the target weekday's average and falls back to the plain hourly average.
func (b *Baseline) Hour(hour int) (HourBase, bool) {
	if a, ok := b.weekday[hour]; ok {
		return HourBase{Avg: a.AvgPrice}, true
	}
	if a, ok := b.hourly[hour]; ok {
		return HourBase{Avg: a.AvgPrice, Min: a.MinPrice, Max: a.MaxPrice, HasRange: true}, true
	}
	return HourBase{}, false
}

// Interval returns the 95% interval around price from the recent spread of the hour.
// ok is false when fewer than two recent prices exist for the hour.
func (b *Baseline) Interval(hour int, price float64) (low, high float64, ok bool) {
	values := b.recent[hour]
	if len(values) < 2 {
		return 0, 0, false
	}
	std := stats.StdDev(values)
	return max(0, price-confidenceZ*std), price + confidenceZ*std, true
}
