// Package memstore is an in-memory price store with the same query semantics as the Postgres one.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/samber/lo"
)

type key struct {
	reportDate string
	timeFrom   int64
}

type row struct {
	reportDate time.Time
	price      model.SpotPrice
	rate       float64
}

type Store struct {
	mu   sync.RWMutex
	rows map[key]row
}

func New() *Store {
	return &Store{rows: map[key]row{}}
}

func (s *Store) SavePrices(_ context.Context, reportDate time.Time, prices model.SpotPrices, rate float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reportDate = model.Date(reportDate)
	for _, p := range prices {
		p.TimeFrom = p.TimeFrom.In(model.MarketLocation)
		p.TimeTo = p.TimeTo.In(model.MarketLocation)
		s.rows[key{reportDate: reportDate.Format(time.DateOnly), timeFrom: p.TimeFrom.Unix()}] = row{
			reportDate: reportDate,
			price:      p,
			rate:       rate,
		}
	}
	return len(prices), nil
}

// selectRows returns the rows matching keep, ordered by interval start.
func (s *Store) selectRows(keep func(r row) bool) []row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := lo.Filter(lo.Values(s.rows), func(r row, _ int) bool { return keep(r) })
	slices.SortFunc(out, func(a, b row) int { return a.price.TimeFrom.Compare(b.price.TimeFrom) })
	return out
}

func since(d time.Time) func(r row) bool {
	d = model.Date(d)
	return func(r row) bool { return !r.reportDate.Before(d) }
}

func prices(rows []row) model.SpotPrices {
	return lo.Map(rows, func(r row, _ int) model.SpotPrice { return r.price })
}

func czk(rows []row) []float64 {
	return lo.Map(rows, func(r row, _ int) float64 { return r.price.PriceCZK })
}

func (s *Store) PricesForDate(_ context.Context, date time.Time) (model.SpotPrices, error) {
	date = model.Date(date)
	return prices(s.selectRows(func(r row) bool { return r.reportDate.Equal(date) })), nil
}

func (s *Store) PricesForRange(_ context.Context, start, end time.Time) (model.SpotPrices, error) {
	start, end = model.Date(start), model.Date(end)
	return prices(s.selectRows(func(r row) bool {
		return !r.reportDate.Before(start) && !r.reportDate.After(end)
	})), nil
}

func (s *Store) AvailableDates(_ context.Context) ([]time.Time, error) {
	rows := s.selectRows(func(row) bool { return true })
	dates := lo.UniqBy(lo.Map(rows, func(r row, _ int) time.Time { return r.reportDate }), func(t time.Time) int64 { return t.Unix() })
	slices.SortFunc(dates, func(a, b time.Time) int { return b.Compare(a) })
	return dates, nil
}

func (s *Store) DailyStats(_ context.Context, date time.Time) (*model.DailyStats, error) {
	date = model.Date(date)
	rows := s.selectRows(func(r row) bool { return r.reportDate.Equal(date) })
	if len(rows) == 0 {
		return nil, nil
	}
	values := czk(rows)
	return &model.DailyStats{
		Date:       date,
		Min:        lo.Min(values),
		Max:        lo.Max(values),
		Avg:        lo.Sum(values) / float64(len(values)),
		Count:      len(values),
		EURCZKRate: lo.MaxBy(rows, func(a, b row) bool { return a.rate > b.rate }).rate,
	}, nil
}

func (s *Store) HourlyAggregates(_ context.Context, from time.Time) ([]model.HourlyAggregate, error) {
	groups := lo.GroupBy(s.selectRows(since(from)), func(r row) int { return r.price.Hour() })
	out := make([]model.HourlyAggregate, 0, len(groups))
	for hour, rows := range groups {
		values := czk(rows)
		out = append(out, model.HourlyAggregate{
			Hour:     hour,
			AvgPrice: lo.Sum(values) / float64(len(values)),
			MinPrice: lo.Min(values),
			MaxPrice: lo.Max(values),
			Count:    len(values),
		})
	}
	slices.SortFunc(out, func(a, b model.HourlyAggregate) int { return cmp.Compare(a.Hour, b.Hour) })
	return out, nil
}

func (s *Store) WeekdayAggregates(_ context.Context, from time.Time) ([]model.WeekdayAggregate, error) {
	type wh struct{ weekday, hour int }
	groups := lo.GroupBy(s.selectRows(since(from)), func(r row) wh {
		return wh{weekday: model.MondayFirst(r.price.TimeFrom.Weekday()), hour: r.price.Hour()}
	})
	out := make([]model.WeekdayAggregate, 0, len(groups))
	for k, rows := range groups {
		values := czk(rows)
		out = append(out, model.WeekdayAggregate{
			Weekday:  k.weekday,
			Hour:     k.hour,
			AvgPrice: lo.Sum(values) / float64(len(values)),
			Count:    len(values),
		})
	}
	slices.SortFunc(out, func(a, b model.WeekdayAggregate) int {
		return cmp.Or(cmp.Compare(a.Weekday, b.Weekday), cmp.Compare(a.Hour, b.Hour))
	})
	return out, nil
}

func (s *Store) DataDaysCount(ctx context.Context) (int, error) {
	dates, err := s.AvailableDates(ctx)
	return len(dates), err
}

func (s *Store) OverallStats(_ context.Context, from time.Time) (*model.OverallStats, error) {
	values := czk(s.selectRows(since(from)))
	if len(values) == 0 {
		return nil, nil
	}
	return &model.OverallStats{
		AvgPrice: lo.Sum(values) / float64(len(values)),
		MinPrice: lo.Min(values),
		MaxPrice: lo.Max(values),
		Count:    len(values),
	}, nil
}

func (s *Store) NegativePriceHours(_ context.Context, from time.Time) ([]model.NegativePriceHour, error) {
	type dh struct {
		date int64
		hour int
	}
	rows := s.selectRows(func(r row) bool { return since(from)(r) && r.price.PriceCZK <= 0 })
	groups := lo.GroupBy(rows, func(r row) dh { return dh{date: r.reportDate.Unix(), hour: r.price.Hour()} })
	out := make([]model.NegativePriceHour, 0, len(groups))
	for _, rows := range groups {
		out = append(out, model.NegativePriceHour{
			Date:     rows[0].reportDate,
			Hour:     rows[0].price.Hour(),
			PriceCZK: lo.Min(czk(rows)),
		})
	}
	slices.SortFunc(out, func(a, b model.NegativePriceHour) int {
		return cmp.Or(b.Date.Compare(a.Date), cmp.Compare(a.Hour, b.Hour))
	})
	return out, nil
}

func (s *Store) DailyAverages(_ context.Context, from time.Time) ([]model.DailyAverage, error) {
	groups := lo.GroupBy(s.selectRows(since(from)), func(r row) int64 { return r.reportDate.Unix() })
	out := make([]model.DailyAverage, 0, len(groups))
	for _, rows := range groups {
		values := czk(rows)
		out = append(out, model.DailyAverage{
			Date:     rows[0].reportDate,
			AvgPrice: lo.Sum(values) / float64(len(values)),
			MinPrice: lo.Min(values),
			MaxPrice: lo.Max(values),
		})
	}
	slices.SortFunc(out, func(a, b model.DailyAverage) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Store) Cleanup(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before = model.Date(before)
	var deleted int64
	for k, r := range s.rows {
		if r.reportDate.Before(before) {
			delete(s.rows, k)
			deleted++
		}
	}
	return deleted, nil
}
