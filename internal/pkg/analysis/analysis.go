// Package analysis derives price statistics from the stored spot prices.
// Every result is computed on demand. A lack of history is reported in the result, never as an error.
package analysis

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"go.uber.org/zap"
)

const minSamples = 10

type priceStore interface {
	PricesForRange(ctx context.Context, start, end time.Time) (model.SpotPrices, error)
	HourlyAggregates(ctx context.Context, since time.Time) ([]model.HourlyAggregate, error)
	WeekdayAggregates(ctx context.Context, since time.Time) ([]model.WeekdayAggregate, error)
	OverallStats(ctx context.Context, since time.Time) (*model.OverallStats, error)
	NegativePriceHours(ctx context.Context, since time.Time) ([]model.NegativePriceHour, error)
	DailyAverages(ctx context.Context, since time.Time) ([]model.DailyAverage, error)
}

type Service struct {
	store  priceStore
	now    func() time.Time
	logger *zap.Logger
}

func New(store priceStore) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: zap.L(),
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

func (s *Service) since(daysBack int) time.Time {
	return s.today().AddDate(0, 0, -daysBack)
}

// recentPrices returns the quotes from daysBack days ago through today.
func (s *Service) recentPrices(ctx context.Context, daysBack int) (model.SpotPrices, error) {
	return s.store.PricesForRange(ctx, s.since(daysBack), s.today())
}

type PriceLevel string

const (
	LevelVeryCheap        PriceLevel = "very cheap"
	LevelCheap            PriceLevel = "cheap"
	LevelNormal           PriceLevel = "normal"
	LevelExpensive        PriceLevel = "expensive"
	LevelVeryExpensive    PriceLevel = "very expensive"
	LevelInsufficientData PriceLevel = "insufficient data"
)

var levelColors = map[PriceLevel]string{
	LevelVeryCheap:        "#28a745",
	LevelCheap:            "#7cb342",
	LevelNormal:           "#ffc107",
	LevelExpensive:        "#ff9800",
	LevelVeryExpensive:    "#dc3545",
	LevelInsufficientData: "#6c757d",
}

// Color returns the display color of a level, grey for anything unknown.
func (l PriceLevel) Color() string {
	if c, ok := levelColors[l]; ok {
		return c
	}
	return "#6c757d"
}

// Classify places price among the ascending historical prices by the 10/30/70/90th percentiles.
func Classify(price float64, sorted []float64) PriceLevel {
	if len(sorted) < minSamples {
		return LevelInsufficientData
	}
	switch {
	case price <= stats.Percentile(sorted, 0.10):
		return LevelVeryCheap
	case price <= stats.Percentile(sorted, 0.30):
		return LevelCheap
	case price <= stats.Percentile(sorted, 0.70):
		return LevelNormal
	case price <= stats.Percentile(sorted, 0.90):
		return LevelExpensive
	default:
		return LevelVeryExpensive
	}
}

// levelForRank classifies a 0-100 percentile rank with the same cut points as Classify.
func levelForRank(rank int) PriceLevel {
	switch {
	case rank <= 10:
		return LevelVeryCheap
	case rank <= 30:
		return LevelCheap
	case rank <= 70:
		return LevelNormal
	case rank <= 90:
		return LevelExpensive
	default:
		return LevelVeryExpensive
	}
}

// ClassifyPrice classifies a CZK/MWh price against the last daysBack days.
func (s *Service) ClassifyPrice(ctx context.Context, price float64, daysBack int) (PriceLevel, error) {
	overall, err := s.store.OverallStats(ctx, s.since(daysBack))
	if err != nil {
		return "", err
	}
	if overall == nil || overall.Count < minSamples {
		return LevelInsufficientData, nil
	}
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return "", err
	}
	return Classify(price, stats.Sorted(prices.CZK())), nil
}

// Classifier returns a function classifying prices against the last daysBack days, loading history once.
func (s *Service) Classifier(ctx context.Context, daysBack int) (func(float64) PriceLevel, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	sorted := stats.Sorted(prices.CZK())
	return func(price float64) PriceLevel { return Classify(price, sorted) }, nil
}

type HourlyPattern struct {
	Hour        int     `json:"hour"`
	AvgPrice    float64 `json:"avg_price"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	SampleCount int     `json:"sample_count"`
}

// HourlyPatterns returns one entry per hour that has data, ordered by hour.
func (s *Service) HourlyPatterns(ctx context.Context, daysBack int) ([]HourlyPattern, error) {
	aggs, err := s.store.HourlyAggregates(ctx, s.since(daysBack))
	if err != nil {
		return nil, err
	}
	out := make([]HourlyPattern, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, HourlyPattern{
			Hour:        a.Hour,
			AvgPrice:    a.AvgPrice,
			MinPrice:    a.MinPrice,
			MaxPrice:    a.MaxPrice,
			SampleCount: a.Count,
		})
	}
	return out, nil
}

type HourPrice struct {
	Hour     int     `json:"hour"`
	AvgPrice float64 `json:"avg_price"`
}

// BestHours returns the topN cheapest hours, cheapest first.
func (s *Service) BestHours(ctx context.Context, topN, daysBack int) ([]HourPrice, error) {
	return s.rankedHours(ctx, topN, daysBack, func(a, b HourlyPattern) int {
		return cmp.Compare(a.AvgPrice, b.AvgPrice)
	})
}

// WorstHours returns the topN most expensive hours, most expensive first.
func (s *Service) WorstHours(ctx context.Context, topN, daysBack int) ([]HourPrice, error) {
	return s.rankedHours(ctx, topN, daysBack, func(a, b HourlyPattern) int {
		return cmp.Compare(b.AvgPrice, a.AvgPrice)
	})
}

func (s *Service) rankedHours(ctx context.Context, topN, daysBack int, order func(a, b HourlyPattern) int) ([]HourPrice, error) {
	patterns, err := s.HourlyPatterns(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(patterns, order)
	patterns = patterns[:min(topN, len(patterns))]

	out := make([]HourPrice, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, HourPrice{Hour: p.Hour, AvgPrice: p.AvgPrice})
	}
	return out, nil
}

// WeekdayNames are indexed Monday first.
var WeekdayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

type HeatmapCell struct {
	Weekday     int     `json:"weekday"`
	WeekdayName string  `json:"weekday_name"`
	Hour        int     `json:"hour"`
	AvgPrice    float64 `json:"avg_price"`
}

// WeekdayHourHeatmap returns the average price of every weekday and hour combination with data.
func (s *Service) WeekdayHourHeatmap(ctx context.Context, daysBack int) ([]HeatmapCell, error) {
	aggs, err := s.store.WeekdayAggregates(ctx, s.since(daysBack))
	if err != nil {
		return nil, err
	}
	out := make([]HeatmapCell, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, HeatmapCell{
			Weekday:     a.Weekday,
			WeekdayName: WeekdayNames[a.Weekday],
			Hour:        a.Hour,
			AvgPrice:    a.AvgPrice,
		})
	}
	return out, nil
}
