package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

const histogramBins = 20

type PriceDistribution struct {
	Bins        []string           `json:"bins"`
	Counts      []int              `json:"counts"`
	Percentiles map[string]float64 `json:"percentiles"`
}

// PriceDistribution returns a 20-bin histogram with the main percentiles, empty below ten samples.
func (s *Service) PriceDistribution(ctx context.Context, daysBack int) (*PriceDistribution, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	return Distribution(prices.CZK()), nil
}

// Distribution bins values into histogramBins equal-width bins spanning min..max.
func Distribution(values []float64) *PriceDistribution {
	if len(values) < minSamples {
		return &PriceDistribution{Bins: []string{}, Counts: []int{}, Percentiles: map[string]float64{}}
	}
	sorted := stats.Sorted(values)
	lowest, highest := sorted[0], sorted[len(sorted)-1]

	width := (highest - lowest) / histogramBins
	if highest <= lowest {
		width = 1
	}

	res := &PriceDistribution{
		Bins:   make([]string, histogramBins),
		Counts: make([]int, histogramBins),
		Percentiles: map[string]float64{
			"p10": stats.Percentile(sorted, 0.10),
			"p25": stats.Percentile(sorted, 0.25),
			"p50": stats.Percentile(sorted, 0.50),
			"p75": stats.Percentile(sorted, 0.75),
			"p90": stats.Percentile(sorted, 0.90),
		},
	}
	for i := range histogramBins {
		start := lowest + float64(i)*width
		res.Bins[i] = fmt.Sprintf("%.0f-%.0f", start, start+width)
	}
	for _, v := range sorted {
		idx := int(math.Floor((v - lowest) / width))
		res.Counts[min(max(idx, 0), histogramBins-1)]++
	}
	return res
}

type MovingAverageDay struct {
	Date     time.Time `json:"date"`
	DailyAvg float64   `json:"daily_avg"`
	MA7      *float64  `json:"ma7"`
	MA30     *float64  `json:"ma30"`
}

// MovingAverages returns the daily averages with trailing 7 and 30 day means once enough days exist.
func (s *Service) MovingAverages(ctx context.Context, daysBack int) ([]MovingAverageDay, error) {
	daily, err := s.store.DailyAverages(ctx, s.since(daysBack))
	if err != nil {
		return nil, err
	}
	return MovingAverages(daily), nil
}

func MovingAverages(daily []model.DailyAverage) []MovingAverageDay {
	avgs := lo.Map(daily, func(d model.DailyAverage, _ int) float64 { return d.AvgPrice })
	out := make([]MovingAverageDay, 0, len(daily))
	for i, d := range daily {
		day := MovingAverageDay{Date: d.Date, DailyAvg: d.AvgPrice}
		if i >= 6 {
			ma := stats.Mean(avgs[i-6 : i+1])
			day.MA7 = &ma
		}
		if i >= 29 {
			ma := stats.Mean(avgs[i-29 : i+1])
			day.MA30 = &ma
		}
		out = append(out, day)
	}
	return out
}

type TrendDirection string

const (
	TrendRising           TrendDirection = "rising"
	TrendFalling          TrendDirection = "falling"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient data"
)

type PriceTrend struct {
	Direction     TrendDirection `json:"direction"`
	ChangePercent *float64       `json:"change_percent"`
	CurrentAvg    *float64       `json:"current_avg"`
	PreviousAvg   *float64       `json:"previous_avg"`
}

// PriceTrend compares the average of the last daysBack days with the period before it.
func (s *Service) PriceTrend(ctx context.Context, daysBack int) (*PriceTrend, error) {
	daily, err := s.store.DailyAverages(ctx, s.since(daysBack*2))
	if err != nil {
		return nil, err
	}
	return Trend(daily, daysBack), nil
}

// Trend moves more than 5% either way to count as rising or falling.
func Trend(daily []model.DailyAverage, daysBack int) *PriceTrend {
	if daysBack <= 0 || len(daily) < daysBack {
		return &PriceTrend{Direction: TrendInsufficientData}
	}
	avgs := lo.Map(daily, func(d model.DailyAverage, _ int) float64 { return d.AvgPrice })
	n := len(avgs)

	current := stats.Mean(avgs[n-daysBack:])
	var previousPeriod []float64
	if n >= daysBack*2 {
		previousPeriod = avgs[n-daysBack*2 : n-daysBack]
	} else {
		previousPeriod = avgs[:n-daysBack]
	}
	if len(previousPeriod) == 0 {
		return &PriceTrend{Direction: TrendInsufficientData, CurrentAvg: &current}
	}
	previous := stats.Mean(previousPeriod)
	change := stats.PercentChange(current, previous)

	direction := TrendStable
	switch {
	case change > 5:
		direction = TrendRising
	case change < -5:
		direction = TrendFalling
	}
	return &PriceTrend{
		Direction:     direction,
		ChangePercent: &change,
		CurrentAvg:    &current,
		PreviousAvg:   &previous,
	}
}
