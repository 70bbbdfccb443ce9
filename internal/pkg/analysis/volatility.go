package analysis

import (
	"context"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

// volatilityTrendThreshold is the relative change in spread, in percent, that counts as a trend.
const volatilityTrendThreshold = 10

type VolatilityMetrics struct {
	DailyVolatility    float64        `json:"daily_volatility"`
	IntradayVolatility float64        `json:"intraday_volatility"`
	MaxDailySwing      float64        `json:"max_daily_swing"`
	AvgDailySwing      float64        `json:"avg_daily_swing"`
	VaR95              float64        `json:"var_95"`
	VaR99              float64        `json:"var_99"`
	VolatilityTrend    TrendDirection `json:"volatility_trend"`
}

// VolatilityMetrics measures price dispersion over the last daysBack days.
// VaR95 and VaR99 are the price levels exceeded in only 5% and 1% of intervals.
func (s *Service) VolatilityMetrics(ctx context.Context, daysBack int) (*VolatilityMetrics, error) {
	daily, err := s.store.DailyAverages(ctx, s.since(daysBack))
	if err != nil {
		return nil, err
	}
	if len(daily) < 2 {
		return &VolatilityMetrics{VolatilityTrend: TrendInsufficientData}, nil
	}
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	return Volatility(daily, prices), nil
}

func Volatility(daily []model.DailyAverage, prices model.SpotPrices) *VolatilityMetrics {
	if len(daily) < 2 {
		return &VolatilityMetrics{VolatilityTrend: TrendInsufficientData}
	}
	avgs := lo.Map(daily, func(d model.DailyAverage, _ int) float64 { return d.AvgPrice })
	swings := lo.Map(daily, func(d model.DailyAverage, _ int) float64 { return d.MaxPrice - d.MinPrice })

	res := &VolatilityMetrics{
		DailyVolatility: stats.StdDev(avgs),
		MaxDailySwing:   lo.Max(swings),
		AvgDailySwing:   stats.Mean(swings),
		VolatilityTrend: volatilityTrend(avgs),
	}

	byDay := lo.GroupBy(prices, func(p model.SpotPrice) int64 { return model.Date(p.TimeFrom).Unix() })
	if len(byDay) > 0 {
		res.IntradayVolatility = stats.Mean(lo.MapToSlice(byDay, func(_ int64, ps model.SpotPrices) float64 {
			return stats.StdDev(ps.CZK())
		}))
	}
	if len(prices) > 0 {
		sorted := stats.Sorted(prices.CZK())
		res.VaR95 = stats.Percentile(sorted, 0.95)
		res.VaR99 = stats.Percentile(sorted, 0.99)
	}
	return res
}

// volatilityTrend compares the spread of daily averages in the older and newer half of the period.
func volatilityTrend(avgs []float64) TrendDirection {
	if len(avgs) < 4 {
		return TrendStable
	}
	half := len(avgs) / 2
	older, newer := stats.StdDev(avgs[:half]), stats.StdDev(avgs[half:])
	if older == 0 {
		if newer > 0 {
			return TrendRising
		}
		return TrendStable
	}
	change := stats.PercentChange(newer, older)
	switch {
	case change > volatilityTrendThreshold:
		return TrendRising
	case change < -volatilityTrendThreshold:
		return TrendFalling
	default:
		return TrendStable
	}
}
