package analysis

import (
	"context"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

type PriceBenchmark struct {
	CurrentPrice   float64    `json:"current_price"`
	Avg7d          float64    `json:"avg_7d"`
	Avg30d         float64    `json:"avg_30d"`
	PercentileRank int        `json:"percentile_rank"`
	VsYesterdayPct float64    `json:"vs_yesterday_pct"`
	VsLastWeekPct  float64    `json:"vs_last_week_pct"`
	Classification PriceLevel `json:"classification"`
}

// CurrentBenchmark places price within the last daysBack days of history.
func (s *Service) CurrentBenchmark(ctx context.Context, price float64, daysBack int) (*PriceBenchmark, error) {
	res := &PriceBenchmark{CurrentPrice: price, Classification: LevelInsufficientData}

	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	if len(prices) < minSamples {
		return res, nil
	}

	// the last 7 report dates, today included
	weekStart := s.since(6)
	lastWeek := lo.Filter(prices, func(p model.SpotPrice, _ int) bool {
		return !model.Date(p.TimeFrom).Before(weekStart)
	})
	values := prices.CZK()
	below := lo.CountBy(values, func(v float64) bool { return v < price })

	res.Avg7d = stats.Mean(lastWeek.CZK())
	res.Avg30d = stats.Mean(values)
	res.PercentileRank = 100 * below / len(values)
	res.Classification = levelForRank(res.PercentileRank)

	daily, err := s.store.DailyAverages(ctx, s.since(7))
	if err != nil {
		return nil, err
	}
	dayAvg := func(daysAgo int) float64 {
		d := s.today().AddDate(0, 0, -daysAgo)
		found, ok := lo.Find(daily, func(a model.DailyAverage) bool { return a.Date.Equal(d) })
		if !ok {
			return 0
		}
		return found.AvgPrice
	}
	res.VsYesterdayPct = stats.PercentChange(price, dayAvg(1))
	res.VsLastWeekPct = stats.PercentChange(price, dayAvg(7))
	return res, nil
}
