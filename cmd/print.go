package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/analysis"
	"github.com/anicoll/ote-spot/internal/pkg/forecast"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

func clock(t time.Time) string {
	return t.In(model.MarketLocation).Format("15:04")
}

func printPrices(w io.Writer, prices model.SpotPrices, all bool) error {
	if !all {
		prices = prices.HourlyAverages()
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "From\tTo\tEUR/MWh\tCZK/MWh\t")
	for _, p := range prices {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t\n", clock(p.TimeFrom), clock(p.TimeTo), p.PriceEUR, p.PriceCZK)
	}
	return tw.Flush()
}

// printDailyStats prints the summary line of one day.
func printDailyStats(w io.Writer, prices model.SpotPrices, rate float64) {
	if len(prices) == 0 {
		return
	}
	czk := prices.CZK()
	fmt.Fprintf(w, "\nmin %.2f  avg %.2f  max %.2f CZK/MWh  (%d intervals, EUR/CZK %.3f)\n",
		lo.Min(czk), stats.Mean(czk), lo.Max(czk), len(prices), rate)
}

func printCurrent(w io.Writer, p model.SpotPrice) {
	fmt.Fprintf(w, "current %s-%s: %.2f CZK/MWh (%.2f EUR/MWh)\n", clock(p.TimeFrom), clock(p.TimeTo), p.PriceCZK, p.PriceEUR)
}

func printHistory(w io.Writer, days []*model.DailyStats) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Date\tMin\tAvg\tMax\tIntervals\tEUR/CZK\t")
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t%.3f\t\n",
			d.Date.Format(time.DateOnly), d.Min, d.Avg, d.Max, d.Count, d.EURCZKRate)
	}
	return tw.Flush()
}

type analysisReport struct {
	Patterns   []analysis.HourlyPattern
	Best       []analysis.HourPrice
	Worst      []analysis.HourPrice
	Trend      *analysis.PriceTrend
	Volatility *analysis.VolatilityMetrics
	Profiles   []analysis.ConsumptionProfile
}

func hours(hs []analysis.HourPrice) string {
	return fmt.Sprint(lo.Map(hs, func(h analysis.HourPrice, _ int) string {
		return fmt.Sprintf("%02d:00 (%.0f)", h.Hour, h.AvgPrice)
	}))
}

func printAnalysis(w io.Writer, r analysisReport) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Hour\tAvg\tMin\tMax\tSamples\t")
	for _, p := range r.Patterns {
		fmt.Fprintf(tw, "%02d\t%.2f\t%.2f\t%.2f\t%d\t\n", p.Hour, p.AvgPrice, p.MinPrice, p.MaxPrice, p.SampleCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\ncheapest hours: %s\n", hours(r.Best))
	fmt.Fprintf(w, "dearest hours:  %s\n", hours(r.Worst))
	if r.Trend != nil {
		fmt.Fprintf(w, "trend: %s", r.Trend.Direction)
		if r.Trend.ChangePercent != nil {
			fmt.Fprintf(w, " (%+.1f%%)", *r.Trend.ChangePercent)
		}
		fmt.Fprintln(w)
	}
	if v := r.Volatility; v != nil {
		fmt.Fprintf(w, "volatility: daily %.2f  intraday %.2f  max swing %.2f  VaR95 %.2f  (%s)\n",
			v.DailyVolatility, v.IntradayVolatility, v.MaxDailySwing, v.VaR95, v.VolatilityTrend)
	}

	if len(r.Profiles) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "Profile\tAvg CZK\tvs flat %\tBest day\tWorst day\t")
	for _, p := range r.Profiles {
		fmt.Fprintf(tw, "%s\t%.2f\t%+.1f\t%s\t%s\t\n", p.Name, p.AvgPriceCZK, p.SavingsVsFlatPct, p.BestDay, p.WorstDay)
	}
	return tw.Flush()
}

func printForecast(w io.Writer, tomorrow forecast.Tomorrow, days []forecast.DayForecast) error {
	if tomorrow.Available {
		fmt.Fprintf(w, "tomorrow %s is published: avg %.2f CZK/MWh\n",
			tomorrow.Date.Format(time.DateOnly), stats.Mean(tomorrow.Prices.CZK()))
	} else {
		fmt.Fprintf(w, "tomorrow %s is not published yet\n", tomorrow.Date.Format(time.DateOnly))
	}
	if len(days) == 0 {
		fmt.Fprintln(w, "not enough history for a forecast")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "Date\tMethod\tAvg\tLow\tHigh\t")
	for _, d := range days {
		if len(d.Prices) == 0 {
			continue
		}
		avg := stats.Mean(lo.Map(d.Prices, func(p forecast.PriceForecast, _ int) float64 { return p.PriceCZK }))
		low := lo.MinBy(d.Prices, func(a, b forecast.PriceForecast) bool { return a.ConfidenceLow < b.ConfidenceLow })
		high := lo.MaxBy(d.Prices, func(a, b forecast.PriceForecast) bool { return a.ConfidenceHigh > b.ConfidenceHigh })
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%.2f\t\n",
			d.Date.Format(time.DateOnly), d.Prices[0].Method, avg, low.ConfidenceLow, high.ConfidenceHigh)
	}
	return tw.Flush()
}
