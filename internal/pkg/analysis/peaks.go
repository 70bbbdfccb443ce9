package analysis

import (
	"cmp"
	"context"
	"slices"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

const (
	peakPercentile = 0.90
	mostRiskyHours = 5
	// z-score of a two sided 95% interval
	confidenceZ = 1.96
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskForProbability maps a peak probability to a risk level.
func RiskForProbability(p float64) RiskLevel {
	switch {
	case p >= 0.5:
		return RiskHigh
	case p >= 0.2:
		return RiskMedium
	default:
		return RiskLow
	}
}

type PeakAnalysis struct {
	ThresholdP90          float64     `json:"threshold_p90"`
	TotalPeaks            int         `json:"total_peaks"`
	PeakHoursDistribution map[int]int `json:"peak_hours_distribution"`
	MostRiskyHours        []int       `json:"most_risky_hours"`
	AvgPeakPrice          float64     `json:"avg_peak_price"`
	MaxPeakPrice          float64     `json:"max_peak_price"`
}

type PeakPrediction struct {
	Hour                int       `json:"hour"`
	Probability         float64   `json:"probability"`
	ExpectedPrice       float64   `json:"expected_price"`
	ConfidenceLow       float64   `json:"confidence_low"`
	ConfidenceHigh      float64   `json:"confidence_high"`
	HistoricalPeakCount int       `json:"historical_peak_count"`
	RiskLevel           RiskLevel `json:"risk_level"`
}

// peakSet holds the peak hours found in a price history.
type peakSet struct {
	threshold  float64
	hours      map[int]int // hour of day -> number of days it peaked
	peakPrices []float64
	days       int
}

// findPeaks marks every (date, hour) holding an interval at or above the 90th percentile.
func findPeaks(prices model.SpotPrices) peakSet {
	res := peakSet{hours: map[int]int{}}
	if len(prices) < minSamples {
		return res
	}
	res.threshold = stats.Percentile(stats.Sorted(prices.CZK()), peakPercentile)
	res.days = len(lo.UniqBy(prices, func(p model.SpotPrice) int64 { return model.Date(p.TimeFrom).Unix() }))

	type dayHour struct {
		day  int64
		hour int
	}
	seen := map[dayHour]struct{}{}
	for _, p := range prices {
		if p.PriceCZK < res.threshold {
			continue
		}
		res.peakPrices = append(res.peakPrices, p.PriceCZK)
		key := dayHour{day: model.Date(p.TimeFrom).Unix(), hour: p.Hour()}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		res.hours[key.hour]++
	}
	return res
}

// PeakAnalysis reports the hours that reached the 90th percentile price over the last daysBack days.
func (s *Service) PeakAnalysis(ctx context.Context, daysBack int) (*PeakAnalysis, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	peaks := findPeaks(prices)
	res := &PeakAnalysis{
		ThresholdP90:          peaks.threshold,
		PeakHoursDistribution: peaks.hours,
		MostRiskyHours:        []int{},
	}
	if len(peaks.peakPrices) == 0 {
		return res, nil
	}

	hours := lo.Keys(peaks.hours)
	slices.SortFunc(hours, func(a, b int) int {
		return cmp.Or(cmp.Compare(peaks.hours[b], peaks.hours[a]), cmp.Compare(a, b))
	})
	res.TotalPeaks = lo.Sum(lo.Values(peaks.hours))
	res.MostRiskyHours = hours[:min(mostRiskyHours, len(hours))]
	res.AvgPeakPrice = stats.Mean(peaks.peakPrices)
	res.MaxPeakPrice = lo.Max(peaks.peakPrices)
	return res, nil
}

// PeakProbabilityByHour returns, for all 24 hours, the share of days on which the hour peaked.
func (s *Service) PeakProbabilityByHour(ctx context.Context, daysBack int) (map[int]float64, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	return peakProbability(findPeaks(prices)), nil
}

func peakProbability(peaks peakSet) map[int]float64 {
	out := make(map[int]float64, 24)
	for h := range 24 {
		if peaks.days > 0 {
			out[h] = float64(peaks.hours[h]) / float64(peaks.days)
		} else {
			out[h] = 0
		}
	}
	return out
}

// PredictPeaksTomorrow returns a prediction for each of the 24 hours of the next day.
func (s *Service) PredictPeaksTomorrow(ctx context.Context, daysBack int) ([]PeakPrediction, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	peaks := findPeaks(prices)
	probability := peakProbability(peaks)
	byHour := lo.GroupBy(prices, func(p model.SpotPrice) int { return p.Hour() })

	out := make([]PeakPrediction, 0, 24)
	for h := range 24 {
		values := byHour[h].CZK()
		expected := stats.Mean(values)
		low, high := ConfidenceInterval(expected, stats.StdDev(values))
		out = append(out, PeakPrediction{
			Hour:                h,
			Probability:         probability[h],
			ExpectedPrice:       expected,
			ConfidenceLow:       low,
			ConfidenceHigh:      high,
			HistoricalPeakCount: peaks.hours[h],
			RiskLevel:           RiskForProbability(probability[h]),
		})
	}
	return out, nil
}

// ConfidenceInterval returns the 95% interval around mean. A non-negative mean keeps a non-negative lower bound.
func ConfidenceInterval(mean, std float64) (float64, float64) {
	low := mean - confidenceZ*std
	if mean >= 0 && low < 0 {
		low = 0
	}
	return low, mean + confidenceZ*std
}

// IsPricePeak reports whether price reaches the 90th percentile of the last daysBack days.
func (s *Service) IsPricePeak(ctx context.Context, price float64, daysBack int) (bool, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return false, err
	}
	peaks := findPeaks(prices)
	return peaks.threshold > 0 && price >= peaks.threshold, nil
}
