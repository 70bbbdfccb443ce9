package analysis

import (
	"context"
	"testing"

	"github.com/anicoll/ote-spot/internal/pkg/database/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeakAnalysis(t *testing.T) {
	svc := newService(populated(t))

	peaks, err := svc.PeakAnalysis(context.Background(), 14)
	require.NoError(t, err)
	assert.InDelta(t, 2475.0, peaks.ThresholdP90, 1e-6)
	// evening hours peak on the 1.1 and 1.2 days of the cycle
	assert.Equal(t, map[int]int{17: 9, 18: 9, 19: 9, 20: 9, 21: 9}, peaks.PeakHoursDistribution)
	assert.Equal(t, 45, peaks.TotalPeaks)
	assert.Equal(t, []int{17, 18, 19, 20, 21}, peaks.MostRiskyHours)
	assert.InDelta(t, 2700.0, peaks.MaxPeakPrice, 1e-6)
	assert.Greater(t, peaks.AvgPeakPrice, peaks.ThresholdP90)
}

func TestPeakAnalysis_Empty(t *testing.T) {
	svc := newService(memstore.New())

	peaks, err := svc.PeakAnalysis(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, peaks.ThresholdP90)
	assert.Zero(t, peaks.TotalPeaks)
	assert.Empty(t, peaks.MostRiskyHours)
}

func TestPeakProbabilityByHour(t *testing.T) {
	svc := newService(populated(t))

	probs, err := svc.PeakProbabilityByHour(context.Background(), 14)
	require.NoError(t, err)
	require.Len(t, probs, 24)
	for h, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		if h >= 17 && h <= 21 {
			assert.InDelta(t, 9.0/14.0, p, 1e-9)
		} else {
			assert.Zero(t, p)
		}
	}
}

func TestPredictPeaksTomorrow(t *testing.T) {
	svc := newService(populated(t))

	predictions, err := svc.PredictPeaksTomorrow(context.Background(), 14)
	require.NoError(t, err)
	require.Len(t, predictions, 24)
	for i, p := range predictions {
		assert.Equal(t, i, p.Hour)
		assert.LessOrEqual(t, p.ConfidenceLow, p.ExpectedPrice)
		assert.LessOrEqual(t, p.ExpectedPrice, p.ConfidenceHigh)
		assert.Greater(t, p.ExpectedPrice, 0.0)
		assert.Equal(t, RiskForProbability(p.Probability), p.RiskLevel)
	}
	assert.Equal(t, RiskHigh, predictions[19].RiskLevel)
	assert.Equal(t, RiskLow, predictions[3].RiskLevel)
}

func TestRiskForProbability(t *testing.T) {
	assert.Equal(t, RiskLow, RiskForProbability(0))
	assert.Equal(t, RiskLow, RiskForProbability(0.19))
	assert.Equal(t, RiskMedium, RiskForProbability(0.2))
	assert.Equal(t, RiskHigh, RiskForProbability(0.5))
}

func TestConfidenceInterval(t *testing.T) {
	low, high := ConfidenceInterval(100, 100)
	assert.Zero(t, low)
	assert.InDelta(t, 296.0, high, 1e-9)

	low, high = ConfidenceInterval(-100, 10)
	assert.InDelta(t, -119.6, low, 1e-9)
	assert.InDelta(t, -80.4, high, 1e-9)
}

func TestIsPricePeak(t *testing.T) {
	ctx := context.Background()
	svc := newService(populated(t))

	peak, err := svc.IsPricePeak(ctx, 10000, 14)
	require.NoError(t, err)
	assert.True(t, peak)

	peak, err = svc.IsPricePeak(ctx, 100, 14)
	require.NoError(t, err)
	assert.False(t, peak)

	empty := newService(memstore.New())
	peak, err = empty.IsPricePeak(ctx, 10000, 14)
	require.NoError(t, err)
	assert.False(t, peak)
}

func TestAnalyzeProfile(t *testing.T) {
	svc := newService(populated(t))

	night, err := svc.AnalyzeProfile(context.Background(), "night", 14)
	require.NoError(t, err)
	require.NotNil(t, night)
	assert.Equal(t, []int{22, 23, 0, 1, 2, 3, 4, 5}, night.Hours)
	assert.InDelta(t, 887.9464285714286, night.AvgPriceCZK, 1e-6)
	assert.InDelta(t, 887.9464285714286/25, night.AvgPriceEUR, 1e-6)
	assert.Greater(t, night.SavingsVsFlatPct, 0.0)
	// Mon, Tue and Fri share the cheapest nights, Thu and Sun the dearest
	assert.Contains(t, []string{"Mon", "Tue", "Fri"}, night.BestDay)
	assert.Contains(t, []string{"Thu", "Sun"}, night.WorstDay)
}

func TestAnalyzeProfile_Unknown(t *testing.T) {
	svc := newService(populated(t))

	_, err := svc.AnalyzeProfile(context.Background(), "siesta", 14)
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestAnalyzeProfile_NoData(t *testing.T) {
	svc := newService(memstore.New())

	profile, err := svc.AnalyzeProfile(context.Background(), "night", 14)
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestCompareProfiles(t *testing.T) {
	ctx := context.Background()
	svc := newService(populated(t))

	profiles, err := svc.CompareProfiles(ctx, 14)
	require.NoError(t, err)
	require.Len(t, profiles, len(ConsumptionProfiles))
	for i := 1; i < len(profiles); i++ {
		assert.LessOrEqual(t, profiles[i-1].AvgPriceCZK, profiles[i].AvgPriceCZK)
	}

	optimal, err := svc.OptimalProfile(ctx, 14)
	require.NoError(t, err)
	require.NotNil(t, optimal)
	assert.Equal(t, "night", optimal.Name)
	assert.Equal(t, "evening", profiles[len(profiles)-1].Name)
}
