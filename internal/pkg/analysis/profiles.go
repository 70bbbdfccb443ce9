package analysis

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/samber/lo"
)

var ErrUnknownProfile = errors.New("unknown consumption profile")

// ProfileDefinition is a named set of hours in which consumption happens.
type ProfileDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Hours       []int  `json:"hours"`
}

// ConsumptionProfiles are the built-in profiles in display order.
var ConsumptionProfiles = []ProfileDefinition{
	{Name: "morning", Description: "Morning peak, 06:00-10:00", Hours: []int{6, 7, 8, 9}},
	{Name: "home_office", Description: "Working day at home, 08:00-17:00", Hours: []int{8, 9, 10, 11, 12, 13, 14, 15, 16}},
	{Name: "midday_solar", Description: "Solar surplus window, 10:00-16:00", Hours: []int{10, 11, 12, 13, 14, 15}},
	{Name: "evening", Description: "Evening peak, 17:00-22:00", Hours: []int{17, 18, 19, 20, 21}},
	{Name: "night", Description: "Night tariff, 22:00-06:00", Hours: []int{22, 23, 0, 1, 2, 3, 4, 5}},
}

// LookupProfile finds a built-in profile by name.
func LookupProfile(name string) (ProfileDefinition, bool) {
	return lo.Find(ConsumptionProfiles, func(p ProfileDefinition) bool { return p.Name == name })
}

type ConsumptionProfile struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Hours            []int   `json:"hours"`
	AvgPriceCZK      float64 `json:"avg_price_czk"`
	AvgPriceEUR      float64 `json:"avg_price_eur"`
	SavingsVsFlatPct float64 `json:"savings_vs_flat_pct"`
	BestDay          string  `json:"best_day"`
	WorstDay         string  `json:"worst_day"`
}

// AnalyzeProfile prices the named profile over the last daysBack days. It returns nil without data.
func (s *Service) AnalyzeProfile(ctx context.Context, name string, daysBack int) (*ConsumptionProfile, error) {
	def, ok := LookupProfile(name)
	if !ok {
		return nil, ErrUnknownProfile
	}
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	return analyzeProfile(def, prices), nil
}

// CompareProfiles analyses every built-in profile, cheapest first.
func (s *Service) CompareProfiles(ctx context.Context, daysBack int) ([]ConsumptionProfile, error) {
	prices, err := s.recentPrices(ctx, daysBack)
	if err != nil {
		return nil, err
	}
	out := make([]ConsumptionProfile, 0, len(ConsumptionProfiles))
	for _, def := range ConsumptionProfiles {
		if p := analyzeProfile(def, prices); p != nil {
			out = append(out, *p)
		}
	}
	slices.SortStableFunc(out, func(a, b ConsumptionProfile) int {
		return cmp.Compare(a.AvgPriceCZK, b.AvgPriceCZK)
	})
	return out, nil
}

// OptimalProfile returns the cheapest profile, or nil without data.
func (s *Service) OptimalProfile(ctx context.Context, daysBack int) (*ConsumptionProfile, error) {
	profiles, err := s.CompareProfiles(ctx, daysBack)
	if err != nil || len(profiles) == 0 {
		return nil, err
	}
	return &profiles[0], nil
}

func analyzeProfile(def ProfileDefinition, prices model.SpotPrices) *ConsumptionProfile {
	inProfile := lo.Filter(prices, func(p model.SpotPrice, _ int) bool {
		return slices.Contains(def.Hours, p.Hour())
	})
	if len(inProfile) == 0 {
		return nil
	}

	avgCZK := stats.Mean(model.SpotPrices(inProfile).CZK())
	avgEUR := stats.Mean(lo.Map(inProfile, func(p model.SpotPrice, _ int) float64 { return p.PriceEUR }))
	flat := stats.Mean(prices.CZK())

	savings := 0.0
	if flat != 0 {
		savings = (flat - avgCZK) / flat * 100
	}

	byWeekday := lo.GroupBy(inProfile, func(p model.SpotPrice) int {
		return model.MondayFirst(p.TimeFrom.Weekday())
	})
	best, worst := "N/A", "N/A"
	if len(byWeekday) > 0 {
		dayAvg := lo.MapValues(byWeekday, func(ps model.SpotPrices, _ int) float64 {
			return stats.Mean(ps.CZK())
		})
		days := lo.Keys(dayAvg)
		slices.SortFunc(days, func(a, b int) int {
			return cmp.Or(cmp.Compare(dayAvg[a], dayAvg[b]), cmp.Compare(a, b))
		})
		best, worst = WeekdayNames[days[0]], WeekdayNames[days[len(days)-1]]
	}

	return &ConsumptionProfile{
		Name:             def.Name,
		Description:      def.Description,
		Hours:            def.Hours,
		AvgPriceCZK:      avgCZK,
		AvgPriceEUR:      avgEUR,
		SavingsVsFlatPct: savings,
		BestDay:          best,
		WorstDay:         worst,
	}
}
