package model

import (
	"time"
	_ "time/tzdata" // market location must resolve on hosts without zoneinfo

	"github.com/samber/lo"
)

// MarketLocation is the timezone the day-ahead market and its report dates are defined in.
var MarketLocation = mustLoadLocation("Europe/Prague")

const (
	// IntervalLength is the duration of one day-ahead product.
	IntervalLength = 15 * time.Minute
	// intervalEndOffset keeps TimeTo inside the interval so that lookups can be inclusive on both ends.
	intervalEndOffset = IntervalLength - time.Second
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type SpotPrice struct {
	TimeFrom time.Time `json:"time_from"`
	TimeTo   time.Time `json:"time_to"`
	PriceEUR float64   `json:"price_eur"`
	PriceCZK float64   `json:"price_czk"`
}

// NewSpotPrice builds the quote for the interval starting at from.
func NewSpotPrice(from time.Time, eur, czk float64) SpotPrice {
	from = from.In(MarketLocation)
	return SpotPrice{
		TimeFrom: from,
		TimeTo:   from.Add(intervalEndOffset),
		PriceEUR: eur,
		PriceCZK: czk,
	}
}

// Hour returns the hour of day the interval starts in, in market time.
func (p SpotPrice) Hour() int {
	return p.TimeFrom.In(MarketLocation).Hour()
}

type SpotPrices []SpotPrice

// Current returns the quote covering now.
func (p SpotPrices) Current(now time.Time) (SpotPrice, bool) {
	return lo.Find(p, func(price SpotPrice) bool {
		return !now.Before(price.TimeFrom) && !now.After(price.TimeTo)
	})
}

// CZK returns the CZK prices in order.
func (p SpotPrices) CZK() []float64 {
	return lo.Map(p, func(price SpotPrice, _ int) float64 { return price.PriceCZK })
}

// HourlyAverages collapses the quarter-hour quotes into one averaged quote per hour.
func (p SpotPrices) HourlyAverages() SpotPrices {
	groups := lo.GroupBy(p, func(price SpotPrice) time.Time {
		return price.TimeFrom.Truncate(time.Hour)
	})
	keys := lo.Keys(groups)
	res := make(SpotPrices, 0, len(keys))
	for _, start := range keys {
		quotes := groups[start]
		eur := lo.SumBy(quotes, func(q SpotPrice) float64 { return q.PriceEUR }) / float64(len(quotes))
		czk := lo.SumBy(quotes, func(q SpotPrice) float64 { return q.PriceCZK }) / float64(len(quotes))
		res = append(res, SpotPrice{
			TimeFrom: start.In(MarketLocation),
			TimeTo:   start.In(MarketLocation).Add(time.Hour - time.Second),
			PriceEUR: eur,
			PriceCZK: czk,
		})
	}
	SortByTime(res)
	return res
}

// Date returns the civil date of t in market time, as midnight in MarketLocation.
func Date(t time.Time) time.Time {
	t = t.In(MarketLocation)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, MarketLocation)
}

// IntervalsInDay is the number of quarter hours on the civil date of t: 92, 96 or 100.
func IntervalsInDay(t time.Time) int {
	start := Date(t)
	return int(start.AddDate(0, 0, 1).Sub(start) / IntervalLength)
}

// DayIntervals returns the start of every quarter hour on the civil date of t, in order.
// Offsets are absolute, so a repeated hour appears twice and a skipped hour not at all.
func DayIntervals(t time.Time) []time.Time {
	start := Date(t)
	out := make([]time.Time, IntervalsInDay(start))
	for i := range out {
		out[i] = start.Add(time.Duration(i) * IntervalLength)
	}
	return out
}

// ParseDate parses a YYYY-MM-DD report date in market time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, s, MarketLocation)
}
