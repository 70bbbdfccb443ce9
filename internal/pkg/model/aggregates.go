package model

import (
	"slices"
	"time"
)

// SortByTime orders quotes by interval start.
func SortByTime(prices SpotPrices) {
	slices.SortFunc(prices, func(a, b SpotPrice) int {
		return a.TimeFrom.Compare(b.TimeFrom)
	})
}

// DailyStats summarises one stored report date.
type DailyStats struct {
	Date       time.Time `json:"date"`
	Min        float64   `json:"min_price"`
	Max        float64   `json:"max_price"`
	Avg        float64   `json:"avg_price"`
	Count      int       `json:"count"`
	EURCZKRate float64   `json:"eur_czk_rate"`
}

type HourlyAggregate struct {
	Hour     int     `json:"hour"`
	AvgPrice float64 `json:"avg_price"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	Count    int     `json:"count"`
}

// WeekdayAggregate is keyed by weekday with Monday as 0.
type WeekdayAggregate struct {
	Weekday  int     `json:"weekday"`
	Hour     int     `json:"hour"`
	AvgPrice float64 `json:"avg_price"`
	Count    int     `json:"count"`
}

type OverallStats struct {
	AvgPrice float64 `json:"avg_price"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	Count    int     `json:"count"`
}

// NegativePriceHour is an hour of a report date in which at least one interval cleared at or below zero.
type NegativePriceHour struct {
	Date     time.Time `json:"date"`
	Hour     int       `json:"hour"`
	PriceCZK float64   `json:"price_czk"`
}

type DailyAverage struct {
	Date     time.Time `json:"date"`
	AvgPrice float64   `json:"avg_price"`
	MinPrice float64   `json:"min_price"`
	MaxPrice float64   `json:"max_price"`
}

// MondayFirst converts a time.Weekday to a Monday=0 index.
func MondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}
