package database

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/jackc/pgx/v5"
)

// Hours and weekdays are taken in market time so that they match the published intervals.
const (
	hourExpr    = `EXTRACT(HOUR FROM time_from AT TIME ZONE 'Europe/Prague')::int`
	weekdayExpr = `(EXTRACT(ISODOW FROM time_from AT TIME ZONE 'Europe/Prague')::int - 1)`
)

func (db *Database) PricesForDate(ctx context.Context, date time.Time) (prices model.SpotPrices, err error) {
	started := time.Now()
	defer func() { db.observe("prices_for_date", started, err) }()

	rows, err := db.pool.Query(ctx, `
	SELECT time_from, time_to, price_eur, price_czk
	FROM spot_prices
	WHERE report_date = $1
	ORDER BY time_from`, model.Date(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSpotPrices(rows)
}

// PricesForRange returns the quotes of every report date in [start, end].
func (db *Database) PricesForRange(ctx context.Context, start, end time.Time) (prices model.SpotPrices, err error) {
	started := time.Now()
	defer func() { db.observe("prices_for_range", started, err) }()

	rows, err := db.pool.Query(ctx, `
	SELECT time_from, time_to, price_eur, price_czk
	FROM spot_prices
	WHERE report_date >= $1 AND report_date <= $2
	ORDER BY time_from`, model.Date(start), model.Date(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSpotPrices(rows)
}

func scanSpotPrices(rows pgx.Rows) (model.SpotPrices, error) {
	var prices model.SpotPrices
	for rows.Next() {
		var p model.SpotPrice
		if err := rows.Scan(&p.TimeFrom, &p.TimeTo, &p.PriceEUR, &p.PriceCZK); err != nil {
			return nil, err
		}
		p.TimeFrom = p.TimeFrom.In(model.MarketLocation)
		p.TimeTo = p.TimeTo.In(model.MarketLocation)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return prices, nil
}

// AvailableDates lists stored report dates, newest first.
func (db *Database) AvailableDates(ctx context.Context) (dates []time.Time, err error) {
	started := time.Now()
	defer func() { db.observe("available_dates", started, err) }()

	rows, err := db.pool.Query(ctx, `SELECT DISTINCT report_date FROM spot_prices ORDER BY report_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, civilDate(d))
	}
	return dates, rows.Err()
}

// DailyStats returns nil when nothing is stored for the date.
func (db *Database) DailyStats(ctx context.Context, date time.Time) (stats *model.DailyStats, err error) {
	started := time.Now()
	defer func() { db.observe("daily_stats", started, err) }()

	s := model.DailyStats{Date: model.Date(date)}
	if err := db.pool.QueryRow(ctx, `
	SELECT
		COALESCE(MIN(price_czk), 0),
		COALESCE(MAX(price_czk), 0),
		COALESCE(AVG(price_czk), 0),
		COUNT(*),
		COALESCE(MAX(eur_czk_rate), 0)
	FROM spot_prices
	WHERE report_date = $1`, model.Date(date)).Scan(&s.Min, &s.Max, &s.Avg, &s.Count, &s.EURCZKRate); err != nil {
		return nil, err
	}
	if s.Count == 0 {
		return nil, nil
	}
	return &s, nil
}

func (db *Database) HourlyAggregates(ctx context.Context, since time.Time) (aggs []model.HourlyAggregate, err error) {
	started := time.Now()
	defer func() { db.observe("hourly_aggregates", started, err) }()

	rows, err := db.pool.Query(ctx, `
	SELECT `+hourExpr+` AS hour, AVG(price_czk), MIN(price_czk), MAX(price_czk), COUNT(*)
	FROM spot_prices
	WHERE report_date >= $1
	GROUP BY hour
	ORDER BY hour`, model.Date(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a model.HourlyAggregate
		if err := rows.Scan(&a.Hour, &a.AvgPrice, &a.MinPrice, &a.MaxPrice, &a.Count); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// WeekdayAggregates groups by weekday (Monday = 0) and hour.
func (db *Database) WeekdayAggregates(ctx context.Context, since time.Time) (aggs []model.WeekdayAggregate, err error) {
	started := time.Now()
	defer func() { db.observe("weekday_aggregates", started, err) }()

	rows, err := db.pool.Query(ctx, `
	SELECT `+weekdayExpr+` AS weekday, `+hourExpr+` AS hour, AVG(price_czk), COUNT(*)
	FROM spot_prices
	WHERE report_date >= $1
	GROUP BY weekday, hour
	ORDER BY weekday, hour`, model.Date(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a model.WeekdayAggregate
		if err := rows.Scan(&a.Weekday, &a.Hour, &a.AvgPrice, &a.Count); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// DataDaysCount returns the number of distinct stored report dates.
func (db *Database) DataDaysCount(ctx context.Context) (count int, err error) {
	started := time.Now()
	defer func() { db.observe("data_days_count", started, err) }()

	err = db.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT report_date) FROM spot_prices`).Scan(&count)
	return count, err
}

// OverallStats returns nil when nothing is stored since the given day.
func (db *Database) OverallStats(ctx context.Context, since time.Time) (stats *model.OverallStats, err error) {
	started := time.Now()
	defer func() { db.observe("overall_stats", started, err) }()

	var s model.OverallStats
	if err := db.pool.QueryRow(ctx, `
	SELECT COALESCE(AVG(price_czk), 0), COALESCE(MIN(price_czk), 0), COALESCE(MAX(price_czk), 0), COUNT(*)
	FROM spot_prices
	WHERE report_date >= $1`, model.Date(since)).Scan(&s.AvgPrice, &s.MinPrice, &s.MaxPrice, &s.Count); err != nil {
		return nil, err
	}
	if s.Count == 0 {
		return nil, nil
	}
	return &s, nil
}

// NegativePriceHours lists hours with a price at or below zero, newest date first.
func (db *Database) NegativePriceHours(ctx context.Context, since time.Time) (hours []model.NegativePriceHour, err error) {
	started := time.Now()
	defer func() { db.observe("negative_price_hours", started, err) }()

	rows, err := db.pool.Query(ctx, `
	SELECT report_date, `+hourExpr+` AS hour, MIN(price_czk)
	FROM spot_prices
	WHERE report_date >= $1 AND price_czk <= 0
	GROUP BY report_date, hour
	ORDER BY report_date DESC, hour`, model.Date(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h model.NegativePriceHour
		if err := rows.Scan(&h.Date, &h.Hour, &h.PriceCZK); err != nil {
			return nil, err
		}
		h.Date = civilDate(h.Date)
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// DailyAverages returns one row per report date, oldest first.
func (db *Database) DailyAverages(ctx context.Context, since time.Time) (avgs []model.DailyAverage, err error) {
	started := time.Now()
	defer func() { db.observe("daily_averages", started, err) }()

	rows, err := db.pool.Query(ctx, `
	SELECT report_date, AVG(price_czk), MIN(price_czk), MAX(price_czk)
	FROM spot_prices
	WHERE report_date >= $1
	GROUP BY report_date
	ORDER BY report_date`, model.Date(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a model.DailyAverage
		if err := rows.Scan(&a.Date, &a.AvgPrice, &a.MinPrice, &a.MaxPrice); err != nil {
			return nil, err
		}
		a.Date = civilDate(a.Date)
		avgs = append(avgs, a)
	}
	return avgs, rows.Err()
}
