package database

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
)

const upsertPriceSQL = `
	INSERT INTO spot_prices (report_date, time_from, time_to, price_eur, price_czk, eur_czk_rate)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (report_date, time_from) DO UPDATE SET
		time_to = EXCLUDED.time_to,
		price_eur = EXCLUDED.price_eur,
		price_czk = EXCLUDED.price_czk,
		eur_czk_rate = EXCLUDED.eur_czk_rate,
		updated_at = now()
`

// SavePrices upserts the quotes of one report date and returns how many rows were written.
func (db *Database) SavePrices(ctx context.Context, reportDate time.Time, prices model.SpotPrices, rate float64) (saved int, err error) {
	started := time.Now()
	defer func() { db.observe("save_prices", started, err) }()

	reportDate = model.Date(reportDate)
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	for _, p := range prices {
		tag, err := tx.Exec(ctx, upsertPriceSQL, reportDate, p.TimeFrom, p.TimeTo, p.PriceEUR, p.PriceCZK, rate)
		if err != nil {
			return 0, err
		}
		saved += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	db.metrics.AddSaved(saved)
	return saved, nil
}
