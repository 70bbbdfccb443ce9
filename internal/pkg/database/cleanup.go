package database

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
)

// Cleanup removes every report date before the given day and returns the number of deleted rows.
func (db *Database) Cleanup(ctx context.Context, before time.Time) (deleted int64, err error) {
	started := time.Now()
	defer func() { db.observe("cleanup", started, err) }()

	tag, err := db.pool.Exec(ctx, "DELETE FROM spot_prices WHERE report_date < $1", model.Date(before))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
