package database

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Database stores spot prices in the spot_prices table and answers the aggregate queries over it.
type Database struct {
	pool    *pgxpool.Pool
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewDatabase(pool *pgxpool.Pool, collector *metrics.Collector) *Database {
	return &Database{
		pool:    pool,
		metrics: collector,
		logger:  zap.L(),
	}
}

// Connect opens a pool for dsn and verifies it is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (db *Database) Close() error {
	if db.pool == nil {
		return nil
	}
	db.pool.Close()
	return nil
}

func (db *Database) observe(queryType string, started time.Time, err error) {
	db.metrics.ObserveQuery(queryType, started, err)
	if err != nil {
		db.logger.Error("database query failed", zap.String("query", queryType), zap.Error(err))
	}
}

// civilDate maps a scanned DATE (midnight UTC) onto midnight in market time.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, model.MarketLocation)
}
