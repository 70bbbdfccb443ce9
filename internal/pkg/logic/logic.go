// Package logic ties fetching, storing, classifying and publishing of spot prices together.
package logic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/analysis"
	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/ote"
	"go.uber.org/zap"
)

// classifyDays is the history the current price is classified against.
const classifyDays = 30

var ErrNoCurrentPrice = errors.New("no price for the current interval")

type priceFetcher interface {
	FetchSpotPrices(ctx context.Context, date time.Time) (model.SpotPrices, float64, error)
}

type database interface {
	SavePrices(ctx context.Context, reportDate time.Time, prices model.SpotPrices, rate float64) (int, error)
	PricesForDate(ctx context.Context, date time.Time) (model.SpotPrices, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

type classifier interface {
	Classifier(ctx context.Context, daysBack int) (func(float64) analysis.PriceLevel, error)
}

type snapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap model.PriceSnapshot) int
}

type logic struct {
	fetcher    priceFetcher
	db         database
	classifier classifier
	publisher  snapshotPublisher
	metrics    *metrics.Collector
	now        func() time.Time
	logger     *zap.Logger
}

// NewLogicSvc wires the price workflow. publisher may be nil when nothing is published.
func NewLogicSvc(fetcher priceFetcher, db database, classifier classifier, publisher snapshotPublisher, collector *metrics.Collector) *logic {
	return &logic{
		fetcher:    fetcher,
		db:         db,
		classifier: classifier,
		publisher:  publisher,
		metrics:    collector,
		now:        time.Now,
		logger:     zap.L(),
	}
}

// WithClock replaces the clock used to find the current interval.
func (l *logic) WithClock(now func() time.Time) *logic {
	l.now = now
	return l
}

// SaveDay fetches the prices of date and upserts them.
func (l *logic) SaveDay(ctx context.Context, date time.Time) (int, error) {
	date = model.Date(date)
	prices, rate, err := l.fetcher.FetchSpotPrices(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", date.Format(time.DateOnly), err)
	}
	saved, err := l.db.SavePrices(ctx, date, prices, rate)
	if err != nil {
		return 0, fmt.Errorf("save %s: %w", date.Format(time.DateOnly), err)
	}
	l.logger.Info("saved spot prices", zap.String("date", date.Format(time.DateOnly)), zap.Int("count", saved), zap.Float64("eur_czk", rate))
	return saved, nil
}

// SaveDays saves today and the daysBack days before it. Days without published data are skipped.
func (l *logic) SaveDays(ctx context.Context, daysBack int) (int, error) {
	today := model.Date(l.now())
	total := 0
	for offset := daysBack; offset >= 0; offset-- {
		saved, err := l.SaveDay(ctx, today.AddDate(0, 0, -offset))
		if errors.Is(err, ote.ErrNoPriceData) {
			l.logger.Warn("no prices published", zap.Error(err))
			continue
		}
		if err != nil {
			return total, err
		}
		total += saved
	}
	return total, nil
}

// SaveTomorrow saves the next day's prices when the market operator has published them.
func (l *logic) SaveTomorrow(ctx context.Context) (bool, error) {
	_, err := l.SaveDay(ctx, model.Date(l.now()).AddDate(0, 0, 1))
	if errors.Is(err, ote.ErrNoPriceData) {
		l.logger.Info("tomorrow's prices not published yet")
		return false, nil
	}
	return err == nil, err
}

func getCurrentPrice(prices model.SpotPrices, now time.Time) (model.SpotPrice, bool) {
	return prices.Current(now)
}

// CurrentSnapshot returns the price of the running interval with its level. Today's stored prices
// are used and, when none are stored, fetched live.
func (l *logic) CurrentSnapshot(ctx context.Context) (*model.PriceSnapshot, error) {
	now := l.now()
	prices, err := l.db.PricesForDate(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		if prices, _, err = l.fetcher.FetchSpotPrices(ctx, now); err != nil {
			return nil, err
		}
	}

	current, found := getCurrentPrice(prices, now)
	if !found {
		return nil, ErrNoCurrentPrice
	}
	classify, err := l.classifier.Classifier(ctx, classifyDays)
	if err != nil {
		return nil, err
	}
	level := classify(current.PriceCZK)
	return &model.PriceSnapshot{
		Time:       now,
		TimeFrom:   current.TimeFrom,
		TimeTo:     current.TimeTo,
		PriceCZK:   current.PriceCZK,
		PriceEUR:   current.PriceEUR,
		Level:      string(level),
		LevelColor: level.Color(),
	}, nil
}

// PublishCurrentPrice records the current price as a metric and publishes its changed sensors.
func (l *logic) PublishCurrentPrice(ctx context.Context) error {
	snap, err := l.CurrentSnapshot(ctx)
	if err != nil {
		return err
	}
	l.metrics.SetCurrentPrice(snap.PriceCZK, snap.PriceEUR)
	if l.publisher == nil {
		return nil
	}
	if n := l.publisher.PublishSnapshot(ctx, *snap); n > 0 {
		l.logger.Debug("published current price", zap.Float64("czk", snap.PriceCZK), zap.String("level", snap.Level))
	}
	return nil
}

// Cleanup deletes report dates older than retentionDays. Zero keeps everything.
func (l *logic) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	before := model.Date(l.now()).AddDate(0, 0, -retentionDays)
	deleted, err := l.db.Cleanup(ctx, before)
	if err != nil {
		return 0, err
	}
	l.logger.Info("removed old spot prices", zap.Int64("rows", deleted), zap.String("before", before.Format(time.DateOnly)))
	return deleted, nil
}
