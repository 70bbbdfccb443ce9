package cmd

import (
	"context"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/model"
)

// PriceService is the price workflow the commands and the collector drive.
type PriceService interface {
	SaveDay(ctx context.Context, date time.Time) (int, error)
	SaveDays(ctx context.Context, daysBack int) (int, error)
	SaveTomorrow(ctx context.Context) (bool, error)
	CurrentSnapshot(ctx context.Context) (*model.PriceSnapshot, error)
	PublishCurrentPrice(ctx context.Context) error
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

type snapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap model.PriceSnapshot) int
}
