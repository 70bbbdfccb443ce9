package cmd

import (
	"context"

	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const cronTZ = "CRON_TZ=Europe/Prague "

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// collectorJobs are the scheduled tasks of the collector. Day-ahead results are published
// shortly after 13:00, the second fetch covers a late publication.
func collectorJobs(prices PriceService, retentionDays int) []job {
	saveTomorrow := func(ctx context.Context) error {
		_, err := prices.SaveTomorrow(ctx)
		return err
	}
	return []job{
		{name: "fetch tomorrow", spec: cronTZ + "15 13 * * *", run: saveTomorrow},
		{name: "retry tomorrow", spec: cronTZ + "45 14 * * *", run: saveTomorrow},
		{name: "publish current price", spec: cronTZ + "*/15 * * * *", run: prices.PublishCurrentPrice},
		{name: "cleanup", spec: cronTZ + "0 3 * * *", run: func(ctx context.Context) error {
			_, err := prices.Cleanup(ctx, retentionDays)
			return err
		}},
	}
}

// collect saves today and tomorrow, then runs the jobs until ctx is done. Job failures are logged
// and retried on the next schedule.
func collect(ctx context.Context, prices PriceService, jobs []job) error {
	logger := zap.L()
	if _, err := prices.SaveDays(ctx, 0); err != nil {
		return err
	}
	if _, err := prices.SaveTomorrow(ctx); err != nil {
		logger.Warn("failed to save tomorrow's prices", zap.Error(err))
	}
	if err := prices.PublishCurrentPrice(ctx); err != nil {
		logger.Warn("failed to publish current price", zap.Error(err))
	}

	c := cron.New(cron.WithLocation(model.MarketLocation))
	for _, j := range jobs {
		if _, err := c.AddFunc(j.spec, func() {
			if err := j.run(ctx); err != nil {
				logger.Error("scheduled job failed", zap.String("job", j.name), zap.Error(err))
				return
			}
			logger.Debug("scheduled job done", zap.String("job", j.name))
		}); err != nil {
			return err
		}
	}

	c.Start()
	logger.Info("collector started", zap.Int("jobs", len(jobs)))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
