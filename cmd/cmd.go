package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/analysis"
	"github.com/anicoll/ote-spot/internal/pkg/cnb"
	"github.com/anicoll/ote-spot/internal/pkg/config"
	"github.com/anicoll/ote-spot/internal/pkg/database"
	"github.com/anicoll/ote-spot/internal/pkg/database/migration"
	"github.com/anicoll/ote-spot/internal/pkg/forecast"
	"github.com/anicoll/ote-spot/internal/pkg/logic"
	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/mqtt"
	"github.com/anicoll/ote-spot/internal/pkg/openmeteo"
	"github.com/anicoll/ote-spot/internal/pkg/ote"
	"github.com/anicoll/ote-spot/internal/pkg/publisher"
	"github.com/anicoll/ote-spot/internal/pkg/server"
	"github.com/anicoll/ote-spot/internal/pkg/weather"
	"github.com/anicoll/ote-spot/pkg/hasher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	metricsNamespace = "ote_spot"
	tokenLength      = 32
	minAnalysisDays  = 7
	topHours         = 5
	trendDays        = 7
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

type priceFetcher interface {
	FetchSpotPrices(ctx context.Context, date time.Time) (model.SpotPrices, float64, error)
}

// app holds what every command shares: configuration, logging, metrics and the market client.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	fetcher  priceFetcher
	db       *database.Database
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

func setup(c *cli.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(metricsNamespace, registry)
	rates := cnb.New(cfg.OTE.RateURL, cfg.OTE.HTTPTimeout, collector)

	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  collector,
		fetcher:  ote.New(cfg.OTE.BaseURL, cfg.OTE.HTTPTimeout, rates, collector),
	}, nil
}

// openDatabase connects to the store, applying pending migrations first when migrate is set.
func (a *app) openDatabase(ctx context.Context, migrate bool) error {
	if a.cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	if migrate {
		if err := migration.Migrate(a.cfg.DatabaseURL, a.cfg.MigrationsFolder); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	pool, err := database.Connect(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.db = database.NewDatabase(pool, a.metrics)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logger.Sync() // flushes buffer, if any.
}

type services struct {
	prices   PriceService
	analysis *analysis.Service
	forecast *forecast.Service
	weather  *weather.Service
}

// services builds the domain services over the open database. pub may be nil.
func (a *app) services(pub snapshotPublisher) *services {
	analyses := analysis.New(a.db)
	svc := &services{
		analysis: analyses,
		prices:   logic.NewLogicSvc(a.fetcher, a.db, analyses, pub, a.metrics),
	}

	if !a.cfg.Weather.Enabled {
		svc.forecast = forecast.New(a.db, a.fetcher, nil, nil)
		return svc
	}
	w := a.cfg.Weather
	source := openmeteo.New(w.ForecastURL, w.ArchiveURL, w.Latitude, w.Longitude, w.Timeout, a.metrics)
	svc.weather = weather.New(a.db, source)
	svc.forecast = forecast.New(a.db, a.fetcher, svc.weather, svc.weather)
	return svc
}

// connectMQTT returns the publisher registry with the MQTT sink, or nil when no broker is configured.
func (a *app) connectMQTT() (*publisher.Registry, func(), error) {
	if a.cfg.MQTT.Host == "" {
		return nil, func() {}, nil
	}
	mqttSvc := mqtt.New(mqtt.NewClient(a.cfg.MQTT.Host, a.cfg.MQTT.Username, a.cfg.MQTT.Password))
	if err := mqttSvc.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect mqtt: %w", err)
	}
	registry := publisher.NewRegistry()
	if err := registry.RegisterPublisher("mqtt", mqttSvc); err != nil {
		mqttSvc.Disconnect()
		return nil, nil, err
	}
	return registry, mqttSvc.Disconnect, nil
}

func dateFlag(c *cli.Context) (time.Time, error) {
	if !c.IsSet("date") {
		return model.Date(time.Now()), nil
	}
	date, err := model.ParseDate(c.String("date"))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
	}
	return date, nil
}

// SpotCommand fetches and prints the prices of one day straight from the market operator.
func SpotCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()

	date, err := dateFlag(c)
	if err != nil {
		return err
	}
	prices, rate, err := a.fetcher.FetchSpotPrices(c.Context, date)
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "OTE day-ahead prices for %s\n\n", date.Format(time.DateOnly))
	if err := printPrices(w, prices, c.Bool("all")); err != nil {
		return err
	}
	printDailyStats(w, prices, rate)
	if date.Equal(model.Date(time.Now())) {
		if p, ok := prices.Current(time.Now()); ok {
			printCurrent(w, p)
		}
	}
	return nil
}

func SaveCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openDatabase(c.Context, false); err != nil {
		return err
	}
	prices := a.services(nil).prices

	var saved int
	if c.IsSet("date") {
		date, err := dateFlag(c)
		if err != nil {
			return err
		}
		saved, err = prices.SaveDay(c.Context, date)
		if err != nil {
			return err
		}
	} else if saved, err = prices.SaveDays(c.Context, c.Int("days-back")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "saved %d prices\n", saved)
	return nil
}

func HistoryCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openDatabase(c.Context, false); err != nil {
		return err
	}
	w := c.App.Writer

	if c.IsSet("date") {
		date, err := dateFlag(c)
		if err != nil {
			return err
		}
		prices, err := a.db.PricesForDate(c.Context, date)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			fmt.Fprintf(w, "no stored prices for %s\n", date.Format(time.DateOnly))
			return nil
		}
		return printPrices(w, prices, c.Bool("all"))
	}

	dates, err := a.db.AvailableDates(c.Context)
	if err != nil {
		return err
	}
	days := make([]*model.DailyStats, 0, len(dates))
	for _, d := range dates {
		st, err := a.db.DailyStats(c.Context, d)
		if err != nil {
			return err
		}
		if st != nil {
			days = append(days, st)
		}
	}
	return printHistory(w, days)
}

// AnalyzeCommand prints the statistics of the stored history.
func AnalyzeCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openDatabase(c.Context, false); err != nil {
		return err
	}
	ctx := c.Context
	daysBack := c.Int("days")

	total, err := a.db.DataDaysCount(ctx)
	if err != nil {
		return err
	}
	if total < minAnalysisDays {
		fmt.Fprintf(c.App.Writer, "analysis needs %d days of history, %d stored\n", minAnalysisDays, total)
		return nil
	}

	svc := a.services(nil).analysis
	var r analysisReport
	if r.Patterns, err = svc.HourlyPatterns(ctx, daysBack); err != nil {
		return err
	}
	if r.Best, err = svc.BestHours(ctx, topHours, daysBack); err != nil {
		return err
	}
	if r.Worst, err = svc.WorstHours(ctx, topHours, daysBack); err != nil {
		return err
	}
	if r.Trend, err = svc.PriceTrend(ctx, min(daysBack, trendDays)); err != nil {
		return err
	}
	if r.Volatility, err = svc.VolatilityMetrics(ctx, daysBack); err != nil {
		return err
	}
	if r.Profiles, err = svc.CompareProfiles(ctx, daysBack); err != nil {
		return err
	}
	return printAnalysis(c.App.Writer, r)
}

func ForecastCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openDatabase(c.Context, false); err != nil {
		return err
	}
	svc := a.services(nil).forecast
	days, err := svc.ForDays(c.Context, c.Int("days"))
	if err != nil {
		return err
	}
	return printForecast(c.App.Writer, svc.TomorrowPrices(c.Context), days)
}

// ServeCommand runs the dashboard and, with --collect, the collector next to it.
func ServeCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openDatabase(c.Context, true); err != nil {
		return err
	}

	var pub snapshotPublisher
	if c.Bool("collect") {
		registry, disconnect, err := a.connectMQTT()
		if err != nil {
			return err
		}
		defer disconnect()
		if registry != nil {
			pub = registry
		}
	}
	svc := a.services(pub)

	addr := a.cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	srv := server.New(server.Deps{
		Store:     a.db,
		Prices:    svc.prices,
		Fetcher:   a.fetcher,
		Analysis:  svc.analysis,
		Forecast:  svc.forecast,
		Weather:   svc.weather,
		Metrics:   a.metrics,
		Gatherer:  a.registry,
		TokenHash: a.cfg.Server.APITokenHash,
	})
	httpSrv := &http.Server{
		Handler:      srv.Handler(),
		Addr:         addr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	eg, ctx := errgroup.WithContext(c.Context)
	eg.Go(func() error {
		return server.ListenAndServe(ctx, httpSrv)
	})
	eg.Go(func() error {
		return srv.Broadcast(ctx, server.BroadcastInterval)
	})
	if c.Bool("collect") {
		eg.Go(func() error {
			return collect(ctx, svc.prices, collectorJobs(svc.prices, a.cfg.RetentionDays))
		})
	}
	return eg.Wait()
}

// CollectCommand keeps the store current and publishes the running price until interrupted.
func CollectCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.openDatabase(c.Context, true); err != nil {
		return err
	}
	registry, disconnect, err := a.connectMQTT()
	if err != nil {
		return err
	}
	defer disconnect()

	var pub snapshotPublisher
	if registry != nil {
		pub = registry
	}
	svc := a.services(pub)
	return collect(c.Context, svc.prices, collectorJobs(svc.prices, a.cfg.RetentionDays))
}

func MigrateCommand(c *cli.Context) error {
	a, err := setup(c)
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	return migration.Migrate(a.cfg.DatabaseURL, a.cfg.MigrationsFolder)
}

// TokenCommand prints a new API token and the hash to configure as API_TOKEN_HASH.
func TokenCommand(c *cli.Context) error {
	token, err := hasher.GenerateToken(tokenLength)
	if err != nil {
		return err
	}
	hash, err := hasher.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "token: %s\nAPI_TOKEN_HASH=%s\n", token, hash)
	return nil
}
