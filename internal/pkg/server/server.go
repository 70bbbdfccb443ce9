// Package server serves the dashboard, the JSON API and the live price websocket.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/analysis"
	"github.com/anicoll/ote-spot/internal/pkg/forecast"
	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/weather"
	"github.com/anicoll/ote-spot/pkg/sockets"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BroadcastInterval is how often connected websocket clients receive the current price.
const BroadcastInterval = 15 * time.Second

type priceStore interface {
	PricesForDate(ctx context.Context, date time.Time) (model.SpotPrices, error)
	AvailableDates(ctx context.Context) ([]time.Time, error)
	DailyStats(ctx context.Context, date time.Time) (*model.DailyStats, error)
	DataDaysCount(ctx context.Context) (int, error)
}

type priceService interface {
	SaveDay(ctx context.Context, date time.Time) (int, error)
	CurrentSnapshot(ctx context.Context) (*model.PriceSnapshot, error)
}

type priceFetcher interface {
	FetchSpotPrices(ctx context.Context, date time.Time) (model.SpotPrices, float64, error)
}

// Deps are the services the handlers read from. Weather may be nil when weather is disabled.
type Deps struct {
	Store     priceStore
	Prices    priceService
	Fetcher   priceFetcher
	Analysis  *analysis.Service
	Forecast  *forecast.Service
	Weather   *weather.Service
	Metrics   *metrics.Collector
	Gatherer  prometheus.Gatherer
	TokenHash string
	Now       func() time.Time
}

type server struct {
	Deps
	hub    *sockets.Hub
	logger *zap.Logger
}

func New(deps Deps) *server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &server{Deps: deps, logger: zap.L()}
	s.hub = sockets.NewHub(
		sockets.OnConnected(s.greet),
		sockets.OnError(func(err error) { s.logger.Debug("websocket error", zap.Error(err)) }),
	)
	return s
}

// Handler returns the router with every route and the middleware chain.
func (s *server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.LoggingMiddleware)

	router.HandleFunc("/", s.Dashboard).Methods(http.MethodGet)
	router.HandleFunc("/health", s.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	// a method mismatch inside a subrouter otherwise falls through to 404
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.HandleFunc("/prices", s.GetPrices).Methods(http.MethodGet)
	api.HandleFunc("/prices/refresh", s.RefreshPrices).Methods(http.MethodPost)
	api.HandleFunc("/history", s.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/analysis", s.GetAnalysis).Methods(http.MethodGet)
	api.HandleFunc("/risk", s.GetRisk).Methods(http.MethodGet)
	api.HandleFunc("/forecast", s.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/weather", s.GetWeather).Methods(http.MethodGet)

	router.Handle("/ws/price", s.hub).Methods(http.MethodGet)
	return router
}

// Broadcast pushes the current price to websocket clients every interval until ctx is done.
func (s *server) Broadcast(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.hub.Close()
		case <-ticker.C:
			if s.hub.Count() == 0 {
				continue
			}
			msg, err := s.snapshotMessage(ctx)
			if err != nil {
				s.logger.Warn("no price to broadcast", zap.Error(err))
				continue
			}
			s.hub.Broadcast(msg)
		}
	}
}

func (s *server) greet(c sockets.Connection) {
	msg, err := s.snapshotMessage(context.Background())
	if err != nil {
		s.logger.Warn("no price for new websocket client", zap.Error(err))
		return
	}
	_ = c.Send(msg)
}

func (s *server) snapshotMessage(ctx context.Context) ([]byte, error) {
	snap, err := s.Prices.CurrentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// ListenAndServe runs the HTTP server until ctx is done, then shuts it down gracefully.
func ListenAndServe(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
