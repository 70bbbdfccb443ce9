package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the service metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec

	SavedPrices prometheus.Counter

	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec

	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	CurrentPrice *prometheus.GaugeVec
}

// NewCollector registers the collector's metrics with reg.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of upstream fetches by source",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		),
		FetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_errors_total",
				Help:      "Total number of failed upstream fetches by source",
			},
			[]string{"source"},
		),
		SavedPrices: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "saved_prices_total",
				Help:      "Total number of spot price rows upserted",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"query_type"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by query type",
			},
			[]string{"query_type"},
		),
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),
		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"route"},
		),
		CurrentPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "current_spot_price",
				Help:      "Spot price of the current interval per MWh by currency",
			},
			[]string{"currency"},
		),
	}
}

// ObserveFetch records one upstream call.
func (c *Collector) ObserveFetch(source string, started time.Time, err error) {
	if c == nil {
		return
	}
	c.FetchDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
	if err != nil {
		c.FetchErrors.WithLabelValues(source).Inc()
	}
}

// ObserveQuery records one database query.
func (c *Collector) ObserveQuery(queryType string, started time.Time, err error) {
	if c == nil {
		return
	}
	c.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(started).Seconds())
	if err != nil {
		c.DBErrorsTotal.WithLabelValues(queryType).Inc()
	}
}

func (c *Collector) AddSaved(n int) {
	if c == nil {
		return
	}
	c.SavedPrices.Add(float64(n))
}

// ObserveRequest records one served API request.
func (c *Collector) ObserveRequest(route, method string, status int, started time.Time) {
	if c == nil {
		return
	}
	c.APIRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.APIRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

func (c *Collector) SetCurrentPrice(czk, eur float64) {
	if c == nil {
		return
	}
	c.CurrentPrice.WithLabelValues("CZK").Set(czk)
	c.CurrentPrice.WithLabelValues("EUR").Set(eur)
}
