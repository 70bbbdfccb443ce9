// Package ote fetches day-ahead market results from the Czech electricity market operator.
package ote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const chartPath = "/en/short-term-markets/electricity/day-ahead-market/@@chart-data"

var (
	ErrNoPriceData      = errors.New("no 15 minute price series in market data")
	ErrIncompleteSeries = errors.New("15 minute price series does not cover the whole day")
)

type rateProvider interface {
	EURCZK(ctx context.Context, date time.Time) (decimal.Decimal, error)
}

type client struct {
	httpClient *http.Client
	baseURL    string
	rates      rateProvider
	metrics    *metrics.Collector
	logger     *zap.Logger
	now        func() time.Time
}

func New(baseURL string, timeout time.Duration, rates rateProvider, collector *metrics.Collector) *client {
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		rates:      rates,
		metrics:    collector,
		logger:     zap.L(),
		now:        time.Now,
	}
}

type chartResponse struct {
	Data struct {
		DataLine []dataLine `json:"dataLine"`
	} `json:"data"`
}

type dataLine struct {
	Title string  `json:"title"`
	Point []point `json:"point"`
}

type point struct {
	X json.Number `json:"x"`
	Y json.Number `json:"y"`
}

// FetchSpotPrices returns the quarter-hour prices for the report date together with the EUR/CZK rate used.
func (c *client) FetchSpotPrices(ctx context.Context, date time.Time) (model.SpotPrices, float64, error) {
	date = model.Date(date)

	var (
		body []byte
		rate decimal.Decimal
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		body, err = c.fetchChart(egCtx, date)
		return err
	})
	eg.Go(func() error {
		// the fixing for a future day does not exist yet
		rateDate := date
		if rateDate.After(model.Date(c.now())) {
			rateDate = time.Time{}
		}
		var err error
		rate, err = c.rates.EURCZK(egCtx, rateDate)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}

	prices, err := ParseChart(bytes.NewReader(body), date, rate)
	if err != nil {
		return nil, 0, err
	}
	c.logger.Info("received spot prices",
		zap.String("report_date", date.Format(time.DateOnly)),
		zap.Int("intervals", len(prices)),
		zap.String("eur_czk", rate.String()))
	return prices, rate.InexactFloat64(), nil
}

func (c *client) fetchChart(ctx context.Context, date time.Time) (body []byte, err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveFetch("ote", started, err) }()

	q := url.Values{}
	q.Set("report_date", date.Format(time.DateOnly))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+chartPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching market data: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching market data: unexpected status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// ParseChart converts the chart-data document of one report date into spot prices.
// Point x is the 1-based quarter-hour index of the day and y the price in EUR/MWh.
func ParseChart(r io.Reader, date time.Time, rate decimal.Decimal) (model.SpotPrices, error) {
	var doc chartResponse
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding market data: %w", err)
	}

	var series *dataLine
	for i := range doc.Data.DataLine {
		title := strings.ToLower(doc.Data.DataLine[i].Title)
		if strings.Contains(title, "price") && strings.Contains(title, "15min") {
			series = &doc.Data.DataLine[i]
			break
		}
	}
	if series == nil {
		return nil, ErrNoPriceData
	}

	midnight := model.Date(date)
	prices := make(model.SpotPrices, 0, len(series.Point))
	for _, p := range series.Point {
		if p.X == "" || p.Y == "" {
			continue
		}
		x, err := p.X.Float64()
		if err != nil {
			return nil, fmt.Errorf("parsing interval index %q: %w", p.X, err)
		}
		eur, err := decimal.NewFromString(p.Y.String())
		if err != nil {
			return nil, fmt.Errorf("parsing price %q: %w", p.Y, err)
		}
		interval := int(x) - 1
		if interval < 0 {
			continue
		}
		// offsets are absolute so that 23 and 25 hour days stay correct
		from := midnight.Add(time.Duration(interval) * model.IntervalLength)
		prices = append(prices, model.NewSpotPrice(from, eur.InexactFloat64(), eur.Mul(rate).InexactFloat64()))
	}
	if len(prices) == 0 {
		return nil, ErrNoPriceData
	}
	// 92, 96 or 100 quarters depending on the daylight saving switch
	if want := model.IntervalsInDay(midnight); len(prices) != want {
		return nil, fmt.Errorf("%w: got %d intervals for %s, want %d",
			ErrIncompleteSeries, len(prices), midnight.Format(time.DateOnly), want)
	}
	model.SortByTime(prices)
	return prices, nil
}
