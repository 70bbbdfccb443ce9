// Package openmeteo reads hourly forecast and archive weather for the market area.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	hourlyFields    = "temperature_2m,cloud_cover,direct_radiation,diffuse_radiation,wind_speed_10m,precipitation"
	maxForecastDays = 16
	timeLayout      = "2006-01-02T15:04"
)

type client struct {
	httpClient  *http.Client
	forecastURL string
	archiveURL  string
	latitude    float64
	longitude   float64
	metrics     *metrics.Collector
	logger      *zap.Logger
}

func New(forecastURL, archiveURL string, latitude, longitude float64, timeout time.Duration, collector *metrics.Collector) *client {
	return &client{
		httpClient:  &http.Client{Timeout: timeout},
		forecastURL: forecastURL,
		archiveURL:  archiveURL,
		latitude:    latitude,
		longitude:   longitude,
		metrics:     collector,
		logger:      zap.L(),
	}
}

type hourlyResponse struct {
	Hourly struct {
		Time             []string   `json:"time"`
		Temperature      []*float64 `json:"temperature_2m"`
		CloudCover       []*float64 `json:"cloud_cover"`
		DirectRadiation  []*float64 `json:"direct_radiation"`
		DiffuseRadiation []*float64 `json:"diffuse_radiation"`
		WindSpeed        []*float64 `json:"wind_speed_10m"`
		Precipitation    []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

// Forecast returns one aggregated forecast per day, starting today.
func (c *client) Forecast(ctx context.Context, days int) ([]model.WeatherForecast, error) {
	q := c.baseQuery()
	q.Set("forecast_days", strconv.Itoa(min(max(days, 1), maxForecastDays)))

	hourly, err := c.get(ctx, "forecast", c.forecastURL, q)
	if err != nil {
		return nil, err
	}
	return GroupByDay(hourly), nil
}

// Historical returns archived hourly weather for the inclusive date range.
func (c *client) Historical(ctx context.Context, start, end time.Time) ([]model.WeatherData, error) {
	q := c.baseQuery()
	q.Set("start_date", start.Format(time.DateOnly))
	q.Set("end_date", end.Format(time.DateOnly))

	return c.get(ctx, "archive", c.archiveURL, q)
}

func (c *client) baseQuery() url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.longitude, 'f', -1, 64))
	q.Set("hourly", hourlyFields)
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", model.MarketLocation.String())
	return q
}

func (c *client) get(ctx context.Context, source, endpoint string, q url.Values) (hourly []model.WeatherData, err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveFetch("openmeteo_"+source, started, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching weather %s: %w", source, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching weather %s: unexpected status %d", source, res.StatusCode)
	}
	hourly, err = ParseHourly(res.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("received weather", zap.String("source", source), zap.Int("hours", len(hourly)))
	return hourly, nil
}

// ParseHourly decodes the hourly block of an Open-Meteo response. Missing values read as zero.
func ParseHourly(r io.Reader) ([]model.WeatherData, error) {
	var doc hourlyResponse
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding weather: %w", err)
	}
	h := doc.Hourly
	out := make([]model.WeatherData, 0, len(h.Time))
	for i, ts := range h.Time {
		t, err := time.ParseInLocation(timeLayout, ts, model.MarketLocation)
		if err != nil {
			return nil, fmt.Errorf("parsing weather time %q: %w", ts, err)
		}
		out = append(out, model.WeatherData{
			Time:           t,
			Temperature:    at(h.Temperature, i),
			CloudCover:     at(h.CloudCover, i),
			SolarRadiation: at(h.DirectRadiation, i) + at(h.DiffuseRadiation, i),
			WindSpeed:      at(h.WindSpeed, i),
			Precipitation:  at(h.Precipitation, i),
		})
	}
	return out, nil
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

// GroupByDay aggregates hourly weather into daily forecasts ordered by date.
func GroupByDay(hourly []model.WeatherData) []model.WeatherForecast {
	byDay := lo.GroupBy(hourly, func(w model.WeatherData) time.Time {
		return model.Date(w.Time)
	})
	days := lo.Keys(byDay)
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	out := make([]model.WeatherForecast, 0, len(days))
	for _, day := range days {
		hours := byDay[day]
		n := float64(len(hours))
		avgCloud := lo.SumBy(hours, func(w model.WeatherData) float64 { return w.CloudCover }) / n
		avgWind := lo.SumBy(hours, func(w model.WeatherData) float64 { return w.WindSpeed }) / n
		out = append(out, model.WeatherForecast{
			Date:                day,
			Hourly:              hours,
			AvgTemperature:      lo.SumBy(hours, func(w model.WeatherData) float64 { return w.Temperature }) / n,
			AvgCloudCover:       avgCloud,
			TotalSolarRadiation: lo.SumBy(hours, func(w model.WeatherData) float64 { return w.SolarRadiation }),
			AvgWindSpeed:        avgWind,
			WeatherType:         model.ClassifyWeather(avgCloud, avgWind),
		})
	}
	return out
}
