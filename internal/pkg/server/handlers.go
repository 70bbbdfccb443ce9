package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/analysis"
	"github.com/anicoll/ote-spot/internal/pkg/forecast"
	"github.com/anicoll/ote-spot/internal/pkg/logic"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"github.com/anicoll/ote-spot/internal/pkg/ote"
	"github.com/anicoll/ote-spot/internal/pkg/stats"
	"github.com/anicoll/ote-spot/internal/pkg/weather"
	"github.com/anicoll/ote-spot/pkg/hasher"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	classifyDays      = 30
	minAnalysisDays   = 7
	minPatternDays    = 14
	defaultDaysBack   = 30
	maxDaysBack       = 365
	defaultForecast   = 7
	maxForecastDays   = 14
	topHours          = 5
	riskyProbability  = 0.2
	correlationDays   = 30
	weatherHorizonDay = 7
)

var (
	errBadRequest      = errors.New("bad request")
	ErrUnauthorized    = errors.New("missing or invalid api token")
	errRefreshDisabled = errors.New("refresh is disabled, no api token configured")
	errWeatherDisabled = errors.New("weather is disabled")
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	sendError(w, http.StatusMethodNotAllowed, r.Method+" is not supported on "+r.URL.Path)
}

func handleError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ote.ErrNoPriceData), errors.Is(err, logic.ErrNoCurrentPrice):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest), errors.Is(err, analysis.ErrUnknownProfile):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, errRefreshDisabled):
		status = http.StatusForbidden
	case errors.Is(err, errWeatherDisabled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	sendError(w, status, err.Error())
}

// intParam reads an integer query parameter, falling back to def and clamping to [low, high].
func intParam(r *http.Request, name string, def, low, high int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return min(max(v, low), high), nil
}

func (s *server) today() time.Time {
	return model.Date(s.Now())
}

func (s *server) dateParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.today(), nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest)
	}
	return d, nil
}

func (s *server) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.Now().Format(time.RFC3339),
	})
}

type currentPrice struct {
	model.SpotPrice
	Level      analysis.PriceLevel `json:"level"`
	LevelColor string              `json:"level_color"`
}

type pricesResponse struct {
	Date    string            `json:"date"`
	Source  string            `json:"source"`
	Prices  model.SpotPrices  `json:"prices"`
	Hourly  model.SpotPrices  `json:"hourly"`
	Stats   *model.DailyStats `json:"stats"`
	Current *currentPrice     `json:"current,omitempty"`
}

// dailyStats summarises prices that were fetched but not stored.
func dailyStats(date time.Time, prices model.SpotPrices, rate float64) *model.DailyStats {
	if len(prices) == 0 {
		return nil
	}
	czk := prices.CZK()
	return &model.DailyStats{
		Date:       date,
		Min:        lo.Min(czk),
		Max:        lo.Max(czk),
		Avg:        stats.Mean(czk),
		Count:      len(prices),
		EURCZKRate: rate,
	}
}

func (s *server) GetPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date, err := s.dateParam(r)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := pricesResponse{Date: date.Format(time.DateOnly), Source: r.URL.Query().Get("source")}
	switch resp.Source {
	case "live":
		prices, rate, err := s.Fetcher.FetchSpotPrices(ctx, date)
		if err != nil {
			handleError(w, err)
			return
		}
		resp.Prices, resp.Stats = prices, dailyStats(date, prices, rate)
	case "", "db":
		resp.Source = "db"
		if resp.Prices, err = s.Store.PricesForDate(ctx, date); err != nil {
			handleError(w, err)
			return
		}
		if resp.Stats, err = s.Store.DailyStats(ctx, date); err != nil {
			handleError(w, err)
			return
		}
	default:
		handleError(w, fmt.Errorf("%w: source must be live or db", errBadRequest))
		return
	}
	if resp.Prices == nil {
		resp.Prices = model.SpotPrices{}
	}
	resp.Hourly = resp.Prices.HourlyAverages()

	if date.Equal(s.today()) {
		if p, ok := resp.Prices.Current(s.Now()); ok {
			level, err := s.Analysis.ClassifyPrice(ctx, p.PriceCZK, classifyDays)
			if err != nil {
				handleError(w, err)
				return
			}
			resp.Current = &currentPrice{SpotPrice: p, Level: level, LevelColor: level.Color()}
		}
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *server) history(ctx context.Context) ([]*model.DailyStats, error) {
	dates, err := s.Store.AvailableDates(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.DailyStats, 0, len(dates))
	for _, d := range dates {
		st, err := s.Store.DailyStats(ctx, d)
		if err != nil {
			return nil, err
		}
		if st != nil {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *server) GetHistory(w http.ResponseWriter, r *http.Request) {
	days, err := s.history(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"dates": days})
}

// insufficient is returned in place of an analysis that needs more stored days.
type insufficient struct {
	Sufficient   bool `json:"sufficient"`
	TotalDays    int  `json:"total_days"`
	RequiredDays int  `json:"required_days"`
}

func (s *server) enoughData(ctx context.Context, w http.ResponseWriter) (int, bool) {
	days, err := s.Store.DataDaysCount(ctx)
	if err != nil {
		handleError(w, err)
		return 0, false
	}
	if days < minAnalysisDays {
		sendJSON(w, http.StatusOK, insufficient{TotalDays: days, RequiredDays: minAnalysisDays})
		return days, false
	}
	return days, true
}

type analysisResponse struct {
	Sufficient       bool                         `json:"sufficient"`
	TotalDays        int                          `json:"total_days"`
	DaysBack         int                          `json:"days_back"`
	HourlyPatterns   []analysis.HourlyPattern     `json:"hourly_patterns"`
	BestHours        []analysis.HourPrice         `json:"best_hours"`
	WorstHours       []analysis.HourPrice         `json:"worst_hours"`
	Heatmap          []analysis.HeatmapCell       `json:"heatmap,omitempty"`
	NegativeStats    *analysis.NegativePriceStats `json:"negative_stats"`
	NegativeForecast []int                        `json:"negative_forecast"`
	Distribution     *analysis.PriceDistribution  `json:"distribution"`
	MovingAverages   []analysis.MovingAverageDay  `json:"moving_averages,omitempty"`
	Trend            *analysis.PriceTrend         `json:"trend"`
}

func (s *server) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	daysBack, err := intParam(r, "days", defaultDaysBack, 1, maxDaysBack)
	if err != nil {
		handleError(w, err)
		return
	}
	totalDays, ok := s.enoughData(r.Context(), w)
	if !ok {
		return
	}

	resp := analysisResponse{Sufficient: true, TotalDays: totalDays, DaysBack: daysBack}
	a := s.Analysis
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		resp.HourlyPatterns, err = a.HourlyPatterns(ctx, daysBack)
		return err
	})
	g.Go(func() (err error) {
		resp.BestHours, err = a.BestHours(ctx, topHours, daysBack)
		return err
	})
	g.Go(func() (err error) {
		resp.WorstHours, err = a.WorstHours(ctx, topHours, daysBack)
		return err
	})
	g.Go(func() (err error) {
		resp.NegativeStats, err = a.NegativePriceStats(ctx, daysBack)
		return err
	})
	g.Go(func() (err error) {
		resp.NegativeForecast, err = a.NegativePriceForecast(ctx)
		return err
	})
	g.Go(func() (err error) {
		resp.Distribution, err = a.PriceDistribution(ctx, daysBack)
		return err
	})
	g.Go(func() (err error) {
		resp.Trend, err = a.PriceTrend(ctx, min(daysBack, 7))
		return err
	})
	if totalDays >= minPatternDays {
		g.Go(func() (err error) {
			resp.Heatmap, err = a.WeekdayHourHeatmap(ctx, daysBack)
			return err
		})
		g.Go(func() (err error) {
			resp.MovingAverages, err = a.MovingAverages(ctx, daysBack)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		handleError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

type riskResponse struct {
	Sufficient       bool                          `json:"sufficient"`
	TotalDays        int                           `json:"total_days"`
	Current          *model.PriceSnapshot          `json:"current,omitempty"`
	Benchmark        *analysis.PriceBenchmark      `json:"benchmark,omitempty"`
	Profiles         []analysis.ConsumptionProfile `json:"profiles"`
	OptimalProfile   *analysis.ConsumptionProfile  `json:"optimal_profile"`
	Volatility       *analysis.VolatilityMetrics   `json:"volatility"`
	Peaks            *analysis.PeakAnalysis        `json:"peaks"`
	PeakProbability  map[int]float64               `json:"peak_probability"`
	RiskyPredictions []analysis.PeakPrediction     `json:"risky_predictions"`
}

func (s *server) GetRisk(w http.ResponseWriter, r *http.Request) {
	totalDays, ok := s.enoughData(r.Context(), w)
	if !ok {
		return
	}
	resp := riskResponse{Sufficient: true, TotalDays: totalDays}
	a := s.Analysis

	snap, err := s.Prices.CurrentSnapshot(r.Context())
	switch {
	case errors.Is(err, logic.ErrNoCurrentPrice), errors.Is(err, ote.ErrNoPriceData):
		s.logger.Warn("no current price for benchmark", zap.Error(err))
	case err != nil:
		handleError(w, err)
		return
	}
	resp.Current = snap

	g, ctx := errgroup.WithContext(r.Context())
	if snap != nil {
		g.Go(func() (err error) {
			resp.Benchmark, err = a.CurrentBenchmark(ctx, snap.PriceCZK, classifyDays)
			return err
		})
	}
	g.Go(func() (err error) {
		resp.Profiles, err = a.CompareProfiles(ctx, classifyDays)
		return err
	})
	g.Go(func() (err error) {
		resp.OptimalProfile, err = a.OptimalProfile(ctx, classifyDays)
		return err
	})
	g.Go(func() (err error) {
		resp.Volatility, err = a.VolatilityMetrics(ctx, classifyDays)
		return err
	})
	g.Go(func() (err error) {
		resp.Peaks, err = a.PeakAnalysis(ctx, classifyDays)
		return err
	})
	g.Go(func() (err error) {
		resp.PeakProbability, err = a.PeakProbabilityByHour(ctx, classifyDays)
		return err
	})
	g.Go(func() error {
		predictions, err := a.PredictPeaksTomorrow(ctx, classifyDays)
		resp.RiskyPredictions = lo.Filter(predictions, func(p analysis.PeakPrediction, _ int) bool {
			return p.Probability >= riskyProbability
		})
		return err
	})
	if err := g.Wait(); err != nil {
		handleError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

type forecastResponse struct {
	Sufficiency forecast.DataSufficiency `json:"sufficiency"`
	Tomorrow    forecast.Tomorrow        `json:"tomorrow"`
	Forecasts   []forecast.DayForecast   `json:"forecasts"`
	Weather     []forecast.DayForecast   `json:"weather_forecasts"`
}

func (s *server) GetForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	days, err := intParam(r, "days", defaultForecast, 2, maxForecastDays)
	if err != nil {
		handleError(w, err)
		return
	}
	resp := forecastResponse{Weather: []forecast.DayForecast{}}
	if resp.Sufficiency, err = s.Forecast.DataSufficiency(ctx); err != nil {
		handleError(w, err)
		return
	}
	resp.Tomorrow = s.Forecast.TomorrowPrices(ctx)
	if resp.Forecasts, err = s.Forecast.ForDays(ctx, days); err != nil {
		handleError(w, err)
		return
	}
	if s.Weather != nil {
		weatherDays, err := s.Forecast.ForDaysWithWeather(ctx, min(days, weatherHorizonDay))
		if err != nil {
			s.logger.Warn("weather adjusted forecast failed", zap.Error(err))
		} else {
			resp.Weather = weatherDays
		}
	}
	sendJSON(w, http.StatusOK, resp)
}

type weatherResponse struct {
	Forecast    []model.WeatherForecast `json:"forecast"`
	Correlation *weather.Correlation    `json:"correlation"`
	Tomorrow    []model.HourPrediction  `json:"tomorrow"`
}

func (s *server) GetWeather(w http.ResponseWriter, r *http.Request) {
	if s.Weather == nil {
		handleError(w, errWeatherDisabled)
		return
	}
	ctx := r.Context()
	var (
		resp weatherResponse
		err  error
	)
	if resp.Forecast, err = s.Weather.Forecast(ctx, weatherHorizonDay); err != nil {
		handleError(w, err)
		return
	}
	if resp.Correlation, err = s.Weather.Correlation(ctx, correlationDays); err != nil {
		handleError(w, err)
		return
	}
	tomorrow := s.today().AddDate(0, 0, 1)
	var day *model.WeatherForecast
	if found, ok := lo.Find(resp.Forecast, func(f model.WeatherForecast) bool { return model.Date(f.Date).Equal(tomorrow) }); ok {
		day = &found
	} else {
		day = &model.WeatherForecast{Date: tomorrow}
	}
	if resp.Tomorrow, err = s.Weather.EnhancedForecast(ctx, tomorrow, day); err != nil {
		handleError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *server) authorize(r *http.Request) error {
	if s.TokenHash == "" {
		return errRefreshDisabled
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || !hasher.TokenMatches(token, s.TokenHash) {
		return ErrUnauthorized
	}
	return nil
}

func (s *server) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		handleError(w, err)
		return
	}
	date, err := s.dateParam(r)
	if err != nil {
		handleError(w, err)
		return
	}
	saved, err := s.Prices.SaveDay(r.Context(), date)
	if err != nil {
		handleError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"date": date.Format(time.DateOnly), "saved": saved})
}
