package server

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/analysis"
	"github.com/anicoll/ote-spot/internal/pkg/model"
	"go.uber.org/zap"
)

// historyRows is the number of past days listed on the overview.
const historyRows = 14

//go:embed templates/dashboard.html
var templates embed.FS

var dashboardTemplate = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"price": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
	"hour":  func(t time.Time) string { return t.In(model.MarketLocation).Format("15:04") },
	"day":   func(t time.Time) string { return t.In(model.MarketLocation).Format("Mon 02.01.2006") },
}).ParseFS(templates, "templates/dashboard.html"))

type hourRow struct {
	model.SpotPrice
	Level analysis.PriceLevel
	Color string
}

type dashboardPage struct {
	Date    time.Time
	Current *model.PriceSnapshot
	Stats   *model.DailyStats
	Hours   []hourRow
	History []*model.DailyStats
}

// Dashboard renders the overview page. Missing data leaves sections empty instead of failing.
func (s *server) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := dashboardPage{Date: s.today()}

	if snap, err := s.Prices.CurrentSnapshot(ctx); err == nil {
		page.Current = snap
	} else {
		s.logger.Warn("dashboard without current price", zap.Error(err))
	}

	prices, err := s.Store.PricesForDate(ctx, page.Date)
	if err != nil {
		handleError(w, err)
		return
	}
	if page.Stats, err = s.Store.DailyStats(ctx, page.Date); err != nil {
		handleError(w, err)
		return
	}
	classify, err := s.Analysis.Classifier(ctx, classifyDays)
	if err != nil {
		handleError(w, err)
		return
	}
	for _, p := range prices.HourlyAverages() {
		level := classify(p.PriceCZK)
		page.Hours = append(page.Hours, hourRow{SpotPrice: p, Level: level, Color: level.Color()})
	}

	history, err := s.history(ctx)
	if err != nil {
		handleError(w, err)
		return
	}
	page.History = history[:min(len(history), historyRows)]

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, page); err != nil {
		s.logger.Error("failed to render dashboard", zap.Error(err))
	}
}
