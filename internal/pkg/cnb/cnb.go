// Package cnb reads the EUR/CZK fixing published by the Czech National Bank.
package cnb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/anicoll/ote-spot/internal/pkg/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrRateNotFound = errors.New("EUR rate not found in CNB fixing")

type client struct {
	httpClient *http.Client
	rateURL    string
	metrics    *metrics.Collector
	logger     *zap.Logger

	mu    sync.Mutex
	fixed map[string]decimal.Decimal
}

func New(rateURL string, timeout time.Duration, collector *metrics.Collector) *client {
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		rateURL:    rateURL,
		metrics:    collector,
		logger:     zap.L(),
		fixed:      map[string]decimal.Decimal{},
	}
}

// EURCZK returns the CZK amount for one EUR. A zero date asks for the latest fixing.
// CNB answers a weekend or holiday with the last fixing before it. Dated answers never
// change and are cached.
func (c *client) EURCZK(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	key := ""
	if !date.IsZero() {
		key = date.Format(time.DateOnly)
		c.mu.Lock()
		rate, ok := c.fixed[key]
		c.mu.Unlock()
		if ok {
			return rate, nil
		}
	}

	started := time.Now()
	rate, err := c.fetch(ctx, date)
	c.metrics.ObserveFetch("cnb", started, err)
	if err != nil {
		return decimal.Zero, err
	}
	c.logger.Debug("received EUR/CZK fixing", zap.String("rate", rate.String()), zap.String("date", key))
	if key != "" {
		c.mu.Lock()
		c.fixed[key] = rate
		c.mu.Unlock()
	}
	return rate, nil
}

func (c *client) fetch(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	u, err := url.Parse(c.rateURL)
	if err != nil {
		return decimal.Zero, err
	}
	if !date.IsZero() {
		q := u.Query()
		q.Set("date", date.Format("02.01.2006"))
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching CNB fixing: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetching CNB fixing: unexpected status %d", res.StatusCode)
	}
	return ParseEURRate(res.Body)
}

// ParseEURRate extracts the EUR rate from the pipe-separated daily fixing,
// e.g. "EMU|euro|1|EUR|24.330". The rate is divided by the quoted amount.
func ParseEURRate(r io.Reader) (decimal.Decimal, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "|EUR|") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 5 {
			return decimal.Zero, fmt.Errorf("malformed EUR line %q", line)
		}
		rate, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(fields[4]), ",", "."))
		if err != nil {
			return decimal.Zero, fmt.Errorf("parsing EUR rate: %w", err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
		if err != nil || amount.IsZero() {
			amount = decimal.NewFromInt(1)
		}
		return rate.Div(amount), nil
	}
	if err := scanner.Err(); err != nil {
		return decimal.Zero, err
	}
	return decimal.Zero, ErrRateNotFound
}
