// Package ratefeed fetches market exchange rates and stores them as budget
// conversion rates.
package ratefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"budgetledger/internal/logger"
	"budgetledger/internal/metrics"
)

const (
	chartPath = "/v8/finance/chart"
	yahooUA   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"

	// rateScale matches the precision of stored conversion rates.
	rateScale = 8

	// DefaultCacheTTL bounds how long a fetched rate is reused.
	DefaultCacheTTL = 15 * time.Minute
)

// ErrFeedUnavailable is returned while the circuit breaker rejects calls.
var ErrFeedUnavailable = errors.New("forex feed unavailable")

// yahooChartResponse is the subset of the Yahoo v8 chart response used here.
type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *yahooChartError   `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		Currency           string  `json:"currency"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
}

type yahooChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ForexClient fetches exchange rates from Yahoo Finance into the reporting
// currency. Fetched rates are reused for CacheTTL. Upstream calls go through a
// circuit breaker shared by all lookups of the client.
type ForexClient struct {
	httpClient        *http.Client
	baseURL           string
	reportingCurrency string
	breaker           *gobreaker.CircuitBreaker
	CacheTTL          time.Duration
	mu                sync.RWMutex
	rates             map[string]cachedRate // e.g. "EUR" -> 1.08 (1 EUR = 1.08 USD)
}

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// NewForexClient creates a client converting into reportingCurrency.
func NewForexClient(httpClient *http.Client, baseURL, reportingCurrency string) *ForexClient {
	return &ForexClient{
		httpClient:        httpClient,
		baseURL:           strings.TrimRight(baseURL, "/"),
		reportingCurrency: strings.ToUpper(reportingCurrency),
		breaker:           newBreaker("forex"),
		CacheTTL:          DefaultCacheTTL,
		rates:             make(map[string]cachedRate),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Get().Warnw("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// ReportingCurrency returns the currency rates convert into.
func (f *ForexClient) ReportingCurrency() string {
	return f.reportingCurrency
}

// NeedsConversion returns true if the given currency differs from the reporting currency.
func (f *ForexClient) NeedsConversion(fromCurrency string) bool {
	return strings.ToUpper(fromCurrency) != f.reportingCurrency
}

// GetRate fetches (or returns cached) the multiplier from fromCurrency into the
// reporting currency. For EUR into USD it reads the EURUSD=X ticker.
func (f *ForexClient) GetRate(ctx context.Context, fromCurrency string) (decimal.Decimal, error) {
	if !f.NeedsConversion(fromCurrency) {
		return decimal.NewFromInt(1), nil
	}
	from := strings.ToUpper(fromCurrency)

	f.mu.RLock()
	cached, ok := f.rates[from]
	f.mu.RUnlock()
	if ok && time.Since(cached.fetchedAt) < f.CacheTTL {
		metrics.RateFeedFetches.WithLabelValues("cached").Inc()
		return cached.rate, nil
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchRate(ctx, from)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RateFeedFetches.WithLabelValues("rejected").Inc()
			return decimal.Zero, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
		}
		metrics.RateFeedFetches.WithLabelValues("failure").Inc()
		return decimal.Zero, err
	}
	rate := result.(decimal.Decimal)
	metrics.RateFeedFetches.WithLabelValues("success").Inc()

	f.mu.Lock()
	f.rates[from] = cachedRate{rate: rate, fetchedAt: time.Now()}
	f.mu.Unlock()

	return rate, nil
}

// fetchRate reads one forex pair from the chart endpoint.
func (f *ForexClient) fetchRate(ctx context.Context, fromCurrency string) (decimal.Decimal, error) {
	ticker := fromCurrency + f.reportingCurrency + "=X"
	url := f.baseURL + chartPath + "/" + ticker + "?interval=1d&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building forex request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUA)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("forex http request for %s: %w", ticker, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("forex request for %s: unexpected status %d", ticker, resp.StatusCode)
	}

	var chartResp yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartResp); err != nil {
		return decimal.Zero, fmt.Errorf("decoding forex response for %s: %w", ticker, err)
	}

	if chartResp.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("forex chart error for %s: %s: %s", ticker, chartResp.Chart.Error.Code, chartResp.Chart.Error.Description)
	}

	if len(chartResp.Chart.Result) == 0 {
		return decimal.Zero, fmt.Errorf("no forex results for %s", ticker)
	}

	price := chartResp.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("invalid forex rate for %s: %f", ticker, price)
	}

	return decimal.NewFromFloat(price).Round(rateScale), nil
}
