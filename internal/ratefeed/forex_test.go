package ratefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

// chartResponse builds a v8 chart response for a single ticker.
func chartResponse(symbol string, price float64) yahooChartResponse {
	var result yahooChartResult
	result.Meta.Symbol = symbol
	result.Meta.Currency = "USD"
	result.Meta.RegularMarketPrice = price

	var resp yahooChartResponse
	resp.Chart.Result = []yahooChartResult{result}
	return resp
}

// chartErrorResponse builds a v8 chart error response.
func chartErrorResponse(code, description string) yahooChartResponse {
	var resp yahooChartResponse
	resp.Chart.Error = &yahooChartError{Code: code, Description: description}
	return resp
}

// newForexMockServer serves chart responses per ticker and counts requests.
// Tickers not in rateMap get a chart error.
func newForexMockServer(rateMap map[string]float64, hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		ticker := strings.TrimPrefix(r.URL.Path, chartPath+"/")
		w.Header().Set("Content-Type", "application/json")

		rate, ok := rateMap[ticker]
		if !ok {
			_ = json.NewEncoder(w).Encode(chartErrorResponse("Not Found", "No data found for "+ticker))
			return
		}
		_ = json.NewEncoder(w).Encode(chartResponse(ticker, rate))
	}))
}

func TestForexClient_NeedsConversion(t *testing.T) {
	fc := NewForexClient(http.DefaultClient, "http://unused", "usd")

	tests := []struct {
		currency string
		want     bool
	}{
		{"EUR", true},
		{"eur", true},
		{"USD", false},
		{"Usd", false},
	}
	for _, tt := range tests {
		if got := fc.NeedsConversion(tt.currency); got != tt.want {
			t.Errorf("NeedsConversion(%q) = %v, want %v", tt.currency, got, tt.want)
		}
	}
}

func TestForexClient_GetRate_SameCurrency(t *testing.T) {
	fc := NewForexClient(http.DefaultClient, "http://unused", "USD")

	rate, err := fc.GetRate(context.Background(), "usd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("rate = %s, want 1", rate)
	}
}

func TestForexClient_GetRate_Success(t *testing.T) {
	var hits atomic.Int32
	server := newForexMockServer(map[string]float64{
		"EURUSD=X": 1.0825,
		"GBPUSD=X": 1.27,
	}, &hits)
	defer server.Close()

	fc := NewForexClient(server.Client(), server.URL, "USD")

	rate, err := fc.GetRate(context.Background(), "EUR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1.0825")) {
		t.Errorf("EUR rate = %s, want 1.0825", rate)
	}

	rate, err = fc.GetRate(context.Background(), "gbp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("1.27")) {
		t.Errorf("GBP rate = %s, want 1.27", rate)
	}

	// Cached after the first lookup.
	if _, err := fc.GetRate(context.Background(), "EUR"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2 (EUR should be cached)", hits.Load())
	}
}

func TestForexClient_GetRate_CacheExpires(t *testing.T) {
	var hits atomic.Int32
	server := newForexMockServer(map[string]float64{"EURUSD=X": 1.08}, &hits)
	defer server.Close()

	fc := NewForexClient(server.Client(), server.URL, "USD")
	fc.CacheTTL = 0

	for i := 0; i < 2; i++ {
		if _, err := fc.GetRate(context.Background(), "EUR"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2 (expired entries must be refetched)", hits.Load())
	}
}

func TestForexClient_GetRate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fc := NewForexClient(server.Client(), server.URL, "USD")

	_, err := fc.GetRate(context.Background(), "EUR")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "unexpected status 500") {
		t.Errorf("expected error about status 500, got: %v", err)
	}
}

func TestForexClient_GetRate_ChartError(t *testing.T) {
	server := newForexMockServer(map[string]float64{}, nil)
	defer server.Close()

	fc := NewForexClient(server.Client(), server.URL, "USD")

	_, err := fc.GetRate(context.Background(), "XYZ")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "forex chart error") {
		t.Errorf("expected chart error, got: %v", err)
	}
}

func TestForexClient_GetRate_NonPositive(t *testing.T) {
	server := newForexMockServer(map[string]float64{"EURUSD=X": 0}, nil)
	defer server.Close()

	fc := NewForexClient(server.Client(), server.URL, "USD")

	if _, err := fc.GetRate(context.Background(), "EUR"); err == nil {
		t.Fatal("expected error for zero rate, got nil")
	}
}

func TestForexClient_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fc := NewForexClient(server.Client(), server.URL, "USD")

	for i := 0; i < 5; i++ {
		if _, err := fc.GetRate(context.Background(), "EUR"); err == nil {
			t.Fatalf("call %d: expected error, got nil", i)
		}
	}

	_, err := fc.GetRate(context.Background(), "EUR")
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable once the breaker is open, got: %v", err)
	}
	if hits.Load() != 5 {
		t.Errorf("hits = %d, want 5 (open breaker must not reach upstream)", hits.Load())
	}
}
