package marketdata

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bist-sentinel/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		RequestsPerMin: 60000,
		Timeout:        2 * time.Second,
	})
}

func TestTimeSeriesReversesValues(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"symbol":     r.URL.Query().Get("symbol"),
			"interval":   r.URL.Query().Get("interval"),
			"outputsize": r.URL.Query().Get("outputsize"),
			"apikey":     r.URL.Query().Get("apikey"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"values": [
				{"datetime": "2026-03-04", "open": "101.0", "high": "102.5", "low": "100.2", "close": "102.1", "volume": "1200000"},
				{"datetime": "2026-03-03", "open": "100.0", "high": "101.4", "low": "99.6", "close": "101.0", "volume": "900000"},
				{"datetime": "2026-03-02", "open": "99.0", "high": "100.3", "low": "98.5", "close": "100.0", "volume": "800000"}
			]
		}`))
	})

	bars, err := client.TimeSeries(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Failed to fetch series: %v", err)
	}

	if gotPath != "/time_series" {
		t.Errorf("Expected path /time_series, got %s", gotPath)
	}
	if gotQuery["symbol"] != "FROTO" || gotQuery["interval"] != "1day" {
		t.Errorf("Expected symbol and interval params, got %v", gotQuery)
	}
	if gotQuery["outputsize"] != "260" {
		t.Errorf("Expected outputsize 260, got %s", gotQuery["outputsize"])
	}
	if gotQuery["apikey"] != "test-key" {
		t.Errorf("Expected apikey param, got %s", gotQuery["apikey"])
	}

	if len(bars) != 3 {
		t.Fatalf("Expected 3 bars, got %d", len(bars))
	}
	if !bars[0].Date.Before(bars[1].Date) || !bars[1].Date.Before(bars[2].Date) {
		t.Errorf("Expected chronological order, got %v, %v, %v", bars[0].Date, bars[1].Date, bars[2].Date)
	}
	if bars[0].Close != 100.0 || bars[2].Close != 102.1 {
		t.Errorf("Expected oldest close 100.0 and newest 102.1, got %.2f and %.2f", bars[0].Close, bars[2].Close)
	}
	if bars[2].Volume != 1200000 {
		t.Errorf("Expected newest volume 1200000, got %d", bars[2].Volume)
	}
}

func TestTimeSeriesDropsDuplicateDates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"values": [
				{"datetime": "2026-03-04", "open": "101.0", "high": "102.5", "low": "100.2", "close": "102.1", "volume": "1200000"},
				{"datetime": "2026-03-03", "open": "100.0", "high": "101.4", "low": "99.6", "close": "101.2", "volume": "950000"},
				{"datetime": "2026-03-03", "open": "100.0", "high": "101.4", "low": "99.6", "close": "101.0", "volume": "900000"},
				{"datetime": "2026-03-02", "open": "99.0", "high": "100.3", "low": "98.5", "close": "100.0", "volume": "800000"}
			]
		}`))
	})

	bars, err := client.TimeSeries(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Failed to fetch series: %v", err)
	}

	if len(bars) != 3 {
		t.Fatalf("Expected duplicate date collapsed to 3 bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Date.Before(bars[i].Date) {
			t.Errorf("Expected strictly increasing dates, got %v then %v", bars[i-1].Date, bars[i].Date)
		}
	}
	if bars[1].Close != 101.0 {
		t.Errorf("Expected close 101.0 for the repeated date, got %.2f", bars[1].Close)
	}
}

func TestTimeSeriesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "error", "code": 400, "message": "symbol not found: NOPE"}`))
	})

	_, err := client.TimeSeries(context.Background(), "NOPE")
	if err == nil {
		t.Fatalf("Expected error for API error status")
	}

	var de *errors.DataError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DataError, got %T", err)
	}
	if de.Symbol != "NOPE" || de.DataType != "time_series" {
		t.Errorf("Expected error tagged with symbol and data type, got %+v", de)
	}
	if !errors.IsTransient(err) {
		t.Errorf("Expected data failure to be transient")
	}
}

func TestTimeSeriesEmptySeries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "values": []}`))
	})

	_, err := client.TimeSeries(context.Background(), "FROTO")
	if !errors.Is(err, errors.ErrDataNotFound) {
		t.Errorf("Expected ErrDataNotFound for empty series, got %v", err)
	}
}

func TestTimeSeriesIndexWithoutVolume(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "ok",
			"values": [{"datetime": "2026-03-02", "open": "9800.5", "high": "9910.0", "low": "9750.1", "close": "9900.2", "volume": ""}]
		}`))
	})

	bars, err := client.TimeSeries(context.Background(), "XU100")
	if err != nil {
		t.Fatalf("Failed to fetch index series: %v", err)
	}
	if bars[0].Volume != 0 {
		t.Errorf("Expected zero volume for index bar, got %d", bars[0].Volume)
	}
	if math.Abs(bars[0].Close-9900.2) > 1e-9 {
		t.Errorf("Expected close 9900.2, got %.2f", bars[0].Close)
	}
}

func TestLastPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/price" {
			t.Errorf("Expected path /price, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"price": "102.53"}`))
	})

	price, err := client.LastPrice(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Failed to fetch price: %v", err)
	}
	if math.Abs(price-102.53) > 1e-9 {
		t.Errorf("Expected price 102.53, got %.4f", price)
	}
}

func TestLastPriceUnusable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": "0"}`))
	})

	_, err := client.LastPrice(context.Background(), "FROTO")
	if !errors.Is(err, errors.ErrNoPrice) {
		t.Errorf("Expected ErrNoPrice for zero price, got %v", err)
	}
	if !errors.IsTransient(err) {
		t.Errorf("Expected unusable price to be transient")
	}
}

func TestFundamentalsSparse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"statistics": {
				"valuations_metrics": {"trailing_pe": 4.8},
				"financials": {"return_on_equity_ttm": 0.31}
			}
		}`))
	})

	snap, err := client.Fundamentals(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Failed to fetch fundamentals: %v", err)
	}
	if snap.PERatio == nil || math.Abs(*snap.PERatio-4.8) > 1e-9 {
		t.Errorf("Expected PE 4.8, got %v", snap.PERatio)
	}
	if snap.ROE == nil || math.Abs(*snap.ROE-0.31) > 1e-9 {
		t.Errorf("Expected ROE 0.31, got %v", snap.ROE)
	}
	if snap.PBRatio != nil || snap.DebtToEquity != nil {
		t.Errorf("Expected unreported ratios to stay nil, got %+v", snap)
	}
}

func TestHeadlines(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"data": [
				{"title": "Ford Otosan wins export order", "datetime": "2026-03-02 09:15:00"},
				{"title": "Automotive sector output rises", "datetime": "2026-03-01"}
			]
		}`))
	})

	headlines, err := client.Headlines(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Failed to fetch headlines: %v", err)
	}
	if len(headlines) != 2 {
		t.Fatalf("Expected 2 headlines, got %d", len(headlines))
	}
	if headlines[0].Title != "Ford Otosan wins export order" {
		t.Errorf("Expected title round trip, got %q", headlines[0].Title)
	}
	if headlines[0].PublishedAt.Hour() != 9 {
		t.Errorf("Expected parsed publish time, got %v", headlines[0].PublishedAt)
	}
}

func TestHeadlinesEmptyIsNotError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	})

	headlines, err := client.Headlines(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Expected no error for empty news, got %v", err)
	}
	if len(headlines) != 0 {
		t.Errorf("Expected empty headline list, got %d", len(headlines))
	}
}

func TestProfileSector(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "FROTO", "name": "Ford Otosan", "exchange": "BIST", "sector": "Consumer Cyclical", "industry": "Auto Manufacturers"}`))
	})

	sector, err := client.Sector(context.Background(), "FROTO")
	if err != nil {
		t.Fatalf("Failed to fetch sector: %v", err)
	}
	if sector != "Consumer Cyclical" {
		t.Errorf("Expected sector Consumer Cyclical, got %q", sector)
	}
}

func TestRateLimitedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.LastPrice(context.Background(), "FROTO")
	if !errors.Is(err, errors.ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited for 429, got %v", err)
	}
	if !errors.IsTransient(err) {
		t.Errorf("Expected rate limit to be transient")
	}
}

func TestServerErrorWrapped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.TimeSeries(context.Background(), "FROTO")
	if err == nil {
		t.Fatalf("Expected error for 502")
	}
	var de *errors.DataError
	if !errors.As(err, &de) {
		t.Errorf("Expected DataError wrapper, got %T", err)
	}
}
