// Package marketdata fetches daily bars, quotes, fundamentals and
// headlines from a TwelveData-style REST API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bist-sentinel/internal/errors"
	"bist-sentinel/internal/models"
	"bist-sentinel/internal/performance"
	"bist-sentinel/internal/security"
	"bist-sentinel/pkg/utils"
)

// outputSize covers roughly a year of trading days plus the EMA200
// warm-up the technical scorer needs.
const outputSize = 260

// Config holds the client settings.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestsPerMin int
	Timeout        time.Duration
}

// Client is a rate-limited REST client. The free tier is
// credit-limited, so every request waits on a token bucket sized from
// the configured per-minute budget.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *performance.RateLimiter
}

// NewClient creates a client. Zero config fields fall back to the
// free-tier defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twelvedata.com"
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: performance.NewRateLimiter(float64(cfg.RequestsPerMin)/60.0, 2),
	}
}

// barValue is one OHLCV row as the API sends it, all numbers encoded
// as strings.
type barValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type timeSeriesResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Values  []barValue `json:"values"`
}

type priceResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Price   string `json:"price"`
}

type statisticsResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Statistics struct {
		ValuationsMetrics struct {
			TrailingPE     *float64 `json:"trailing_pe"`
			PriceToBookMRQ *float64 `json:"price_to_book_mrq"`
		} `json:"valuations_metrics"`
		Financials struct {
			ProfitMargin      *float64 `json:"profit_margin"`
			ReturnOnEquityTTM *float64 `json:"return_on_equity_ttm"`
			TotalDebtToEquity *float64 `json:"total_debt_to_equity"`
			RevenueGrowth     *float64 `json:"quarterly_revenue_growth"`
			EarningsGrowth    *float64 `json:"quarterly_earnings_growth_yoy"`
		} `json:"financials"`
	} `json:"statistics"`
}

type newsResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    []struct {
		Title    string `json:"title"`
		Datetime string `json:"datetime"`
	} `json:"data"`
}

// CompanyProfile is the subset of the profile endpoint the engine
// cares about.
type CompanyProfile struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// TimeSeries fetches about a year of daily bars. The API sends values
// newest-first; the result is reversed into chronological order and
// rows repeating the previous date are dropped.
func (c *Client) TimeSeries(ctx context.Context, symbol string) ([]models.PriceBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("outputsize", strconv.Itoa(outputSize))

	var resp timeSeriesResponse
	if err := c.get(ctx, "/time_series", params, &resp); err != nil {
		return nil, errors.NewDataError("time_series", symbol, "fetch failed", err)
	}
	if resp.Status == "error" {
		return nil, errors.NewDataError("time_series", symbol, resp.Message, nil)
	}
	if len(resp.Values) == 0 {
		return nil, errors.NewDataError("time_series", symbol, "empty series", errors.ErrDataNotFound)
	}

	bars := make([]models.PriceBar, 0, len(resp.Values))
	for i := len(resp.Values) - 1; i >= 0; i-- {
		bar, err := resp.Values[i].toPriceBar()
		if err != nil {
			return nil, errors.NewDataError("time_series", symbol, "malformed bar", err)
		}
		if n := len(bars); n > 0 && bar.Date.Equal(bars[n-1].Date) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// LastPrice fetches the latest price for a symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp priceResponse
	if err := c.get(ctx, "/price", params, &resp); err != nil {
		return 0, errors.NewDataError("price", symbol, "fetch failed", err)
	}
	if resp.Status == "error" {
		return 0, errors.NewDataError("price", symbol, resp.Message, nil)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || price <= 0 {
		return 0, errors.NewDataError("price", symbol, fmt.Sprintf("unusable price %q", resp.Price), errors.ErrNoPrice)
	}
	return price, nil
}

// Fundamentals fetches the sparse ratio set from the statistics
// endpoint. Ratios the source does not report stay nil.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*models.FundamentalsSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp statisticsResponse
	if err := c.get(ctx, "/statistics", params, &resp); err != nil {
		return nil, errors.NewDataError("statistics", symbol, "fetch failed", err)
	}
	if resp.Status == "error" {
		return nil, errors.NewDataError("statistics", symbol, resp.Message, nil)
	}

	return &models.FundamentalsSnapshot{
		PERatio:        resp.Statistics.ValuationsMetrics.TrailingPE,
		PBRatio:        resp.Statistics.ValuationsMetrics.PriceToBookMRQ,
		ROE:            resp.Statistics.Financials.ReturnOnEquityTTM,
		DebtToEquity:   resp.Statistics.Financials.TotalDebtToEquity,
		RevenueGrowth:  resp.Statistics.Financials.RevenueGrowth,
		EarningsGrowth: resp.Statistics.Financials.EarningsGrowth,
		ProfitMargin:   resp.Statistics.Financials.ProfitMargin,
	}, nil
}

// Headlines fetches recent news for a symbol. No news is not an
// error; the news scorer treats an empty list as neutral.
func (c *Client) Headlines(ctx context.Context, symbol string) ([]models.Headline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp newsResponse
	if err := c.get(ctx, "/news", params, &resp); err != nil {
		return nil, errors.NewDataError("news", symbol, "fetch failed", err)
	}
	if resp.Status == "error" {
		return nil, errors.NewDataError("news", symbol, resp.Message, nil)
	}

	headlines := make([]models.Headline, 0, len(resp.Data))
	for _, item := range resp.Data {
		headlines = append(headlines, models.Headline{
			Title:       item.Title,
			PublishedAt: parseNewsTime(item.Datetime),
		})
	}
	return headlines, nil
}

// Profile fetches the company profile. The engine uses the sector for
// concentration caps.
func (c *Client) Profile(ctx context.Context, symbol string) (*CompanyProfile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp CompanyProfile
	if err := c.get(ctx, "/profile", params, &resp); err != nil {
		return nil, errors.NewDataError("profile", symbol, "fetch failed", err)
	}
	if resp.Status == "error" {
		return nil, errors.NewDataError("profile", symbol, resp.Message, nil)
	}
	return &resp, nil
}

// Sector returns the symbol's sector in the shape the risk controller
// expects for its lookup hook.
func (c *Client) Sector(ctx context.Context, symbol string) (string, error) {
	profile, err := c.Profile(ctx, symbol)
	if err != nil {
		return "", err
	}
	return profile.Sector, nil
}

// get fetches one endpoint with a short in-call retry on transient
// faults. Each attempt takes its own limiter token so retries still
// respect the credit budget.
func (c *Client) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	return utils.Retry(ctx, utils.DefaultRetryConfig(), func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "BISTSentinel/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport errors embed the request URL, API key included.
			return security.RedactError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return errors.ErrRateLimited
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("invalid response body: %w", err)
		}
		return nil
	})
}

func (v barValue) toPriceBar() (models.PriceBar, error) {
	date, err := time.Parse("2006-01-02", v.Datetime)
	if err != nil {
		date, err = time.Parse("2006-01-02 15:04:05", v.Datetime)
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("bad datetime %q", v.Datetime)
		}
	}

	open, err := parsePrice("open", v.Open)
	if err != nil {
		return models.PriceBar{}, err
	}
	high, err := parsePrice("high", v.High)
	if err != nil {
		return models.PriceBar{}, err
	}
	low, err := parsePrice("low", v.Low)
	if err != nil {
		return models.PriceBar{}, err
	}
	closePrice, err := parsePrice("close", v.Close)
	if err != nil {
		return models.PriceBar{}, err
	}

	// Index series come without volume.
	var volume int64
	if v.Volume != "" {
		volume, err = strconv.ParseInt(v.Volume, 10, 64)
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("bad volume %q", v.Volume)
		}
	}

	return models.PriceBar{
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

func parsePrice(name, s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", name, s)
	}
	return f, nil
}

func parseNewsTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
