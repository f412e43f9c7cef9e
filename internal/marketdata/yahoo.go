package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"market-terminal/internal/model"
)

// DefaultYahooURL is the chart API base URL.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// Window is the bar interval and lookback requested for one timeframe.
type Window struct {
	Interval string `yaml:"interval"`
	Range    string `yaml:"range"`
}

// YahooConfig configures the chart API client.
type YahooConfig struct {
	BaseURL   string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
	Timeout   time.Duration `yaml:"timeout" default:"8s"`
	UserAgent string        `yaml:"user_agent" default:"Mozilla/5.0 (market-terminal)"`
	MinPoints int           `yaml:"min_points" default:"20" validate:"min=1"`
	Intraday  Window        `yaml:"intraday"`
	Daily     Window        `yaml:"daily"`
}

// DefaultYahooConfig requests 5 days of hourly bars and 6 months of daily bars.
func DefaultYahooConfig() YahooConfig {
	return YahooConfig{
		BaseURL:   DefaultYahooURL,
		Timeout:   8 * time.Second,
		UserAgent: "Mozilla/5.0 (market-terminal)",
		MinPoints: 20,
		Intraday:  Window{Interval: "1h", Range: "5d"},
		Daily:     Window{Interval: "1d", Range: "6mo"},
	}
}

// YahooClient fetches series from the Yahoo Finance chart API.
type YahooClient struct {
	cfg    YahooConfig
	client *http.Client
	log    zerolog.Logger
}

// NewYahooClient creates a chart API client.
func NewYahooClient(cfg YahooConfig, log zerolog.Logger) *YahooClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultYahooURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &YahooClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooClient) window(tf model.Timeframe) Window {
	if tf == model.Daily {
		return y.cfg.Daily
	}
	return y.cfg.Intraday
}

// Fetch requests one symbol. Feed-side "no data" answers map to
// ErrDataUnavailable; transport and status errors are returned as-is so a
// circuit breaker can count them.
func (y *YahooClient) Fetch(ctx context.Context, symbol string, tf model.Timeframe) (model.PriceSeries, error) {
	w := y.window(tf)
	q := url.Values{}
	q.Set("interval", w.Interval)
	q.Set("range", w.Range)
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.cfg.BaseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo: create request: %w", err)
	}
	req.Header.Set("User-Agent", y.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := y.client.Do(req)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo: %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo: %s: read body: %w", symbol, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return model.PriceSeries{}, fmt.Errorf("%w: %s not found", ErrDataUnavailable, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return model.PriceSeries{}, fmt.Errorf("yahoo: %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo: %s: decode: %w", symbol, err)
	}
	if cr.Chart.Error != nil {
		return model.PriceSeries{}, fmt.Errorf("%w: %s: %s", ErrDataUnavailable, symbol, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return model.PriceSeries{}, fmt.Errorf("%w: %s: empty result", ErrDataUnavailable, symbol)
	}

	res := cr.Chart.Result[0]
	closes := res.Indicators.Quote[0].Close
	n := len(res.Timestamp)
	if len(closes) < n {
		n = len(closes)
	}
	raw := make([]RawPoint, n)
	for i := 0; i < n; i++ {
		raw[i] = RawPoint{Time: time.Unix(res.Timestamp[i], 0).UTC(), Price: closes[i]}
	}

	series, err := Clean(symbol, raw, y.cfg.MinPoints)
	y.log.Debug().
		Str("symbol", symbol).
		Str("timeframe", string(tf)).
		Int("points", series.Len()).
		Dur("latency", time.Since(start)).
		Msg("fetched")
	return series, err
}
