package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"momentum-systemv1/internal/model"
)

// YahooClient fetches daily bars from the Yahoo Finance chart endpoint.
// It needs no credentials, which makes it the fallback provider, and it
// also serves one-off quotes for FX symbols like "JPY=X".
type YahooClient struct {
	baseURL string
	client  *http.Client
}

// NewYahooClient creates a Yahoo chart client. baseURL defaults to the
// public query host; tests and the mock market server override it.
func NewYahooClient(baseURL string) *YahooClient {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (y *YahooClient) Name() string { return "yahoo" }

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
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

// DailyBars fetches the closing series for the lookback window. Rows with a
// null close (halts, partial sessions) are skipped.
func (y *YahooClient) DailyBars(ctx context.Context, ticker string, rng Range) ([]model.Bar, error) {
	now := time.Now().UTC()
	u, err := url.Parse(y.baseURL + "/v8/finance/chart/" + url.PathEscape(ticker))
	if err != nil {
		return nil, fmt.Errorf("yahoo: build url: %w", err)
	}
	q := u.Query()
	q.Set("period1", fmt.Sprintf("%d", now.AddDate(0, 0, -rng.Days()).Unix()))
	q.Set("period2", fmt.Sprintf("%d", now.Unix()))
	q.Set("interval", "1d")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("yahoo: create request: %w", err)
	}
	// Yahoo rejects the default Go user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo: execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status=%d body=%s", resp.StatusCode, snippet(body))
	}

	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("yahoo: unmarshal response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo: %s: %s", parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("yahoo: no chart data for %s", ticker)
	}

	res := parsed.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote series for %s", ticker)
	}
	closes := res.Indicators.Quote[0].Close

	bars := make([]model.Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		bars = append(bars, model.Bar{Date: dateOf(time.Unix(ts, 0)), Close: *closes[i]})
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// Quote returns the latest daily close for a symbol.
func (y *YahooClient) Quote(ctx context.Context, symbol string) (float64, error) {
	bars, err := y.DailyBars(ctx, symbol, Range1Mo)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("yahoo: no quote data for %s", symbol)
	}
	return bars[len(bars)-1].Close, nil
}
