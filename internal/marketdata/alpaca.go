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

// AlpacaClient fetches daily bars from the Alpaca Market Data API. It is the
// primary provider and only participates when API credentials are configured.
type AlpacaClient struct {
	baseURL string
	keyID   string
	secret  string
	feed    string
	client  *http.Client
}

// NewAlpacaClient creates an Alpaca data client.
// baseURL defaults to the hosted data API, feed to the free IEX feed.
func NewAlpacaClient(baseURL, keyID, secret, feed string) *AlpacaClient {
	if baseURL == "" {
		baseURL = "https://data.alpaca.markets"
	}
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaClient{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		feed:    feed,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (a *AlpacaClient) Name() string { return "alpaca" }

// Enabled reports whether credentials are configured.
func (a *AlpacaClient) Enabled() bool { return a.keyID != "" && a.secret != "" }

type alpacaBar struct {
	T time.Time `json:"t"`
	O float64   `json:"o"`
	H float64   `json:"h"`
	L float64   `json:"l"`
	C float64   `json:"c"`
	V float64   `json:"v"`
}

type alpacaBarsResponse struct {
	Bars          []alpacaBar `json:"bars"`
	NextPageToken string      `json:"next_page_token"`
}

// DailyBars fetches split-adjusted daily bars, following pagination until
// the requested lookback is covered.
func (a *AlpacaClient) DailyBars(ctx context.Context, ticker string, rng Range) ([]model.Bar, error) {
	if !a.Enabled() {
		return nil, fmt.Errorf("alpaca: credentials not configured")
	}

	start := time.Now().UTC().AddDate(0, 0, -rng.Days())
	var bars []model.Bar
	pageToken := ""

	for {
		u, err := url.Parse(a.baseURL + "/v2/stocks/" + url.PathEscape(ticker) + "/bars")
		if err != nil {
			return nil, fmt.Errorf("alpaca: build url: %w", err)
		}
		q := u.Query()
		q.Set("timeframe", "1Day")
		q.Set("limit", "1000")
		q.Set("feed", a.feed)
		q.Set("adjustment", "split")
		q.Set("start", start.Format("2006-01-02"))
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("alpaca: create request: %w", err)
		}
		req.Header.Set("APCA-API-KEY-ID", a.keyID)
		req.Header.Set("APCA-API-SECRET-KEY", a.secret)
		req.Header.Set("Accept", "application/json")

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("alpaca: execute request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("alpaca: read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("alpaca: status=%d body=%s", resp.StatusCode, snippet(body))
		}

		var parsed alpacaBarsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("alpaca: unmarshal response: %w", err)
		}

		for _, b := range parsed.Bars {
			bars = append(bars, model.Bar{Date: dateOf(b.T), Close: b.C})
		}
		if parsed.NextPageToken == "" {
			break
		}
		pageToken = parsed.NextPageToken
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// dateOf normalizes a bar timestamp to its UTC calendar date. Daily bars are
// stamped at the start of the session day, so the UTC date is the trading date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// snippet caps an error body for log-friendly messages.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
