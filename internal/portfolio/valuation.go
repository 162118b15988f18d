package portfolio

import (
	"context"
	"log"
	"sort"
	"time"

	"momentum-systemv1/internal/marketdata"
	"momentum-systemv1/internal/model"
)

// RateSource supplies the USD to JPY rate. *fx.Converter satisfies it.
type RateSource interface {
	USDJPY(ctx context.Context) (float64, error)
}

// HoldingSource is the slice of the holdings store the valuer reads.
type HoldingSource interface {
	List(ctx context.Context) ([]model.Holding, error)
}

// Position is one valued holding. JPY fields are zero when the fx rate was
// unavailable; Stale marks rows whose quote could not be fetched, which are
// excluded from the totals and carry no weight.
type Position struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Shares    int64     `json:"shares"`
	PriceUSD  float64   `json:"price_usd"`
	ValueUSD  float64   `json:"value_usd"`
	PriceJPY  float64   `json:"price_jpy,omitempty"`
	ValueJPY  float64   `json:"value_jpy,omitempty"`
	Weight    float64   `json:"weight"`
	PriceDate time.Time `json:"price_date"`
	Stale     bool      `json:"stale,omitempty"`
}

// Valuation is the whole portfolio marked to the latest closes.
type Valuation struct {
	Positions   []Position `json:"positions"`
	TotalUSD    float64    `json:"total_usd"`
	TotalJPY    float64    `json:"total_jpy,omitempty"`
	USDJPY      float64    `json:"usdjpy,omitempty"`
	FXAvailable bool       `json:"fx_available"`
	AsOf        time.Time  `json:"as_of"`
}

// Valuer marks holdings to market.
type Valuer struct {
	store  HoldingSource
	prices marketdata.Provider
	rates  RateSource
}

func NewValuer(store HoldingSource, prices marketdata.Provider, rates RateSource) *Valuer {
	return &Valuer{store: store, prices: prices, rates: rates}
}

// Value prices every holding and computes totals and weights. Only reading
// the holdings can fail; quote and fx failures degrade the result instead
// (stale rows, USD-only output).
func (v *Valuer) Value(ctx context.Context) (*Valuation, error) {
	holdings, err := v.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })

	val := &Valuation{Positions: make([]Position, 0, len(holdings)), AsOf: time.Now().UTC()}

	rate, err := v.rates.USDJPY(ctx)
	if err != nil {
		log.Printf("[portfolio] usdjpy unavailable, valuing in USD only: %v", err)
	} else {
		val.USDJPY = rate
		val.FXAvailable = true
	}

	for _, h := range holdings {
		pos := Position{ID: h.ID, Ticker: h.Ticker, Shares: h.Shares}

		bars, err := v.prices.DailyBars(ctx, h.Ticker, marketdata.DefaultRange)
		if err != nil || len(bars) == 0 {
			log.Printf("[portfolio] %s: quote unavailable: %v", h.Ticker, err)
			pos.Stale = true
			val.Positions = append(val.Positions, pos)
			continue
		}

		last := bars[len(bars)-1]
		pos.PriceUSD = last.Close
		pos.PriceDate = last.Date
		pos.ValueUSD = last.Close * float64(h.Shares)
		if val.FXAvailable {
			pos.PriceJPY = pos.PriceUSD * rate
			pos.ValueJPY = pos.ValueUSD * rate
		}
		val.TotalUSD += pos.ValueUSD
		val.Positions = append(val.Positions, pos)
	}

	if val.FXAvailable {
		val.TotalJPY = val.TotalUSD * rate
	}
	if val.TotalUSD > 0 {
		for i := range val.Positions {
			val.Positions[i].Weight = val.Positions[i].ValueUSD / val.TotalUSD
		}
	}
	return val, nil
}
