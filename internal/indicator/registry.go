package indicator

import (
	"sort"
	"time"

	"momentum-systemv1/internal/model"
)

// Reading is the registry's latest view for one ticker.
type Reading struct {
	Ticker string
	Value  model.RSIValue
	Date   time.Time // bar date that produced the value
}

// tickerState holds the live RSI instance plus the newest bar date consumed,
// so refreshes can feed only bars the stream has not seen yet.
type tickerState struct {
	rsi      *RSI
	lastDate time.Time
}

// Registry tracks one streaming RSI per ticker.
// Not safe for concurrent use; the engine guards it with its own mutex.
type Registry struct {
	period int
	state  map[string]*tickerState
}

// NewRegistry creates a registry computing RSIs of the given period.
func NewRegistry(period int) *Registry {
	return &Registry{
		period: period,
		state:  make(map[string]*tickerState, 16),
	}
}

// Period returns the window length every tracked RSI uses.
func (g *Registry) Period() int { return g.period }

// Update feeds a ticker's bars in ascending date order, skipping any bar at
// or before the newest date already consumed, and returns the resulting
// reading. Unknown tickers are created on first use.
func (g *Registry) Update(ticker string, bars []model.Bar) Reading {
	st, ok := g.state[ticker]
	if !ok {
		st = &tickerState{rsi: NewRSI(g.period)}
		g.state[ticker] = st
	}

	for _, b := range bars {
		if !b.Date.After(st.lastDate) {
			continue
		}
		st.rsi.Update(b.Close)
		st.lastDate = b.Date
	}

	return g.reading(ticker, st)
}

// Latest returns the current reading for a ticker without feeding new bars.
func (g *Registry) Latest(ticker string) (Reading, bool) {
	st, ok := g.state[ticker]
	if !ok {
		return Reading{}, false
	}
	return g.reading(ticker, st), true
}

// Tickers returns the tracked tickers sorted ascending.
func (g *Registry) Tickers() []string {
	out := make([]string, 0, len(g.state))
	for t := range g.state {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Drop forgets a ticker's state, e.g. after its rule was deleted.
func (g *Registry) Drop(ticker string) {
	delete(g.state, ticker)
}

func (g *Registry) reading(ticker string, st *tickerState) Reading {
	r := Reading{Ticker: ticker, Date: st.lastDate}
	if st.rsi.Ready() {
		r.Value = model.DefinedRSI(st.rsi.Value())
	}
	return r
}
