package indicator

import (
	"encoding/json"
	"log"
	"time"
)

// RSISnapshot holds the serialized state of a single streaming RSI.
type RSISnapshot struct {
	Period    int       `json:"period"`
	Seen      int       `json:"seen"`
	PrevClose float64   `json:"prev_close"`
	Gains     []float64 `json:"gains,omitempty"`
	Losses    []float64 `json:"losses,omitempty"`
	Current   float64   `json:"current"`
}

// TickerSnapshot holds the snapshot for a single tracked ticker.
type TickerSnapshot struct {
	Ticker   string      `json:"ticker"`
	LastDate time.Time   `json:"last_date"`
	RSI      RSISnapshot `json:"rsi"`
}

// RegistrySnapshot holds the full state of a registry.
type RegistrySnapshot struct {
	Period  int              `json:"period"`
	Tickers []TickerSnapshot `json:"tickers"`
	TakenAt time.Time        `json:"taken_at"`
	Version int              `json:"version"` // schema version for forward compat
}

// Marshal serializes the snapshot to JSON.
func (rs *RegistrySnapshot) Marshal() ([]byte, error) {
	return json.Marshal(rs)
}

// UnmarshalRegistrySnapshot parses a JSON snapshot.
func UnmarshalRegistrySnapshot(data []byte) (*RegistrySnapshot, error) {
	var snap RegistrySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SnapshotRegistry captures the full state of a registry.
func SnapshotRegistry(g *Registry) *RegistrySnapshot {
	snap := &RegistrySnapshot{
		Period:  g.period,
		TakenAt: time.Now().UTC(),
		Version: 1,
	}
	for _, ticker := range g.Tickers() {
		st := g.state[ticker]
		snap.Tickers = append(snap.Tickers, TickerSnapshot{
			Ticker:   ticker,
			LastDate: st.lastDate,
			RSI:      st.rsi.Snapshot(),
		})
	}
	return snap
}

// RestoreRegistry rebuilds a registry from a snapshot. It is tolerant of
// config changes: when the configured period differs from the snapshot's,
// the snapshot is discarded and every ticker cold-starts (a rebuild from the
// bar cache fills them back in). Per-ticker snapshots with a mismatched
// period are skipped the same way.
func RestoreRegistry(period int, snap *RegistrySnapshot) *Registry {
	g := NewRegistry(period)
	if snap == nil {
		return g
	}
	if snap.Period != period {
		log.Printf("[indicator] snapshot period=%d differs from configured %d, cold starting", snap.Period, period)
		return g
	}

	restored, cold := 0, 0
	for _, ts := range snap.Tickers {
		if ts.RSI.Period != period {
			cold++
			continue
		}
		st := &tickerState{rsi: NewRSI(period), lastDate: ts.LastDate}
		st.rsi.RestoreFromSnapshot(ts.RSI)
		g.state[ts.Ticker] = st
		restored++
	}
	if cold > 0 {
		log.Printf("[indicator] restored %d tickers, cold-started %d", restored, cold)
	}
	return g
}
