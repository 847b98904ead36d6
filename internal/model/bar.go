package model

import (
	"encoding/json"
	"math"
	"time"
)

// Bar represents one period's OHLCV record for a single instrument.
// TS is an ordering key only; the indicator engine never interprets it.
type Bar struct {
	TS     time.Time `json:"ts"` // bucket start time (UTC, TF-aligned)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SafeFloat is the single numeric-coercion policy for bar fields:
// NaN and ±Inf collapse to 0 so downstream math never propagates them.
// Missing JSON fields already decode to 0.
func SafeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Sanitize returns a copy of the bar with every numeric field coerced
// through SafeFloat.
func (b Bar) Sanitize() Bar {
	return Bar{
		TS:     b.TS,
		Open:   SafeFloat(b.Open),
		High:   SafeFloat(b.High),
		Low:    SafeFloat(b.Low),
		Close:  SafeFloat(b.Close),
		Volume: SafeFloat(b.Volume),
	}
}

// BarSeries is an ordered, immutable bar sequence with a cache identity.
// ID names the instrument+timeframe; Version is bumped on every append so
// cached indicator results for stale data are never served.
// The caller is responsible for sort order and deduplication.
type BarSeries struct {
	ID      string `json:"id"` // "exchange:symbol@tf", e.g. "NSE:RELIANCE@60"
	Version uint64 `json:"version"`
	Bars    []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s *BarSeries) Len() int { return len(s.Bars) }

// StreamBar is the wire form of a bar arriving from the market-data
// pipeline: a Bar plus routing fields. Forming bars are live previews of
// the current open bucket and must never enter stored history.
type StreamBar struct {
	Symbol  string    `json:"symbol"` // "exchange:name", e.g. "NSE:RELIANCE"
	TF      int       `json:"tf"`     // timeframe in seconds
	TS      time.Time `json:"ts"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
	Forming bool      `json:"forming"`
}

// Key returns the series identity this bar belongs to: "symbol@tf".
func (b *StreamBar) Key() string {
	return b.Symbol + "@" + Itoa(b.TF)
}

// StreamKey returns the Redis stream the bar is published on.
func (b *StreamBar) StreamKey() string {
	return "bars:" + Itoa(b.TF) + "s:" + b.Symbol
}

// Bar converts the wire bar into a sanitized engine Bar.
func (b *StreamBar) Bar() Bar {
	return Bar{
		TS:     b.TS,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}.Sanitize()
}

// JSON returns the JSON-encoded stream bar (errors ignored on hot path).
func (b *StreamBar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}
