package gateway

import (
	"log"
	"strconv"
	"time"

	"encoding/json"

	"marketviz/internal/indicator"
)

// ── WS Protocol Message Types ──

// SubscribeMsg is the client → server SUBSCRIBE request.
type SubscribeMsg struct {
	Type       string         `json:"type"`       // "SUBSCRIBE"
	ReqID      string         `json:"reqId"`      // client-generated request ID
	Symbol     string         `json:"symbol"`     // e.g. "NSE:RELIANCE"
	TF         int            `json:"tf"`         // timeframe in seconds
	History    HistoryRequest `json:"history"`    // how many historical bars
	Indicators string         `json:"indicators"` // comma-separated kind names, e.g. "MA,MACD,RSI"
}

// HistoryRequest specifies how many historical bars to include.
type HistoryRequest struct {
	Bars int `json:"bars"`
}

// UnsubscribeMsg is the client → server UNSUBSCRIBE request.
type UnsubscribeMsg struct {
	Type   string `json:"type"` // "UNSUBSCRIBE"
	ReqID  string `json:"reqId"`
	Symbol string `json:"symbol"`
	TF     int    `json:"tf"`
}

// SnapshotResponse is the server → client SNAPSHOT with historical data.
// Indicator arrays are index-aligned with Bars: entry i of every line
// belongs to Bars[i].
type SnapshotResponse struct {
	Type       string              `json:"type"` // "SNAPSHOT"
	ReqID      string              `json:"reqId"`
	Symbol     string              `json:"symbol"`
	TF         int                 `json:"tf"`
	Version    uint64              `json:"version"`
	Bars       []SnapshotBar       `json:"bars"`
	Indicators []*indicator.Series `json:"indicators"`
}

// SnapshotBar is a single bar in the snapshot.
type SnapshotBar struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ErrorResponse is the server → client ERROR message.
type ErrorResponse struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// ── Subscription State ──

// ClientSubscription holds per-(symbol, tf) state for a client.
type ClientSubscription struct {
	Symbol string
	TF     int
	Kinds  []indicator.Kind
}

// SubKey returns the map key for this subscription.
func (s *ClientSubscription) SubKey() string {
	return s.Symbol + ":" + strconv.Itoa(s.TF)
}

// SeriesID returns the bar-series identity this subscription watches.
func (s *ClientSubscription) SeriesID() string {
	return s.Symbol + "@" + strconv.Itoa(s.TF)
}

// ── Snapshot Building ──

// BuildSnapshot assembles historical bars plus the requested indicator
// families from the in-process store and cache. The whole snapshot is
// computed against one series version, so bars and indicator arrays
// always align.
func BuildSnapshot(hub *Hub, sub *ClientSubscription, barLimit int) (*SnapshotResponse, error) {
	if barLimit <= 0 {
		barLimit = 500
	}
	if barLimit > 1000 {
		barLimit = 1000
	}

	snap := &SnapshotResponse{
		Type:   "SNAPSHOT",
		Symbol: sub.Symbol,
		TF:     sub.TF,
	}

	s, ok := hub.store.Get(sub.SeriesID())
	if !ok {
		// Unknown series: empty snapshot, live updates may still arrive.
		snap.Bars = []SnapshotBar{}
		snap.Indicators = []*indicator.Series{}
		return snap, nil
	}
	snap.Version = s.Version

	// Indicators compute over the FULL history (warm-up needs it), the
	// visible window is cut afterwards so values match a full-history chart.
	byKind := hub.cache.GetSet(sub.Kinds, s)

	start := 0
	if len(s.Bars) > barLimit {
		start = len(s.Bars) - barLimit
	}

	snap.Bars = make([]SnapshotBar, 0, len(s.Bars)-start)
	for _, b := range s.Bars[start:] {
		snap.Bars = append(snap.Bars, SnapshotBar{
			TS:     b.TS.Format(time.RFC3339),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	snap.Indicators = make([]*indicator.Series, 0, len(sub.Kinds))
	for _, k := range sub.Kinds {
		full, ok := byKind[k]
		if !ok {
			continue
		}
		snap.Indicators = append(snap.Indicators, windowSeries(full, start))
	}

	return snap, nil
}

// windowSeries cuts a computed series down to the visible bar window.
func windowSeries(s *indicator.Series, start int) *indicator.Series {
	if start == 0 {
		return s
	}
	out := &indicator.Series{Kind: s.Kind}
	out.Lines = make([]indicator.Line, len(s.Lines))
	for i, l := range s.Lines {
		out.Lines[i] = indicator.Line{Name: l.Name, Values: l.Values[start:]}
	}
	if s.Trend != nil {
		out.Trend = s.Trend[start:]
	}
	if s.Buy != nil {
		out.Buy = s.Buy[start:]
	}
	if s.Sell != nil {
		out.Sell = s.Sell[start:]
	}
	return out
}

// SendJSON marshals and sends a message to the client's send channel.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[subscribe] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Println("[subscribe] client send buffer full, dropping message")
	}
}

// SendError sends an error response to the client.
func SendError(c *Client, reqID, errMsg string) {
	SendJSON(c, ErrorResponse{
		Type:  "ERROR",
		ReqID: reqID,
		Error: errMsg,
	})
}
