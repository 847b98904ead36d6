package gateway

// TFInfo is the REST response type for /api/tfs.
type TFInfo struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// BarOut is the REST response type for /api/bars.
type BarOut struct {
	TS     string  `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Symbol string  `json:"symbol"`
	TF     int     `json:"tf"`
}

// KindInfo is the REST response type for /api/kinds.
type KindInfo struct {
	Name  string   `json:"name"`
	Lines []string `json:"lines,omitempty"`
}
