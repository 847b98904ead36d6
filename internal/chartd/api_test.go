package chartd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketviz/internal/gateway"
	"marketviz/internal/indicator"
	"marketviz/internal/logger"
	"marketviz/internal/model"
	"marketviz/internal/series"
)

// testService builds a Service with just the in-memory pieces wired,
// enough for the REST handlers.
func testService() *Service {
	store := series.NewStore(0)
	cache := indicator.NewCache(indicator.DefaultParams())
	return &Service{
		store: store,
		cache: cache,
		hub:   gateway.NewHub(store, cache),
		kinds: []indicator.Kind{indicator.KindMA, indicator.KindRSI},
		tfs:   []int{60, 300},
	}
}

func seedSeries(svc *Service, symbol string, tf, n int) string {
	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{
			TS:   base.Add(time.Duration(i*tf) * time.Second),
			Open: c - 0.5, High: c + 1, Low: c - 1, Close: c, Volume: 1000,
		}
	}
	key := symbol + "@" + model.Itoa(tf)
	svc.store.Seed(key, bars)
	return key
}

func TestHandleBars(t *testing.T) {
	svc := testService()
	seedSeries(svc, "NSE:RELIANCE", 60, 30)

	req := httptest.NewRequest("GET", "/api/bars?symbol=NSE:RELIANCE&tf=60&limit=10", nil)
	w := httptest.NewRecorder()
	svc.handleBars(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out []gateway.BarOut
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 10 {
		t.Fatalf("expected 10 bars, got %d", len(out))
	}
	// Limit cuts from the front: last bar is close 129
	if out[9].Close != 129 {
		t.Errorf("last close = %v, want 129", out[9].Close)
	}
	if out[0].Symbol != "NSE:RELIANCE" || out[0].TF != 60 {
		t.Errorf("routing fields wrong: %+v", out[0])
	}
}

func TestHandleBars_BadRequest(t *testing.T) {
	svc := testService()
	req := httptest.NewRequest("GET", "/api/bars?symbol=&tf=abc", nil)
	w := httptest.NewRecorder()
	svc.handleBars(w, req)
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleIndicators(t *testing.T) {
	svc := testService()
	seedSeries(svc, "NSE:SBIN", 60, 40)

	req := httptest.NewRequest("GET", "/api/indicators?symbol=NSE:SBIN&tf=60&names=rsi", nil)
	w := httptest.NewRecorder()
	svc.handleIndicators(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var out struct {
		Type       string            `json:"type"`
		Series     string            `json:"series"`
		Version    uint64            `json:"version"`
		Indicators []json.RawMessage `json:"indicators"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Series != "NSE:SBIN@60" || out.Type != "indicators" {
		t.Errorf("envelope wrong: %+v", out)
	}
	if len(out.Indicators) != 1 {
		t.Fatalf("expected 1 indicator, got %d", len(out.Indicators))
	}
	var ind struct {
		Kind  string `json:"kind"`
		Lines []struct {
			Name   string     `json:"name"`
			Values []*float64 `json:"values"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(out.Indicators[0], &ind); err != nil {
		t.Fatalf("indicator unmarshal: %v", err)
	}
	if ind.Kind != "RSI" {
		t.Errorf("kind = %q, want RSI", ind.Kind)
	}
	if len(ind.Lines) == 0 || len(ind.Lines[0].Values) != 40 {
		t.Errorf("RSI line not aligned to 40 bars: %+v", ind.Lines)
	}
}

func TestHandleIndicators_UnknownSeries(t *testing.T) {
	svc := testService()
	req := httptest.NewRequest("GET", "/api/indicators?symbol=NSE:TCS&tf=60", nil)
	w := httptest.NewRecorder()
	svc.handleIndicators(w, req)
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHandleKinds(t *testing.T) {
	svc := testService()
	req := httptest.NewRequest("GET", "/api/kinds", nil)
	w := httptest.NewRecorder()
	svc.handleKinds(w, req)

	var out []gateway.KindInfo
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != len(indicator.AllKinds()) {
		t.Fatalf("expected %d kinds, got %d", len(indicator.AllKinds()), len(out))
	}
	byName := make(map[string][]string)
	for _, k := range out {
		byName[k.Name] = k.Lines
	}
	if lines := byName["MA"]; len(lines) != 5 || lines[0] != "MA5" {
		t.Errorf("MA lines = %v", lines)
	}
	if lines := byName["MACD"]; len(lines) != 3 {
		t.Errorf("MACD lines = %v", lines)
	}
}

func TestHandleTFs(t *testing.T) {
	svc := testService()
	req := httptest.NewRequest("GET", "/api/tfs", nil)
	w := httptest.NewRecorder()
	svc.handleTFs(w, req)

	var out []gateway.TFInfo
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 || out[0].Seconds != 60 || out[0].Label != "1m" {
		t.Errorf("tfs = %+v", out)
	}
}

func TestBuildStreams(t *testing.T) {
	svc := testService()
	svc.symbols = []string{"NSE:RELIANCE", "NSE:SBIN"}
	svc.baseTF = 60
	streams := svc.buildStreams(nil)
	want := []string{"bars:60s:NSE:RELIANCE", "bars:60s:NSE:SBIN"}
	if len(streams) != 2 || streams[0] != want[0] || streams[1] != want[1] {
		t.Errorf("streams = %v, want %v", streams, want)
	}
}

func TestHandleLatest(t *testing.T) {
	svc := testService()
	payload := []byte(`{"symbol":"NSE:SBIN","tf":60,"close":101.5}`)
	svc.hub.BroadcastBar("bars:60s:NSE:SBIN", payload)

	req := httptest.NewRequest("GET", "/api/latest", nil)
	w := httptest.NewRecorder()
	svc.handleLatest(w, req)

	var out map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := out["bars:60s:NSE:SBIN"]
	if !ok {
		t.Fatalf("channel missing from latest map: %v", out)
	}
	if string(got) != string(payload) {
		t.Errorf("latest payload = %s, want %s", got, payload)
	}
}

func TestRequestTraceMiddleware(t *testing.T) {
	var traced string
	h := withRequestTrace(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traced = logger.TraceID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/bars?symbol=NSE:SBIN&tf=60", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if traced == "" {
		t.Fatal("handler context should carry a trace id")
	}
	if !strings.HasPrefix(traced, "/api/bars-") {
		t.Errorf("trace id = %q, want /api/bars- prefix", traced)
	}
}
