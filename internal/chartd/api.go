package chartd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"marketviz/internal/gateway"
	"marketviz/internal/indicator"
	"marketviz/internal/logger"
	"marketviz/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Charts are served cross-origin in dev
	CheckOrigin: func(r *http.Request) bool { return true },
}

// withRequestTrace tags each request context with a trace id and logs
// the request at debug level.
func withRequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithTraceID(r.Context(), logger.GenerateTraceID(r.URL.Path, time.Now()))
		args := []any{slog.String("method", r.Method), slog.String("path", r.URL.Path)}
		slog.Debug("api request", append(args, logger.LogWithTrace(ctx)...)...)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// startHTTP launches the REST + WebSocket server.
func (svc *Service) startHTTP(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", svc.handleWS)
	mux.HandleFunc("/api/bars", svc.handleBars)
	mux.HandleFunc("/api/indicators", svc.handleIndicators)
	mux.HandleFunc("/api/kinds", svc.handleKinds)
	mux.HandleFunc("/api/tfs", svc.handleTFs)
	mux.HandleFunc("/api/latest", svc.handleLatest)
	mux.HandleFunc("/api/missed", svc.handleMissed)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok")
	})

	go func() {
		log.Printf("[chartd] HTTP server on %s", svc.cfg.HTTPAddr)
		srv := &http.Server{Addr: svc.cfg.HTTPAddr, Handler: withRequestTrace(mux)}
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[chartd] HTTP server error: %v", err)
		}
	}()
}

// handleWS upgrades the connection and hands it to the hub.
func (svc *Service) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[chartd] ws upgrade error: %v", err)
		return
	}
	svc.hub.HandleWSRequest(conn, r.URL.Query().Get("last_ts"))
}

// handleBars serves stored bars for one series.
// GET /api/bars?symbol=NSE:RELIANCE&tf=60&limit=500
func (svc *Service) handleBars(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	tf, err := strconv.Atoi(r.URL.Query().Get("tf"))
	if symbol == "" || err != nil || tf <= 0 {
		http.Error(w, "symbol and tf required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	key := symbol + "@" + model.Itoa(tf)
	s, ok := svc.store.Get(key)
	if !ok {
		writeJSON(w, []gateway.BarOut{})
		return
	}

	start := 0
	if len(s.Bars) > limit {
		start = len(s.Bars) - limit
	}
	out := make([]gateway.BarOut, 0, len(s.Bars)-start)
	for _, b := range s.Bars[start:] {
		out = append(out, gateway.BarOut{
			TS:     b.TS.UTC().Format("2006-01-02T15:04:05Z"),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			Symbol: symbol,
			TF:     tf,
		})
	}
	writeJSON(w, out)
}

// handleIndicators computes (or serves cached) indicator batches.
// GET /api/indicators?symbol=NSE:RELIANCE&tf=60&names=ma,rsi,macd
func (svc *Service) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	tf, err := strconv.Atoi(r.URL.Query().Get("tf"))
	if symbol == "" || err != nil || tf <= 0 {
		http.Error(w, "symbol and tf required", http.StatusBadRequest)
		return
	}

	kinds := svc.kinds
	if names := r.URL.Query().Get("names"); names != "" {
		kinds = indicator.ParseKinds(names)
	}
	if len(kinds) == 0 {
		http.Error(w, "no valid indicator names", http.StatusBadRequest)
		return
	}

	key := symbol + "@" + model.Itoa(tf)
	s, ok := svc.store.Get(key)
	if !ok {
		http.Error(w, "unknown series: "+key, http.StatusNotFound)
		return
	}

	results := svc.cache.GetSet(kinds, s)
	batch := make([]*indicator.Series, 0, len(kinds))
	for _, k := range kinds {
		if out := results[k]; out != nil {
			batch = append(batch, out)
		}
	}
	writeJSON(w, indicatorBatch{
		Type:       "indicators",
		Series:     key,
		Version:    s.Version,
		Indicators: batch,
	})
}

// handleKinds lists the supported indicator families and their line
// names under the active parameters.
func (svc *Service) handleKinds(w http.ResponseWriter, r *http.Request) {
	params := svc.cache.Params()
	var out []gateway.KindInfo
	for _, k := range indicator.AllKinds() {
		s := indicator.Compute(k, nil, params)
		info := gateway.KindInfo{Name: k.String()}
		for _, line := range s.Lines {
			info.Lines = append(info.Lines, line.Name)
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

// handleTFs lists the enabled timeframes.
func (svc *Service) handleTFs(w http.ResponseWriter, r *http.Request) {
	tfs := svc.enabledTFs()
	out := make([]gateway.TFInfo, 0, len(tfs))
	for _, tf := range tfs {
		out = append(out, gateway.TFInfo{Seconds: tf, Label: gateway.TFLabel(tf)})
	}
	writeJSON(w, out)
}

// handleLatest serves the most recent payload of every broadcast
// channel, for clients that want current state without a subscription.
// GET /api/latest
func (svc *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, svc.hub.GetLatestAll())
}

// handleMissed serves buffered envelopes for client gap backfill.
// GET /api/missed?channel=bars:60s:NSE:RELIANCE&from=10&to=20
func (svc *Service) handleMissed(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	from, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if channel == "" || err1 != nil || err2 != nil || from > to {
		http.Error(w, "channel, from, to required", http.StatusBadRequest)
		return
	}

	entries := svc.hub.GetReplayRange(channel, from, to)
	msgs := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		msgs[i] = json.RawMessage(e)
	}
	writeJSON(w, map[string]interface{}{
		"channel":     channel,
		"current_seq": svc.hub.GetChannelSeq(channel),
		"messages":    msgs,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
