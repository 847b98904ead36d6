package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the chart engine.
type Metrics struct {
	BarsTotal   prometheus.Counter
	FormingBars prometheus.Counter
	DroppedBars prometheus.Counter
	StaleBars   prometheus.Counter
	RedisPubDur prometheus.Histogram
	SQLiteDur   prometheus.Histogram
	BarLag      prometheus.Gauge

	// Resampler metrics
	TFBarsTotal *prometheus.CounterVec
	TFBuildDur  prometheus.Histogram

	// Indicator metrics
	ComputeDur     prometheus.Histogram
	ComputeTotal   *prometheus.CounterVec // labels: kind
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	SeriesTracked  prometheus.Gauge
	PublishedTotal prometheus.Counter

	// Ring buffer overflow
	RingBufOverflow prometheus.Counter

	// Backpressure
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// Stream consumer
	PELMessagesReclaimed prometheus.Counter

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisWritesRejected      prometheus.Counter
	RedisBufferedBars        prometheus.Gauge

	// WebSocket gateway
	WSClients     prometheus.Gauge
	WSSnapshotDur prometheus.Histogram
	WSBroadcasts  prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_bars_total",
			Help: "Total closed bars consumed",
		}),
		FormingBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_forming_bars_total",
			Help: "Total forming bar updates received",
		}),
		DroppedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_dropped_bars_total",
			Help: "Bars dropped (out of order or channel full)",
		}),
		StaleBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_stale_bars_total",
			Help: "Bars rejected by resampler due to staleness",
		}),
		RedisPubDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_bar_lag_seconds",
			Help: "Lag between bar timestamp and ingest time",
		}),

		// Resampler
		TFBarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_tf_bars_total",
			Help: "Total resampled bars emitted (by timeframe)",
		}, []string{"tf"}),
		TFBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_tf_build_duration_seconds",
			Help:    "Resampler processing latency per bar",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		// Indicators
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_indicator_compute_duration_seconds",
			Help:    "Indicator compute latency per series refresh",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		ComputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_indicator_computes_total",
			Help: "Indicator computations by kind",
		}, []string{"kind"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_indicator_cache_hits_total",
			Help: "Indicator cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_indicator_cache_misses_total",
			Help: "Indicator cache misses",
		}),
		SeriesTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_series_tracked",
			Help: "Number of bar series currently held in memory",
		}),
		PublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_indicator_batches_published_total",
			Help: "Indicator batches published to Redis",
		}),

		// Ring buffer
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ringbuf_overflow_total",
			Help: "Ring buffer push overflows (dropped bars)",
		}),

		// Backpressure
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chartd_fanout_drops_total",
			Help: "Bars dropped by FanOut bus per subscriber",
		}, []string{"subscriber"}),

		// Stream consumer
		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_pel_messages_reclaimed_total",
			Help: "Messages reclaimed from dead consumers via XCLAIM",
		}),

		// Circuit breaker
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisWritesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_redis_writes_rejected_total",
			Help: "Writes fast-failed while the circuit breaker was open",
		}),
		RedisBufferedBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_redis_buffered_bars",
			Help: "Closed bars buffered locally awaiting circuit close",
		}),

		// WebSocket gateway
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chartd_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSSnapshotDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chartd_ws_snapshot_duration_seconds",
			Help:    "Snapshot build latency on subscribe",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		WSBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chartd_ws_broadcasts_total",
			Help: "Messages broadcast to WebSocket clients",
		}),
	}

	prometheus.MustRegister(
		m.BarsTotal,
		m.FormingBars,
		m.DroppedBars,
		m.StaleBars,
		m.RedisPubDur,
		m.SQLiteDur,
		m.BarLag,
		m.TFBarsTotal,
		m.TFBuildDur,
		m.ComputeDur,
		m.ComputeTotal,
		m.CacheHits,
		m.CacheMisses,
		m.SeriesTracked,
		m.PublishedTotal,
		m.RingBufOverflow,
		m.FanoutDropsTotal,
		m.PELMessagesReclaimed,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisWritesRejected,
		m.RedisBufferedBars,
		m.WSClients,
		m.WSSnapshotDur,
		m.WSBroadcasts,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	ConsumerOK     bool      `json:"consumer_ok"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetConsumerOK(v bool) {
	h.mu.Lock()
	h.ConsumerOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.SQLiteOK || !h.ConsumerOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		ConsumerOK      bool    `json:"consumer_ok"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		ConsumerOK:      h.ConsumerOK,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
