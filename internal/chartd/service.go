// Package chartd is the top-level orchestrator for the chart engine: it
// consumes bars from Redis Streams, maintains in-memory bar series,
// resamples derived timeframes, computes indicator batches, and serves
// them over REST and WebSocket.
package chartd

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"marketviz/config"
	"marketviz/internal/gateway"
	"marketviz/internal/indicator"
	"marketviz/internal/marketdata/bus"
	"marketviz/internal/marketdata/resample"
	"marketviz/internal/metrics"
	"marketviz/internal/model"
	"marketviz/internal/ringbuf"
	"marketviz/internal/series"
	redisstore "marketviz/internal/store/redis"
	sqlitestore "marketviz/internal/store/sqlite"
)

// Service wires all subsystems, manages lifecycle, and coordinates
// goroutines.
type Service struct {
	cfg *config.Config

	store *series.Store
	cache *indicator.Cache
	hub   *gateway.Hub
	rs    *resample.Resampler

	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	prom   *metrics.Metrics
	health *metrics.HealthStatus

	kinds   []indicator.Kind
	baseTF  int
	symbols []string
	streams []string

	tfMu sync.RWMutex
	tfs  []int // enabled TFs, mutable via the tf:enabled registry

	ring      *ringbuf.Ring
	bus       *bus.FanOut
	barCh     chan model.StreamBar // raw ingest from Redis
	busIn     chan model.StreamBar // base + derived bars into the fan-out
	tfUpdate  chan []int           // registry changes bound for the drain goroutine
	bufWriter *redisstore.BufferedWriter
}

// New creates a Service from the given Config. It connects to Redis and
// SQLite and builds the in-memory pipeline.
func New(cfg *config.Config) (*Service, error) {
	params := indicator.DefaultParams()
	if win := cfg.ParseMAWindows(); win != nil {
		params.MAWindows = win
		params.EXPMAWindows = win
	}

	svc := &Service{
		cfg:      cfg,
		store:    series.NewStore(cfg.MaxBars),
		cache:    indicator.NewCache(params),
		prom:     metrics.NewMetrics(),
		health:   metrics.NewHealthStatus(),
		kinds:    indicator.ParseKinds(cfg.Indicators),
		tfs:      cfg.ParseTFs(),
		symbols:  cfg.ParseSymbols(),
		ring:     ringbuf.New(8192),
		bus:      bus.New(4096),
		barCh:    make(chan model.StreamBar, 5000),
		busIn:    make(chan model.StreamBar, 5000),
		tfUpdate: make(chan []int, 1),
	}

	if len(svc.tfs) == 0 {
		svc.tfs = []int{60}
	}
	svc.baseTF = svc.tfs[0]
	for _, tf := range svc.tfs[1:] {
		if tf < svc.baseTF {
			svc.baseTF = tf
		}
	}
	svc.health.SetEnabledTFs(svc.tfs)

	// Derived TFs only; the base TF arrives pre-built on the stream.
	var derived []int
	for _, tf := range svc.tfs {
		if tf != svc.baseTF {
			derived = append(derived, tf)
		}
	}
	svc.rs = resample.New(derived)

	svc.hub = gateway.NewHub(svc.store, svc.cache)
	svc.hub.Broadcaster.OnBroadcast = func() {
		svc.prom.WSBroadcasts.Inc()
	}
	svc.hub.OnSnapshot = func(d time.Duration) {
		svc.prom.WSSnapshotDur.Observe(d.Seconds())
	}

	// Version bumps key the cache; Invalidate just frees stale entries.
	svc.store.OnChange(func(key string) {
		svc.cache.Invalidate(key)
	})

	svc.bus.OnDrop = func(idx int) {
		svc.prom.FanoutDropsTotal.WithLabelValues(subscriberName(idx)).Inc()
	}

	// ---- Connect to Redis ----
	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		DB:            cfg.RedisDB,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}

	cb := svc.redisWriter.Breaker()
	prevState := cb.OnStateChange
	cb.OnStateChange = func(from, to redisstore.BreakerState) {
		if prevState != nil {
			prevState(from, to)
		}
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.BreakerOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
	}

	svc.rs.OnStaleBar = func() {
		svc.prom.StaleBars.Inc()
	}

	// ---- Open SQLite ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[chartd] WARNING: sqlite writer init failed: %v", err)
	} else {
		svc.sqlWriter.OnCommit = func(n int, d time.Duration) {
			svc.prom.SQLiteDur.Observe(d.Seconds())
		}
	}
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[chartd] WARNING: sqlite reader init failed: %v (continuing without backfill)", err)
	}

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	log.Println("[chartd] starting chart engine...")

	// ---- Start the in-memory pipeline first so backfill flows through it ----
	go svc.bus.Run(ctx, svc.busIn)
	go svc.drainLoop(ctx)
	svc.startProcessors(ctx)

	// ---- Seed series from SQLite ----
	svc.seedFromSQLite()

	// ---- Build stream list ----
	svc.streams = svc.buildStreams(ctx)
	log.Printf("[chartd] consuming from %d streams: %v", len(svc.streams), svc.streams)

	// ---- Replay bars published since the SQLite high-water mark ----
	svc.replayFromRedis(ctx)

	// ---- Consumer groups + pending recovery ----
	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			log.Printf("[chartd] WARNING: consumer group setup: %v", err)
		}
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
			log.Printf("[chartd] pending recovery error: %v", err)
		}
	}

	// ---- Live consumption ----
	svc.startConsumer(ctx)
	svc.startFormingSubscriber(ctx)
	svc.startPELReclaimer(ctx)

	// ---- Serving ----
	svc.startHTTP(ctx)
	metrics.NewServer(svc.cfg.MetricsAddr, svc.health).Start()
	svc.health.StartLivenessChecker(ctx, svc.redisWriter.Client(), svc.sqlDB(), 10*time.Second)
	go svc.hub.StartStatsBroadcast(ctx, time.Now())
	go svc.gaugeLoop(ctx)
	go svc.watchTFRegistry(ctx)

	log.Printf("[chartd] serving on %s (metrics on %s), TFs=%v, kinds=%v",
		svc.cfg.HTTPAddr, svc.cfg.MetricsAddr, svc.enabledTFs(), svc.kinds)
	log.Println("[chartd] all systems running. Press Ctrl+C to stop.")

	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown closes connections.
func (svc *Service) shutdown() {
	log.Println("[chartd] shutdown signal received...")

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	log.Println("[chartd] shutdown complete.")
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

// seedFromSQLite loads stored bars into the in-memory series store.
func (svc *Service) seedFromSQLite() {
	if svc.sqlReader == nil {
		return
	}
	refs, err := svc.sqlReader.Symbols()
	if err != nil {
		log.Printf("[chartd] sqlite symbol scan error: %v", err)
		return
	}
	seeded := 0
	for _, ref := range refs {
		sbars, err := svc.sqlReader.ReadBars(ref.Symbol, ref.TF, 0)
		if err != nil {
			log.Printf("[chartd] sqlite read error for %s@%d: %v", ref.Symbol, ref.TF, err)
			continue
		}
		if len(sbars) == 0 {
			continue
		}
		bars := make([]model.Bar, len(sbars))
		for i := range sbars {
			bars[i] = sbars[i].Bar()
		}
		key := sbars[0].Key()
		svc.store.Seed(key, bars)
		seeded += len(bars)
	}
	if seeded > 0 {
		log.Printf("[chartd] seeded %d bars across %d series from SQLite", seeded, len(refs))
	}
}

// buildStreams constructs the base-TF Redis stream names to consume,
// falling back to discovery when no symbols are configured.
func (svc *Service) buildStreams(ctx context.Context) []string {
	if len(svc.symbols) == 0 {
		return svc.redisReader.DiscoverBarStreams(ctx, []int{svc.baseTF}, nil)
	}
	streams := make([]string, 0, len(svc.symbols))
	for _, sym := range svc.symbols {
		b := model.StreamBar{Symbol: sym, TF: svc.baseTF}
		streams = append(streams, b.StreamKey())
	}
	return streams
}

// replayFromRedis replays bars published since the last SQLite commit
// through the normal pipeline.
func (svc *Service) replayFromRedis(ctx context.Context) {
	replayCh := make(chan model.StreamBar, 5000)
	go func() {
		for i, stream := range svc.streams {
			startID := "0"
			if svc.sqlWriter != nil && i < len(svc.symbols) {
				if lastTS, err := svc.sqlWriter.GetLastTimestamp(svc.symbols[i], svc.baseTF); err == nil && lastTS > 0 {
					startID = strconv.FormatInt(lastTS*1000, 10) + "-0"
				}
			}
			if _, err := svc.redisReader.ReplayFrom(ctx, stream, startID, replayCh); err != nil {
				log.Printf("[chartd] replay error on %s: %v", stream, err)
			}
		}
		close(replayCh)
	}()

	replayed := 0
	for bar := range replayCh {
		if bar.Forming {
			continue
		}
		svc.ingest(bar)
		replayed++
	}
	if replayed > 0 {
		log.Printf("[chartd] replayed %d bars from Redis streams", replayed)
	}
}

// enabledTFs returns a snapshot of the currently enabled timeframes.
func (svc *Service) enabledTFs() []int {
	svc.tfMu.RLock()
	defer svc.tfMu.RUnlock()
	out := make([]int, len(svc.tfs))
	copy(out, svc.tfs)
	return out
}

// watchTFRegistry polls the tf:enabled registry and queues timeframe
// changes for the drain goroutine, which owns the resampler. An unset
// registry leaves the configured timeframes in place.
func (svc *Service) watchTFRegistry(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tfs, err := svc.redisWriter.LoadTFRegistry(ctx)
			if err != nil {
				log.Printf("[chartd] tf registry read error: %v", err)
				continue
			}
			if len(tfs) == 0 {
				continue
			}
			select {
			case svc.tfUpdate <- tfs:
			default:
			}
		}
	}
}

// applyTFs hot-swaps the resampler's derived timeframes. Must run on
// the drain goroutine: UpdateTFs finalizes forming bars for removed TFs
// straight into the bus.
func (svc *Service) applyTFs(tfs []int) {
	derived := make([]int, 0, len(tfs))
	for _, tf := range tfs {
		if tf > 0 && tf != svc.baseTF {
			derived = append(derived, tf)
		}
	}
	sort.Ints(derived)
	if equalTFs(derived, svc.rs.TFs()) {
		return
	}

	log.Printf("[chartd] tf registry change: derived %v -> %v", svc.rs.TFs(), derived)
	svc.rs.UpdateTFs(derived, svc.busIn)

	svc.tfMu.Lock()
	svc.tfs = append([]int{svc.baseTF}, derived...)
	svc.tfMu.Unlock()
	svc.health.SetEnabledTFs(svc.enabledTFs())
}

func equalTFs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func subscriberName(idx int) string {
	switch idx {
	case 0:
		return "process"
	case 1:
		return "sqlite"
	case 2:
		return "redis"
	}
	return "other"
}

// gaugeLoop samples gauges and cumulative counters that have no direct
// event hook.
func (svc *Service) gaugeLoop(ctx context.Context) {
	var lastHits, lastMisses, lastOverflow, lastRejected uint64
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.prom.SeriesTracked.Set(float64(len(svc.store.Keys())))
			svc.prom.WSClients.Set(float64(svc.hub.ClientCount()))

			hits, misses := svc.cache.Stats()
			svc.prom.CacheHits.Add(float64(hits - lastHits))
			svc.prom.CacheMisses.Add(float64(misses - lastMisses))
			lastHits, lastMisses = hits, misses

			over := svc.ring.Overflow()
			svc.prom.RingBufOverflow.Add(float64(over - lastOverflow))
			lastOverflow = over

			rejected := svc.redisWriter.Breaker().Rejected()
			svc.prom.RedisWritesRejected.Add(float64(rejected - lastRejected))
			lastRejected = rejected

			if svc.bufWriter != nil {
				svc.prom.RedisBufferedBars.Set(float64(svc.bufWriter.PendingCount()))
			}
		}
	}
}
