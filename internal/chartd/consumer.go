package chartd

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"marketviz/internal/indicator"
	"marketviz/internal/model"
	redisstore "marketviz/internal/store/redis"
)

// ingest pushes one raw bar into the lock-free ring. The drain loop
// moves it onward; overflow drops the bar and bumps the counter.
func (svc *Service) ingest(b model.StreamBar) {
	if !svc.ring.Push(b) {
		svc.prom.DroppedBars.Inc()
	}
}

// startConsumer starts the Redis stream XREADGROUP consumer plus the
// pump that feeds raw bars into the ring.
func (svc *Service) startConsumer(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-svc.barCh:
				if !ok {
					return
				}
				svc.ingest(bar)
			}
		}
	}()

	if len(svc.streams) == 0 {
		return
	}
	go func() {
		svc.health.SetConsumerOK(true)
		if err := svc.redisReader.ConsumeBars(ctx, svc.streams, svc.barCh); err != nil {
			log.Printf("[chartd] consumer error: %v", err)
			svc.health.SetConsumerOK(false)
		}
	}()
}

// startFormingSubscriber feeds live forming-bar previews into the ring.
func (svc *Service) startFormingSubscriber(ctx context.Context) {
	go func() {
		if err := svc.redisReader.SubscribeFormingBars(ctx, svc.barCh); err != nil {
			log.Printf("[chartd] forming subscription error: %v", err)
		}
	}()
}

// startPELReclaimer periodically re-claims messages stuck in other
// consumers' pending lists.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.barCh); err != nil {
					log.Printf("[chartd] PEL reclaim error: %v", err)
					continue
				}
				svc.prom.PELMessagesReclaimed.Inc()
			}
		}
	}()
}

// drainLoop pops bars off the ring, runs base bars through the
// resampler, and fans everything out on the bus. It is the only
// goroutine that touches the resampler, so timeframe registry changes
// are applied here between bars.
func (svc *Service) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tfs := <-svc.tfUpdate:
			svc.applyTFs(tfs)
			continue
		default:
		}

		bar, ok := svc.ring.Pop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		select {
		case svc.busIn <- bar:
		default:
			svc.prom.DroppedBars.Inc()
		}

		// Base closed bars roll up into derived timeframes.
		if bar.TF == svc.baseTF && !bar.Forming {
			start := time.Now()
			svc.rs.Process1(bar, svc.busIn)
			svc.prom.TFBuildDur.Observe(time.Since(start).Seconds())
		}
	}
}

// startProcessors wires the fan-out bus subscribers: indicator
// processing, SQLite persistence, and write-back of derived bars to
// Redis. Subscription order fixes the drop-metric labels.
func (svc *Service) startProcessors(ctx context.Context) {
	procCh := svc.bus.Subscribe()
	persistCh := svc.bus.Subscribe()
	redisCh := svc.bus.Subscribe()

	go svc.processLoop(ctx, procCh)

	if svc.sqlWriter != nil {
		go svc.sqlWriter.RunBars(ctx, persistCh)
	} else {
		go drain(ctx, persistCh)
	}

	// Only locally derived bars go back out; base bars already live on
	// their stream.
	derivedCh := make(chan model.StreamBar, 4096)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-redisCh:
				if !ok {
					return
				}
				if bar.TF == svc.baseTF {
					continue
				}
				select {
				case derivedCh <- bar:
				default:
				}
			}
		}
	}()
	bw := redisstore.NewBufferedWriter(ctx, svc.redisWriter, 10000)
	bw.OnFlush = func(count int) {
		log.Printf("[chartd] recovered %d buffered derived bars", count)
	}
	svc.bufWriter = bw
	go bw.RunBars(ctx, derivedCh)
}

func drain(ctx context.Context, ch <-chan model.StreamBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
		}
	}
}

// processLoop applies closed bars to the series store and recomputes
// indicator batches; forming bars produce broadcast-only previews.
func (svc *Service) processLoop(ctx context.Context, in <-chan model.StreamBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-in:
			if !ok {
				return
			}
			if bar.Forming {
				svc.prom.FormingBars.Inc()
				svc.handleForming(ctx, bar)
				continue
			}

			svc.prom.BarsTotal.Inc()
			svc.prom.TFBarsTotal.WithLabelValues(model.Itoa(bar.TF)).Inc()
			svc.prom.BarLag.Set(time.Since(bar.TS).Seconds())
			svc.health.SetLastBarTime(time.Now())

			if !svc.store.Apply(bar) {
				svc.prom.DroppedBars.Inc()
				continue
			}
			svc.hub.BroadcastBar(bar.StreamKey(), bar.JSON())
			svc.refreshIndicators(ctx, bar.Key())
		}
	}
}

// refreshIndicators recomputes the enabled kinds for one series and
// publishes the batch to Redis and WebSocket clients.
func (svc *Service) refreshIndicators(ctx context.Context, key string) {
	s, ok := svc.store.Get(key)
	if !ok || len(svc.kinds) == 0 {
		return
	}

	start := time.Now()
	results := svc.cache.GetSet(svc.kinds, s)
	svc.prom.ComputeDur.Observe(time.Since(start).Seconds())

	batch := make([]*indicator.Series, 0, len(svc.kinds))
	for _, k := range svc.kinds {
		if out := results[k]; out != nil {
			batch = append(batch, out)
			svc.prom.ComputeTotal.WithLabelValues(k.String()).Inc()
		}
	}

	payload, err := json.Marshal(indicatorBatch{
		Type:       "indicators",
		Series:     key,
		Version:    s.Version,
		Indicators: batch,
	})
	if err != nil {
		log.Printf("[chartd] indicator batch marshal error for %s: %v", key, err)
		return
	}

	pubStart := time.Now()
	svc.redisWriter.PublishBatch(ctx, key, payload)
	svc.prom.RedisPubDur.Observe(time.Since(pubStart).Seconds())
	svc.prom.PublishedTotal.Inc()
	svc.hub.BroadcastIndicators(key, payload)
}

// handleForming broadcasts the preview bar and an ephemeral indicator
// batch computed as if the forming bar had closed. Nothing is cached or
// published to Redis streams.
func (svc *Service) handleForming(ctx context.Context, bar model.StreamBar) {
	svc.hub.BroadcastBar(bar.StreamKey(), bar.JSON())

	key := bar.Key()
	s, ok := svc.store.Get(key)
	if !ok || len(svc.kinds) == 0 {
		return
	}

	bars := make([]model.Bar, len(s.Bars), len(s.Bars)+1)
	copy(bars, s.Bars)
	if n := len(bars); n > 0 && !bar.TS.After(bars[n-1].TS) {
		bars[n-1] = bar.Bar()
	} else {
		bars = append(bars, bar.Bar())
	}

	params := svc.cache.Params()
	batch := make([]*indicator.Series, 0, len(svc.kinds))
	for _, k := range svc.kinds {
		batch = append(batch, indicator.Compute(k, bars, params))
	}

	payload, err := json.Marshal(indicatorBatch{
		Type:       "indicators",
		Series:     key,
		Version:    s.Version,
		Forming:    true,
		Indicators: batch,
	})
	if err != nil {
		return
	}
	svc.hub.BroadcastIndicators(key, payload)
}

// indicatorBatch is the published wire form of one series refresh.
type indicatorBatch struct {
	Type       string              `json:"type"`
	Series     string              `json:"series"`
	Version    uint64              `json:"version"`
	Forming    bool                `json:"forming,omitempty"`
	Indicators []*indicator.Series `json:"indicators"`
}
