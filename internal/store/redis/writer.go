package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"marketviz/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes bars and computed indicator batches to Redis. All
// pipeline writes go through a circuit breaker so a dead Redis degrades
// to fast drops instead of per-call timeouts on the hot path.
type Writer struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	breaker := NewCircuitBreaker(5, 10*time.Second)
	breaker.OnStateChange = func(from, to BreakerState) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}
	return &Writer{client: client, breaker: breaker}, nil
}

// Breaker exposes the writer's circuit breaker for health reporting.
func (w *Writer) Breaker() *CircuitBreaker { return w.breaker }

// RunBars reads bars from barCh and writes them to Redis. Closed bars go
// to their stream plus a latest key; forming previews go out via Pub/Sub
// only, never XADD. Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) RunBars(ctx context.Context, barCh <-chan model.StreamBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			if bar.Forming {
				w.publishForming(ctx, bar)
			} else {
				w.writeBar(ctx, bar)
			}
		}
	}
}

// PublishBatch writes one computed indicator batch: SET on the latest key
// plus a PUBLISH for live subscribers, in one pipeline roundtrip.
func (w *Writer) PublishBatch(ctx context.Context, seriesID string, payload []byte) {
	// Zero-copy []byte→string (safe: payload is not mutated after this)
	data := *(*string)(unsafe.Pointer(&payload))

	err := w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.Set(ctx, "ind:latest:"+seriesID, data, defaultLatestTTL)
		pipe.Publish(ctx, "pub:ind:"+seriesID, data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] indicator publish error for %s: %v", seriesID, err)
	}
}

// LoadTFRegistry reads the tf:enabled set from Redis.
// Returns empty slice if key doesn't exist.
func (w *Writer) LoadTFRegistry(ctx context.Context) ([]int, error) {
	members, err := w.client.SMembers(ctx, "tf:enabled").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS tf:enabled: %w", err)
	}

	tfs := make([]int, 0, len(members))
	for _, m := range members {
		n := 0
		for _, c := range m {
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
			}
		}
		if n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs, nil
}

// writeBar performs the pipelined writes for one closed bar. Circuit-open
// drops are silent; BufferedWriter exists for callers that need them kept.
func (w *Writer) writeBar(ctx context.Context, bar model.StreamBar) {
	if err := w.writeBarOnce(ctx, bar); err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] bar pipeline error for %s: %v", bar.Key(), err)
	}
}

// writeBarOnce runs the bar pipeline through the breaker and returns its
// error, ErrCircuitOpen included.
func (w *Writer) writeBarOnce(ctx context.Context, bar model.StreamBar) error {
	streamKey := bar.StreamKey()
	// Proportional MAXLEN: 3h of bars = 10800/TF + buffer
	maxLen := int64(200)
	if bar.TF > 0 {
		maxLen = int64(10800/bar.TF) + 100
		if maxLen < 200 {
			maxLen = 200
		}
	}

	jsonData := string(bar.JSON())

	return w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"data": jsonData,
			},
		})

		// SET latest closed bar
		latestKey := "bars:" + model.Itoa(bar.TF) + "s:latest:" + bar.Symbol
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

		// PUBLISH for real-time subscribers
		pipe.Publish(ctx, "pub:"+streamKey, jsonData)

		_, err := pipe.Exec(ctx)
		return err
	})
}

// publishForming sends a forming preview via Pub/Sub only.
func (w *Writer) publishForming(ctx context.Context, bar model.StreamBar) {
	jsonBytes := bar.JSON()
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))
	w.client.Publish(ctx, "pub:"+bar.StreamKey(), jsonData)
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
