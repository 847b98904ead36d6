package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the chart service from concrete storage
// implementations (Redis, SQLite).

// BarWriter persists finalized bars.
type BarWriter interface {
	// RunBars reads finalized bars from barCh and writes them.
	// Blocks until ctx is cancelled or barCh is closed.
	RunBars(ctx context.Context, barCh <-chan StreamBar)

	// Close releases underlying resources.
	Close() error
}

// BarReader reads stored bars for startup backfill.
type BarReader interface {
	// ReadBars reads bars for one instrument and TF after a timestamp,
	// ordered ascending.
	ReadBars(symbol string, tf int, afterTS int64) ([]StreamBar, error)

	// Symbols lists the distinct (symbol, tf) pairs with stored bars.
	Symbols() ([]SeriesRef, error)

	// Close releases underlying resources.
	Close() error
}

// SeriesRef identifies one stored bar series.
type SeriesRef struct {
	Symbol string
	TF     int
}

// BatchPublisher publishes computed indicator batches for other consumers.
type BatchPublisher interface {
	// PublishBatch writes the batch to latest-value keys and pub/sub.
	PublishBatch(ctx context.Context, seriesID string, payload []byte)

	// Close releases underlying resources.
	Close() error
}

// StreamConsumer consumes bars from an external stream (Redis Streams).
type StreamConsumer interface {
	// ConsumeBars reads finalized bars via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, out chan<- StreamBar) error

	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ReplayFrom reads all messages from a stream starting at a given ID.
	ReplayFrom(ctx context.Context, stream, startID string, out chan<- StreamBar) (string, error)

	// Close releases underlying resources.
	Close() error
}
