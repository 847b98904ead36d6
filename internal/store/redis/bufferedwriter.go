package redis

import (
	"context"
	"log"
	"sync"

	"marketviz/internal/model"
)

// BufferedWriter wraps a Writer so that closed bars arriving while the
// circuit breaker is open are buffered locally instead of dropped, and
// flushed once the circuit closes again. Forming previews are never
// buffered: a stale preview is worthless.
type BufferedWriter struct {
	writer *Writer
	ctx    context.Context

	mu     sync.Mutex
	buffer []model.StreamBar
	maxBuf int // max buffered bars before dropping oldest

	// Callbacks
	OnBuffer func()          // called when a bar is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered bars
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		ctx:    ctx,
		buffer: make([]model.StreamBar, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Flush on circuit close, preserving any existing callback.
	prevCallback := w.breaker.OnStateChange
	w.breaker.OnStateChange = func(from, to BreakerState) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == BreakerClosed {
			go bw.flush()
		}
	}

	return bw
}

// RunBars mirrors Writer.RunBars but buffers closed bars that hit an
// open circuit. Blocks until ctx is cancelled or barCh is closed.
func (bw *BufferedWriter) RunBars(ctx context.Context, barCh <-chan model.StreamBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			bw.WriteBar(bar)
		}
	}
}

// WriteBar writes one bar through the circuit breaker, buffering closed
// bars when the circuit is open.
func (bw *BufferedWriter) WriteBar(bar model.StreamBar) {
	if bar.Forming {
		bw.writer.publishForming(bw.ctx, bar)
		return
	}
	err := bw.writer.writeBarOnce(bw.ctx, bar)
	if err == ErrCircuitOpen {
		bw.bufferBar(bar)
		return
	}
	if err != nil {
		log.Printf("[buffered-writer] bar pipeline error for %s: %v", bar.Key(), err)
	}
}

func (bw *BufferedWriter) bufferBar(bar model.StreamBar) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, bar)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered bars through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.StreamBar, 0, 256)
	bw.mu.Unlock()

	for _, bar := range toFlush {
		bw.writer.writeBar(bw.ctx, bar)
	}

	log.Printf("[buffered-writer] flushed %d buffered bars", len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered bars waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close closes the underlying writer.
func (bw *BufferedWriter) Close() error {
	return bw.writer.Close()
}
