// Package resample provides an incremental timeframe resampler.
// It consumes closed base-timeframe bars and maintains forming
// higher-timeframe bar states updated in O(1) per bar per TF. When a TF
// bucket closes (a bar arrives in a new bucket), the previous TF bar is
// finalized and emitted.
package resample

import (
	"context"
	"log"
	"time"

	"marketviz/internal/model"
)

// tfState holds the forming bar state for one (symbol, TF) pair.
type tfState struct {
	bucket  int64 // bucket start = ts - ts%tf (Unix seconds)
	bar     model.StreamBar
	started bool
}

// Resampler aggregates base-TF bars into multiple dynamic timeframes.
// Designed to run in a single goroutine (single consumer).
type Resampler struct {
	tfs []int // enabled TF durations in seconds

	// Per-TF per-symbol state: states[tfIdx][symbol] → *tfState
	states []map[string]*tfState

	// Staleness validation: reject bars whose bucket is behind the
	// forming one by more than the tolerance. Default 2s; 0 disables.
	StaleTolerance time.Duration

	// Metrics hooks
	OnClosedBar func(b model.StreamBar) // called on finalized TF bar (optional)
	OnStaleBar  func()                  // called when a stale bar is rejected (optional)
}

// New creates a resampler with the given timeframes (in seconds).
func New(tfs []int) *Resampler {
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 64)
	}
	return &Resampler{
		tfs:            tfs,
		states:         states,
		StaleTolerance: 2 * time.Second,
	}
}

// UpdateTFs dynamically updates the enabled timeframes.
// Forming bars for removed TFs are finalized and emitted.
func (r *Resampler) UpdateTFs(newTFs []int, outCh chan<- model.StreamBar) {
	newSet := make(map[int]bool, len(newTFs))
	for _, tf := range newTFs {
		newSet[tf] = true
	}

	for i, tf := range r.tfs {
		if !newSet[tf] {
			for _, st := range r.states[i] {
				if st.started {
					st.bar.Forming = false
					emit(outCh, st.bar)
				}
			}
		}
	}

	// Rebuild states: keep existing states for TFs that persist, add new ones
	oldStates := make(map[int]map[string]*tfState, len(r.tfs))
	for i, tf := range r.tfs {
		oldStates[tf] = r.states[i]
	}

	r.tfs = newTFs
	r.states = make([]map[string]*tfState, len(newTFs))
	for i, tf := range newTFs {
		if old, ok := oldStates[tf]; ok {
			r.states[i] = old
		} else {
			r.states[i] = make(map[string]*tfState, 64)
		}
	}
}

// Run consumes base bars from barCh, resamples them into TF bars, and
// sends results to outCh. Blocks until ctx is cancelled.
func (r *Resampler) Run(ctx context.Context, barCh <-chan model.StreamBar, outCh chan<- model.StreamBar) {
	for {
		select {
		case <-ctx.Done():
			r.flushAll(outCh)
			return
		case b, ok := <-barCh:
			if !ok {
				r.flushAll(outCh)
				return
			}
			r.process(b, outCh)
		}
	}
}

// process handles a single base bar against all enabled TFs.
// This is the hot path, O(1) per TF.
func (r *Resampler) process(b model.StreamBar, outCh chan<- model.StreamBar) {
	if b.Forming {
		// only closed base bars aggregate upward
		return
	}
	ts := b.TS.Unix()

	for i, tf := range r.tfs {
		tf64 := int64(tf)
		bucket := ts - (ts % tf64) // align to TF boundary

		st, exists := r.states[i][b.Symbol]

		// Late bars behind an already-advancing bucket would corrupt it.
		if r.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Second
			if lag > r.StaleTolerance {
				if r.OnStaleBar != nil {
					r.OnStaleBar()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			// New bucket — finalize the forming bar
			st.bar.Forming = false
			emit(outCh, st.bar)
			if r.OnClosedBar != nil {
				r.OnClosedBar(st.bar)
			}
			exists = false
		}

		if !exists {
			newState := &tfState{
				bucket:  bucket,
				started: true,
				bar: model.StreamBar{
					Symbol:  b.Symbol,
					TF:      tf,
					TS:      time.Unix(bucket, 0).UTC(),
					Open:    b.Open,
					High:    b.High,
					Low:     b.Low,
					Close:   b.Close,
					Volume:  b.Volume,
					Forming: true,
				},
			}
			r.states[i][b.Symbol] = newState
			// Emit immediately so live-preview pipeline sees the first slice.
			emit(outCh, newState.bar)
			continue
		}

		// Same bucket — merge OHLCV (O(1))
		fb := &st.bar
		if b.High > fb.High {
			fb.High = b.High
		}
		if b.Low < fb.Low {
			fb.Low = b.Low
		}
		fb.Close = b.Close
		fb.Volume += b.Volume

		// Emit a forming snapshot so the live-preview pipeline can peek
		// at the in-progress bar. Struct copy, no pointer fields.
		emit(outCh, *fb)
	}
}

// flushAll finalizes and emits all forming bars.
func (r *Resampler) flushAll(outCh chan<- model.StreamBar) {
	for i := range r.tfs {
		for key, st := range r.states[i] {
			if st.started {
				st.bar.Forming = false
				emit(outCh, st.bar)
			}
			delete(r.states[i], key)
		}
	}
}

// emit sends a bar to the output channel. Non-blocking to avoid deadlocks.
func emit(outCh chan<- model.StreamBar, b model.StreamBar) {
	select {
	case outCh <- b:
	default:
		log.Printf("[resample] outCh full, dropping bar %s tf=%d ts=%v", b.Symbol, b.TF, b.TS)
	}
}

// TFs returns the current list of enabled timeframes.
func (r *Resampler) TFs() []int {
	return r.tfs
}

// Process1 resamples a single base bar against all TFs (hot path).
// Avoids channel overhead when called inline from the pipeline.
func (r *Resampler) Process1(b model.StreamBar, outCh chan<- model.StreamBar) {
	r.process(b, outCh)
}
