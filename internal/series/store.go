// Package series maintains in-memory bar history per instrument and
// timeframe, and owns the version counter that keys indicator caching.
package series

import (
	"sync"

	"marketviz/internal/model"
)

type entry struct {
	version uint64
	bars    []model.Bar
}

// Store holds one bar sequence per "symbol@tf" key. Every mutation bumps
// the entry's version, so snapshots handed out earlier stay identifiable
// as stale. Mutations never write through slices already handed out:
// appends extend past a snapshot's length and corrections copy first.
type Store struct {
	mu      sync.RWMutex
	byKey   map[string]*entry
	maxBars int

	onChange func(key string)
}

// NewStore creates a store keeping at most maxBars bars per series
// (0 means unbounded).
func NewStore(maxBars int) *Store {
	return &Store{
		byKey:   make(map[string]*entry, 32),
		maxBars: maxBars,
	}
}

// OnChange registers a callback invoked (under no lock) with the series
// key after every mutation. The indicator service uses it to drop cache
// entries eagerly instead of waiting for the next version-mismatched read.
func (s *Store) OnChange(fn func(key string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Seed replaces a series wholesale with backfilled history. Bars must be
// in ascending TS order. The version still bumps past any prior value so
// stale caches cannot survive a reseed.
func (s *Store) Seed(key string, bars []model.Bar) {
	own := make([]model.Bar, len(bars))
	copy(own, bars)
	own = s.trim(own)

	s.mu.Lock()
	e := s.byKey[key]
	if e == nil {
		e = &entry{}
		s.byKey[key] = e
	}
	e.version++
	e.bars = own
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(key)
	}
}

// Apply folds one closed stream bar into its series. Forming bars are
// previews of the open bucket and are rejected outright. A bar with the
// same TS as the current last bar replaces it (a late correction); a bar
// with an earlier TS is dropped as out of order. Returns true if the
// series changed.
func (s *Store) Apply(b model.StreamBar) bool {
	if b.Forming {
		return false
	}
	key := b.Key()
	bar := b.Bar()

	s.mu.Lock()
	e := s.byKey[key]
	if e == nil {
		e = &entry{}
		s.byKey[key] = e
	}

	n := len(e.bars)
	switch {
	case n == 0 || bar.TS.After(e.bars[n-1].TS):
		e.bars = s.trim(append(e.bars, bar))
	case bar.TS.Equal(e.bars[n-1].TS):
		// copy before correcting so earlier snapshots stay intact
		fresh := make([]model.Bar, n)
		copy(fresh, e.bars)
		fresh[n-1] = bar
		e.bars = fresh
	default:
		s.mu.Unlock()
		return false
	}
	e.version++
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(key)
	}
	return true
}

// Get returns a snapshot of one series. The returned struct is the
// caller's; the bar slice is shared but never mutated in place.
func (s *Store) Get(key string) (*model.BarSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	return &model.BarSeries{ID: key, Version: e.version, Bars: e.bars}, true
}

// Keys returns every series key currently held, in map order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		out = append(out, k)
	}
	return out
}

// Len returns the bar count for one series (0 if absent).
func (s *Store) Len(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.byKey[key]; ok {
		return len(e.bars)
	}
	return 0
}

func (s *Store) trim(bars []model.Bar) []model.Bar {
	if s.maxBars <= 0 || len(bars) <= s.maxBars {
		return bars
	}
	return bars[len(bars)-s.maxBars:]
}
