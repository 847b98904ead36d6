package indicator

import (
	"sync"

	"marketviz/internal/model"
)

// Cache memoizes computed indicator series keyed by (kind, series ID,
// series version). Keys never involve wall-clock time: a cached entry
// is valid exactly as long as the identified bar series is unchanged,
// and the owner of the series bumps the version on every append.
//
// Safe for concurrent use; the underlying compute is pure.
type Cache struct {
	params Params

	mu      sync.RWMutex
	entries map[string]map[Kind]cacheEntry

	hits, misses uint64
}

type cacheEntry struct {
	version uint64
	series  *Series
}

// NewCache creates a cache computing with the given parameters.
func NewCache(params Params) *Cache {
	return &Cache{
		params:  params,
		entries: make(map[string]map[Kind]cacheEntry, 64),
	}
}

// Params returns the parameter set the cache computes with.
func (c *Cache) Params() Params { return c.params }

// Get returns the series for one kind, computing it on miss or when the
// cached entry belongs to an older version of the bar series.
func (c *Cache) Get(kind Kind, s *model.BarSeries) *Series {
	c.mu.RLock()
	byKind := c.entries[s.ID]
	e, ok := byKind[kind]
	c.mu.RUnlock()

	if ok && e.version == s.Version {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return e.series
	}

	out := Compute(kind, s.Bars, c.params)

	c.mu.Lock()
	c.misses++
	byKind = c.entries[s.ID]
	if byKind == nil {
		byKind = make(map[Kind]cacheEntry, 4)
		c.entries[s.ID] = byKind
	}
	byKind[kind] = cacheEntry{version: s.Version, series: out}
	c.mu.Unlock()
	return out
}

// GetSet computes exactly the requested kinds, never more, returning
// them by kind. This is the engine's selection contract: unrequested
// families are not touched.
func (c *Cache) GetSet(kinds []Kind, s *model.BarSeries) map[Kind]*Series {
	out := make(map[Kind]*Series, len(kinds))
	for _, k := range kinds {
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = c.Get(k, s)
	}
	return out
}

// Invalidate drops every cached series for one bar-series identity.
// Callers invoke it when the underlying bars change wholesale (version
// bumps already invalidate lazily on the next Get).
func (c *Cache) Invalidate(seriesID string) {
	c.mu.Lock()
	delete(c.entries, seriesID)
	c.mu.Unlock()
}

// Stats returns cumulative hit/miss counts for metrics export.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
