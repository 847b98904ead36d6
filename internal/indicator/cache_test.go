package indicator

import (
	"testing"

	"marketviz/internal/model"
)

func testSeries(id string, version uint64, closes ...float64) *model.BarSeries {
	return &model.BarSeries{ID: id, Version: version, Bars: closeBars(closes...)}
}

func TestCache_HitOnSameVersion(t *testing.T) {
	c := NewCache(DefaultParams())
	s := testSeries("BTCUSDT@60", 1, 10, 11, 12, 13, 14)

	first := c.Get(KindMA, s)
	second := c.Get(KindMA, s)
	if first != second {
		t.Fatal("same version should return the cached pointer")
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats hits=%d misses=%d, want 1/1", hits, misses)
	}
}

func TestCache_VersionBumpRecomputes(t *testing.T) {
	c := NewCache(DefaultParams())
	s := testSeries("BTCUSDT@60", 1, 10, 11, 12, 13, 14)
	old := c.Get(KindMA, s)

	s.Bars = append(s.Bars, closeBars(15)...)
	s.Version++

	fresh := c.Get(KindMA, s)
	if fresh == old {
		t.Fatal("bumped version must recompute")
	}
	if len(fresh.Lines[0].Values) != 6 {
		t.Fatalf("recomputed length %d, want 6", len(fresh.Lines[0].Values))
	}

	// The new entry replaces the old one and hits again.
	if c.Get(KindMA, s) != fresh {
		t.Fatal("post-bump entry should now be cached")
	}
}

func TestCache_KindsCachedIndependently(t *testing.T) {
	c := NewCache(DefaultParams())
	s := testSeries("ETHUSDT@60", 3, 10, 9, 11, 8, 12)

	c.Get(KindMA, s)
	c.Get(KindRSI, s)
	_, misses := c.Stats()
	if misses != 2 {
		t.Fatalf("misses=%d, want one per kind", misses)
	}
	c.Get(KindMA, s)
	c.Get(KindRSI, s)
	hits, _ := c.Stats()
	if hits != 2 {
		t.Fatalf("hits=%d, want 2", hits)
	}
}

func TestCache_GetSetSelection(t *testing.T) {
	c := NewCache(DefaultParams())
	s := testSeries("ETHUSDT@300", 1, 10, 11, 12)

	out := c.GetSet([]Kind{KindMA, KindRSI, KindMA}, s)
	if len(out) != 2 {
		t.Fatalf("got %d kinds, want 2 (duplicates collapse)", len(out))
	}
	if out[KindMA] == nil || out[KindRSI] == nil {
		t.Fatal("requested kinds missing from result")
	}
	if _, ok := out[KindMACD]; ok {
		t.Fatal("unrequested kind present in result")
	}
	_, misses := c.Stats()
	if misses != 2 {
		t.Fatalf("misses=%d, want 2 (nothing beyond the request computed)", misses)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(DefaultParams())
	s := testSeries("SOLUSDT@60", 7, 10, 11, 12)

	c.Get(KindMA, s)
	c.Invalidate(s.ID)
	c.Get(KindMA, s)

	_, misses := c.Stats()
	if misses != 2 {
		t.Fatalf("misses=%d, want 2 after invalidation", misses)
	}
}

func TestCache_SeriesIsolation(t *testing.T) {
	c := NewCache(DefaultParams())
	a := testSeries("A@60", 1, 10, 11, 12)
	b := testSeries("B@60", 1, 20, 21, 22)

	ra := c.Get(KindMA, a)
	rb := c.Get(KindMA, b)
	if ra == rb {
		t.Fatal("distinct series identities must not share entries")
	}
	// b's cache survives a's invalidation
	c.Invalidate(a.ID)
	if c.Get(KindMA, b) != rb {
		t.Fatal("invalidating one identity dropped another's entry")
	}
}
