package series

import (
	"testing"
	"time"

	"marketviz/internal/model"
)

func streamBar(ts int64, close float64, forming bool) model.StreamBar {
	return model.StreamBar{
		Symbol:  "NSE:RELIANCE",
		TF:      60,
		TS:      time.Unix(ts, 0).UTC(),
		Open:    close,
		High:    close,
		Low:     close,
		Close:   close,
		Forming: forming,
	}
}

func TestStore_AppendBumpsVersion(t *testing.T) {
	s := NewStore(0)

	if !s.Apply(streamBar(60, 100, false)) {
		t.Fatal("first apply should change the series")
	}
	snap, ok := s.Get("NSE:RELIANCE@60")
	if !ok || snap.Version != 1 || snap.Len() != 1 {
		t.Fatalf("snapshot after first bar: ok=%v version=%d len=%d", ok, snap.Version, snap.Len())
	}

	s.Apply(streamBar(120, 101, false))
	snap2, _ := s.Get("NSE:RELIANCE@60")
	if snap2.Version != 2 || snap2.Len() != 2 {
		t.Fatalf("after append: version=%d len=%d", snap2.Version, snap2.Len())
	}

	// Earlier snapshot is untouched.
	if snap.Len() != 1 {
		t.Fatalf("old snapshot mutated: len=%d", snap.Len())
	}
}

func TestStore_FormingBarsRejected(t *testing.T) {
	s := NewStore(0)
	if s.Apply(streamBar(60, 100, true)) {
		t.Fatal("forming bar must not enter history")
	}
	if s.Len("NSE:RELIANCE@60") != 0 {
		t.Fatal("forming bar stored")
	}
}

func TestStore_SameTSCorrectsLastBar(t *testing.T) {
	s := NewStore(0)
	s.Apply(streamBar(60, 100, false))
	before, _ := s.Get("NSE:RELIANCE@60")

	if !s.Apply(streamBar(60, 105, false)) {
		t.Fatal("correction should apply")
	}
	after, _ := s.Get("NSE:RELIANCE@60")
	if after.Len() != 1 || after.Bars[0].Close != 105 {
		t.Fatalf("correction not applied: len=%d close=%v", after.Len(), after.Bars[0].Close)
	}
	if after.Version != before.Version+1 {
		t.Fatalf("correction must bump version: %d -> %d", before.Version, after.Version)
	}
	if before.Bars[0].Close != 100 {
		t.Fatal("correction mutated the earlier snapshot")
	}
}

func TestStore_OutOfOrderDropped(t *testing.T) {
	s := NewStore(0)
	s.Apply(streamBar(120, 101, false))
	if s.Apply(streamBar(60, 100, false)) {
		t.Fatal("out-of-order bar must be dropped")
	}
	snap, _ := s.Get("NSE:RELIANCE@60")
	if snap.Version != 1 || snap.Len() != 1 {
		t.Fatalf("dropped bar changed state: version=%d len=%d", snap.Version, snap.Len())
	}
}

func TestStore_MaxBarsTrim(t *testing.T) {
	s := NewStore(3)
	for i := 1; i <= 5; i++ {
		s.Apply(streamBar(int64(60*i), float64(100+i), false))
	}
	snap, _ := s.Get("NSE:RELIANCE@60")
	if snap.Len() != 3 {
		t.Fatalf("len=%d, want 3", snap.Len())
	}
	if snap.Bars[0].Close != 103 {
		t.Fatalf("oldest retained close=%v, want 103", snap.Bars[0].Close)
	}
}

func TestStore_SeedReplacesAndBumps(t *testing.T) {
	s := NewStore(0)
	s.Apply(streamBar(60, 100, false))
	s.Apply(streamBar(120, 101, false))

	hist := []model.Bar{
		{TS: time.Unix(60, 0).UTC(), Close: 90},
		{TS: time.Unix(120, 0).UTC(), Close: 91},
		{TS: time.Unix(180, 0).UTC(), Close: 92},
	}
	s.Seed("NSE:RELIANCE@60", hist)

	snap, _ := s.Get("NSE:RELIANCE@60")
	if snap.Len() != 3 || snap.Bars[0].Close != 90 {
		t.Fatalf("seed not applied: len=%d first=%v", snap.Len(), snap.Bars[0].Close)
	}
	if snap.Version != 3 {
		t.Fatalf("seed version=%d, want 3 (past prior mutations)", snap.Version)
	}
}

func TestStore_OnChangeFires(t *testing.T) {
	s := NewStore(0)
	var changed []string
	s.OnChange(func(key string) { changed = append(changed, key) })

	s.Apply(streamBar(60, 100, false))
	s.Apply(streamBar(60, 100, true)) // forming, no change
	s.Seed("NSE:RELIANCE@60", nil)

	if len(changed) != 2 {
		t.Fatalf("onChange fired %d times, want 2", len(changed))
	}
	if changed[0] != "NSE:RELIANCE@60" {
		t.Fatalf("unexpected key %q", changed[0])
	}
}
