package indicator

import (
	"reflect"
	"testing"
)

func TestCompute_AllKindsAligned(t *testing.T) {
	bars := closeBars(
		10, 11, 9, 12, 8, 13, 7, 14, 10, 11,
		12, 9, 13, 8, 15, 10, 16, 9, 17, 11,
	)
	p := DefaultParams()

	for _, kind := range AllKinds() {
		s := Compute(kind, bars, p)
		if s.Kind != kind {
			t.Fatalf("%s: wrong kind on result", kind)
		}
		for _, l := range s.Lines {
			if len(l.Values) != len(bars) {
				t.Errorf("%s/%s: length %d, want %d", kind, l.Name, len(l.Values), len(bars))
			}
		}
		if s.Trend != nil && len(s.Trend) != len(bars) {
			t.Errorf("%s: trend length %d", kind, len(s.Trend))
		}
		if s.Buy != nil && len(s.Buy) != len(bars) {
			t.Errorf("%s: buy length %d", kind, len(s.Buy))
		}
		if s.Sell != nil && len(s.Sell) != len(bars) {
			t.Errorf("%s: sell length %d", kind, len(s.Sell))
		}
	}
}

func TestCompute_EmptyInput(t *testing.T) {
	p := DefaultParams()
	for _, kind := range AllKinds() {
		s := Compute(kind, nil, p)
		for _, l := range s.Lines {
			if len(l.Values) != 0 {
				t.Errorf("%s/%s: %d values on empty input", kind, l.Name, len(l.Values))
			}
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	bars := closeBars(10, 11, 9, 12, 8, 13, 7, 14)
	p := DefaultParams()
	for _, kind := range AllKinds() {
		a := Compute(kind, bars, p)
		b := Compute(kind, bars, p)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: repeated compute differs", kind)
		}
	}
}

func TestCompute_SanitizesBadFloats(t *testing.T) {
	// A NaN close coerces to 0 before any family sees it. With a
	// window-1 MA the outputs are the coerced closes themselves.
	bars := closeBars(10, 11, 12)
	bars[1].Close = None
	p := DefaultParams()
	p.MAWindows = []int{1}
	s := Compute(KindMA, bars, p)
	want := []float64{10, 0, 12}
	for i, w := range want {
		assertClose(t, "MA1", s.Lines[0].Values[i], w, 1e-9)
	}
}
