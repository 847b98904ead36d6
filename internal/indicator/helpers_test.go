package indicator

import (
	"math"
	"testing"
	"time"

	"marketviz/internal/model"
)

// ────────────────────────────────────────────────────────────
// Shared helpers
// ────────────────────────────────────────────────────────────

// closeBars builds bars where high/low straddle the close by 0.5.
func closeBars(closes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			TS:    time.Unix(int64(60*i), 0).UTC(),
			Open:  c,
			High:  c + 0.5,
			Low:   c - 0.5,
			Close: c,
		}
	}
	return bars
}

// hlcBar builds one bar from explicit high/low/close.
func hlcBar(h, l, c float64) model.Bar {
	return model.Bar{High: h, Low: l, Close: c, Open: c}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if IsNone(got) {
		t.Errorf("%s: got sentinel, want %.6f", label, want)
		return
	}
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func assertNone(t *testing.T, label string, got float64) {
	t.Helper()
	if !IsNone(got) {
		t.Errorf("%s: got %.6f, want sentinel", label, got)
	}
}
