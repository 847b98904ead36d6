package indicator

import "testing"

func TestMA_WarmupAndValues(t *testing.T) {
	// MA(3) over 100, 102, 104, 103, 105:
	// idx 2: (100+102+104)/3 = 102
	// idx 3: (102+104+103)/3 = 103
	// idx 4: (104+103+105)/3 = 104
	closes := []float64{100, 102, 104, 103, 105}
	lines := MA(closes, []int{3})
	if len(lines) != 1 || lines[0].Name != "MA3" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
	vals := lines[0].Values
	if len(vals) != len(closes) {
		t.Fatalf("length %d, want %d", len(vals), len(closes))
	}
	assertNone(t, "MA3[0]", vals[0])
	assertNone(t, "MA3[1]", vals[1])
	assertClose(t, "MA3[2]", vals[2], 102, 1e-9)
	assertClose(t, "MA3[3]", vals[3], 103, 1e-9)
	assertClose(t, "MA3[4]", vals[4], 104, 1e-9)
}

func TestMA_MultiWindow(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	lines := MA(closes, []int{5, 10, 20})
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if len(l.Values) != 30 {
			t.Errorf("%s: length %d, want 30", l.Name, len(l.Values))
		}
	}
	// MA5 at idx 4 = (1+2+3+4+5)/5 = 3; MA20 at idx 19 = 10.5
	assertClose(t, "MA5[4]", lines[0].Values[4], 3, 1e-9)
	assertClose(t, "MA20[19]", lines[2].Values[19], 10.5, 1e-9)
	assertNone(t, "MA20[18]", lines[2].Values[18])
}

func TestEXPMA_SeedAtIndexZero(t *testing.T) {
	// EXPMA(3): alpha = 0.5, seeded with close[0], no warm-up nulls.
	// 100, 102, 104, 103, 105:
	// e0=100, e1=101, e2=102.5, e3=102.75, e4=103.875
	closes := []float64{100, 102, 104, 103, 105}
	lines := EXPMA(closes, []int{3})
	vals := lines[0].Values
	want := []float64{100, 101, 102.5, 102.75, 103.875}
	for i := range want {
		assertClose(t, "EXPMA3", vals[i], want[i], 1e-9)
	}
}

func TestEXPMA_NoSentinelsAnyLength(t *testing.T) {
	for n := 1; n <= 5; n++ {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = float64(10 + i)
		}
		for _, l := range EXPMA(closes, []int{5, 10, 20, 60, 250}) {
			if len(l.Values) != n {
				t.Fatalf("n=%d %s: length %d", n, l.Name, len(l.Values))
			}
			for i, v := range l.Values {
				if IsNone(v) {
					t.Errorf("n=%d %s[%d]: unexpected sentinel", n, l.Name, i)
				}
			}
		}
	}
}
