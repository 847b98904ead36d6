package indicator

import "testing"

func TestTDSequential_IncompleteRunInvisible(t *testing.T) {
	// Three bearish comparisons then two bullish ones. Neither run
	// reaches 9, so both columns stay empty.
	closes := []float64{10, 9, 8, 7, 6, 11, 12}
	buy, sell := TDSequential(closes)
	for i := range closes {
		if buy[i] != 0 || sell[i] != 0 {
			t.Errorf("index %d: buy=%d sell=%d, want 0/0", i, buy[i], sell[i])
		}
	}
}

func TestTDSequential_CompletedBuyRun(t *testing.T) {
	// Strictly decreasing closes: every bar from index 4 satisfies
	// close[i] < close[i-4], so the run completes at index 12 and the
	// counts 1..9 surface across indices 4..12. Index 13 starts a new,
	// incomplete run and stays 0.
	closes := make([]float64, 14)
	for i := range closes {
		closes[i] = float64(100 - i)
	}
	buy, sell := TDSequential(closes)

	for i := 0; i < 4; i++ {
		if buy[i] != 0 {
			t.Errorf("buy[%d]=%d, want 0", i, buy[i])
		}
	}
	for i := 4; i <= 12; i++ {
		if buy[i] != i-3 {
			t.Errorf("buy[%d]=%d, want %d", i, buy[i], i-3)
		}
	}
	if buy[13] != 0 {
		t.Errorf("buy[13]=%d, want 0 (new run not yet complete)", buy[13])
	}
	for i := range closes {
		if sell[i] != 0 {
			t.Errorf("sell[%d]=%d, want 0", i, sell[i])
		}
	}
}

func TestTDSequential_CompletedSellRun(t *testing.T) {
	closes := make([]float64, 13)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	_, sell := TDSequential(closes)
	for i := 4; i <= 12; i++ {
		if sell[i] != i-3 {
			t.Errorf("sell[%d]=%d, want %d", i, sell[i], i-3)
		}
	}
}

func TestTDSequential_EqualityCancelsRun(t *testing.T) {
	// Buy run advances at indices 4..7, then close[8]==close[4] kills
	// it. The partial count must not appear in the output.
	closes := []float64{10, 9, 8, 7, 6, 5, 4, 3, 6, 2, 1}
	buy, _ := TDSequential(closes)
	for i := 4; i <= 8; i++ {
		if buy[i] != 0 {
			t.Errorf("buy[%d]=%d, want 0 after cancellation", i, buy[i])
		}
	}
}

func TestTDSequential_ShortInput(t *testing.T) {
	buy, sell := TDSequential([]float64{1, 2, 3})
	if len(buy) != 3 || len(sell) != 3 {
		t.Fatalf("lengths %d/%d, want 3/3", len(buy), len(sell))
	}
}
