package indicator

// MACD computes DIF/DEA/MACD over the closes.
// Both EMAs and the DEA use the same seed-at-index-0 convention as
// EXPMA, so all three outputs are full-length with no sentinels.
func MACD(closes []float64, fast, slow, signal int) []Line {
	n := len(closes)
	emaFast := expma(closes, fast)
	emaSlow := expma(closes, slow)

	dif := make([]float64, n)
	for i := range dif {
		dif[i] = emaFast[i] - emaSlow[i]
	}
	dea := expma(dif, signal)

	bar := make([]float64, n)
	for i := range bar {
		bar[i] = 2 * (dif[i] - dea[i])
	}

	return []Line{
		{Name: "DIF", Values: dif},
		{Name: "DEA", Values: dea},
		{Name: "MACD", Values: bar},
	}
}
