package indicator

import (
	"testing"

	"marketviz/internal/model"
)

func TestSAR_UptrendAcceleration(t *testing.T) {
	// closeBars gives H=C+0.5, L=C-0.5. Seed: sar=10, ep=high[1]=11.5,
	// af=0.02, trend up.
	// i=2: sar=10+0.02*(11.5-10)=10.03, new high 12.5 → ep=12.5, af=0.04
	// i=3: sar=10.03+0.04*(12.5-10.03)=10.1288, ep→13.5, af=0.06
	bars := closeBars(10, 11, 12, 13)
	level, trend := SAR(bars, 0.02, 0.2)

	assertClose(t, "SAR[0]", level[0], 10, 1e-9)
	assertClose(t, "SAR[1]", level[1], 10, 1e-9)
	assertClose(t, "SAR[2]", level[2], 10.03, 1e-9)
	assertClose(t, "SAR[3]", level[3], 10.1288, 1e-9)
	for i := range bars {
		if !trend[i] {
			t.Errorf("trend[%d]=false, want up", i)
		}
	}
}

func TestSAR_FlipOnPenetration(t *testing.T) {
	// Three rising bars then a crash through the stop. On the flip the
	// level jumps to the old extreme point (12.5), not the crash low.
	bars := closeBars(10, 11, 12)
	bars = append(bars, hlcBar(6, 5, 5.5))
	level, trend := SAR(bars, 0.02, 0.2)

	assertClose(t, "SAR[3]", level[3], 12.5, 1e-9)
	if trend[3] {
		t.Fatal("trend[3]=true, want flipped down")
	}
}

func TestSAR_DowntrendSeed(t *testing.T) {
	level, trend := SAR(closeBars(10, 9, 8), 0.02, 0.2)
	assertClose(t, "SAR[0]", level[0], 10, 1e-9)
	if trend[0] || trend[1] {
		t.Fatal("seeded trend should be down when close[1]<close[0]")
	}
	// i=2: sar=10+0.02*(8.5-10)=9.97, high 8.5 < sar so no flip,
	// low 7.5 < ep → ep=7.5, af=0.04
	assertClose(t, "SAR[2]", level[2], 9.97, 1e-9)
	if trend[2] {
		t.Fatal("trend[2]=true, want down")
	}
}

func TestSAR_ShortInputs(t *testing.T) {
	level, trend := SAR(nil, 0.02, 0.2)
	if len(level) != 0 || len(trend) != 0 {
		t.Fatal("empty input should yield empty output")
	}

	level, trend = SAR([]model.Bar{hlcBar(11, 9, 10)}, 0.02, 0.2)
	assertClose(t, "single SAR", level[0], 10, 1e-9)
	if !trend[0] {
		t.Fatal("single bar defaults to up trend")
	}
}
