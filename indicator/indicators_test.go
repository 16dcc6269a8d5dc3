package indicator

import (
	"math"
	"testing"

	"github.com/evdnx/gomentum/types"
)

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func falling(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 200 - float64(i)
	}
	return out
}

func flat(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100
	}
	return out
}

func TestWilderRSIExtremes(t *testing.T) {
	// A series of pure gains has no average loss, which pins RSI at 100.
	if v, ok := wilderRSI(rising(30), 14); !ok || v != 100 {
		t.Fatalf("expected RSI 100 for pure gains, got %v (ok=%v)", v, ok)
	}
	if v, ok := wilderRSI(falling(30), 14); !ok || v != 0 {
		t.Fatalf("expected RSI 0 for pure losses, got %v (ok=%v)", v, ok)
	}
}

func TestWilderRSIRequiresHistory(t *testing.T) {
	if _, ok := wilderRSI(rising(14), 14); ok {
		t.Fatal("period+1 prices are required, 14 must not be enough")
	}
	if _, ok := wilderRSI(rising(15), 14); !ok {
		t.Fatal("15 prices should satisfy a period of 14")
	}
}

func TestWilderRSIMidrange(t *testing.T) {
	// Alternating equal gains and losses should settle near 50.
	prices := make([]float64, 40)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 100
		} else {
			prices[i] = 101
		}
	}
	v, ok := wilderRSI(prices, 14)
	if !ok {
		t.Fatal("expected RSI to be available")
	}
	if v < 40 || v > 60 {
		t.Fatalf("expected midrange RSI, got %v", v)
	}
}

func TestStochRSIBounds(t *testing.T) {
	for _, prices := range [][]float64{rising(40), falling(40)} {
		v, ok := stochRSI(prices, 14, 14)
		if !ok {
			t.Fatal("expected StochRSI to be available")
		}
		if v < 0 || v > 100 {
			t.Fatalf("StochRSI out of bounds: %v", v)
		}
	}
}

func TestStochRSIFlatWindowIsNeutral(t *testing.T) {
	// Pure gains keep RSI pinned at 100, so the min-max window has no
	// spread and the reading degrades to neutral.
	v, ok := stochRSI(rising(40), 14, 14)
	if !ok || v != 50 {
		t.Fatalf("expected neutral 50 for a spreadless RSI window, got %v", v)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	if v := ema(flat(30), 9); math.Abs(v-100) > 1e-9 {
		t.Fatalf("EMA of a constant series must equal it, got %v", v)
	}
}

func TestEMAStateCrossDetection(t *testing.T) {
	// Flat history then a jump: the fast EMA overtakes the slow one on
	// the final bar.
	prices := append(flat(30), 120)
	if st := emaState(prices, 9, 21); st != types.EMABullishCross {
		t.Fatalf("expected bullish_cross, got %s", st)
	}
	prices = append(flat(30), 80)
	if st := emaState(prices, 9, 21); st != types.EMABearishCross {
		t.Fatalf("expected bearish_cross, got %s", st)
	}
}

func TestEMAStateSustainedTrend(t *testing.T) {
	if st := emaState(rising(40), 9, 21); st != types.EMABullish && st != types.EMABullishCross {
		t.Fatalf("expected bullish state for a rising series, got %s", st)
	}
	if st := emaState(flat(40), 9, 21); st != types.EMANeutral {
		t.Fatalf("expected neutral for a flat series, got %s", st)
	}
}

func TestEMAStateRequiresHistory(t *testing.T) {
	if st := emaState(flat(10), 9, 21); st != types.EMAUnavailable {
		t.Fatalf("expected unavailable with short history, got %s", st)
	}
}

func TestMACDStateDirections(t *testing.T) {
	if st := macdState(rising(50), 12, 26, 9); st == types.MACDBearish || st == types.MACDUnavailable {
		t.Fatalf("rising series must not read bearish, got %s", st)
	}
	if st := macdState(flat(20), 12, 26, 9); st != types.MACDUnavailable {
		t.Fatalf("expected unavailable with short history, got %s", st)
	}
}

func TestATRPercent(t *testing.T) {
	// Alternating one-point moves around 100 give a true range of 1,
	// roughly 1% of price.
	prices := make([]float64, 30)
	for i := range prices {
		if i%2 == 0 {
			prices[i] = 100
		} else {
			prices[i] = 101
		}
	}
	v, ok := atrPercent(prices, 14)
	if !ok {
		t.Fatal("expected ATR to be available")
	}
	if v < 0.9 || v > 1.1 {
		t.Fatalf("expected ATR%% near 1, got %v", v)
	}
}

func TestClassifyTrendBands(t *testing.T) {
	cases := []struct {
		change float64
		want   types.TrendState
	}{
		{3, types.TrendStrongBullish},
		{1, types.TrendBullish},
		{0, types.TrendNeutral},
		{-1, types.TrendBearish},
		{-3, types.TrendStrongBearish},
	}
	for _, c := range cases {
		if got := classifyTrend(c.change); got != c.want {
			t.Fatalf("classifyTrend(%v) = %s, want %s", c.change, got, c.want)
		}
	}
}
