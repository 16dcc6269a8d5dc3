package indicator

import "github.com/evdnx/gomentum/types"

// The oscillator math below operates on raw price slices, oldest first.
// All functions report ok=false when the series is too short; callers
// substitute the neutral reading (50) so downstream code never branches
// on missing history.

// wilderRSI computes the Relative Strength Index with Wilder smoothing
// over the full series. Needs at least period+1 prices.
func wilderRSI(prices []float64, period int) (float64, bool) {
	if len(prices) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// rsiSeries computes the RSI at each successive endpoint, yielding the
// oscillator history StochRSI normalizes over.
func rsiSeries(prices []float64, period int) []float64 {
	if len(prices) < period+1 {
		return nil
	}
	out := make([]float64, 0, len(prices)-period)
	for end := period + 1; end <= len(prices); end++ {
		v, ok := wilderRSI(prices[:end], period)
		if ok {
			out = append(out, v)
		}
	}
	return out
}

// stochRSI normalizes the latest RSI within its stochPeriod min-max
// range, scaled to 0-100.
func stochRSI(prices []float64, rsiPeriod, stochPeriod int) (float64, bool) {
	rsis := rsiSeries(prices, rsiPeriod)
	if len(rsis) < stochPeriod {
		return 0, false
	}
	window := rsis[len(rsis)-stochPeriod:]
	lo, hi := window[0], window[0]
	for _, v := range window[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return 50, true
	}
	return (window[len(window)-1] - lo) / (hi - lo) * 100, true
}

// ema computes an exponential moving average seeded with the simple
// average of the first period values. Short series fall back to the
// plain mean.
func ema(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		sum := 0.0
		for _, p := range prices {
			sum += p
		}
		return sum / float64(len(prices))
	}
	seed := 0.0
	for _, p := range prices[:period] {
		seed += p
	}
	val := seed / float64(period)
	k := 2.0 / float64(period+1)
	for _, p := range prices[period:] {
		val = p*k + val*(1-k)
	}
	return val
}

// macdState classifies the MACD line against its signal line. The
// signal line is an EMA over the recent MACD-line history, so enough
// prices for slow+signal endpoints are required.
func macdState(prices []float64, fast, slow, signal int) types.MACDState {
	if len(prices) < slow+signal {
		return types.MACDUnavailable
	}
	macdVals := make([]float64, 0, signal+5)
	start := len(prices) - (signal + 5)
	if start < slow {
		start = slow
	}
	for end := start; end <= len(prices); end++ {
		macdVals = append(macdVals, ema(prices[:end], fast)-ema(prices[:end], slow))
	}
	line := macdVals[len(macdVals)-1]
	sig := ema(macdVals, signal)
	hist := line - sig
	switch {
	case line > sig && hist > 0:
		return types.MACDBullish
	case line < sig && hist < 0:
		return types.MACDBearish
	default:
		return types.MACDNeutral
	}
}

// emaState classifies the fast/slow EMA pair and detects the bar on
// which they crossed.
func emaState(prices []float64, fast, slow int) types.EMAState {
	if len(prices) < slow+2 {
		return types.EMAUnavailable
	}
	prevFast := ema(prices[:len(prices)-1], fast)
	prevSlow := ema(prices[:len(prices)-1], slow)
	curFast := ema(prices, fast)
	curSlow := ema(prices, slow)
	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		return types.EMABullishCross
	case prevFast >= prevSlow && curFast < curSlow:
		return types.EMABearishCross
	case curFast > curSlow:
		return types.EMABullish
	case curFast < curSlow:
		return types.EMABearish
	default:
		return types.EMANeutral
	}
}

// atrPercent computes a Wilder-smoothed average true range as a percent
// of the latest price. On a tick feed without highs and lows the true
// range reduces to the absolute close-to-close move.
func atrPercent(prices []float64, period int) (float64, bool) {
	if len(prices) < period+1 {
		return 0, false
	}
	trs := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d < 0 {
			d = -d
		}
		trs = append(trs, d)
	}
	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	last := prices[len(prices)-1]
	if last == 0 {
		return 0, false
	}
	return atr / last * 100, true
}

// classifyTrend buckets a window change percent into a trend state.
func classifyTrend(changePct float64) types.TrendState {
	switch {
	case changePct > 2:
		return types.TrendStrongBullish
	case changePct > 0.5:
		return types.TrendBullish
	case changePct < -2:
		return types.TrendStrongBearish
	case changePct < -0.5:
		return types.TrendBearish
	default:
		return types.TrendNeutral
	}
}
