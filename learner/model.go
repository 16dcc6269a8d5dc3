package learner

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/evdnx/gomentum/types"
)

// OptimalRanges are feature bounds learned from profitable trades.
// They start from the strategy's static bands and tighten or relax as
// evidence accumulates, within hard outer limits.
type OptimalRanges struct {
	RSIMin      float64 `json:"rsi_min"`
	RSIMax      float64 `json:"rsi_max"`
	StochRSIMax float64 `json:"stoch_rsi_max"`
	ScoreMin    float64 `json:"score_min"`
	VolumeMin   float64 `json:"volume_min"`
	ChangeMin   float64 `json:"change_min"`
	ChangeMax   float64 `json:"change_max"`
}

func defaultRanges() OptimalRanges {
	return OptimalRanges{
		RSIMin:      30,
		RSIMax:      65,
		StochRSIMax: 75,
		ScoreMin:    60,
		VolumeMin:   100_000,
		ChangeMin:   1.0,
		ChangeMax:   15.0,
	}
}

// Model holds the learned patterns. Immutable after training; the
// learner swaps whole models, never mutates one in place.
type Model struct {
	TrainedAt       time.Time `json:"trained_at"`
	SampleCount     int       `json:"sample_count"`
	ValidationScore float64   `json:"validation_score"`

	WinRate    float64 `json:"win_rate"`
	AvgWinPnL  float64 `json:"avg_win_pnl"`
	AvgLossPnL float64 `json:"avg_loss_pnl"`

	Weights map[string]float64 `json:"weights"`
	Ranges  OptimalRanges      `json:"ranges"`

	SignalTypeSuccess map[types.SignalType]float64 `json:"signal_type_success"`
	MACDSuccess       map[types.MACDState]float64  `json:"macd_success"`
	EMASuccess        map[types.EMAState]float64   `json:"ema_success"`
	HourSuccess       map[int]float64              `json:"hour_success"`
	DaySuccess        map[int]float64              `json:"day_success"`
}

// Threshold returns the approval cut the gate applies to this model's
// probability. More evidence earns a stricter cut.
func (m *Model) Threshold() float64 {
	switch {
	case m.SampleCount >= 100:
		return 0.65
	case m.SampleCount >= 50:
		return 0.60
	default:
		return 0.55
	}
}

// Predict scores a feature vector against the learned patterns and
// returns a probability in [0,1] with the dominant contributing
// features spelled out for rejection logs.
func (m *Model) Predict(f types.FeatureVector) (float64, []string) {
	score := 0.5
	var notes []string

	if f.Score >= m.Ranges.ScoreMin {
		score += 0.1 * m.Weights["score"]
		notes = append(notes, fmt.Sprintf("score %.0f above learned floor", f.Score))
	} else {
		score -= 0.1
		notes = append(notes, fmt.Sprintf("score %.0f below learned floor %.0f", f.Score, m.Ranges.ScoreMin))
	}

	if f.RSI >= m.Ranges.RSIMin && f.RSI <= m.Ranges.RSIMax {
		score += 0.1 * m.Weights["rsi"]
	} else {
		score -= 0.05
		notes = append(notes, fmt.Sprintf("rsi %.0f outside learned range [%.0f,%.0f]",
			f.RSI, m.Ranges.RSIMin, m.Ranges.RSIMax))
	}

	if f.StochRSI <= m.Ranges.StochRSIMax {
		score += 0.05 * m.Weights["stoch_rsi"]
	} else {
		score -= 0.1
		notes = append(notes, fmt.Sprintf("stochrsi %.0f above learned max %.0f",
			f.StochRSI, m.Ranges.StochRSIMax))
	}

	if s := successRate(m.MACDSuccess, f.MACD); s != 0.5 {
		score += (s - 0.5) * 0.2
		if s > 0.55 {
			notes = append(notes, fmt.Sprintf("macd %s: %.0f%% historical win rate", f.MACD, s*100))
		}
	}
	if s := successRate(m.EMASuccess, f.EMA); s != 0.5 {
		score += (s - 0.5) * 0.2
		if s > 0.55 {
			notes = append(notes, fmt.Sprintf("ema %s: %.0f%% historical win rate", f.EMA, s*100))
		}
	}
	if s := successRate(m.SignalTypeSuccess, f.SignalType); s != 0.5 {
		score += (s - 0.5) * 0.2
		if s > 0.55 {
			notes = append(notes, fmt.Sprintf("%s: %.0f%% historical win rate", f.SignalType, s*100))
		}
	}

	if f.VolumeUSD >= m.Ranges.VolumeMin {
		score += 0.05 * m.Weights["volume"]
	}

	if s := successRate(m.HourSuccess, f.HourOfDay); s > 0.55 {
		score += 0.05
		notes = append(notes, fmt.Sprintf("hour %d: %.0f%% historical win rate", f.HourOfDay, s*100))
	}
	if s := successRate(m.DaySuccess, f.DayOfWeek); s > 0.55 {
		score += 0.05
	}

	if f.RefTrend.Bearish() {
		score -= 0.1
		notes = append(notes, "against reference trend")
	} else {
		score += 0.05 * m.Weights["ref_trend"]
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, notes
}

func successRate[K comparable](m map[K]float64, key K) float64 {
	if m == nil {
		return 0.5
	}
	if v, ok := m[key]; ok {
		return v
	}
	return 0.5
}

// fit trains a candidate model on the given completed trades.
// sampleCount is the full record count the threshold scales on, which
// includes the holdout the candidate never saw.
func fit(trainSet []types.TradeRecord, sampleCount int, now time.Time) *Model {
	m := &Model{
		TrainedAt:   now,
		SampleCount: sampleCount,
		Weights: map[string]float64{
			"score":     0.3,
			"rsi":       0.15,
			"stoch_rsi": 0.1,
			"volume":    0.1,
			"ref_trend": 0.1,
		},
		Ranges:            defaultRanges(),
		SignalTypeSuccess: make(map[types.SignalType]float64),
		MACDSuccess:       make(map[types.MACDState]float64),
		EMASuccess:        make(map[types.EMAState]float64),
		HourSuccess:       make(map[int]float64),
		DaySuccess:        make(map[int]float64),
	}

	var wins, losses []types.TradeRecord
	for _, r := range trainSet {
		if r.Win {
			wins = append(wins, r)
		} else {
			losses = append(losses, r)
		}
	}
	if len(trainSet) > 0 {
		m.WinRate = float64(len(wins)) / float64(len(trainSet))
	}
	m.AvgWinPnL = meanPnL(wins)
	m.AvgLossPnL = meanPnL(losses)

	m.learnRanges(wins)
	m.learnCategorical(trainSet)
	m.learnWeights(trainSet)
	return m
}

func (m *Model) learnRanges(wins []types.TradeRecord) {
	if len(wins) == 0 {
		return
	}
	rsi := collect(wins, func(r types.TradeRecord) float64 { return r.Features.RSI })
	stoch := collect(wins, func(r types.TradeRecord) float64 { return r.Features.StochRSI })
	score := collect(wins, func(r types.TradeRecord) float64 { return r.Features.Score })
	volume := collect(wins, func(r types.TradeRecord) float64 { return r.Features.VolumeUSD })
	change := collect(wins, func(r types.TradeRecord) float64 { return r.Features.ChangePercent })

	m.Ranges = OptimalRanges{
		RSIMin:      math.Max(20, percentile(rsi, 10)),
		RSIMax:      math.Min(75, percentile(rsi, 90)),
		StochRSIMax: math.Min(85, percentile(stoch, 90)),
		ScoreMin:    math.Max(50, percentile(score, 25)),
		VolumeMin:   math.Max(50_000, percentile(volume, 25)),
		ChangeMin:   math.Max(0.5, percentile(change, 10)),
		ChangeMax:   math.Min(20, percentile(change, 90)),
	}
}

func (m *Model) learnCategorical(trades []types.TradeRecord) {
	m.SignalTypeSuccess = categorical(trades, func(r types.TradeRecord) types.SignalType { return r.Features.SignalType })
	m.MACDSuccess = categorical(trades, func(r types.TradeRecord) types.MACDState { return r.Features.MACD })
	m.EMASuccess = categorical(trades, func(r types.TradeRecord) types.EMAState { return r.Features.EMA })
	m.HourSuccess = categorical(trades, func(r types.TradeRecord) int { return r.Features.HourOfDay })
	m.DaySuccess = categorical(trades, func(r types.TradeRecord) int { return r.Features.DayOfWeek })
}

// learnWeights derives feature importance from the correlation of each
// normalized feature with the win outcome. Negative correlations are
// dropped rather than inverted.
func (m *Model) learnWeights(trades []types.TradeRecord) {
	if len(trades) < 20 {
		return
	}
	outcomes := make([]float64, len(trades))
	for i, r := range trades {
		if r.Win {
			outcomes[i] = 1
		}
	}

	features := map[string][]float64{
		"score": collect(trades, func(r types.TradeRecord) float64 { return r.Features.Score / 100 }),
		"rsi": collect(trades, func(r types.TradeRecord) float64 {
			return 1 - math.Abs(r.Features.RSI-50)/50
		}),
		"stoch_rsi": collect(trades, func(r types.TradeRecord) float64 { return 1 - r.Features.StochRSI/100 }),
		"volume": collect(trades, func(r types.TradeRecord) float64 {
			return math.Min(r.Features.VolumeUSD/500_000, 1)
		}),
		"ref_trend": collect(trades, func(r types.TradeRecord) float64 {
			switch {
			case r.Features.RefTrend.Bullish():
				return 1
			case r.Features.RefTrend.Bearish():
				return 0
			default:
				return 0.5
			}
		}),
	}

	correlations := make(map[string]float64)
	for name, values := range features {
		if c := correlation(values, outcomes); c > 0 {
			correlations[name] = c
		}
	}
	total := 0.0
	for _, c := range correlations {
		total += c
	}
	if total == 0 {
		return
	}
	weights := make(map[string]float64, len(correlations))
	for name, c := range correlations {
		weights[name] = c / total
	}
	m.Weights = weights
}

// evaluate returns the model's accuracy on a holdout: the fraction of
// records where a >=0.5 probability agreed with the actual outcome.
func (m *Model) evaluate(holdout []types.TradeRecord) float64 {
	if len(holdout) == 0 {
		return 0
	}
	correct := 0
	for _, r := range holdout {
		prob, _ := m.Predict(r.Features)
		if (prob >= 0.5) == r.Win {
			correct++
		}
	}
	return float64(correct) / float64(len(holdout))
}

func categorical[K comparable](trades []types.TradeRecord, key func(types.TradeRecord) K) map[K]float64 {
	total := make(map[K]int)
	won := make(map[K]int)
	for _, r := range trades {
		k := key(r)
		total[k]++
		if r.Win {
			won[k]++
		}
	}
	out := make(map[K]float64, len(total))
	for k, n := range total {
		out[k] = float64(won[k]) / float64(n)
	}
	return out
}

func collect(trades []types.TradeRecord, f func(types.TradeRecord) float64) []float64 {
	out := make([]float64, len(trades))
	for i, r := range trades {
		out[i] = f(r)
	}
	return out
}

func meanPnL(trades []types.TradeRecord) float64 {
	if len(trades) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range trades {
		sum += r.PnLPercent
	}
	return sum / float64(len(trades))
}

// percentile returns the p-th percentile using nearest-rank on a sorted
// copy of values.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// correlation returns the Pearson correlation of two equal-length
// series, or 0 when either has no variance.
func correlation(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n == 0 || len(xs) != len(ys) {
		return 0
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n
	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
