// Package scorer turns indicator updates into scored momentum signals.
// A signal is only emitted on a raw trigger (window breakout or volume
// spike); the composite score then folds every indicator reading into
// a single 0-100 confidence number.
package scorer

import (
	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/indicator"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/metrics"
	"github.com/evdnx/gomentum/types"
)

// Oscillator band edges. Tuned on the production run of this strategy;
// the gate applies its own (configurable) bounds on top.
const (
	rsiOversold    = 32
	rsiNeutralHigh = 58
	rsiOverbought  = 68

	stochOversold   = 25
	stochOverbought = 75
)

// Scorer detects triggers and computes composite scores. Stateless;
// safe for concurrent use.
type Scorer struct {
	cfg config.ScorerConfig
	log logger.Logger
}

// New creates a Scorer.
func New(cfg config.ScorerConfig, log logger.Logger) *Scorer {
	return &Scorer{cfg: cfg, log: log}
}

// Evaluate inspects one indicator update and returns a scored signal
// when a trigger fires, or nil when the update is unremarkable. The
// returned signal is immutable: score and snapshot are fixed here.
func (s *Scorer) Evaluate(u indicator.Update) *types.Signal {
	if !u.Ready {
		return nil
	}
	sigType, ok := s.trigger(u)
	if !ok {
		return nil
	}

	sig := &types.Signal{
		Symbol:        u.Symbol,
		Time:          u.Time,
		Type:          sigType,
		Price:         u.Price,
		ChangePercent: u.ChangePercent,
		VolumeUSD:     u.VolumeUSD,
		Indicators:    u.Snapshot,
	}
	sig.Score = s.score(sig)

	metrics.SignalsEmitted.WithLabelValues(string(sigType)).Inc()
	s.log.Debug("signal emitted",
		logger.String("symbol", sig.Symbol),
		logger.String("type", string(sig.Type)),
		logger.Float64("score", sig.Score),
		logger.Float64("change_pct", sig.ChangePercent),
		logger.Float64("volume_usd", sig.VolumeUSD))
	return sig
}

// trigger checks the raw entry conditions. A volume spike outranks a
// plain breakout when both fire on the same tick.
func (s *Scorer) trigger(u indicator.Update) (types.SignalType, bool) {
	if u.VolumeUSD < s.cfg.MinTriggerVolumeUSD {
		return "", false
	}
	if u.AvgVolumeUSD > 0 &&
		u.VolumeUSD >= u.AvgVolumeUSD*s.cfg.VolumeSpikeMultiplier &&
		u.ChangePercent > 0 {
		return types.SignalVolumeSpike, true
	}
	if u.ChangePercent >= s.cfg.BreakoutThresholdPct {
		return types.SignalBreakout, true
	}
	return "", false
}

// score computes the composite confidence, starting from a deliberately
// low baseline so only multi-factor agreement clears the gate's floor.
func (s *Scorer) score(sig *types.Signal) float64 {
	score := 40.0

	score += s.changeContribution(sig.ChangePercent)
	score += volumeContribution(sig.VolumeUSD)
	score += rsiContribution(sig.Indicators.RSI)
	score += stochContribution(sig.Indicators.StochRSI)

	switch sig.Indicators.MACD {
	case types.MACDBullish:
		score += 15
	case types.MACDBearish:
		score -= 20
	}

	switch sig.Indicators.EMA {
	case types.EMABullishCross:
		score += 10
	case types.EMABullish:
		score += 5
	case types.EMABearishCross:
		score -= 15
	case types.EMABearish:
		score -= 10
	}

	switch sig.Indicators.RefTrend {
	case types.TrendStrongBullish:
		score += 15
	case types.TrendBullish:
		score += 10
	case types.TrendStrongBearish:
		score -= 20
	case types.TrendBearish:
		score -= 15
	}

	score += atrContribution(sig.Indicators.ATRPercent)

	switch sig.Type {
	case types.SignalVolumeSpike:
		score += 10
	case types.SignalBreakout:
		score += 7
	}

	switch sig.Indicators.Burst {
	case types.BurstBullish:
		score += 4
	case types.BurstBearish:
		score -= 4
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// changeContribution rewards the momentum sweet spot and penalizes
// chasing moves that already ran.
func (s *Scorer) changeContribution(changePct float64) float64 {
	switch {
	case changePct >= s.cfg.HealthyChangeMin && changePct <= s.cfg.HealthyChangeMax:
		return 10
	case changePct >= 1 && changePct < s.cfg.HealthyChangeMin:
		return 0 // early, no edge yet
	case changePct > s.cfg.HealthyChangeMax && changePct <= s.cfg.LateChangeMax:
		return 5 // good but late
	default:
		return -5
	}
}

func volumeContribution(volumeUSD float64) float64 {
	switch {
	case volumeUSD >= 2_000_000:
		return 15
	case volumeUSD >= 1_000_000:
		return 12
	case volumeUSD >= 500_000:
		return 8
	case volumeUSD >= 200_000:
		return 4
	default:
		return 0
	}
}

func rsiContribution(rsi float64) float64 {
	switch {
	case rsi <= rsiOversold:
		return 15
	case rsi <= 40:
		return 10
	case rsi <= 50:
		return 5
	case rsi <= rsiNeutralHigh:
		return -10
	case rsi <= rsiOverbought:
		return -15
	default:
		return -20
	}
}

func stochContribution(stochRSI float64) float64 {
	switch {
	case stochRSI <= stochOversold:
		return 10
	case stochRSI <= 35:
		return 5
	case stochRSI >= stochOverbought:
		return -15
	case stochRSI >= 65:
		return -10
	default:
		return 0
	}
}

func atrContribution(atrPct float64) float64 {
	switch {
	case atrPct > 15:
		return -20
	case atrPct > 12:
		return -15
	case atrPct > 8:
		return -10
	default:
		return 0
	}
}
