// Package gate applies the ordered hard filters and the learned
// confidence check that stand between a scored signal and an open
// position. Filters run in a fixed order and the first failure becomes
// the decision's reason, so rejection logs stay comparable over time.
package gate

import (
	"fmt"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/metrics"
	"github.com/evdnx/gomentum/risk"
	"github.com/evdnx/gomentum/types"
)

// Rejection reasons. The counter-trend string doubles as the approval
// annotation when the volume-spike override fires.
const (
	ReasonScore        = "score below minimum"
	ReasonVolume       = "insufficient volume"
	ReasonRSI          = "rsi out of band"
	ReasonStochRSI     = "stochrsi overbought"
	ReasonChange       = "change out of band"
	ReasonATR          = "atr too high"
	ReasonCounterTrend = "counter-trend"
	ReasonMACD         = "macd bearish"
	ReasonEMA          = "ema bearish"
	ReasonCooldown     = "cooldown"
	ReasonOpenPosition = "position already open"
	ReasonNoSlots      = "no slots available"
	ReasonDailyLoss    = "daily loss limit"
	ReasonConfidence   = "confidence below threshold"
)

// Prediction is the confidence model's verdict on a feature vector.
type Prediction struct {
	Probability float64
	Threshold   float64
	Trained     bool
	Notes       []string // dominant features, for rejection logs
}

// ConfidencePredictor scores a candidate entry. An untrained model
// reports Trained=false and the gate passes the signal through.
type ConfidencePredictor interface {
	Predict(f types.FeatureVector) Prediction
}

// Gate evaluates signals. Stateless apart from its collaborators; safe
// for concurrent use.
type Gate struct {
	cfg       config.GateConfig
	agg       *risk.Aggregate
	predictor ConfidencePredictor
	log       logger.Logger
}

// New creates a Gate. predictor may be nil, which disables the ML check
// entirely.
func New(cfg config.GateConfig, agg *risk.Aggregate, predictor ConfidencePredictor, log logger.Logger) *Gate {
	return &Gate{cfg: cfg, agg: agg, predictor: predictor, log: log}
}

// Evaluate runs the full filter chain on one signal and returns the
// decision. Exactly one decision is produced per signal, approved or
// not, and the caller records it for audit.
func (g *Gate) Evaluate(sig types.Signal) types.Decision {
	d := g.evaluate(sig)

	if d.Approved {
		metrics.Decisions.WithLabelValues("approved").Inc()
		g.log.Info("signal approved",
			logger.String("symbol", sig.Symbol),
			logger.Float64("score", sig.Score),
			logger.String("reason", d.Reason))
	} else {
		metrics.Decisions.WithLabelValues("rejected").Inc()
		metrics.Rejections.WithLabelValues(d.Reason).Inc()
		g.log.Info("signal rejected",
			logger.String("symbol", sig.Symbol),
			logger.Float64("score", sig.Score),
			logger.String("reason", d.Reason),
			logger.Strings("notes", d.Notes))
	}
	return d
}

func (g *Gate) evaluate(sig types.Signal) types.Decision {
	d := types.Decision{Signal: sig}
	ind := sig.Indicators

	minScore := g.cfg.MinScore
	if sig.Type == types.SignalVolumeSpike {
		// Spikes are caught earlier in the move; they trade a small
		// score concession for timing.
		minScore -= g.cfg.VolumeSpikeScoreConcession
	}
	if sig.Score < minScore {
		d.Reason = ReasonScore
		return d
	}

	if sig.VolumeUSD < g.minVolumeFor(sig.Score) {
		d.Reason = ReasonVolume
		return d
	}

	if ind.RSI < g.cfg.RSIMin || ind.RSI > g.cfg.RSIMax {
		d.Reason = ReasonRSI
		return d
	}
	if ind.StochRSI >= g.cfg.StochRSIMax {
		d.Reason = ReasonStochRSI
		return d
	}

	if sig.ChangePercent < g.cfg.ChangeMinPct || sig.ChangePercent > g.cfg.ChangeMaxPct {
		d.Reason = ReasonChange
		return d
	}
	if ind.ATRPercent > g.cfg.ATRMaxPercent {
		d.Reason = ReasonATR
		return d
	}

	if ind.RefTrend.Bearish() {
		// High-conviction volume spikes may trade against the
		// reference trend; the override bypasses only this filter.
		if sig.Type == types.SignalVolumeSpike && sig.Score >= g.cfg.CounterTrendOverrideScore {
			d.Reason = ReasonCounterTrend
			d.Notes = append(d.Notes,
				fmt.Sprintf("override: score %.1f >= %.1f", sig.Score, g.cfg.CounterTrendOverrideScore))
		} else {
			d.Reason = ReasonCounterTrend
			return d
		}
	}

	if ind.MACD == types.MACDBearish {
		d.Reason = ReasonMACD
		return d
	}
	if ind.EMA == types.EMABearish || ind.EMA == types.EMABearishCross {
		d.Reason = ReasonEMA
		return d
	}

	if g.agg.HasOpen(sig.Symbol) {
		d.Reason = ReasonOpenPosition
		return d
	}
	if g.agg.OnCooldown(sig.Symbol, sig.Time) {
		d.Reason = ReasonCooldown
		return d
	}
	if g.agg.DailyLossExceeded(sig.Time) {
		d.Reason = ReasonDailyLoss
		return d
	}
	if !g.agg.SlotsAvailable() {
		d.Reason = ReasonNoSlots
		return d
	}

	if g.predictor != nil {
		pred := g.predictor.Predict(sig.Features())
		if pred.Trained {
			d.Confidence = pred.Probability
			d.ConfidenceUsed = true
			if pred.Probability < pred.Threshold {
				d.Reason = ReasonConfidence
				d.Notes = append(d.Notes, pred.Notes...)
				return d
			}
		}
	}

	d.Approved = true
	return d
}

// minVolumeFor returns the tiered volume requirement: higher conviction
// is allowed to trade on thinner books, down to the configured tiers,
// otherwise the hard floor applies.
func (g *Gate) minVolumeFor(score float64) float64 {
	for _, t := range g.cfg.SortedVolumeTiers() {
		if score >= t.MinScore {
			return t.MinVolumeUSD
		}
	}
	return g.cfg.VolumeFloorUSD
}
