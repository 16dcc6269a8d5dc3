package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomentum_signals_emitted_total",
			Help: "Momentum signals emitted, by trigger type.",
		},
		[]string{"type"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomentum_decisions_total",
			Help: "Gate decisions, by outcome (approved/rejected).",
		},
		[]string{"outcome"},
	)

	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomentum_rejections_total",
			Help: "Gate rejections, by reason.",
		},
		[]string{"reason"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gomentum_positions_open",
			Help: "Current number of open positions.",
		},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomentum_trades_closed_total",
			Help: "Fully closed trades, by exit reason.",
		},
		[]string{"reason"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gomentum_equity",
			Help: "Current equity (available capital plus open exposure at entry).",
		},
	)

	ModelRetrains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gomentum_model_retrains_total",
			Help: "Confidence-model retrain attempts, by result (accepted/rejected/skipped/failed).",
		},
		[]string{"result"},
	)

	ModelValidationScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gomentum_model_validation_score",
			Help: "Holdout validation score of the active confidence model.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsEmitted, Decisions, Rejections,
		PositionsOpen, TradesClosed, EquityGauge,
		ModelRetrains, ModelValidationScore,
	)
}
