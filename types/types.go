// Package types holds the shared vocabulary of the engine: price
// samples, signals, decisions, positions and the completed-trade
// records the learner consumes.
package types

import "time"

// SignalType identifies the raw trigger condition that produced a signal.
type SignalType string

const (
	SignalBreakout    SignalType = "breakout"
	SignalVolumeSpike SignalType = "volume_spike"
)

// TrendState classifies the reference asset's direction. It doubles as
// a market-regime filter: longs are only taken with (or at least not
// against) the reference trend.
type TrendState string

const (
	TrendStrongBullish TrendState = "strong_bullish"
	TrendBullish       TrendState = "bullish"
	TrendNeutral       TrendState = "neutral"
	TrendBearish       TrendState = "bearish"
	TrendStrongBearish TrendState = "strong_bearish"
	TrendUnavailable   TrendState = "unavailable"
)

// Bullish reports whether the trend is on the long side.
func (t TrendState) Bullish() bool {
	return t == TrendBullish || t == TrendStrongBullish
}

// Bearish reports whether the trend is on the short side.
func (t TrendState) Bearish() bool {
	return t == TrendBearish || t == TrendStrongBearish
}

// MACDState classifies the MACD line relative to its signal line.
type MACDState string

const (
	MACDBullish     MACDState = "bullish"
	MACDBearish     MACDState = "bearish"
	MACDNeutral     MACDState = "neutral"
	MACDUnavailable MACDState = "unavailable"
)

// EMAState classifies the fast/slow EMA pair, including the bar on
// which a cross occurred.
type EMAState string

const (
	EMABullishCross EMAState = "bullish_cross"
	EMABullish      EMAState = "bullish"
	EMABearishCross EMAState = "bearish_cross"
	EMABearish      EMAState = "bearish"
	EMANeutral      EMAState = "neutral"
	EMAUnavailable  EMAState = "unavailable"
)

// BurstState is the secondary momentum-burst confirmation derived from
// the goti indicator suite (HMA/VWAO/ATSO crossover agreement).
type BurstState string

const (
	BurstBullish BurstState = "bullish"
	BurstBearish BurstState = "bearish"
	BurstNone    BurstState = "none"
)

// PriceSample is a single tick from the market feed. Ephemeral; it
// only lives long enough to update the per-symbol rolling series.
type PriceSample struct {
	Symbol string
	Time   time.Time
	Price  float64
	Volume float64 // quote volume in USD
}

// IndicatorSnapshot is the full indicator state captured when a signal
// is emitted. Unavailable oscillators default to their neutral reading
// (50) so downstream consumers never special-case missing history.
type IndicatorSnapshot struct {
	RSI        float64
	StochRSI   float64
	MACD       MACDState
	EMA        EMAState
	ATRPercent float64
	RefTrend   TrendState
	Burst      BurstState
}

// Signal is a candidate trade opportunity. Immutable once emitted: the
// score and indicator snapshot are fixed at emission time.
type Signal struct {
	Symbol        string
	Time          time.Time
	Type          SignalType
	Price         float64
	ChangePercent float64 // move over the rolling window, in percent
	VolumeUSD     float64
	Score         float64 // composite confidence, 0-100
	Indicators    IndicatorSnapshot
}

// Features flattens the signal into the vector the confidence model
// trains on and predicts from.
func (s Signal) Features() FeatureVector {
	return FeatureVector{
		SignalType:    s.Type,
		Score:         s.Score,
		ChangePercent: s.ChangePercent,
		VolumeUSD:     s.VolumeUSD,
		RSI:           s.Indicators.RSI,
		StochRSI:      s.Indicators.StochRSI,
		MACD:          s.Indicators.MACD,
		EMA:           s.Indicators.EMA,
		ATRPercent:    s.Indicators.ATRPercent,
		RefTrend:      s.Indicators.RefTrend,
		HourOfDay:     s.Time.UTC().Hour(),
		DayOfWeek:     int(s.Time.UTC().Weekday()),
	}
}

// Decision is the gate's verdict on a signal. Produced exactly once
// per signal and recorded for audit whether approved or not.
type Decision struct {
	Signal         Signal
	Approved       bool
	Reason         string
	Confidence     float64 // model probability, meaningful only when ConfidenceUsed
	ConfidenceUsed bool
	Notes          []string // model explanation, for rejection logs
}

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ExitReason records why a position (or part of it) was sold.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTimeout      ExitReason = "timeout"
	ExitStaleFeed    ExitReason = "stale_feed"
)

// Position is a long position managed through the scaled-exit
// lifecycle. Owned exclusively by the position manager; mutated only
// through its lifecycle operations.
//
// Amount conservation holds at all times:
//
//	RemainingAmount + SoldTP1 + SoldTP2 + SoldTP3 + SoldExit == OriginalAmount
//
// SoldExit is only nonzero after a full close through stop-loss,
// trailing stop, timeout or a stale-feed force close.
type Position struct {
	ID              string
	Symbol          string
	EntryPrice      float64
	EntryTime       time.Time
	OriginalAmount  float64
	RemainingAmount float64
	SoldTP1         float64
	SoldTP2         float64
	SoldTP3         float64
	SoldExit        float64

	StopLossPct       float64 // fraction of entry, after ATR clamp
	StopLossPrice     float64
	TrailingActive    bool
	TrailingStopPrice float64
	TP1Hit            bool
	TP2Hit            bool
	TP3Hit            bool

	Status       PositionStatus
	StaleFlagged bool // feed went quiet while the position was open

	// Entry-time features, carried so the trade record can be built
	// at close without consulting any other component.
	Features FeatureVector
}

// GainPercent returns the unrealized move from entry at the given price.
func (p *Position) GainPercent(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// PositionEventKind tags the outcome of a single price-update evaluation.
type PositionEventKind string

const (
	EventStopLoss     PositionEventKind = "stop_loss"
	EventTrailingStop PositionEventKind = "trailing_stop"
	EventTP1          PositionEventKind = "tp1"
	EventTP2          PositionEventKind = "tp2"
	EventTP3          PositionEventKind = "tp3"
	EventTrailingArm  PositionEventKind = "trailing_armed"
	EventTimeout      PositionEventKind = "timeout"
	EventStaleFlag    PositionEventKind = "stale_flagged"
	EventStaleClose   PositionEventKind = "stale_closed"
)

// PositionEvent is one lifecycle action taken during a price update.
type PositionEvent struct {
	PositionID string
	Symbol     string
	Kind       PositionEventKind
	Price      float64
	Amount     float64 // amount sold, zero for non-sell events
	PnLPercent float64 // realized, for sell events
	Closed     bool    // the event fully closed the position
}

// FeatureVector is the indicator snapshot plus signal metadata used
// for confidence-model training and prediction.
type FeatureVector struct {
	SignalType    SignalType
	Score         float64
	ChangePercent float64
	VolumeUSD     float64
	RSI           float64
	StochRSI      float64
	MACD          MACDState
	EMA           EMAState
	ATRPercent    float64
	RefTrend      TrendState
	HourOfDay     int
	DayOfWeek     int
}

// TradeRecord is the append-only outcome of a fully closed position.
type TradeRecord struct {
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	PnLPercent float64
	Win        bool
	ExitReason ExitReason
	Features   FeatureVector
}
