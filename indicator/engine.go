// Package indicator maintains per-symbol rolling price series and
// derives the oscillator snapshot every candidate signal is scored and
// gated on. It owns all indicator state; callers only ever see
// immutable Update values.
package indicator

import (
	"sync"
	"time"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/types"
)

// Update is the engine's output for one processed price sample. It
// bundles the indicator snapshot with the window statistics trigger
// detection needs, so the scorer never touches mutable series state.
type Update struct {
	Symbol        string
	Time          time.Time
	Price         float64
	VolumeUSD     float64
	AvgVolumeUSD  float64
	ChangePercent float64 // move over the rolling window
	Ready         bool    // enough history for signal evaluation
	Snapshot      types.IndicatorSnapshot
}

// Engine computes streaming indicators over bounded per-symbol windows.
// Safe for concurrent use.
type Engine struct {
	cfg       config.IndicatorConfig
	refSymbol string
	log       logger.Logger

	mu     sync.Mutex
	series map[string]*RollingSeries
	bursts map[string]*burstTracker

	refTrend types.TrendState
}

// New creates an engine. refSymbol names the market-regime reference
// asset whose trend gates counter-trend entries.
func New(cfg config.IndicatorConfig, refSymbol string, log logger.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		refSymbol: refSymbol,
		log:       log,
		series:    make(map[string]*RollingSeries),
		bursts:    make(map[string]*burstTracker),
		refTrend:  types.TrendUnavailable,
	}
}

// historySize returns the series capacity: the configured override or
// the longest indicator lookback.
func (e *Engine) historySize() int {
	if e.cfg.HistorySize > 0 {
		return e.cfg.HistorySize
	}
	n := e.cfg.RSIPeriod + e.cfg.StochPeriod + 1
	if m := e.cfg.MACDSlow + e.cfg.MACDSignal + 5; m > n {
		n = m
	}
	if m := e.cfg.EMASlow + 2; m > n {
		n = m
	}
	if m := e.cfg.ATRPeriod + 1; m > n {
		n = m
	}
	return n
}

// minReadyLen is the history below which no signal is evaluated.
func (e *Engine) minReadyLen() int { return e.cfg.RSIPeriod + 1 }

// Process folds one price sample into the symbol's series and returns
// the resulting snapshot. Samples for the reference symbol additionally
// refresh the shared trend state.
func (e *Engine) Process(s types.PriceSample) Update {
	e.mu.Lock()
	defer e.mu.Unlock()

	rs, ok := e.series[s.Symbol]
	if !ok {
		rs = NewRollingSeries(e.historySize())
		e.series[s.Symbol] = rs
	}
	rs.Add(s.Price, s.Volume)

	if s.Symbol == e.refSymbol && rs.Len() >= e.minReadyLen() {
		e.refTrend = classifyTrend(rs.ChangePercent())
	}

	prices := rs.Prices()
	snap := types.IndicatorSnapshot{
		RSI:      50,
		StochRSI: 50,
		MACD:     types.MACDUnavailable,
		EMA:      types.EMAUnavailable,
		RefTrend: e.refTrend,
		Burst:    types.BurstNone,
	}
	if v, ok := wilderRSI(prices, e.cfg.RSIPeriod); ok {
		snap.RSI = v
	}
	if v, ok := stochRSI(prices, e.cfg.RSIPeriod, e.cfg.StochPeriod); ok {
		snap.StochRSI = v
	}
	snap.MACD = macdState(prices, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	snap.EMA = emaState(prices, e.cfg.EMAFast, e.cfg.EMASlow)
	if v, ok := atrPercent(prices, e.cfg.ATRPeriod); ok {
		snap.ATRPercent = v
	}
	if e.cfg.BurstConfirmation {
		snap.Burst = e.updateBurst(s)
	}

	return Update{
		Symbol:        s.Symbol,
		Time:          s.Time,
		Price:         s.Price,
		VolumeUSD:     s.Volume,
		AvgVolumeUSD:  rs.AvgVolume(),
		ChangePercent: rs.ChangePercent(),
		Ready:         rs.Len() >= e.minReadyLen(),
		Snapshot:      snap,
	}
}

// RefTrend returns the current reference-asset trend.
func (e *Engine) RefTrend() types.TrendState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refTrend
}

func (e *Engine) updateBurst(s types.PriceSample) types.BurstState {
	bt, ok := e.bursts[s.Symbol]
	if !ok {
		var err error
		bt, err = newBurstTracker(e.cfg)
		if err != nil {
			e.log.Warn("burst tracker init failed",
				logger.String("symbol", s.Symbol), logger.Err(err))
			return types.BurstNone
		}
		e.bursts[s.Symbol] = bt
	}
	if err := bt.Add(s.Price, s.Volume); err != nil {
		e.log.Debug("burst suite add failed",
			logger.String("symbol", s.Symbol), logger.Err(err))
		return types.BurstNone
	}
	return bt.State()
}
