// Package position manages the scaled-exit lifecycle of open
// positions: the adaptive stop, the three-step take-profit ladder, the
// trailing stop and the stagnation timeout. The Manager is the sole
// owner of position state; everything else sees immutable copies and
// events.
package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/metrics"
	"github.com/evdnx/gomentum/risk"
	"github.com/evdnx/gomentum/types"
)

// CloseHandler receives the trade record of every fully closed
// position, on the caller's goroutine.
type CloseHandler func(types.TradeRecord)

type lastTick struct {
	price float64
	time  time.Time
}

// Manager owns the open position book. Safe for concurrent use.
type Manager struct {
	cfg     config.PositionConfig
	riskCfg config.RiskConfig
	agg     *risk.Aggregate
	log     logger.Logger
	onClose CloseHandler

	mu        sync.Mutex
	positions map[string]*types.Position // by symbol, open only
	lastTicks map[string]lastTick
}

// NewManager creates a Manager. onClose may be nil.
func NewManager(cfg config.PositionConfig, riskCfg config.RiskConfig, agg *risk.Aggregate, onClose CloseHandler, log logger.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		riskCfg:   riskCfg,
		agg:       agg,
		log:       log,
		onClose:   onClose,
		positions: make(map[string]*types.Position),
		lastTicks: make(map[string]lastTick),
	}
}

// Restore loads a persisted position book after restart. The risk
// aggregate must be restored from the same book by the caller.
func (m *Manager) Restore(book []*types.Position, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range book {
		if p.Status != types.PositionOpen {
			continue
		}
		cp := *p
		m.positions[p.Symbol] = &cp
		m.lastTicks[p.Symbol] = lastTick{price: p.EntryPrice, time: now}
	}
	metrics.PositionsOpen.Set(float64(len(m.positions)))
}

// StopPercent returns the adaptive stop distance as a fraction of
// entry: the ATR multiple, clamped to the configured floor and ceiling
// so volatile symbols get proportionally wider but bounded stops.
func (m *Manager) StopPercent(atrPercent float64) float64 {
	stop := m.cfg.ATRStopMultiple * atrPercent / 100
	if stop < m.cfg.StopFloorPct {
		stop = m.cfg.StopFloorPct
	}
	if stop > m.cfg.StopCeilingPct {
		stop = m.cfg.StopCeilingPct
	}
	return stop
}

// Open claims a risk slot and creates the position. size is notional
// dollars; the stop is placed from the signal's ATR reading.
func (m *Manager) Open(symbol string, size, entryPrice float64, sig types.Signal) (*types.Position, error) {
	if entryPrice <= 0 {
		return nil, fmt.Errorf("open %s: entry price %f must be positive", symbol, entryPrice)
	}
	if err := m.agg.Acquire(symbol, size, sig.Time); err != nil {
		return nil, fmt.Errorf("open %s: %w", symbol, err)
	}

	stopPct := m.StopPercent(sig.Indicators.ATRPercent)
	amount := size / entryPrice
	p := &types.Position{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		EntryPrice:      entryPrice,
		EntryTime:       sig.Time,
		OriginalAmount:  amount,
		RemainingAmount: amount,
		StopLossPct:     stopPct,
		StopLossPrice:   entryPrice * (1 - stopPct),
		Status:          types.PositionOpen,
		Features:        sig.Features(),
	}

	m.mu.Lock()
	m.positions[symbol] = p
	m.lastTicks[symbol] = lastTick{price: entryPrice, time: sig.Time}
	open := len(m.positions)
	m.mu.Unlock()

	metrics.PositionsOpen.Set(float64(open))
	m.log.Info("position opened",
		logger.String("symbol", symbol),
		logger.String("id", p.ID),
		logger.Float64("entry", entryPrice),
		logger.Float64("size_usd", size),
		logger.Float64("stop_pct", stopPct*100))
	cp := *p
	return &cp, nil
}

// OnPriceUpdate runs the exit ladder for the symbol's open position,
// if any, and returns the lifecycle events taken. Evaluation order is
// fixed: stop, trailing stop, TP1, TP2, TP3, trailing activation,
// trailing ratchet, timeout. A single tick may fire several ladder
// steps.
func (m *Manager) OnPriceUpdate(symbol string, price float64, now time.Time) []types.PositionEvent {
	m.mu.Lock()
	events, records := m.updateLocked(symbol, price, now)
	m.mu.Unlock()
	m.dispatch(records)
	return events
}

func (m *Manager) updateLocked(symbol string, price float64, now time.Time) ([]types.PositionEvent, []types.TradeRecord) {
	p, ok := m.positions[symbol]
	if !ok {
		return nil, nil
	}
	m.lastTicks[symbol] = lastTick{price: price, time: now}

	var events []types.PositionEvent
	var records []types.TradeRecord
	gain := p.GainPercent(price)

	if price <= p.StopLossPrice {
		ev, rec := m.closeLocked(p, price, now, types.ExitStopLoss)
		return append(events, ev), append(records, rec)
	}
	if p.TrailingActive && price <= p.TrailingStopPrice {
		ev, rec := m.closeLocked(p, price, now, types.ExitTrailingStop)
		return append(events, ev), append(records, rec)
	}

	if !p.TP1Hit && gain >= m.cfg.TP1Pct {
		amount := p.OriginalAmount * m.cfg.TP1Fraction
		p.SoldTP1 = amount
		p.TP1Hit = true
		events = append(events, m.sellLocked(p, amount, price, types.EventTP1))
	}
	if !p.TP2Hit && gain >= m.cfg.TP2Pct {
		amount := p.OriginalAmount * m.cfg.TP2Fraction
		p.SoldTP2 = amount
		p.TP2Hit = true
		events = append(events, m.sellLocked(p, amount, price, types.EventTP2))
	}
	if gain >= m.cfg.TP3Pct {
		p.TP3Hit = true
		ev, rec := m.closeLocked(p, price, now, types.ExitTakeProfit)
		return append(events, ev), append(records, rec)
	}

	if !p.TrailingActive && gain >= m.cfg.TrailingActivatePct {
		p.TrailingActive = true
		p.TrailingStopPrice = price * (1 - m.cfg.TrailingPct)
		events = append(events, types.PositionEvent{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Kind:       types.EventTrailingArm,
			Price:      price,
		})
	} else if p.TrailingActive {
		// Ratchet only, never loosen.
		if ts := price * (1 - m.cfg.TrailingPct); ts > p.TrailingStopPrice {
			p.TrailingStopPrice = ts
		}
	}

	if now.Sub(p.EntryTime) >= m.cfg.Timeout.Std() && abs(gain) < m.cfg.StagnantPct {
		ev, rec := m.closeLocked(p, price, now, types.ExitTimeout)
		events = append(events, ev)
		records = append(records, rec)
	}
	return events, records
}

// FlagStale marks open positions whose feed has gone quiet and, when
// force-close is configured, closes them at the last known price.
// Returns the events taken.
func (m *Manager) FlagStale(now time.Time) []types.PositionEvent {
	m.mu.Lock()
	var events []types.PositionEvent
	var records []types.TradeRecord
	for symbol, p := range m.positions {
		lt, ok := m.lastTicks[symbol]
		if !ok || now.Sub(lt.time) < m.riskCfg.StaleAfter.Std() {
			continue
		}
		if !p.StaleFlagged {
			p.StaleFlagged = true
			events = append(events, types.PositionEvent{
				PositionID: p.ID,
				Symbol:     symbol,
				Kind:       types.EventStaleFlag,
				Price:      lt.price,
			})
			m.log.Warn("position feed stale",
				logger.String("symbol", symbol),
				logger.Duration("silent_for", now.Sub(lt.time)))
		}
		if m.riskCfg.ForceCloseStale {
			ev, rec := m.closeLocked(p, lt.price, now, types.ExitStaleFeed)
			events = append(events, ev)
			records = append(records, rec)
		}
	}
	m.mu.Unlock()
	m.dispatch(records)
	return events
}

// Get returns a copy of the symbol's open position.
func (m *Manager) Get(symbol string) (types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *p, true
}

// Open positions, copied, for persistence snapshots.
func (m *Manager) Snapshot() []*types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// OpenCount returns the number of open positions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// sellLocked executes a partial sell and releases the proceeds back to
// the capital pool.
func (m *Manager) sellLocked(p *types.Position, amount, price float64, kind types.PositionEventKind) types.PositionEvent {
	p.RemainingAmount -= amount
	proceeds := amount * price
	costBasis := amount * p.EntryPrice
	m.agg.ReleasePartial(p.Symbol, proceeds, costBasis)

	pnl := p.GainPercent(price)
	m.log.Info("partial take-profit",
		logger.String("symbol", p.Symbol),
		logger.String("step", string(kind)),
		logger.Float64("price", price),
		logger.Float64("pnl_pct", pnl))
	return types.PositionEvent{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Kind:       kind,
		Price:      price,
		Amount:     amount,
		PnLPercent: pnl,
	}
}

// closeLocked sells the remaining amount, frees the slot and starts the
// cooldown. The trade record is returned, not delivered: the close
// handler may hit disk and must run with the manager unlocked.
func (m *Manager) closeLocked(p *types.Position, price float64, now time.Time, reason types.ExitReason) (types.PositionEvent, types.TradeRecord) {
	amount := p.RemainingAmount
	if reason == types.ExitTakeProfit {
		p.SoldTP3 = amount
	} else {
		p.SoldExit = amount
	}
	p.RemainingAmount = 0
	p.Status = types.PositionClosed

	proceeds := amount * price
	costBasis := amount * p.EntryPrice
	m.agg.Release(p.Symbol, proceeds, costBasis, now)
	delete(m.positions, p.Symbol)
	metrics.PositionsOpen.Set(float64(len(m.positions)))
	metrics.TradesClosed.WithLabelValues(string(reason)).Inc()

	pnl := p.GainPercent(price)
	m.log.Info("position closed",
		logger.String("symbol", p.Symbol),
		logger.String("reason", string(reason)),
		logger.Float64("exit", price),
		logger.Float64("pnl_pct", pnl))

	rec := types.TradeRecord{
		Symbol:     p.Symbol,
		EntryTime:  p.EntryTime,
		ExitTime:   now,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		PnLPercent: pnl,
		Win:        pnl > 0,
		ExitReason: reason,
		Features:   p.Features,
	}

	kind := types.PositionEventKind(reason)
	switch reason {
	case types.ExitTakeProfit:
		kind = types.EventTP3
	case types.ExitStopLoss:
		kind = types.EventStopLoss
	case types.ExitTrailingStop:
		kind = types.EventTrailingStop
	case types.ExitTimeout:
		kind = types.EventTimeout
	case types.ExitStaleFeed:
		kind = types.EventStaleClose
	}
	return types.PositionEvent{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Kind:       kind,
		Price:      price,
		Amount:     amount,
		PnLPercent: pnl,
		Closed:     true,
	}, rec
}

// dispatch delivers trade records to the close handler with the
// manager unlocked.
func (m *Manager) dispatch(records []types.TradeRecord) {
	if m.onClose == nil {
		return
	}
	for _, r := range records {
		m.onClose(r)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
