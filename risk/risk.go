// Package risk owns the portfolio-level limits: position slots,
// available capital, the daily-loss cutoff and per-symbol cooldowns.
// The Aggregate is the only mutable state shared across symbol
// pipelines, so every access goes through its mutex.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/metrics"
	"github.com/evdnx/gomentum/types"
)

var (
	ErrNoSlots             = errors.New("no position slots available")
	ErrSymbolOpen          = errors.New("position already open for symbol")
	ErrOnCooldown          = errors.New("symbol on cooldown")
	ErrDailyLossExceeded   = errors.New("daily loss limit reached")
	ErrInsufficientCapital = errors.New("insufficient available capital")
)

// CalcSize returns the notional dollars to commit to a new position:
// the equity fraction cap, bounded by what is actually available,
// floored to cents.
func CalcSize(equity, available, maxFraction float64) float64 {
	size := equity * maxFraction
	if size > available {
		size = available
	}
	if size <= 0 {
		return 0
	}
	return math.Floor(size*100) / 100
}

// Aggregate tracks open-position slots, capital and loss limits.
// Safe for concurrent use.
type Aggregate struct {
	cfg config.RiskConfig
	log logger.Logger

	mu               sync.Mutex
	availableCapital float64
	openExposure     float64 // entry-priced capital committed to open positions
	openSymbols      map[string]bool
	cooldownUntil    map[string]time.Time

	dailyPnL float64
	dailyDay time.Time // UTC midnight of the day dailyPnL accumulates for
}

// NewAggregate creates an aggregate holding the full initial capital.
func NewAggregate(cfg config.RiskConfig, log logger.Logger) *Aggregate {
	a := &Aggregate{
		cfg:              cfg,
		log:              log,
		availableCapital: cfg.InitialCapital,
		openSymbols:      make(map[string]bool),
		cooldownUntil:    make(map[string]time.Time),
	}
	metrics.EquityGauge.Set(cfg.InitialCapital)
	return a
}

// Restore rebuilds slot and exposure state from a persisted position
// book after a restart. Capital committed to the restored positions is
// taken out of the available pool at entry prices.
func (a *Aggregate) Restore(positions []*types.Position) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range positions {
		if p.Status != types.PositionOpen {
			continue
		}
		if a.openSymbols[p.Symbol] {
			return fmt.Errorf("duplicate open position for %s in persisted book", p.Symbol)
		}
		cost := p.RemainingAmount * p.EntryPrice
		a.availableCapital -= cost
		a.openExposure += cost
		a.openSymbols[p.Symbol] = true
	}
	if a.availableCapital < 0 {
		return fmt.Errorf("persisted book exceeds capital: available %.2f", a.availableCapital)
	}
	a.publishEquity()
	return nil
}

// PositionSize returns the notional dollars a new position may take
// right now.
func (a *Aggregate) PositionSize() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return CalcSize(a.equityLocked(), a.availableCapital, a.cfg.MaxPositionFraction)
}

// Acquire atomically claims a slot and the given capital for symbol.
// All limits are re-checked under the lock so two pipelines cannot
// race past the same last slot.
func (a *Aggregate) Acquire(symbol string, size float64, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.openSymbols[symbol] {
		return ErrSymbolOpen
	}
	if until, ok := a.cooldownUntil[symbol]; ok && now.Before(until) {
		return ErrOnCooldown
	}
	if len(a.openSymbols) >= a.cfg.MaxConcurrentPositions {
		return ErrNoSlots
	}
	if a.dailyLossExceededLocked(now) {
		return ErrDailyLossExceeded
	}
	if size <= 0 || size > a.availableCapital {
		return ErrInsufficientCapital
	}

	a.availableCapital -= size
	a.openExposure += size
	a.openSymbols[symbol] = true
	a.publishEquity()
	return nil
}

// ReleasePartial returns the proceeds of a partial sell to the capital
// pool. costBasis is the entry-priced share of the sold amount, which
// leaves the open exposure.
func (a *Aggregate) ReleasePartial(symbol string, proceeds, costBasis float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.availableCapital += proceeds
	a.openExposure -= costBasis
	a.accumulateDailyLocked(proceeds-costBasis, time.Now().UTC())
	a.publishEquity()
}

// Release frees the symbol's slot after a full close, returns the final
// proceeds, starts the cooldown and folds the realized result into the
// daily tally.
func (a *Aggregate) Release(symbol string, proceeds, costBasis float64, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.openSymbols[symbol] {
		a.log.Warn("release for symbol without open slot", logger.String("symbol", symbol))
		return
	}
	delete(a.openSymbols, symbol)
	a.availableCapital += proceeds
	a.openExposure -= costBasis
	a.cooldownUntil[symbol] = now.Add(a.cfg.Cooldown.Std())
	a.accumulateDailyLocked(proceeds-costBasis, now)
	a.publishEquity()
}

// OnCooldown reports whether symbol is still locked out after a close.
func (a *Aggregate) OnCooldown(symbol string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	until, ok := a.cooldownUntil[symbol]
	return ok && now.Before(until)
}

// HasOpen reports whether symbol currently holds a slot.
func (a *Aggregate) HasOpen(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openSymbols[symbol]
}

// SlotsAvailable reports whether a new position may be opened at all.
func (a *Aggregate) SlotsAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.openSymbols) < a.cfg.MaxConcurrentPositions
}

// DailyLossExceeded reports whether today's realized losses passed the
// configured cutoff.
func (a *Aggregate) DailyLossExceeded(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dailyLossExceededLocked(now)
}

// Equity returns available capital plus open exposure at entry prices.
func (a *Aggregate) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityLocked()
}

// AvailableCapital returns the uncommitted capital.
func (a *Aggregate) AvailableCapital() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.availableCapital
}

func (a *Aggregate) equityLocked() float64 {
	return a.availableCapital + a.openExposure
}

func (a *Aggregate) dailyLossExceededLocked(now time.Time) bool {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(a.dailyDay) {
		return false // new day, tally not rolled yet
	}
	lossPct := -a.dailyPnL / a.cfg.InitialCapital * 100
	return lossPct >= a.cfg.MaxDailyLossPct
}

func (a *Aggregate) accumulateDailyLocked(pnl float64, now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(a.dailyDay) {
		a.dailyDay = day
		a.dailyPnL = 0
	}
	a.dailyPnL += pnl
}

func (a *Aggregate) publishEquity() {
	metrics.EquityGauge.Set(a.equityLocked())
}
