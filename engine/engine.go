// Package engine wires the full evaluation pipeline: indicator update,
// position lifecycle, trigger detection, gating and entry. Each symbol
// is processed on its own serialized worker so pipelines run
// concurrently across symbols while per-symbol state stays race-free.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/gate"
	"github.com/evdnx/gomentum/indicator"
	"github.com/evdnx/gomentum/learner"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/position"
	"github.com/evdnx/gomentum/risk"
	"github.com/evdnx/gomentum/scorer"
	"github.com/evdnx/gomentum/types"
)

// Storage is the persistence surface the engine needs. *store.Store
// satisfies it.
type Storage interface {
	LoadPositions() ([]*types.Position, error)
	SavePosition(p *types.Position) error
	DeletePosition(symbol string) error
	LoadTradeRecords() ([]types.TradeRecord, error)
	LoadModel() ([]byte, error)
	RecordDecision(d types.Decision) error
	AppendTradeRecord(r types.TradeRecord) error
	SaveModel(blob []byte) error
}

const feedBuffer = 64

// Engine is the top-level evaluation loop.
type Engine struct {
	cfg     config.Config
	log     logger.Logger
	storage Storage

	indicators *indicator.Engine
	scorer     *scorer.Scorer
	gate       *gate.Gate
	positions  *position.Manager
	learner    *learner.Learner
	agg        *risk.Aggregate

	cron *cron.Cron

	mu     sync.Mutex
	feeds  map[string]chan types.PriceSample
	closed bool
	wg     sync.WaitGroup
}

// New builds the engine from configuration, restoring the position
// book, trade history and model from storage.
func New(cfg config.Config, storage Storage, log logger.Logger) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		log:     log,
		storage: storage,
		cron:    cron.New(),
		feeds:   make(map[string]chan types.PriceSample),
	}

	e.agg = risk.NewAggregate(cfg.Risk, log)
	e.learner = learner.New(cfg.Learner, storage, log)
	e.positions = position.NewManager(cfg.Position, cfg.Risk, e.agg, e.learner.RecordOutcome, log)
	e.indicators = indicator.New(cfg.Indicator, cfg.ReferenceSymbol, log)
	e.scorer = scorer.New(cfg.Scorer, log)
	e.gate = gate.New(cfg.Gate, e.agg, e.learner, log)

	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) restore() error {
	records, err := e.storage.LoadTradeRecords()
	if err != nil {
		return fmt.Errorf("load trade history: %w", err)
	}
	blob, err := e.storage.LoadModel()
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	if err := e.learner.Restore(records, blob); err != nil {
		return err
	}

	book, err := e.storage.LoadPositions()
	if err != nil {
		return fmt.Errorf("load position book: %w", err)
	}
	if err := e.agg.Restore(book); err != nil {
		return fmt.Errorf("restore risk state: %w", err)
	}
	e.positions.Restore(book, time.Now().UTC())

	e.log.Info("state restored",
		logger.Int("open_positions", len(book)),
		logger.Int("trade_records", len(records)),
		logger.Bool("model_trained", e.learner.Trained()))
	return nil
}

// Start launches the periodic retrain and stale-feed sweeps.
func (e *Engine) Start() error {
	retrainSpec := "@every " + e.cfg.Learner.RetrainInterval.Std().String()
	if _, err := e.cron.AddFunc(retrainSpec, func() {
		if _, err := e.learner.Retrain(); err != nil {
			e.log.Warn("scheduled retrain failed", logger.Err(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule retrain: %w", err)
	}
	if _, err := e.cron.AddFunc("@every 1m", e.sweepStale); err != nil {
		return fmt.Errorf("schedule stale sweep: %w", err)
	}
	e.cron.Start()
	e.log.Info("engine started",
		logger.String("reference_symbol", e.cfg.ReferenceSymbol),
		logger.String("retrain_every", e.cfg.Learner.RetrainInterval.String()))
	return nil
}

// OnTick routes one price sample to its symbol's worker. Samples
// arriving after Stop are dropped.
func (e *Engine) OnTick(s types.PriceSample) {
	if s.Symbol == "" || s.Price <= 0 {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	ch, ok := e.feeds[s.Symbol]
	if !ok {
		ch = make(chan types.PriceSample, feedBuffer)
		e.feeds[s.Symbol] = ch
		e.wg.Add(1)
		go e.worker(ch)
	}
	// The send must stay under the mutex: Stop closes the feed channels
	// under the same lock, and a send racing that close would panic. The
	// send never blocks, so holding the lock here is cheap.
	dropped := false
	select {
	case ch <- s:
	default:
		// The worker is behind; newest data matters more than a
		// complete series, so the tick is dropped.
		dropped = true
	}
	e.mu.Unlock()

	if dropped {
		e.log.Debug("feed buffer full, tick dropped", logger.String("symbol", s.Symbol))
	}
}

// Stop drains in-flight evaluations and halts the schedulers. Position
// state is already durable; nothing is force-closed.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, ch := range e.feeds {
		close(ch)
	}
	e.mu.Unlock()

	e.wg.Wait()
	<-e.cron.Stop().Done()
	e.log.Info("engine stopped",
		logger.Int("open_positions", e.positions.OpenCount()))
}

func (e *Engine) worker(ch chan types.PriceSample) {
	defer e.wg.Done()
	for s := range ch {
		e.process(s)
	}
}

// process is the per-symbol pipeline: indicators first, then the open
// position's exit ladder, then trigger detection and gating.
func (e *Engine) process(s types.PriceSample) {
	upd := e.indicators.Process(s)

	events := e.positions.OnPriceUpdate(s.Symbol, s.Price, s.Time)
	e.persistEvents(s.Symbol, events)

	sig := e.scorer.Evaluate(upd)
	if sig == nil {
		return
	}
	decision := e.gate.Evaluate(*sig)
	if err := e.storage.RecordDecision(decision); err != nil {
		e.log.Error("record decision failed",
			logger.String("symbol", s.Symbol), logger.Err(err))
	}
	if !decision.Approved {
		return
	}

	size := e.agg.PositionSize()
	if size <= 0 {
		e.log.Warn("approved signal with no deployable capital",
			logger.String("symbol", s.Symbol))
		return
	}
	p, err := e.positions.Open(s.Symbol, size, s.Price, *sig)
	if err != nil {
		// A parallel pipeline can win the last slot between the gate
		// check and the acquire; that is an expected race, not a fault.
		e.log.Warn("open failed after approval",
			logger.String("symbol", s.Symbol), logger.Err(err))
		return
	}
	if err := e.storage.SavePosition(p); err != nil {
		e.log.Error("persist position failed",
			logger.String("symbol", s.Symbol), logger.Err(err))
	}
}

// persistEvents mirrors lifecycle mutations to storage: closes delete
// the book row, everything else rewrites it.
func (e *Engine) persistEvents(symbol string, events []types.PositionEvent) {
	if len(events) == 0 {
		return
	}
	closed := false
	for _, ev := range events {
		if ev.Closed {
			closed = true
		}
	}
	if closed {
		if err := e.storage.DeletePosition(symbol); err != nil {
			e.log.Error("delete closed position failed",
				logger.String("symbol", symbol), logger.Err(err))
		}
		return
	}
	if p, ok := e.positions.Get(symbol); ok {
		if err := e.storage.SavePosition(&p); err != nil {
			e.log.Error("persist position failed",
				logger.String("symbol", symbol), logger.Err(err))
		}
	}
}

// sweepStale flags positions whose feed went quiet and persists any
// resulting state changes.
func (e *Engine) sweepStale() {
	events := e.positions.FlagStale(time.Now().UTC())
	bySymbol := make(map[string][]types.PositionEvent)
	for _, ev := range events {
		bySymbol[ev.Symbol] = append(bySymbol[ev.Symbol], ev)
	}
	for symbol, evs := range bySymbol {
		e.persistEvents(symbol, evs)
	}
}

// Learner exposes the learner for operational triggers.
func (e *Engine) Learner() *learner.Learner { return e.learner }

// Risk exposes the risk aggregate for read-only inspection.
func (e *Engine) Risk() *risk.Aggregate { return e.agg }
