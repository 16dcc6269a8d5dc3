package position

import (
	"math"
	"testing"
	"time"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/risk"
	"github.com/evdnx/gomentum/testutils"
	"github.com/evdnx/gomentum/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Risk.InitialCapital = 10_000
	return cfg
}

func newTestManager(cfg config.Config, onClose CloseHandler) (*Manager, *risk.Aggregate) {
	log := testutils.NewMockLogger()
	agg := risk.NewAggregate(cfg.Risk, log)
	return NewManager(cfg.Position, cfg.Risk, agg, onClose, log), agg
}

func openAt(t *testing.T, m *Manager, symbol string, entry float64, atrPct float64) *types.Position {
	t.Helper()
	sig := testutils.PassingSignal(symbol)
	sig.Price = entry
	sig.Indicators.ATRPercent = atrPct
	p, err := m.Open(symbol, 800, entry, sig)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return p
}

func conserved(p types.Position) bool {
	total := p.RemainingAmount + p.SoldTP1 + p.SoldTP2 + p.SoldTP3 + p.SoldExit
	return math.Abs(total-p.OriginalAmount) < 1e-9
}

func TestAdaptiveStopClampsToCeiling(t *testing.T) {
	// ATR% 4 with k=2 gives a raw stop of 8%, which must clamp to the
	// 6% ceiling, placing the stop at 94 on a 100 entry.
	cfg := testConfig()
	cfg.Position.ATRStopMultiple = 2
	m, _ := newTestManager(cfg, nil)

	p := openAt(t, m, "SOL", 100, 4)
	if p.StopLossPct != 0.06 {
		t.Fatalf("expected stop pct 0.06, got %v", p.StopLossPct)
	}
	if math.Abs(p.StopLossPrice-94) > 1e-9 {
		t.Fatalf("expected stop at 94, got %v", p.StopLossPrice)
	}
}

func TestAdaptiveStopClampsToFloor(t *testing.T) {
	cfg := testConfig()
	m, _ := newTestManager(cfg, nil)
	p := openAt(t, m, "SOL", 100, 0.5) // raw 0.75%, floor is 2%
	if p.StopLossPct != 0.02 {
		t.Fatalf("expected floor stop 0.02, got %v", p.StopLossPct)
	}
	if p.StopLossPrice >= p.EntryPrice {
		t.Fatal("stop must sit below entry")
	}
}

func TestStopLossClosesPosition(t *testing.T) {
	var record *types.TradeRecord
	cfg := testConfig()
	cfg.Position.ATRStopMultiple = 2
	m, agg := newTestManager(cfg, func(r types.TradeRecord) { record = &r })

	openAt(t, m, "SOL", 100, 4)
	events := m.OnPriceUpdate("SOL", 94, testutils.BaseTime.Add(time.Minute))

	if len(events) != 1 || events[0].Kind != types.EventStopLoss || !events[0].Closed {
		t.Fatalf("expected a closing stop_loss event, got %+v", events)
	}
	if record == nil {
		t.Fatal("close must emit a trade record")
	}
	if record.ExitReason != types.ExitStopLoss {
		t.Fatalf("expected stop_loss exit, got %s", record.ExitReason)
	}
	if math.Abs(record.PnLPercent-(-6)) > 1e-9 {
		t.Fatalf("expected pnl -6%% at the stop, got %v", record.PnLPercent)
	}
	if m.OpenCount() != 0 {
		t.Fatal("position must leave the book")
	}
	if agg.HasOpen("SOL") {
		t.Fatal("risk slot must be released")
	}
	if !agg.OnCooldown("SOL", testutils.BaseTime.Add(2*time.Minute)) {
		t.Fatal("cooldown must start at close")
	}
}

func TestCloseHandlerRunsUnlocked(t *testing.T) {
	// The handler persists to disk in production; it must run with the
	// manager's mutex released. A handler that reads back through the
	// manager would deadlock otherwise.
	var openAfterClose int
	cfg := testConfig()
	cfg.Position.ATRStopMultiple = 2

	var m *Manager
	m, _ = newTestManager(cfg, func(types.TradeRecord) {
		openAfterClose = m.OpenCount()
	})

	openAt(t, m, "SOL", 100, 4)
	events := m.OnPriceUpdate("SOL", 94, testutils.BaseTime.Add(time.Minute))
	if len(events) != 1 || !events[0].Closed {
		t.Fatalf("expected a closing event, got %+v", events)
	}
	if openAfterClose != 0 {
		t.Fatalf("handler must observe the post-close book, got %d open", openAfterClose)
	}
}

func TestTakeProfitLadderFirstStep(t *testing.T) {
	// At +3.2% with a 20% TP1 fraction the remainder must be exactly
	// 80% of the original amount.
	cfg := testConfig()
	cfg.Position.TP1Fraction = 0.20
	cfg.Position.TrailingActivatePct = 50 // keep the trail out of this test
	m, _ := newTestManager(cfg, nil)

	p := openAt(t, m, "SOL", 100, 3)
	events := m.OnPriceUpdate("SOL", 103.2, testutils.BaseTime.Add(time.Minute))

	if len(events) != 1 || events[0].Kind != types.EventTP1 {
		t.Fatalf("expected a single tp1 event, got %+v", events)
	}
	got, ok := m.Get("SOL")
	if !ok {
		t.Fatal("position must stay open after a partial sell")
	}
	if !got.TP1Hit {
		t.Fatal("tp1_hit must be set")
	}
	if math.Abs(got.RemainingAmount-0.8*p.OriginalAmount) > 1e-9 {
		t.Fatalf("expected remaining 0.8x original, got %v of %v",
			got.RemainingAmount, p.OriginalAmount)
	}
	if !conserved(got) {
		t.Fatalf("amount conservation violated: %+v", got)
	}
}

func TestTakeProfitStepsAreMonotonic(t *testing.T) {
	cfg := testConfig()
	cfg.Position.TrailingActivatePct = 50
	m, _ := newTestManager(cfg, nil)
	openAt(t, m, "SOL", 100, 3)

	// First touch of +3% fires TP1.
	m.OnPriceUpdate("SOL", 103, testutils.BaseTime.Add(time.Minute))
	// Dipping and returning must not fire TP1 again.
	m.OnPriceUpdate("SOL", 101, testutils.BaseTime.Add(2*time.Minute))
	events := m.OnPriceUpdate("SOL", 103.5, testutils.BaseTime.Add(3*time.Minute))
	for _, ev := range events {
		if ev.Kind == types.EventTP1 {
			t.Fatal("tp1 fired twice")
		}
	}
}

func TestGapThroughLadderFiresBothPartials(t *testing.T) {
	// A jump straight to +6% crosses TP1 and TP2 on the same tick.
	cfg := testConfig()
	m, _ := newTestManager(cfg, nil)
	p := openAt(t, m, "SOL", 100, 3)

	events := m.OnPriceUpdate("SOL", 106, testutils.BaseTime.Add(time.Minute))
	if len(events) < 2 || events[0].Kind != types.EventTP1 || events[1].Kind != types.EventTP2 {
		t.Fatalf("expected tp1 then tp2, got %+v", events)
	}
	got, _ := m.Get("SOL")
	wantRemaining := p.OriginalAmount * (1 - cfg.Position.TP1Fraction - cfg.Position.TP2Fraction)
	if math.Abs(got.RemainingAmount-wantRemaining) > 1e-9 {
		t.Fatalf("expected remaining %v, got %v", wantRemaining, got.RemainingAmount)
	}
	if !conserved(got) {
		t.Fatalf("amount conservation violated: %+v", got)
	}
}

func TestTP3FullyCloses(t *testing.T) {
	var record *types.TradeRecord
	cfg := testConfig()
	m, _ := newTestManager(cfg, func(r types.TradeRecord) { record = &r })
	openAt(t, m, "SOL", 100, 3)

	events := m.OnPriceUpdate("SOL", 108, testutils.BaseTime.Add(time.Minute))
	last := events[len(events)-1]
	if last.Kind != types.EventTP3 || !last.Closed {
		t.Fatalf("expected closing tp3 event, got %+v", events)
	}
	if record == nil || record.ExitReason != types.ExitTakeProfit || !record.Win {
		t.Fatalf("expected winning take_profit record, got %+v", record)
	}
	if m.OpenCount() != 0 {
		t.Fatal("tp3 must fully close the position")
	}
}

func TestTrailingStopArmsAndRatchets(t *testing.T) {
	cfg := testConfig()
	m, _ := newTestManager(cfg, nil)
	openAt(t, m, "SOL", 100, 3)

	// +2% arms the trail at 1.5% below price.
	events := m.OnPriceUpdate("SOL", 102, testutils.BaseTime.Add(time.Minute))
	found := false
	for _, ev := range events {
		if ev.Kind == types.EventTrailingArm {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected trailing_armed event, got %+v", events)
	}
	p, _ := m.Get("SOL")
	armedAt := p.TrailingStopPrice
	if math.Abs(armedAt-102*0.985) > 1e-9 {
		t.Fatalf("expected trail at %v, got %v", 102*0.985, armedAt)
	}

	// Higher price ratchets the trail up.
	m.OnPriceUpdate("SOL", 102.5, testutils.BaseTime.Add(2*time.Minute))
	p, _ = m.Get("SOL")
	if p.TrailingStopPrice <= armedAt {
		t.Fatalf("trail must ratchet up: %v -> %v", armedAt, p.TrailingStopPrice)
	}
	raised := p.TrailingStopPrice

	// A lower price must never loosen it.
	m.OnPriceUpdate("SOL", 101.5, testutils.BaseTime.Add(3*time.Minute))
	p, _ = m.Get("SOL")
	if p.TrailingStopPrice != raised {
		t.Fatalf("trail loosened: %v -> %v", raised, p.TrailingStopPrice)
	}
}

func TestTrailingStopCloses(t *testing.T) {
	var record *types.TradeRecord
	cfg := testConfig()
	m, _ := newTestManager(cfg, func(r types.TradeRecord) { record = &r })
	openAt(t, m, "SOL", 100, 3)

	m.OnPriceUpdate("SOL", 102.5, testutils.BaseTime.Add(time.Minute))
	events := m.OnPriceUpdate("SOL", 100.5, testutils.BaseTime.Add(2*time.Minute))

	if len(events) != 1 || events[0].Kind != types.EventTrailingStop || !events[0].Closed {
		t.Fatalf("expected trailing_stop close, got %+v", events)
	}
	if record == nil || record.ExitReason != types.ExitTrailingStop {
		t.Fatalf("expected trailing_stop record, got %+v", record)
	}
}

func TestTimeoutClosesStagnantPosition(t *testing.T) {
	var record *types.TradeRecord
	cfg := testConfig()
	m, _ := newTestManager(cfg, func(r types.TradeRecord) { record = &r })
	openAt(t, m, "SOL", 100, 3)

	events := m.OnPriceUpdate("SOL", 100.3, testutils.BaseTime.Add(4*time.Hour))
	if len(events) != 1 || events[0].Kind != types.EventTimeout || !events[0].Closed {
		t.Fatalf("expected timeout close, got %+v", events)
	}
	if record == nil || record.ExitReason != types.ExitTimeout {
		t.Fatalf("expected timeout record, got %+v", record)
	}
}

func TestTimeoutSparesMovingPosition(t *testing.T) {
	cfg := testConfig()
	m, _ := newTestManager(cfg, nil)
	openAt(t, m, "SOL", 100, 3)

	// Old position, but the gain is past the stagnation band (and
	// below every ladder threshold only because TP1 needs +3%).
	events := m.OnPriceUpdate("SOL", 101, testutils.BaseTime.Add(4*time.Hour))
	for _, ev := range events {
		if ev.Kind == types.EventTimeout {
			t.Fatal("a position in motion must not time out")
		}
	}
	if m.OpenCount() != 1 {
		t.Fatal("position should remain open")
	}
}

func TestFlagStaleWithoutForceClose(t *testing.T) {
	cfg := testConfig()
	m, _ := newTestManager(cfg, nil)
	openAt(t, m, "SOL", 100, 3)

	events := m.FlagStale(testutils.BaseTime.Add(time.Hour))
	if len(events) != 1 || events[0].Kind != types.EventStaleFlag {
		t.Fatalf("expected stale_flagged event, got %+v", events)
	}
	p, ok := m.Get("SOL")
	if !ok || !p.StaleFlagged {
		t.Fatal("position must be flagged but stay open")
	}

	// The flag is emitted once, not on every sweep.
	if again := m.FlagStale(testutils.BaseTime.Add(2 * time.Hour)); len(again) != 0 {
		t.Fatalf("expected no repeat events, got %+v", again)
	}
}

func TestFlagStaleForceClose(t *testing.T) {
	var record *types.TradeRecord
	cfg := testConfig()
	cfg.Risk.ForceCloseStale = true
	m, _ := newTestManager(cfg, func(r types.TradeRecord) { record = &r })
	openAt(t, m, "SOL", 100, 3)

	events := m.FlagStale(testutils.BaseTime.Add(time.Hour))
	last := events[len(events)-1]
	if last.Kind != types.EventStaleClose || !last.Closed {
		t.Fatalf("expected stale force close, got %+v", events)
	}
	if record == nil || record.ExitReason != types.ExitStaleFeed {
		t.Fatalf("expected stale_feed record, got %+v", record)
	}
	if m.OpenCount() != 0 {
		t.Fatal("force close must empty the book")
	}
}

func TestOpenRejectsWithoutCapital(t *testing.T) {
	cfg := testConfig()
	m, agg := newTestManager(cfg, nil)
	sig := testutils.PassingSignal("SOL")
	if _, err := m.Open("SOL", agg.AvailableCapital()+1, 100, sig); err == nil {
		t.Fatal("expected open to fail on oversized request")
	}
	if m.OpenCount() != 0 {
		t.Fatal("failed open must not leave state behind")
	}
}
