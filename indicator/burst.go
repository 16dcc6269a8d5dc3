package indicator

import (
	"github.com/evdnx/goti"
	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/types"
)

// burstTracker wraps a goti indicator suite and condenses its three
// crossover oscillators (HMA, VWAO, ATSO) into a single burst state.
// The suite wants OHLCV candles; on a tick feed each sample is fed as a
// degenerate candle with high = low = close.
type burstTracker struct {
	suite *goti.IndicatorSuite
}

func newBurstTracker(cfg config.IndicatorConfig) (*burstTracker, error) {
	ic := goti.DefaultConfig()
	ic.ATSEMAperiod = cfg.ATSEMAPeriod
	suite, err := goti.NewIndicatorSuiteWithConfig(ic)
	if err != nil {
		return nil, err
	}
	return &burstTracker{suite: suite}, nil
}

func (b *burstTracker) Add(price, volume float64) error {
	return b.suite.Add(price, price, price, volume)
}

// State returns bullish or bearish only when all three oscillators
// agree; anything less is none.
func (b *burstTracker) State() types.BurstState {
	hBull, hErrB := b.suite.GetHMA().IsBullishCrossover()
	hBear, hErrS := b.suite.GetHMA().IsBearishCrossover()
	vBull, vErrB := b.suite.GetVWAO().IsBullishCrossover()
	vBear, vErrS := b.suite.GetVWAO().IsBearishCrossover()

	// ATSO scans its raw series for a sign change and cannot fail.
	atBull := b.suite.GetATSO().IsBullishCrossover()
	atBear := b.suite.GetATSO().IsBearishCrossover()

	if hErrB == nil && vErrB == nil && hBull && vBull && atBull {
		return types.BurstBullish
	}
	if hErrS == nil && vErrS == nil && hBear && vBear && atBear {
		return types.BurstBearish
	}
	return types.BurstNone
}
