package testutils

import (
	"time"

	"github.com/evdnx/gomentum/types"
)

// BaseTime is a fixed reference instant so tests stay deterministic.
var BaseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// Samples turns a price slice into a tick sequence for one symbol,
// one minute apart, all at the given volume.
func Samples(symbol string, prices []float64, volume float64) []types.PriceSample {
	out := make([]types.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = types.PriceSample{
			Symbol: symbol,
			Time:   BaseTime.Add(time.Duration(i) * time.Minute),
			Price:  p,
			Volume: volume,
		}
	}
	return out
}

// RampPrices generates n prices climbing linearly from start by
// totalPct percent. A gentle ramp keeps oscillators out of their
// extreme bands.
func RampPrices(start, totalPct float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start * (1 + totalPct/100*float64(i)/float64(n-1))
	}
	return out
}

// FlatPrices generates n identical prices.
func FlatPrices(price float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// PassingSignal returns a signal that clears every hard filter with
// the default gate configuration. Tests flip individual fields to
// exercise one filter at a time.
func PassingSignal(symbol string) types.Signal {
	return types.Signal{
		Symbol:        symbol,
		Time:          BaseTime,
		Type:          types.SignalBreakout,
		Price:         100,
		ChangePercent: 5,
		VolumeUSD:     500_000,
		Score:         80,
		Indicators: types.IndicatorSnapshot{
			RSI:        45,
			StochRSI:   40,
			MACD:       types.MACDBullish,
			EMA:        types.EMABullish,
			ATRPercent: 3,
			RefTrend:   types.TrendBullish,
			Burst:      types.BurstNone,
		},
	}
}

// WinRecord builds a profitable trade record from a passing signal.
func WinRecord(symbol string, pnl float64) types.TradeRecord {
	sig := PassingSignal(symbol)
	return types.TradeRecord{
		Symbol:     symbol,
		EntryTime:  BaseTime,
		ExitTime:   BaseTime.Add(2 * time.Hour),
		EntryPrice: sig.Price,
		ExitPrice:  sig.Price * (1 + pnl/100),
		PnLPercent: pnl,
		Win:        pnl > 0,
		ExitReason: types.ExitTakeProfit,
		Features:   sig.Features(),
	}
}

// LossRecord builds a losing trade record with weak entry features,
// so learned patterns can tell the two populations apart.
func LossRecord(symbol string, pnl float64) types.TradeRecord {
	sig := PassingSignal(symbol)
	sig.Score = 55
	sig.Indicators.RSI = 66
	sig.Indicators.StochRSI = 72
	sig.Indicators.MACD = types.MACDNeutral
	sig.Indicators.EMA = types.EMABearish
	sig.Indicators.RefTrend = types.TrendBearish
	return types.TradeRecord{
		Symbol:     symbol,
		EntryTime:  BaseTime,
		ExitTime:   BaseTime.Add(90 * time.Minute),
		EntryPrice: sig.Price,
		ExitPrice:  sig.Price * (1 + pnl/100),
		PnLPercent: pnl,
		Win:        pnl > 0,
		ExitReason: types.ExitStopLoss,
		Features:   sig.Features(),
	}
}
