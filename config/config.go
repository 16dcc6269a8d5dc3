// Package config defines all tunable parameters of the engine and the
// YAML/environment loading path. Validation runs before anything
// trades so a bad configuration surfaces as a clear startup error.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// IndicatorConfig holds periods for the streaming indicator engine.
type IndicatorConfig struct {
	RSIPeriod   int `yaml:"rsi_period"`   // default 14
	StochPeriod int `yaml:"stoch_period"` // StochRSI lookback over the RSI series
	MACDFast    int `yaml:"macd_fast"`
	MACDSlow    int `yaml:"macd_slow"`
	MACDSignal  int `yaml:"macd_signal"`
	EMAFast     int `yaml:"ema_fast"`
	EMASlow     int `yaml:"ema_slow"`
	ATRPeriod   int `yaml:"atr_period"`
	HistorySize int `yaml:"history_size"` // rolling series capacity; 0 = derive from longest lookback

	// BurstConfirmation enables the secondary goti crossover suite.
	BurstConfirmation bool `yaml:"burst_confirmation"`
	ATSEMAPeriod      int  `yaml:"ats_ema_period"`
}

// ScorerConfig holds trigger thresholds and score-band boundaries.
type ScorerConfig struct {
	BreakoutThresholdPct  float64 `yaml:"breakout_threshold_pct"`  // window move that counts as a breakout
	VolumeSpikeMultiplier float64 `yaml:"volume_spike_multiplier"` // multiple of rolling average volume
	MinTriggerVolumeUSD   float64 `yaml:"min_trigger_volume_usd"`  // absolute floor for any trigger

	HealthyChangeMin float64 `yaml:"healthy_change_min"` // lower edge of the momentum sweet spot
	HealthyChangeMax float64 `yaml:"healthy_change_max"`
	LateChangeMax    float64 `yaml:"late_change_max"` // beyond this the move is pump risk
}

// VolumeTier maps a composite-score floor to the minimum volume that
// score is allowed to trade on. Higher conviction substitutes, down to
// a configured floor, for liquidity depth.
type VolumeTier struct {
	MinScore     float64 `yaml:"min_score"`
	MinVolumeUSD float64 `yaml:"min_volume_usd"`
}

// GateConfig holds the decision gate's hard-filter bounds.
type GateConfig struct {
	MinScore                   float64      `yaml:"min_score"`
	VolumeSpikeScoreConcession float64      `yaml:"volume_spike_score_concession"` // spikes are early; they get a small discount
	VolumeTiers                []VolumeTier `yaml:"volume_tiers"`
	VolumeFloorUSD             float64      `yaml:"volume_floor_usd"`

	RSIMin      float64 `yaml:"rsi_min"`
	RSIMax      float64 `yaml:"rsi_max"`
	StochRSIMax float64 `yaml:"stoch_rsi_max"`

	ChangeMinPct  float64 `yaml:"change_min_pct"`
	ChangeMaxPct  float64 `yaml:"change_max_pct"`
	ATRMaxPercent float64 `yaml:"atr_max_percent"`

	// CounterTrendOverrideScore: a volume-spike signal at or above this
	// score bypasses the reference-trend filter (and only that filter).
	CounterTrendOverrideScore float64 `yaml:"counter_trend_override_score"`
}

// RiskConfig holds the portfolio-level limits owned by the risk aggregate.
type RiskConfig struct {
	InitialCapital         float64  `yaml:"initial_capital"`
	MaxConcurrentPositions int      `yaml:"max_concurrent_positions"`
	MaxPositionFraction    float64  `yaml:"max_position_fraction"` // of total equity, per position
	MaxDailyLossPct        float64  `yaml:"max_daily_loss_pct"`    // halt new entries past this daily drawdown
	Cooldown               Duration `yaml:"cooldown"`              // per-symbol lockout after a close
	StaleAfter             Duration `yaml:"stale_after"`           // feed silence before an open position is flagged
	ForceCloseStale        bool     `yaml:"force_close_stale"`     // close flagged positions at last known price
}

// PositionConfig holds the scaled-exit lifecycle parameters.
type PositionConfig struct {
	ATRStopMultiple float64 `yaml:"atr_stop_multiple"` // k in stop_pct = clamp(k*ATR%, floor, ceiling)
	StopFloorPct    float64 `yaml:"stop_floor_pct"`    // fraction, e.g. 0.02
	StopCeilingPct  float64 `yaml:"stop_ceiling_pct"`

	TP1Pct      float64 `yaml:"tp1_pct"` // gain percent thresholds
	TP1Fraction float64 `yaml:"tp1_fraction"`
	TP2Pct      float64 `yaml:"tp2_pct"`
	TP2Fraction float64 `yaml:"tp2_fraction"`
	TP3Pct      float64 `yaml:"tp3_pct"` // full close

	TrailingActivatePct float64 `yaml:"trailing_activate_pct"` // gain percent that arms the trail
	TrailingPct         float64 `yaml:"trailing_pct"`          // fraction trailed below the high

	Timeout     Duration `yaml:"timeout"`      // stagnation window
	StagnantPct float64  `yaml:"stagnant_pct"` // |gain%| under this counts as stagnant
}

// LearnerConfig holds confidence-model training parameters.
type LearnerConfig struct {
	MinSamples      int      `yaml:"min_samples"`      // below this the ML gate is a pass-through
	RetrainInterval Duration `yaml:"retrain_interval"` // periodic trigger
	RetrainBatch    int      `yaml:"retrain_batch"`    // accumulation trigger: new records since last train
	HoldoutFraction float64  `yaml:"holdout_fraction"` // most-recent share reserved for validation
}

// Config is the root engine configuration.
type Config struct {
	ReferenceSymbol string          `yaml:"reference_symbol"`
	Indicator       IndicatorConfig `yaml:"indicator"`
	Scorer          ScorerConfig    `yaml:"scorer"`
	Gate            GateConfig      `yaml:"gate"`
	Risk            RiskConfig      `yaml:"risk"`
	Position        PositionConfig  `yaml:"position"`
	Learner         LearnerConfig   `yaml:"learner"`
	Database        struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration the engine ships with. Values come
// from the tuned production run of the strategy this engine implements.
func Default() Config {
	cfg := Config{
		ReferenceSymbol: "BTC",
		Indicator: IndicatorConfig{
			RSIPeriod:    14,
			StochPeriod:  14,
			MACDFast:     12,
			MACDSlow:     26,
			MACDSignal:   9,
			EMAFast:      9,
			EMASlow:      21,
			ATRPeriod:    14,
			ATSEMAPeriod: 5,
		},
		Scorer: ScorerConfig{
			BreakoutThresholdPct:  4.0,
			VolumeSpikeMultiplier: 2.5,
			MinTriggerVolumeUSD:   300_000,
			HealthyChangeMin:      2.0,
			HealthyChangeMax:      8.0,
			LateChangeMax:         15.0,
		},
		Gate: GateConfig{
			MinScore:                   72,
			VolumeSpikeScoreConcession: 5,
			VolumeTiers: []VolumeTier{
				{MinScore: 90, MinVolumeUSD: 150_000},
				{MinScore: 80, MinVolumeUSD: 200_000},
			},
			VolumeFloorUSD:            300_000,
			RSIMin:                    32,
			RSIMax:                    68,
			StochRSIMax:               75,
			ChangeMinPct:              1.0,
			ChangeMaxPct:              15.0,
			ATRMaxPercent:             12.0,
			CounterTrendOverrideScore: 85,
		},
		Risk: RiskConfig{
			InitialCapital:         10_000,
			MaxConcurrentPositions: 5,
			MaxPositionFraction:    0.08,
			MaxDailyLossPct:        5.0,
			Cooldown:               Duration(6 * time.Hour),
			StaleAfter:             Duration(10 * time.Minute),
		},
		Position: PositionConfig{
			ATRStopMultiple:     1.5,
			StopFloorPct:        0.02,
			StopCeilingPct:      0.06,
			TP1Pct:              3.0,
			TP1Fraction:         0.25,
			TP2Pct:              5.0,
			TP2Fraction:         0.35,
			TP3Pct:              8.0,
			TrailingActivatePct: 2.0,
			TrailingPct:         0.015,
			Timeout:             Duration(3 * time.Hour),
			StagnantPct:         0.8,
		},
		Learner: LearnerConfig{
			MinSamples:      20,
			RetrainInterval: Duration(6 * time.Hour),
			RetrainBatch:    10,
			HoldoutFraction: 0.25,
		},
		MetricsAddr: ":9187",
	}
	cfg.Database.Path = "gomentum.db"
	return cfg
}

// Load reads YAML config from path (missing file means defaults), then
// applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("GOMENTUM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GOMENTUM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("GOMENTUM_REFERENCE_SYMBOL"); v != "" {
		cfg.ReferenceSymbol = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that all numeric fields are within sensible bounds.
// It returns the first encountered error, allowing the caller to
// surface a clear configuration problem before any trading starts.
func (c *Config) Validate() error {
	if c.ReferenceSymbol == "" {
		return errors.New("reference_symbol must be set")
	}
	ind := c.Indicator
	if ind.RSIPeriod <= 1 || ind.StochPeriod <= 1 || ind.ATRPeriod <= 1 {
		return errors.New("indicator periods must be greater than 1")
	}
	if ind.MACDFast <= 0 || ind.MACDSlow <= ind.MACDFast || ind.MACDSignal <= 0 {
		return fmt.Errorf("MACD periods (%d,%d,%d) must satisfy 0 < fast < slow, signal > 0",
			ind.MACDFast, ind.MACDSlow, ind.MACDSignal)
	}
	if ind.EMAFast <= 0 || ind.EMASlow <= ind.EMAFast {
		return fmt.Errorf("EMA periods (%d,%d) must satisfy 0 < fast < slow", ind.EMAFast, ind.EMASlow)
	}
	if ind.BurstConfirmation && ind.ATSEMAPeriod <= 0 {
		return errors.New("ats_ema_period must be positive when burst confirmation is enabled")
	}

	sc := c.Scorer
	if sc.BreakoutThresholdPct <= 0 {
		return errors.New("breakout_threshold_pct must be positive")
	}
	if sc.VolumeSpikeMultiplier <= 1 {
		return fmt.Errorf("volume_spike_multiplier (%f) must be greater than 1", sc.VolumeSpikeMultiplier)
	}
	if !(sc.HealthyChangeMin < sc.HealthyChangeMax && sc.HealthyChangeMax <= sc.LateChangeMax) {
		return errors.New("scorer change bands must be ordered: healthy_min < healthy_max <= late_max")
	}

	g := c.Gate
	if g.MinScore < 0 || g.MinScore > 100 {
		return fmt.Errorf("min_score (%f) must be within [0,100]", g.MinScore)
	}
	if g.RSIMin >= g.RSIMax {
		return errors.New("rsi_min must be below rsi_max")
	}
	if g.ChangeMinPct >= g.ChangeMaxPct {
		return errors.New("change_min_pct must be below change_max_pct")
	}
	if g.CounterTrendOverrideScore < g.MinScore {
		return errors.New("counter_trend_override_score cannot be below min_score")
	}
	for _, t := range g.VolumeTiers {
		if t.MinVolumeUSD <= 0 || t.MinScore <= 0 {
			return errors.New("volume tiers require positive score and volume")
		}
	}

	r := c.Risk
	if r.InitialCapital <= 0 {
		return errors.New("initial_capital must be positive")
	}
	if r.MaxConcurrentPositions <= 0 {
		return errors.New("max_concurrent_positions must be positive")
	}
	if r.MaxPositionFraction <= 0 || r.MaxPositionFraction > 0.5 {
		return fmt.Errorf("max_position_fraction (%f) must be >0 and <=0.5", r.MaxPositionFraction)
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct > 100 {
		return fmt.Errorf("max_daily_loss_pct (%f) out of range", r.MaxDailyLossPct)
	}
	if r.Cooldown < 0 || r.StaleAfter < 0 {
		return errors.New("cooldown and stale_after cannot be negative")
	}

	p := c.Position
	if p.ATRStopMultiple <= 0 {
		return errors.New("atr_stop_multiple must be positive")
	}
	if p.StopFloorPct <= 0 || p.StopCeilingPct > 0.2 || p.StopFloorPct > p.StopCeilingPct {
		return fmt.Errorf("stop bounds (%f,%f) must satisfy 0 < floor <= ceiling <= 0.2",
			p.StopFloorPct, p.StopCeilingPct)
	}
	if !(p.TP1Pct < p.TP2Pct && p.TP2Pct < p.TP3Pct) {
		return errors.New("take-profit thresholds must be strictly increasing")
	}
	if p.TP1Fraction <= 0 || p.TP2Fraction <= 0 || p.TP1Fraction+p.TP2Fraction >= 1 {
		return errors.New("tp fractions must be positive and leave a remainder for TP3")
	}
	if p.TrailingPct <= 0 || p.TrailingPct > 0.2 {
		return fmt.Errorf("trailing_pct (%f) must be >0 and <=0.2", p.TrailingPct)
	}
	if p.Timeout <= 0 || p.StagnantPct <= 0 {
		return errors.New("timeout and stagnant_pct must be positive")
	}

	l := c.Learner
	if l.MinSamples <= 0 {
		return errors.New("min_samples must be positive")
	}
	if l.RetrainInterval <= 0 || l.RetrainBatch <= 0 {
		return errors.New("retrain_interval and retrain_batch must be positive")
	}
	if l.HoldoutFraction <= 0 || l.HoldoutFraction >= 0.5 {
		return fmt.Errorf("holdout_fraction (%f) must be in (0,0.5)", l.HoldoutFraction)
	}
	return nil
}

// SortedVolumeTiers returns the gate's volume tiers ordered by
// descending score floor, so the first match wins.
func (g GateConfig) SortedVolumeTiers() []VolumeTier {
	tiers := make([]VolumeTier, len(g.VolumeTiers))
	copy(tiers, g.VolumeTiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinScore > tiers[j].MinScore })
	return tiers
}
