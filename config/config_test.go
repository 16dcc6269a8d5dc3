package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"rsi period", func(c *Config) { c.Indicator.RSIPeriod = 1 }},
		{"macd order", func(c *Config) { c.Indicator.MACDSlow = c.Indicator.MACDFast }},
		{"spike multiplier", func(c *Config) { c.Scorer.VolumeSpikeMultiplier = 1 }},
		{"rsi band", func(c *Config) { c.Gate.RSIMin = 70; c.Gate.RSIMax = 60 }},
		{"override below min", func(c *Config) { c.Gate.CounterTrendOverrideScore = 50 }},
		{"position fraction", func(c *Config) { c.Risk.MaxPositionFraction = 0.9 }},
		{"tp order", func(c *Config) { c.Position.TP2Pct = c.Position.TP3Pct }},
		{"tp fractions", func(c *Config) { c.Position.TP1Fraction = 0.7; c.Position.TP2Fraction = 0.4 }},
		{"stop bounds", func(c *Config) { c.Position.StopFloorPct = 0.08; c.Position.StopCeilingPct = 0.04 }},
		{"holdout", func(c *Config) { c.Learner.HoldoutFraction = 0.6 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must fall back to defaults: %v", err)
	}
	if cfg.Gate.MinScore != Default().Gate.MinScore {
		t.Fatalf("unexpected min score: %v", cfg.Gate.MinScore)
	}
}

func TestLoadAppliesYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gomentum.yaml")
	raw := `
reference_symbol: ETH
gate:
  min_score: 75
risk:
  cooldown: 2h
position:
  timeout: 90m
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOMENTUM_DB_PATH", filepath.Join(dir, "env.db"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ReferenceSymbol != "ETH" {
		t.Fatalf("yaml override lost: %q", cfg.ReferenceSymbol)
	}
	if cfg.Gate.MinScore != 75 {
		t.Fatalf("expected min_score 75, got %v", cfg.Gate.MinScore)
	}
	if cfg.Risk.Cooldown.Std() != 2*time.Hour {
		t.Fatalf("expected 2h cooldown, got %v", cfg.Risk.Cooldown)
	}
	if cfg.Position.Timeout.Std() != 90*time.Minute {
		t.Fatalf("expected 90m timeout, got %v", cfg.Position.Timeout)
	}
	if cfg.Database.Path != filepath.Join(dir, "env.db") {
		t.Fatalf("env override lost: %q", cfg.Database.Path)
	}
	// Untouched sections keep their defaults.
	if cfg.Gate.StochRSIMax != Default().Gate.StochRSIMax {
		t.Fatalf("unexpected stoch max: %v", cfg.Gate.StochRSIMax)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("risk:\n  max_position_fraction: 0.9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for oversized position fraction")
	}
}

func TestSortedVolumeTiersDescending(t *testing.T) {
	g := GateConfig{VolumeTiers: []VolumeTier{
		{MinScore: 80, MinVolumeUSD: 200_000},
		{MinScore: 90, MinVolumeUSD: 150_000},
	}}
	tiers := g.SortedVolumeTiers()
	if tiers[0].MinScore != 90 || tiers[1].MinScore != 80 {
		t.Fatalf("tiers must sort by descending score: %+v", tiers)
	}
}
