package logger

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerForwardsLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{z: zap.New(core)}

	l.Debug("dbg")
	l.Info("inf", String("symbol", "SOL"), Float64("score", 82))
	l.Warn("wrn", Err(errors.New("boom")))
	l.Error("err")

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[1].Message != "inf" || entries[1].Level != zapcore.InfoLevel {
		t.Fatalf("unexpected info entry: %+v", entries[1])
	}
	ctx := entries[1].ContextMap()
	if ctx["symbol"] != "SOL" {
		t.Fatalf("expected symbol field, got %v", ctx)
	}
	if entries[2].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected warn level: %v", entries[2].Level)
	}
}

func TestNewProducesWorkingLogger(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("startup probe", Int("n", 1), Bool("ok", true))
}

func TestNopDiscardsEverything(t *testing.T) {
	NewNop().Error("nobody hears this")
}
