// Package learner trains and serves the confidence model that backs
// the gate's ML check. It learns from completed trades only; until the
// minimum sample count is reached the model is untrained and the gate
// passes signals through.
package learner

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/gomentum/config"
	"github.com/evdnx/gomentum/gate"
	"github.com/evdnx/gomentum/logger"
	"github.com/evdnx/gomentum/metrics"
	"github.com/evdnx/gomentum/types"
)

// Storage persists trade records and the active model. The learner
// marshals its own model; storage only sees opaque JSON.
type Storage interface {
	AppendTradeRecord(r types.TradeRecord) error
	SaveModel(blob []byte) error
}

// ModelReport summarizes one retrain attempt.
type ModelReport struct {
	Trained         bool    // a candidate was fit
	Swapped         bool    // the candidate replaced the incumbent
	SampleCount     int
	ValidationScore float64 // candidate, on the holdout
	IncumbentScore  float64 // incumbent, on the same holdout
	Reason          string
}

// Learner accumulates trade outcomes and retrains the confidence
// model. Safe for concurrent use; Predict never blocks on training.
type Learner struct {
	cfg     config.LearnerConfig
	storage Storage
	log     logger.Logger

	mu         sync.RWMutex
	model      *Model // nil until first accepted training
	records    []types.TradeRecord
	sinceTrain int

	trainMu sync.Mutex // serializes retrains without touching the read path
}

// New creates a Learner. storage may be nil for tests.
func New(cfg config.LearnerConfig, storage Storage, log logger.Logger) *Learner {
	return &Learner{cfg: cfg, storage: storage, log: log}
}

// Restore seeds the learner from persisted state: the accumulated
// trade history and, if present, the previously active model as JSON.
func (l *Learner) Restore(records []types.TradeRecord, modelBlob []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]types.TradeRecord(nil), records...)
	if len(modelBlob) > 0 {
		var m Model
		if err := json.Unmarshal(modelBlob, &m); err != nil {
			return fmt.Errorf("restore model: %w", err)
		}
		l.model = &m
		metrics.ModelValidationScore.Set(m.ValidationScore)
	}
	return nil
}

// RecordOutcome appends one completed trade, persists it, and kicks a
// background retrain when the accumulation milestone is reached.
func (l *Learner) RecordOutcome(r types.TradeRecord) {
	l.mu.Lock()
	l.records = append(l.records, r)
	l.sinceTrain++
	milestone := l.sinceTrain >= l.cfg.RetrainBatch && len(l.records) >= l.cfg.MinSamples
	l.mu.Unlock()

	if l.storage != nil {
		if err := l.storage.AppendTradeRecord(r); err != nil {
			l.log.Error("persist trade record failed",
				logger.String("symbol", r.Symbol), logger.Err(err))
		}
	}
	l.log.Debug("trade outcome recorded",
		logger.String("symbol", r.Symbol),
		logger.Float64("pnl_pct", r.PnLPercent),
		logger.Bool("win", r.Win))

	if milestone {
		go func() {
			if _, err := l.Retrain(); err != nil {
				l.log.Warn("milestone retrain failed", logger.Err(err))
			}
		}()
	}
}

// Trained reports whether an active model exists.
func (l *Learner) Trained() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.model != nil
}

// SampleCount returns the number of accumulated trade records.
func (l *Learner) SampleCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Predict implements gate.ConfidencePredictor.
func (l *Learner) Predict(f types.FeatureVector) gate.Prediction {
	l.mu.RLock()
	m := l.model
	l.mu.RUnlock()

	if m == nil {
		return gate.Prediction{Probability: 0.5, Trained: false}
	}
	prob, notes := m.Predict(f)
	return gate.Prediction{
		Probability: prob,
		Threshold:   m.Threshold(),
		Trained:     true,
		Notes:       notes,
	}
}

// Retrain fits a candidate on all but the most recent holdout slice,
// validates both candidate and incumbent on that holdout, and swaps
// only when the candidate is not worse. Runs off the decision path;
// Predict keeps serving the incumbent throughout.
func (l *Learner) Retrain() (ModelReport, error) {
	l.trainMu.Lock()
	defer l.trainMu.Unlock()

	l.mu.RLock()
	records := append([]types.TradeRecord(nil), l.records...)
	incumbent := l.model
	l.mu.RUnlock()

	if len(records) < l.cfg.MinSamples {
		metrics.ModelRetrains.WithLabelValues("skipped").Inc()
		return ModelReport{
			SampleCount: len(records),
			Reason:      fmt.Sprintf("%d of %d required samples", len(records), l.cfg.MinSamples),
		}, nil
	}

	holdoutSize := int(float64(len(records)) * l.cfg.HoldoutFraction)
	if holdoutSize < 1 {
		holdoutSize = 1
	}
	split := len(records) - holdoutSize
	if split < 1 {
		metrics.ModelRetrains.WithLabelValues("failed").Inc()
		return ModelReport{}, fmt.Errorf("holdout fraction %.2f leaves no training data for %d records",
			l.cfg.HoldoutFraction, len(records))
	}
	trainSet, holdout := records[:split], records[split:]

	candidate := fit(trainSet, len(records), time.Now().UTC())
	candidate.ValidationScore = candidate.evaluate(holdout)

	report := ModelReport{
		Trained:         true,
		SampleCount:     len(records),
		ValidationScore: candidate.ValidationScore,
	}
	if incumbent != nil {
		report.IncumbentScore = incumbent.evaluate(holdout)
	}

	if incumbent != nil && candidate.ValidationScore < report.IncumbentScore {
		report.Reason = "candidate validated worse than incumbent"
		metrics.ModelRetrains.WithLabelValues("rejected").Inc()
		l.log.Warn("retrain rejected",
			logger.Float64("candidate_score", candidate.ValidationScore),
			logger.Float64("incumbent_score", report.IncumbentScore),
			logger.Int("samples", len(records)))
		return report, nil
	}

	l.mu.Lock()
	l.model = candidate
	l.sinceTrain = 0
	l.mu.Unlock()

	report.Swapped = true
	metrics.ModelRetrains.WithLabelValues("accepted").Inc()
	metrics.ModelValidationScore.Set(candidate.ValidationScore)
	l.log.Info("model swapped",
		logger.Float64("validation_score", candidate.ValidationScore),
		logger.Float64("win_rate", candidate.WinRate),
		logger.Int("samples", len(records)))

	if l.storage != nil {
		blob, err := json.Marshal(candidate)
		if err != nil {
			l.log.Error("marshal model failed", logger.Err(err))
		} else if err := l.storage.SaveModel(blob); err != nil {
			l.log.Error("persist model failed", logger.Err(err))
		}
	}
	return report, nil
}
