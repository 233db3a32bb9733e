// Package engine turns a validated transaction into a scored decision.
//
// Evaluate derives features, normalizes them when a scaler is loaded,
// scores the vector, squashes the score into a probability, applies the
// threshold and explains the result. The engine holds no mutable state
// and is safe for concurrent use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/fraudscore/internal/domain"
	"github.com/opensource-finance/fraudscore/internal/features"
	"github.com/opensource-finance/fraudscore/internal/metrics"
	"github.com/opensource-finance/fraudscore/internal/predlog"
)

var tracer = otel.Tracer("fraudscore-engine")

// Scorer is the artifact capability the engine depends on.
type Scorer interface {
	Normalize(v domain.FeatureVector) (domain.FeatureVector, error)
	Score(v domain.FeatureVector) (float64, error)
}

// Engine evaluates transactions against loaded artifacts.
type Engine struct {
	scorer       Scorer
	scheme       features.Scheme
	threshold    float64
	scoreTimeout time.Duration
	log          *predlog.Logger
}

// New creates an engine. A nil log discards prediction records.
func New(scorer Scorer, scheme features.Scheme, cfg domain.EngineConfig, log *predlog.Logger) (*Engine, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if math.IsNaN(cfg.Threshold) || cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1], got %v", cfg.Threshold)
	}
	if cfg.ScoreTimeoutMs < 0 {
		return nil, fmt.Errorf("score timeout must not be negative")
	}
	if log == nil {
		log = predlog.Nop()
	}

	return &Engine{
		scorer:       scorer,
		scheme:       scheme,
		threshold:    cfg.Threshold,
		scoreTimeout: time.Duration(cfg.ScoreTimeoutMs) * time.Millisecond,
		log:          log,
	}, nil
}

// Threshold returns the configured fraud cutoff.
func (e *Engine) Threshold() float64 { return e.threshold }

// Scheme returns the active feature scheme.
func (e *Engine) Scheme() features.Scheme { return e.scheme }

// Evaluate scores txn. Every failure is a *domain.ScoringError and has
// already been written to the prediction log when it is returned.
func (e *Engine) Evaluate(ctx context.Context, txn domain.TransactionInput) (eval *domain.Evaluation, err error) {
	ctx, span := tracer.Start(ctx, "engine.evaluate")
	defer span.End()

	stage := domain.StageFeatures
	defer func() {
		if r := recover(); r != nil {
			eval, err = nil, &domain.ScoringError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			var se *domain.ScoringError
			if errors.As(err, &se) {
				metrics.ObserveScoringError(se.Stage)
			}
			e.log.Error(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "scoring failed")
		}
	}()

	vector, err := e.scheme.Derive(txn)
	if err != nil {
		return nil, &domain.ScoringError{Stage: stage, Err: err}
	}

	stage = domain.StageNormalize
	normalized, err := e.scorer.Normalize(vector.Clone())
	if err != nil {
		return nil, &domain.ScoringError{Stage: stage, Err: err}
	}

	stage = domain.StageScore
	if err := ctx.Err(); err != nil {
		return nil, &domain.ScoringError{Stage: stage, Err: err}
	}
	decision, err := e.score(ctx, normalized)
	if err != nil {
		return nil, &domain.ScoringError{Stage: stage, Err: err}
	}
	if math.IsNaN(decision) || math.IsInf(decision, 0) {
		return nil, &domain.ScoringError{Stage: stage, Err: fmt.Errorf("model returned non-finite score %v", decision)}
	}

	raw := -decision
	p := Sigmoid(raw)
	rounded := Round4(p)
	reasons := Reasons(txn)
	result := domain.ScoredDecision{
		FraudProbability: rounded,
		Decision:         e.decide(rounded),
	}
	result.Reasoning = Explain(result.Decision, reasons)

	e.log.Prediction(txn, raw, result.Decision)
	metrics.ObserveDecision(string(result.Decision), p)
	span.SetAttributes(
		attribute.Float64("fraud.raw_score", raw),
		attribute.String("fraud.decision", string(result.Decision)),
	)

	return &domain.Evaluation{
		Result:   result,
		RawScore: raw,
		Features: vector,
		Reasons:  reasons,
	}, nil
}

// decide applies the threshold to the rounded probability so that the
// returned fraud_probability and decision always agree.
func (e *Engine) decide(rounded float64) domain.Decision {
	if rounded >= e.threshold {
		return domain.DecisionFraud
	}
	return domain.DecisionLegitimate
}

// score calls the model, bounded by the score timeout when one is set.
func (e *Engine) score(ctx context.Context, v domain.FeatureVector) (float64, error) {
	if e.scoreTimeout <= 0 {
		return e.scorer.Score(v)
	}

	ctx, cancel := context.WithTimeout(ctx, e.scoreTimeout)
	defer cancel()

	type result struct {
		score float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		s, err := e.scorer.Score(v)
		done <- result{score: s, err: err}
	}()

	select {
	case r := <-done:
		return r.score, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("model call: %w", ctx.Err())
	}
}

// Sigmoid maps a raw anomaly score to (0, 1). It is a presentation
// transform, not a calibrated probability.
func Sigmoid(raw float64) float64 {
	return 1 / (1 + math.Exp(-raw))
}

// Round4 rounds p to four decimal places, ties to even on the exact
// binary value.
func Round4(p float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(p, 'f', 4, 64), 64)
	if err != nil {
		return p
	}
	return r
}

// Reasons returns the reason codes that fire for txn, in emission order.
func Reasons(txn domain.TransactionInput) []string {
	var reasons []string
	if txn.Amount > 100000 {
		reasons = append(reasons, domain.ReasonHighAmount)
	}
	if txn.DistanceFromHome > 100 {
		reasons = append(reasons, domain.ReasonFarFromHome)
	}
	if txn.IsNight() {
		reasons = append(reasons, domain.ReasonUnusualTime)
	}
	if txn.IsWeekend() {
		reasons = append(reasons, domain.ReasonWeekend)
	}
	return reasons
}

// Explain builds the client-facing reasoning string.
func Explain(decision domain.Decision, reasons []string) string {
	if decision == domain.DecisionLegitimate {
		return domain.ReasoningNormal
	}
	if len(reasons) == 0 {
		return domain.ReasoningAnomalous
	}
	return strings.Join(reasons, ", ")
}
