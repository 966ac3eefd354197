package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-pipeline")

// Scorer scores claims against a trained model. It holds no per-call state
// and is safe for concurrent use.
type Scorer struct {
	model           *Model
	engine          *rules.Engine
	processor       *decision.Processor
	requireCoverage bool
}

// NewScorer creates a scorer. The rule engine may be nil, in which case no reasons are attached.
func NewScorer(model *Model, engine *rules.Engine, processor *decision.Processor, requireCoverage bool) (*Scorer, error) {
	if model == nil || model.Preprocessor == nil || model.Classifier == nil {
		return nil, errors.New("scorer requires a fitted model")
	}
	if processor == nil {
		return nil, errors.New("scorer requires a decision processor")
	}
	return &Scorer{
		model:           model,
		engine:          engine,
		processor:       processor,
		requireCoverage: requireCoverage,
	}, nil
}

// Model returns the model being served.
func (s *Scorer) Model() *Model {
	return s.model
}

// RequiresCoverage reports whether claims must carry Coverage_Limit.
func (s *Scorer) RequiresCoverage() bool {
	return s.requireCoverage
}

// Score transforms a claim, predicts its fraud probability and attaches tier and reasons.
func (s *Scorer) Score(ctx context.Context, claim domain.ClaimRecord) (domain.Assessment, error) {
	ctx, span := tracer.Start(ctx, "pipeline.score",
		trace.WithAttributes(
			attribute.String("claim.region", claim.Region),
			attribute.String("claim.policy_type", claim.PolicyType),
		),
	)
	defer span.End()

	x := s.model.Preprocessor.Transform(claim)
	p, err := s.model.Classifier.PredictProba(x)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
		return domain.Assessment{}, err
	}

	var reasons []string
	if s.engine != nil {
		reasons = s.engine.Reasons(ctx, claim)
	}

	a := s.processor.Process(p, reasons)
	span.SetAttributes(
		attribute.Float64("score", float64(a.Score)),
		attribute.String("level", string(a.Level)),
	)
	return a, nil
}

// Holder is the readiness gate. It holds no scorer until one is stored.
type Holder struct {
	scorer atomic.Pointer[Scorer]
}

// Store publishes a scorer and opens the gate.
func (h *Holder) Store(s *Scorer) {
	h.scorer.Store(s)
}

// Load returns the current scorer or domain.ErrNotReady.
func (h *Holder) Load() (*Scorer, error) {
	s := h.scorer.Load()
	if s == nil {
		return nil, domain.ErrNotReady
	}
	return s, nil
}

// Ready reports whether a scorer has been stored.
func (h *Holder) Ready() bool {
	return h.scorer.Load() != nil
}
