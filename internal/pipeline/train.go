// Package pipeline wires data generation, preprocessing, balancing and boosting
// into a trained model, and scores claims against it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opensource-finance/kestrel/internal/balance"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/gbm"
	"github.com/opensource-finance/kestrel/internal/preprocess"
	"github.com/opensource-finance/kestrel/internal/synth"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Metadata describes how a model was trained.
type Metadata struct {
	Variant         string           `json:"variant"`
	LabelPolicy     string           `json:"labelPolicy"`
	Source          string           `json:"source"` // synthetic | csv
	Samples         int              `json:"samples"`
	FraudRate       float64          `json:"fraudRate"`
	BalanceStrategy balance.Strategy `json:"balanceStrategy"`
	SyntheticRows   int              `json:"syntheticRows"`
	TrainedAt       time.Time        `json:"trainedAt"`
	TrainMs         int64            `json:"trainMs"`
}

// Model is a fitted preprocessor and classifier pair. Both are immutable.
type Model struct {
	Preprocessor *preprocess.Preprocessor
	Classifier   *gbm.Classifier
	Meta         Metadata
}

// Build produces training data and trains a model. When csvPath is set the
// external dataset is mapped instead of generating synthetic claims.
func Build(ctx context.Context, cfg domain.PipelineConfig, csvPath string) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gen := synth.NewGenerator(cfg)
	source := "synthetic"
	var examples []domain.TrainingExample
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset: %w", err)
		}
		defer f.Close()
		examples, err = gen.MapCSV(f)
		if err != nil {
			return nil, fmt.Errorf("failed to map dataset: %w", err)
		}
		source = "csv"
	} else {
		examples = gen.Generate()
	}

	model, err := Train(ctx, cfg, examples)
	if err != nil {
		return nil, err
	}
	model.Meta.Source = source
	return model, nil
}

// Train fits the preprocessor on examples, balances the transformed rows and
// fits the classifier.
func Train(ctx context.Context, cfg domain.PipelineConfig, examples []domain.TrainingExample) (*Model, error) {
	ctx, span := tracer.Start(ctx, "pipeline.train",
		trace.WithAttributes(
			attribute.String("pipeline.variant", cfg.Variant),
			attribute.Int("pipeline.samples", len(examples)),
		),
	)
	defer span.End()
	start := time.Now()

	records := make([]domain.ClaimRecord, len(examples))
	labels := make([]bool, len(examples))
	for i, ex := range examples {
		records[i] = ex.Claim
		labels[i] = ex.FraudReported
	}

	pre, err := preprocess.Fit(records, preprocess.SchemaFor(cfg))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fit preprocessor: %w", err)
	}

	X := pre.TransformAll(records)
	y := labels
	strategy := balance.StrategyNone
	synthetic := 0
	if cfg.Balance {
		res, err := balance.Balance(X, y, balance.Config{K: cfg.KNeighbors, Seed: cfg.Seed})
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to balance training data: %w", err)
		}
		X, y, strategy, synthetic = res.X, res.Y, res.Strategy, res.Synthetic
	}

	params := gbm.ParamsFrom(cfg)
	clf, err := gbm.Fit(X, y, params)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to fit classifier: %w", err)
	}

	model := &Model{
		Preprocessor: pre,
		Classifier:   clf,
		Meta: Metadata{
			Variant:         cfg.Variant,
			LabelPolicy:     string(cfg.LabelPolicy),
			Source:          "synthetic",
			Samples:         len(examples),
			FraudRate:       synth.FraudRate(examples),
			BalanceStrategy: strategy,
			SyntheticRows:   synthetic,
			TrainedAt:       clf.TrainedAt,
			TrainMs:         time.Since(start).Milliseconds(),
		},
	}

	slog.InfoContext(ctx, "model trained",
		"variant", cfg.Variant,
		"samples", len(examples),
		"fraud_rate", model.Meta.FraudRate,
		"balance", strategy,
		"synthetic_rows", synthetic,
		"features", pre.Width(),
		"params", params.String(),
		"duration_ms", model.Meta.TrainMs,
	)

	return model, nil
}
