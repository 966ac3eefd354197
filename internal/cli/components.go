package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/artifact"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/events"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/preprocess"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// closers runs cleanup functions in reverse registration order.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			slog.Warn("cleanup failed", "error", err)
		}
	}
}

// openLedger opens the configured ledger behind the configured lookup cache.
func openLedger(cfg *domain.Config, cleanup *closers) (domain.AuditLedger, error) {
	ledger, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	cleanup.add(ledger.Close)
	slog.Info("ledger initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if cacheImpl == nil {
		return ledger, nil
	}
	cleanup.add(cacheImpl.Close)
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	return repository.NewCachedLedger(ledger, cacheImpl, time.Duration(cfg.Cache.RecordTTL)*time.Second), nil
}

// buildEmitter fans audit events out to the configured sinks. eventBus may be nil.
func buildEmitter(ctx context.Context, cfg domain.EventsConfig, eventBus domain.EventBus, cleanup *closers) (events.Emitter, error) {
	var sinks []events.Emitter
	if cfg.Log {
		sinks = append(sinks, events.NewLogEmitter())
	}
	if cfg.Bus && eventBus != nil {
		sinks = append(sinks, events.NewBusEmitter(eventBus))
	}
	if cfg.PubSubProject != "" && cfg.PubSubTopic != "" {
		ps, err := events.NewPubSubEmitter(ctx, cfg.PubSubProject, cfg.PubSubTopic, cfg.PubSubEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize pubsub emitter: %w", err)
		}
		cleanup.add(ps.Close)
		sinks = append(sinks, ps)
	}

	emitter := events.NewMultiEmitter(sinks...)
	slog.Info("audit event sinks configured", "count", emitter.Len())
	return emitter, nil
}

// newRecorder builds the signer and the audit recorder over ledger.
func newRecorder(cfg domain.AuditConfig, ledger domain.AuditLedger, emitter events.Emitter) (*audit.Recorder, error) {
	signer, err := audit.NewSigner(cfg)
	if err != nil {
		return nil, err
	}
	if !signer.Keyed() {
		slog.Warn("audit records use an unkeyed digest; tags can be recomputed by anyone",
			"algorithm", signer.Algorithm(),
		)
	}
	return audit.NewRecorder(ledger, signer, emitter, cfg), nil
}

// newEngine compiles the configured reason rules.
func newEngine(ruleConfigs []domain.ReasonRule) (*rules.Engine, error) {
	engine, err := rules.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	if err := engine.LoadRules(ruleConfigs); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())
	return engine, nil
}

// loadModel restores the artifact pair from the model directory. Missing or
// incompatible artifacts are retrained and saved when train_on_missing is set;
// otherwise a schema mismatch is returned as is.
func loadModel(ctx context.Context, cfg *domain.Config) (*pipeline.Model, error) {
	dir := cfg.Model.Dir

	if artifact.Exists(dir) {
		model, err := artifact.Load(dir, preprocess.SchemaFor(cfg.Pipeline))
		if err == nil {
			slog.Info("model loaded",
				"dir", dir,
				"variant", model.Meta.Variant,
				"trained_at", model.Meta.TrainedAt,
			)
			return model, nil
		}

		var mismatch *domain.SchemaMismatchError
		if !errors.As(err, &mismatch) || !cfg.Model.TrainOnMissing {
			return nil, err
		}
		slog.Warn("model artifacts incompatible, retraining", "dir", dir, "error", err)
	} else if !cfg.Model.TrainOnMissing {
		return nil, fmt.Errorf("no model artifacts in %s: run 'kestrel train' or set model.train_on_missing", dir)
	}

	return trainAndSave(ctx, cfg.Pipeline, "", dir)
}

// trainAndSave builds a model and persists it to dir.
func trainAndSave(ctx context.Context, cfg domain.PipelineConfig, csvPath, dir string) (*pipeline.Model, error) {
	model, err := pipeline.Build(ctx, cfg, csvPath)
	if err != nil {
		return nil, err
	}
	if err := artifact.Save(dir, model); err != nil {
		return nil, err
	}
	slog.Info("model artifacts saved", "dir", dir)
	return model, nil
}

// newScorer assembles the scorer for model.
func newScorer(cfg *domain.Config, model *pipeline.Model, engine *rules.Engine) (*pipeline.Scorer, error) {
	processor, err := decision.NewProcessor(cfg.Risk)
	if err != nil {
		return nil, err
	}
	return pipeline.NewScorer(model, engine, processor, cfg.Pipeline.RequiresCoverage())
}
