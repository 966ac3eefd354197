package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/preprocess"
	"github.com/opensource-finance/kestrel/internal/synth"
)

func trainModel(t *testing.T) (*pipeline.Model, domain.PipelineConfig) {
	t.Helper()
	cfg := domain.KeralaPipeline()
	cfg.Samples = 300
	cfg.Trees = 10
	cfg.MaxDepth = 3

	model, err := pipeline.Train(context.Background(), cfg, synth.NewGenerator(cfg).Generate())
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	return model, cfg
}

func saved(t *testing.T) (string, *pipeline.Model, domain.PipelineConfig) {
	t.Helper()
	model, cfg := trainModel(t)
	dir := filepath.Join(t.TempDir(), "model")
	if err := Save(dir, model); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return dir, model, cfg
}

// rewrite edits one field of a saved envelope.
func rewrite(t *testing.T, dir, name string, edit func(env map[string]any)) {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	edit(env)
	data, _ = json.Marshal(env)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir, model, cfg := saved(t)

	if !Exists(dir) {
		t.Fatal("expected artifacts to exist")
	}

	loaded, err := Load(dir, preprocess.SchemaFor(cfg))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	claims := []domain.ClaimRecord{
		{Age: 35, ClaimAmount: 15000, PolicyType: "Health", DaysSincePurchase: 20, Region: "Kochi"},
		{Age: 70, ClaimAmount: 900, PolicyType: "Travel", DaysSincePurchase: 800, Region: "Nonexistent"},
	}
	for _, c := range claims {
		want, _ := model.Classifier.PredictProba(model.Preprocessor.Transform(c))
		got, err := loaded.Classifier.PredictProba(loaded.Preprocessor.Transform(c))
		if err != nil {
			t.Fatalf("PredictProba failed: %v", err)
		}
		if got != want {
			t.Errorf("expected probability %v after reload, got %v", want, got)
		}
	}

	if loaded.Meta.Variant != "kerala" || loaded.Meta.Samples != 300 {
		t.Errorf("metadata not restored: %+v", loaded.Meta)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 files, got %d", len(entries))
	}
}

func TestLoadWithoutExpectedSchema(t *testing.T) {
	dir, _, _ := saved(t)
	if _, err := Load(dir, preprocess.Schema{}); err != nil {
		t.Errorf("Load failed: %v", err)
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	t.Run("VersionBump", func(t *testing.T) {
		dir, _, cfg := saved(t)
		rewrite(t, dir, TransformerFile, func(env map[string]any) {
			env["schemaVersion"] = SchemaVersion + 1
		})

		_, err := Load(dir, preprocess.SchemaFor(cfg))
		var sme *domain.SchemaMismatchError
		if !errors.As(err, &sme) {
			t.Fatalf("expected SchemaMismatchError, got %v", err)
		}
		if sme.Artifact != TransformerFile {
			t.Errorf("expected artifact %s, got %s", TransformerFile, sme.Artifact)
		}
	})

	t.Run("DifferentColumns", func(t *testing.T) {
		dir, _, _ := saved(t)
		_, err := Load(dir, preprocess.SchemaFor(domain.CoveragePipeline()))
		var sme *domain.SchemaMismatchError
		if !errors.As(err, &sme) {
			t.Fatalf("expected SchemaMismatchError, got %v", err)
		}
	})

	t.Run("FingerprintMismatch", func(t *testing.T) {
		dir, _, cfg := saved(t)
		rewrite(t, dir, ClassifierFile, func(env map[string]any) {
			env["fingerprint"] = "0000000000000000"
		})

		_, err := Load(dir, preprocess.SchemaFor(cfg))
		var sme *domain.SchemaMismatchError
		if !errors.As(err, &sme) {
			t.Fatalf("expected SchemaMismatchError, got %v", err)
		}
		if sme.Artifact != ClassifierFile {
			t.Errorf("expected artifact %s, got %s", ClassifierFile, sme.Artifact)
		}
	})

	t.Run("MixedTrainings", func(t *testing.T) {
		dir, _, cfg := saved(t)
		other, _, _ := saved(t)

		// Same layout, classifier from a different training run
		data, err := os.ReadFile(filepath.Join(other, ClassifierFile))
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, ClassifierFile), data, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}

		_, err = Load(dir, preprocess.SchemaFor(cfg))
		var sme *domain.SchemaMismatchError
		if !errors.As(err, &sme) {
			t.Fatalf("expected SchemaMismatchError, got %v", err)
		}
		if sme.Artifact != ClassifierFile {
			t.Errorf("expected artifact %s, got %s", ClassifierFile, sme.Artifact)
		}
	})

	t.Run("WrongKind", func(t *testing.T) {
		dir, _, cfg := saved(t)
		rewrite(t, dir, ClassifierFile, func(env map[string]any) {
			env["kind"] = "transformer"
		})

		_, err := Load(dir, preprocess.SchemaFor(cfg))
		var sme *domain.SchemaMismatchError
		if !errors.As(err, &sme) {
			t.Fatalf("expected SchemaMismatchError, got %v", err)
		}
	})
}

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Error("expected no artifacts in empty dir")
	}
	if _, err := Load(dir, preprocess.Schema{}); err == nil {
		t.Error("expected error loading from empty dir")
	}
}

func TestSaveIncompleteModel(t *testing.T) {
	if err := Save(t.TempDir(), &pipeline.Model{}); err == nil {
		t.Error("expected error saving incomplete model")
	}
}
