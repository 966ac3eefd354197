// Package artifact persists and restores trained models as versioned JSON envelopes.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/gbm"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/preprocess"
)

// SchemaVersion is bumped whenever the serialized layout changes.
const SchemaVersion = 2

const (
	TransformerFile = "transformer.json"
	ClassifierFile  = "classifier.json"

	kindTransformer = "transformer"
	kindClassifier  = "classifier"
)

// envelope wraps one artifact. Both files of a pair share TrainingID.
type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	Kind          string          `json:"kind"`
	Fingerprint   string          `json:"fingerprint"`
	TrainingID    string          `json:"trainingId"`
	CreatedAt     time.Time       `json:"createdAt"`
	Payload       json.RawMessage `json:"payload"`
}

type classifierPayload struct {
	Classifier *gbm.Classifier   `json:"classifier"`
	Meta       pipeline.Metadata `json:"meta"`
}

// Exists reports whether both artifact files are present in dir.
func Exists(dir string) bool {
	for _, name := range []string{TransformerFile, ClassifierFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Save writes the model pair to dir. Each file is replaced atomically.
func Save(dir string, model *pipeline.Model) error {
	if model == nil || model.Preprocessor == nil || model.Classifier == nil {
		return errors.New("cannot save an incomplete model")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	fingerprint := model.Preprocessor.Fingerprint()
	trainingID := uuid.NewString()
	now := time.Now().UTC()

	pre, err := json.Marshal(model.Preprocessor)
	if err != nil {
		return fmt.Errorf("failed to encode transformer: %w", err)
	}
	if err := writeEnvelope(dir, TransformerFile, envelope{
		SchemaVersion: SchemaVersion,
		Kind:          kindTransformer,
		Fingerprint:   fingerprint,
		TrainingID:    trainingID,
		CreatedAt:     now,
		Payload:       pre,
	}); err != nil {
		return err
	}

	clf, err := json.Marshal(classifierPayload{Classifier: model.Classifier, Meta: model.Meta})
	if err != nil {
		return fmt.Errorf("failed to encode classifier: %w", err)
	}
	return writeEnvelope(dir, ClassifierFile, envelope{
		SchemaVersion: SchemaVersion,
		Kind:          kindClassifier,
		Fingerprint:   fingerprint,
		TrainingID:    trainingID,
		CreatedAt:     now,
		Payload:       clf,
	})
}

func writeEnvelope(dir, name string, env envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func readEnvelope(dir, name, kind string) (*envelope, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}

	if env.SchemaVersion != SchemaVersion {
		return nil, &domain.SchemaMismatchError{
			Artifact: name,
			Expected: "schema version " + strconv.Itoa(SchemaVersion),
			Actual:   "schema version " + strconv.Itoa(env.SchemaVersion),
		}
	}
	if env.Kind != kind {
		return nil, &domain.SchemaMismatchError{Artifact: name, Expected: kind, Actual: env.Kind}
	}
	return &env, nil
}

// Load restores the model pair from dir. An empty expected schema skips the
// column check; any other incompatibility is a *domain.SchemaMismatchError.
func Load(dir string, expected preprocess.Schema) (*pipeline.Model, error) {
	tenv, err := readEnvelope(dir, TransformerFile, kindTransformer)
	if err != nil {
		return nil, err
	}

	var pre preprocess.Preprocessor
	if err := json.Unmarshal(tenv.Payload, &pre); err != nil {
		return nil, fmt.Errorf("failed to restore transformer: %w", err)
	}

	if len(expected.Numeric)+len(expected.Categorical) > 0 {
		got := pre.Schema()
		if !slices.Equal(got.Numeric, expected.Numeric) || !slices.Equal(got.Categorical, expected.Categorical) {
			return nil, &domain.SchemaMismatchError{
				Artifact: TransformerFile,
				Expected: describe(expected),
				Actual:   describe(got),
			}
		}
	}

	if fp := pre.Fingerprint(); fp != tenv.Fingerprint {
		return nil, &domain.SchemaMismatchError{Artifact: TransformerFile, Expected: tenv.Fingerprint, Actual: fp}
	}

	cenv, err := readEnvelope(dir, ClassifierFile, kindClassifier)
	if err != nil {
		return nil, err
	}
	if cenv.Fingerprint != tenv.Fingerprint {
		return nil, &domain.SchemaMismatchError{Artifact: ClassifierFile, Expected: tenv.Fingerprint, Actual: cenv.Fingerprint}
	}
	if cenv.TrainingID != tenv.TrainingID {
		return nil, &domain.SchemaMismatchError{
			Artifact: ClassifierFile,
			Expected: "training " + tenv.TrainingID,
			Actual:   "training " + cenv.TrainingID,
		}
	}

	var payload classifierPayload
	if err := json.Unmarshal(cenv.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to restore classifier: %w", err)
	}
	if payload.Classifier == nil {
		return nil, fmt.Errorf("failed to restore classifier: payload is empty")
	}
	if err := payload.Classifier.Validate(); err != nil {
		return nil, fmt.Errorf("failed to restore classifier: %w", err)
	}
	if payload.Classifier.Features != pre.Width() {
		return nil, &domain.SchemaMismatchError{
			Artifact: ClassifierFile,
			Expected: strconv.Itoa(pre.Width()) + " features",
			Actual:   strconv.Itoa(payload.Classifier.Features) + " features",
		}
	}

	return &pipeline.Model{
		Preprocessor: &pre,
		Classifier:   payload.Classifier,
		Meta:         payload.Meta,
	}, nil
}

func describe(s preprocess.Schema) string {
	return "numeric[" + strings.Join(s.Numeric, ",") + "] categorical[" + strings.Join(s.Categorical, ",") + "]"
}
