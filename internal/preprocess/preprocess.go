// Package preprocess implements the fit-once column transformer:
// numeric columns are standardized and categorical columns one-hot encoded.
package preprocess

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Schema names the columns to transform, in output order.
type Schema struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
}

// SchemaFor returns the feature schema of a pipeline configuration.
func SchemaFor(cfg domain.PipelineConfig) Schema {
	return Schema{
		Numeric:     append([]string(nil), cfg.NumericColumns...),
		Categorical: append([]string(nil), cfg.CategoricalColumns...),
	}
}

// NumericColumn holds the learned standardization of one column.
type NumericColumn struct {
	Name  string  `json:"name"`
	Mean  float64 `json:"mean"`
	Scale float64 `json:"scale"`
}

// CategoricalColumn holds the learned vocabulary of one column, sorted.
type CategoricalColumn struct {
	Name       string   `json:"name"`
	Vocabulary []string `json:"vocabulary"`

	index map[string]int
}

// Preprocessor is a fitted transformer. It is immutable and safe for concurrent use.
type Preprocessor struct {
	numeric     []NumericColumn
	categorical []CategoricalColumn
	width       int
}

// Fit learns means, scales and vocabularies from records.
// A numeric column with zero standard deviation yields a *domain.DegenerateColumnError.
func Fit(records []domain.ClaimRecord, schema Schema) (*Preprocessor, error) {
	if len(records) == 0 {
		return nil, errors.New("cannot fit preprocessor on empty table")
	}
	if len(schema.Numeric)+len(schema.Categorical) == 0 {
		return nil, errors.New("schema has no columns")
	}

	p := &Preprocessor{}
	n := float64(len(records))

	for _, name := range schema.Numeric {
		if _, ok := records[0].Numeric(name); !ok {
			return nil, fmt.Errorf("unknown numeric column: %s", name)
		}
		var sum float64
		for _, r := range records {
			v, _ := r.Numeric(name)
			sum += v
		}
		mean := sum / n
		var ss float64
		for _, r := range records {
			v, _ := r.Numeric(name)
			ss += (v - mean) * (v - mean)
		}
		std := math.Sqrt(ss / n)
		if std == 0 || math.IsNaN(std) {
			return nil, &domain.DegenerateColumnError{Column: name, Value: mean}
		}
		p.numeric = append(p.numeric, NumericColumn{Name: name, Mean: mean, Scale: std})
	}

	for _, name := range schema.Categorical {
		if _, ok := records[0].Categorical(name); !ok {
			return nil, fmt.Errorf("unknown categorical column: %s", name)
		}
		seen := make(map[string]struct{})
		for _, r := range records {
			v, _ := r.Categorical(name)
			seen[v] = struct{}{}
		}
		vocab := make([]string, 0, len(seen))
		for v := range seen {
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		p.categorical = append(p.categorical, CategoricalColumn{Name: name, Vocabulary: vocab})
	}

	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Preprocessor) init() error {
	p.width = len(p.numeric)
	for _, col := range p.numeric {
		if col.Scale <= 0 || math.IsNaN(col.Scale) || math.IsInf(col.Scale, 0) {
			return &domain.DegenerateColumnError{Column: col.Name, Value: col.Mean}
		}
	}
	for i := range p.categorical {
		col := &p.categorical[i]
		col.index = make(map[string]int, len(col.Vocabulary))
		for j, v := range col.Vocabulary {
			if _, dup := col.index[v]; dup {
				return fmt.Errorf("column %s has duplicate category %q", col.Name, v)
			}
			col.index[v] = j
		}
		p.width += len(col.Vocabulary)
	}
	return nil
}

// Transform encodes a claim as a fixed-width vector: standardized numerics first,
// then one one-hot block per categorical column. Unknown categories yield an all-zero block.
func (p *Preprocessor) Transform(c domain.ClaimRecord) []float64 {
	out := make([]float64, p.width)
	i := 0
	for _, col := range p.numeric {
		v, _ := c.Numeric(col.Name)
		out[i] = (v - col.Mean) / col.Scale
		i++
	}
	for _, col := range p.categorical {
		v, _ := c.Categorical(col.Name)
		if j, ok := col.index[v]; ok {
			out[i+j] = 1
		}
		i += len(col.Vocabulary)
	}
	return out
}

// TransformAll encodes every record.
func (p *Preprocessor) TransformAll(records []domain.ClaimRecord) [][]float64 {
	out := make([][]float64, len(records))
	for i, r := range records {
		out[i] = p.Transform(r)
	}
	return out
}

// Width returns the length of every transformed vector.
func (p *Preprocessor) Width() int {
	return p.width
}

// Schema returns the columns the transformer was fitted on.
func (p *Preprocessor) Schema() Schema {
	s := Schema{}
	for _, col := range p.numeric {
		s.Numeric = append(s.Numeric, col.Name)
	}
	for _, col := range p.categorical {
		s.Categorical = append(s.Categorical, col.Name)
	}
	return s
}

// Vocabulary returns the fitted categories of a column.
func (p *Preprocessor) Vocabulary(column string) []string {
	for _, col := range p.categorical {
		if col.Name == column {
			return append([]string(nil), col.Vocabulary...)
		}
	}
	return nil
}

// FeatureNames returns the output column names in vector order,
// e.g. "Age" or "Region=Kochi".
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.width)
	for _, col := range p.numeric {
		names = append(names, col.Name)
	}
	for _, col := range p.categorical {
		for _, v := range col.Vocabulary {
			names = append(names, col.Name+"="+v)
		}
	}
	return names
}

// Fingerprint identifies the output layout. Two transformers with the same
// fingerprint produce vectors with identical column order.
func Fingerprint(featureNames []string) string {
	sum := sha256.Sum256([]byte(strings.Join(featureNames, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

// Fingerprint returns the fingerprint of this transformer's layout.
func (p *Preprocessor) Fingerprint() string {
	return Fingerprint(p.FeatureNames())
}

type state struct {
	Numeric     []NumericColumn     `json:"numeric"`
	Categorical []CategoricalColumn `json:"categorical"`
}

// MarshalJSON serializes the fitted parameters.
func (p *Preprocessor) MarshalJSON() ([]byte, error) {
	return json.Marshal(state{Numeric: p.numeric, Categorical: p.categorical})
}

// UnmarshalJSON restores fitted parameters and rebuilds lookup tables.
func (p *Preprocessor) UnmarshalJSON(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.numeric = s.Numeric
	p.categorical = s.Categorical
	return p.init()
}
