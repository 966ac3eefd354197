package gbm

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// separable builds data where the label is x0 > 0.5 with a noisy second feature.
func separable(n int, seed uint64) ([][]float64, []bool) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := make([][]float64, n)
	y := make([]bool, n)
	for i := range X {
		x0 := rng.Float64()
		X[i] = []float64{x0, rng.Float64()}
		y[i] = x0 > 0.5
	}
	return X, y
}

func TestFitLearnsSeparableData(t *testing.T) {
	X, y := separable(400, 1)
	params := DefaultParams()
	params.Trees = 30

	c, err := Fit(X, y, params)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if len(c.Trees) != 30 {
		t.Errorf("expected 30 trees, got %d", len(c.Trees))
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("fitted model invalid: %v", err)
	}

	t.Run("Accuracy", func(t *testing.T) {
		correct := 0
		for i, row := range X {
			p, err := c.PredictProba(row)
			if err != nil {
				t.Fatalf("PredictProba failed: %v", err)
			}
			if (p > 0.5) == y[i] {
				correct++
			}
		}
		if acc := float64(correct) / float64(len(X)); acc < 0.95 {
			t.Errorf("expected training accuracy >= 0.95, got %.3f", acc)
		}
	})

	t.Run("Confident", func(t *testing.T) {
		lo, _ := c.PredictProba([]float64{0.05, 0.5})
		hi, _ := c.PredictProba([]float64{0.95, 0.5})
		if lo > 0.2 || hi < 0.8 {
			t.Errorf("expected lo < 0.2 and hi > 0.8, got %.3f and %.3f", lo, hi)
		}
	})

	t.Run("ImportanceFavoursSignal", func(t *testing.T) {
		if c.Importance[0] <= c.Importance[1] {
			t.Errorf("expected feature 0 to dominate, got %v", c.Importance)
		}
	})
}

func TestProbabilityBounds(t *testing.T) {
	X, y := separable(200, 2)
	c, err := Fit(X, y, DefaultParams())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	for _, x := range [][]float64{{-1e9, 0}, {1e9, 1e9}, {0.5, -3}, {0, 0}} {
		p, err := c.PredictProba(x)
		if err != nil {
			t.Fatalf("PredictProba(%v) failed: %v", x, err)
		}
		if p < 0 || p > 1 {
			t.Errorf("probability %v out of [0,1] for %v", p, x)
		}
	}
}

func TestDeterministic(t *testing.T) {
	X, y := separable(300, 3)
	params := DefaultParams()
	params.Trees = 20
	params.Subsample = 0.8
	params.Seed = 42

	a, err := Fit(X, y, params)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	b, err := Fit(X, y, params)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	for i, row := range X {
		pa, _ := a.PredictProba(row)
		pb, _ := b.PredictProba(row)
		if pa != pb {
			t.Fatalf("row %d: %v != %v", i, pa, pb)
		}
	}
}

func TestPredictErrors(t *testing.T) {
	X, y := separable(100, 4)
	c, err := Fit(X, y, DefaultParams())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	var ierr *domain.InferenceError
	if _, err := c.PredictProba([]float64{1}); !errors.As(err, &ierr) {
		t.Errorf("expected InferenceError for wrong width, got %v", err)
	}
	if _, err := c.PredictProba([]float64{math.NaN(), 0}); !errors.As(err, &ierr) {
		t.Errorf("expected InferenceError for NaN, got %v", err)
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := Fit(nil, nil, DefaultParams()); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := Fit([][]float64{{1}, {2}}, []bool{true, true}, DefaultParams()); err == nil {
		t.Error("expected error for single class")
	}
	if _, err := Fit([][]float64{{1}, {2, 3}}, []bool{true, false}, DefaultParams()); err == nil {
		t.Error("expected error for ragged rows")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	X, y := separable(200, 5)
	params := DefaultParams()
	params.Trees = 10
	c, err := Fit(X, y, params)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var restored Classifier
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if err := restored.Validate(); err != nil {
		t.Fatalf("restored model invalid: %v", err)
	}
	for _, row := range X[:20] {
		pa, _ := c.PredictProba(row)
		pb, _ := restored.PredictProba(row)
		if pa != pb {
			t.Fatalf("prediction changed after round trip: %v vs %v", pa, pb)
		}
	}
}

func TestValidateRejectsCycles(t *testing.T) {
	c := &Classifier{
		Features: 1,
		Trees: []Tree{{Nodes: []Node{
			{Feature: 0, Threshold: 0.5, Left: 0, Right: 1},
			{Feature: -1, Value: 0.1},
		}}},
	}
	if err := c.Validate(); err == nil {
		t.Error("expected error for self-referencing node")
	}
}

func TestCutPoints(t *testing.T) {
	t.Run("FewValues", func(t *testing.T) {
		cuts := cutPoints([]float64{0, 1, 0, 1, 1}, 64)
		if len(cuts) != 1 || cuts[0] != 0.5 {
			t.Errorf("expected [0.5], got %v", cuts)
		}
	})

	t.Run("Constant", func(t *testing.T) {
		if cuts := cutPoints([]float64{3, 3, 3}, 64); len(cuts) != 0 {
			t.Errorf("expected no cuts, got %v", cuts)
		}
	})

	t.Run("Quantiles", func(t *testing.T) {
		values := make([]float64, 1000)
		for i := range values {
			values[i] = float64(i)
		}
		cuts := cutPoints(values, 8)
		if len(cuts) != 7 {
			t.Fatalf("expected 7 cuts, got %d", len(cuts))
		}
		for i := 1; i < len(cuts); i++ {
			if cuts[i] <= cuts[i-1] {
				t.Fatalf("cuts not increasing: %v", cuts)
			}
		}
	})

	t.Run("BinMatchesThreshold", func(t *testing.T) {
		cuts := []float64{1.5, 2.5, 3.5}
		for _, x := range []float64{0, 1.5, 2, 2.5, 9} {
			for c := range cuts {
				if (binOf(cuts, x) <= c) != (x < cuts[c]) {
					t.Errorf("x=%v cut=%d disagrees", x, c)
				}
			}
		}
	})
}
