package balance

import (
	"math/rand/v2"
	"testing"
)

func imbalanced(n int, rate float64, seed uint64) ([][]float64, []bool) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := make([][]float64, n)
	y := make([]bool, n)
	for i := range X {
		y[i] = rng.Float64() < rate
		shift := 0.0
		if y[i] {
			shift = 3
		}
		X[i] = []float64{rng.NormFloat64() + shift, rng.NormFloat64(), 1}
	}
	return X, y
}

func TestBalanceSMOTE(t *testing.T) {
	X, y := imbalanced(500, 0.1, 1)
	res, err := Balance(X, y, Config{K: 5, Seed: 42})
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}

	pos, neg := Counts(res.Y)
	if pos != neg {
		t.Errorf("expected 1:1, got %d positive / %d negative", pos, neg)
	}
	if res.Strategy != StrategySMOTE {
		t.Errorf("expected smote, got %s", res.Strategy)
	}
	if len(res.X) != len(res.Y) {
		t.Errorf("rows (%d) and labels (%d) differ", len(res.X), len(res.Y))
	}

	t.Run("OriginalsPreserved", func(t *testing.T) {
		for i := range X {
			if &res.X[i][0] != &X[i][0] || res.Y[i] != y[i] {
				t.Fatalf("row %d was not carried over", i)
			}
		}
	})

	t.Run("SyntheticWithinMinorityHull", func(t *testing.T) {
		minX, maxX := 1e9, -1e9
		for i := range X {
			if y[i] {
				minX = min(minX, X[i][0])
				maxX = max(maxX, X[i][0])
			}
		}
		for _, row := range res.X[len(X):] {
			if row[0] < minX || row[0] > maxX {
				t.Fatalf("synthetic value %.3f outside [%.3f, %.3f]", row[0], minX, maxX)
			}
			if row[2] != 1 {
				t.Fatalf("constant column drifted to %v", row[2])
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		again, _ := Balance(X, y, Config{K: 5, Seed: 42})
		for i := range res.X {
			for j := range res.X[i] {
				if res.X[i][j] != again.X[i][j] {
					t.Fatalf("row %d col %d differs between runs", i, j)
				}
			}
		}
	})
}

func TestBalanceFallbacks(t *testing.T) {
	t.Run("TooFewForNeighbours", func(t *testing.T) {
		X := [][]float64{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {10}, {11}}
		y := []bool{false, false, false, false, false, false, false, true, true}
		res, err := Balance(X, y, Config{K: 5, Seed: 1})
		if err != nil {
			t.Fatalf("Balance failed: %v", err)
		}
		if res.Strategy != StrategyDuplicate {
			t.Errorf("expected duplicate, got %s", res.Strategy)
		}
		pos, neg := Counts(res.Y)
		if pos != neg {
			t.Errorf("expected 1:1, got %d/%d", pos, neg)
		}
	})

	t.Run("EmptyMinority", func(t *testing.T) {
		X := [][]float64{{0}, {1}}
		y := []bool{false, false}
		res, err := Balance(X, y, Config{Seed: 1})
		if err != nil {
			t.Fatalf("Balance failed: %v", err)
		}
		if res.Strategy != StrategySkipped || len(res.X) != 2 {
			t.Errorf("expected untouched data, got %s with %d rows", res.Strategy, len(res.X))
		}
	})

	t.Run("AlreadyBalanced", func(t *testing.T) {
		X := [][]float64{{0}, {1}}
		y := []bool{false, true}
		res, _ := Balance(X, y, Config{Seed: 1})
		if res.Strategy != StrategyNone {
			t.Errorf("expected none, got %s", res.Strategy)
		}
	})

	t.Run("MajorityPositive", func(t *testing.T) {
		X, y := imbalanced(200, 0.9, 3)
		res, err := Balance(X, y, Config{K: 3, Seed: 2})
		if err != nil {
			t.Fatalf("Balance failed: %v", err)
		}
		pos, neg := Counts(res.Y)
		if pos != neg {
			t.Errorf("expected 1:1, got %d/%d", pos, neg)
		}
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		if _, err := Balance([][]float64{{0}}, []bool{true, false}, Config{}); err == nil {
			t.Error("expected error for mismatched lengths")
		}
	})
}
