// Package balance corrects class imbalance by synthetic minority oversampling.
package balance

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// Strategy records how a data set was balanced.
type Strategy string

const (
	// StrategySMOTE interpolated between minority samples and their nearest neighbours.
	StrategySMOTE Strategy = "smote"

	// StrategyDuplicate resampled minority rows because there were too few for k neighbours.
	StrategyDuplicate Strategy = "duplicate"

	// StrategySkipped left the data untouched because one class was empty.
	StrategySkipped Strategy = "skipped"

	// StrategyNone means the classes were already equal.
	StrategyNone Strategy = "none"
)

// Config controls the oversampler.
type Config struct {
	// K is the number of same-class neighbours to interpolate towards.
	K    int
	Seed uint64
}

// Result is a balanced data set. Original rows come first, synthetic rows after.
type Result struct {
	X         [][]float64
	Y         []bool
	Strategy  Strategy
	Synthetic int
}

// Balance oversamples the minority class until both classes have the same count.
// The input slices are not modified.
func Balance(X [][]float64, y []bool, cfg Config) (Result, error) {
	if len(X) != len(y) {
		return Result{}, fmt.Errorf("feature rows (%d) and labels (%d) differ", len(X), len(y))
	}
	if len(X) == 0 {
		return Result{}, errors.New("cannot balance an empty data set")
	}
	if cfg.K <= 0 {
		cfg.K = 5
	}

	var pos, neg []int
	for i, label := range y {
		if label {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	minority, majority, minorityLabel := pos, neg, true
	if len(pos) > len(neg) {
		minority, majority, minorityLabel = neg, pos, false
	}

	res := Result{
		X: append([][]float64(nil), X...),
		Y: append([]bool(nil), y...),
	}

	switch {
	case len(minority) == 0:
		res.Strategy = StrategySkipped
		return res, nil
	case len(minority) == len(majority):
		res.Strategy = StrategyNone
		return res, nil
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x6a09e667f3bcc909))
	need := len(majority) - len(minority)

	if len(minority) <= cfg.K {
		res.Strategy = StrategyDuplicate
		for s := 0; s < need; s++ {
			src := X[minority[rng.IntN(len(minority))]]
			res.X = append(res.X, append([]float64(nil), src...))
			res.Y = append(res.Y, minorityLabel)
		}
		res.Synthetic = need
		return res, nil
	}

	neighbors := nearestNeighbors(X, minority, cfg.K)
	res.Strategy = StrategySMOTE
	for s := 0; s < need; s++ {
		i := rng.IntN(len(minority))
		j := neighbors[i][rng.IntN(cfg.K)]
		res.X = append(res.X, interpolate(X[minority[i]], X[minority[j]], rng.Float64()))
		res.Y = append(res.Y, minorityLabel)
	}
	res.Synthetic = need
	return res, nil
}

// nearestNeighbors returns, for each member of idx, the positions (within idx)
// of its k nearest other members by Euclidean distance. Ties break on position.
func nearestNeighbors(X [][]float64, idx []int, k int) [][]int {
	type cand struct {
		pos  int
		dist float64
	}
	out := make([][]int, len(idx))
	cands := make([]cand, 0, len(idx)-1)
	for a := range idx {
		cands = cands[:0]
		for b := range idx {
			if a == b {
				continue
			}
			cands = append(cands, cand{pos: b, dist: squaredDistance(X[idx[a]], X[idx[b]])})
		}
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].dist != cands[j].dist {
				return cands[i].dist < cands[j].dist
			}
			return cands[i].pos < cands[j].pos
		})
		nn := make([]int, k)
		for i := 0; i < k; i++ {
			nn[i] = cands[i].pos
		}
		out[a] = nn
	}
	return out
}

func squaredDistance(a, b []float64) float64 {
	var d float64
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return d
}

func interpolate(a, b []float64, u float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + u*(b[i]-a[i])
	}
	return out
}

// Counts returns the number of positive and negative labels.
func Counts(y []bool) (pos, neg int) {
	for _, label := range y {
		if label {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}
