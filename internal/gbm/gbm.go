// Package gbm implements a gradient-boosted decision-tree classifier trained on log-loss
// with second-order (gradient and hessian) histogram split finding.
package gbm

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Node is one node of a regression tree. Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v,omitempty"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Classifier is a fitted ensemble. PredictProba is pure and safe for concurrent use.
type Classifier struct {
	Features   int       `json:"features"`
	BaseMargin float64   `json:"baseMargin"`
	Trees      []Tree    `json:"trees"`
	Params     Params    `json:"params"`
	Importance []float64 `json:"importance"`
	TrainedAt  time.Time `json:"trainedAt"`
}

// Fit trains a classifier on feature rows X and labels y.
func Fit(X [][]float64, y []bool, params Params) (*Classifier, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("cannot fit classifier on empty data")
	}
	if n != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) differ", n, len(y))
	}
	width := len(X[0])
	if width == 0 {
		return nil, errors.New("feature rows are empty")
	}
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has width %d, expected %d", i, len(row), width)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d contains a non-finite value", i)
			}
		}
	}

	positives := 0
	for _, label := range y {
		if label {
			positives++
		}
	}
	if positives == 0 || positives == n {
		return nil, errors.New("training labels contain a single class")
	}

	params = params.withDefaults()
	prior := float64(positives) / float64(n)

	c := &Classifier{
		Features:   width,
		BaseMargin: math.Log(prior / (1 - prior)),
		Params:     params,
		Importance: make([]float64, width),
		TrainedAt:  time.Now().UTC(),
	}

	b := newBuilder(X, params)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = c.BaseMargin
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rng := rand.New(rand.NewPCG(params.Seed, params.Seed^0xbb67ae8584caa73b))

	for t := 0; t < params.Trees; t++ {
		for i := range margin {
			p := sigmoid(margin[i])
			target := 0.0
			if y[i] {
				target = 1
			}
			grad[i] = p - target
			hess[i] = math.Max(p*(1-p), 1e-16)
		}

		rows := b.sampleRows(rng)
		tree := b.build(rows, grad, hess, c.Importance)
		for i, row := range X {
			margin[i] += tree.predict(row)
		}
		c.Trees = append(c.Trees, tree)
	}

	return c, nil
}

// Margin returns the raw log-odds for a feature vector.
func (c *Classifier) Margin(x []float64) float64 {
	m := c.BaseMargin
	for _, t := range c.Trees {
		m += t.predict(x)
	}
	return m
}

// PredictProba returns the probability of the positive class.
func (c *Classifier) PredictProba(x []float64) (float64, error) {
	if len(x) != c.Features {
		return 0, &domain.InferenceError{
			Reason: fmt.Sprintf("feature width %d does not match model width %d", len(x), c.Features),
		}
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &domain.InferenceError{Reason: fmt.Sprintf("feature %d is not finite", i)}
		}
	}
	p := sigmoid(c.Margin(x))
	if math.IsNaN(p) {
		return 0, &domain.InferenceError{Reason: "model produced NaN"}
	}
	return p, nil
}

// Validate checks the structure of a loaded model so that prediction cannot
// index out of range or loop.
func (c *Classifier) Validate() error {
	if c.Features <= 0 {
		return fmt.Errorf("model width must be positive, got %d", c.Features)
	}
	if len(c.Trees) == 0 {
		return errors.New("model has no trees")
	}
	if math.IsNaN(c.BaseMargin) || math.IsInf(c.BaseMargin, 0) {
		return errors.New("model base margin is not finite")
	}
	for ti, t := range c.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature < 0 {
				if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
					return fmt.Errorf("tree %d node %d has a non-finite leaf", ti, ni)
				}
				continue
			}
			if n.Feature >= c.Features {
				return fmt.Errorf("tree %d node %d splits on feature %d of %d", ti, ni, n.Feature, c.Features)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children", ti, ni)
			}
			if math.IsNaN(n.Threshold) {
				return fmt.Errorf("tree %d node %d has a NaN threshold", ti, ni)
			}
		}
	}
	return nil
}

func sigmoid(m float64) float64 {
	if m >= 0 {
		return 1 / (1 + math.Exp(-m))
	}
	e := math.Exp(m)
	return e / (1 + e)
}
