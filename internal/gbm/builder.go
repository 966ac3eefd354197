package gbm

import (
	"math/rand/v2"
)

// builder holds the binned training matrix shared by every tree.
type builder struct {
	params Params
	n      int
	cuts   [][]float64 // per feature
	bins   [][]uint8   // per feature, per row
	all    []int
}

func newBuilder(X [][]float64, params Params) *builder {
	n, width := len(X), len(X[0])
	b := &builder{
		params: params,
		n:      n,
		cuts:   make([][]float64, width),
		bins:   make([][]uint8, width),
		all:    make([]int, n),
	}
	col := make([]float64, n)
	for f := 0; f < width; f++ {
		for i, row := range X {
			col[i] = row[f]
		}
		b.cuts[f] = cutPoints(col, params.MaxBins)
		b.bins[f] = make([]uint8, n)
		for i, v := range col {
			b.bins[f][i] = uint8(binOf(b.cuts[f], v))
		}
	}
	for i := range b.all {
		b.all[i] = i
	}
	return b
}

func (b *builder) sampleRows(rng *rand.Rand) []int {
	if b.params.Subsample >= 1 {
		return append([]int(nil), b.all...)
	}
	rows := make([]int, 0, int(float64(b.n)*b.params.Subsample)+1)
	for _, i := range b.all {
		if rng.Float64() < b.params.Subsample {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, b.all[rng.IntN(b.n)])
	}
	return rows
}

type split struct {
	feature int
	cut     int
	gain    float64
}

func (b *builder) build(rows []int, grad, hess []float64, importance []float64) Tree {
	t := Tree{}
	b.grow(&t, rows, grad, hess, 0, importance)
	return t
}

// grow appends the subtree for rows and returns its root index.
func (b *builder) grow(t *Tree, rows []int, grad, hess []float64, depth int, importance []float64) int {
	var G, H float64
	for _, i := range rows {
		G += grad[i]
		H += hess[i]
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: -1})

	best, ok := b.bestSplit(rows, grad, hess, G, H, depth)
	if !ok {
		t.Nodes[idx].Value = -G / (H + b.params.Lambda) * b.params.LearningRate
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	binsF := b.bins[best.feature]
	for _, i := range rows {
		if int(binsF[i]) <= best.cut {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	importance[best.feature] += best.gain
	l := b.grow(t, left, grad, hess, depth+1, importance)
	r := b.grow(t, right, grad, hess, depth+1, importance)
	t.Nodes[idx] = Node{
		Feature:   best.feature,
		Threshold: b.cuts[best.feature][best.cut],
		Left:      l,
		Right:     r,
	}
	return idx
}

func (b *builder) bestSplit(rows []int, grad, hess []float64, G, H float64, depth int) (split, bool) {
	if depth >= b.params.MaxDepth || len(rows) < 2 {
		return split{}, false
	}

	lambda := b.params.Lambda
	parent := G * G / (H + lambda)
	best := split{gain: 1e-12}
	found := false

	var hg, hh [256]float64
	for f, cuts := range b.cuts {
		if len(cuts) == 0 {
			continue
		}
		nb := len(cuts) + 1
		for k := 0; k < nb; k++ {
			hg[k], hh[k] = 0, 0
		}
		binsF := b.bins[f]
		for _, i := range rows {
			k := binsF[i]
			hg[k] += grad[i]
			hh[k] += hess[i]
		}

		var GL, HL float64
		for c := 0; c < nb-1; c++ {
			GL += hg[c]
			HL += hh[c]
			GR, HR := G-GL, H-HL
			if HL < b.params.MinChildWeight || HR < b.params.MinChildWeight {
				continue
			}
			gain := 0.5 * (GL*GL/(HL+lambda) + GR*GR/(HR+lambda) - parent)
			if gain > best.gain {
				best = split{feature: f, cut: c, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
