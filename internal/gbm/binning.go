package gbm

import (
	"sort"
)

// cutPoints returns increasing split candidates for one feature.
// With few distinct values every midpoint is a candidate; otherwise
// candidates are midpoints at approximately equal-count quantiles.
func cutPoints(values []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var uniq []float64
	var counts []int
	for _, v := range sorted {
		if len(uniq) > 0 && uniq[len(uniq)-1] == v {
			counts[len(counts)-1]++
			continue
		}
		uniq = append(uniq, v)
		counts = append(counts, 1)
	}
	if len(uniq) < 2 {
		return nil
	}

	if len(uniq) <= maxBins {
		cuts := make([]float64, len(uniq)-1)
		for i := range cuts {
			cuts[i] = midpoint(uniq[i], uniq[i+1])
		}
		return cuts
	}

	n := len(sorted)
	cuts := make([]float64, 0, maxBins-1)
	cum := 0
	next := 1
	for i := 0; i < len(uniq)-1 && next < maxBins; i++ {
		cum += counts[i]
		if cum*maxBins >= next*n {
			cuts = append(cuts, midpoint(uniq[i], uniq[i+1]))
			for next < maxBins && cum*maxBins >= next*n {
				next++
			}
		}
	}
	return cuts
}

func midpoint(a, b float64) float64 {
	m := a + (b-a)/2
	if m <= a || m >= b {
		// adjacent floats; split on the upper value
		return b
	}
	return m
}

// binOf returns the number of cuts <= x. A split at cut c sends bins 0..c left,
// which is exactly x < cuts[c].
func binOf(cuts []float64, x float64) int {
	return sort.Search(len(cuts), func(i int) bool { return cuts[i] > x })
}
