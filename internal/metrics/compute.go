package metrics

import (
	"math"
	"slices"
)

// distribution summarizes a sample of confidences.
type distribution struct {
	mean, p10, median, p90 float64
}

func summarize(values []float64) distribution {
	if len(values) == 0 {
		return distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return distribution{
		mean:   sum / float64(len(sorted)),
		p10:    quantile(sorted, 0.1),
		median: quantile(sorted, 0.5),
		p90:    quantile(sorted, 0.9),
	}
}

// quantile interpolates linearly between closest ranks. sorted must be ascending.
func quantile(sorted []float64, q float64) float64 {
	switch n := len(sorted); {
	case n == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[n-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := math.Floor(pos)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (pos-lo)*(sorted[i+1]-sorted[i])
}
