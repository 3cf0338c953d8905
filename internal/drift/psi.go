package drift

import "math"

const (
	psiBins  = 10
	psiFloor = 1e-10
)

// PSI computes the Population Stability Index between an expected (baseline)
// sample and an actual (recent) sample using equal-width bins over their
// common range. Proportions are floored at 1e-10 so empty bins do not blow
// up the log term.
//
// Interpretation: <0.1 stable, 0.1-0.2 moderate shift, >0.2 significant.
func PSI(expected, actual []float64) float64 {
	if len(expected) == 0 || len(actual) == 0 {
		return 0
	}

	lo := math.Min(minOf(expected), minOf(actual))
	hi := math.Max(maxOf(expected), maxOf(actual))
	if lo == hi {
		return 0
	}

	width := (hi - lo) / psiBins
	expCounts := binCounts(expected, lo, width)
	actCounts := binCounts(actual, lo, width)

	psi := 0.0
	for i := 0; i < psiBins; i++ {
		e := math.Max(float64(expCounts[i])/float64(len(expected)), psiFloor)
		a := math.Max(float64(actCounts[i])/float64(len(actual)), psiFloor)
		psi += (a - e) * math.Log(a/e)
	}
	return psi
}

func binCounts(xs []float64, lo, width float64) [psiBins]int {
	var counts [psiBins]int
	for _, x := range xs {
		idx := int((x - lo) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= psiBins {
			idx = psiBins - 1
		}
		counts[idx]++
	}
	return counts
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
