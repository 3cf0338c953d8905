package drift

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WelchTTest performs Welch's two-sample t-test (unequal variances) and
// returns the t statistic and two-sided p-value. Degrees of freedom follow
// the Welch-Satterthwaite approximation. Requires at least two points per
// sample; callers below that fall back to a plain mean-difference rule.
func WelchTTest(a, b []float64) (t, pvalue float64) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 1
	}

	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	se2 := varA/na + varB/nb
	if se2 == 0 {
		if meanA == meanB {
			return 0, 1
		}
		return math.Inf(sign(meanA - meanB)), 0
	}

	t = (meanA - meanB) / math.Sqrt(se2)

	df := se2 * se2 / ((varA*varA)/(na*na*(na-1)) + (varB*varB)/(nb*nb*(nb-1)))
	if df < 1 || math.IsNaN(df) {
		df = 1
	}

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pvalue = 2 * dist.CDF(-math.Abs(t))
	return t, pvalue
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}
