package drift

import (
	"math"
	"sort"
)

// KSTest computes the two-sample Kolmogorov-Smirnov statistic and its
// asymptotic p-value. The statistic is the maximum distance between the two
// empirical CDFs; the p-value uses the Kolmogorov distribution with the
// small-sample correction en + 0.12 + 0.11/en.
func KSTest(a, b []float64) (statistic, pvalue float64) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 1
	}

	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)

	var i, j int
	var d float64
	for i < len(as) && j < len(bs) {
		x := math.Min(as[i], bs[j])
		for i < len(as) && as[i] <= x {
			i++
		}
		for j < len(bs) && bs[j] <= x {
			j++
		}
		fa := float64(i) / float64(len(as))
		fb := float64(j) / float64(len(bs))
		if diff := math.Abs(fa - fb); diff > d {
			d = diff
		}
	}

	n1, n2 := float64(len(as)), float64(len(bs))
	en := math.Sqrt(n1 * n2 / (n1 + n2))
	return d, kolmogorovQ((en + 0.12 + 0.11/en) * d)
}

// kolmogorovQ evaluates the complementary Kolmogorov CDF
// Q(l) = 2 * sum_{j>=1} (-1)^(j-1) exp(-2 j^2 l^2).
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	const (
		maxTerms = 100
		eps      = 1e-10
	)
	sum := 0.0
	sign := 1.0
	for j := 1; j <= maxTerms; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < eps {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
