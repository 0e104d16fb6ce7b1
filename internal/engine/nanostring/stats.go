package nanostring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

func sum(values []float64) float64 {
	return floats.Sum(values)
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values)
}

// geomean of strictly positive values; non-positive entries are skipped.
func geomean(values []float64) float64 {
	positive := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return 0
	}
	return stat.GeometricMean(positive, nil)
}

// geomeanPlusOne is exp(mean(log(x+1))), defined for zero counts.
func geomeanPlusOne(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	shifted := append([]float64(nil), values...)
	floats.AddConst(1, shifted)
	return stat.GeometricMean(shifted, nil)
}

func median(values []float64) float64 {
	return quantile(values, 0.5)
}

// quantile interpolates linearly between closest ranks (R type 7, the
// numpy default). stat.Quantile only offers the empirical and LinInterp
// (R type 4) estimators, which give different quartiles on small lanes.
func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func iqr(values []float64) float64 {
	return quantile(values, 0.75) - quantile(values, 0.25)
}

func cv(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return math.Inf(1)
	}
	return stddev(values) / m
}

func log2p1(v float64) float64 {
	return math.Log2(v + 1)
}

// rSquared of the least squares line through (x, y).
func rSquared(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, alpha, beta)
	if math.IsNaN(r2) {
		return 0
	}
	return r2
}

// ranks returns 1-based ranks with ties sharing their average rank, and the
// tie correction term sum(t^3 - t).
func ranks(values []float64) ([]float64, float64) {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
	out := make([]float64, len(values))
	ties := 0.0
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && values[idx[j]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			out[idx[k]] = avg
		}
		t := float64(j - i)
		ties += t*t*t - t
		i = j
	}
	return out, ties
}

// kruskalWallis returns the p-value of the H test across groups.
func kruskalWallis(groups [][]float64) float64 {
	var all []float64
	var sizes []int
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		all = append(all, g...)
		sizes = append(sizes, len(g))
	}
	if len(sizes) < 2 {
		return 1
	}
	n := float64(len(all))
	r, ties := ranks(all)
	h := 0.0
	offset := 0
	for _, size := range sizes {
		rs := sum(r[offset : offset+size])
		h += rs * rs / float64(size)
		offset += size
	}
	h = 12/(n*(n+1))*h - 3*(n+1)
	correction := 1 - ties/(n*n*n-n)
	if correction <= 0 {
		return 1
	}
	h /= correction
	return chiSquareSF(h, float64(len(sizes)-1))
}

// mannWhitney returns the two-sided p-value of the rank-sum test using the
// normal approximation with continuity and tie correction.
func mannWhitney(a, b []float64) float64 {
	n1, n2 := float64(len(a)), float64(len(b))
	if n1 == 0 || n2 == 0 {
		return 1
	}
	all := append(append([]float64(nil), a...), b...)
	r, ties := ranks(all)
	r1 := sum(r[:len(a)])
	u := r1 - n1*(n1+1)/2
	n := n1 + n2
	mu := n1 * n2 / 2
	sigma := math.Sqrt(n1 * n2 / 12 * ((n + 1) - ties/(n*(n-1))))
	if sigma == 0 {
		return 1
	}
	z := (math.Abs(u-mu) - 0.5) / sigma
	if z < 0 {
		z = 0
	}
	return math.Min(1, 2*normalSF(z))
}

// pairwiseMannWhitney runs every pair of groups and returns the smallest
// Bonferroni-adjusted p-value.
func pairwiseMannWhitney(groups [][]float64) float64 {
	var nonEmpty [][]float64
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	if len(nonEmpty) < 2 {
		return 1
	}
	pairs := len(nonEmpty) * (len(nonEmpty) - 1) / 2
	best := 1.0
	for i := 0; i < len(nonEmpty); i++ {
		for j := i + 1; j < len(nonEmpty); j++ {
			p := math.Min(1, mannWhitney(nonEmpty[i], nonEmpty[j])*float64(pairs))
			if p < best {
				best = p
			}
		}
	}
	return best
}

func normalSF(z float64) float64 {
	return distuv.UnitNormal.Survival(z)
}

func chiSquareSF(x, df float64) float64 {
	if x <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: df}.Survival(x)
}
