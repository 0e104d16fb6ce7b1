package nanostring

import (
	"math"
	"sort"

	"guanin/internal/types"
)

// pairwiseVariationCutoff is the geNorm V threshold below which adding one
// more reference gene is not worth it.
const pairwiseVariationCutoff = 0.15

// genormRank orders genes by expression stability, most stable first. The
// least stable gene is dropped repeatedly; each gene keeps the M value it had
// when it was dropped and the last two share theirs.
func genormRank(rows []types.GeneRow) []types.GeneStability {
	if len(rows) == 0 {
		return nil
	}
	if len(rows) == 1 {
		return []types.GeneStability{{Gene: rows[0].Name}}
	}
	logs := make(map[string][]float64, len(rows))
	active := make([]string, 0, len(rows))
	for _, row := range rows {
		l := make([]float64, len(row.Values))
		for i, v := range row.Values {
			l[i] = log2p1(v)
		}
		logs[row.Name] = l
		active = append(active, row.Name)
	}
	sort.Strings(active)

	var dropped []types.GeneStability
	for len(active) > 2 {
		m := genormM(active, logs)
		worst := 0
		for i := 1; i < len(active); i++ {
			if m[i] >= m[worst] {
				worst = i
			}
		}
		dropped = append(dropped, types.GeneStability{Gene: active[worst], M: m[worst]})
		active = append(active[:worst], active[worst+1:]...)
	}
	m := genormM(active, logs)
	out := []types.GeneStability{{Gene: active[0], M: m[0]}, {Gene: active[1], M: m[1]}}
	for i := len(dropped) - 1; i >= 0; i-- {
		out = append(out, dropped[i])
	}
	return out
}

// genormM is the mean pairwise variation of each gene against the others.
func genormM(genes []string, logs map[string][]float64) []float64 {
	out := make([]float64, len(genes))
	for j, a := range genes {
		acc := 0.0
		for k, b := range genes {
			if j == k {
				continue
			}
			diff := make([]float64, len(logs[a]))
			for i := range diff {
				diff[i] = logs[a][i] - logs[b][i]
			}
			acc += stddev(diff)
		}
		out[j] = acc / float64(len(genes)-1)
	}
	return out
}

// optimalGeneCount picks how many top-ranked genes to use: the smallest n whose
// pairwise variation V(n/n+1) is under the cutoff, else the n with the lowest V.
// It also returns the V values in order, starting at n=2.
func optimalGeneCount(ranking []types.GeneStability, m *types.CountMatrix) (int, []float64) {
	if len(ranking) <= 2 {
		return len(ranking), nil
	}
	rows := make([]types.GeneRow, len(ranking))
	for i, g := range ranking {
		rows[i], _ = m.Row(g.Gene)
	}
	nf := func(n, col int) float64 {
		values := make([]float64, n)
		for i := 0; i < n; i++ {
			values[i] = rows[i].Values[col]
		}
		return geomeanPlusOne(values)
	}
	var vs []float64
	best, bestV := len(ranking), math.Inf(1)
	for n := 2; n < len(ranking); n++ {
		ratios := make([]float64, len(m.Lanes))
		for col := range m.Lanes {
			ratios[col] = math.Log2(nf(n, col) / nf(n+1, col))
		}
		v := stddev(ratios)
		vs = append(vs, v)
		if v < pairwiseVariationCutoff {
			return n, vs
		}
		if v < bestV {
			best, bestV = n, v
		}
	}
	return best, vs
}
