package nanostring

import (
	"math"
	"strings"
	"testing"

	"guanin/internal/types"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestChiSquareSF(t *testing.T) {
	cases := []struct {
		x, df, want float64
	}{
		{3.841458820694124, 1, 0.05},
		{5.991464547107979, 2, 0.05},
		{0, 3, 1},
		{20, 2, math.Exp(-10)},
	}
	for _, tc := range cases {
		if got := chiSquareSF(tc.x, tc.df); !approx(got, tc.want, 1e-6) {
			t.Fatalf("chiSquareSF(%v, %v)=%v want %v", tc.x, tc.df, got, tc.want)
		}
	}
}

func TestRanksAverageTies(t *testing.T) {
	r, ties := ranks([]float64{10, 20, 20, 5})
	want := []float64{2, 3.5, 3.5, 1}
	for i := range want {
		if r[i] != want[i] {
			t.Fatalf("unexpected ranks: %v", r)
		}
	}
	if ties != 6 {
		t.Fatalf("unexpected tie term: %v", ties)
	}
}

func TestGroupTestsSeparateShiftedGroups(t *testing.T) {
	low := []float64{10, 11, 12, 13, 14, 15}
	high := []float64{100, 101, 102, 103, 104, 105}
	if p := kruskalWallis([][]float64{low, high}); p >= significance {
		t.Fatalf("kruskal p=%v should be significant", p)
	}
	if p := mannWhitney(low, high); p >= significance {
		t.Fatalf("mann-whitney p=%v should be significant", p)
	}
	same := []float64{5, 5, 5}
	if p := kruskalWallis([][]float64{same, same}); p != 1 {
		t.Fatalf("identical groups should give p=1, got %v", p)
	}
	if p := pairwiseMannWhitney([][]float64{low}); p != 1 {
		t.Fatalf("single group should give p=1, got %v", p)
	}
}

func TestQuantileAndIQR(t *testing.T) {
	values := []float64{4, 1, 3, 2}
	if got := median(values); got != 2.5 {
		t.Fatalf("median=%v", got)
	}
	if got := iqr(values); !approx(got, 1.5, 1e-12) {
		t.Fatalf("iqr=%v", got)
	}
	if got := geomean([]float64{1, 4, 0}); !approx(got, 2, 1e-12) {
		t.Fatalf("geomean=%v", got)
	}
}

func TestGenormRanksCoregulatedGenesFirst(t *testing.T) {
	rows := []types.GeneRow{
		{Name: "A", Values: []float64{99, 199, 399, 799}},
		{Name: "B", Values: []float64{199, 399, 799, 1599}},
		{Name: "C", Values: []float64{500, 90, 1200, 300}},
		{Name: "D", Values: []float64{49, 99, 199, 399}},
	}
	ranking := genormRank(rows)
	if len(ranking) != 4 {
		t.Fatalf("unexpected ranking length: %d", len(ranking))
	}
	if ranking[3].Gene != "C" {
		t.Fatalf("noisy gene should rank last: %#v", ranking)
	}
	if ranking[0].M > 1e-9 || ranking[1].M > 1e-9 {
		t.Fatalf("perfectly co-regulated genes should have M=0: %#v", ranking)
	}
}

func TestQuantileNormalizeEqualizesDistributions(t *testing.T) {
	m := &types.CountMatrix{
		Lanes: []string{"a", "b"},
		Rows: []types.GeneRow{
			{Name: "g1", CodeClass: types.CodeClassEndogenous, Values: []float64{1, 20}},
			{Name: "g2", CodeClass: types.CodeClassEndogenous, Values: []float64{3, 10}},
			{Name: "p", CodeClass: types.CodeClassPositive, Values: []float64{7, 7}},
		},
	}
	quantileNormalize(m)
	g1, _ := m.Row("g1")
	g2, _ := m.Row("g2")
	if g1.Values[0] != 5.5 || g1.Values[1] != 11.5 || g2.Values[0] != 11.5 || g2.Values[1] != 5.5 {
		t.Fatalf("unexpected quantile result: %v %v", g1.Values, g2.Values)
	}
	if p, _ := m.Row("p"); p.Values[0] != 7 {
		t.Fatalf("controls must be left alone: %v", p.Values)
	}
}

func TestDescriptiveStats(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := mean(values); got != 5 {
		t.Fatalf("mean=%v", got)
	}
	if got := stddev(values); !approx(got, math.Sqrt(32.0/7), 1e-12) {
		t.Fatalf("stddev=%v", got)
	}
	if mean(nil) != 0 || stddev([]float64{3}) != 0 || maxOf(nil) != 0 {
		t.Fatalf("empty inputs should give zero")
	}
	if got := geomeanPlusOne([]float64{0, 3}); !approx(got, 2, 1e-12) {
		t.Fatalf("geomeanPlusOne=%v", got)
	}
	if got := geomean([]float64{-1, 0}); got != 0 {
		t.Fatalf("geomean without positives=%v", got)
	}
}

func TestRSquared(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	if got := rSquared(x, []float64{3, 5, 7, 9}); !approx(got, 1, 1e-12) {
		t.Fatalf("perfect line r2=%v", got)
	}
	if got := rSquared(x, []float64{5, 5, 5, 5}); got != 0 {
		t.Fatalf("flat line r2=%v", got)
	}
	if got := rSquared(x, []float64{1, 3, 2, 4}); !approx(got, 0.64, 1e-12) {
		t.Fatalf("noisy r2=%v", got)
	}
}

func TestNormalSF(t *testing.T) {
	if got := normalSF(1.959963984540054); !approx(got, 0.025, 1e-9) {
		t.Fatalf("normalSF=%v", got)
	}
}

func TestRLEPlotDrawsSVG(t *testing.T) {
	svg, err := rlePlotSVG("Raw RLE", []string{"s1", "s2"}, [][]float64{{-0.2, 0, 0.3}, {0.1, -0.1, 0.4}})
	if err != nil {
		t.Fatalf("plot: %v", err)
	}
	if !strings.Contains(svg, "<svg") || !strings.Contains(svg, "</svg>") {
		t.Fatalf("unexpected plot output: %.200s", svg)
	}
}
