package nanostring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"guanin/internal/engine"
	"guanin/internal/logging"
	"guanin/internal/types"
)

var errNoReferenceGenes = errors.New("no reference gene candidates; lower the housekeeping minimum counts or choose another strategy")

// ContentNorm selects reference genes by the configured strategy and scales
// each lane by the reference genes' geometric mean.
func (e *Engine) ContentNorm(_ context.Context, snap engine.Snapshot) (*types.ContentNormArtifacts, error) {
	if snap.TechNorm == nil || snap.TechNorm.Matrix == nil {
		return nil, errNoTechNorm
	}
	p := snap.Params
	m := snap.TechNorm.Matrix.Clone()
	out := &types.ContentNormArtifacts{
		Method:     p.RefGeneMethod,
		Additional: p.AdditionalNorm,
		Factors:    map[string]float64{},
	}

	candidates := selectCandidates(m, p, out)
	candidates = applyGroupFilter(m, candidates, groupsFor(snap), p.GroupFilter, out)
	for _, row := range candidates {
		out.Candidates = append(out.Candidates, row.Name)
	}

	if err := resolveReferenceGenes(m, candidates, p, out); err != nil {
		return nil, err
	}
	if len(out.ReferenceGenes) == 0 {
		return nil, errNoReferenceGenes
	}

	factors := referenceFactors(m, out.ReferenceGenes, out.Weights)
	for col, lane := range m.Lanes {
		out.Factors[lane] = factors[col]
		for i := range m.Rows {
			m.Rows[i].Values[col] *= factors[col]
		}
	}

	switch p.AdditionalNorm {
	case types.AdditionalQuantile:
		quantileNormalize(m)
		out.Provenance = append(out.Provenance, "quantile normalization applied")
	case types.AdditionalStandardization:
		standardize(m)
		out.Provenance = append(out.Provenance, "library size standardization applied")
	}
	out.Matrix = m
	e.logger.Info("content normalization complete",
		logging.F("method", string(p.RefGeneMethod)),
		logging.F("refgenes", out.ReferenceGenes),
	)
	return out, nil
}

// selectCandidates returns housekeeping genes that pass the minimum count filter,
// plus the most stable endogenous genes when enabled.
func selectCandidates(m *types.CountMatrix, p types.Parameters, out *types.ContentNormArtifacts) []types.GeneRow {
	minCounts := float64(p.HousekeepingMinCounts)
	var picked []types.GeneRow
	var lowHK []string
	for _, row := range m.Rows {
		if row.CodeClass != types.CodeClassHousekeeping {
			continue
		}
		if mean(row.Values) < minCounts {
			lowHK = append(lowHK, row.Name)
			continue
		}
		picked = append(picked, row)
	}
	if len(lowHK) > 0 {
		out.Provenance = append(out.Provenance, "housekeeping genes below minimum counts: "+joinNames(lowHK))
	}

	if p.IncludeBestEndogenous && p.BestEndogenousCount > 0 {
		var endo []types.GeneRow
		for _, row := range m.Rows {
			if row.CodeClass == types.CodeClassEndogenous && mean(row.Values) >= minCounts && mean(row.Values) > 0 {
				endo = append(endo, row)
			}
		}
		sort.SliceStable(endo, func(i, j int) bool {
			ci, cj := cv(endo[i].Values), cv(endo[j].Values)
			if ci != cj {
				return ci < cj
			}
			return endo[i].Name < endo[j].Name
		})
		if len(endo) > p.BestEndogenousCount {
			endo = endo[:p.BestEndogenousCount]
		}
		var names []string
		for _, row := range endo {
			names = append(names, row.Name)
		}
		if len(names) > 0 {
			out.Provenance = append(out.Provenance, "best endogenous genes added: "+joinNames(names))
		}
		picked = append(picked, endo...)
	}
	return picked
}

func groupsFor(snap engine.Snapshot) map[string]string {
	if snap.Load == nil || snap.Load.Dataset == nil {
		return nil
	}
	return snap.Load.Dataset.Groups
}

// applyGroupFilter tests each candidate for expression differences between
// groups and drops or flags the genes with p < 0.05.
func applyGroupFilter(m *types.CountMatrix, rows []types.GeneRow, groups map[string]string, filter types.GroupFilter, out *types.ContentNormArtifacts) []types.GeneRow {
	if filter == types.GroupFilterNone || filter == "" {
		out.Provenance = append(out.Provenance, "group variation filter disabled")
		return rows
	}
	laneGroup := make([]string, len(m.Lanes))
	names := map[string]struct{}{}
	for col, lane := range m.Lanes {
		laneGroup[col] = groups[lane]
		if laneGroup[col] != "" {
			names[laneGroup[col]] = struct{}{}
		}
	}
	if len(names) < 2 {
		out.Provenance = append(out.Provenance, "group variation filter skipped: fewer than two groups")
		return rows
	}
	order := make([]string, 0, len(names))
	for name := range names {
		order = append(order, name)
	}
	sort.Strings(order)

	var kept []types.GeneRow
	for _, row := range rows {
		samples := make([][]float64, len(order))
		for col, g := range laneGroup {
			if g == "" {
				continue
			}
			idx := sort.SearchStrings(order, g)
			samples[idx] = append(samples[idx], row.Values[col])
		}
		var pValue float64
		if filter.Test() == "wilcoxon" {
			pValue = pairwiseMannWhitney(samples)
		} else {
			pValue = kruskalWallis(samples)
		}
		if pValue >= significance {
			kept = append(kept, row)
			continue
		}
		if filter.Removes() {
			out.FilteredGenes = append(out.FilteredGenes, row.Name)
			continue
		}
		out.FlaggedGenes = append(out.FlaggedGenes, row.Name)
		kept = append(kept, row)
	}
	out.Provenance = append(out.Provenance, fmt.Sprintf("group variation filter %s across %d groups", filter, len(order)))
	return kept
}

func resolveReferenceGenes(m *types.CountMatrix, candidates []types.GeneRow, p types.Parameters, out *types.ContentNormArtifacts) error {
	take := func(names []string, n int) []string {
		out.Requested = n
		if len(names) < n {
			out.Shortfall = n - len(names)
			out.Provenance = append(out.Provenance, fmt.Sprintf("requested %d reference genes, %d available", n, len(names)))
			return names
		}
		return names[:n]
	}

	switch p.RefGeneMethod {
	case types.RefGenesManual:
		for _, gene := range p.RefGenes {
			row, ok := m.Row(gene)
			if !ok || !isContent(row.CodeClass) {
				out.MissingGenes = append(out.MissingGenes, gene)
				continue
			}
			out.ReferenceGenes = append(out.ReferenceGenes, gene)
		}
		if len(out.ReferenceGenes) == 0 {
			return fmt.Errorf("none of the selected reference genes are in the data: %s", joinNames(p.RefGenes))
		}
		out.Provenance = append(out.Provenance, "reference genes chosen manually")

	case types.RefGenesAllEndogenous:
		for _, row := range m.Rows {
			if row.CodeClass == types.CodeClassEndogenous && mean(row.Values) > 0 {
				out.ReferenceGenes = append(out.ReferenceGenes, row.Name)
			}
		}
		out.Provenance = append(out.Provenance, "all expressed endogenous genes used as reference")

	case types.RefGenesTopNExpressed:
		filtered := map[string]struct{}{}
		for _, gene := range out.FilteredGenes {
			filtered[gene] = struct{}{}
		}
		var sorted []types.GeneRow
		for _, row := range m.Rows {
			if _, gone := filtered[row.Name]; gone {
				continue
			}
			if row.CodeClass == types.CodeClassEndogenous && mean(row.Values) > 0 {
				sorted = append(sorted, row)
			}
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			mi, mj := mean(sorted[i].Values), mean(sorted[j].Values)
			if mi != mj {
				return mi > mj
			}
			return sorted[i].Name < sorted[j].Name
		})
		names := make([]string, len(sorted))
		for i, row := range sorted {
			names[i] = row.Name
		}
		out.ReferenceGenes = take(names, p.RefGeneCount)
		out.Provenance = append(out.Provenance, fmt.Sprintf("top %d most expressed endogenous genes", p.RefGeneCount))

	default:
		if len(candidates) == 0 {
			return errNoReferenceGenes
		}
		out.Ranking = genormRank(candidates)
		names := make([]string, len(out.Ranking))
		for i, g := range out.Ranking {
			names[i] = g.Gene
		}
		switch p.RefGeneMethod {
		case types.RefGenesGenormTopN:
			out.ReferenceGenes = take(names, p.RefGeneCount)
			out.Provenance = append(out.Provenance, fmt.Sprintf("top %d geNorm ranked candidates", p.RefGeneCount))
		case types.RefGenesWeightedGenorm:
			out.ReferenceGenes = take(names, p.RefGeneCount)
			out.Weights = stabilityWeights(out.Ranking, out.ReferenceGenes)
			out.Provenance = append(out.Provenance, "geNorm ranked candidates weighted by 1/M")
		default:
			n, vs := optimalGeneCount(out.Ranking, m)
			out.ReferenceGenes = names[:n]
			out.Provenance = append(out.Provenance, fmt.Sprintf("geNorm selected %d genes (pairwise variation %s)", n, formatList(vs)))
		}
	}
	return nil
}

// stabilityWeights gives each selected gene a weight proportional to 1/M,
// normalized to sum to one. A zero M gets the largest finite weight present.
func stabilityWeights(ranking []types.GeneStability, genes []string) map[string]float64 {
	mByGene := map[string]float64{}
	for _, g := range ranking {
		mByGene[g.Gene] = g.M
	}
	raw := map[string]float64{}
	maxFinite := 0.0
	for _, gene := range genes {
		if m := mByGene[gene]; m > 0 {
			raw[gene] = 1 / m
			maxFinite = math.Max(maxFinite, raw[gene])
		}
	}
	if maxFinite == 0 {
		maxFinite = 1
	}
	total := 0.0
	for _, gene := range genes {
		if _, ok := raw[gene]; !ok {
			raw[gene] = maxFinite
		}
		total += raw[gene]
	}
	out := make(map[string]float64, len(genes))
	for _, gene := range genes {
		out[gene] = raw[gene] / total
	}
	return out
}

// referenceFactors returns one factor per lane: the mean normalization factor
// of all lanes divided by the lane's own. A lane's normalization factor is the
// (weighted) geometric mean of its reference gene counts plus one.
func referenceFactors(m *types.CountMatrix, genes []string, weights map[string]float64) []float64 {
	nf := make([]float64, len(m.Lanes))
	for col := range m.Lanes {
		acc, wsum := 0.0, 0.0
		for _, gene := range genes {
			row, _ := m.Row(gene)
			w := 1.0
			if weights != nil {
				w = weights[gene]
			}
			acc += w * math.Log(row.Values[col]+1)
			wsum += w
		}
		nf[col] = math.Exp(acc / wsum)
	}
	target := mean(nf)
	out := make([]float64, len(nf))
	for col := range nf {
		out[col] = target / nf[col]
	}
	return out
}

func quantileNormalize(m *types.CountMatrix) {
	var rows []int
	for i, row := range m.Rows {
		if isContent(row.CodeClass) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return
	}
	order := make([][]int, len(m.Lanes))
	rankMean := make([]float64, len(rows))
	for col := range m.Lanes {
		idx := append([]int(nil), rows...)
		sort.SliceStable(idx, func(a, b int) bool {
			return m.Rows[idx[a]].Values[col] < m.Rows[idx[b]].Values[col]
		})
		order[col] = idx
		for k, r := range idx {
			rankMean[k] += m.Rows[r].Values[col]
		}
	}
	for k := range rankMean {
		rankMean[k] /= float64(len(m.Lanes))
	}
	for col := range m.Lanes {
		for k, r := range order[col] {
			m.Rows[r].Values[col] = rankMean[k]
		}
	}
}

// standardize scales every lane to the mean library size.
func standardize(m *types.CountMatrix) {
	totals := make([]float64, len(m.Lanes))
	for _, row := range m.Rows {
		if !isContent(row.CodeClass) {
			continue
		}
		for col, v := range row.Values {
			totals[col] += v
		}
	}
	target := mean(totals)
	for col, total := range totals {
		if total == 0 {
			continue
		}
		scale := target / total
		for i := range m.Rows {
			if isContent(m.Rows[i].CodeClass) {
				m.Rows[i].Values[col] *= scale
			}
		}
	}
}

func formatList(values []float64) string {
	if len(values) == 0 {
		return "n/a"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return strings.Join(parts, ", ")
}
