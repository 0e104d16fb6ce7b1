// Package report renders stage artifacts as markdown. The engine writes these
// documents to the output folder and the terminal UI renders them in place.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"guanin/internal/types"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func list(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}

func table(b *strings.Builder, header []string, rows [][]string) {
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	b.WriteByte('\n')
}

// Load describes the raw data set right after loading.
func Load(load *types.LoadArtifacts) string {
	var b strings.Builder
	b.WriteString("# Loaded data\n\n")
	if load == nil || load.Dataset == nil {
		b.WriteString("Nothing loaded.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%d lanes from %d files.\n\n", len(load.Dataset.Lanes), len(load.Files))
	rows := make([][]string, 0, len(load.Dataset.Lanes))
	for _, lane := range load.Dataset.Lanes {
		group := load.Dataset.Groups[lane.ID]
		if group == "" {
			group = "-"
		}
		rows = append(rows, []string{
			lane.ID,
			lane.SampleID,
			strconv.Itoa(lane.FovCounted) + "/" + strconv.Itoa(lane.FovCount),
			num(lane.BindingDensity),
			strconv.Itoa(len(lane.Probes)),
			group,
		})
	}
	table(&b, []string{"lane", "sample", "fov", "binding density", "probes", "group"}, rows)
	if len(load.Skipped) > 0 {
		b.WriteString("Skipped files: " + list(load.Skipped) + "\n\n")
	}
	writeWarnings(&b, load.Warnings)
	return b.String()
}

// QC is the quality control report.
func QC(qc *types.QCArtifacts) string {
	var b strings.Builder
	b.WriteString("# Quality control\n\n")
	if qc == nil {
		b.WriteString("QC has not run.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Background policy: %s", qc.BackgroundPolicy)
	if qc.BackgroundPolicy == types.BackgroundManual {
		fmt.Fprintf(&b, " (%s)", num(qc.Background))
	}
	b.WriteString("\n\n")
	b.WriteString("| metric | range |\n| --- | --- |\n")
	for _, metric := range types.Metrics {
		r := "-"
		if bounds, ok := qc.Range(metric); ok {
			r = bounds.String()
		}
		fmt.Fprintf(&b, "| %s | %s |\n", metric, r)
	}
	fmt.Fprintf(&b, "| %% below background | <= %s |\n\n", num(qc.LaneRemovalPercent))

	rows := make([][]string, 0, len(qc.Lanes))
	for _, lane := range qc.Lanes {
		flags := "ok"
		if lane.Flagged() {
			flags = strings.Join(lane.Flags, "; ")
		}
		rows = append(rows, []string{
			lane.LaneID, num(lane.FOV), num(lane.BindingDensity), num(lane.Linearity),
			num(lane.ScalingFactor), num(lane.Background), num(lane.PercentBelowBackground), flags,
		})
	}
	table(&b, []string{"lane", "fov", "binding density", "linearity", "scaling factor", "background", "% below bg", "flags"}, rows)
	fmt.Fprintf(&b, "Flagged lanes: %s\n\n", list(qc.FlaggedLanes))
	fmt.Fprintf(&b, "Removed lanes: %s\n\n", list(qc.RemovedLanes))
	writeWarnings(&b, qc.Warnings)
	return b.String()
}

// ContentNorm describes reference gene selection and factors.
func ContentNorm(cn *types.ContentNormArtifacts) string {
	var b strings.Builder
	b.WriteString("# Content normalization\n\n")
	if cn == nil {
		b.WriteString("Content normalization has not run.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Strategy: %s\n\n", cn.Method)
	fmt.Fprintf(&b, "Reference genes: %s\n\n", list(cn.ReferenceGenes))
	if cn.Shortfall > 0 {
		fmt.Fprintf(&b, "Requested %d reference genes, only %d available.\n\n", cn.Requested, len(cn.ReferenceGenes))
	}
	if len(cn.MissingGenes) > 0 {
		fmt.Fprintf(&b, "Requested genes not found: %s\n\n", list(cn.MissingGenes))
	}
	fmt.Fprintf(&b, "Candidates: %s\n\n", list(cn.Candidates))
	if len(cn.FilteredGenes) > 0 {
		fmt.Fprintf(&b, "Removed by group filter: %s\n\n", list(cn.FilteredGenes))
	}
	if len(cn.FlaggedGenes) > 0 {
		fmt.Fprintf(&b, "Flagged by group filter: %s\n\n", list(cn.FlaggedGenes))
	}
	if len(cn.Ranking) > 0 {
		rows := make([][]string, 0, len(cn.Ranking))
		for i, g := range cn.Ranking {
			rows = append(rows, []string{strconv.Itoa(i + 1), g.Gene, num(g.M)})
		}
		b.WriteString("## geNorm stability\n\n")
		table(&b, []string{"rank", "gene", "M"}, rows)
	}
	if len(cn.Weights) > 0 {
		b.WriteString("## Weights\n\n")
		table(&b, []string{"gene", "weight"}, floatRows(cn.Weights, cn.ReferenceGenes))
	}
	b.WriteString("## Lane factors\n\n")
	table(&b, []string{"lane", "factor"}, floatRows(cn.Factors, laneOrder(cn.Matrix, cn.Factors)))
	if cn.Additional != "" && cn.Additional != types.AdditionalNone {
		fmt.Fprintf(&b, "Additional normalization: %s\n\n", cn.Additional)
	}
	if len(cn.Provenance) > 0 {
		b.WriteString("## Provenance\n\n")
		for _, line := range cn.Provenance {
			b.WriteString("- " + line + "\n")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Evaluation is the normalization report written after evaluation.
func Evaluation(ev *types.EvaluationArtifacts, cn *types.ContentNormArtifacts) string {
	var b strings.Builder
	b.WriteString("# Normalization evaluation\n\n")
	if ev == nil {
		b.WriteString("Evaluation has not run.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "Mean RLE IQR, raw: %s\n\n", num(ev.RawMeanIQR))
	fmt.Fprintf(&b, "Mean RLE IQR, normalized: %s\n\n", num(ev.NormMeanIQR))
	rows := make([][]string, 0, len(ev.Lanes))
	for _, lane := range ev.Lanes {
		rows = append(rows, []string{lane.LaneID, num(lane.Raw), num(lane.Norm)})
	}
	table(&b, []string{"lane", "raw IQR", "normalized IQR"}, rows)
	if cn != nil {
		fmt.Fprintf(&b, "Reference genes: %s\n\n", list(cn.ReferenceGenes))
	}
	fmt.Fprintf(&b, "Export format: %s\n\n", ev.ExportFormat)
	return b.String()
}

// Summary is the short end-of-run overview.
func Summary(params types.Parameters, d types.Derived) string {
	var b strings.Builder
	b.WriteString("# Analysis summary\n\n")
	b.WriteString(d.Status + "\n\n")
	b.WriteString("| stage | version | state |\n| --- | --- | --- |\n")
	for _, stage := range types.RunnableStages {
		rec, ok := d.Record(stage)
		state := "not run"
		version := "-"
		if ok {
			version = strconv.FormatUint(rec.Version, 10)
			state = "current"
			if d.Stale(stage) {
				state = "stale"
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", stage.Label(), version, state)
	}
	b.WriteByte('\n')
	if d.Load != nil && d.Load.Dataset != nil {
		fmt.Fprintf(&b, "Lanes loaded: %d\n\n", len(d.Load.Dataset.Lanes))
	}
	if d.QC != nil {
		fmt.Fprintf(&b, "Lanes removed by QC: %s\n\n", list(d.QC.RemovedLanes))
	}
	if d.TechNorm != nil {
		fmt.Fprintf(&b, "Technical normalization: %s\n\n", d.TechNorm.Method)
	}
	if d.ContentNorm != nil {
		fmt.Fprintf(&b, "Reference genes (%s): %s\n\n", d.ContentNorm.Method, list(d.ContentNorm.ReferenceGenes))
	}
	if d.Evaluation != nil {
		fmt.Fprintf(&b, "Mean RLE IQR: raw %s, normalized %s\n\n", num(d.Evaluation.RawMeanIQR), num(d.Evaluation.NormMeanIQR))
	}
	fmt.Fprintf(&b, "Output folder: %s\n", params.OutputFolder)
	return b.String()
}

func writeWarnings(b *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	b.WriteString("## Warnings\n\n")
	for _, w := range warnings {
		b.WriteString("- " + w + "\n")
	}
	b.WriteByte('\n')
}

func floatRows(values map[string]float64, order []string) [][]string {
	rows := make([][]string, 0, len(values))
	for _, key := range order {
		v, ok := values[key]
		if !ok {
			continue
		}
		rows = append(rows, []string{key, num(v)})
	}
	return rows
}

func laneOrder(m *types.CountMatrix, values map[string]float64) []string {
	if m != nil && len(m.Lanes) > 0 {
		return m.Lanes
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
