package nanostring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"guanin/internal/engine"
	"guanin/internal/logging"
	"guanin/internal/report"
	"guanin/internal/types"
)

const (
	rleRawPlotFile     = "images/rle_raw.svg"
	rleNormPlotFile    = "images/rle_norm.svg"
	normalizedFile     = "normalized_counts.csv"
	normReportFile     = "reports/norm_report.md"
	summaryFile        = "summary.md"
	descriptionLogFile = "analysis_description.log"
)

// Evaluate compares relative log expression of raw and normalized counts and
// exports the normalized matrix.
func (e *Engine) Evaluate(ctx context.Context, snap engine.Snapshot) (*types.EvaluationArtifacts, error) {
	if snap.Load == nil || snap.Load.Dataset == nil {
		return nil, errNotLoaded
	}
	if snap.QC == nil {
		return nil, errNoQC
	}
	if snap.ContentNorm == nil || snap.ContentNorm.Matrix == nil {
		return nil, errNoContentNorm
	}
	p := snap.Params
	raw := buildMatrix(keptLanes(snap.Load, snap.QC)).Filter(types.CodeClassEndogenous, types.CodeClassHousekeeping)
	norm := snap.ContentNorm.Matrix.Filter(types.CodeClassEndogenous, types.CodeClassHousekeeping)
	if len(raw.Rows) == 0 {
		return nil, fmt.Errorf("no endogenous or housekeeping genes to evaluate")
	}

	rawRLE := relativeLogExpression(raw)
	normRLE := relativeLogExpression(norm)
	out := &types.EvaluationArtifacts{ExportFormat: p.ExportFormat}
	var rawIQR, normIQR []float64
	for col, lane := range norm.Lanes {
		li := types.LaneIQR{LaneID: lane, Raw: iqr(rawRLE[col]), Norm: iqr(normRLE[col])}
		rawIQR = append(rawIQR, li.Raw)
		normIQR = append(normIQR, li.Norm)
		out.Lanes = append(out.Lanes, li)
	}
	out.RawMeanIQR = mean(rawIQR)
	out.NormMeanIQR = mean(normIQR)

	w, err := newWriter(ctx, p.OutputFolder)
	if err != nil {
		return nil, err
	}
	rawPlot, err := rlePlotSVG("Raw RLE", raw.Lanes, rawRLE)
	if err != nil {
		return nil, err
	}
	if err := w.writeText(rleRawPlotFile, rawPlot); err != nil {
		return nil, err
	}
	normPlot, err := rlePlotSVG("Normalized RLE", norm.Lanes, normRLE)
	if err != nil {
		return nil, err
	}
	if err := w.writeText(rleNormPlotFile, normPlot); err != nil {
		return nil, err
	}
	if err := w.writeCSV(normalizedFile, exportRows(snap.ContentNorm.Matrix, p.ExportFormat)); err != nil {
		return nil, err
	}
	if err := w.writeText(normReportFile, report.ContentNorm(snap.ContentNorm)+"\n"+report.Evaluation(out, snap.ContentNorm)); err != nil {
		return nil, err
	}
	if err := w.writeText(summaryFile, summaryText(p, snap, out)); err != nil {
		return nil, err
	}
	if err := w.writeText(descriptionLogFile, analysisDescription(p, snap, out)); err != nil {
		return nil, err
	}
	out.Paths = w.paths
	e.logger.Info("evaluation complete",
		logging.F("raw_iqr", out.RawMeanIQR),
		logging.F("norm_iqr", out.NormMeanIQR),
	)
	return out, nil
}

// relativeLogExpression returns, per lane, log2(count+1) minus the gene's
// median across lanes.
func relativeLogExpression(m *types.CountMatrix) [][]float64 {
	out := make([][]float64, len(m.Lanes))
	for _, row := range m.Rows {
		logs := make([]float64, len(row.Values))
		for i, v := range row.Values {
			logs[i] = log2p1(v)
		}
		med := median(logs)
		for col := range logs {
			out[col] = append(out[col], logs[col]-med)
		}
	}
	return out
}

func exportValue(v float64, format types.ExportFormat) float64 {
	switch format {
	case types.ExportLog2:
		return math.Log2(v + 1)
	case types.ExportLog10:
		return math.Log10(v + 1)
	}
	return v
}

func exportRows(m *types.CountMatrix, format types.ExportFormat) [][]string {
	header := append([]string{"gene", "code_class"}, m.Lanes...)
	rows := [][]string{header}
	for _, row := range m.Rows {
		line := []string{row.Name, row.CodeClass}
		for _, v := range row.Values {
			line = append(line, strconv.FormatFloat(exportValue(v, format), 'f', 4, 64))
		}
		rows = append(rows, line)
	}
	return rows
}

func summaryText(p types.Parameters, snap engine.Snapshot, ev *types.EvaluationArtifacts) string {
	d := types.Derived{
		Status:      "Evaluation and data export ready",
		Load:        snap.Load,
		QC:          snap.QC,
		TechNorm:    snap.TechNorm,
		ContentNorm: snap.ContentNorm,
		Evaluation:  ev,
	}
	return report.Summary(p, d)
}

// analysisDescription is a plain text account of the parameters and the
// results of every stage.
func analysisDescription(p types.Parameters, snap engine.Snapshot, ev *types.EvaluationArtifacts) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}
	line("input folder: %s", p.InputFolder)
	if p.GroupsFile != "" {
		line("groups file: %s", p.GroupsFile)
	}
	line("lanes loaded: %s", joinNames(snap.Load.Dataset.LaneIDs()))
	line("background: %s (mean %.3f)", p.Background, snap.QC.Background)
	line("low counts: %s", p.LowCounts)
	for _, metric := range types.Metrics {
		line("%s range: %s", metric, p.Bounds(metric))
	}
	line("lane removal above %s%% below background", strconv.FormatFloat(p.LaneRemovalPercent, 'g', -1, 64))
	line("sample removal: %s", p.SampleRemoval)
	line("flagged lanes: %s", joinNames(snap.QC.FlaggedLanes))
	line("removed lanes: %s", joinNames(snap.QC.RemovedLanes))
	if snap.TechNorm != nil {
		line("technical normalization: %s (low counts after scaling: %t)", snap.TechNorm.Method, snap.TechNorm.LowCountsAfterScaling)
		lanes := make([]string, 0, len(snap.TechNorm.Factors))
		for lane := range snap.TechNorm.Factors {
			lanes = append(lanes, lane)
		}
		sort.Strings(lanes)
		for _, lane := range lanes {
			line("  %s factor %.4f", lane, snap.TechNorm.Factors[lane])
		}
	}
	cn := snap.ContentNorm
	line("reference gene strategy: %s", cn.Method)
	line("reference genes: %s", joinNames(cn.ReferenceGenes))
	for _, entry := range cn.Provenance {
		line("  %s", entry)
	}
	line("additional normalization: %s", cn.Additional)
	line("mean RLE IQR raw %.4f, normalized %.4f", ev.RawMeanIQR, ev.NormMeanIQR)
	line("export format: %s", p.ExportFormat)
	return b.String()
}
