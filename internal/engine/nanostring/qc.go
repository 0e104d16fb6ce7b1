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
	rawSummaryFile = "rawsummary.csv"
	qcReportFile   = "reports/qc_report.md"
)

// QC computes the per-lane quality metrics of the loaded data set, flags lanes
// out of range, applies the removal policy and writes the QC summary files.
func (e *Engine) QC(ctx context.Context, snap engine.Snapshot) (*types.QCArtifacts, error) {
	if snap.Load == nil || snap.Load.Dataset == nil {
		return nil, errNotLoaded
	}
	p := snap.Params
	lanes := snap.Load.Dataset.Lanes

	positives := make([]float64, len(lanes))
	for i, lane := range lanes {
		positives[i] = geomean(probeCounts(lane, types.CodeClassPositive))
	}
	meanPositive := mean(positives)

	out := &types.QCArtifacts{
		BackgroundPolicy:   p.Background,
		LaneRemovalPercent: p.LaneRemovalPercent,
		Ranges:             make(map[types.Metric]types.Bounds, len(types.Metrics)),
	}
	for _, metric := range types.Metrics {
		out.Ranges[metric] = p.Bounds(metric)
	}
	var backgrounds []float64
	for i, lane := range lanes {
		lq := types.LaneQC{LaneID: lane.ID, BindingDensity: lane.BindingDensity}
		if lane.FovCount > 0 {
			lq.FOV = float64(lane.FovCounted) / float64(lane.FovCount)
		}
		lq.Linearity = laneLinearity(lane)
		if positives[i] > 0 {
			lq.ScalingFactor = meanPositive / positives[i]
		} else {
			lq.Flags = append(lq.Flags, errNoPositiveCtrls.Error())
		}
		lq.Background = laneBackground(lane, p)
		lq.PercentBelowBackground = percentBelow(probeCounts(lane, types.CodeClassEndogenous), lq.Background)

		for _, metric := range types.Metrics {
			bounds := p.Bounds(metric)
			v := metricValue(lq, metric)
			if !bounds.Contains(v) {
				lq.Flags = append(lq.Flags, fmt.Sprintf("%s %s outside %s", metric, strconv.FormatFloat(v, 'f', 3, 64), bounds))
			}
		}
		if lq.PercentBelowBackground > p.LaneRemovalPercent {
			lq.Flags = append(lq.Flags, fmt.Sprintf("%.1f%% of counts below background (max %s%%)",
				lq.PercentBelowBackground, strconv.FormatFloat(p.LaneRemovalPercent, 'g', -1, 64)))
		}
		if lq.Flagged() {
			out.FlaggedLanes = append(out.FlaggedLanes, lane.ID)
		}
		backgrounds = append(backgrounds, lq.Background)
		out.Lanes = append(out.Lanes, lq)
	}
	if manual, ok := p.EffectiveBackground(); ok {
		out.Background = manual
	} else {
		out.Background = mean(backgrounds)
	}

	removed, warnings := removalSet(lanes, out.FlaggedLanes, p)
	out.Warnings = append(out.Warnings, warnings...)
	for _, lane := range lanes {
		if _, ok := removed[lane.ID]; ok {
			out.RemovedLanes = append(out.RemovedLanes, lane.ID)
			continue
		}
		out.KeptLanes = append(out.KeptLanes, lane.ID)
	}
	if len(out.KeptLanes) == 0 {
		return nil, fmt.Errorf("QC removed every lane (%d flagged); relax the QC ranges or keep flagged lanes", len(out.FlaggedLanes))
	}

	w, err := newWriter(ctx, p.OutputFolder)
	if err != nil {
		return nil, err
	}
	if err := w.writeCSV(rawSummaryFile, rawSummaryRows(out)); err != nil {
		return nil, err
	}
	if err := w.writeText(qcReportFile, report.QC(out)); err != nil {
		return nil, err
	}
	out.Paths = w.paths
	e.logger.Info("qc complete",
		logging.F("flagged", out.FlaggedLanes),
		logging.F("removed", out.RemovedLanes),
		logging.F("background", out.Background),
	)
	return out, nil
}

func probeCounts(lane types.Lane, class string) []float64 {
	var out []float64
	for _, probe := range lane.Probes {
		if probe.CodeClass == class {
			out = append(out, probe.Count)
		}
	}
	return out
}

// laneLinearity is the R^2 of log2 positive counts against log2 spike-in
// concentration.
func laneLinearity(lane types.Lane) float64 {
	var x, y []float64
	for _, probe := range lane.Probes {
		if probe.CodeClass != types.CodeClassPositive || probe.Count <= 0 {
			continue
		}
		conc, ok := concentration(probe.Name)
		if !ok {
			continue
		}
		x = append(x, math.Log2(conc))
		y = append(y, math.Log2(probe.Count))
	}
	return rSquared(x, y)
}

// laneBackground applies the background policy to the lane's negative
// controls. The manual policy returns the manual value unchanged.
func laneBackground(lane types.Lane, p types.Parameters) float64 {
	if manual, ok := p.EffectiveBackground(); ok {
		return manual
	}
	neg := probeCounts(lane, types.CodeClassNegative)
	switch p.Background {
	case types.BackgroundMaxNegCtrl:
		return maxOf(neg)
	case types.BackgroundMeanNegCtrl:
		return mean(neg)
	case types.BackgroundFilteredNegCtrl:
		limit := mean(neg) + 2*stddev(neg)
		var kept []float64
		for _, v := range neg {
			if v <= limit {
				kept = append(kept, v)
			}
		}
		return mean(kept) + 2*stddev(kept)
	default:
		return mean(neg) + 2*stddev(neg)
	}
}

func percentBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, v := range values {
		if v < threshold {
			n++
		}
	}
	return 100 * float64(n) / float64(len(values))
}

func metricValue(lq types.LaneQC, metric types.Metric) float64 {
	switch metric {
	case types.MetricFOV:
		return lq.FOV
	case types.MetricBindingDensity:
		return lq.BindingDensity
	case types.MetricLinearity:
		return lq.Linearity
	case types.MetricScalingFactor:
		return lq.ScalingFactor
	}
	return 0
}

func removalSet(lanes []types.Lane, flagged []string, p types.Parameters) (map[string]struct{}, []string) {
	removed := map[string]struct{}{}
	var warnings []string
	switch p.SampleRemoval {
	case types.SampleRemovalAutoFlagged:
		for _, id := range flagged {
			removed[id] = struct{}{}
		}
	case types.SampleRemovalFlagOnly:
		if len(flagged) > 0 {
			warnings = append(warnings, "flagged lanes kept: "+joinNames(flagged))
		}
	case types.SampleRemovalManual:
		known := map[string]struct{}{}
		for _, lane := range lanes {
			known[lane.ID] = struct{}{}
		}
		var unknown []string
		for _, id := range p.ManualRemove {
			if _, ok := known[id]; !ok {
				unknown = append(unknown, id)
				continue
			}
			removed[id] = struct{}{}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			warnings = append(warnings, "lanes to remove not found: "+joinNames(unknown))
		}
	}
	return removed, warnings
}

func rawSummaryRows(qc *types.QCArtifacts) [][]string {
	removed := map[string]struct{}{}
	for _, id := range qc.RemovedLanes {
		removed[id] = struct{}{}
	}
	rows := [][]string{{"lane", "fov", "binding_density", "linearity", "scaling_factor", "background", "percent_below_background", "flags", "removed"}}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, lane := range qc.Lanes {
		_, gone := removed[lane.LaneID]
		rows = append(rows, []string{
			lane.LaneID, f(lane.FOV), f(lane.BindingDensity), f(lane.Linearity), f(lane.ScalingFactor),
			f(lane.Background), f(lane.PercentBelowBackground), strings.Join(lane.Flags, "; "), strconv.FormatBool(gone),
		})
	}
	return rows
}
