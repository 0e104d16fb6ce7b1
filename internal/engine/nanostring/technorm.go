package nanostring

import (
	"context"
	"fmt"

	"guanin/internal/engine"
	"guanin/internal/logging"
	"guanin/internal/types"
)

// TechNorm scales every kept lane by a positive-control factor and applies
// the low-count correction before or after scaling.
func (e *Engine) TechNorm(_ context.Context, snap engine.Snapshot) (*types.TechNormArtifacts, error) {
	if snap.Load == nil || snap.Load.Dataset == nil {
		return nil, errNotLoaded
	}
	if snap.QC == nil {
		return nil, errNoQC
	}
	p := snap.Params
	lanes := keptLanes(snap.Load, snap.QC)
	if len(lanes) == 0 {
		return nil, fmt.Errorf("no lanes left after QC")
	}
	m := buildMatrix(lanes)

	factors, err := positiveFactors(m, p.TechNormMethod)
	if err != nil {
		return nil, err
	}
	out := &types.TechNormArtifacts{
		Method:                p.TechNormMethod,
		LowCountsAfterScaling: p.TransformLowCountsAfter,
		Factors:               map[string]float64{},
		Matrix:                m,
	}
	for col, lane := range m.Lanes {
		out.Factors[lane] = factors[col]
	}

	correct := func(col int, scale float64) {
		bg := snap.QC.LaneBackground(m.Lanes[col]) * scale
		for i := range m.Rows {
			row := &m.Rows[i]
			if !isContent(row.CodeClass) {
				continue
			}
			row.Values[col] = correctLowCount(row.Values[col], bg, p.LowCounts)
		}
	}
	for col := range m.Lanes {
		if !p.TransformLowCountsAfter {
			correct(col, 1)
		}
		for i := range m.Rows {
			m.Rows[i].Values[col] *= factors[col]
		}
		if p.TransformLowCountsAfter {
			correct(col, factors[col])
		}
	}
	e.logger.Info("technical normalization complete",
		logging.F("method", string(p.TechNormMethod)),
		logging.F("lanes", len(m.Lanes)),
	)
	return out, nil
}

// isContent reports whether a code class carries biological signal rather
// than spike-in controls.
func isContent(class string) bool {
	return class == types.CodeClassEndogenous || class == types.CodeClassHousekeeping
}

func correctLowCount(v, background float64, mode types.LowCountCorrection) float64 {
	switch mode {
	case types.LowCountsSubtract:
		v -= background
		if v < 0 {
			return 0
		}
		return v
	case types.LowCountsSetToBackground:
		if v < background {
			return background
		}
	}
	return v
}

// positiveFactors returns one scaling factor per matrix column computed from
// the positive control rows.
func positiveFactors(m *types.CountMatrix, method types.TechNormMethod) ([]float64, error) {
	pos := m.Filter(types.CodeClassPositive)
	if len(pos.Rows) == 0 {
		return nil, errNoPositiveCtrls
	}
	n := len(m.Lanes)
	factors := make([]float64, n)

	if method == types.TechNormRegression {
		ref := make([]float64, len(pos.Rows))
		for i, row := range pos.Rows {
			ref[i] = mean(row.Values)
		}
		for col := 0; col < n; col++ {
			x := pos.Column(col)
			var sxy, sxx float64
			for i := range x {
				sxy += x[i] * ref[i]
				sxx += x[i] * x[i]
			}
			if sxx == 0 {
				return nil, fmt.Errorf("lane %s has no positive control signal", m.Lanes[col])
			}
			factors[col] = sxy / sxx
		}
		return factors, nil
	}

	summary := make([]float64, n)
	for col := 0; col < n; col++ {
		values := pos.Column(col)
		switch method {
		case types.TechNormSum:
			summary[col] = sum(values)
		case types.TechNormMedian:
			summary[col] = median(values)
		default:
			summary[col] = geomean(values)
		}
		if summary[col] <= 0 {
			return nil, fmt.Errorf("lane %s has no positive control signal", m.Lanes[col])
		}
	}
	target := mean(summary)
	for col := range summary {
		factors[col] = target / summary[col]
	}
	return factors, nil
}
