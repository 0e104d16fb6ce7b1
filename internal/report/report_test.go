package report

import (
	"strings"
	"testing"

	"guanin/internal/types"
)

func TestQCReportListsFlagsAndRemovals(t *testing.T) {
	qc := &types.QCArtifacts{
		BackgroundPolicy: types.BackgroundManual,
		Background:       50,
		Ranges: map[types.Metric]types.Bounds{
			types.MetricFOV: {Min: 0.75, Max: 1},
		},
		LaneRemovalPercent: 90,
		Lanes: []types.LaneQC{
			{LaneID: "s1", FOV: 0.9, Background: 50},
			{LaneID: "s2", FOV: 0.4, Background: 50, Flags: []string{"fov 0.400 outside 0.75,1"}},
		},
		FlaggedLanes: []string{"s2"},
		RemovedLanes: []string{"s2"},
	}
	out := QC(qc)
	for _, want := range []string{"manual (50.000)", "| s2 |", "fov 0.400 outside 0.75,1", "Removed lanes: s2", "| fov | 0.75,1 |", "| linearity | - |"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}
}

func TestContentNormReportShowsShortfall(t *testing.T) {
	cn := &types.ContentNormArtifacts{
		Method:         types.RefGenesTopNExpressed,
		ReferenceGenes: []string{"GAPDH", "ACTB"},
		Requested:      6,
		Shortfall:      4,
		MissingGenes:   []string{"XYZ"},
		Factors:        map[string]float64{"s1": 1.1, "s2": 0.9},
		Matrix:         &types.CountMatrix{Lanes: []string{"s1", "s2"}},
	}
	out := ContentNorm(cn)
	if !strings.Contains(out, "Requested 6 reference genes, only 2 available.") {
		t.Fatalf("missing shortfall line:\n%s", out)
	}
	if strings.Index(out, "| s1 | 1.100 |") > strings.Index(out, "| s2 | 0.900 |") {
		t.Fatalf("lane factors should follow matrix order:\n%s", out)
	}
}

func TestSummaryMarksStaleStages(t *testing.T) {
	d := types.Derived{
		Status: "QC done",
		Records: map[types.Stage]types.StageRecord{
			types.StageLoaded:     {Stage: types.StageLoaded, Version: 2},
			types.StageQCFiltered: {Stage: types.StageQCFiltered, Version: 1, Upstream: map[types.Stage]uint64{types.StageLoaded: 1}},
		},
	}
	out := Summary(types.DefaultParameters(), d)
	if !strings.Contains(out, "| QC filtered | 1 | stale |") || !strings.Contains(out, "| Loaded | 2 | current |") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "| Evaluated | - | not run |") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestNilArtifactsRenderPlaceholders(t *testing.T) {
	if !strings.Contains(Load(nil), "Nothing loaded.") || !strings.Contains(Evaluation(nil, nil), "has not run") {
		t.Fatalf("expected placeholders")
	}
}
