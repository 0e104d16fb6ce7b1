package state

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"guanin/internal/logging"
	"guanin/internal/types"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(types.DefaultParameters(), opts...)
}

func TestSingleSidedBoundCannotCross(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.SetParameter("qc.fov.min", 1.2); err == nil {
		t.Fatalf("expected crossing min to be rejected")
	} else {
		var cfgErr *types.ConfigValidationError
		if !errors.As(err, &cfgErr) || cfgErr.Param != "qc.fov.min" {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := s.SetParameter("qc.linearity.max", "0.5"); err == nil {
		t.Fatalf("expected crossing max to be rejected")
	}
	p := s.Params()
	if p.FOV != (types.Bounds{Min: 0.75, Max: 1}) || p.Linearity != (types.Bounds{Min: 0.75, Max: 1}) {
		t.Fatalf("rejected sets must not apply: %#v %#v", p.FOV, p.Linearity)
	}
}

func TestBoundsPairSetAtomically(t *testing.T) {
	s := newTestStore(t)
	changed, err := s.SetBounds(types.MetricFOV, types.Bounds{Min: 1.2, Max: 1.5})
	if err != nil || !changed {
		t.Fatalf("SetBounds: changed=%v err=%v", changed, err)
	}
	if got := s.Params().FOV; got != (types.Bounds{Min: 1.2, Max: 1.5}) {
		t.Fatalf("unexpected bounds: %#v", got)
	}
	if _, err := s.SetParameter("qc.scaling_factor", "4,2"); err == nil {
		t.Fatalf("expected inverted pair to be rejected")
	}
	trace := s.Trace()
	if len(trace) != 2 || trace[0].Param != "qc.fov.min" || trace[1].Param != "qc.fov.max" {
		t.Fatalf("unexpected trace: %#v", trace)
	}
}

func TestSetParameterIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	s := newTestStore(t, WithLogger(logging.New(&buf, logging.Debug)))

	changed, err := s.SetParameter("qc.background", "manual")
	if err != nil || !changed {
		t.Fatalf("first set: changed=%v err=%v", changed, err)
	}
	changed, err = s.SetBackground(types.BackgroundManual)
	if err != nil || changed {
		t.Fatalf("second set should be a no-op: changed=%v err=%v", changed, err)
	}
	if n := len(s.Trace()); n != 1 {
		t.Fatalf("expected one trace entry, got %d", n)
	}
	if strings.Count(buf.String(), `msg="parameter set"`) != 1 {
		t.Fatalf("expected one trace log line, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "param=qc.background old=mean_plus_2sd new=manual") {
		t.Fatalf("unexpected trace line: %q", buf.String())
	}
}

func TestTraceEntriesCarryClock(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return at }))
	if _, err := s.SetManualBackground(50); err != nil {
		t.Fatalf("SetManualBackground: %v", err)
	}
	trace := s.Trace()
	if len(trace) != 1 || !trace[0].At.Equal(at) || trace[0].Old != "0" || trace[0].New != "50" {
		t.Fatalf("unexpected trace: %#v", trace)
	}
}

func TestChangingRefGeneMethodClearsStaleSelection(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SetRefGeneMethod(types.RefGenesManual); err != nil {
		t.Fatalf("SetRefGeneMethod: %v", err)
	}
	if _, err := s.SetRefGenes([]string{"GAPDH", " ACTB ", "GAPDH", ""}); err != nil {
		t.Fatalf("SetRefGenes: %v", err)
	}
	if got := s.Params().RefGenes; len(got) != 2 || got[0] != "GAPDH" || got[1] != "ACTB" {
		t.Fatalf("unexpected genes: %#v", got)
	}
	if _, err := s.SetParameter("contentnorm.refgenes.method", "top_n_expressed"); err != nil {
		t.Fatalf("set method: %v", err)
	}
	p := s.Params()
	if len(p.RefGenes) != 0 {
		t.Fatalf("manual list must be cleared on method change: %#v", p.RefGenes)
	}
	if p.RefGeneCount != types.DefaultRefGeneCount {
		t.Fatalf("expected N reset to default, got %d", p.RefGeneCount)
	}
	sel := p.EffectiveRefGeneSelection()
	if sel.Method != types.RefGenesTopNExpressed || sel.Count != 6 || len(sel.Genes) != 0 {
		t.Fatalf("unexpected effective selection: %#v", sel)
	}

	var traced []string
	for _, entry := range s.Trace() {
		traced = append(traced, entry.Param)
	}
	if !strings.Contains(strings.Join(traced, " "), "contentnorm.refgenes.genes") {
		t.Fatalf("cleared list should be traced: %v", traced)
	}
}

func TestSettingSameRefGeneMethodKeepsSelection(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.SetRefGeneMethod(types.RefGenesGenormTopN)
	_, _ = s.SetRefGeneCount(4)
	if _, err := s.SetParameter("contentnorm.refgenes.method", "genorm_top_n"); err != nil {
		t.Fatalf("set method: %v", err)
	}
	if got := s.Params().RefGeneCount; got != 4 {
		t.Fatalf("N must survive a no-op method set, got %d", got)
	}
}

func TestSetParameterValidation(t *testing.T) {
	tests := []struct {
		name  string
		param string
		value any
	}{
		{name: "unknown enum", param: "qc.background", value: "brightest"},
		{name: "index out of range", param: "technorm.method", value: 9},
		{name: "negative manual background", param: "qc.manual_background", value: -1.0},
		{name: "percent above 100", param: "qc.lane_removal_percent", value: "120"},
		{name: "zero ref genes", param: "contentnorm.refgenes.n", value: 0},
		{name: "fractional count", param: "contentnorm.best_endogenous_count", value: 2.5},
		{name: "bad bool", param: "technorm.transform_low_counts_after", value: "maybe"},
		{name: "not a number", param: "qc.binding_density.max", value: "lots"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			before := s.Params()
			_, err := s.SetParameter(tc.param, tc.value)
			var cfgErr *types.ConfigValidationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigValidationError, got %v", err)
			}
			after := s.Params()
			if len(s.Trace()) != 0 || after.Background != before.Background || after.RefGeneCount != before.RefGeneCount {
				t.Fatalf("nothing should be applied on error")
			}
		})
	}
}

func TestSetParameterUnknownName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SetParameter("qc.brightness", 1); !errors.Is(err, types.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestEnumAcceptsIndexAndLegacyTokens(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.SetParameter("qc.background", 4); err != nil {
		t.Fatalf("set by index: %v", err)
	}
	if got := s.Params().Background; got != types.BackgroundManual {
		t.Fatalf("index 4 must map to manual, got %q", got)
	}
	if _, err := s.SetParameter("qc.low_counts", "sustract"); err != nil {
		t.Fatalf("legacy token: %v", err)
	}
	if _, err := s.SetParameter("qc.sample_removal", 2); err != nil {
		t.Fatalf("set by index: %v", err)
	}
	if got := s.Params().SampleRemoval; got != types.SampleRemovalManual {
		t.Fatalf("index 2 must map to manual_remove, got %q", got)
	}
}

func TestManualBackgroundOnlyEffectiveUnderManualPolicy(t *testing.T) {
	s := newTestStore(t)
	_, _ = s.SetManualBackground(50)
	if _, ok := s.Params().EffectiveBackground(); ok {
		t.Fatalf("manual background must be ignored under the default policy")
	}
	if got := s.Params().Effective().ManualBackground; got != 0 {
		t.Fatalf("effective params should drop the manual value, got %v", got)
	}
	_, _ = s.SetBackground(types.BackgroundManual)
	if v, ok := s.Params().EffectiveBackground(); !ok || v != 50 {
		t.Fatalf("expected manual background 50, got %v %v", v, ok)
	}
}

func TestCommitStageVersionsAndStaleness(t *testing.T) {
	s := newTestStore(t)
	commit := func(stage types.Stage) []types.Stage {
		t.Helper()
		_, invalidated, err := s.CommitStage(Commit{Stage: stage, Status: string(stage)})
		if err != nil {
			t.Fatalf("CommitStage(%s): %v", stage, err)
		}
		return invalidated
	}
	commit(types.StageLoaded)
	commit(types.StageQCFiltered)
	commit(types.StageTechNormalized)

	invalidated := commit(types.StageQCFiltered)
	if len(invalidated) != 1 || invalidated[0] != types.StageTechNormalized {
		t.Fatalf("unexpected invalidated stages: %v", invalidated)
	}
	d := s.Derived()
	if d.Version(types.StageQCFiltered) != 2 {
		t.Fatalf("expected qc version 2, got %d", d.Version(types.StageQCFiltered))
	}
	if !d.Stale(types.StageTechNormalized) || d.Stale(types.StageQCFiltered) {
		t.Fatalf("unexpected staleness: tech=%v qc=%v", d.Stale(types.StageTechNormalized), d.Stale(types.StageQCFiltered))
	}
	if _, ok := d.Record(types.StageTechNormalized); !ok {
		t.Fatalf("stale output must be kept")
	}
	if d.Stage != types.StageQCFiltered {
		t.Fatalf("current stage should move back to the re-run stage, got %s", d.Stage)
	}
	stale, err := s.DerivedField("stale")
	if err != nil {
		t.Fatalf("DerivedField: %v", err)
	}
	if got := stale.([]types.Stage); len(got) != 1 || got[0] != types.StageTechNormalized {
		t.Fatalf("unexpected stale field: %v", got)
	}

	commit(types.StageTechNormalized)
	if s.Derived().Stale(types.StageTechNormalized) {
		t.Fatalf("re-running the stale stage should clear staleness")
	}
}

func TestCommitStageRejectsIdle(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.CommitStage(Commit{Stage: types.StageIdle}); !errors.Is(err, types.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestDerivedFieldUnknown(t *testing.T) {
	s := newTestStore(t)
	if s.Status() != StatusReady || s.Stage() != types.StageIdle {
		t.Fatalf("unexpected initial state: %q %q", s.Status(), s.Stage())
	}
	if _, err := s.DerivedField("nope"); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestParametersListsHalvesNotPairs(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range Parameters() {
		seen[p.Name] = true
	}
	if seen["qc.fov"] || !seen["qc.fov.min"] || !seen["qc.fov.max"] {
		t.Fatalf("unexpected visible parameters: %v", seen)
	}
	if _, ok := Lookup("qc.fov"); !ok {
		t.Fatalf("pair parameter should still be settable")
	}
}
