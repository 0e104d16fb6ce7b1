package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"guanin/internal/engine"
	"guanin/internal/engine/nanostring"
	"guanin/internal/state"
	"guanin/internal/store"
	"guanin/internal/testutil"
	"guanin/internal/types"
)

func datasetParams(t *testing.T, lanes ...testutil.Lane) types.Parameters {
	t.Helper()
	if len(lanes) == 0 {
		lanes = testutil.ThreeLanes()
	}
	p := types.DefaultParameters()
	p.InputFolder = testutil.WriteDataset(t, lanes...)
	p.OutputFolder = filepath.Join(t.TempDir(), "out")
	return p
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("run-%d", n.Add(1))
	}
}

func newController(t *testing.T, params types.Parameters, eng engine.Engine, opts ...Option) *Controller {
	t.Helper()
	if eng == nil {
		eng = nanostring.New()
	}
	opts = append([]Option{WithIDGenerator(sequentialIDs()), WithSessionID("session-1")}, opts...)
	c := New(state.New(params), eng, opts...)
	t.Cleanup(c.Close)
	return c
}

func eventTypes(events []TimelineEvent) []string {
	out := make([]string, len(events))
	for i, event := range events {
		out[i] = event.Type
	}
	return out
}

type failingTechNorm struct {
	*nanostring.Engine
}

func (failingTechNorm) TechNorm(context.Context, engine.Snapshot) (*types.TechNormArtifacts, error) {
	return nil, errors.New("matrix exploded")
}

type blockingLoad struct {
	*nanostring.Engine
	release chan struct{}
}

func (e blockingLoad) Load(ctx context.Context, snap engine.Snapshot) (*types.LoadArtifacts, error) {
	<-e.release
	return e.Engine.Load(ctx, snap)
}

func TestQCBeforeLoadIsRejected(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	_, err := c.RunQC(context.Background())
	var orderErr *types.StageOrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected StageOrderError, got %v", err)
	}
	if orderErr.Stage != types.StageQCFiltered || orderErr.Missing != types.StageLoaded || orderErr.Stale {
		t.Fatalf("unexpected error: %#v", orderErr)
	}
	if c.Store().Stage() != types.StageIdle || c.Status() != state.StatusReady {
		t.Fatalf("state moved after rejection: %s %q", c.Store().Stage(), c.Status())
	}
	if d := c.Store().Derived(); d.QC != nil || len(d.Records) != 0 {
		t.Fatalf("derived state mutated: %#v", d)
	}
	runs := c.Runs()
	if len(runs) != 1 || runs[0].Status != types.StageRunRejected {
		t.Fatalf("expected one rejected run, got %#v", runs)
	}
	if got := eventTypes(c.Timeline()); !reflect.DeepEqual(got, []string{EventStageRejected}) {
		t.Fatalf("unexpected timeline: %v", got)
	}
}

func TestLoadRequiresFolderWithRCCFiles(t *testing.T) {
	p := types.DefaultParameters()
	c := newController(t, p, nil)
	_, err := c.RunLoad(context.Background())
	var loadErr *types.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError for unset folder, got %v", err)
	}

	empty := t.TempDir()
	if _, err := c.SetParameter("input.folder", empty); err != nil {
		t.Fatalf("set folder: %v", err)
	}
	_, err = c.RunLoad(context.Background())
	if !errors.As(err, &loadErr) || loadErr.Folder != empty {
		t.Fatalf("expected LoadError for empty folder, got %v", err)
	}
	if c.Store().Stage() != types.StageIdle {
		t.Fatalf("stage moved: %s", c.Store().Stage())
	}
}

func TestRunThroughEvaluation(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	results, err := c.RunThrough(context.Background(), types.StageEvaluated)
	if err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	if len(results) != len(types.RunnableStages) {
		t.Fatalf("expected %d results, got %d", len(types.RunnableStages), len(results))
	}
	for i, res := range results {
		if !res.OK || res.Stage != types.RunnableStages[i] || res.Version != 1 {
			t.Fatalf("unexpected result %d: %#v", i, res)
		}
	}
	if results[0].Status != "3 RCC files loaded, ready to perform QC" {
		t.Fatalf("unexpected load status %q", results[0].Status)
	}
	if !strings.HasPrefix(results[3].Status, "Content normalization done, ready to evaluate normalization. Ref genes selected: ") {
		t.Fatalf("unexpected contentnorm status %q", results[3].Status)
	}
	if c.Store().Stage() != types.StageEvaluated || c.Status() != results[4].Status {
		t.Fatalf("unexpected final state %s %q", c.Store().Stage(), c.Status())
	}
	if results[4].Evaluation == nil || len(results[4].Evaluation.Paths) == 0 {
		t.Fatalf("evaluation produced no files: %#v", results[4].Evaluation)
	}
	want := []string{}
	for range types.RunnableStages {
		want = append(want, EventStageStarted, EventStageCompleted)
	}
	if got := eventTypes(c.Timeline()); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected timeline: %v", got)
	}
}

func TestTechNormIsDeterministicAcrossSessions(t *testing.T) {
	p := datasetParams(t)
	var factors []map[string]float64
	for i := 0; i < 2; i++ {
		c := newController(t, p, nil)
		results, err := c.RunThrough(context.Background(), types.StageTechNormalized)
		if err != nil {
			t.Fatalf("RunThrough: %v", err)
		}
		factors = append(factors, results[2].TechNorm.Factors)
	}
	if !reflect.DeepEqual(factors[0], factors[1]) {
		t.Fatalf("factors differ: %v vs %v", factors[0], factors[1])
	}
}

func TestQCFlagsOutOfRangeLane(t *testing.T) {
	lanes := testutil.ThreeLanes()
	lanes[1].FOVCounted = 100
	c := newController(t, datasetParams(t, lanes...), nil)
	if _, err := c.RunThrough(context.Background(), types.StageQCFiltered); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	flagged, err := c.Derived("flagged_lanes")
	if err != nil {
		t.Fatalf("Derived: %v", err)
	}
	if !reflect.DeepEqual(flagged, []string{"s2"}) {
		t.Fatalf("unexpected flagged lanes: %v", flagged)
	}
	kept, _ := c.Derived("kept_lanes")
	if !reflect.DeepEqual(kept, []string{"s1", "s3"}) {
		t.Fatalf("unexpected kept lanes: %v", kept)
	}
}

func TestQCUsesManualBackground(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	if _, err := c.SetParameter("qc.background", types.BackgroundManual); err != nil {
		t.Fatalf("set background: %v", err)
	}
	if _, err := c.SetParameter("qc.manual_background", 50); err != nil {
		t.Fatalf("set manual background: %v", err)
	}
	results, err := c.RunThrough(context.Background(), types.StageQCFiltered)
	if err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	if got := results[1].QC.Background; got != 50 {
		t.Fatalf("expected background 50, got %v", got)
	}
}

func TestTopNExpressedDoesNotResurrectManualList(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	ctx := context.Background()
	s := c.Store()
	if _, err := s.SetRefGeneMethod(types.RefGenesManual); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRefGenes([]string{"ACTB"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRefGeneMethod(types.RefGenesGenormAuto); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRefGeneMethod(types.RefGenesManual); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RunThrough(ctx, types.StageTechNormalized); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	_, err := c.RunContentNorm(ctx)
	var cfgErr *types.ConfigValidationError
	if !errors.As(err, &cfgErr) || cfgErr.Param != "contentnorm.refgenes.genes" {
		t.Fatalf("manual list should be empty after switching back, got %v", err)
	}

	if _, err := s.SetRefGeneMethod(types.RefGenesTopNExpressed); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetRefGeneCount(6); err != nil {
		t.Fatal(err)
	}
	res, err := c.RunContentNorm(ctx)
	if err != nil {
		t.Fatalf("RunContentNorm: %v", err)
	}
	want := []string{"GENE10", "GENE09", "GENE08", "GENE07", "GENE06", "GENE05"}
	if !reflect.DeepEqual(res.ContentNorm.ReferenceGenes, want) {
		t.Fatalf("unexpected reference genes: %v", res.ContentNorm.ReferenceGenes)
	}
}

func TestRerunInvalidatesDownstream(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	ctx := context.Background()
	if _, err := c.RunThrough(ctx, types.StageTechNormalized); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	res, err := c.RunLoad(ctx)
	if err != nil {
		t.Fatalf("RunLoad: %v", err)
	}
	if res.Version != 2 || !reflect.DeepEqual(res.Invalidated, []types.Stage{types.StageQCFiltered, types.StageTechNormalized}) {
		t.Fatalf("unexpected rerun result: %#v", res)
	}
	if c.Store().Stage() != types.StageLoaded {
		t.Fatalf("current stage should move back to loaded, got %s", c.Store().Stage())
	}
	stale, _ := c.Derived("stale")
	if !reflect.DeepEqual(stale, []types.Stage{types.StageQCFiltered, types.StageTechNormalized}) {
		t.Fatalf("unexpected stale stages: %v", stale)
	}
	if c.Store().Derived().TechNorm == nil {
		t.Fatalf("stale output must be kept")
	}

	_, err = c.RunContentNorm(ctx)
	var orderErr *types.StageOrderError
	if !errors.As(err, &orderErr) || orderErr.Missing != types.StageTechNormalized || !orderErr.Stale {
		t.Fatalf("expected stale technorm rejection, got %v", err)
	}

	qc, err := c.RunQC(ctx)
	if err != nil {
		t.Fatalf("RunQC: %v", err)
	}
	if qc.Version != 2 || !reflect.DeepEqual(qc.Invalidated, []types.Stage{types.StageTechNormalized}) {
		t.Fatalf("unexpected qc rerun: %#v", qc)
	}
	events := eventTypes(c.Timeline())
	invalidations := 0
	for _, event := range events {
		if event == EventDownstreamInvalidated {
			invalidations++
		}
	}
	if invalidations != 2 {
		t.Fatalf("expected 2 invalidation events, got %v", events)
	}
}

func TestEngineFailureLeavesStateUntouched(t *testing.T) {
	c := newController(t, datasetParams(t), failingTechNorm{nanostring.New()})
	ctx := context.Background()
	if _, err := c.RunThrough(ctx, types.StageQCFiltered); err != nil {
		t.Fatalf("RunThrough: %v", err)
	}
	status := c.Status()
	res, err := c.RunTechNorm(ctx)
	var engineErr *types.EngineError
	if !errors.As(err, &engineErr) || engineErr.Message != "matrix exploded" || engineErr.Stage != types.StageTechNormalized {
		t.Fatalf("expected verbatim EngineError, got %v", err)
	}
	if res.OK || c.Store().Stage() != types.StageQCFiltered || c.Status() != status {
		t.Fatalf("state moved after engine failure: %#v", res)
	}
	runs := c.Runs()
	if last := runs[len(runs)-1]; last.Status != types.StageRunFailed || last.Error != "matrix exploded" {
		t.Fatalf("unexpected run entry: %#v", last)
	}
	if _, err := c.RunQC(ctx); err != nil {
		t.Fatalf("controller unusable after failure: %v", err)
	}
}

func TestOutputFolderMustBeCreatable(t *testing.T) {
	p := datasetParams(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	p.OutputFolder = filepath.Join(blocker, "out")
	c := newController(t, p, nil)
	ctx := context.Background()
	if _, err := c.RunLoad(ctx); err != nil {
		t.Fatalf("RunLoad: %v", err)
	}
	_, err := c.RunQC(ctx)
	var cfgErr *types.ConfigValidationError
	if !errors.As(err, &cfgErr) || cfgErr.Param != "output.folder" {
		t.Fatalf("expected output folder error, got %v", err)
	}
}

func TestManualRemovalWarnsAtContentNorm(t *testing.T) {
	cases := []struct {
		name   string
		remove []string
		want   string
	}{
		{"empty", nil, "list is empty"},
		{"listed", []string{"s3"}, "manually excluded from normalization: s3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := datasetParams(t)
			p.SampleRemoval = types.SampleRemovalManual
			p.ManualRemove = tc.remove
			c := newController(t, p, nil)
			results, err := c.RunThrough(context.Background(), types.StageContentNormalized)
			if err != nil {
				t.Fatalf("RunThrough: %v", err)
			}
			res := results[3]
			found := false
			for _, w := range res.Warnings {
				if strings.Contains(w, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected warning containing %q, got %v", tc.want, res.Warnings)
			}
		})
	}
}

func TestDispatchRejectsSecondRun(t *testing.T) {
	release := make(chan struct{})
	c := newController(t, datasetParams(t), blockingLoad{Engine: nanostring.New(), release: release})
	ctx := context.Background()
	done := make(chan Result, 1)
	pending, err := c.Dispatch(ctx, Command{
		Stage:  types.StageLoaded,
		OnDone: func(res Result, _ error) { done <- res },
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !c.InFlight() {
		t.Fatalf("dispatched run should be in flight")
	}
	if _, err := c.RunQC(ctx); !errors.Is(err, types.ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight from sync run, got %v", err)
	}
	if _, err := c.Dispatch(ctx, Command{Stage: types.StageLoaded}); !errors.Is(err, types.ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight from dispatch, got %v", err)
	}
	close(release)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := pending.Wait(waitCtx)
	if err != nil || !res.OK || res.Stage != types.StageLoaded {
		t.Fatalf("unexpected dispatched result: %#v %v", res, err)
	}
	select {
	case got := <-done:
		if got.RunID != res.RunID {
			t.Fatalf("callback saw a different run: %#v", got)
		}
	case <-waitCtx.Done():
		t.Fatalf("completion callback was not called")
	}
	if _, err := c.RunQC(ctx); err != nil {
		t.Fatalf("RunQC after dispatch: %v", err)
	}
}

func TestCloseSettlesQueuedRun(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	ctx := context.Background()

	// A task still buffered when the worker stops is handed to the discard hook.
	q := &runQueue{tasks: make(chan runTask, 1), stopCh: make(chan struct{}), discard: c.abandon}
	var gotErr error
	called := false
	pending := newPending(types.StageLoaded)
	c.inFlight.Store(true)
	q.tasks <- runTask{ctx: ctx, pending: pending, cmd: Command{
		Stage: types.StageLoaded,
		OnDone: func(_ Result, err error) {
			called = true
			gotErr = err
		},
	}}
	q.drain()

	if !called || !errors.Is(gotErr, ErrControllerClosed) {
		t.Fatalf("completion callback not settled: called=%v err=%v", called, gotErr)
	}
	if _, err := pending.Wait(ctx); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed from pending, got %v", err)
	}
	if c.InFlight() {
		t.Fatalf("dropped run should clear the in-flight flag")
	}

	c.Close()
	if _, err := c.RunLoad(ctx); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed from sync run, got %v", err)
	}
	if _, err := c.Dispatch(ctx, Command{Stage: types.StageLoaded}); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed from dispatch, got %v", err)
	}
}

func TestRunsArePersisted(t *testing.T) {
	history := store.NewFileStageRunStore(filepath.Join(t.TempDir(), "history.json"))
	c := newController(t, datasetParams(t), nil, WithHistory(history))
	ctx := context.Background()
	if _, err := c.RunTechNorm(ctx); err == nil {
		t.Fatalf("expected rejection")
	}
	if _, err := c.RunLoad(ctx); err != nil {
		t.Fatalf("RunLoad: %v", err)
	}
	runs, err := history.ListStageRuns(ctx, "session-1")
	if err != nil {
		t.Fatalf("ListStageRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %#v", runs)
	}
	byStage := map[types.Stage]types.StageRun{}
	for _, run := range runs {
		byStage[run.Stage] = run
	}
	if byStage[types.StageTechNormalized].Status != types.StageRunRejected {
		t.Fatalf("unexpected technorm entry: %#v", byStage[types.StageTechNormalized])
	}
	load := byStage[types.StageLoaded]
	if load.Status != types.StageRunCompleted || load.Version != 1 || len(load.Artifacts) != 3 {
		t.Fatalf("unexpected load entry: %#v", load)
	}
}

func TestSetParameterReportsChange(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	res, err := c.SetParameter("export.format", types.ExportLog2)
	if err != nil || !res.OK || !res.Changed {
		t.Fatalf("unexpected first set: %#v %v", res, err)
	}
	res, err = c.SetParameter("export.format", "log2")
	if err != nil || res.Changed {
		t.Fatalf("second set should be a no-op: %#v %v", res, err)
	}
	if _, err := c.SetParameter("no.such", 1); !errors.Is(err, types.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestRunRejectsUnknownStage(t *testing.T) {
	c := newController(t, datasetParams(t), nil)
	if _, err := c.Run(context.Background(), types.StageIdle); !errors.Is(err, types.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
	if _, err := c.Dispatch(context.Background(), Command{Stage: "bogus"}); !errors.Is(err, types.ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}
