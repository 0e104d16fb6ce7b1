package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"guanin/internal/app"
	"guanin/internal/config"
	"guanin/internal/paramfile"
	"guanin/internal/pipeline"
	"guanin/internal/testutil"
	"guanin/internal/types"
)

type testEnv struct {
	wiring  commandWiring
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	dataset string
	output  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GUANIN_HOME", home)
	env := &testEnv{
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		dataset: testutil.WriteDataset(t, testutil.ThreeLanes()...),
		output:  filepath.Join(t.TempDir(), "out"),
	}
	env.wiring = defaultCommandWiring(env.stdout, env.stderr)
	env.wiring.loadConfig = func() (config.Config, error) {
		cfg := config.Default()
		cfg.History = config.HistoryConfig{
			Backend: config.HistoryBackendFile,
			Path:    filepath.Join(home, "history.json"),
		}
		return cfg, nil
	}
	env.wiring.runUI = func(*pipeline.Controller, app.Options) error {
		return errors.New("ui not wired in tests")
	}
	return env
}

func (e *testEnv) folderFlags() []string {
	return []string{"--set", "input.folder=" + e.dataset, "--set", "output.folder=" + e.output}
}

func TestRunCommandRunsThroughRequestedStage(t *testing.T) {
	env := newTestEnv(t)
	args := append(env.folderFlags(), "--until", "qc")
	if err := NewRunCommand(env.wiring).Run(args); err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, env.stderr.String())
	}
	out := env.stdout.String()
	if !strings.Contains(out, "Loaded: 3 RCC files loaded, ready to perform QC") {
		t.Fatalf("missing load line:\n%s", out)
	}
	if !strings.Contains(out, "QC filtered: QC done") {
		t.Fatalf("missing qc line:\n%s", out)
	}
	if strings.Contains(out, "Technical normalization") {
		t.Fatalf("run must stop at qc:\n%s", out)
	}
	if !strings.Contains(env.stderr.String(), "guanin session started") {
		t.Fatalf("expected session log on stderr, got %q", env.stderr.String())
	}

	env.stdout.Reset()
	if err := NewHistoryCommand(env.wiring).Run([]string{"--json"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	var runs []types.StageRun
	if err := json.Unmarshal(env.stdout.Bytes(), &runs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected two recorded runs, got %d", len(runs))
	}
	stages := map[types.Stage]bool{}
	for _, run := range runs {
		stages[run.Stage] = true
		if run.Status != types.StageRunCompleted {
			t.Fatalf("unexpected run status %s", run.Status)
		}
	}
	if !stages[types.StageLoaded] || !stages[types.StageQCFiltered] {
		t.Fatalf("unexpected stages: %v", stages)
	}
}

func TestRunCommandJSONLines(t *testing.T) {
	env := newTestEnv(t)
	args := append(env.folderFlags(), "--until", "load", "--json")
	if err := NewRunCommand(env.wiring).Run(args); err != nil {
		t.Fatalf("run: %v", err)
	}
	var out runOutput
	if err := json.Unmarshal(env.stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Stage != types.StageLoaded || out.Version != 1 || out.RunID == "" {
		t.Fatalf("unexpected result %#v", out)
	}
}

func TestRunCommandRejectsUnknownStage(t *testing.T) {
	env := newTestEnv(t)
	err := NewRunCommand(env.wiring).Run([]string{"--until", "publish"})
	if err == nil || !strings.Contains(err.Error(), "unknown stage") {
		t.Fatalf("expected unknown stage error, got %v", err)
	}
}

func TestRunCommandReportsLoadError(t *testing.T) {
	env := newTestEnv(t)
	err := NewRunCommand(env.wiring).Run([]string{"--set", "output.folder=" + env.output})
	var loadErr *types.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	if env.stdout.Len() != 0 {
		t.Fatalf("failed stage must not print a result: %q", env.stdout.String())
	}
}

func TestParamsCommandAppliesAssignments(t *testing.T) {
	env := newTestEnv(t)
	err := NewParamsCommand(env.wiring).Run([]string{
		"--set", "qc.fov.min=0.8",
		"--set", "qc.background=manual",
		"--set", "qc.manual_background=40",
	})
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	preset, err := paramfile.Parse(env.stdout.Bytes())
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if preset["qc.fov.min"] != 0.8 {
		t.Fatalf("expected fov min 0.8, got %#v", preset["qc.fov.min"])
	}
	if preset["qc.background"] != "manual" {
		t.Fatalf("expected manual background, got %#v", preset["qc.background"])
	}
}

func TestSetWidensBoundsPastCurrentMax(t *testing.T) {
	env := newTestEnv(t)
	widen := []string{"--set", "qc.scaling_factor.min=4", "--set", "qc.scaling_factor.max=10"}
	args := append(append(env.folderFlags(), widen...), "--until", "load")
	if err := NewRunCommand(env.wiring).Run(args); err != nil {
		t.Fatalf("run: %v", err)
	}

	env.stdout.Reset()
	if err := NewParamsCommand(env.wiring).Run(widen); err != nil {
		t.Fatalf("params: %v", err)
	}
	preset, err := paramfile.Parse(env.stdout.Bytes())
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if fmt.Sprint(preset["qc.scaling_factor.min"]) != "4" || fmt.Sprint(preset["qc.scaling_factor.max"]) != "10" {
		t.Fatalf("unexpected scaling factor range: %v %v", preset["qc.scaling_factor.min"], preset["qc.scaling_factor.max"])
	}
}

func TestParamsCommandReadsPresetFile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "preset.yaml")
	testutil.WriteFile(t, path, "technorm:\n  method: median\nexport:\n  format: log2\n")
	if err := NewParamsCommand(env.wiring).Run([]string{"--params", path, "--format", "json"}); err != nil {
		t.Fatalf("params: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(env.stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["technorm.method"] != "median" || out["export.format"] != "log2" {
		t.Fatalf("preset not applied: %v", out)
	}
}

func TestParamsCommandRejectsBadAssignment(t *testing.T) {
	env := newTestEnv(t)
	if err := NewParamsCommand(env.wiring).Run([]string{"--set", "qc.background"}); err == nil {
		t.Fatalf("expected missing value error")
	}
	err := NewParamsCommand(env.wiring).Run([]string{"--set", "qc.lane_removal_percent=140"})
	var cfgErr *types.ConfigValidationError
	if !errors.As(err, &cfgErr) || cfgErr.Param != "qc.lane_removal_percent" {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfigCommandDefaultsAsTOML(t *testing.T) {
	env := newTestEnv(t)
	if err := NewConfigCommand(env.stdout, env.stderr, env.wiring.loadConfig).Run([]string{"--default", "--format", "toml"}); err != nil {
		t.Fatalf("config: %v", err)
	}
	out := env.stdout.String()
	for _, want := range []string{"[history]", "bbolt", "history.db", "[logging]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestConfigCommandRejectsUnknownFormat(t *testing.T) {
	env := newTestEnv(t)
	if err := NewConfigCommand(env.stdout, env.stderr, nil).Run([]string{"--format", "xml"}); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestUICommandPassesControllerAndLogPath(t *testing.T) {
	env := newTestEnv(t)
	var got app.Options
	var ctrl *pipeline.Controller
	env.wiring.runUI = func(c *pipeline.Controller, opts app.Options) error {
		ctrl = c
		got = opts
		return nil
	}
	if err := NewUICommand(env.wiring).Run(env.folderFlags()); err != nil {
		t.Fatalf("ui: %v", err)
	}
	if ctrl == nil || ctrl.Store().Params().InputFolder == "" {
		t.Fatalf("expected a controller with the input folder applied")
	}
	if filepath.Base(got.LogPath) != "guanin.log" {
		t.Fatalf("unexpected log path %q", got.LogPath)
	}
	if env.stderr.Len() != 0 {
		t.Fatalf("ui must not log to stderr: %q", env.stderr.String())
	}
}
