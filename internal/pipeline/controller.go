package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"guanin/internal/engine"
	"guanin/internal/logging"
	"guanin/internal/state"
	"guanin/internal/types"
)

const (
	EventStageStarted          = "stage_started"
	EventStageCompleted        = "stage_completed"
	EventStageFailed           = "stage_failed"
	EventStageRejected         = "stage_rejected"
	EventDownstreamInvalidated = "downstream_invalidated"
)

// TimelineEvent is one entry of the controller's run timeline.
type TimelineEvent struct {
	At      time.Time   `json:"at"`
	Type    string      `json:"type"`
	RunID   string      `json:"run_id"`
	Stage   types.Stage `json:"stage"`
	Message string      `json:"message,omitempty"`
}

// Result is the outcome of a controller command.
type Result struct {
	OK          bool
	Stage       types.Stage
	RunID       string
	Version     uint64
	Status      string
	Warnings    []string
	Invalidated []types.Stage
	// Changed is set by SetParameter when the value actually changed.
	Changed bool

	Load        *types.LoadArtifacts
	QC          *types.QCArtifacts
	TechNorm    *types.TechNormArtifacts
	ContentNorm *types.ContentNormArtifacts
	Evaluation  *types.EvaluationArtifacts
}

// Controller drives one analysis session through its stages. At most one
// stage run is in flight at a time; parameter commands are not serialized
// against runs.
type Controller struct {
	store     *state.Store
	engine    engine.Engine
	logger    logging.Logger
	history   historyService
	recorder  RunRecorder
	sessionID string
	now       func() time.Time
	newID     func() string

	inFlight atomic.Bool
	closed   atomic.Bool
	queue    *runQueue

	mu       sync.Mutex
	runs     []types.StageRun
	timeline []TimelineEvent
}

type Option func(*Controller)

func WithLogger(logger logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHistory records every stage-run command through recorder.
func WithHistory(recorder RunRecorder) Option {
	return func(c *Controller) {
		c.recorder = recorder
	}
}

func WithSessionID(id string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(id) != "" {
			c.sessionID = strings.TrimSpace(id)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func New(store *state.Store, eng engine.Engine, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		engine: eng,
		logger: logging.Nop(),
		now:    time.Now,
		newID:  logging.NewRunID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.sessionID == "" {
		c.sessionID = c.newID()
	}
	c.logger = logging.Component(c.logger, "pipeline").With(logging.F("session_id", c.sessionID))
	c.history = newHistoryService(c.recorder, c.logger)
	c.queue = newRunQueue(c.work, c.abandon)
	return c
}

// Close stops the dispatch worker and waits for pending history writes.
func (c *Controller) Close() {
	c.closed.Store(true)
	c.queue.Close()
	c.history.Flush()
}

func (c *Controller) SessionID() string {
	return c.sessionID
}

func (c *Controller) Store() *state.Store {
	return c.store
}

func (c *Controller) RunLoad(ctx context.Context) (Result, error) {
	return c.Run(ctx, types.StageLoaded)
}

func (c *Controller) RunQC(ctx context.Context) (Result, error) {
	return c.Run(ctx, types.StageQCFiltered)
}

func (c *Controller) RunTechNorm(ctx context.Context) (Result, error) {
	return c.Run(ctx, types.StageTechNormalized)
}

func (c *Controller) RunContentNorm(ctx context.Context) (Result, error) {
	return c.Run(ctx, types.StageContentNormalized)
}

func (c *Controller) RunEvaluation(ctx context.Context) (Result, error) {
	return c.Run(ctx, types.StageEvaluated)
}

// Run executes stage synchronously.
func (c *Controller) Run(ctx context.Context, stage types.Stage) (Result, error) {
	if !stage.Valid() || stage == types.StageIdle {
		return Result{Stage: stage}, fmt.Errorf("%w: %s", types.ErrUnknownStage, stage)
	}
	if c.closed.Load() {
		return Result{Stage: stage, Status: c.store.Status()}, ErrControllerClosed
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Warn("stage run rejected", logging.F("stage", stage), logging.F("reason", types.ErrRunInFlight))
		return Result{Stage: stage, Status: c.store.Status()}, types.ErrRunInFlight
	}
	defer c.inFlight.Store(false)
	if ctx == nil {
		ctx = context.Background()
	}
	return c.execute(ctx, stage, false)
}

// RunThrough runs every stage from load up to and including until, stopping
// at the first failure.
func (c *Controller) RunThrough(ctx context.Context, until types.Stage) ([]Result, error) {
	if !until.Valid() || until == types.StageIdle {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownStage, until)
	}
	var results []Result
	for _, stage := range types.RunnableStages {
		if until.Before(stage) {
			break
		}
		res, err := c.Run(ctx, stage)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// InFlight reports whether a stage run is executing.
func (c *Controller) InFlight() bool {
	return c.inFlight.Load()
}

// SetParameter validates and applies one parameter value.
func (c *Controller) SetParameter(name string, value any) (Result, error) {
	changed, err := c.store.SetParameter(name, value)
	res := Result{
		OK:      err == nil,
		Stage:   c.store.Stage(),
		Status:  c.store.Status(),
		Changed: changed,
	}
	return res, err
}

func (c *Controller) Status() string {
	return c.store.Status()
}

// Derived returns one derived field by name.
func (c *Controller) Derived(field string) (any, error) {
	return c.store.DerivedField(field)
}

// Runs returns the stage-run entries of this session, oldest first.
func (c *Controller) Runs() []types.StageRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.StageRun, len(c.runs))
	copy(out, c.runs)
	return out
}

func (c *Controller) Timeline() []TimelineEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TimelineEvent(nil), c.timeline...)
}

func (c *Controller) execute(ctx context.Context, stage types.Stage, async bool) (Result, error) {
	run := types.StageRun{
		ID:        c.newID(),
		SessionID: c.sessionID,
		Stage:     stage,
		StartedAt: c.now().UTC(),
	}
	logger := c.logger.With(logging.F("stage", stage), logging.F("run_id", run.ID))

	raw, derived := c.store.Snapshot()
	params := raw.Effective()
	warnings, err := checkGate(stage, params, derived)
	if err != nil {
		run.Status = types.StageRunRejected
		run.Error = err.Error()
		c.finish(ctx, run, async, TimelineEvent{Type: EventStageRejected, Message: err.Error()})
		logger.Warn("stage rejected", logging.F("error", err))
		return Result{Stage: stage, RunID: run.ID, Status: derived.Status}, err
	}

	c.appendEvent(TimelineEvent{Type: EventStageStarted, RunID: run.ID, Stage: stage})
	logger.Info("stage started")
	out, err := engine.Run(ctx, c.engine, stage, snapshotFor(stage, params, derived))
	if err != nil {
		run.Status = types.StageRunFailed
		run.Error = err.Error()
		run.Warnings = warnings
		c.finish(ctx, run, async, TimelineEvent{Type: EventStageFailed, Message: err.Error()})
		logger.Error("stage failed", logging.F("error", err))
		return Result{Stage: stage, RunID: run.ID, Status: derived.Status, Warnings: warnings}, err
	}

	commit, artifacts := buildCommit(stage, run.ID, out)
	commit.Warnings = append(warnings, commit.Warnings...)
	rec, invalidated, err := c.store.CommitStage(commit)
	if err != nil {
		run.Status = types.StageRunFailed
		run.Error = err.Error()
		c.finish(ctx, run, async, TimelineEvent{Type: EventStageFailed, Message: err.Error()})
		logger.Error("stage commit failed", logging.F("error", err))
		return Result{Stage: stage, RunID: run.ID, Status: derived.Status}, err
	}

	run.Status = types.StageRunCompleted
	run.Version = rec.Version
	run.Warnings = commit.Warnings
	run.Artifacts = artifacts
	run.Invalidated = invalidated
	run.Message = commit.Status
	if len(invalidated) > 0 {
		c.appendEvent(TimelineEvent{
			Type:    EventDownstreamInvalidated,
			RunID:   run.ID,
			Stage:   stage,
			Message: joinStages(invalidated),
		})
		logger.Info("downstream invalidated", logging.F("stages", joinStages(invalidated)))
	}
	c.finish(ctx, run, async, TimelineEvent{Type: EventStageCompleted, Message: commit.Status})
	logger.Info("stage completed",
		logging.F("version", rec.Version),
		logging.F("warnings", len(commit.Warnings)),
	)

	res := Result{
		OK:          true,
		Stage:       stage,
		RunID:       run.ID,
		Version:     rec.Version,
		Status:      commit.Status,
		Warnings:    append([]string(nil), commit.Warnings...),
		Invalidated: invalidated,
		Load:        commit.Load,
		QC:          commit.QC,
		TechNorm:    commit.TechNorm,
		ContentNorm: commit.ContentNorm,
		Evaluation:  commit.Evaluation,
	}
	return res, nil
}

// finish stamps the run, records it with its closing timeline event and
// hands it to the history service.
func (c *Controller) finish(ctx context.Context, run types.StageRun, async bool, event TimelineEvent) {
	run.CompletedAt = c.now().UTC()
	event.RunID = run.ID
	event.Stage = run.Stage
	c.appendEvent(event)
	c.mu.Lock()
	c.runs = append(c.runs, run)
	c.mu.Unlock()
	if async {
		c.history.PersistAsync(run)
		return
	}
	c.history.PersistSync(ctx, run)
}

func (c *Controller) appendEvent(event TimelineEvent) {
	if event.At.IsZero() {
		event.At = c.now().UTC()
	}
	c.mu.Lock()
	c.timeline = append(c.timeline, event)
	c.mu.Unlock()
}

func buildCommit(stage types.Stage, runID string, out any) (state.Commit, []string) {
	commit := state.Commit{Stage: stage, RunID: runID}
	var artifacts []string
	switch v := out.(type) {
	case *types.LoadArtifacts:
		commit.Load = v
		commit.Warnings = v.Warnings
		commit.Status = fmt.Sprintf("%d RCC files loaded, ready to perform QC", len(v.Files))
		artifacts = v.Files
	case *types.QCArtifacts:
		commit.QC = v
		commit.Warnings = v.Warnings
		commit.Status = "QC done, ready to perform technical normalization"
		artifacts = v.Paths
	case *types.TechNormArtifacts:
		commit.TechNorm = v
		commit.Status = "Technical normalization done, ready to perform content normalization"
	case *types.ContentNormArtifacts:
		commit.ContentNorm = v
		commit.Status = "Content normalization done, ready to evaluate normalization. Ref genes selected: " +
			strings.Join(v.ReferenceGenes, ", ")
		if v.Shortfall > 0 {
			commit.Warnings = append(commit.Warnings,
				fmt.Sprintf("only %d of %d requested reference genes available", len(v.ReferenceGenes), v.Requested))
		}
		if len(v.MissingGenes) > 0 {
			commit.Warnings = append(commit.Warnings, "reference genes not found: "+strings.Join(v.MissingGenes, ", "))
		}
		artifacts = v.Paths
	case *types.EvaluationArtifacts:
		commit.Evaluation = v
		commit.Status = "Evaluation and data export ready, check the output folder"
		artifacts = v.Paths
	}
	return commit, append([]string(nil), artifacts...)
}

func joinStages(stages []types.Stage) string {
	names := make([]string, len(stages))
	for i, stage := range stages {
		names[i] = string(stage)
	}
	return strings.Join(names, ",")
}
