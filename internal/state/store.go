package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"guanin/internal/logging"
	"guanin/internal/types"
)

const StatusReady = "Ready to start analysis"

// TraceEntry records one effective parameter change.
type TraceEntry struct {
	Param string    `json:"param"`
	Old   string    `json:"old"`
	New   string    `json:"new"`
	At    time.Time `json:"at"`
}

// Store is the configuration and derived state of one analysis session.
//
// A Store is meant to be driven by one caller at a time. The mutex keeps a
// background stage run and a reader from racing on memory; it does not make
// interleaved writers from several callers meaningful.
type Store struct {
	mu      sync.RWMutex
	params  types.Parameters
	derived types.Derived
	trace   []TraceEntry
	logger  logging.Logger
	now     func() time.Time
}

type Option func(*Store)

func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(params types.Parameters, opts ...Option) *Store {
	s := &Store{
		params: params.Clone(),
		derived: types.Derived{
			Stage:   types.StageIdle,
			Status:  StatusReady,
			Records: map[types.Stage]types.StageRecord{},
		},
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Params returns a deep copy of the current parameters.
func (s *Store) Params() types.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Clone()
}

// Get returns the typed value of a named parameter.
func (s *Store) Get(name string) (any, error) {
	d, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownParameter, name)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return d.Value(s.params), nil
}

// SetParameter validates and applies one value. It reports whether anything
// changed; setting the current value is a no-op. On error nothing is applied.
func (s *Store) SetParameter(name string, value any) (bool, error) {
	d, ok := Lookup(name)
	if !ok {
		return false, fmt.Errorf("%w: %s", types.ErrUnknownParameter, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.params.Clone()
	if err := d.set(&next, value); err != nil {
		return false, err
	}
	changes := diff(s.params, next)
	if len(changes) == 0 {
		return false, nil
	}
	at := s.now().UTC()
	for i := range changes {
		changes[i].At = at
		s.logger.Debug("parameter set",
			logging.F("param", changes[i].Param),
			logging.F("old", changes[i].Old),
			logging.F("new", changes[i].New),
		)
	}
	s.params = next
	s.trace = append(s.trace, changes...)
	return true, nil
}

func (s *Store) SetInputFolder(path string) (bool, error) {
	return s.SetParameter("input.folder", path)
}

func (s *Store) SetGroupsFile(path string) (bool, error) {
	return s.SetParameter("input.groups_file", path)
}

func (s *Store) SetOutputFolder(path string) (bool, error) {
	return s.SetParameter("output.folder", path)
}

func (s *Store) SetBackground(policy types.BackgroundPolicy) (bool, error) {
	return s.SetParameter("qc.background", policy)
}

func (s *Store) SetManualBackground(value float64) (bool, error) {
	return s.SetParameter("qc.manual_background", value)
}

// SetBounds sets both sides of a QC range at once.
func (s *Store) SetBounds(metric types.Metric, bounds types.Bounds) (bool, error) {
	return s.SetParameter("qc."+string(metric), bounds)
}

func (s *Store) SetSampleRemoval(policy types.SampleRemovalPolicy) (bool, error) {
	return s.SetParameter("qc.sample_removal", policy)
}

func (s *Store) SetManualRemove(lanes []string) (bool, error) {
	return s.SetParameter("qc.manual_remove", lanes)
}

func (s *Store) SetTechNormMethod(method types.TechNormMethod) (bool, error) {
	return s.SetParameter("technorm.method", method)
}

func (s *Store) SetRefGeneMethod(method types.RefGeneMethod) (bool, error) {
	return s.SetParameter("contentnorm.refgenes.method", method)
}

func (s *Store) SetRefGeneCount(n int) (bool, error) {
	return s.SetParameter("contentnorm.refgenes.n", n)
}

func (s *Store) SetRefGenes(genes []string) (bool, error) {
	return s.SetParameter("contentnorm.refgenes.genes", genes)
}

func (s *Store) SetExportFormat(format types.ExportFormat) (bool, error) {
	return s.SetParameter("export.format", format)
}

// Trace returns the parameter changes recorded so far, oldest first.
func (s *Store) Trace() []TraceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TraceEntry(nil), s.trace...)
}

func diff(before, after types.Parameters) []TraceEntry {
	var out []TraceEntry
	for _, d := range registry {
		if d.Kind == KindBounds {
			continue
		}
		old, next := d.Format(before), d.Format(after)
		if old == next {
			continue
		}
		out = append(out, TraceEntry{Param: d.Name, Old: old, New: next})
	}
	return out
}

func (s *Store) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.derived.Status
}

func (s *Store) Stage() types.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.derived.Stage
}

// Derived returns a copy of everything computed so far.
func (s *Store) Derived() types.Derived {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.derived.Clone()
}

// Snapshot returns parameters and derived state read under one lock.
func (s *Store) Snapshot() (types.Parameters, types.Derived) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Clone(), s.derived.Clone()
}

// DerivedFields lists the names accepted by DerivedField.
var DerivedFields = []string{
	"stage", "status", "records", "stale", "lanes", "flagged_lanes", "qc_flags",
	"background", "removed_lanes", "kept_lanes", "technorm_factors", "reference_genes",
	"refgene_provenance", "contentnorm_factors", "iqr", "paths", "warnings",
}

// DerivedField returns a single derived value by name.
func (s *Store) DerivedField(name string) (any, error) {
	d := s.Derived()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stage":
		return d.Stage, nil
	case "status":
		return d.Status, nil
	case "records":
		return d.Records, nil
	case "stale":
		var stale []types.Stage
		for _, stage := range types.RunnableStages {
			if d.Stale(stage) {
				stale = append(stale, stage)
			}
		}
		return stale, nil
	case "lanes":
		if d.Load == nil {
			return []string(nil), nil
		}
		return d.Load.Dataset.LaneIDs(), nil
	case "flagged_lanes":
		return d.FlaggedLanes(), nil
	case "qc_flags":
		out := map[string][]string{}
		if d.QC != nil {
			for _, lane := range d.QC.Lanes {
				if lane.Flagged() {
					out[lane.LaneID] = append([]string(nil), lane.Flags...)
				}
			}
		}
		return out, nil
	case "background":
		out := map[string]float64{}
		if d.QC != nil {
			for _, lane := range d.QC.Lanes {
				out[lane.LaneID] = lane.Background
			}
		}
		return out, nil
	case "removed_lanes":
		if d.QC == nil {
			return []string(nil), nil
		}
		return append([]string(nil), d.QC.RemovedLanes...), nil
	case "kept_lanes":
		if d.QC == nil {
			return []string(nil), nil
		}
		return append([]string(nil), d.QC.KeptLanes...), nil
	case "technorm_factors":
		if d.TechNorm == nil {
			return map[string]float64(nil), nil
		}
		return copyFloats(d.TechNorm.Factors), nil
	case "reference_genes":
		return d.ReferenceGenes(), nil
	case "refgene_provenance":
		if d.ContentNorm == nil {
			return []string(nil), nil
		}
		return append([]string(nil), d.ContentNorm.Provenance...), nil
	case "contentnorm_factors":
		if d.ContentNorm == nil {
			return map[string]float64(nil), nil
		}
		return copyFloats(d.ContentNorm.Factors), nil
	case "iqr":
		if d.Evaluation == nil {
			return map[string]float64(nil), nil
		}
		return map[string]float64{"raw": d.Evaluation.RawMeanIQR, "normalized": d.Evaluation.NormMeanIQR}, nil
	case "paths":
		return artifactPaths(d), nil
	case "warnings":
		return d.Warnings, nil
	}
	return nil, fmt.Errorf("unknown derived field: %s", name)
}

func copyFloats(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func artifactPaths(d types.Derived) []string {
	var out []string
	if d.QC != nil {
		out = append(out, d.QC.Paths...)
	}
	if d.ContentNorm != nil {
		out = append(out, d.ContentNorm.Paths...)
	}
	if d.Evaluation != nil {
		out = append(out, d.Evaluation.Paths...)
	}
	sort.Strings(out)
	return out
}

// Commit is the result of a stage run handed to CommitStage.
type Commit struct {
	Stage    types.Stage
	RunID    string
	Status   string
	Warnings []string

	Load        *types.LoadArtifacts
	QC          *types.QCArtifacts
	TechNorm    *types.TechNormArtifacts
	ContentNorm *types.ContentNormArtifacts
	Evaluation  *types.EvaluationArtifacts
}

// CommitStage stores the output of a successful stage run. The stage version
// is bumped and the versions of its predecessors are recorded; downstream
// records are kept but become stale. It returns the new record and the
// stages that were invalidated.
func (s *Store) CommitStage(c Commit) (types.StageRecord, []types.Stage, error) {
	if !c.Stage.Valid() || c.Stage == types.StageIdle {
		return types.StageRecord{}, nil, fmt.Errorf("%w: %s", types.ErrUnknownStage, c.Stage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Stage {
	case types.StageLoaded:
		s.derived.Load = c.Load
	case types.StageQCFiltered:
		s.derived.QC = c.QC
	case types.StageTechNormalized:
		s.derived.TechNorm = c.TechNorm
	case types.StageContentNormalized:
		s.derived.ContentNorm = c.ContentNorm
	case types.StageEvaluated:
		s.derived.Evaluation = c.Evaluation
	}

	if s.derived.Records == nil {
		s.derived.Records = map[types.Stage]types.StageRecord{}
	}
	rec := types.StageRecord{
		Stage:       c.Stage,
		Version:     s.derived.Records[c.Stage].Version + 1,
		Upstream:    map[types.Stage]uint64{},
		RunID:       c.RunID,
		CompletedAt: s.now().UTC(),
	}
	for _, up := range c.Stage.Upstream() {
		rec.Upstream[up] = s.derived.Records[up].Version
	}
	s.derived.Records[c.Stage] = rec

	var invalidated []types.Stage
	for _, down := range c.Stage.Downstream() {
		if _, ok := s.derived.Records[down]; ok {
			invalidated = append(invalidated, down)
		}
	}

	s.derived.Stage = c.Stage
	s.derived.Status = c.Status
	s.derived.Warnings = append([]string(nil), c.Warnings...)
	return rec.Clone(), invalidated, nil
}
