package types

import (
	"strings"
	"time"
)

type Stage string

const (
	StageIdle              Stage = "idle"
	StageLoaded            Stage = "loaded"
	StageQCFiltered        Stage = "qc_filtered"
	StageTechNormalized    Stage = "tech_normalized"
	StageContentNormalized Stage = "content_normalized"
	StageEvaluated         Stage = "evaluated"
)

// Stages lists every stage in pipeline order, idle first.
var Stages = []Stage{
	StageIdle,
	StageLoaded,
	StageQCFiltered,
	StageTechNormalized,
	StageContentNormalized,
	StageEvaluated,
}

// RunnableStages lists the stages reachable through a stage-run command.
var RunnableStages = Stages[1:]

// Index returns the position of s in Stages, or -1 when s is unknown.
func (s Stage) Index() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Predecessor returns the stage that must be complete before s can run.
func (s Stage) Predecessor() (Stage, bool) {
	idx := s.Index()
	if idx <= 0 {
		return "", false
	}
	return Stages[idx-1], true
}

// Upstream returns every runnable stage before s, nearest last.
func (s Stage) Upstream() []Stage {
	idx := s.Index()
	if idx <= 1 {
		return nil
	}
	return append([]Stage(nil), Stages[1:idx]...)
}

// Downstream returns every stage after s.
func (s Stage) Downstream() []Stage {
	idx := s.Index()
	if idx < 0 || idx == len(Stages)-1 {
		return nil
	}
	return append([]Stage(nil), Stages[idx+1:]...)
}

// Before reports whether s comes strictly before other in pipeline order.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

var stageAliases = map[string]Stage{
	"load":        StageLoaded,
	"qc":          StageQCFiltered,
	"technorm":    StageTechNormalized,
	"contentnorm": StageContentNormalized,
	"evaluate":    StageEvaluated,
	"evaluation":  StageEvaluated,
}

// ParseStage accepts a runnable stage name or its command alias.
func ParseStage(raw string) (Stage, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if s, ok := stageAliases[raw]; ok {
		return s, true
	}
	s := Stage(raw)
	if !s.Valid() || s == StageIdle {
		return "", false
	}
	return s, true
}

func (s Stage) Label() string {
	switch s {
	case StageIdle:
		return "Idle"
	case StageLoaded:
		return "Loaded"
	case StageQCFiltered:
		return "QC filtered"
	case StageTechNormalized:
		return "Technical normalization"
	case StageContentNormalized:
		return "Content normalization"
	case StageEvaluated:
		return "Evaluated"
	default:
		return string(s)
	}
}

// StageRecord is the version bookkeeping for one completed stage. Upstream
// holds the version of every predecessor at the time the stage ran, so the
// record goes stale as soon as any predecessor is re-run.
type StageRecord struct {
	Stage       Stage            `json:"stage"`
	Version     uint64           `json:"version"`
	Upstream    map[Stage]uint64 `json:"upstream,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

func (r StageRecord) Clone() StageRecord {
	out := r
	if r.Upstream != nil {
		out.Upstream = make(map[Stage]uint64, len(r.Upstream))
		for k, v := range r.Upstream {
			out.Upstream[k] = v
		}
	}
	return out
}

// StageRunStatus is the outcome of a single stage-run command.
type StageRunStatus string

const (
	StageRunCompleted StageRunStatus = "completed"
	StageRunFailed    StageRunStatus = "failed"
	StageRunRejected  StageRunStatus = "rejected"
)

// StageRun is the history entry written for every stage-run command.
type StageRun struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Stage       Stage          `json:"stage"`
	Version     uint64         `json:"version,omitempty"`
	Status      StageRunStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Error       string         `json:"error,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	Invalidated []Stage        `json:"invalidated,omitempty"`
	Message     string         `json:"message,omitempty"`
}
