package store

import (
	"context"
	"errors"
	"sort"
	"strings"

	"guanin/internal/types"
)

const (
	BackendBbolt = "bbolt"
	BackendFile  = "file"
	BackendNone  = "none"
)

var ErrRunIDRequired = errors.New("stage run requires id")

// StageRunStore records one entry per stage-run command.
type StageRunStore interface {
	// ListStageRuns returns the recorded runs newest first. An empty
	// sessionID lists every session.
	ListStageRuns(ctx context.Context, sessionID string) ([]types.StageRun, error)
	UpsertStageRun(ctx context.Context, run types.StageRun) error
	Backend() string
	Close() error
}

// OpenStageRunStore opens the history backend. The none backend returns a
// nil store and no error.
func OpenStageRunStore(backend, path string) (StageRunStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendBbolt:
		if strings.TrimSpace(path) == "" {
			return nil, errors.New("db path is required for bbolt history")
		}
		return NewBboltStageRunStore(path)
	case BackendFile:
		if strings.TrimSpace(path) == "" {
			return nil, errors.New("file path is required for file history")
		}
		return NewFileStageRunStore(path), nil
	case BackendNone:
		return nil, nil
	default:
		return nil, errors.New("unsupported history backend: " + backend)
	}
}

func normalizeStageRun(run types.StageRun) (types.StageRun, error) {
	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return types.StageRun{}, ErrRunIDRequired
	}
	run.SessionID = strings.TrimSpace(run.SessionID)
	if run.Status == "" {
		run.Status = types.StageRunCompleted
	}
	return cloneStageRun(run), nil
}

func cloneStageRun(run types.StageRun) types.StageRun {
	out := run
	out.Warnings = append([]string(nil), run.Warnings...)
	out.Artifacts = append([]string(nil), run.Artifacts...)
	out.Invalidated = append([]types.Stage(nil), run.Invalidated...)
	return out
}

func matchesSession(run types.StageRun, sessionID string) bool {
	sessionID = strings.TrimSpace(sessionID)
	return sessionID == "" || run.SessionID == sessionID
}

func sortStageRuns(runs []types.StageRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}
