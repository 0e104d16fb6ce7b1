package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"guanin/internal/types"
)

const stageRunSchemaVersion = 1

// FileStageRunStore keeps the whole history in one JSON document.
type FileStageRunStore struct {
	path string
	mu   sync.Mutex
}

type stageRunFile struct {
	Version int              `json:"version"`
	Runs    []types.StageRun `json:"runs"`
}

func NewFileStageRunStore(path string) *FileStageRunStore {
	return &FileStageRunStore{path: path}
}

func (s *FileStageRunStore) Backend() string {
	return BackendFile
}

func (s *FileStageRunStore) Close() error {
	return nil
}

func (s *FileStageRunStore) ListStageRuns(ctx context.Context, sessionID string) ([]types.StageRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.StageRun{}, nil
		}
		return nil, err
	}
	out := make([]types.StageRun, 0, len(file.Runs))
	for _, run := range file.Runs {
		if matchesSession(run, sessionID) {
			out = append(out, cloneStageRun(run))
		}
	}
	sortStageRuns(out)
	return out, nil
}

func (s *FileStageRunStore) UpsertStageRun(ctx context.Context, run types.StageRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized, err := normalizeStageRun(run)
	if err != nil {
		return err
	}
	file, err := s.load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if file == nil {
		file = &stageRunFile{Version: stageRunSchemaVersion}
	}
	replaced := false
	for i := range file.Runs {
		if file.Runs[i].ID == normalized.ID {
			file.Runs[i] = normalized
			replaced = true
			break
		}
	}
	if !replaced {
		file.Runs = append(file.Runs, normalized)
	}
	file.Version = stageRunSchemaVersion
	return writeJSONAtomic(s.path, file)
}

func (s *FileStageRunStore) load() (*stageRunFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	file := &stageRunFile{}
	if len(data) == 0 {
		return file, nil
	}
	if err := json.Unmarshal(data, file); err != nil {
		return nil, err
	}
	return file, nil
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	file, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(file.Name())
	}()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), path)
}
