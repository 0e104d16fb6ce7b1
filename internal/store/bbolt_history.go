package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"guanin/internal/types"
)

var bucketStageRuns = []byte("stage_runs")

type bboltStageRunStore struct {
	db *bolt.DB
}

func NewBboltStageRunStore(path string) (StageRunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketStageRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltStageRunStore{db: db}, nil
}

func (s *bboltStageRunStore) Backend() string {
	return BackendBbolt
}

func (s *bboltStageRunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *bboltStageRunStore) ListStageRuns(ctx context.Context, sessionID string) ([]types.StageRun, error) {
	out := make([]types.StageRun, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStageRuns)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var run types.StageRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if matchesSession(run, sessionID) {
				out = append(out, run)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortStageRuns(out)
	return out, nil
}

func (s *bboltStageRunStore) UpsertStageRun(ctx context.Context, run types.StageRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := normalizeStageRun(run)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStageRuns)
		if b == nil {
			return errors.New("stage_runs bucket missing")
		}
		return b.Put([]byte(normalized.ID), raw)
	})
}
