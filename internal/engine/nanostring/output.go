package nanostring

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// writer places artifacts under the output folder and remembers their paths.
type writer struct {
	ctx   context.Context
	root  string
	paths []string
}

func newWriter(ctx context.Context, root string) (*writer, error) {
	if root == "" {
		return nil, fmt.Errorf("output folder is not set")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}
	return &writer{ctx: ctx, root: root}, nil
}

func (w *writer) writeText(rel, text string) error {
	return w.write(rel, []byte(text))
}

func (w *writer) writeCSV(rel string, rows [][]string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return w.write(rel, buf.Bytes())
}

func (w *writer) write(rel string, data []byte) error {
	if w.ctx != nil {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}
	path := filepath.Join(w.root, filepath.FromSlash(rel))
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	w.paths = append(w.paths, path)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(file.Name())
	}()
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(file.Name(), path)
}
