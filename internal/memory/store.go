package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
)

// Store loads and saves one snapshot. Load never fails: missing or unreadable
// storage yields an empty snapshot.
type Store interface {
	Load(ctx context.Context) Snapshot
	Save(ctx context.Context, s Snapshot) error
}

// FileStore keeps the snapshot as an indented JSON file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load(_ context.Context) Snapshot {
	var s Snapshot
	if err := readJSON(f.Path, &s); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Memory unreadable, starting empty", "path", f.Path, "err", err)
		}
		return Snapshot{}
	}
	if s == nil {
		return Snapshot{}
	}
	return s
}

// Save overwrites the file with s.
func (f *FileStore) Save(_ context.Context, s Snapshot) error {
	if s == nil {
		s = Snapshot{}
	}
	return writeJSON(f.Path, s)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically so a crash never leaves half a file.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
