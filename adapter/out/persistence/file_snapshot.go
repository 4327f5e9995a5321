// Package persistence provides snapshot backends for the submission store.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"ideabox/core/domain"
	"ideabox/core/port/out"
)

// FileSnapshot keeps the list as one JSON document. Writes go to a temp file in
// the same directory and are renamed into place.
type FileSnapshot struct {
	path string
}

var (
	_ out.SnapshotStore  = (*FileSnapshot)(nil)
	_ out.SnapshotWriter = (*FileSnapshot)(nil)
)

func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: path}
}

func (f *FileSnapshot) Name() string { return "file:" + f.path }

func (f *FileSnapshot) Load(ctx context.Context) ([]domain.Submission, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var items []domain.Submission
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.path, err)
	}
	return items, nil
}

func (f *FileSnapshot) Save(ctx context.Context, items []domain.Submission) error {
	if items == nil {
		items = []domain.Submission{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Ping checks that the snapshot directory is writable enough to exist.
func (f *FileSnapshot) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(f.path))
	return err
}

// AcquireWriter takes an exclusive lock on <path>.lock. The OS drops the lock
// when the process exits, so a crashed writer never blocks the next one.
func (f *FileSnapshot) AcquireWriter(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	lock := flock.New(f.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", out.ErrSnapshotOwned, lock.Path())
	}

	return func() { lock.Unlock() }, nil
}
