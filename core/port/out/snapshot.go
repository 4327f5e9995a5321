package out

import (
	"context"
	"errors"

	"ideabox/core/domain"
)

// SnapshotStore persists the full ordered submission list (most recent first).
// Load on an empty backend returns an empty list and no error.
type SnapshotStore interface {
	Load(ctx context.Context) ([]domain.Submission, error)
	Save(ctx context.Context, items []domain.Submission) error
	Name() string
}

// ErrSnapshotOwned is returned by AcquireWriter while another process writes the
// same snapshot.
var ErrSnapshotOwned = errors.New("snapshot is owned by another process")

// SnapshotWriter is implemented by snapshots that several processes can reach.
// Save rewrites the whole list, so one process at a time may hold the writer
// role. release gives the role up and is safe to call once.
type SnapshotWriter interface {
	AcquireWriter(ctx context.Context) (release func(), err error)
}
