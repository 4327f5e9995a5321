package persistence

import (
	"context"
	"errors"
	"os"
	"testing"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/infra/database"
)

func TestToRowsBatchesWithGlobalPosition(t *testing.T) {
	items := make([]domain.Submission, 7)
	for i := range items {
		items[i] = domain.Submission{ID: int64(100 - i)}
	}

	batches := toRows(items, 3)

	if len(batches) != 3 || len(batches[0]) != 3 || len(batches[2]) != 1 {
		t.Fatalf("unexpected batch shape: %d batches", len(batches))
	}
	last := batches[2][0]
	if last.Position != 6 || last.ID != 94 {
		t.Errorf("expected position 6 for id 94, got %d/%d", last.Position, last.ID)
	}
}

func TestToRowsEmpty(t *testing.T) {
	if batches := toRows(nil, 10); len(batches) != 0 {
		t.Errorf("expected no batches, got %d", len(batches))
	}
}

func TestPostgresSnapshotHasOneWriter(t *testing.T) {
	url := os.Getenv("IDEABOX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("IDEABOX_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	open := func() *PostgresSnapshot {
		pool, err := database.NewPostgres(ctx, url)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		db := database.NewSQLX(pool)
		t.Cleanup(func() {
			db.Close()
			pool.Close()
		})
		return NewPostgresSnapshot(db)
	}
	first, second := open(), open()

	release, err := first.AcquireWriter(ctx)
	if err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if _, err := second.AcquireWriter(ctx); !errors.Is(err, out.ErrSnapshotOwned) {
		t.Fatalf("second writer: expected ErrSnapshotOwned, got %v", err)
	}

	release()
	again, err := second.AcquireWriter(ctx)
	if err != nil {
		t.Fatalf("writer after release: %v", err)
	}
	again()
}
