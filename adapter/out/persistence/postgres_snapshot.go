package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"ideabox/core/domain"
	"ideabox/core/port/out"
)

const (
	insertBatchSize = 500

	// writerLockKey is the advisory lock held by the process that owns the table.
	writerLockKey int64 = 0x1deab0c5
)

// PostgresSnapshot mirrors the list into a submissions table. position 0 is the
// most recent record.
type PostgresSnapshot struct {
	db *sqlx.DB
}

var (
	_ out.SnapshotStore  = (*PostgresSnapshot)(nil)
	_ out.SnapshotWriter = (*PostgresSnapshot)(nil)
)

func NewPostgresSnapshot(db *sqlx.DB) *PostgresSnapshot {
	return &PostgresSnapshot{db: db}
}

func (p *PostgresSnapshot) Name() string { return "postgres" }

// submissionRow is the database row for one submission.
type submissionRow struct {
	domain.Submission
	Position int `db:"position"`
}

const schema = `
	CREATE TABLE IF NOT EXISTS submissions (
		id              BIGINT PRIMARY KEY,
		position        INTEGER NOT NULL,
		category        TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL DEFAULT '',
		score           INTEGER NOT NULL DEFAULT 0,
		scored          BOOLEAN NOT NULL DEFAULT FALSE,
		proximity       TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT '',
		date            TEXT NOT NULL DEFAULT '',
		group_count     INTEGER NOT NULL DEFAULT 0,
		analysis        TEXT NOT NULL DEFAULT '',
		contact_address TEXT NOT NULL DEFAULT ''
	)
`

// EnsureSchema creates the table when missing.
func (p *PostgresSnapshot) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create submissions table: %w", err)
	}
	return nil
}

func (p *PostgresSnapshot) Load(ctx context.Context) ([]domain.Submission, error) {
	const query = `
		SELECT id, position, category, title, content, score, scored, proximity,
		       status, date, group_count, analysis, contact_address
		FROM submissions
		ORDER BY position ASC
	`

	var rows []submissionRow
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	items := make([]domain.Submission, len(rows))
	for i, r := range rows {
		items[i] = r.Submission
	}
	return items, nil
}

// Save replaces the table contents in one transaction.
func (p *PostgresSnapshot) Save(ctx context.Context, items []domain.Submission) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions`); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}

	const insert = `
		INSERT INTO submissions (
			id, position, category, title, content, score, scored, proximity,
			status, date, group_count, analysis, contact_address
		) VALUES (
			:id, :position, :category, :title, :content, :score, :scored, :proximity,
			:status, :date, :group_count, :analysis, :contact_address
		)
	`
	for _, batch := range toRows(items, insertBatchSize) {
		if _, err := tx.NamedExecContext(ctx, insert, batch); err != nil {
			return fmt.Errorf("insert submissions: %w", err)
		}
	}

	return tx.Commit()
}

func toRows(items []domain.Submission, size int) [][]submissionRow {
	var batches [][]submissionRow
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := make([]submissionRow, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, submissionRow{Submission: items[i], Position: i})
		}
		batches = append(batches, batch)
	}
	return batches
}

// AcquireWriter takes a session advisory lock on a connection reserved for the
// lifetime of the claim. Postgres drops the lock if that connection dies.
func (p *PostgresSnapshot) AcquireWriter(ctx context.Context) (func(), error) {
	conn, err := p.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock($1)`, writerLockKey).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: advisory lock %d", out.ErrSnapshotOwned, writerLockKey)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, writerLockKey)
			conn.Close()
		})
	}
	return release, nil
}
