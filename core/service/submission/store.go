// Package submission owns the in-memory record store and the reviewer-facing
// operations on it.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/pkg/logger"
	"ideabox/pkg/metrics"
)

var (
	ErrNotFound      = errors.New("submission not found")
	ErrInvalidStatus = errors.New("invalid status")
	ErrTerminal      = errors.New("submission already rewarded")
	ErrNotOwner      = errors.New("store has not claimed its snapshot")
)

// Store is the ordered collection of submissions. All reads and mutations go
// through one lock; ids come from a counter guarded by the same lock.
type Store struct {
	mu     sync.RWMutex
	byID   map[int64]*domain.Submission
	order  []int64 // oldest first, List reverses
	keys   map[domain.DedupKey]int64
	nextID int64

	snapshot  out.SnapshotStore
	persistMu sync.Mutex
	release   func() // set while this store is the snapshot's writer
}

// NewStore creates an empty store. snapshot may be nil for memory-only operation.
func NewStore(snapshot out.SnapshotStore) *Store {
	return &Store{
		byID:     make(map[int64]*domain.Submission),
		keys:     make(map[domain.DedupKey]int64),
		nextID:   1,
		snapshot: snapshot,
	}
}

// Claim makes this store the only writer of a shared snapshot. It fails with
// out.ErrSnapshotOwned while another process holds the snapshot. Snapshots that
// are not shared between processes need no claim.
func (s *Store) Claim(ctx context.Context) error {
	w, ok := s.snapshot.(out.SnapshotWriter)
	if !ok {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.release != nil {
		return nil
	}

	release, err := w.AcquireWriter(ctx)
	if err != nil {
		return fmt.Errorf("claim %s: %w", s.snapshot.Name(), err)
	}
	s.release = release
	return nil
}

// Release gives up the writer role taken by Claim.
func (s *Store) Release() {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// Load replaces the store contents with the persisted snapshot. A missing
// snapshot is an empty store. On error the store is left empty and usable.
func (s *Store) Load(ctx context.Context) error {
	if s.snapshot == nil {
		return nil
	}

	items, err := s.snapshot.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[int64]*domain.Submission, len(items))
	s.keys = make(map[domain.DedupKey]int64, len(items))
	s.order = s.order[:0]
	s.nextID = 1

	// snapshot is most recent first
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if _, dup := s.byID[item.ID]; dup || item.ID <= 0 {
			logger.WithField("submission_id", item.ID).Warn("skipping snapshot entry with invalid or duplicate id")
			continue
		}
		rec := item
		s.byID[rec.ID] = &rec
		s.order = append(s.order, rec.ID)
		s.keys[rec.Key()] = rec.ID
		if rec.ID >= s.nextID {
			s.nextID = rec.ID + 1
		}
	}

	metrics.StoredSubmissions.Set(float64(len(s.order)))
	logger.Info("loaded %d submissions from %s", len(s.order), s.snapshot.Name())
	return nil
}

// List returns copies of all submissions, most recent first.
func (s *Store) List() []domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Submission, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		items = append(items, *s.byID[s.order[i]])
	}
	return items
}

// Len returns the number of stored submissions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns a copy of the submission with id.
func (s *Store) Get(id int64) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return domain.Submission{}, ErrNotFound
	}
	return *rec, nil
}

// HasKey reports whether a submission with the same title and contact exists.
func (s *Store) HasKey(key domain.DedupKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// AddIfAbsent assigns an id and inserts sub as the most recent submission unless
// its dedup key is already taken. The check and the insert are one critical section.
func (s *Store) AddIfAbsent(sub domain.Submission) (domain.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sub.Key()
	if _, ok := s.keys[key]; ok {
		return domain.Submission{}, false
	}

	sub.ID = s.nextID
	s.nextID++

	rec := sub
	s.byID[rec.ID] = &rec
	s.order = append(s.order, rec.ID)
	s.keys[key] = rec.ID

	metrics.StoredSubmissions.Set(float64(len(s.order)))
	return rec, true
}

// SetStatus applies a reviewer label and persists. Labels are free-form but
// "rewarded" is reserved for the reward flow and a rewarded record is final.
func (s *Store) SetStatus(ctx context.Context, id int64, status string) (domain.Submission, error) {
	status, err := normalizeStatus(status)
	if err != nil {
		return domain.Submission{}, err
	}

	updated, err := s.mutate(id, func(rec *domain.Submission) error {
		if rec.Status == domain.StatusRewarded {
			return ErrTerminal
		}
		rec.Status = status
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}

	_ = s.Persist(ctx)
	return updated, nil
}

// MarkRewarded moves a submission to the terminal rewarded state and persists.
func (s *Store) MarkRewarded(ctx context.Context, id int64) (domain.Submission, error) {
	updated, err := s.mutate(id, func(rec *domain.Submission) error {
		if rec.Status == domain.StatusRewarded {
			return ErrTerminal
		}
		rec.Status = domain.StatusRewarded
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}

	_ = s.Persist(ctx)
	return updated, nil
}

func (s *Store) mutate(id int64, fn func(rec *domain.Submission) error) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return domain.Submission{}, ErrNotFound
	}
	if err := fn(rec); err != nil {
		return domain.Submission{}, err
	}
	return *rec, nil
}

// Persist writes the full list to the snapshot backend. Failures are logged and
// counted; the in-memory state stays authoritative.
func (s *Store) Persist(ctx context.Context) error {
	if s.snapshot == nil {
		return nil
	}

	// Taking the copy under persistMu keeps writes in mutation order.
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	// Save replaces the whole list, so an unclaimed store would erase records
	// written by the process that owns the snapshot.
	if _, shared := s.snapshot.(out.SnapshotWriter); shared && s.release == nil {
		logger.WithContext(ctx).
			WithField("backend", s.snapshot.Name()).
			Error("refusing to persist to a snapshot this process does not own")
		return ErrNotOwner
	}

	items := s.List()
	if err := s.snapshot.Save(ctx, items); err != nil {
		metrics.PersistFailures.Inc()
		logger.WithContext(ctx).
			WithError(err).
			WithField("backend", s.snapshot.Name()).
			Error("failed to persist submissions, continuing in memory")
		return err
	}
	return nil
}

func normalizeStatus(status string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch {
	case status == "":
		return "", ErrInvalidStatus
	case len(status) > domain.MaxStatusLength:
		return "", ErrInvalidStatus
	case status == domain.StatusRewarded:
		return "", ErrInvalidStatus
	}
	return status, nil
}
