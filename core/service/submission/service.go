package submission

import (
	"context"
	"errors"

	"ideabox/core/domain"
	"ideabox/core/port/in"
	"ideabox/core/port/out"
	"ideabox/pkg/apperr"
	"ideabox/pkg/logger"
)

var _ in.SubmissionService = (*Service)(nil)

// Service exposes the store to reviewers. Errors leaving it are *apperr.AppError.
type Service struct {
	store  *Store
	events out.EventPublisher
}

// NewService creates the reviewer-facing service. events may be nil.
func NewService(store *Store, events out.EventPublisher) *Service {
	return &Service{store: store, events: events}
}

// List returns the public projection of every submission, most recent first.
func (s *Service) List(ctx context.Context) []domain.PublicSubmission {
	return domain.PublicList(s.store.List())
}

// SetStatus applies a reviewer label.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (domain.PublicSubmission, error) {
	updated, err := s.store.SetStatus(ctx, id, status)
	if err != nil {
		return domain.PublicSubmission{}, MapError(err)
	}

	logger.WithContext(ctx).
		WithField("submission_id", id).
		WithField("status", updated.Status).
		Info("submission status updated")

	pub := updated.Public()
	if s.events != nil {
		s.events.Publish(ctx, &out.SubmissionEvent{Type: out.EventSubmissionUpdated, Submission: pub})
	}
	return pub, nil
}

// MapError translates store errors into boundary errors.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("submission")
	case errors.Is(err, ErrInvalidStatus):
		return apperr.InvalidInput("status", "must be a non-empty label of at most 32 characters other than rewarded")
	case errors.Is(err, ErrTerminal):
		return apperr.Conflict("submission has already been rewarded")
	default:
		return apperr.InternalWithError(err)
	}
}
