package in

import (
	"context"

	"ideabox/core/domain"
)

// SubmissionService is what the HTTP boundary may do with submissions.
type SubmissionService interface {
	List(ctx context.Context) []domain.PublicSubmission
	SetStatus(ctx context.Context, id int64, status string) (domain.PublicSubmission, error)
}

// RewardService sends a reward notification for a submission.
type RewardService interface {
	Reward(ctx context.Context, id int64, amount int) (domain.PublicSubmission, error)
}

// IntakeTrigger queues an ingestion cycle outside the regular schedule.
type IntakeTrigger interface {
	TriggerIntake() bool
}
