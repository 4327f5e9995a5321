package out

import (
	"context"

	"ideabox/core/domain"
)

// EventType names a dashboard push event.
type EventType string

const (
	EventSubmissionCreated EventType = "submission.created"
	EventSubmissionUpdated EventType = "submission.updated"
)

// SubmissionEvent carries the public projection only.
type SubmissionEvent struct {
	Type       EventType               `json:"type"`
	Submission domain.PublicSubmission `json:"submission"`
	Seq        int64                   `json:"seq"`
}

// EventPublisher fans submission changes out to connected dashboards.
type EventPublisher interface {
	Publish(ctx context.Context, event *SubmissionEvent)
}
