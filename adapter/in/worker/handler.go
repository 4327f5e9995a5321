package worker

import (
	"context"
	"fmt"

	"ideabox/core/port/in"
	"ideabox/core/service/intake"
)

// IntakeRunner runs one ingestion cycle.
type IntakeRunner interface {
	RunCycle(ctx context.Context) (intake.CycleResult, error)
}

// Handler dispatches messages to services by job type.
type Handler struct {
	intake IntakeRunner
	reward in.RewardService
}

func NewHandler(intake IntakeRunner, reward in.RewardService) *Handler {
	return &Handler{intake: intake, reward: reward}
}

// Process runs msg and returns the job's value.
func (h *Handler) Process(ctx context.Context, msg *Message) (any, error) {
	switch msg.Type {
	case JobIntakeCycle:
		if h.intake == nil {
			return nil, fmt.Errorf("intake not configured")
		}
		return h.intake.RunCycle(ctx)

	case JobRewardSend:
		if h.reward == nil {
			return nil, fmt.Errorf("reward not configured")
		}
		id, ok := payloadInt64(msg.Payload, "submission_id")
		if !ok {
			return nil, fmt.Errorf("reward job without submission_id")
		}
		amount, ok := payloadInt64(msg.Payload, "amount")
		if !ok {
			return nil, fmt.Errorf("reward job without amount")
		}
		return h.reward.Reward(ctx, id, int(amount))

	default:
		return nil, fmt.Errorf("unknown job type %q", msg.Type)
	}
}
