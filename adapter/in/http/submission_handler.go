package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"ideabox/core/port/in"
	"ideabox/infra/middleware"
	"ideabox/pkg/apperr"
)

// SubmissionHandler serves the dashboard API.
type SubmissionHandler struct {
	submissions in.SubmissionService
	rewards     in.RewardService
	intake      in.IntakeTrigger // nil when this process does not run intake
}

func NewSubmissionHandler(submissions in.SubmissionService, rewards in.RewardService, intake in.IntakeTrigger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		rewards:     rewards,
		intake:      intake,
	}
}

func (h *SubmissionHandler) Register(api fiber.Router) {
	api.Get("/inputs", h.List)
	api.Put("/inputs/:id/status", h.UpdateStatus)
	api.Post("/reward/:id", h.Reward)
	api.Post("/ingest", h.Ingest)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

type rewardRequest struct {
	Amount int `json:"amount" validate:"gt=0"`
}

// List returns every submission, most recent first, without contact addresses.
func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	return c.JSON(h.submissions.List(c.UserContext()))
}

func (h *SubmissionHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := middleware.ParseBody[updateStatusRequest](c)
	if err != nil {
		return err
	}

	updated, err := h.submissions.SetStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *SubmissionHandler) Reward(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	req, err := middleware.ParseBody[rewardRequest](c)
	if err != nil {
		return err
	}

	updated, err := h.rewards.Reward(c.UserContext(), id, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"new_status": updated.Status,
		"submission": updated,
	})
}

// Ingest queues an intake cycle outside the schedule.
func (h *SubmissionHandler) Ingest(c *fiber.Ctx) error {
	if h.intake == nil {
		return apperr.Unavailable("intake is not running in this process")
	}
	queued := h.intake.TriggerIntake()
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"queued": queued,
	})
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput("id", "must be a positive integer")
	}
	return id, nil
}
