// Package reward sends the thank-you notification that closes a submission.
package reward

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/core/service/submission"
	"ideabox/pkg/apperr"
	"ideabox/pkg/logger"
	"ideabox/pkg/metrics"
)

const (
	Subject = "Thank you for your input!"

	DefaultFallbackAddress = "unknown@company.example"
	DefaultCurrency        = "kr."
)

type Config struct {
	FallbackAddress string
	Currency        string
}

// Notifier rewards a submission's sender. The record only becomes rewarded
// after the mail was handed to the transport.
type Notifier struct {
	store  *submission.Store
	mailer out.Mailer
	events out.EventPublisher
	cfg    Config

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func NewNotifier(store *submission.Store, mailer out.Mailer, events out.EventPublisher, cfg Config) *Notifier {
	if cfg.FallbackAddress == "" {
		cfg.FallbackAddress = DefaultFallbackAddress
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	return &Notifier{
		store:    store,
		mailer:   mailer,
		events:   events,
		cfg:      cfg,
		inflight: make(map[int64]struct{}),
	}
}

// Reward sends the notification for id and marks the record rewarded.
func (n *Notifier) Reward(ctx context.Context, id int64, amount int) (domain.PublicSubmission, error) {
	if amount <= 0 {
		return domain.PublicSubmission{}, apperr.InvalidInput("amount", "must be greater than zero")
	}

	if !n.begin(id) {
		return domain.PublicSubmission{}, apperr.Conflict("a reward for this submission is already being sent")
	}
	defer n.end(id)

	// read under the guard so a reward that just finished is seen as terminal
	rec, err := n.store.Get(id)
	if err != nil {
		return domain.PublicSubmission{}, submission.MapError(err)
	}
	if rec.Status == domain.StatusRewarded {
		return domain.PublicSubmission{}, submission.MapError(submission.ErrTerminal)
	}

	log := logger.WithContext(ctx).WithField("submission_id", id)

	to := strings.TrimSpace(rec.ContactAddress)
	if to == "" {
		to = n.cfg.FallbackAddress
		log.Warn("submission has no contact address, using fallback")
	}

	mail := out.OutboundMail{
		To:      to,
		Subject: Subject,
		Body:    n.body(rec, amount),
	}
	if err := n.mailer.Send(ctx, mail); err != nil {
		metrics.RewardSends.WithLabelValues("failed").Inc()
		log.WithError(err).WithField("recipient", domain.MaskAddress(to)).Error("reward notification failed")
		return domain.PublicSubmission{}, apperr.ExternalError("smtp", err)
	}
	metrics.RewardSends.WithLabelValues("sent").Inc()

	updated, err := n.store.MarkRewarded(ctx, id)
	if err != nil {
		return domain.PublicSubmission{}, submission.MapError(err)
	}

	log.WithField("amount", amount).WithField("recipient", domain.MaskAddress(to)).Info("reward sent")

	pub := updated.Public()
	if n.events != nil {
		n.events.Publish(ctx, &out.SubmissionEvent{Type: out.EventSubmissionUpdated, Submission: pub})
	}
	return pub, nil
}

func (n *Notifier) body(rec domain.Submission, amount int) string {
	title := strings.TrimPrefix(rec.Title, domain.WarningMarker)
	return fmt.Sprintf("Hi,\n\nThank you for your suggestion %q.\nYou have received a reward of %d %s\n\nBest regards\n",
		title, amount, n.cfg.Currency)
}

func (n *Notifier) begin(id int64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, busy := n.inflight[id]; busy {
		return false
	}
	n.inflight[id] = struct{}{}
	return true
}

func (n *Notifier) end(id int64) {
	n.mu.Lock()
	delete(n.inflight, id)
	n.mu.Unlock()
}
