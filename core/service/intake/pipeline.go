// Package intake runs one mailbox ingestion cycle: fetch, deduplicate, classify,
// store, persist.
package intake

import (
	"context"
	"fmt"
	"time"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/core/service/submission"
	"ideabox/pkg/logger"
	"ideabox/pkg/metrics"
)

const lockName = "intake-cycle"

// Classifier scores one message. It never fails.
type Classifier interface {
	Classify(ctx context.Context, subject, body, sender string) domain.Classification
}

// PipelineDeps wires the collaborators of a cycle. Events and Lock are optional.
type PipelineDeps struct {
	Mailbox    out.Mailbox
	Classifier Classifier
	Store      *submission.Store
	Events     out.EventPublisher
	Lock       out.CycleLock
}

// PipelineConfig holds the per-cycle knobs.
type PipelineConfig struct {
	Fetch   out.FetchRequest
	LockTTL time.Duration
}

type Pipeline struct {
	mailbox    out.Mailbox
	classifier Classifier
	store      *submission.Store
	events     out.EventPublisher
	lock       out.CycleLock
	cfg        PipelineConfig
	now        func() time.Time
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Fetched    int
	Created    int
	Duplicates int
	Skipped    bool // lock held elsewhere
	Duration   time.Duration
}

func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Fetch.Policy == "" {
		cfg.Fetch.Policy = out.FetchUnseen
	}
	return &Pipeline{
		mailbox:    deps.Mailbox,
		classifier: deps.Classifier,
		store:      deps.Store,
		events:     deps.Events,
		lock:       deps.Lock,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RunCycle performs one ingestion cycle. A mailbox failure aborts the rest of the
// cycle and is returned; records inserted before it are kept and persisted.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	log := logger.WithContext(ctx).WithField("component", "intake")

	if p.lock != nil {
		release, ok, err := p.lock.TryAcquire(ctx, lockName, p.cfg.LockTTL)
		switch {
		case err != nil:
			log.WithError(err).Warn("cycle lock unavailable, running without it")
		case !ok:
			log.Info("another intake cycle is running, skipping")
			metrics.IntakeCycles.WithLabelValues("skipped").Inc()
			return CycleResult{Skipped: true}, nil
		default:
			defer release()
		}
	}

	result, err := p.run(ctx)
	result.Duration = time.Since(start)

	if result.Created > 0 {
		_ = p.store.Persist(ctx)
	}

	metrics.IntakeCycleDuration.Observe(result.Duration.Seconds())
	entry := log.WithDuration(result.Duration).WithFields(map[string]any{
		"fetched":    result.Fetched,
		"created":    result.Created,
		"duplicates": result.Duplicates,
	})
	if err != nil {
		metrics.IntakeCycles.WithLabelValues("aborted").Inc()
		entry.WithError(err).Warn("intake cycle aborted")
		return result, err
	}

	metrics.IntakeCycles.WithLabelValues("completed").Inc()
	entry.Info("intake cycle completed")
	return result, nil
}

func (p *Pipeline) run(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	session, err := p.mailbox.Connect(ctx)
	if err != nil {
		return result, fmt.Errorf("connect mailbox: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.WithError(cerr).Debug("mailbox close failed")
		}
	}()

	messages, fetchErr := session.Fetch(ctx, p.cfg.Fetch)
	result.Fetched = len(messages)

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if p.ingest(ctx, msg) {
			result.Created++
		} else {
			result.Duplicates++
		}
	}

	if fetchErr != nil {
		return result, fmt.Errorf("fetch messages: %w", fetchErr)
	}
	return result, nil
}

// ingest reports whether msg produced a new record.
func (p *Pipeline) ingest(ctx context.Context, msg domain.InboundMessage) bool {
	if p.store.HasKey(msg.Key()) {
		metrics.IntakeMessages.WithLabelValues("duplicate").Inc()
		return false
	}

	c := p.classifier.Classify(ctx, msg.Subject, msg.Body(), msg.From)
	rec, ok := p.store.AddIfAbsent(domain.NewSubmission(msg, c, p.now()))
	if !ok {
		// lost a race with a concurrent insert of the same key
		metrics.IntakeMessages.WithLabelValues("duplicate").Inc()
		return false
	}

	metrics.IntakeMessages.WithLabelValues("created").Inc()
	logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id": rec.ID,
		"score":         rec.Score,
		"scored":        rec.Scored,
		"sender":        domain.MaskAddress(rec.ContactAddress),
	}).Info("submission created")

	if p.events != nil {
		p.events.Publish(ctx, &out.SubmissionEvent{Type: out.EventSubmissionCreated, Submission: rec.Public()})
	}
	return true
}
