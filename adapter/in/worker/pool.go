package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"ideabox/core/domain"
	"ideabox/core/port/in"
	"ideabox/pkg/apperr"
	"ideabox/pkg/metrics"
)

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers          int
	WorkerChanSize   int
	JobTimeout       time.Duration
	JobTimeoutByType map[JobType]time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		WorkerChanSize: 32,
		JobTimeout:     time.Minute,
		JobTimeoutByType: map[JobType]time.Duration{
			JobIntakeCycle: 10 * time.Minute, // one classifier call per new message
			JobRewardSend:  45 * time.Second,
		},
	}
}

// Pool runs blocking jobs off the request path using go-pkgz/pool.
type Pool struct {
	handler *Handler
	config  *PoolConfig
	log     zerolog.Logger

	pool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex // guards started and Submit, which is not safe for concurrent use
	started bool
}

var _ in.RewardService = (*Pool)(nil)

// messageWorker implements pool.Worker.
type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		config:  config,
		log:     log.With().Str("component", "worker_pool").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.pool = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(1).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("worker_chan_size", p.config.WorkerChanSize).
		Msg("worker pool started")
	return nil
}

// Stop stops accepting jobs and waits for running ones until ctx ends.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.log.Info().Msg("stopping worker pool...")
	if err := p.pool.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn().Err(err).Msg("error closing worker pool")
	}
	p.cancel()
	p.log.Info().Msg("worker pool stopped")
}

// Submit queues msg. It returns false when the pool is not running.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return false
	}
	p.pool.Submit(msg)
	return true
}

// Reward runs a reward send as a pool job and waits for its outcome.
func (p *Pool) Reward(ctx context.Context, id int64, amount int) (domain.PublicSubmission, error) {
	msg := NewMessage(JobRewardSend, map[string]any{"submission_id": id, "amount": amount})
	resultCh := msg.WithResult()

	if !p.Submit(msg) {
		return domain.PublicSubmission{}, apperr.Unavailable("worker pool is not running")
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return domain.PublicSubmission{}, res.Err
		}
		pub, _ := res.Value.(domain.PublicSubmission)
		return pub, nil
	case <-ctx.Done():
		// the job keeps running; its outcome still reaches the store
		return domain.PublicSubmission{}, apperr.Timeout("reward")
	}
}

func (p *Pool) jobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// processJob processes a single job with its type's timeout. Jobs are not retried;
// the next scheduled cycle is the retry for intake.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()

	timeout := p.jobTimeout(msg.Type)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := p.handler.Process(jobCtx, msg)
		done <- outcome{v, err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-jobCtx.Done():
		res.err = jobCtx.Err()
		if errors.Is(res.err, context.DeadlineExceeded) {
			p.log.Warn().
				Str("job_id", msg.ID).
				Str("job_type", msg.Type).
				Dur("timeout", timeout).
				Msg("job timed out")
			res.err = apperr.Timeout(msg.Type)
		}
	}

	elapsed := time.Since(start)
	metrics.JobDuration.WithLabelValues(msg.Type).Observe(elapsed.Seconds())

	msg.finish(res.value, res.err)

	if res.err != nil {
		metrics.JobsProcessed.WithLabelValues(msg.Type, "failed").Inc()
		p.log.Error().
			Err(res.err).
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Dur("elapsed", elapsed).
			Msg("job processing failed")
		// the error is delivered to the waiter; returning it would only be logged again
		return nil
	}

	metrics.JobsProcessed.WithLabelValues(msg.Type, "ok").Inc()
	p.log.Debug().
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Dur("elapsed", elapsed).
		Msg("job processed")
	return nil
}
