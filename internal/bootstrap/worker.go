package bootstrap

import (
	"context"

	"ideabox/adapter/in/worker"
	"ideabox/core/port/in"
	"ideabox/pkg/logger"
)

// Worker owns the job pool and, when intake runs in this process, the scheduler.
// The pool always runs because reward sends are pool jobs.
type Worker struct {
	Pool      *worker.Pool
	scheduler *worker.IntakeScheduler
	schedule  bool
	started   bool
}

// NewWorker builds the pool. schedule controls whether this process ticks intake.
func NewWorker(deps *Dependencies, schedule bool) *Worker {
	cfg := deps.Config

	handler := worker.NewHandler(deps.Pipeline, deps.Notifier)

	poolConfig := worker.DefaultPoolConfig()
	if cfg.WorkerCount > 0 {
		poolConfig.Workers = cfg.WorkerCount
	}
	if cfg.WorkerQueueSize > 0 {
		poolConfig.WorkerChanSize = cfg.WorkerQueueSize
	}

	zlog := deps.ZLog.With().Str("component", "worker").Logger()
	pool := worker.NewPool(handler, poolConfig, zlog)

	w := &Worker{
		Pool:     pool,
		schedule: schedule && cfg.IntakeEnabled,
	}
	if w.schedule {
		w.scheduler = worker.NewIntakeScheduler(pool, cfg.IntakeInterval, zlog)
	} else if schedule {
		logger.Info("Intake disabled by INTAKE_ENABLED=false")
	}
	return w
}

// Start starts the pool, then the scheduler.
func (w *Worker) Start() error {
	if err := w.Pool.Start(); err != nil {
		return err
	}
	if w.scheduler != nil {
		w.scheduler.Start()
	}
	w.started = true
	return nil
}

// Trigger returns the manual intake trigger, or nil when intake does not run here.
func (w *Worker) Trigger() in.IntakeTrigger {
	if w.scheduler == nil {
		return nil
	}
	return w.scheduler
}

// Stop stops ticking first so no new cycle is queued, then drains the pool.
func (w *Worker) Stop(ctx context.Context) {
	if !w.started {
		return
	}
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
	w.Pool.Stop(ctx)
	w.started = false
}
