package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"ideabox/core/port/in"
)

// Submitter queues jobs.
type Submitter interface {
	Submit(msg *Message) bool
}

// IntakeScheduler submits an intake cycle on every tick. At most one cycle is
// queued or running at a time; ticks that find one in flight are skipped.
type IntakeScheduler struct {
	pool     Submitter
	interval time.Duration
	log      zerolog.Logger

	inflight atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ in.IntakeTrigger = (*IntakeScheduler)(nil)

func NewIntakeScheduler(pool Submitter, interval time.Duration, log zerolog.Logger) *IntakeScheduler {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IntakeScheduler{
		pool:     pool,
		interval: interval,
		log:      log.With().Str("component", "intake_scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs one cycle immediately, then one per interval.
func (s *IntakeScheduler) Start() {
	s.log.Info().Dur("interval", s.interval).Msg("starting intake scheduler")
	go s.run()
}

// Stop stops ticking. A cycle already queued still runs until the pool stops.
func (s *IntakeScheduler) Stop() {
	s.cancel()
	<-s.done
	s.log.Info().Msg("intake scheduler stopped")
}

func (s *IntakeScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.TriggerIntake()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.TriggerIntake()
		}
	}
}

// TriggerIntake queues a cycle unless one is already in flight.
func (s *IntakeScheduler) TriggerIntake() bool {
	if !s.inflight.CompareAndSwap(false, true) {
		s.log.Debug().Msg("intake cycle still in flight, skipping")
		return false
	}

	msg := NewMessage(JobIntakeCycle, nil).OnDone(func(error) {
		s.inflight.Store(false)
	})
	if !s.pool.Submit(msg) {
		s.inflight.Store(false)
		s.log.Warn().Msg("worker pool not accepting jobs, intake cycle not queued")
		return false
	}
	return true
}

// InFlight reports whether a cycle is queued or running.
func (s *IntakeScheduler) InFlight() bool {
	return s.inflight.Load()
}
