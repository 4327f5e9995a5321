package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ideabox/core/domain"
	"ideabox/core/service/intake"
	"ideabox/pkg/apperr"
)

type fakeIntake struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeIntake) RunCycle(ctx context.Context) (intake.CycleResult, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return intake.CycleResult{}, ctx.Err()
		}
	}
	return intake.CycleResult{Created: 1}, f.err
}

type fakeReward struct {
	mu    sync.Mutex
	calls []int64
	err   error
	delay time.Duration
}

func (f *fakeReward) Reward(ctx context.Context, id int64, amount int) (domain.PublicSubmission, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.PublicSubmission{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.err != nil {
		return domain.PublicSubmission{}, f.err
	}
	return domain.PublicSubmission{ID: id, Status: domain.StatusRewarded}, nil
}

func startPool(t *testing.T, h *Handler, cfg *PoolConfig) *Pool {
	t.Helper()
	p := NewPool(h, cfg, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	return p
}

func TestPoolRewardReturnsJobResult(t *testing.T) {
	reward := &fakeReward{}
	p := startPool(t, NewHandler(nil, reward), nil)

	got, err := p.Reward(context.Background(), 7, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 7 || got.Status != domain.StatusRewarded {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestPoolRewardPropagatesAppError(t *testing.T) {
	reward := &fakeReward{err: apperr.NotFound("submission")}
	p := startPool(t, NewHandler(nil, reward), nil)

	_, err := p.Reward(context.Background(), 7, 100)
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestPoolJobTimeout(t *testing.T) {
	reward := &fakeReward{delay: time.Second}
	cfg := DefaultPoolConfig()
	cfg.JobTimeoutByType[JobRewardSend] = 20 * time.Millisecond
	p := startPool(t, NewHandler(nil, reward), cfg)

	_, err := p.Reward(context.Background(), 1, 100)
	if !apperr.HasCode(err, apperr.CodeTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestPoolRejectsWhenStopped(t *testing.T) {
	p := NewPool(NewHandler(nil, &fakeReward{}), nil, zerolog.Nop())

	_, err := p.Reward(context.Background(), 1, 100)
	if !apperr.HasCode(err, apperr.CodeUnavailable) {
		t.Errorf("expected unavailable before start, got %v", err)
	}
}

func TestHandlerRejectsBadMessages(t *testing.T) {
	h := NewHandler(nil, &fakeReward{})

	tests := []struct {
		name string
		msg  *Message
	}{
		{name: "unknown type", msg: NewMessage("mail.sync", nil)},
		{name: "intake not configured", msg: NewMessage(JobIntakeCycle, nil)},
		{name: "missing id", msg: NewMessage(JobRewardSend, map[string]any{"amount": 5})},
		{name: "missing amount", msg: NewMessage(JobRewardSend, map[string]any{"submission_id": int64(1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.Process(context.Background(), tt.msg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSchedulerSkipsWhileCycleInFlight(t *testing.T) {
	in := &fakeIntake{release: make(chan struct{})}
	p := startPool(t, NewHandler(in, nil), nil)
	s := NewIntakeScheduler(p, time.Hour, zerolog.Nop())

	if !s.TriggerIntake() {
		t.Fatal("first trigger should queue a cycle")
	}
	if s.TriggerIntake() {
		t.Error("second trigger must be skipped while the first is in flight")
	}

	close(in.release)
	waitFor(t, func() bool { return !s.InFlight() })

	if !s.TriggerIntake() {
		t.Error("trigger after completion should queue again")
	}
	waitFor(t, func() bool { return !s.InFlight() })

	if in.calls.Load() != 2 {
		t.Errorf("expected 2 cycles, got %d", in.calls.Load())
	}
}

func TestSchedulerClearsInFlightOnFailure(t *testing.T) {
	in := &fakeIntake{err: errors.New("mailbox down")}
	p := startPool(t, NewHandler(in, nil), nil)
	s := NewIntakeScheduler(p, time.Hour, zerolog.Nop())

	s.TriggerIntake()
	waitFor(t, func() bool { return !s.InFlight() })

	if !s.TriggerIntake() {
		t.Error("a failed cycle must not block later ones")
	}
}

func TestSchedulerStartRunsImmediately(t *testing.T) {
	in := &fakeIntake{}
	p := startPool(t, NewHandler(in, nil), nil)
	s := NewIntakeScheduler(p, time.Hour, zerolog.Nop())

	s.Start()
	waitFor(t, func() bool { return in.calls.Load() == 1 })
	s.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
