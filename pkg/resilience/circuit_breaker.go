// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"ideabox/pkg/logger"
	"ideabox/pkg/metrics"
)

// CircuitBreakerConfig holds configuration for a circuit breaker.
type CircuitBreakerConfig struct {
	Name               string        // Name for logging/metrics
	FailureThreshold   uint32        // Consecutive failures before opening (default: 5)
	Timeout            time.Duration // Time to wait before half-open (default: 30s)
	Interval           time.Duration // Closed-state counter reset period (default: 5m)
	MaxHalfOpenRequest uint32        // Max requests in half-open (default: 1)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:               name,
		FailureThreshold:   5,
		Timeout:            30 * time.Second,
		Interval:           5 * time.Minute,
		MaxHalfOpenRequest: 1,
	}
}

// NewCircuitBreaker builds a gobreaker breaker that logs state changes and
// exports its state as a gauge (0 closed, 1 half-open, 2 open).
func NewCircuitBreaker(cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	def := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxHalfOpenRequest == 0 {
		cfg.MaxHalfOpenRequest = def.MaxHalfOpenRequest
	}

	threshold := cfg.FailureThreshold
	metrics.CircuitState.WithLabelValues(cfg.Name).Set(0)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequest,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(stateValue(to))
			logger.WithField("breaker", name).Warn("circuit breaker state changed from %s to %s", from.String(), to.String())
		},
	})
}

// IsOpen reports whether err was returned because the breaker rejected the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
