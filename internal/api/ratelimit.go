package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RateGate enforces a minimum spacing between outbound calls across all
// goroutines sharing it.
type RateGate struct {
	limiter  *rate.Limiter
	interval time.Duration
	logger   *slog.Logger
}

// NewRateGate returns a gate admitting one call per interval. The first call
// passes immediately. A non-positive interval admits everything.
func NewRateGate(interval time.Duration, logger *slog.Logger) *RateGate {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateGate{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		logger:   logger,
	}
}

// Wait blocks until the caller may proceed and returns how long it waited.
// If ctx ends first the reserved slot is returned to the gate.
func (g *RateGate) Wait(ctx context.Context) (time.Duration, error) {
	r := g.limiter.Reserve()
	if !r.OK() {
		return 0, errors.New("rate gate: reservation refused")
	}
	delay := r.Delay()
	if delay <= 0 {
		return 0, nil
	}

	g.logger.Debug("rate limit wait", "delay", delay.Round(time.Millisecond))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		r.Cancel()
		return 0, ctx.Err()
	case <-timer.C:
		return delay, nil
	}
}

// Interval returns the configured spacing.
func (g *RateGate) Interval() time.Duration { return g.interval }
