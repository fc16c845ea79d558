package pipeline

import (
	"context"
	"math/rand/v2"
	"time"
)

// NoopPacer never waits. Tests and single-day runs use it.
type NoopPacer struct{}

func (NoopPacer) Wait(ctx context.Context) error { return ctx.Err() }

// RandomPacer waits a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min, Max time.Duration

	// Float64 returns a value in [0, 1). Defaults to math/rand/v2.
	Float64 func() float64
}

func NewRandomPacer(lo, hi time.Duration) *RandomPacer {
	if hi < lo {
		lo, hi = hi, lo
	}
	return &RandomPacer{Min: lo, Max: hi, Float64: rand.Float64}
}

// Delay picks the next pause.
func (p *RandomPacer) Delay() time.Duration {
	f := rand.Float64
	if p.Float64 != nil {
		f = p.Float64
	}
	return p.Min + time.Duration(f()*float64(p.Max-p.Min))
}

// Wait sleeps for Delay or until ctx is done.
func (p *RandomPacer) Wait(ctx context.Context) error {
	timer := time.NewTimer(p.Delay())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
