package pipeline

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/voxrow/voxrow/internal/ctxlog"
)

const dayLayout = "2006-01-02"

// Orchestrator runs a DayFunc over each day of a range, pacing between days.
type Orchestrator struct {
	pacer Pacer
}

// NewOrchestrator creates an orchestrator. A nil pacer means no pauses.
func NewOrchestrator(pacer Pacer) *Orchestrator {
	if pacer == nil {
		pacer = NoopPacer{}
	}
	return &Orchestrator{pacer: pacer}
}

// Truncate returns midnight of t's calendar day in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Days yields every calendar day from start through end inclusive, in
// ascending order. Swapped bounds are reordered. The sequence is lazy and
// can be ranged more than once.
func Days(start, end time.Time) iter.Seq[time.Time] {
	start, end = Truncate(start), Truncate(end)
	if end.Before(start) {
		start, end = end, start
	}
	return func(yield func(time.Time) bool) {
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			if !yield(day) {
				return
			}
		}
	}
}

// Execute runs fn for start alone when end is nil, otherwise for every day
// between start and end. The pacer runs between consecutive days, never after
// the last one. The first failing day aborts the range; nothing is retried.
func (o *Orchestrator) Execute(ctx context.Context, start time.Time, end *time.Time, fn DayFunc) error {
	last := Truncate(start)
	days := Days(start, start)
	if end != nil {
		days = Days(start, *end)
		if e := Truncate(*end); e.After(last) {
			last = e
		}
	}

	logger := ctxlog.FromContext(ctx)
	for day := range days {
		dayCtx := ctxlog.With(ctx, "day", day.Format(dayLayout))
		if err := fn(dayCtx, day); err != nil {
			return fmt.Errorf("day %s: %w", day.Format(dayLayout), err)
		}
		if day.Equal(last) {
			break
		}
		logger.Debug("Pausing before next day.", "after", day.Format(dayLayout))
		if err := o.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pause after %s: %w", day.Format(dayLayout), err)
		}
	}
	return nil
}
