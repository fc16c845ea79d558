// Package pipeline drives per-day work over a calendar date range with a
// pause between consecutive days.
package pipeline

import (
	"context"
	"time"
)

// DayFunc processes a single calendar day.
type DayFunc func(ctx context.Context, day time.Time) error

// Pacer blocks between two consecutive days of a range.
type Pacer interface {
	Wait(ctx context.Context) error
}
