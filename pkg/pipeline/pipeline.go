package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// Extractor reads data described by a Source. Implementations accept only
// the Source variants they understand and wrap ErrContract otherwise.
type Extractor interface {
	Extract(ctx context.Context, source Source) (Data, error)
}

// Loader writes data to a Destination and reports where it landed.
// Implementations accept only the Destination variants they understand and
// wrap ErrContract otherwise.
type Loader interface {
	Load(ctx context.Context, data Data, destination Destination) (ResourceLocation, error)
}

type runIDKey struct{}

// WithRunID tags ctx with the id of the ETL call it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by WithRunID or ETL, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ensureRunID tags ctx with a fresh run id when it has none, and reports
// whether it did.
func ensureRunID(ctx context.Context) (context.Context, string, bool) {
	if id := RunIDFromContext(ctx); id != "" {
		return ctx, id, false
	}
	id := uuid.NewString()
	return WithRunID(ctx, id), id, true
}
