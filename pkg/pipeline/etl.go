package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/voxrow/voxrow/internal/ctxlog"
)

// Input is one source of an ETL call: either a literal value or a unit of
// work bound to a Source. Build it with Literal or Bound.
type Input interface {
	isInput()
}

type literal struct {
	data Data
}

type bound struct {
	binding Binding
}

func (literal) isInput() {}
func (bound) isInput()   {}

// Literal passes data through as an already-resolved source.
func Literal(data Data) Input { return literal{data: data} }

// Bound resolves to uow's extraction of source.
func Bound(uow *UnitOfWork, source Source) Input {
	return bound{binding: uow.Bind(source, nil)}
}

// ETL resolves sources in order, optionally transforms them and loads the
// result through destination, returning where it landed.
//
// Without a transform exactly one source is allowed and it is loaded as is.
// With a transform every resolved value is passed positionally. Any failure
// aborts the call: nothing is retried and no partial result is returned.
func ETL(ctx context.Context, sources []Input, destination Binding, transform Transform) (ResourceLocation, error) {
	ctx, runID, created := ensureRunID(ctx)
	if created {
		ctx = ctxlog.With(ctx, "run_id", runID)
	}
	logger := ctxlog.FromContext(ctx)

	if len(sources) == 0 {
		return "", &ConfigurationError{Msg: "etl requires at least one source"}
	}
	if transform == nil && len(sources) != 1 {
		return "", &ConfigurationError{Msg: fmt.Sprintf("etl without transform takes exactly one source, got %d", len(sources))}
	}

	start := time.Now()
	values := make([]Data, 0, len(sources))
	for i, input := range sources {
		switch in := input.(type) {
		case literal:
			values = append(values, in.data)
		case bound:
			data, err := in.binding.Extract(ctx)
			if err != nil {
				return "", fmt.Errorf("extract source %d (%s): %w", i, describe(in.binding.source), err)
			}
			values = append(values, data)
		default:
			return "", fmt.Errorf("source %d: unsupported input %T: %w", i, input, ErrContract)
		}
	}

	value := values[0]
	if transform != nil {
		out, err := transform(values...)
		if err != nil {
			return "", fmt.Errorf("transform: %w", err)
		}
		value = out
	}

	loc, err := destination.Load(ctx, value)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", describe(destination.destination), err)
	}
	logger.Info("ETL completed.", "sources", len(sources), "location", string(loc), "duration", time.Since(start))
	return loc, nil
}
