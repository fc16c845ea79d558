package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxrow/voxrow/internal/ctxlog"
)

// State is the lifecycle position of a Scope.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Hooks run when a scope exits. Commit runs after a successful operation,
// Rollback after a failed one and before the ErrorPolicy is consulted.
type Hooks interface {
	Commit(ctx context.Context, scope *Scope) error
	Rollback(ctx context.Context, scope *Scope, cause error) error
}

// NopHooks is the default: nothing to commit or roll back.
type NopHooks struct{}

func (NopHooks) Commit(context.Context, *Scope) error          { return nil }
func (NopHooks) Rollback(context.Context, *Scope, error) error { return nil }

// ErrorPolicy decides whether a failure that already went through rollback
// is swallowed. Swallowing is always an explicit opt-in.
type ErrorPolicy interface {
	Suppress(ctx context.Context, scope *Scope, err error) bool
}

// ErrorPolicyFunc adapts a function to ErrorPolicy.
type ErrorPolicyFunc func(ctx context.Context, scope *Scope, err error) bool

func (f ErrorPolicyFunc) Suppress(ctx context.Context, scope *Scope, err error) bool {
	return f(ctx, scope, err)
}

// Propagate never suppresses. It is the default policy.
var Propagate ErrorPolicy = ErrorPolicyFunc(func(context.Context, *Scope, error) bool { return false })

// UnitOfWork owns one transport port (an Extractor, a Loader, or both) for
// its whole life. It is built once per credential set and bound per call
// with Bind; bindings never mutate it, so one UnitOfWork serves any number
// of concurrent logical operations.
type UnitOfWork struct {
	name   string
	port   any
	hooks  Hooks
	policy ErrorPolicy
}

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithHooks replaces the default no-op commit/rollback hooks.
func WithHooks(h Hooks) Option {
	return func(u *UnitOfWork) {
		if h != nil {
			u.hooks = h
		}
	}
}

// WithErrorPolicy replaces the default Propagate policy.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(u *UnitOfWork) {
		if p != nil {
			u.policy = p
		}
	}
}

// NewUnitOfWork wraps port, which must implement Extractor, Loader, or both.
func NewUnitOfWork(name string, port any, opts ...Option) *UnitOfWork {
	_, canExtract := port.(Extractor)
	_, canLoad := port.(Loader)
	if !canExtract && !canLoad {
		panic(fmt.Sprintf("pipeline.NewUnitOfWork: %T implements neither Extractor nor Loader", port))
	}
	u := &UnitOfWork{
		name:   name,
		port:   port,
		hooks:  NopHooks{},
		policy: Propagate,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Name identifies the unit of work in logs and journals.
func (u *UnitOfWork) Name() string { return u.name }

// Bind returns a handle pairing this unit of work with the given domain
// values. Either may be nil; opening a scope with both nil fails.
func (u *UnitOfWork) Bind(source Source, destination Destination) Binding {
	return Binding{uow: u, source: source, destination: destination}
}

// Binding is an immutable handle: a shared UnitOfWork plus the domain
// values of one logical operation. Each operation opens a fresh Scope.
type Binding struct {
	uow         *UnitOfWork
	source      Source
	destination Destination
}

func (b Binding) Source() Source           { return b.source }
func (b Binding) Destination() Destination { return b.destination }

// Scope is the live state of one opened binding.
type Scope struct {
	unitOfWork  string
	runID       string
	state       State
	source      Source
	destination Destination
}

func (s *Scope) UnitOfWork() string       { return s.unitOfWork }
func (s *Scope) RunID() string            { return s.runID }
func (s *Scope) State() State             { return s.state }
func (s *Scope) Source() Source           { return s.source }
func (s *Scope) Destination() Destination { return s.destination }

// Do opens a scope, runs fn inside it and closes it. A nil result commits;
// a failure (or panic) rolls back and is then offered to the ErrorPolicy.
// The returned error is nil when fn succeeded or its failure was suppressed.
func (b Binding) Do(ctx context.Context, fn func(ctx context.Context, scope *Scope) error) error {
	scope, err := b.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = b.close(ctx, scope, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	return b.close(ctx, scope, fn(ctx, scope))
}

func (b Binding) open(ctx context.Context) (*Scope, error) {
	if b.uow == nil {
		return nil, &ConfigurationError{Msg: "binding has no unit of work"}
	}
	if b.source == nil && b.destination == nil {
		return nil, &ConfigurationError{Msg: "destination or source must not be empty"}
	}
	scope := &Scope{
		unitOfWork:  b.uow.name,
		runID:       RunIDFromContext(ctx),
		state:       StateOpen,
		source:      b.source,
		destination: b.destination,
	}
	ctxlog.FromContext(ctx).Debug("Unit of work opened.",
		"uow", scope.unitOfWork, "source", describe(b.source), "destination", describe(b.destination))
	return scope, nil
}

func (b Binding) close(ctx context.Context, scope *Scope, err error) error {
	logger := ctxlog.FromContext(ctx).With("uow", scope.unitOfWork)
	defer func() {
		scope.source = nil
		scope.destination = nil
		scope.state = StateClosed
	}()

	if err == nil {
		scope.state = StateCommitted
		if cerr := b.uow.hooks.Commit(ctx, scope); cerr != nil {
			return fmt.Errorf("unit of work %q: commit: %w", scope.unitOfWork, cerr)
		}
		logger.Debug("Unit of work committed.")
		return nil
	}

	scope.state = StateRolledBack
	if rerr := b.uow.hooks.Rollback(ctx, scope, err); rerr != nil {
		err = errors.Join(err, fmt.Errorf("unit of work %q: rollback: %w", scope.unitOfWork, rerr))
	}
	if b.uow.policy.Suppress(ctx, scope, err) {
		logger.Warn("Unit of work failure suppressed.", "error", err)
		return nil
	}
	logger.Debug("Unit of work rolled back.", "error", err)
	return err
}

// Extract runs the port's Extract on the bound source inside a scope.
func (b Binding) Extract(ctx context.Context) (Data, error) {
	var out Data
	err := b.Do(ctx, func(ctx context.Context, scope *Scope) error {
		extractor, ok := b.uow.port.(Extractor)
		if !ok {
			return fmt.Errorf("unit of work %q cannot extract: %w", scope.unitOfWork, ErrContract)
		}
		if scope.Source() == nil {
			return &ConfigurationError{Msg: "extract requires a bound source"}
		}
		data, err := extractor.Extract(ctx, scope.Source())
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	return out, err
}

// Load runs the port's Load on the bound destination inside a scope.
func (b Binding) Load(ctx context.Context, data Data) (ResourceLocation, error) {
	var loc ResourceLocation
	err := b.Do(ctx, func(ctx context.Context, scope *Scope) error {
		loader, ok := b.uow.port.(Loader)
		if !ok {
			return fmt.Errorf("unit of work %q cannot load: %w", scope.unitOfWork, ErrContract)
		}
		if scope.Destination() == nil {
			return &ConfigurationError{Msg: "load requires a bound destination"}
		}
		l, err := loader.Load(ctx, data, scope.Destination())
		if err != nil {
			return err
		}
		loc = l
		return nil
	})
	return loc, err
}
