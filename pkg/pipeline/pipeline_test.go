package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxrow/voxrow/pkg/pipeline"
)

// memoryPort is an Extractor and Loader backed by a map keyed by bucket/key.
type memoryPort struct {
	mu        sync.Mutex
	objects   map[string]pipeline.Data
	loads     []pipeline.Data
	extracts  []pipeline.Source
	extractFn func(pipeline.Source) (pipeline.Data, error)
	loadErr   error
}

func newMemoryPort() *memoryPort {
	return &memoryPort{objects: map[string]pipeline.Data{}}
}

func (p *memoryPort) Extract(_ context.Context, source pipeline.Source) (pipeline.Data, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extracts = append(p.extracts, source)
	if p.extractFn != nil {
		return p.extractFn(source)
	}
	src, ok := source.(pipeline.ObjectStorageSource)
	if !ok {
		return nil, fmt.Errorf("memory port: %T: %w", source, pipeline.ErrContract)
	}
	return p.objects[src.Bucket+"/"+src.Key], nil
}

func (p *memoryPort) Load(_ context.Context, data pipeline.Data, destination pipeline.Destination) (pipeline.ResourceLocation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return "", p.loadErr
	}
	dst, ok := destination.(pipeline.ObjectStorageDestination)
	if !ok {
		return "", fmt.Errorf("memory port: %T: %w", destination, pipeline.ErrContract)
	}
	p.loads = append(p.loads, data)
	p.objects[dst.Bucket+"/"+dst.Key] = data
	return pipeline.ResourceLocation(dst.Key), nil
}

// loadOnly implements Loader but not Extractor.
type loadOnly struct{}

func (loadOnly) Load(context.Context, pipeline.Data, pipeline.Destination) (pipeline.ResourceLocation, error) {
	return "x", nil
}

// recordingHooks records hook calls in order.
type recordingHooks struct {
	calls       []string
	rollbackErr error
}

func (h *recordingHooks) Commit(_ context.Context, scope *pipeline.Scope) error {
	h.calls = append(h.calls, "commit:"+scope.State().String())
	return nil
}

func (h *recordingHooks) Rollback(_ context.Context, scope *pipeline.Scope, cause error) error {
	h.calls = append(h.calls, "rollback:"+scope.State().String())
	return h.rollbackErr
}

func dest(key string) pipeline.ObjectStorageDestination {
	return pipeline.ObjectStorageDestination{
		ObjectStorageSource: pipeline.ObjectStorageSource{Bucket: "web", Key: key},
		ContentType:         pipeline.ContentTypeJSON,
	}
}

func TestETL_LiteralWithoutTransform(t *testing.T) {
	port := newMemoryPort()
	uow := pipeline.NewUnitOfWork("memory", port)
	x := map[string]any{"a": 1}

	loc, err := pipeline.ETL(context.Background(),
		[]pipeline.Input{pipeline.Literal(x)},
		uow.Bind(nil, dest("out.json")),
		nil)

	require.NoError(t, err)
	assert.Equal(t, pipeline.ResourceLocation("out.json"), loc)
	require.Len(t, port.loads, 1)
	assert.Equal(t, x, port.loads[0])
	assert.Empty(t, port.extracts)
}

func TestETL_TransformReceivesSourcesInOrder(t *testing.T) {
	port := newMemoryPort()
	port.objects["lake/a"] = "first"
	port.objects["lake/b"] = "third"
	uow := pipeline.NewUnitOfWork("memory", port)

	var seen []pipeline.Data
	transform := func(in ...pipeline.Data) (pipeline.Data, error) {
		seen = in
		return fmt.Sprint(in...), nil
	}

	loc, err := pipeline.ETL(context.Background(),
		[]pipeline.Input{
			pipeline.Bound(uow, pipeline.ObjectStorageSource{Bucket: "lake", Key: "a"}),
			pipeline.Literal("second"),
			pipeline.Bound(uow, pipeline.ObjectStorageSource{Bucket: "lake", Key: "b"}),
		},
		uow.Bind(nil, dest("joined")),
		transform)

	require.NoError(t, err)
	assert.Equal(t, pipeline.ResourceLocation("joined"), loc)
	assert.Equal(t, []pipeline.Data{"first", "second", "third"}, seen)
	require.Len(t, port.loads, 1)
	assert.Equal(t, "firstsecondthird", port.loads[0])
	require.Len(t, port.extracts, 2)
	assert.Equal(t, "a", port.extracts[0].(pipeline.ObjectStorageSource).Key)
	assert.Equal(t, "b", port.extracts[1].(pipeline.ObjectStorageSource).Key)
}

func TestETL_RequiresTransformForManySources(t *testing.T) {
	port := newMemoryPort()
	uow := pipeline.NewUnitOfWork("memory", port)

	_, err := pipeline.ETL(context.Background(),
		[]pipeline.Input{
			pipeline.Bound(uow, pipeline.ObjectStorageSource{Bucket: "lake", Key: "a"}),
			pipeline.Literal(2),
		},
		uow.Bind(nil, dest("out")),
		nil)

	require.Error(t, err)
	assert.True(t, pipeline.IsConfiguration(err))
	assert.Empty(t, port.extracts, "no extraction may happen before validation")
	assert.Empty(t, port.loads)
}

func TestETL_NoSources(t *testing.T) {
	uow := pipeline.NewUnitOfWork("memory", newMemoryPort())
	_, err := pipeline.ETL(context.Background(), nil, uow.Bind(nil, dest("out")), nil)
	assert.True(t, pipeline.IsConfiguration(err))
}

func TestETL_ExtractFailureAbortsBeforeLoad(t *testing.T) {
	port := newMemoryPort()
	boom := &pipeline.TransportError{Op: "s3 get", Target: "lake/a", Err: errors.New("connection reset")}
	port.extractFn = func(pipeline.Source) (pipeline.Data, error) { return nil, boom }
	uow := pipeline.NewUnitOfWork("memory", port)

	_, err := pipeline.ETL(context.Background(),
		[]pipeline.Input{pipeline.Bound(uow, pipeline.ObjectStorageSource{Bucket: "lake", Key: "a"})},
		uow.Bind(nil, dest("out")),
		nil)

	require.ErrorIs(t, err, boom)
	assert.True(t, pipeline.IsTransport(err))
	assert.Empty(t, port.loads)
}

func TestETL_TransformFailure(t *testing.T) {
	port := newMemoryPort()
	uow := pipeline.NewUnitOfWork("memory", port)
	bad := errors.New("bad shape")

	_, err := pipeline.ETL(context.Background(),
		[]pipeline.Input{pipeline.Literal(1)},
		uow.Bind(nil, dest("out")),
		func(...pipeline.Data) (pipeline.Data, error) { return nil, bad })

	require.ErrorIs(t, err, bad)
	assert.Empty(t, port.loads)
}

func TestETL_LoadFailurePropagates(t *testing.T) {
	port := newMemoryPort()
	port.loadErr = &pipeline.TransportError{Op: "s3 put", Target: "web/out", Err: errors.New("denied")}
	uow := pipeline.NewUnitOfWork("memory", port)

	loc, err := pipeline.ETL(context.Background(), []pipeline.Input{pipeline.Literal(1)}, uow.Bind(nil, dest("out")), nil)

	assert.Empty(t, loc)
	assert.True(t, pipeline.IsTransport(err))
}

func TestETL_NilInputIsContractViolation(t *testing.T) {
	uow := pipeline.NewUnitOfWork("memory", newMemoryPort())
	_, err := pipeline.ETL(context.Background(), []pipeline.Input{nil}, uow.Bind(nil, dest("out")), nil)
	assert.ErrorIs(t, err, pipeline.ErrContract)
}

func TestBinding_EmptyScopeFailsBeforePortCall(t *testing.T) {
	port := newMemoryPort()
	hooks := &recordingHooks{}
	uow := pipeline.NewUnitOfWork("memory", port, pipeline.WithHooks(hooks))

	called := false
	err := uow.Bind(nil, nil).Do(context.Background(), func(context.Context, *pipeline.Scope) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, pipeline.IsConfiguration(err))
	assert.False(t, called)
	assert.Empty(t, hooks.calls)

	_, err = uow.Bind(nil, nil).Extract(context.Background())
	assert.True(t, pipeline.IsConfiguration(err))
	assert.Empty(t, port.extracts)
}

func TestBinding_CommitOnSuccess(t *testing.T) {
	hooks := &recordingHooks{}
	uow := pipeline.NewUnitOfWork("memory", newMemoryPort(), pipeline.WithHooks(hooks))

	var scope *pipeline.Scope
	err := uow.Bind(nil, dest("k")).Do(context.Background(), func(_ context.Context, s *pipeline.Scope) error {
		scope = s
		assert.Equal(t, pipeline.StateOpen, s.State())
		assert.NotNil(t, s.Destination())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"commit:committed"}, hooks.calls)
	assert.Equal(t, pipeline.StateClosed, scope.State())
	assert.Nil(t, scope.Source())
	assert.Nil(t, scope.Destination())
}

func TestBinding_RollbackBeforeSuppression(t *testing.T) {
	hooks := &recordingHooks{}
	var order []string
	policy := pipeline.ErrorPolicyFunc(func(_ context.Context, s *pipeline.Scope, err error) bool {
		order = append(order, "suppress:"+s.State().String())
		return false
	})
	uow := pipeline.NewUnitOfWork("memory", newMemoryPort(), pipeline.WithHooks(hooks), pipeline.WithErrorPolicy(policy))
	boom := errors.New("boom")

	err := uow.Bind(pipeline.ObjectStorageSource{Bucket: "b", Key: "k"}, nil).Do(context.Background(),
		func(context.Context, *pipeline.Scope) error { return boom })

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"rollback:rolled_back"}, hooks.calls)
	assert.Equal(t, []string{"suppress:rolled_back"}, order)
}

func TestBinding_SuppressionIsOptIn(t *testing.T) {
	policy := pipeline.ErrorPolicyFunc(func(_ context.Context, _ *pipeline.Scope, err error) bool {
		return pipeline.IsTransport(err)
	})
	port := newMemoryPort()
	port.extractFn = func(pipeline.Source) (pipeline.Data, error) {
		return nil, &pipeline.TransportError{Op: "s3 get", Target: "b/k", StatusCode: 404}
	}
	uow := pipeline.NewUnitOfWork("memory", port, pipeline.WithErrorPolicy(policy))

	data, err := uow.Bind(pipeline.ObjectStorageSource{Bucket: "b", Key: "k"}, nil).Extract(context.Background())

	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestBinding_RollbackErrorIsJoined(t *testing.T) {
	hookErr := errors.New("journal down")
	hooks := &recordingHooks{rollbackErr: hookErr}
	uow := pipeline.NewUnitOfWork("memory", newMemoryPort(), pipeline.WithHooks(hooks))
	boom := errors.New("boom")

	err := uow.Bind(nil, dest("k")).Do(context.Background(), func(context.Context, *pipeline.Scope) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, hookErr)
}

func TestBinding_PanicRollsBack(t *testing.T) {
	hooks := &recordingHooks{}
	uow := pipeline.NewUnitOfWork("memory", newMemoryPort(), pipeline.WithHooks(hooks))

	assert.Panics(t, func() {
		_ = uow.Bind(nil, dest("k")).Do(context.Background(), func(context.Context, *pipeline.Scope) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, []string{"rollback:rolled_back"}, hooks.calls)
}

func TestBinding_MissingCapability(t *testing.T) {
	uow := pipeline.NewUnitOfWork("load-only", loadOnly{})
	_, err := uow.Bind(pipeline.FileSource{Path: "x"}, nil).Extract(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrContract)
}

func TestNewUnitOfWork_RejectsNonPort(t *testing.T) {
	assert.Panics(t, func() { pipeline.NewUnitOfWork("bad", struct{}{}) })
}

func TestUnitOfWork_ConcurrentBindingsDoNotLeak(t *testing.T) {
	port := newMemoryPort()
	uow := pipeline.NewUnitOfWork("memory", port)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			loc, err := pipeline.ETL(context.Background(), []pipeline.Input{pipeline.Literal(i)}, uow.Bind(nil, dest(key)), nil)
			assert.NoError(t, err)
			assert.Equal(t, pipeline.ResourceLocation(key), loc)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		assert.Equal(t, i, port.objects[fmt.Sprintf("web/k%d", i)])
	}
}

func TestRunIDIsPropagatedToScopes(t *testing.T) {
	var runIDs []string
	hooks := hookFunc(func(s *pipeline.Scope) { runIDs = append(runIDs, s.RunID()) })
	port := newMemoryPort()
	uow := pipeline.NewUnitOfWork("memory", port, pipeline.WithHooks(hooks))

	ctx := pipeline.WithRunID(context.Background(), "run-1")
	_, err := pipeline.ETL(ctx,
		[]pipeline.Input{pipeline.Bound(uow, pipeline.ObjectStorageSource{Bucket: "lake", Key: "a"})},
		uow.Bind(nil, dest("out")), nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-1"}, runIDs)
}

type hookFunc func(*pipeline.Scope)

func (f hookFunc) Commit(_ context.Context, s *pipeline.Scope) error { f(s); return nil }
func (f hookFunc) Rollback(_ context.Context, s *pipeline.Scope, _ error) error {
	f(s)
	return nil
}

func TestDescribeRedactsURLPath(t *testing.T) {
	got := pipeline.Describe(pipeline.HTTPSource{Method: pipeline.MethodGet, URL: "https://webapi.bps.go.id/v1/api/key/SECRET/"})
	assert.Equal(t, "GET https://webapi.bps.go.id", got)
	assert.NotContains(t, got, "SECRET")
}
