package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/hotpatch/internal/cache"
	"git.home.luguber.info/inful/hotpatch/internal/config"
	"git.home.luguber.info/inful/hotpatch/internal/engine"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/eventstore"
	"git.home.luguber.info/inful/hotpatch/internal/fetch"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/hooks"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/retry"
	"git.home.luguber.info/inful/hotpatch/internal/target"
)

type chains struct {
	injectors []transforms.Injector
	runners   []hooks.Runner
}

func (c chains) Injectors() []transforms.Injector { return c.injectors }
func (c chains) Runners() []hooks.Runner          { return c.runners }

func suffix(s string) transforms.Injector {
	return transforms.Injector{Name: "suffix" + s, Fn: func(_ context.Context, src string) (string, bool, error) {
		return src + s, true, nil
	}}
}

// artifactServer serves body with the given ETag and counts requests.
func artifactServer(t *testing.T, body, etag string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	store    cache.Store
	engine   *engine.Engine
	recorder *metrics.MemoryRecorder
	pipeline *Pipeline
}

func newFixture(t *testing.T, url string, store cache.Store, c chains, opts ...Option) *fixture {
	t.Helper()
	rec := metrics.NewMemoryRecorder()
	eng := engine.New(target.NewHTML(), c, engine.WithRecorder(rec))
	t.Cleanup(func() { _ = eng.Close() })
	opts = append([]Option{WithRecorder(rec), WithTargetKind(target.KindHTML)}, opts...)
	return &fixture{
		store:    store,
		engine:   eng,
		recorder: rec,
		pipeline: New(store, fetch.New(url, fetch.WithRecorder(rec)), eng, opts...),
	}
}

func loadEntry(t *testing.T, store cache.Store) (cache.Entry, bool) {
	t.Helper()
	entry, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	return entry, ok
}

func TestColdStartFetchesSavesAndMaterializes(t *testing.T) {
	srv, hits := artifactServer(t, "X", `"a1"`)
	store := cache.NewMemoryStore()
	f := newFixture(t, srv.URL, store, chains{injectors: []transforms.Injector{suffix("-1"), suffix("-2")}})

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, metrics.CacheCold, run.State)
	assert.Equal(t, `"a1"`, run.Fingerprint)
	assert.Equal(t, "X-1-2", run.Result.Final)
	assert.Equal(t, "X-1-2", f.engine.Active().Source())
	assert.Equal(t, Revalidation{}, run.Wait())
	assert.EqualValues(t, 1, hits.Load())

	entry, ok := loadEntry(t, store)
	require.True(t, ok)
	assert.Equal(t, "X", entry.Content)
	assert.Equal(t, `"a1"`, entry.Fingerprint)
	assert.Equal(t, 1, f.recorder.Outcomes[OutcomeSuccess])
	assert.Equal(t, 1, f.recorder.CacheStates[metrics.CacheCold])
}

func TestWarmStartUnchangedFingerprint(t *testing.T) {
	srv, hits := artifactServer(t, "Y-remote", "b1")
	store := cache.NewMemoryStore(cache.Entry{Content: "Y", Fingerprint: "b1"})
	f := newFixture(t, srv.URL, store, chains{})

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.CacheWarm, run.State)
	assert.Equal(t, "Y", run.Result.Final)

	reval := run.Wait()
	assert.Equal(t, metrics.RevalidationUnchanged, reval.Result)
	assert.NoError(t, reval.Err)
	assert.EqualValues(t, 1, hits.Load())

	entry, ok := loadEntry(t, store)
	require.True(t, ok)
	assert.Equal(t, "Y", entry.Content)
	assert.Equal(t, "b1", entry.Fingerprint)
	assert.Equal(t, 1, f.recorder.Revalidation(metrics.RevalidationUnchanged))
}

func TestWarmStartServesStaleWhileRevalidating(t *testing.T) {
	srv, _ := artifactServer(t, "F2", "f2")
	store := cache.NewMemoryStore(cache.Entry{Content: "F1", Fingerprint: "f1"})
	f := newFixture(t, srv.URL, store, chains{})

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	reval := run.Wait()
	assert.Equal(t, metrics.RevalidationChanged, reval.Result)
	assert.Equal(t, "f2", reval.Fingerprint)

	entry, ok := loadEntry(t, store)
	require.True(t, ok)
	assert.Equal(t, "F2", entry.Content)
	assert.Equal(t, "f2", entry.Fingerprint)

	// The current run keeps the stale text; the update applies next time.
	assert.Equal(t, "F1", f.engine.Active().Source())
	assert.Equal(t, "f1", run.Fingerprint)

	next, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "F2", next.Result.Final)
	assert.Equal(t, metrics.RevalidationUnchanged, next.Wait().Result)
}

func TestColdFetchFailureIsFatal(t *testing.T) {
	srv := failingServer(t)
	store := cache.NewMemoryStore()
	var runnerCalls atomic.Int32
	f := newFixture(t, srv.URL, store, chains{runners: []hooks.Runner{{
		Name: "count",
		Fn: func(context.Context, hooks.Environment) error {
			runnerCalls.Add(1)
			return nil
		},
	}}})

	run, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryNetwork))

	var status *fetch.StatusError
	assert.True(t, errors.As(err, &status))

	assert.Nil(t, run.Result)
	assert.Nil(t, f.engine.Active())
	assert.Zero(t, runnerCalls.Load())
	_, ok := loadEntry(t, store)
	assert.False(t, ok)
	assert.Equal(t, 1, f.recorder.Outcomes[OutcomeFailed])
}

func TestColdFetchRetriesPerPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("ETag", "r")
		_, _ = w.Write([]byte("retried"))
	}))
	t.Cleanup(srv.Close)

	policy := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	f := newFixture(t, srv.URL, cache.NewMemoryStore(), chains{}, WithRetryPolicy(policy))

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "retried", run.Result.Final)
	assert.EqualValues(t, 3, calls.Load())
}

func TestInvalidRetryPolicyFallsBackToDefault(t *testing.T) {
	p := New(cache.NewMemoryStore(), fetch.New("http://example.invalid"), nil,
		WithRetryPolicy(retry.Policy{MaxRetries: 3}))
	assert.Equal(t, retry.DefaultPolicy(), p.policy)

	valid := retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Second, 2)
	p = New(cache.NewMemoryStore(), fetch.New("http://example.invalid"), nil, WithRetryPolicy(valid))
	assert.Equal(t, valid, p.policy)
}

func TestRevalidationFailureIsSwallowed(t *testing.T) {
	srv := failingServer(t)
	store := cache.NewMemoryStore(cache.Entry{Content: "cached", Fingerprint: "c1"})
	f := newFixture(t, srv.URL, store, chains{})

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", run.Result.Final)

	reval := run.Wait()
	assert.Equal(t, metrics.RevalidationFailed, reval.Result)
	assert.Error(t, reval.Err)

	entry, ok := loadEntry(t, store)
	require.True(t, ok)
	assert.Equal(t, "c1", entry.Fingerprint)
	assert.Equal(t, 1, f.recorder.Outcomes[OutcomeSuccess])
}

func TestWarmMaterializationDoesNotWaitForRevalidation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("ETag", "late")
		_, _ = w.Write([]byte("late"))
	}))
	t.Cleanup(srv.Close)

	store := cache.NewMemoryStore(cache.Entry{Content: "now", Fingerprint: "early"})
	f := newFixture(t, srv.URL, store, chains{})

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "now", f.engine.Active().Source())

	select {
	case <-run.Done():
		t.Fatal("revalidation finished before the server answered")
	default:
	}

	close(release)
	assert.Equal(t, metrics.RevalidationChanged, run.Wait().Result)
}

func TestEmptyCachedContentCountsAsCold(t *testing.T) {
	srv, hits := artifactServer(t, "fresh", "e1")
	store := cache.NewMemoryStore(cache.Entry{Content: "", Fingerprint: "orphan"})
	f := newFixture(t, srv.URL, store, chains{})

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics.CacheCold, run.State)
	assert.Equal(t, "fresh", run.Result.Final)
	assert.EqualValues(t, 1, hits.Load())
}

type failingTarget struct{}

func (failingTarget) Kind() string { return "broken" }
func (failingTarget) Materialize(context.Context, string) (hooks.Environment, error) {
	return nil, errors.New("cannot build")
}

func TestMaterializeFailureEndsRun(t *testing.T) {
	srv, _ := artifactServer(t, "X", "a1")
	rec := metrics.NewMemoryRecorder()
	eng := engine.New(failingTarget{}, chains{})
	p := New(cache.NewMemoryStore(), fetch.New(srv.URL), eng, WithRecorder(rec))

	run, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryMaterialize))
	require.NotNil(t, run.Result)
	assert.Nil(t, run.Result.Env)
	assert.Equal(t, 1, rec.Outcomes[OutcomeFailed])
}

func TestWarmMaterializeFailureStillRevalidates(t *testing.T) {
	srv, hits := artifactServer(t, "greeting = 'hi'\n", `"good"`)
	store := cache.NewMemoryStore(cache.Entry{Content: "broken (", Fingerprint: "bad"})
	eng := engine.New(target.NewStarlark(nil, nil), chains{})
	t.Cleanup(func() { _ = eng.Close() })
	p := New(store, fetch.New(srv.URL), eng)

	run, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, derrors.IsCategory(err, derrors.CategoryMaterialize))
	assert.Equal(t, metrics.CacheWarm, run.State)

	// The revalidation has finished by the time Run returns.
	select {
	case <-run.Done():
	default:
		t.Fatal("revalidation still running after a failed run")
	}
	assert.Equal(t, metrics.RevalidationChanged, run.Wait().Result)
	assert.EqualValues(t, 1, hits.Load())

	entry, ok := loadEntry(t, store)
	require.True(t, ok)
	assert.Equal(t, "greeting = 'hi'\n", entry.Content)
	assert.Equal(t, `"good"`, entry.Fingerprint)

	next, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `"good"`, next.Fingerprint)
	assert.Equal(t, metrics.RevalidationUnchanged, next.Wait().Result)
}

func TestRunEventsAreRecorded(t *testing.T) {
	srv, _ := artifactServer(t, "X", "a1")
	events, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = events.Close() })

	f := newFixture(t, srv.URL, cache.NewMemoryStore(), chains{injectors: []transforms.Injector{suffix("!")}},
		WithEvents(eventstore.NewRecorder(nil, events)),
		WithRunIDs(func() string { return "run-1" }))

	run, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)

	stored, err := events.GetByRunID(context.Background(), "run-1")
	require.NoError(t, err)
	types := make([]string, 0, len(stored))
	for _, e := range stored {
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{
		eventstore.TypeRunStarted,
		eventstore.TypeArtifactFetched,
		eventstore.TypeCacheUpdated,
		eventstore.TypeInjectionCompleted,
		eventstore.TypeArtifactMaterialized,
		eventstore.TypeRunnersCompleted,
		eventstore.TypeRunCompleted,
	}, types)

	inj, err := eventstore.Decode[eventstore.InjectionCompleted](stored[3])
	require.NoError(t, err)
	assert.Equal(t, []string{"suffix!"}, inj.Applied)
}
