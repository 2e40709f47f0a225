// Package pipeline drives one run: load the cached artifact, fetch it when
// cold, materialize, and revalidate in the background when warm.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/hotpatch/internal/cache"
	"git.home.luguber.info/inful/hotpatch/internal/engine"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
	"git.home.luguber.info/inful/hotpatch/internal/eventstore"
	"git.home.luguber.info/inful/hotpatch/internal/fetch"
	"git.home.luguber.info/inful/hotpatch/internal/logfields"
	"git.home.luguber.info/inful/hotpatch/internal/metrics"
	"git.home.luguber.info/inful/hotpatch/internal/observability"
	"git.home.luguber.info/inful/hotpatch/internal/plugin/transforms"
	"git.home.luguber.info/inful/hotpatch/internal/retry"
)

// Stage names used in logs and RunFailed events.
const (
	StageLoad        = "load"
	StageFetch       = "fetch"
	StageMaterialize = "materialize"
	StageRevalidate  = "revalidate"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Fetcher retrieves the artifact; *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, role string) (*fetch.Result, error)
	URL() string
}

// Materializer turns text into the active environment; *engine.Engine implements it.
type Materializer interface {
	Materialize(ctx context.Context, text string) (*engine.Result, error)
}

// Pipeline wires the cache, the fetcher and the engine together.
type Pipeline struct {
	store    cache.Store
	fetcher  Fetcher
	engine   Materializer
	policy   retry.Policy
	logger   *slog.Logger
	recorder metrics.Recorder
	events   *eventstore.Recorder
	target   string
	newID    func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = metrics.OrNoop(r) }
}

// WithEvents records run events.
func WithEvents(r *eventstore.Recorder) Option {
	return func(p *Pipeline) { p.events = r }
}

// WithRetryPolicy sets the cold fetch retry policy. Revalidation never
// retries. A policy that fails Validate is replaced by the default.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithTargetKind labels run events with the target kind.
func WithTargetKind(kind string) Option {
	return func(p *Pipeline) { p.target = kind }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// New creates a pipeline.
func New(store cache.Store, fetcher Fetcher, eng Materializer, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		fetcher:  fetcher,
		engine:   eng,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.policy.Validate(); err != nil {
		p.logger.Warn("Ignoring invalid retry policy", logfields.Error(err))
		p.policy = retry.DefaultPolicy()
	}
	return p
}

// Revalidation is the outcome of the background fetch of a warm run.
type Revalidation struct {
	// Result is empty for cold runs.
	Result      metrics.RevalidationLabel
	Fingerprint string
	Err         error
}

// Run is one pipeline execution.
type Run struct {
	ID    string
	State metrics.CacheStateLabel
	// Fingerprint identifies the text that was materialized.
	Fingerprint string
	Result      *engine.Result

	done         chan struct{}
	revalidation Revalidation
}

// Done is closed once the run's background revalidation finished (at once for cold runs).
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the background revalidation finished and returns its outcome.
func (r *Run) Wait() Revalidation {
	<-r.done
	return r.revalidation
}

// Run executes the pipeline once. A cold fetch failure is fatal and
// nothing is materialized. On a warm start the revalidation is started
// before materialization and never delays a successful one; its failures
// are swallowed. When Run returns an error the revalidation has already
// finished.
func (p *Pipeline) Run(ctx context.Context) (*Run, error) {
	run := &Run{ID: p.newID(), done: make(chan struct{})}
	ctx = observability.WithRunID(ctx, run.ID)
	start := time.Now()

	entry, warm := p.load(ctx)
	if warm {
		run.State = metrics.CacheWarm
	} else {
		run.State = metrics.CacheCold
	}
	ctx = observability.WithCacheState(ctx, string(run.State))
	p.recorder.IncCacheState(run.State)
	p.events.Record(ctx, run.ID, eventstore.RunStarted{
		CacheState:  string(run.State),
		URL:         p.fetcher.URL(),
		Target:      p.target,
		Fingerprint: entry.Fingerprint,
	})
	p.logger.InfoContext(ctx, "Run started", logfields.URL(p.fetcher.URL()))

	var text string
	if warm {
		text = entry.Content
		run.Fingerprint = entry.Fingerprint
		go p.revalidate(ctx, run, entry.Fingerprint)
	} else {
		close(run.done)
		res, err := p.coldFetch(ctx, run)
		if err != nil {
			p.fail(ctx, run, StageFetch, err)
			return run, err
		}
		text = res.Content
		run.Fingerprint = res.Fingerprint
	}

	mctx, span := observability.StartStage(ctx, p.logger, StageMaterialize)
	result, err := p.engine.Materialize(mctx, text)
	span.End(err)
	run.Result = result
	if err != nil {
		p.fail(ctx, run, StageMaterialize, err)
		// A cached artifact that cannot be materialized is only ever
		// replaced by its revalidation.
		<-run.done
		return run, err
	}

	p.recordMaterialized(ctx, run, result)
	p.recorder.IncRunOutcome(OutcomeSuccess)
	p.events.Record(ctx, run.ID, eventstore.RunCompleted{
		Outcome:    OutcomeSuccess,
		DurationMS: time.Since(start).Milliseconds(),
	})
	p.logger.InfoContext(ctx, "Run completed",
		logfields.Fingerprint(run.Fingerprint),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	return run, nil
}

// load reads the cache. A read error is logged and treated as cold.
func (p *Pipeline) load(ctx context.Context) (cache.Entry, bool) {
	entry, ok, err := p.store.Load(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "Cache load failed; starting cold",
			logfields.Stage(StageLoad), logfields.Error(err))
		return cache.Entry{}, false
	}
	if !ok || !entry.Usable() {
		return cache.Entry{}, false
	}
	return entry, true
}

func (p *Pipeline) coldFetch(ctx context.Context, run *Run) (*fetch.Result, error) {
	fctx, span := observability.StartStage(ctx, p.logger, StageFetch)
	var res *fetch.Result
	err := p.policy.Do(fctx, func(ctx context.Context) error {
		var ferr error
		res, ferr = p.fetcher.Fetch(ctx, fetch.RoleCold)
		return ferr
	}, func(attempt int, delay time.Duration, err error) {
		p.logger.WarnContext(fctx, "Cold fetch failed; retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	})
	span.End(err)
	if err != nil {
		return nil, derrors.ColdFetchFailed(p.fetcher.URL(), err)
	}
	p.recordFetched(ctx, run.ID, fetch.RoleCold, res)

	if err := p.save(ctx, run.ID, res, "cold"); err != nil {
		p.logger.WarnContext(ctx, "Caching fetched artifact failed", logfields.Error(err))
	}
	return res, nil
}

func (p *Pipeline) revalidate(ctx context.Context, run *Run, previous string) {
	defer close(run.done)

	ctx, span := observability.StartStage(ctx, p.logger, StageRevalidate)
	outcome := p.revalidateOnce(ctx, run.ID, previous)
	span.SetAttr(slog.String("result", string(outcome.Result)))
	span.End(nil)

	run.revalidation = outcome
	p.recorder.IncRevalidation(outcome.Result)

	ev := eventstore.RevalidationCompleted{
		Result:              string(outcome.Result),
		PreviousFingerprint: previous,
		Fingerprint:         outcome.Fingerprint,
	}
	if outcome.Err != nil {
		ev.Error = outcome.Err.Error()
	}
	p.events.Record(ctx, run.ID, ev)
}

func (p *Pipeline) revalidateOnce(ctx context.Context, runID, previous string) Revalidation {
	res, err := p.fetcher.Fetch(ctx, fetch.RoleRevalidate)
	if err != nil {
		p.logger.DebugContext(ctx, "Revalidation failed", logfields.Error(err))
		return Revalidation{Result: metrics.RevalidationFailed, Err: err}
	}
	p.recordFetched(ctx, runID, fetch.RoleRevalidate, res)

	if res.Fingerprint == previous {
		p.logger.DebugContext(ctx, "Cached artifact is current", logfields.Fingerprint(previous))
		return Revalidation{Result: metrics.RevalidationUnchanged, Fingerprint: res.Fingerprint}
	}

	if err := p.save(ctx, runID, res, "revalidate"); err != nil {
		p.logger.DebugContext(ctx, "Revalidation could not update the cache", logfields.Error(err))
		return Revalidation{Result: metrics.RevalidationFailed, Fingerprint: res.Fingerprint, Err: err}
	}
	p.logger.InfoContext(ctx, "Cached artifact updated; takes effect on the next run",
		slog.String("previous", previous),
		logfields.Fingerprint(res.Fingerprint))
	return Revalidation{Result: metrics.RevalidationChanged, Fingerprint: res.Fingerprint}
}

func (p *Pipeline) save(ctx context.Context, runID string, res *fetch.Result, reason string) error {
	if err := p.store.Save(ctx, cache.Entry{Content: res.Content, Fingerprint: res.Fingerprint}); err != nil {
		return err
	}
	p.events.Record(ctx, runID, eventstore.CacheUpdated{Fingerprint: res.Fingerprint, Reason: reason})
	return nil
}

func (p *Pipeline) recordFetched(ctx context.Context, runID, role string, res *fetch.Result) {
	p.events.Record(ctx, runID, eventstore.ArtifactFetched{
		Role:              role,
		Fingerprint:       res.Fingerprint,
		FingerprintSource: string(res.Source),
		Status:            res.Status,
		Bytes:             len(res.Content),
	})
}

func (p *Pipeline) recordMaterialized(ctx context.Context, run *Run, result *engine.Result) {
	if p.events.Len() == 0 {
		return
	}
	var inj eventstore.InjectionCompleted
	for _, step := range result.Injection.Steps {
		switch step.Outcome {
		case transforms.OutcomeApplied:
			inj.Applied = append(inj.Applied, step.Injector)
		case transforms.OutcomeUnchanged:
			inj.Unchanged = append(inj.Unchanged, step.Injector)
		case transforms.OutcomeFailed:
			inj.Failed = append(inj.Failed, step.Injector)
		}
	}
	p.events.Record(ctx, run.ID, inj)
	p.events.Record(ctx, run.ID, eventstore.ArtifactMaterialized{
		Target:     p.target,
		Bytes:      len(result.Final),
		DurationMS: result.Duration.Milliseconds(),
	})

	runners := eventstore.RunnersCompleted{Total: len(result.Runs.Results)}
	for _, r := range result.Runs.Results {
		if r.Err != nil {
			runners.Failed = append(runners.Failed, r.Runner)
		}
	}
	p.events.Record(ctx, run.ID, runners)
}

func (p *Pipeline) fail(ctx context.Context, run *Run, stage string, err error) {
	p.recorder.IncRunOutcome(OutcomeFailed)
	p.events.Record(ctx, run.ID, eventstore.RunFailed{Stage: stage, Error: err.Error()})
	p.logger.ErrorContext(ctx, "Run failed", logfields.Stage(stage), logfields.Error(err))
}
