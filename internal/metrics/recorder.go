package metrics

import "time"

// ResultLabel enumerates step result categories for counters.
type ResultLabel string

const (
	ResultSuccess   ResultLabel = "success"
	ResultApplied   ResultLabel = "applied"
	ResultUnchanged ResultLabel = "unchanged"
	ResultFailed    ResultLabel = "failed"
)

// CacheStateLabel is the cache state a run started from.
type CacheStateLabel string

const (
	CacheCold CacheStateLabel = "cold"
	CacheWarm CacheStateLabel = "warm"
)

// RevalidationLabel is the outcome of a background revalidation.
type RevalidationLabel string

const (
	RevalidationChanged   RevalidationLabel = "changed"
	RevalidationUnchanged RevalidationLabel = "unchanged"
	RevalidationFailed    RevalidationLabel = "failed"
)

// Recorder defines observability hooks for pipeline runs. Implementations
// may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveFetchDuration(role string, d time.Duration, success bool)
	IncCacheState(state CacheStateLabel)
	IncRevalidation(result RevalidationLabel)
	IncInjectorResult(injector string, result ResultLabel)
	IncRunnerResult(runner string, result ResultLabel)
	IncPluginInit(plugin string, result ResultLabel)
	ObserveMaterializeDuration(target string, d time.Duration, success bool)
	IncRunOutcome(outcome string) // outcome: success|failed
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveFetchDuration(string, time.Duration, bool)       {}
func (NoopRecorder) IncCacheState(CacheStateLabel)                          {}
func (NoopRecorder) IncRevalidation(RevalidationLabel)                      {}
func (NoopRecorder) IncInjectorResult(string, ResultLabel)                  {}
func (NoopRecorder) IncRunnerResult(string, ResultLabel)                    {}
func (NoopRecorder) IncPluginInit(string, ResultLabel)                      {}
func (NoopRecorder) ObserveMaterializeDuration(string, time.Duration, bool) {}
func (NoopRecorder) IncRunOutcome(string)                                   {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
