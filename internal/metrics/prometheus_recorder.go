package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	fetchDuration    *prom.HistogramVec
	cacheStates      *prom.CounterVec
	revalidations    *prom.CounterVec
	injectorResults  *prom.CounterVec
	runnerResults    *prom.CounterVec
	pluginInits      *prom.CounterVec
	materializeTimes *prom.HistogramVec
	runOutcome       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.fetchDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "hotpatch",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of artifact fetches by role (cold|revalidate)",
			Buckets:   prom.DefBuckets,
		}, []string{"role", "result"})
		pr.cacheStates = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hotpatch",
			Name:      "cache_state_total",
			Help:      "Runs by starting cache state",
		}, []string{"state"})
		pr.revalidations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hotpatch",
			Name:      "revalidations_total",
			Help:      "Background revalidation outcomes",
		}, []string{"result"})
		pr.injectorResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hotpatch",
			Name:      "injector_results_total",
			Help:      "Injector outcomes by injector name",
		}, []string{"injector", "result"})
		pr.runnerResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hotpatch",
			Name:      "runner_results_total",
			Help:      "Runner outcomes by runner name",
		}, []string{"runner", "result"})
		pr.pluginInits = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hotpatch",
			Name:      "plugin_init_total",
			Help:      "Plugin init outcomes by plugin name",
		}, []string{"plugin", "result"})
		pr.materializeTimes = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "hotpatch",
			Name:      "materialize_duration_seconds",
			Help:      "Duration of materialization by target",
			Buckets:   prom.DefBuckets,
		}, []string{"target", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "hotpatch",
			Name:      "run_outcomes_total",
			Help:      "Pipeline runs by final status",
		}, []string{"outcome"})
		reg.MustRegister(pr.fetchDuration, pr.cacheStates, pr.revalidations, pr.injectorResults,
			pr.runnerResults, pr.pluginInits, pr.materializeTimes, pr.runOutcome)
	})
	return pr
}

func resultOf(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}

func (p *PrometheusRecorder) ObserveFetchDuration(role string, d time.Duration, success bool) {
	if p == nil || p.fetchDuration == nil {
		return
	}
	p.fetchDuration.WithLabelValues(role, resultOf(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCacheState(state CacheStateLabel) {
	if p == nil || p.cacheStates == nil {
		return
	}
	p.cacheStates.WithLabelValues(string(state)).Inc()
}

func (p *PrometheusRecorder) IncRevalidation(result RevalidationLabel) {
	if p == nil || p.revalidations == nil {
		return
	}
	p.revalidations.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncInjectorResult(injector string, result ResultLabel) {
	if p == nil || p.injectorResults == nil {
		return
	}
	p.injectorResults.WithLabelValues(injector, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunnerResult(runner string, result ResultLabel) {
	if p == nil || p.runnerResults == nil {
		return
	}
	p.runnerResults.WithLabelValues(runner, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPluginInit(plugin string, result ResultLabel) {
	if p == nil || p.pluginInits == nil {
		return
	}
	p.pluginInits.WithLabelValues(plugin, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveMaterializeDuration(target string, d time.Duration, success bool) {
	if p == nil || p.materializeTimes == nil {
		return
	}
	p.materializeTimes.WithLabelValues(target, resultOf(success)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}
