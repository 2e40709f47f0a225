package metrics

import (
	"sync"
	"time"
)

// MemoryRecorder counts observations in memory. Used by tests and by the
// `run` command summary.
type MemoryRecorder struct {
	mu            sync.Mutex
	Fetches       map[string]int
	CacheStates   map[CacheStateLabel]int
	Revalidations map[RevalidationLabel]int
	Injectors     map[string]map[ResultLabel]int
	Runners       map[string]map[ResultLabel]int
	PluginInits   map[string]map[ResultLabel]int
	Materialized  map[string]int
	Outcomes      map[string]int
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		Fetches:       map[string]int{},
		CacheStates:   map[CacheStateLabel]int{},
		Revalidations: map[RevalidationLabel]int{},
		Injectors:     map[string]map[ResultLabel]int{},
		Runners:       map[string]map[ResultLabel]int{},
		PluginInits:   map[string]map[ResultLabel]int{},
		Materialized:  map[string]int{},
		Outcomes:      map[string]int{},
	}
}

func incNested(m map[string]map[ResultLabel]int, key string, result ResultLabel) {
	inner, ok := m[key]
	if !ok {
		inner = map[ResultLabel]int{}
		m[key] = inner
	}
	inner[result]++
}

func (m *MemoryRecorder) ObserveFetchDuration(role string, _ time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.Fetches[role+"/success"]++
	} else {
		m.Fetches[role+"/failed"]++
	}
}

func (m *MemoryRecorder) IncCacheState(state CacheStateLabel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheStates[state]++
}

func (m *MemoryRecorder) IncRevalidation(result RevalidationLabel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Revalidations[result]++
}

func (m *MemoryRecorder) IncInjectorResult(injector string, result ResultLabel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incNested(m.Injectors, injector, result)
}

func (m *MemoryRecorder) IncRunnerResult(runner string, result ResultLabel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incNested(m.Runners, runner, result)
}

func (m *MemoryRecorder) IncPluginInit(plugin string, result ResultLabel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	incNested(m.PluginInits, plugin, result)
}

func (m *MemoryRecorder) ObserveMaterializeDuration(target string, _ time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.Materialized[target]++
	}
}

func (m *MemoryRecorder) IncRunOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[outcome]++
}

// Revalidation returns the count for one revalidation result.
func (m *MemoryRecorder) Revalidation(result RevalidationLabel) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Revalidations[result]
}
