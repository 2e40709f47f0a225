// Package eventstore records pipeline run events and rebuilds run history
// from them.
package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	runStatusRunning   = "running"
	runStatusCompleted = "completed"
	runStatusFailed    = "failed"
)

// RunSummary is a read model summarizing one pipeline run.
type RunSummary struct {
	RunID        string        `json:"run_id"`
	Status       string        `json:"status"` // "running", "completed", "failed"
	CacheState   string        `json:"cache_state,omitempty"`
	URL          string        `json:"url,omitempty"`
	Target       string        `json:"target,omitempty"`
	Fingerprint  string        `json:"fingerprint,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Applied      int           `json:"injectors_applied"`
	Failed       int           `json:"injectors_failed"`
	RunnerErrors int           `json:"runners_failed"`
	Revalidation string        `json:"revalidation,omitempty"`
	ErrorStage   string        `json:"error_stage,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	history  []*RunSummary // newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a new projection backed by the given store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyEventLocked(event)
	}

	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].StartedAt.After(p.history[j].StartedAt)
	})
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event and updates the projection.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{
			RunID:     runID,
			Status:    runStatusRunning,
			StartedAt: event.Timestamp(),
		}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		if payload, err := Decode[RunStarted](event); err == nil {
			summary.StartedAt = event.Timestamp()
			summary.CacheState = payload.CacheState
			summary.URL = payload.URL
			summary.Target = payload.Target
			if payload.Fingerprint != "" {
				summary.Fingerprint = payload.Fingerprint
			}
		}

	case TypeArtifactFetched:
		if payload, err := Decode[ArtifactFetched](event); err == nil && summary.Fingerprint == "" {
			summary.Fingerprint = payload.Fingerprint
		}

	case TypeInjectionCompleted:
		if payload, err := Decode[InjectionCompleted](event); err == nil {
			summary.Applied = len(payload.Applied)
			summary.Failed = len(payload.Failed)
		}

	case TypeRunnersCompleted:
		if payload, err := Decode[RunnersCompleted](event); err == nil {
			summary.RunnerErrors = len(payload.Failed)
		}

	case TypeRevalidationCompleted:
		if payload, err := Decode[RevalidationCompleted](event); err == nil {
			summary.Revalidation = payload.Result
		}

	case TypeRunCompleted:
		p.finishLocked(summary, event.Timestamp(), runStatusCompleted)

	case TypeRunFailed:
		if payload, err := Decode[RunFailed](event); err == nil {
			summary.ErrorStage = payload.Stage
			summary.ErrorMessage = payload.Error
		}
		p.finishLocked(summary, event.Timestamp(), runStatusFailed)
	}
}

func (p *RunHistoryProjection) finishLocked(summary *RunSummary, at time.Time, status string) {
	summary.CompletedAt = &at
	summary.Duration = at.Sub(summary.StartedAt)
	summary.Status = status

	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}
	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked drops finished runs that fell out of the bounded history.
// Caller must hold p.mu.
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// GetHistory returns copies of finished runs, newest first.
func (p *RunHistoryProjection) GetHistory() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]RunSummary, len(p.history))
	for i, h := range p.history {
		out[i] = *h
	}
	return out
}

// GetRun returns the summary for a specific run.
func (p *RunHistoryProjection) GetRun(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	summary, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *summary, true
}

// GetLastRun returns the most recently finished run.
func (p *RunHistoryProjection) GetLastRun() (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.history) == 0 {
		return RunSummary{}, false
	}
	return *p.history[0], true
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
