package eventstore

import (
	"encoding/json"
	"time"

	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
)

// Event type names.
const (
	TypeRunStarted            = "RunStarted"
	TypeArtifactFetched       = "ArtifactFetched"
	TypeCacheUpdated          = "CacheUpdated"
	TypeRevalidationCompleted = "RevalidationCompleted"
	TypeInjectionCompleted    = "InjectionCompleted"
	TypeArtifactMaterialized  = "ArtifactMaterialized"
	TypeRunnersCompleted      = "RunnersCompleted"
	TypeRunCompleted          = "RunCompleted"
	TypeRunFailed             = "RunFailed"
)

// RunStarted is emitted once the cache state of a run is known.
type RunStarted struct {
	CacheState  string `json:"cache_state"`
	URL         string `json:"url"`
	Target      string `json:"target"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// ArtifactFetched is emitted after every successful fetch.
type ArtifactFetched struct {
	Role              string `json:"role"`
	Fingerprint       string `json:"fingerprint"`
	FingerprintSource string `json:"fingerprint_source"`
	Status            int    `json:"status"`
	Bytes             int    `json:"bytes"`
	DurationMS        int64  `json:"duration_ms"`
}

// CacheUpdated is emitted when both cache slots were written.
type CacheUpdated struct {
	Fingerprint string `json:"fingerprint"`
	Reason      string `json:"reason"`
}

// RevalidationCompleted reports the outcome of a background revalidation.
type RevalidationCompleted struct {
	Result              string `json:"result"`
	PreviousFingerprint string `json:"previous_fingerprint"`
	Fingerprint         string `json:"fingerprint,omitempty"`
	Error               string `json:"error,omitempty"`
}

// InjectionCompleted summarizes one injector chain pass.
type InjectionCompleted struct {
	Applied   []string `json:"applied,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

// ArtifactMaterialized is emitted when a new environment became active.
type ArtifactMaterialized struct {
	Target     string `json:"target"`
	Bytes      int    `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
}

// RunnersCompleted summarizes the runner chain.
type RunnersCompleted struct {
	Total  int      `json:"total"`
	Failed []string `json:"failed,omitempty"`
}

// RunCompleted closes a successful run.
type RunCompleted struct {
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
}

// RunFailed closes a run that ended in a fatal error.
type RunFailed struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// New builds an event whose payload is the JSON encoding of payload.
func New(runID, eventType string, payload any) (*BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, derrors.InternalError("failed to marshal "+eventType+" payload", err).
			WithContext("run_id", runID)
	}
	return &BaseEvent{
		EventRunID:     runID,
		EventType:      eventType,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}, nil
}

// TypeOf returns the event type name for a payload value, or "" when the
// value is not one of the known payloads.
func TypeOf(payload any) string {
	switch payload.(type) {
	case RunStarted, *RunStarted:
		return TypeRunStarted
	case ArtifactFetched, *ArtifactFetched:
		return TypeArtifactFetched
	case CacheUpdated, *CacheUpdated:
		return TypeCacheUpdated
	case RevalidationCompleted, *RevalidationCompleted:
		return TypeRevalidationCompleted
	case InjectionCompleted, *InjectionCompleted:
		return TypeInjectionCompleted
	case ArtifactMaterialized, *ArtifactMaterialized:
		return TypeArtifactMaterialized
	case RunnersCompleted, *RunnersCompleted:
		return TypeRunnersCompleted
	case RunCompleted, *RunCompleted:
		return TypeRunCompleted
	case RunFailed, *RunFailed:
		return TypeRunFailed
	default:
		return ""
	}
}

// Decode unmarshals the payload of e into T.
func Decode[T any](e Event) (T, error) {
	var out T
	if err := json.Unmarshal(e.Payload(), &out); err != nil {
		return out, derrors.InternalError("failed to unmarshal "+e.Type()+" payload", err)
	}
	return out, nil
}
