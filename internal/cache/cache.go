// Package cache persists the fetched artifact and its fingerprint as two
// slots that are always written together.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Default slot names.
const (
	DefaultContentKey     = "hotpatch_content"
	DefaultFingerprintKey = "hotpatch_fingerprint"
)

// Entry is the cached artifact. Content and Fingerprint always come from the
// same fetch.
type Entry struct {
	Content     string
	Fingerprint string
	// UpdatedAt is when the entry was saved. Informational; zero if the
	// backend does not track it.
	UpdatedAt time.Time
}

// Usable reports whether the entry can be materialized. A fingerprint
// without content does not count as a cached artifact.
func (e Entry) Usable() bool {
	return e.Content != ""
}

// Keys names the two slots.
type Keys struct {
	Content     string
	Fingerprint string
}

// DefaultKeys returns the default slot names.
func DefaultKeys() Keys {
	return Keys{Content: DefaultContentKey, Fingerprint: DefaultFingerprintKey}
}

func (k Keys) withDefaults() Keys {
	if k.Content == "" {
		k.Content = DefaultContentKey
	}
	if k.Fingerprint == "" {
		k.Fingerprint = DefaultFingerprintKey
	}
	return k
}

// Store is a two-slot durable store.
type Store interface {
	// Load returns the cached entry. ok is false when no usable entry exists.
	Load(ctx context.Context) (entry Entry, ok bool, err error)
	// Save writes content and fingerprint in one atomic operation.
	Save(ctx context.Context, entry Entry) error
	// Clear removes both slots.
	Clear(ctx context.Context) error
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendFile   Backend = "file"
	BackendNATS   Backend = "nats"
	BackendMemory Backend = "memory"
)

// IsValid reports whether b is a known backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendSQLite, BackendFile, BackendNATS, BackendMemory:
		return true
	default:
		return false
	}
}

func validateEntry(e Entry) error {
	if e.Content == "" {
		return fmt.Errorf("refusing to save entry without content")
	}
	if e.Fingerprint == "" {
		return fmt.Errorf("refusing to save entry without fingerprint")
	}
	return nil
}
