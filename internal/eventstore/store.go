package eventstore

import (
	"context"
	"time"
)

// Appender accepts events. Both the SQLite store and the NATS publisher
// implement it.
type Appender interface {
	Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error
}

// Store defines the interface for persisting and retrieving events.
type Store interface {
	Appender

	// GetByRunID retrieves all events for a specific run.
	GetByRunID(ctx context.Context, runID string) ([]Event, error)

	// GetRange retrieves events within a time range.
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)

	// Close closes the store and releases resources.
	Close() error
}
