package cache

import (
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Options selects and configures a backend.
type Options struct {
	Backend Backend
	// Path is the sqlite database or JSON document location.
	Path string
	Keys Keys
	// KV is the bucket used by the nats backend.
	KV jetstream.KeyValue
}

// Open constructs the Store named by opts.Backend (sqlite when empty).
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		path := opts.Path
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(path, opts.Keys)
	case BackendFile:
		return NewFileStore(opts.Path, opts.Keys)
	case BackendNATS:
		return NewNATSStore(opts.KV, opts.Keys)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
