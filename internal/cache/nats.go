package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore keeps the entry in a JetStream KeyValue bucket. KV has no
// multi-key transaction, so the content slot carries an envelope holding
// both values and Load trusts the envelope. The fingerprint slot mirrors
// the fingerprint for cheap inspection.
type NATSStore struct {
	kv   jetstream.KeyValue
	keys Keys
}

type envelope struct {
	Fingerprint string    `json:"fingerprint"`
	Content     string    `json:"content"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewNATSStore wraps an existing bucket.
func NewNATSStore(kv jetstream.KeyValue, keys Keys) (*NATSStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("nats key-value bucket is required")
	}
	return &NATSStore{kv: kv, keys: keys.withDefaults()}, nil
}

func (s *NATSStore) Load(ctx context.Context) (Entry, bool, error) {
	kve, err := s.kv.Get(ctx, s.keys.Content)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("get content slot: %w", err)
	}
	e, err := decodeEnvelope(kve.Value())
	if err != nil {
		return Entry{}, false, err
	}
	if !e.Usable() {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *NATSStore) Save(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	data, err := encodeEnvelope(e, time.Now().UTC())
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.keys.Content, data); err != nil {
		return fmt.Errorf("put content slot: %w", err)
	}
	if _, err := s.kv.PutString(ctx, s.keys.Fingerprint, e.Fingerprint); err != nil {
		return fmt.Errorf("put fingerprint slot: %w", err)
	}
	return nil
}

func (s *NATSStore) Clear(ctx context.Context) error {
	for _, key := range []string{s.keys.Content, s.keys.Fingerprint} {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}

// Close is a no-op; the connection belongs to the broker client.
func (s *NATSStore) Close() error { return nil }

func encodeEnvelope(e Entry, at time.Time) ([]byte, error) {
	data, err := json.Marshal(envelope{Fingerprint: e.Fingerprint, Content: e.Content, UpdatedAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode cache envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry{}, fmt.Errorf("decode cache envelope: %w", err)
	}
	return Entry{Content: env.Content, Fingerprint: env.Fingerprint, UpdatedAt: env.UpdatedAt}, nil
}
