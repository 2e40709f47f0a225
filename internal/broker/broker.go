// Package broker owns the NATS connection shared by the remote cache
// backend and the event publisher.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/hotpatch/internal/config"
	derrors "git.home.luguber.info/inful/hotpatch/internal/errors"
)

const (
	defaultBucketMaxBytes = 64 * 1024 * 1024
	bucketTimeout         = 10 * time.Second
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	cfg    config.NATSConfig
	logger *slog.Logger
}

// Connect dials cfg.URL and prepares JetStream.
func Connect(cfg config.NATSConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, derrors.ValidationFailed("nats.url", "required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []nats.Option{nats.Name(cfg.Name)}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, derrors.WrapRetryable(err, derrors.CategoryNetwork, derrors.SeverityError, "failed to connect to NATS").
			WithContext("url", cfg.URL)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	logger.Info("NATS client connected", slog.String("url", cfg.URL), slog.String("name", cfg.Name))
	return &Client{conn: conn, js: js, cfg: cfg, logger: logger}, nil
}

// Conn exposes the raw connection; it satisfies eventstore.MsgPublisher.
func (c *Client) Conn() *nats.Conn { return c.conn }

// KeyValue returns the bucket named bucket, creating it when missing.
// An empty bucket name uses nats.bucket from the configuration.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	if bucket == "" {
		bucket = c.cfg.Bucket
	}
	ctx, cancel := context.WithTimeout(ctx, bucketTimeout)
	defer cancel()

	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, derrors.CacheUnavailable("open bucket", err).WithContext("bucket", bucket)
	}

	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "hotpatch artifact cache",
		MaxBytes:    defaultBucketMaxBytes,
		History:     1,
	})
	if err != nil {
		return nil, derrors.CacheUnavailable("create bucket", err).WithContext("bucket", bucket)
	}
	c.logger.Info("Created KV bucket", slog.String("bucket", bucket))
	return kv, nil
}

// Close drains and closes the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}
