package eventstore

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Message headers set on every published run event.
const (
	HeaderRunID      = "Hotpatch-Run-Id"
	HeaderEventType  = "Hotpatch-Event-Type"
	HeaderTimestamp  = "Hotpatch-Timestamp"
	headerMetaPrefix = "Hotpatch-Meta-"
)

// MsgPublisher is the subset of *nats.Conn used by NATSPublisher.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher appends events by publishing them on
// "<subject>.<EventType>". It keeps no history; pair it with a
// SQLiteStore for the history command.
type NATSPublisher struct {
	pub     MsgPublisher
	subject string
	now     func() time.Time
}

// NewNATSPublisher returns a publisher rooted at subject.
func NewNATSPublisher(pub MsgPublisher, subject string) *NATSPublisher {
	return &NATSPublisher{
		pub:     pub,
		subject: strings.TrimSuffix(subject, "."),
		now:     time.Now,
	}
}

// Append implements Appender.
func (p *NATSPublisher) Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.pub.PublishMsg(p.message(runID, eventType, payload, metadata))
}

func (p *NATSPublisher) message(runID, eventType string, payload []byte, metadata map[string]string) *nats.Msg {
	msg := nats.NewMsg(p.subject + "." + eventType)
	msg.Data = payload
	msg.Header.Set(HeaderRunID, runID)
	msg.Header.Set(HeaderEventType, eventType)
	msg.Header.Set(HeaderTimestamp, p.now().UTC().Format(time.RFC3339Nano))
	for k, v := range metadata {
		msg.Header.Set(headerMetaPrefix+k, v)
	}
	return msg
}
