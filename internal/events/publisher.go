package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Publisher delivers events to subscribers. Publishing is best effort:
// callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// MemoryPublisher keeps events in memory. Watch mode uses it to report the
// last outcome, tests use it to assert lifecycle order.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the event type names in publish order.
func (m *MemoryPublisher) Types() []string {
	evts := m.Events()
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, e.Type())
	}
	return out
}

// NATSPublisher publishes JSON envelopes to <subject>.<type>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url. The connection is closed by Close.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, errors.ConfigError("events.nats_url is required").Build()
	}
	conn, err := nats.Connect(url,
		nats.Name("assetpipe"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryEvents, "failed to connect to NATS").
			WithContext("url", url).
			Retryable().
			Build()
	}
	slog.Info("NATS publisher connected", "url", url, "subject", subject)
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

// Subject returns the subject an event type is published on.
func Subject(base, eventType string) string {
	return strings.TrimSuffix(base, ".") + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return errors.WrapError(err, errors.CategoryEvents, "failed to encode event").Build()
	}
	subject := Subject(p.subject, e.Type())
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryEvents, "failed to publish event").
			WithContext("subject", subject).
			Build()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return errors.WrapError(err, errors.CategoryEvents, "failed to flush event").
			WithContext("subject", subject).
			Build()
	}
	slog.Debug("Published build event", "subject", subject, "build_id", e.BuildID())
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
