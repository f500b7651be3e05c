// Package events publishes pipeline summary events to a message broker. A
// missing or failing broker never stops a run: failures are logged and
// returned as *PublishError for the caller to count.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Publisher sends one JSON-serializable payload to a topic.
type Publisher interface {
	SendEvent(ctx context.Context, topic string, payload map[string]interface{}) error
	Close() error
}

// PublishError wraps a failed send.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish event to %s: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ErrNoProducer is returned by Send when no publisher was initialized.
var ErrNoProducer = errors.New("producer is not initialized")

// Send publishes payload through p and logs the outcome. A nil p is a logged
// no-op.
func Send(ctx context.Context, p Publisher, topic string, payload map[string]interface{}, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		logger.Error("event_publish_skipped", "topic", topic, "err", ErrNoProducer)
		return &PublishError{Topic: topic, Err: ErrNoProducer}
	}
	if err := p.SendEvent(ctx, topic, payload); err != nil {
		logger.Error("event_publish_error", "topic", topic, "err", err)
		return &PublishError{Topic: topic, Err: err}
	}
	logger.Info("event_published", "topic", topic, "event", payload)
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) SendEvent(context.Context, string, map[string]interface{}) error { return nil }
func (NopPublisher) Close() error                                                   { return nil }

// Recorder keeps events in memory. It is used by the `check` command's dry run
// and by tests.
type Recorder struct {
	Events []Recorded
}

type Recorded struct {
	Topic   string
	Payload map[string]interface{}
}

func (r *Recorder) SendEvent(_ context.Context, topic string, payload map[string]interface{}) error {
	r.Events = append(r.Events, Recorded{Topic: topic, Payload: payload})
	return nil
}

func (r *Recorder) Close() error { return nil }
