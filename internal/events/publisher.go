package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/clearline-ai/support-orchestrator/internal/model"
	"github.com/clearline-ai/support-orchestrator/pkg/metrics"
)

const (
	// StreamName is the name of the conversation events stream.
	StreamName = "SUPPORT_EVENTS"

	// SubjectPrefix is the prefix for all conversation event subjects.
	SubjectPrefix = "support"
)

// Publisher publishes conversation events to JetStream.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher on top of an established client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream ensures the events stream exists with proper configuration.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Conversation routing events for the agent desktop",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a conversation event.
func EventSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.conv.%s.%s", SubjectPrefix, conversationID, eventType)
}

// Publish publishes one conversation event.
func (p *Publisher) Publish(ctx context.Context, event *model.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(event.ConversationID, event.Type)
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "error").Inc()
		return fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "success").Inc()
	return nil
}
