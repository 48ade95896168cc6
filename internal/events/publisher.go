package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/embedchat/widget-gateway/pkg/logger"
	"github.com/embedchat/widget-gateway/pkg/metrics"
)

const (
	// StreamName is the name of the widget events stream.
	StreamName = "WIDGET_EVENTS"

	// SubjectPrefix is the prefix for all widget event subjects.
	SubjectPrefix = "widget"
)

// Event types published by the gateway.
const (
	TypeSessionEnsured  = "session.ensured"
	TypeSessionRepaired = "session.repaired"
	TypeSessionFailed   = "session.failed"
	TypeSessionReset    = "session.reset"
	TypeMessageSent     = "msg.sent"
	TypeMessageFailed   = "msg.failed"
)

// Event is one widget lifecycle event.
type Event struct {
	Type             string    `json:"type"`
	SiteID           string    `json:"site_id"`
	SessionID        string    `json:"session_id"`
	VisitorUUID      string    `json:"visitor_uuid,omitempty"`
	ConversationUUID string    `json:"conversation_uuid,omitempty"`
	Detail           string    `json:"detail,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Publisher publishes widget events to JetStream. A nil Publisher is valid
// and drops everything, so eventing stays optional at boot.
type Publisher struct {
	client *Client
	logger *logger.Logger
}

// NewPublisher creates a publisher over an established client.
func NewPublisher(client *Client, log *logger.Logger) *Publisher {
	return &Publisher{client: client, logger: log}
}

// EnsureStream ensures the widget events stream exists.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if p == nil {
		return nil
	}
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Widget session and message lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Subject returns the subject for an event.
func Subject(siteID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, siteID, eventType)
}

// Publish publishes one event. Failures are logged, never propagated: the
// gateway's user-facing path does not depend on eventing.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	if _, err := p.client.JetStream().Publish(ctx, Subject(event.SiteID, event.Type), data); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("type", event.Type), zap.Error(err))
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(event.Type).Inc()
}
