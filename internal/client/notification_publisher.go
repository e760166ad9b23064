package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-inventory/internal/workflow"
)

// Publisher is the slice of a NATS connection the publishers need.
// *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials NATS. An empty URL returns a nil connection and no error so
// the publishers run disabled.
func Connect(url, name string, wait time.Duration, log zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.Timeout(wait),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats: disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
}

// subject joins an optional prefix to a subject
func subject(prefix string, parts ...string) string {
	s := strings.Join(parts, ".")
	if prefix == "" {
		return s
	}
	return strings.TrimSuffix(prefix, ".") + "." + s
}

// NotificationPublisher delivers dialog notifications to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.inventory.<flow>
//
// Publishing is non-fatal: errors are logged but never propagated, so a
// notification failure never interrupts a dialog.
type NotificationPublisher struct {
	nats   Publisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string    `json:"event_type"`
	Flow         string    `json:"flow"`
	Message      string    `json:"message"`
	Severity     string    `json:"severity"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Category     string    `json:"category"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// NewNotificationPublisher creates a publisher. A nil nats disables it.
func NewNotificationPublisher(nats Publisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, prefix: prefix, log: log}
}

// Notify implements workflow.Notifier.
// Subject: notifications.inventory.<flow>
func (p *NotificationPublisher) Notify(ctx context.Context, n workflow.Notification) {
	if p == nil || p.nats == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    "dialog_" + string(n.Severity),
		Flow:         n.Flow,
		Message:      n.Message,
		Severity:     string(n.Severity),
		ResourceType: resourceType(n.Flow),
		ResourceID:   n.TargetID,
		Category:     "inventory",
		OccurredAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("flow", n.Flow).Msg("notification: failed to marshal event")
		return
	}

	subj := subject(p.prefix, "notifications", "inventory", n.Flow)
	if err := p.nats.Publish(subj, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subj).
			Str("target_id", n.TargetID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subj).
		Str("target_id", n.TargetID).
		Str("severity", string(n.Severity)).
		Msg("notification: event published")
}

// resourceType derives the entity from a flow name such as item-deletion
func resourceType(flow string) string {
	if i := strings.IndexByte(flow, '-'); i > 0 {
		return flow[:i]
	}
	return flow
}
