package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// RefreshPublisher tells list views that a committed dialog changed their data.
//
// Subject convention: inventory.refresh.<flow>
type RefreshPublisher struct {
	nats   Publisher
	prefix string
	log    zerolog.Logger
}

// RefreshEvent is the JSON schema published to NATS.
type RefreshEvent struct {
	Flow       string    `json:"flow"`
	TargetID   string    `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewRefreshPublisher creates a publisher. A nil nats disables it.
func NewRefreshPublisher(nats Publisher, prefix string, log zerolog.Logger) *RefreshPublisher {
	return &RefreshPublisher{nats: nats, prefix: prefix, log: log}
}

// OnCommitted implements workflow.Refresher
func (p *RefreshPublisher) OnCommitted(ctx context.Context, flow, targetID string) {
	if p == nil || p.nats == nil {
		return
	}

	data, err := json.Marshal(&RefreshEvent{Flow: flow, TargetID: targetID, OccurredAt: time.Now().UTC()})
	if err != nil {
		p.log.Warn().Err(err).Str("flow", flow).Msg("refresh: failed to marshal event")
		return
	}

	subj := subject(p.prefix, "inventory", "refresh", flow)
	if err := p.nats.Publish(subj, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subj).
			Str("target_id", targetID).
			Msg("refresh: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().Str("subject", subj).Str("target_id", targetID).Msg("refresh: event published")
}
