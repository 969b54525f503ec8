package outbox

import (
	"encoding/json"
	"time"
)

// SourceRef ties an outbox row back to the Stripe event that produced it.
type SourceRef struct {
	StripeEventID   string `json:"stripeEventId,omitempty"`
	StripeEventType string `json:"stripeEventType,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     *SourceRef      `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}
