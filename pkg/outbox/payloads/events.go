package payloads

import "github.com/google/uuid"

// Audience is who a notification is addressed to.
type Audience string

const (
	AudienceProvider  Audience = "provider"
	AudienceHomeowner Audience = "homeowner"
)

// NotificationRequestedEvent asks the push-notification function to alert a
// user or every member of an organization.
type NotificationRequestedEvent struct {
	Audience Audience          `json:"audience"`
	OrgID    *uuid.UUID        `json:"org_id,omitempty"`
	UserID   *uuid.UUID        `json:"user_id,omitempty"`
	Category string            `json:"category"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
}

// WorkflowTriggeredEvent hands a domain trigger to the workflow orchestrator.
type WorkflowTriggeredEvent struct {
	Trigger    string         `json:"trigger"`
	OrgID      *uuid.UUID     `json:"org_id,omitempty"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Data       map[string]any `json:"data,omitempty"`
}
