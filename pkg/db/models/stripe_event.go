package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/homebase-app/homebase-backend/pkg/enums"
)

// StripeEvent is the durable idempotency record for a webhook delivery.
// ProcessedAt is written once, after every side effect of the event committed.
type StripeEvent struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	StripeEventID string              `gorm:"column:stripe_event_id;not null;uniqueIndex"`
	EventType     string              `gorm:"column:event_type;not null"`
	WebhookSource enums.WebhookSource `gorm:"column:webhook_source;type:text;not null"`
	Account       *string             `gorm:"column:account"`
	Livemode      bool                `gorm:"column:livemode;not null;default:false"`
	RawEvent      datatypes.JSON      `gorm:"column:raw_event;not null"`
	ProcessedAt   *time.Time          `gorm:"column:processed_at"`
	AttemptCount  int                 `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string             `gorm:"column:last_error"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *StripeEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
